// Package geo holds the pure great-circle helpers used for proximity matching.
package geo

import (
	"math"
	"sort"

	"Guardian/pkg/errors"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Validate rejects non-finite or out-of-range coordinates.
func Validate(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return errors.Validation("latitude must be a finite number in [-90, 90], got %v", lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return errors.Validation("longitude must be a finite number in [-180, 180], got %v", lon)
	}
	return nil
}

// Distance returns the haversine distance in kilometers between two points given in degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// DistanceBetween is Distance for two Points.
func DistanceBetween(a, b Point) float64 {
	return Distance(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Candidate is anything with an identity and a position.
type Candidate struct {
	ID    string
	Point Point
}

// Match is a candidate inside the query radius with its distance to the query point.
type Match struct {
	Candidate
	DistanceKm float64
}

// WithinRadius returns the candidates whose distance to center is <= radiusKm,
// nearest first. Ties keep input order.
func WithinRadius(center Point, radiusKm float64, candidates []Candidate) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		d := DistanceBetween(center, c.Point)
		if d <= radiusKm {
			matches = append(matches, Match{Candidate: c, DistanceKm: d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DistanceKm < matches[j].DistanceKm
	})
	return matches
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
