// Package location keeps the last known position of every officer.
package location

import (
	"context"
	"sort"
	"sync"
	"time"

	"Guardian/internal/models"
	"Guardian/pkg/errors"
	"Guardian/pkg/geo"
	"Guardian/pkg/metrics"
)

const DefaultFreshness = 5 * time.Minute

// Store persists officer locations. Save upserts by officer id.
type Store interface {
	Save(ctx context.Context, loc *models.OfficerLocation) error
	FindAll(ctx context.Context) ([]models.OfficerLocation, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Nearby is a location inside a radius query with its distance to the query point.
type Nearby struct {
	models.OfficerLocation
	DistanceKm float64 `json:"distanceKm"`
}

// Tracker holds one record per officer; the latest ping wins. It is safe for
// concurrent use and never calls the store while holding its lock.
type Tracker struct {
	mu        sync.RWMutex
	locations map[string]models.OfficerLocation

	store     Store
	freshness time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics
}

type Option func(*Tracker)

// WithStore writes every update through to s.
func WithStore(s Store) Option { return func(t *Tracker) { t.store = s } }

func WithFreshness(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.freshness = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(t *Tracker) { t.metrics = m } }

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		locations: make(map[string]models.OfficerLocation),
		freshness: DefaultFreshness,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Freshness is the age limit of an active officer's location.
func (t *Tracker) Freshness() time.Duration { return t.freshness }

// UpdateLocation records a ping stamped with the current time. With a store the
// record is persisted first; a store failure leaves memory untouched.
func (t *Tracker) UpdateLocation(ctx context.Context, officerID string, lat, lon float64) (models.OfficerLocation, error) {
	if officerID == "" {
		return models.OfficerLocation{}, errors.Validation("officer id is required")
	}
	if err := geo.Validate(lat, lon); err != nil {
		return models.OfficerLocation{}, err
	}

	loc := models.OfficerLocation{
		OfficerID:   officerID,
		Latitude:    lat,
		Longitude:   lon,
		LastUpdated: t.now().UTC(),
	}
	if t.store != nil {
		if err := t.store.Save(ctx, &loc); err != nil {
			return models.OfficerLocation{}, errors.Transient(err, "save location of %s", officerID)
		}
	}

	t.mu.Lock()
	// a slower concurrent write must not roll the position back
	if cur, ok := t.locations[officerID]; !ok || !loc.LastUpdated.Before(cur.LastUpdated) {
		t.locations[officerID] = loc
	}
	n := len(t.locations)
	t.mu.Unlock()

	t.gauge(n)
	return loc, nil
}

// FindWithinRadius returns every officer whose last position is within radiusKm
// of the point, nearest first. Staleness is not considered.
func (t *Tracker) FindWithinRadius(lat, lon, radiusKm float64) ([]Nearby, error) {
	if err := geo.Validate(lat, lon); err != nil {
		return nil, err
	}
	if radiusKm < 0 {
		return nil, errors.Validation("radius must not be negative")
	}

	snapshot := t.snapshot()
	candidates := make([]geo.Candidate, len(snapshot))
	for i, loc := range snapshot {
		candidates[i] = geo.Candidate{ID: loc.OfficerID, Point: geo.Point{Lat: loc.Latitude, Lon: loc.Longitude}}
	}
	matches := geo.WithinRadius(geo.Point{Lat: lat, Lon: lon}, radiusKm, candidates)

	out := make([]Nearby, len(matches))
	byID := make(map[string]models.OfficerLocation, len(snapshot))
	for _, loc := range snapshot {
		byID[loc.OfficerID] = loc
	}
	for i, m := range matches {
		out[i] = Nearby{OfficerLocation: byID[m.ID], DistanceKm: m.DistanceKm}
	}
	return out, nil
}

// FindActive returns the records updated at or after since, most recent first.
func (t *Tracker) FindActive(since time.Time) []models.OfficerLocation {
	t.mu.RLock()
	out := make([]models.OfficerLocation, 0, len(t.locations))
	for _, loc := range t.locations {
		if !loc.LastUpdated.Before(since) {
			out = append(out, loc)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].OfficerID < out[j].OfficerID
		}
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out
}

// ActiveOfficers is FindActive with the freshness window ending now.
func (t *Tracker) ActiveOfficers() []models.OfficerLocation {
	return t.FindActive(t.now().Add(-t.freshness))
}

func (t *Tracker) Get(officerID string) (models.OfficerLocation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	loc, ok := t.locations[officerID]
	return loc, ok
}

// IsActive reports whether the officer pinged within the freshness window.
func (t *Tracker) IsActive(officerID string) bool {
	loc, ok := t.Get(officerID)
	return ok && !loc.LastUpdated.Before(t.now().Add(-t.freshness))
}

// Load warms the tracker from the store. Newer in-memory records are kept.
func (t *Tracker) Load(ctx context.Context) (int, error) {
	if t.store == nil {
		return 0, nil
	}
	records, err := t.store.FindAll(ctx)
	if err != nil {
		return 0, errors.Transient(err, "load officer locations")
	}

	t.mu.Lock()
	for _, loc := range records {
		if cur, ok := t.locations[loc.OfficerID]; !ok || cur.LastUpdated.Before(loc.LastUpdated) {
			t.locations[loc.OfficerID] = loc
		}
	}
	n := len(t.locations)
	t.mu.Unlock()

	t.gauge(n)
	return len(records), nil
}

// Prune drops records last updated before the cutoff, in memory and in the store.
func (t *Tracker) Prune(ctx context.Context, before time.Time) (int, error) {
	t.mu.Lock()
	removed := 0
	for id, loc := range t.locations {
		if loc.LastUpdated.Before(before) {
			delete(t.locations, id)
			removed++
		}
	}
	n := len(t.locations)
	t.mu.Unlock()

	t.gauge(n)
	if t.metrics != nil {
		t.metrics.AddLocationsPruned(removed)
	}

	if t.store != nil {
		if _, err := t.store.DeleteBefore(ctx, before); err != nil {
			return removed, errors.Transient(err, "prune stored locations")
		}
	}
	return removed, nil
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.locations)
}

func (t *Tracker) snapshot() []models.OfficerLocation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.OfficerLocation, 0, len(t.locations))
	for _, loc := range t.locations {
		out = append(out, loc)
	}
	// stable order so equal distances rank deterministically
	sort.Slice(out, func(i, j int) bool { return out[i].OfficerID < out[j].OfficerID })
	return out
}

func (t *Tracker) gauge(n int) {
	if t.metrics != nil {
		t.metrics.SetLocationsTracked(n)
	}
}
