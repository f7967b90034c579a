package notify

import "time"

// Topic names clients subscribe to.
const (
	TopicSOS              = "/topic/sos"
	TopicIncidents        = "/topic/incidents"
	TopicOfficerLocations = "/topic/officer-locations"
	TopicOfficerStatus    = "/topic/officer-status"
	alertTopicPrefix      = "/topic/alerts/"

	// QueueAlerts is the per-identity queue for targeted alerts.
	QueueAlerts = "/queue/alerts"
)

// Event types, part of the client-facing contract.
const (
	TypeNearbySOSAlert        = "NEARBY_SOS_ALERT"
	TypeSOSAlert              = "SOS_ALERT"
	TypeAlertAcknowledged     = "ALERT_ACKNOWLEDGED"
	TypeAlertResolved         = "ALERT_RESOLVED"
	TypeOfficerLocationUpdate = "OFFICER_LOCATION_UPDATE"
	TypeNewIncident           = "NEW_INCIDENT"
	TypeOfficerConnected      = "OFFICER_CONNECTED"
	TypeOfficerDisconnected   = "OFFICER_DISCONNECTED"
)

// AlertTopic is the topic carrying lifecycle events of one alert.
func AlertTopic(alertID string) string { return alertTopicPrefix + alertID }

// Event is a typed notification payload.
type Event interface {
	EventType() string
}

// Millis renders t the way event timestamps go on the wire.
func Millis(t time.Time) int64 { return t.UnixMilli() }

type NearbySOSAlert struct {
	AlertID   string  `json:"alertId"`
	Kind      string  `json:"kind"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Details   string  `json:"details"`
	// Distance from the officer's last known position, in km.
	Distance float64 `json:"distance"`
}

func (NearbySOSAlert) EventType() string { return TypeNearbySOSAlert }

type SOSAlert struct {
	AlertID   string  `json:"alertId"`
	Kind      string  `json:"kind"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Details   string  `json:"details"`
	Sender    string  `json:"sender,omitempty"`
	Notified  int     `json:"notifiedOfficers"`
	Timestamp int64   `json:"timestamp"`
}

func (SOSAlert) EventType() string { return TypeSOSAlert }

type AlertAcknowledged struct {
	AlertID   string `json:"alertId"`
	OfficerID string `json:"officerId"`
	Timestamp int64  `json:"timestamp"`
}

func (AlertAcknowledged) EventType() string { return TypeAlertAcknowledged }

type AlertResolved struct {
	AlertID    string `json:"alertId"`
	ResolvedBy string `json:"resolvedBy,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

func (AlertResolved) EventType() string { return TypeAlertResolved }

type OfficerLocationUpdate struct {
	OfficerID   string  `json:"officerId"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	SubmittedBy string  `json:"submittedBy,omitempty"`
	Timestamp   int64   `json:"timestamp"`
}

func (OfficerLocationUpdate) EventType() string { return TypeOfficerLocationUpdate }

type NewIncident struct {
	IncidentType string   `json:"incidentType,omitempty"`
	Description  string   `json:"description"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	ReportedBy   string   `json:"reportedBy"`
	Timestamp    int64    `json:"timestamp"`
}

func (NewIncident) EventType() string { return TypeNewIncident }

type OfficerConnected struct {
	OfficerID string `json:"officerId"`
	Name      string `json:"name"`
}

func (OfficerConnected) EventType() string { return TypeOfficerConnected }

type OfficerDisconnected struct {
	OfficerID string `json:"officerId"`
}

func (OfficerDisconnected) EventType() string { return TypeOfficerDisconnected }
