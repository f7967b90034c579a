package notify

import (
	"encoding/json"
	"strings"
	"testing"

	"Guardian/pkg/metrics"
	"Guardian/pkg/sse"
	"Guardian/pkg/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubNotifierDelivers(t *testing.T) {
	hub := websocket.NewHub(nil)
	defer hub.Close()
	reg := prometheus.NewRegistry()
	n := NewHubNotifier(hub, metrics.NewMetrics(reg))

	officer := websocket.NewConnection(hub, nil, websocket.Principal{ID: "officer-1", Role: "OFFICER"}, "")
	dashboard := websocket.NewConnection(hub, nil, websocket.Principal{ID: "admin-1", Role: "ADMIN"}, "")
	require.NoError(t, hub.Register(officer))
	require.NoError(t, hub.Register(dashboard))
	require.NoError(t, hub.Subscribe(dashboard, TopicSOS))

	n.Unicast("officer-1", QueueAlerts, NearbySOSAlert{AlertID: "a1", Distance: 1.25})
	n.Broadcast(TopicSOS, SOSAlert{AlertID: "a1", Sender: "citizen-9"})
	n.Broadcast(TopicIncidents, NewIncident{Description: "nobody listening"})

	var unicast struct {
		Type        string         `json:"type"`
		Destination string         `json:"destination"`
		Payload     NearbySOSAlert `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-officer.Send, &unicast))
	assert.Equal(t, TypeNearbySOSAlert, unicast.Type)
	assert.Equal(t, QueueAlerts, unicast.Destination)
	assert.Equal(t, 1.25, unicast.Payload.Distance)

	var broadcast struct {
		Type    string   `json:"type"`
		Payload SOSAlert `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-dashboard.Send, &broadcast))
	assert.Equal(t, TypeSOSAlert, broadcast.Type)
	assert.Equal(t, "citizen-9", broadcast.Payload.Sender)

	count, err := testutil.GatherAndCount(reg, "guardian_notifications_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRecorderAndMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	var n Notifier = Multi{a, b}

	n.Unicast("o1", QueueAlerts, NearbySOSAlert{AlertID: "x"})
	n.Broadcast(AlertTopic("x"), AlertAcknowledged{AlertID: "x", OfficerID: "o1"})

	for _, r := range []*Recorder{a, b} {
		require.Len(t, r.All(), 2)
		require.Len(t, r.Unicasts(), 1)
		assert.Equal(t, "o1", r.Unicasts()[0].Identity)
		require.Len(t, r.Broadcasts(), 1)
		assert.Equal(t, "/topic/alerts/x", r.Broadcasts()[0].Destination)
		assert.Len(t, r.OfType(TypeAlertAcknowledged), 1)
	}

	a.Reset()
	assert.Empty(t, a.All())
	assert.Len(t, b.All(), 2)
}

func TestEventTypes(t *testing.T) {
	events := map[string]Event{
		TypeNearbySOSAlert:        NearbySOSAlert{},
		TypeSOSAlert:              SOSAlert{},
		TypeAlertAcknowledged:     AlertAcknowledged{},
		TypeAlertResolved:         AlertResolved{},
		TypeOfficerLocationUpdate: OfficerLocationUpdate{},
		TypeNewIncident:           NewIncident{},
		TypeOfficerConnected:      OfficerConnected{},
		TypeOfficerDisconnected:   OfficerDisconnected{},
	}
	for want, ev := range events {
		assert.Equal(t, want, ev.EventType())
	}
}

func TestStreamNotifier(t *testing.T) {
	hub := sse.NewHub(0)
	dashboard := hub.AddClient("dash")
	hub.Join("dash", TopicSOS)
	officer := hub.AddClient("officer-conn")
	hub.Join("officer-conn", IdentityGroup("officer-1"))

	n := NewStreamNotifier(hub)
	Multi{NewRecorder(), n}.Broadcast(TopicSOS, SOSAlert{AlertID: "a1"})
	n.Unicast("officer-1", QueueAlerts, NearbySOSAlert{AlertID: "a1", Distance: 2})
	n.Broadcast(TopicIncidents, NewIncident{Description: "unheard"})

	msg := <-dashboard.Messages()
	assert.True(t, strings.HasPrefix(msg, "event: SOS_ALERT\ndata: "))
	var ev struct {
		Type        string   `json:"type"`
		Destination string   `json:"destination"`
		Payload     SOSAlert `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.SplitN(msg, "data: ", 2)[1])), &ev))
	assert.Equal(t, TopicSOS, ev.Destination)
	assert.Equal(t, "a1", ev.Payload.AlertID)

	msg = <-officer.Messages()
	assert.Contains(t, msg, `"destination":"/queue/alerts"`)
	assert.Contains(t, msg, `"distance":2`)
	assert.Empty(t, dashboard.Messages())
}
