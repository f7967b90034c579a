package notify

import (
	"time"

	"Guardian/pkg/logger"
	"Guardian/pkg/sse"

	"go.uber.org/zap"
)

// StreamNotifier mirrors events onto server-sent event streams for read-only
// dashboards. Topics map to stream groups; unicasts go to the identity's group.
type StreamNotifier struct {
	hub *sse.Hub
	now func() time.Time
}

// StreamEvent is the data of one streamed event.
type StreamEvent struct {
	Type        string `json:"type"`
	Destination string `json:"destination"`
	Payload     Event  `json:"payload"`
	Timestamp   int64  `json:"timestamp"`
}

func NewStreamNotifier(hub *sse.Hub) *StreamNotifier {
	return &StreamNotifier{hub: hub, now: time.Now}
}

// IdentityGroup is the stream group receiving unicasts for identity.
func IdentityGroup(identity string) string { return "user:" + identity }

func (s *StreamNotifier) Broadcast(topic string, ev Event) {
	s.publish(topic, topic, ev)
}

func (s *StreamNotifier) Unicast(identity, queue string, ev Event) {
	s.publish(IdentityGroup(identity), queue, ev)
}

func (s *StreamNotifier) publish(group, destination string, ev Event) {
	_, err := s.hub.Publish(group, ev.EventType(), StreamEvent{
		Type:        ev.EventType(),
		Destination: destination,
		Payload:     ev,
		Timestamp:   Millis(s.now()),
	})
	if err != nil {
		logger.Warn("stream event dropped", zap.String("type", ev.EventType()), zap.Error(err))
	}
}
