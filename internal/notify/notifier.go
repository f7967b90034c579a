package notify

import (
	"sync"

	"Guardian/pkg/metrics"
)

// Notifier publishes events. Both calls are fire and forget: nothing is queued
// for identities that are offline, and delivery faults are not reported.
type Notifier interface {
	Broadcast(topic string, ev Event)
	Unicast(identity, queue string, ev Event)
}

// Publisher is the transport a HubNotifier writes to. *websocket.Hub satisfies it.
type Publisher interface {
	Publish(topic, msgType string, payload interface{}) int
	SendToUser(userID, destination, msgType string, payload interface{}) int
}

// HubNotifier delivers events over the realtime connection hub.
type HubNotifier struct {
	pub     Publisher
	metrics *metrics.Metrics
}

func NewHubNotifier(pub Publisher, m *metrics.Metrics) *HubNotifier {
	return &HubNotifier{pub: pub, metrics: m}
}

func (n *HubNotifier) Broadcast(topic string, ev Event) {
	sent := n.pub.Publish(topic, ev.EventType(), ev)
	n.record("broadcast", sent)
}

func (n *HubNotifier) Unicast(identity, queue string, ev Event) {
	sent := n.pub.SendToUser(identity, queue, ev.EventType(), ev)
	n.record("unicast", sent)
}

func (n *HubNotifier) record(mode string, sent int) {
	if n.metrics == nil {
		return
	}
	result := "delivered"
	if sent == 0 {
		result = "no_receiver"
	}
	n.metrics.RecordNotification(mode, result)
}

// Multi fans every call out to several notifiers in order.
type Multi []Notifier

func (m Multi) Broadcast(topic string, ev Event) {
	for _, n := range m {
		n.Broadcast(topic, ev)
	}
}

func (m Multi) Unicast(identity, queue string, ev Event) {
	for _, n := range m {
		n.Unicast(identity, queue, ev)
	}
}

// Mode of a recorded notification.
const (
	ModeBroadcast = "broadcast"
	ModeUnicast   = "unicast"
)

// Sent is one notification captured by a Recorder.
type Sent struct {
	Mode string
	// Topic for broadcasts, queue for unicasts.
	Destination string
	// Identity is empty for broadcasts.
	Identity string
	Event    Event
}

// Recorder keeps every notification in memory. It is safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Broadcast(topic string, ev Event) {
	r.mu.Lock()
	r.sent = append(r.sent, Sent{Mode: ModeBroadcast, Destination: topic, Event: ev})
	r.mu.Unlock()
}

func (r *Recorder) Unicast(identity, queue string, ev Event) {
	r.mu.Lock()
	r.sent = append(r.sent, Sent{Mode: ModeUnicast, Destination: queue, Identity: identity, Event: ev})
	r.mu.Unlock()
}

// All returns a copy of everything recorded, oldest first.
func (r *Recorder) All() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

func (r *Recorder) Broadcasts() []Sent {
	return r.filter(func(s Sent) bool { return s.Mode == ModeBroadcast })
}

func (r *Recorder) Unicasts() []Sent {
	return r.filter(func(s Sent) bool { return s.Mode == ModeUnicast })
}

// OfType returns recorded notifications carrying the given event type.
func (r *Recorder) OfType(eventType string) []Sent {
	return r.filter(func(s Sent) bool { return s.Event.EventType() == eventType })
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}

func (r *Recorder) filter(keep func(Sent) bool) []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Sent
	for _, s := range r.sent {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
