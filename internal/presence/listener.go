package presence

import (
	"Guardian/pkg/logger"
	"Guardian/pkg/metrics"
	"Guardian/pkg/websocket"

	"go.uber.org/zap"
)

// HubListener feeds hub connection events into a Registry.
type HubListener struct {
	registry *Registry
	hub      *websocket.Hub
	metrics  *metrics.Metrics
	// AutoSubscribe lists the topics a connection joins on connect, by role.
	AutoSubscribe map[string][]string
}

var _ websocket.Listener = (*HubListener)(nil)

func NewHubListener(r *Registry, hub *websocket.Hub, m *metrics.Metrics) *HubListener {
	return &HubListener{registry: r, hub: hub, metrics: m}
}

func (l *HubListener) OnConnect(c *websocket.Connection) {
	id := Identity{ID: c.Principal.ID, Name: c.Principal.Name, Role: c.Principal.Role}
	if err := l.registry.Connect(c.ID, id, ParsePlatform(c.UserAgent)); err != nil {
		logger.Warn("presence register failed", zap.String("conn", c.ID), zap.Error(err))
		l.hub.Unregister(c)
		return
	}
	for _, topic := range l.AutoSubscribe[id.Role] {
		if err := l.hub.Subscribe(c, topic); err != nil {
			logger.Warn("auto subscribe failed", zap.String("conn", c.ID), zap.String("topic", topic), zap.Error(err))
		}
	}
	l.refresh()
}

func (l *HubListener) OnDisconnect(c *websocket.Connection) {
	l.registry.Disconnect(c.ID)
	l.refresh()
}

func (l *HubListener) refresh() {
	if l.metrics != nil {
		l.metrics.SetOfficersOnline(len(l.registry.OnlineOfficers()))
	}
}
