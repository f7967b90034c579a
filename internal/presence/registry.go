// Package presence tracks which identities are connected and announces officers
// coming online and going offline.
package presence

import (
	"sort"
	"sync"
	"time"

	"Guardian/internal/models"
	"Guardian/internal/notify"
	"Guardian/pkg/errors"
	"Guardian/pkg/logger"

	"github.com/mssola/user_agent"
	"go.uber.org/zap"
)

// Identity is the authenticated owner of a connection.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// IsOfficer reports whether presence changes of this identity are announced.
func (i Identity) IsOfficer() bool { return i.Role == models.RoleOfficer }

// Platform describes the client software of a connection.
type Platform struct {
	Device  string `json:"device,omitempty"`
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
	Mobile  bool   `json:"mobile"`
}

// ParsePlatform extracts the platform from a User-Agent header.
func ParsePlatform(userAgent string) Platform {
	if userAgent == "" {
		return Platform{}
	}
	ua := user_agent.New(userAgent)
	browser, version := ua.Browser()
	if version != "" {
		browser += " " + version
	}
	return Platform{
		Device:  ua.Platform(),
		OS:      ua.OS(),
		Browser: browser,
		Mobile:  ua.Mobile(),
	}
}

// Session is one live connection.
type Session struct {
	ConnectionID string    `json:"connectionId"`
	Identity     Identity  `json:"identity"`
	Platform     Platform  `json:"platform"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// Registry maps connection ids to identities. It is safe for concurrent use.
// Notifications go out after the lock is released.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]Session
	byIdentity map[string]map[string]struct{}

	notifier notify.Notifier
	now      func() time.Time
}

type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(n notify.Notifier, opts ...Option) *Registry {
	r := &Registry{
		sessions:   make(map[string]Session),
		byIdentity: make(map[string]map[string]struct{}),
		notifier:   n,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect registers connID for id. Re-registering the same pair is a no-op and a
// live connID owned by another identity is a conflict. Every officer connect is
// announced on the officer status topic.
func (r *Registry) Connect(connID string, id Identity, platform Platform) error {
	if connID == "" || id.ID == "" {
		return errors.Validation("connection id and identity are required")
	}

	r.mu.Lock()
	if existing, ok := r.sessions[connID]; ok {
		r.mu.Unlock()
		if existing.Identity.ID == id.ID {
			return nil
		}
		return errors.Conflict("connection %s already belongs to another identity", connID)
	}
	r.sessions[connID] = Session{
		ConnectionID: connID,
		Identity:     id,
		Platform:     platform,
		ConnectedAt:  r.now(),
	}
	conns := r.byIdentity[id.ID]
	if conns == nil {
		conns = make(map[string]struct{})
		r.byIdentity[id.ID] = conns
	}
	conns[connID] = struct{}{}
	total := len(conns)
	r.mu.Unlock()

	logger.Debug("presence connect",
		zap.String("conn", connID), zap.String("identity", id.ID), zap.Int("connections", total))

	if id.IsOfficer() && r.notifier != nil {
		r.notifier.Broadcast(notify.TopicOfficerStatus, notify.OfficerConnected{OfficerID: id.ID, Name: id.Name})
	}
	return nil
}

// Disconnect removes connID. Unknown ids are ignored. An officer going from one
// live connection to none is announced; other disconnects are silent.
func (r *Registry) Disconnect(connID string) (Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[connID]
	if !ok {
		r.mu.Unlock()
		return Session{}, false
	}
	delete(r.sessions, connID)
	remaining := 0
	if conns := r.byIdentity[s.Identity.ID]; conns != nil {
		delete(conns, connID)
		remaining = len(conns)
		if remaining == 0 {
			delete(r.byIdentity, s.Identity.ID)
		}
	}
	r.mu.Unlock()

	logger.Debug("presence disconnect",
		zap.String("conn", connID), zap.String("identity", s.Identity.ID), zap.Int("remaining", remaining))

	if remaining == 0 && s.Identity.IsOfficer() && r.notifier != nil {
		r.notifier.Broadcast(notify.TopicOfficerStatus, notify.OfficerDisconnected{OfficerID: s.Identity.ID})
	}
	return s, true
}

func (r *Registry) Lookup(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// Connections lists the sessions of one identity, oldest first.
func (r *Registry) Connections(identityID string) []Session {
	r.mu.RLock()
	out := make([]Session, 0, len(r.byIdentity[identityID]))
	for connID := range r.byIdentity[identityID] {
		out = append(out, r.sessions[connID])
	}
	r.mu.RUnlock()
	sortSessions(out)
	return out
}

func (r *Registry) IsOnline(identityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[identityID]) > 0
}

// OnlineOfficers lists officers with at least one live connection, by id.
func (r *Registry) OnlineOfficers() []Identity {
	r.mu.RLock()
	var out []Identity
	for _, conns := range r.byIdentity {
		for connID := range conns {
			if id := r.sessions[connID].Identity; id.IsOfficer() {
				out = append(out, id)
			}
			break
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count is the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func sortSessions(s []Session) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].ConnectedAt.Equal(s[j].ConnectedAt) {
			return s[i].ConnectionID < s[j].ConnectionID
		}
		return s[i].ConnectedAt.Before(s[j].ConnectedAt)
	})
}
