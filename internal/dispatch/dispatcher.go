// Package dispatch owns the alert lifecycle: it persists new alerts, notifies the
// officers near them and moves them through ACTIVE, ACKNOWLEDGED and RESOLVED.
package dispatch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"Guardian/internal/location"
	"Guardian/internal/models"
	"Guardian/internal/notify"
	"Guardian/pkg/errors"
	"Guardian/pkg/geo"
	"Guardian/pkg/logger"
	"Guardian/pkg/metrics"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	DefaultRadiusKm  = 5.0
	DefaultCacheSize = 1024
)

// AlertStore is the durable record store for alerts.
type AlertStore interface {
	Save(ctx context.Context, a *models.Alert) error
	// Transition stores the lifecycle fields of a only if the current status is
	// one of from, reporting whether it did.
	Transition(ctx context.Context, a *models.Alert, from ...string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Alert, error)
	FindAll(ctx context.Context, filter models.AlertFilter, page models.Pagination) ([]models.Alert, int64, error)
}

// Locator finds officers around a point. *location.Tracker satisfies it.
type Locator interface {
	FindWithinRadius(lat, lon, radiusKm float64) ([]location.Nearby, error)
}

// NewAlert is the input of CreateAlert.
type NewAlert struct {
	Kind       string  `json:"kind"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Details    string  `json:"details"`
	ReporterID string  `json:"-"`
}

type Dispatcher struct {
	store    AlertStore
	locator  Locator
	notifier notify.Notifier
	radiusKm float64
	metrics  *metrics.Metrics
	now      func() time.Time

	// open alerts, most recently touched kept on eviction
	inflight *lru.Cache[string, models.Alert]
	// recently resolved ids; a late acknowledge must not re-add them to inflight
	resolved *lru.Cache[string, struct{}]
	viewMu   sync.Mutex
}

type Option func(*Dispatcher)

func WithRadius(km float64) Option {
	return func(d *Dispatcher) {
		if km > 0 {
			d.radiusKm = km
		}
	}
}

func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

func WithMetrics(m *metrics.Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

// WithCacheSize bounds the in-flight view. Non-positive sizes keep the default.
func WithCacheSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.inflight, _ = lru.New[string, models.Alert](n)
			d.resolved, _ = lru.New[string, struct{}](n)
		}
	}
}

func New(store AlertStore, locator Locator, n notify.Notifier, opts ...Option) *Dispatcher {
	inflight, _ := lru.New[string, models.Alert](DefaultCacheSize)
	resolved, _ := lru.New[string, struct{}](DefaultCacheSize)
	d := &Dispatcher{
		store:    store,
		locator:  locator,
		notifier: n,
		radiusKm: DefaultRadiusKm,
		now:      time.Now,
		inflight: inflight,
		resolved: resolved,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RadiusKm is the notification radius around a new alert.
func (d *Dispatcher) RadiusKm() float64 { return d.radiusKm }

// CreateAlert persists a new ACTIVE alert, then notifies every officer within the
// radius on their alert queue and announces the alert on the SOS topic. An
// officer who raised the alert is not sent their own nearby notice. Nothing is
// sent if the alert could not be saved.
func (d *Dispatcher) CreateAlert(ctx context.Context, in NewAlert) (*models.Alert, error) {
	start := d.now()

	kind := strings.ToUpper(strings.TrimSpace(in.Kind))
	if kind == "" {
		kind = models.AlertKindSOS
	}
	if !models.ValidAlertKind(kind) {
		return nil, errors.Validation("unknown alert kind %q", in.Kind)
	}
	if err := geo.Validate(in.Latitude, in.Longitude); err != nil {
		return nil, err
	}

	now := start.UTC()
	alert := &models.Alert{
		ID:         uuid.NewString(),
		Kind:       kind,
		Status:     models.AlertStatusActive,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Details:    in.Details,
		ReporterID: in.ReporterID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := d.store.Save(ctx, alert); err != nil {
		return nil, transient(err, "save alert")
	}
	d.track(*alert)

	nearby, err := d.locator.FindWithinRadius(alert.Latitude, alert.Longitude, d.radiusKm)
	if err != nil {
		// the alert is durable; dashboards still get the broadcast
		logger.Error("find nearby officers failed", zap.String("alert", alert.ID), zap.Error(err))
	}

	notified := 0
	for _, officer := range nearby {
		if officer.OfficerID == alert.ReporterID {
			continue
		}
		d.send(func() {
			d.notifier.Unicast(officer.OfficerID, notify.QueueAlerts, notify.NearbySOSAlert{
				AlertID:   alert.ID,
				Kind:      alert.Kind,
				Latitude:  alert.Latitude,
				Longitude: alert.Longitude,
				Details:   alert.Details,
				Distance:  officer.DistanceKm,
			})
		})
		notified++
	}
	d.send(func() {
		d.notifier.Broadcast(notify.TopicSOS, notify.SOSAlert{
			AlertID:   alert.ID,
			Kind:      alert.Kind,
			Latitude:  alert.Latitude,
			Longitude: alert.Longitude,
			Details:   alert.Details,
			Sender:    alert.ReporterID,
			Notified:  notified,
			Timestamp: notify.Millis(now),
		})
	})

	logger.Info("alert created",
		zap.String("alert", alert.ID),
		zap.String("kind", alert.Kind),
		zap.Int("notified", notified))
	if d.metrics != nil {
		d.metrics.RecordAlertCreated(alert.Kind, notified, d.now().Sub(start))
		d.metrics.RecordAlertTransition(models.AlertStatusActive)
	}
	return alert, nil
}

// Acknowledge records officerID as the responder. Acknowledging again overwrites
// the responder; acknowledging a resolved alert is a conflict, also when the
// resolve lands between the read and the write.
func (d *Dispatcher) Acknowledge(ctx context.Context, alertID, officerID string) (*models.Alert, error) {
	if officerID == "" {
		return nil, errors.Validation("officer id is required")
	}
	alert, err := d.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status == models.AlertStatusResolved {
		return nil, errors.Conflict("alert %s is already resolved", alertID)
	}

	now := d.now().UTC()
	alert.Status = models.AlertStatusAcknowledged
	alert.RespondingOfficerID = officerID
	alert.AcknowledgedAt = &now
	alert.UpdatedAt = now
	ok, err := d.store.Transition(ctx, alert, models.AlertStatusActive, models.AlertStatusAcknowledged)
	if err != nil {
		return nil, transient(err, "save alert")
	}
	if !ok {
		current, err := d.load(ctx, alertID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.AlertStatusResolved {
			d.retire(alertID)
			return nil, errors.Conflict("alert %s is already resolved", alertID)
		}
		// unchanged row, some drivers count only changed rows
		if current.RespondingOfficerID != officerID {
			return nil, errors.Conflict("alert %s changed concurrently", alertID)
		}
		alert = current
	}
	d.track(*alert)

	d.send(func() {
		d.notifier.Broadcast(notify.AlertTopic(alert.ID), notify.AlertAcknowledged{
			AlertID:   alert.ID,
			OfficerID: officerID,
			Timestamp: notify.Millis(now),
		})
	})
	if d.metrics != nil {
		d.metrics.RecordAlertTransition(models.AlertStatusAcknowledged)
	}
	return alert, nil
}

// Resolve closes the alert. Resolving a resolved alert changes nothing and
// announces nothing.
func (d *Dispatcher) Resolve(ctx context.Context, alertID, resolvedBy string) (*models.Alert, error) {
	alert, err := d.load(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status == models.AlertStatusResolved {
		d.retire(alert.ID)
		return alert, nil
	}

	now := d.now().UTC()
	alert.Status = models.AlertStatusResolved
	alert.ResolvedAt = &now
	alert.UpdatedAt = now
	ok, err := d.store.Transition(ctx, alert, models.AlertStatusActive, models.AlertStatusAcknowledged)
	if err != nil {
		return nil, transient(err, "save alert")
	}
	d.retire(alert.ID)
	if !ok {
		// resolved by someone else in the meantime
		return d.load(ctx, alertID)
	}

	d.send(func() {
		d.notifier.Broadcast(notify.AlertTopic(alert.ID), notify.AlertResolved{
			AlertID:    alert.ID,
			ResolvedBy: resolvedBy,
			Timestamp:  notify.Millis(now),
		})
	})
	if d.metrics != nil {
		d.metrics.RecordAlertTransition(models.AlertStatusResolved)
	}
	return alert, nil
}

// Get reads the alert from the store.
func (d *Dispatcher) Get(ctx context.Context, alertID string) (*models.Alert, error) {
	return d.load(ctx, alertID)
}

func (d *Dispatcher) List(ctx context.Context, filter models.AlertFilter, page models.Pagination) ([]models.Alert, int64, error) {
	if filter.Status != "" && !models.ValidAlertStatus(filter.Status) {
		return nil, 0, errors.Validation("unknown alert status %q", filter.Status)
	}
	if filter.Kind != "" && !models.ValidAlertKind(filter.Kind) {
		return nil, 0, errors.Validation("unknown alert kind %q", filter.Kind)
	}
	alerts, total, err := d.store.FindAll(ctx, filter, page)
	if err != nil {
		return nil, 0, transient(err, "list alerts")
	}
	return alerts, total, nil
}

// Active lists the open alerts this instance has seen, newest first.
func (d *Dispatcher) Active() []models.Alert {
	out := d.inflight.Values()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// InFlight is the size of the open alert view.
func (d *Dispatcher) InFlight() int { return d.inflight.Len() }

func (d *Dispatcher) load(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, errors.Validation("alert id is required")
	}
	alert, err := d.store.FindByID(ctx, alertID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		return nil, transient(err, "load alert")
	}
	return alert, nil
}

func (d *Dispatcher) track(a models.Alert) {
	d.viewMu.Lock()
	if a.IsOpen() && !d.resolved.Contains(a.ID) {
		d.inflight.Add(a.ID, a)
	}
	d.viewMu.Unlock()
	d.gauge()
}

func (d *Dispatcher) retire(alertID string) {
	d.viewMu.Lock()
	d.resolved.Add(alertID, struct{}{})
	d.inflight.Remove(alertID)
	d.viewMu.Unlock()
	d.gauge()
}

func (d *Dispatcher) gauge() {
	if d.metrics != nil {
		d.metrics.SetAlertsInFlight(d.inflight.Len())
	}
}

// send runs one notification; a failing notifier never fails the operation.
func (d *Dispatcher) send(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("notification panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

func transient(err error, msg string) error {
	if errors.GetCode(err) != errors.CodeUnknown {
		return err
	}
	return errors.Transient(err, "%s", msg)
}
