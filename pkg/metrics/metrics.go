package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guardian"

// Metrics 指标管理器
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 告警指标
	alertsCreated      *prometheus.CounterVec
	alertTransitions   *prometheus.CounterVec
	alertsActive       prometheus.Gauge
	dispatchCandidates prometheus.Histogram
	dispatchDuration   prometheus.Histogram

	// 推送指标
	notifications *prometheus.CounterVec

	// 在线状态
	officersOnline   prometheus.Gauge
	locationsTracked prometheus.Gauge
	locationsPruned  prometheus.Counter

	// 一次性验证码
	otpIssued   prometheus.Counter
	otpVerified *prometheus.CounterVec
}

// NewMetrics 在给定注册表上创建指标；reg 为 nil 时使用默认注册表
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	f := promauto.With(registerer)

	return &Metrics{
		gatherer: gatherer,

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		alertsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts created, by kind",
		}, []string{"kind"}),
		alertTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_transitions_total",
			Help:      "Alert status transitions, by target status",
		}, []string{"status"}),
		alertsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_in_flight",
			Help:      "Alerts not yet resolved in the dispatcher view",
		}),
		dispatchCandidates: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_candidates",
			Help:      "Officers notified per alert",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		dispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time from alert validation to the last notification",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),

		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound notifications, by mode and result",
		}, []string{"mode", "result"}),

		officersOnline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "officers_online",
			Help:      "Officers with at least one live connection",
		}),
		locationsTracked: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "officer_locations_tracked",
			Help:      "Officer locations held in memory",
		}),
		locationsPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "officer_locations_pruned_total",
			Help:      "Officer locations dropped by the retention job",
		}),

		otpIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_issued_total",
			Help:      "One-time codes issued",
		}),
		otpVerified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verifications_total",
			Help:      "One-time code verifications, by result",
		}, []string{"result"}),
	}
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAlertCreated 记录一次告警派发
func (m *Metrics) RecordAlertCreated(kind string, candidates int, took time.Duration) {
	m.alertsCreated.WithLabelValues(kind).Inc()
	m.dispatchCandidates.Observe(float64(candidates))
	m.dispatchDuration.Observe(took.Seconds())
}

func (m *Metrics) RecordAlertTransition(status string) {
	m.alertTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) SetAlertsInFlight(n int) { m.alertsActive.Set(float64(n)) }

// RecordNotification mode 为 broadcast/unicast，result 为 delivered/no_receiver
func (m *Metrics) RecordNotification(mode, result string) {
	m.notifications.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) SetOfficersOnline(n int)    { m.officersOnline.Set(float64(n)) }
func (m *Metrics) SetLocationsTracked(n int)  { m.locationsTracked.Set(float64(n)) }
func (m *Metrics) AddLocationsPruned(n int)   { m.locationsPruned.Add(float64(n)) }
func (m *Metrics) RecordOTPIssued()           { m.otpIssued.Inc() }
func (m *Metrics) RecordOTPVerified(r string) { m.otpVerified.WithLabelValues(r).Inc() }

// Handler 暴露 /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
