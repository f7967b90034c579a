package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAlertCreated("SOS", 2, 3*time.Millisecond)
	m.RecordAlertCreated("SOS", 0, time.Millisecond)
	m.RecordAlertTransition("ACKNOWLEDGED")
	m.RecordNotification("unicast", "delivered")
	m.RecordNotification("unicast", "delivered")
	m.SetOfficersOnline(4)
	m.AddLocationsPruned(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertsCreated.WithLabelValues("SOS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertTransitions.WithLabelValues("ACKNOWLEDGED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues("unicast", "delivered")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.officersOnline))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.locationsPruned))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/api/alerts/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/alerts/abc", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/alerts/:id", "404")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "guardian_http_requests_total")
}
