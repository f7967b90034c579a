package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishToGroup(t *testing.T) {
	h := NewHub(0)
	a := h.AddClient("a")
	h.AddClient("b")
	h.Join("a", "/topic/sos")

	n, err := h.Publish("/topic/sos", "SOS_ALERT", map[string]string{"alertId": "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "event: SOS_ALERT\ndata: {\"alertId\":\"x\"}\n\n", <-a.Messages())

	h.Leave("a", "/topic/sos")
	n, _ = h.Publish("/topic/sos", "SOS_ALERT", nil)
	assert.Zero(t, n)

	_, err = h.Publish("/topic/sos", "bad", func() {})
	assert.Error(t, err)

	h.RemoveClient("a")
	h.RemoveClient("a")
	assert.Equal(t, 1, h.Clients())
}

func TestPublishSkipsFullClients(t *testing.T) {
	h := NewHub(0)
	h.buffer = 1
	h.AddClient("a")
	h.Join("a", "g")

	n, _ := h.Publish("g", "e", 1)
	assert.Equal(t, 1, n)
	n, _ = h.Publish("g", "e", 2)
	assert.Zero(t, n)
}

func TestServeStreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		h.Serve(c, "client-1", "/topic/sos")
		close(done)
	}()

	require.Eventually(t, func() bool {
		n, _ := h.Publish("/topic/sos", "SOS_ALERT", map[string]int{"n": 1})
		return n == 1
	}, time.Second, 5*time.Millisecond)

	// the message is written before the stream ends
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		cl := h.clients["client-1"]
		return cl != nil && len(cl.ch) == 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "retry: 5000\n\n"))
	assert.Contains(t, body, "event: SOS_ALERT\ndata: {\"n\":1}\n\n")
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Zero(t, h.Clients())
}
