package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"Guardian/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
}

func (l *recordingListener) OnConnect(c *Connection) {
	l.mu.Lock()
	l.connected = append(l.connected, c.ID)
	l.mu.Unlock()
}

func (l *recordingListener) OnDisconnect(c *Connection) {
	l.mu.Lock()
	l.disconnected = append(l.disconnected, c.ID)
	l.mu.Unlock()
}

func newTestConn(t *testing.T, hub *Hub, userID string) *Connection {
	t.Helper()
	conn := NewConnection(hub, nil, Principal{ID: userID, Name: userID, Role: "OFFICER"}, "test-agent")
	require.NoError(t, hub.Register(conn))
	return conn
}

func nextMessage(t *testing.T, conn *Connection) Message {
	t.Helper()
	select {
	case data := <-conn.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message for %s", conn.ID)
	}
	return Message{}
}

func assertNoMessage(t *testing.T, conn *Connection) {
	t.Helper()
	select {
	case data := <-conn.Send:
		t.Fatalf("unexpected message for %s: %s", conn.ID, data)
	default:
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	assert.Equal(t, int64(DefaultMaxConnections), hub.config.MaxConnections)
	assert.Equal(t, 30*time.Second, hub.config.HeartbeatInterval)
	assert.False(t, hub.Closed())
}

func TestHubConnectionManagement(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	listener := &recordingListener{}
	hub.SetListener(listener)

	c1 := newTestConn(t, hub, "officer-1")
	c2 := newTestConn(t, hub, "officer-1")

	assert.Equal(t, int64(2), hub.GetConnectionCount())
	assert.Equal(t, 2, hub.GetUserConnections("officer-1"))
	assert.Error(t, hub.Register(c1), "duplicate registration")

	hub.Unregister(c1)
	hub.Unregister(c1)
	assert.Equal(t, int64(1), hub.GetConnectionCount())
	assert.Equal(t, 1, hub.GetUserConnections("officer-1"))

	hub.Unregister(c2)
	assert.Equal(t, 0, hub.GetUserConnections("officer-1"))

	assert.Equal(t, []string{c1.ID, c2.ID}, listener.connected)
	assert.Equal(t, []string{c1.ID, c2.ID}, listener.disconnected)
}

func TestHubRejectsOverLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 1
	hub := NewHub(cfg)
	defer hub.Close()

	newTestConn(t, hub, "u1")
	extra := NewConnection(hub, nil, Principal{ID: "u2"}, "")
	assert.Error(t, hub.Register(extra))
}

func TestPublishReachesSubscribersOnly(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	sub := newTestConn(t, hub, "dash-1")
	other := newTestConn(t, hub, "dash-2")
	require.NoError(t, hub.Subscribe(sub, "/topic/sos"))
	require.NoError(t, hub.Subscribe(sub, "/topic/sos"))
	assert.Equal(t, 1, hub.GetTopicConnections("/topic/sos"))

	n := hub.Publish("/topic/sos", "SOS_ALERT", map[string]string{"alertId": "a1"})
	assert.Equal(t, 1, n)

	msg := nextMessage(t, sub)
	assert.Equal(t, "SOS_ALERT", msg.Type)
	assert.Equal(t, "/topic/sos", msg.Destination)
	assert.NotZero(t, msg.Timestamp)
	assert.Equal(t, "a1", msg.Payload.(map[string]interface{})["alertId"])
	assertNoMessage(t, other)

	hub.Unsubscribe(sub, "/topic/sos")
	assert.Equal(t, 0, hub.Publish("/topic/sos", "SOS_ALERT", nil))
	assert.Equal(t, 0, hub.GetTopicConnections("/topic/sos"))
}

func TestSendToUser(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	a := newTestConn(t, hub, "officer-1")
	b := newTestConn(t, hub, "officer-1")
	c := newTestConn(t, hub, "officer-2")

	n := hub.SendToUser("officer-1", "/queue/alerts", "NEARBY_SOS_ALERT", map[string]float64{"distance": 1.5})
	assert.Equal(t, 2, n)
	assert.Equal(t, "/queue/alerts", nextMessage(t, a).Destination)
	assert.Equal(t, "NEARBY_SOS_ALERT", nextMessage(t, b).Type)
	assertNoMessage(t, c)

	assert.Equal(t, 0, hub.SendToUser("offline", "/queue/alerts", "NEARBY_SOS_ALERT", nil))
}

func TestDropOnFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MessageBufferSize = 1
	hub := NewHub(cfg)
	defer hub.Close()

	conn := newTestConn(t, hub, "slow")
	assert.Equal(t, 1, hub.SendToUser("slow", "/queue/alerts", "A", nil))
	assert.Equal(t, 0, hub.SendToUser("slow", "/queue/alerts", "B", nil))

	stats := hub.Stats()
	assert.Equal(t, int64(1), stats.Delivered)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, "A", nextMessage(t, conn).Type)
}

func TestUnregisterDropsSubscriptions(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := newTestConn(t, hub, "u1")
	require.NoError(t, hub.Subscribe(conn, "/topic/incidents"))
	hub.Unregister(conn)

	assert.Equal(t, 0, hub.GetTopicConnections("/topic/incidents"))
	assert.Error(t, hub.Subscribe(conn, "/topic/incidents"))
	assert.Equal(t, 0, hub.Publish("/topic/incidents", "NEW_INCIDENT", nil))
}

func TestSubscriptionLimitsAndGuard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTopicsPerConnection = 1
	hub := NewHub(cfg)
	defer hub.Close()
	hub.SetTopicGuard(func(c *Connection, topic string) error {
		if strings.HasPrefix(topic, "/topic/admin") {
			return errors.Unauthorized("topic %s is restricted", topic)
		}
		return nil
	})

	conn := newTestConn(t, hub, "u1")
	err := hub.Subscribe(conn, "/topic/admin/audit")
	require.Error(t, err)
	assert.True(t, errors.IsUnauthorized(err))

	require.NoError(t, hub.Subscribe(conn, "/topic/sos"))
	assert.Error(t, hub.Subscribe(conn, "/topic/incidents"))
	assert.Equal(t, []string{"/topic/sos"}, conn.Topics())
	assert.Error(t, hub.Subscribe(conn, ""))
}

func TestHandleFrameSystemMessages(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	conn := newTestConn(t, hub, "u1")

	conn.HandleFrame(Frame{Type: MessageTypePing})
	assert.Equal(t, MessageTypePong, nextMessage(t, conn).Type)

	conn.HandleFrame(Frame{Type: MessageTypeSubscribe, Topic: "/topic/sos"})
	assert.Equal(t, MessageTypeSubscribed, nextMessage(t, conn).Type)
	assert.True(t, conn.IsSubscribed("/topic/sos"))

	conn.HandleFrame(Frame{Type: MessageTypeUnsubscribe, Payload: json.RawMessage(`"/topic/sos"`)})
	assert.Equal(t, MessageTypeUnsubscribed, nextMessage(t, conn).Type)
	assert.False(t, conn.IsSubscribed("/topic/sos"))

	conn.HandleFrame(Frame{Type: "sos.trigger"})
	msg := nextMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.EqualValues(t, errors.CodeValidation, msg.Payload.(map[string]interface{})["code"])

	conn.handleMessage([]byte("{not json"))
	assert.Equal(t, MessageTypeError, nextMessage(t, conn).Type)
}

func TestHandleFrameDelegatesToInbound(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	var got Frame
	hub.SetInboundHandler(func(ctx context.Context, c *Connection, f Frame) error {
		got = f
		if f.Type == "alert.acknowledge" {
			return errors.Conflict("alert already resolved")
		}
		return nil
	})
	conn := newTestConn(t, hub, "officer-1")

	conn.HandleFrame(Frame{Type: "officer.location", Payload: json.RawMessage(`{"latitude":1,"longitude":2}`)})
	assert.Equal(t, "officer.location", got.Type)
	assertNoMessage(t, conn)

	conn.HandleFrame(Frame{Type: "alert.acknowledge"})
	msg := nextMessage(t, conn)
	assert.Equal(t, MessageTypeError, msg.Type)
	payload := msg.Payload.(map[string]interface{})
	assert.EqualValues(t, errors.CodeConflict, payload["code"])
	assert.Equal(t, "alert already resolved", payload["message"])
}

func TestWebSocketHandler(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	handler := NewHandler(hub, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, RouteWebSocketStats, nil)
	handler.GetStats(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Contains(t, response, "total_connections")

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, RouteWebSocket, nil)
	handler.HandleWebSocket(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	defer hub.Close()
	listener := &recordingListener{}
	hub.SetListener(listener)

	auth := func(r *http.Request) (Principal, error) {
		token := r.URL.Query().Get("token")
		if token == "" {
			return Principal{}, errors.Unauthorized("missing token")
		}
		return Principal{ID: token, Name: token, Role: "OFFICER"}, nil
	}
	r := gin.New()
	RegisterRoutes(r, NewHandler(hub, auth))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + RouteWebSocket

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ws, _, err := websocket.DefaultDialer.Dial(url+"?token=officer-7", nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(Frame{Type: MessageTypeSubscribe, Topic: "/topic/sos"}))
	var ack Message
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, ws.ReadJSON(&ack))
	assert.Equal(t, MessageTypeSubscribed, ack.Type)

	assert.Equal(t, 1, hub.Publish("/topic/sos", "SOS_ALERT", map[string]string{"alertId": "a9"}))
	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "SOS_ALERT", msg.Type)

	assert.Equal(t, 1, hub.SendToUser("officer-7", "/queue/alerts", "NEARBY_SOS_ALERT", nil))
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, "/queue/alerts", msg.Destination)

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return hub.GetConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	listener.mu.Lock()
	defer listener.mu.Unlock()
	assert.Len(t, listener.connected, 1)
	assert.Len(t, listener.disconnected, 1)
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, ValidateConfig(DefaultConfig()))

	invalid := DefaultConfig()
	invalid.HeartbeatInterval = 2 * invalid.ConnectionTimeout
	assert.Error(t, ValidateConfig(invalid))

	invalid = DefaultConfig()
	invalid.MaxTopicsPerConnection = 0
	assert.Error(t, ValidateConfig(invalid))

	assert.Error(t, ValidateConfig(nil))
}

func TestConfigLoading(t *testing.T) {
	t.Setenv(EnvWebSocketMaxConnections, "10")
	t.Setenv(EnvWebSocketDropOnFull, "false")
	t.Setenv(EnvWebSocketAllowedOrigins, "https://a.example, https://b.example")

	cfg := LoadConfigFromEnv()
	assert.Equal(t, int64(10), cfg.MaxConnections)
	assert.False(t, cfg.DropOnFull)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.NoError(t, ValidateConfig(cfg))
}
