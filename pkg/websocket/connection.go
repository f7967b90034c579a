package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"Guardian/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection 表示一个WebSocket连接
type Connection struct {
	ID        string
	Principal Principal
	UserAgent string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *Hub

	alive    atomic.Bool
	lastSeen atomic.Int64
	// topics 由 Hub.mu 保护
	topics    map[string]bool
	closeOnce sync.Once
}

// NewConnection 创建连接实例；ws 为 nil 时仅用于进程内投递（测试）
func NewConnection(hub *Hub, ws *websocket.Conn, principal Principal, userAgent string) *Connection {
	c := &Connection{
		ID:        generateConnectionID(),
		Principal: principal,
		UserAgent: userAgent,
		Conn:      ws,
		Send:      make(chan []byte, hub.config.MessageBufferSize),
		Hub:       hub,
		topics:    make(map[string]bool),
	}
	c.alive.Store(true)
	c.touch()
	return c
}

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		EnableCompression: cfg.EnableCompression,
		CheckOrigin: func(r *http.Request) bool {
			if len(cfg.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range cfg.AllowedOrigins {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// Serve 升级HTTP连接并启动读写协程
func Serve(hub *Hub, w http.ResponseWriter, r *http.Request, principal Principal) {
	upgrader := newUpgrader(hub.config)
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("websocket upgrade failed: %v", err)
		return
	}

	if hub.config.EnableCompression {
		ws.EnableWriteCompression(true)
		if hub.config.CompressionLevel != 0 {
			_ = ws.SetCompressionLevel(hub.config.CompressionLevel)
		}
	}

	conn := NewConnection(hub, ws, principal, r.UserAgent())
	if err := hub.Register(conn); err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	go conn.writePump()
	go conn.readPump()
}

// generateConnectionID 生成唯一的连接ID
func generateConnectionID() string {
	return "conn_" + uuid.NewString()
}

func (c *Connection) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}

// LastSeen 最近一次收到客户端数据或pong的时间
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Connection) closeTransport() {
	if c.Conn == nil {
		return
	}
	c.closeOnce.Do(func() { _ = c.Conn.Close() })
}

// Topics 当前订阅的主题，已排序
func (c *Connection) Topics() []string {
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// IsSubscribed 是否订阅了主题
func (c *Connection) IsSubscribed(topic string) bool {
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	return c.topics[topic]
}

// Reply 给当前连接单独回复
func (c *Connection) Reply(msgType string, payload interface{}) bool {
	return c.Hub.sendTo(c, msgType, payload)
}

// readPump 读取消息的协程
func (c *Connection) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.closeTransport()
	}()

	c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.touch()
		return c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logrus.Errorf("websocket read error on %s: %v", c.ID, err)
			}
			return
		}
		c.touch()
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))

		c.handleMessage(message)
	}
}

// writePump 发送消息的协程
func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		c.closeTransport()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 每条消息独立成帧，客户端按帧解析JSON
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Connection) handleMessage(raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.replyError(errors.Validation("malformed frame: %v", err))
		return
	}
	c.HandleFrame(frame)
}

// HandleFrame 分发一条入站消息；系统消息在此处理，其余交给业务处理器
func (c *Connection) HandleFrame(frame Frame) {
	switch frame.Type {
	case MessageTypePing:
		c.touch()
		c.Reply(MessageTypePong, nil)
	case MessageTypeSubscribe:
		topic := frame.Topic
		if topic == "" {
			_ = json.Unmarshal(frame.Payload, &topic)
		}
		if err := c.Hub.Subscribe(c, topic); err != nil {
			if errors.GetCode(err) == errors.CodeUnknown {
				err = errors.WrapCode(err, errors.CodeValidation, err.Error())
			}
			c.replyError(err)
			return
		}
		c.Reply(MessageTypeSubscribed, map[string]string{"topic": topic})
	case MessageTypeUnsubscribe:
		topic := frame.Topic
		if topic == "" {
			_ = json.Unmarshal(frame.Payload, &topic)
		}
		c.Hub.Unsubscribe(c, topic)
		c.Reply(MessageTypeUnsubscribed, map[string]string{"topic": topic})
	default:
		_, inbound, _ := c.Hub.hooks()
		if inbound == nil {
			c.replyError(errors.Validation("unknown message type %q", frame.Type))
			return
		}
		timeout := c.Hub.config.HandlerTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(c.Hub.ctx, timeout)
		defer cancel()
		if err := inbound(ctx, c, frame); err != nil {
			c.replyError(err)
		}
	}
}

func (c *Connection) replyError(err error) {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		logrus.Errorf("inbound message on %s failed: %v", c.ID, err)
	}
	c.Reply(MessageTypeError, map[string]interface{}{
		"code":    code,
		"message": errors.GetMessage(err),
	})
}
