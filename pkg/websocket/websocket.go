package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Message 出站消息信封
type Message struct {
	Type        string      `json:"type"`
	Payload     interface{} `json:"payload,omitempty"`
	Timestamp   int64       `json:"timestamp"`
	Destination string      `json:"destination,omitempty"`
}

// Frame 入站消息
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// subscribe/unsubscribe 的目标主题
	Topic string `json:"topic,omitempty"`
}

// Principal 连接所属的已认证身份
type Principal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Listener 连接生命周期回调，在Hub锁外调用
type Listener interface {
	OnConnect(c *Connection)
	OnDisconnect(c *Connection)
}

// InboundHandler 处理业务入站消息；返回的错误以 ERROR 消息回给该连接
type InboundHandler func(ctx context.Context, c *Connection, f Frame) error

// TopicGuard 订阅鉴权，返回错误则拒绝订阅
type TopicGuard func(c *Connection, topic string) error

// Hub 管理所有WebSocket连接
type Hub struct {
	// 注册的连接
	connections map[string]*Connection
	// 用户ID到连接ID的映射
	userConnections map[string]map[string]bool
	// 主题到连接ID的映射
	topicConnections map[string]map[string]bool
	// 连接计数
	connectionCount int64
	// 已投递/丢弃计数
	delivered int64
	dropped   int64

	config *Config
	mu     sync.RWMutex

	hooksMu  sync.RWMutex
	listener Listener
	inbound  InboundHandler
	guard    TopicGuard

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
}

// NewHub 创建新的Hub实例
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		connections:      make(map[string]*Connection),
		userConnections:  make(map[string]map[string]bool),
		topicConnections: make(map[string]map[string]bool),
		config:           config,
		ctx:              ctx,
		cancel:           cancel,
		now:              time.Now,
	}

	go hub.run()
	return hub
}

func (h *Hub) SetListener(l Listener) {
	h.hooksMu.Lock()
	h.listener = l
	h.hooksMu.Unlock()
}

func (h *Hub) SetInboundHandler(fn InboundHandler) {
	h.hooksMu.Lock()
	h.inbound = fn
	h.hooksMu.Unlock()
}

func (h *Hub) SetTopicGuard(g TopicGuard) {
	h.hooksMu.Lock()
	h.guard = g
	h.hooksMu.Unlock()
}

func (h *Hub) hooks() (Listener, InboundHandler, TopicGuard) {
	h.hooksMu.RLock()
	defer h.hooksMu.RUnlock()
	return h.listener, h.inbound, h.guard
}

// run Hub主循环，只负责心跳检查
func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// Register 注册连接，超过最大连接数时返回错误
func (h *Hub) Register(conn *Connection) error {
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return fmt.Errorf("hub closed")
	}
	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		h.mu.Unlock()
		logrus.Warnf("connection limit reached: %d", h.config.MaxConnections)
		return fmt.Errorf("connection limit reached")
	}
	if _, exists := h.connections[conn.ID]; exists {
		h.mu.Unlock()
		return fmt.Errorf("connection %s already registered", conn.ID)
	}

	h.connections[conn.ID] = conn
	atomic.AddInt64(&h.connectionCount, 1)

	if conn.Principal.ID != "" {
		if h.userConnections[conn.Principal.ID] == nil {
			h.userConnections[conn.Principal.ID] = make(map[string]bool)
		}
		h.userConnections[conn.Principal.ID][conn.ID] = true
	}
	count := atomic.LoadInt64(&h.connectionCount)
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"conn": conn.ID, "user": conn.Principal.ID, "role": conn.Principal.Role, "total": count,
	}).Info("websocket connection registered")

	if l, _, _ := h.hooks(); l != nil {
		l.OnConnect(conn)
	}
	return nil
}

// Unregister 注销连接；重复注销无副作用
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	if _, exists := h.connections[conn.ID]; !exists {
		h.mu.Unlock()
		return
	}
	delete(h.connections, conn.ID)
	atomic.AddInt64(&h.connectionCount, -1)

	if uid := conn.Principal.ID; uid != "" && h.userConnections[uid] != nil {
		delete(h.userConnections[uid], conn.ID)
		if len(h.userConnections[uid]) == 0 {
			delete(h.userConnections, uid)
		}
	}
	for topic := range conn.topics {
		h.removeFromTopicLocked(topic, conn.ID)
	}
	conn.alive.Store(false)
	// 发送只在持有读锁且连接仍在表中时发生，这里关闭是安全的
	close(conn.Send)
	count := atomic.LoadInt64(&h.connectionCount)
	h.mu.Unlock()

	logrus.WithFields(logrus.Fields{"conn": conn.ID, "user": conn.Principal.ID, "total": count}).
		Info("websocket connection unregistered")

	if l, _, _ := h.hooks(); l != nil {
		l.OnDisconnect(conn)
	}
}

// Subscribe 订阅主题
func (h *Hub) Subscribe(conn *Connection, topic string) error {
	if topic == "" {
		return fmt.Errorf("topic must not be empty")
	}
	if _, _, guard := h.hooks(); guard != nil {
		if err := guard(conn, topic); err != nil {
			return err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return fmt.Errorf("connection %s not registered", conn.ID)
	}
	if conn.topics[topic] {
		return nil
	}
	if len(conn.topics) >= h.config.MaxTopicsPerConnection {
		return fmt.Errorf("too many subscriptions (max %d)", h.config.MaxTopicsPerConnection)
	}
	conn.topics[topic] = true
	if h.topicConnections[topic] == nil {
		h.topicConnections[topic] = make(map[string]bool)
	}
	h.topicConnections[topic][conn.ID] = true
	return nil
}

// Unsubscribe 取消订阅
func (h *Hub) Unsubscribe(conn *Connection, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !conn.topics[topic] {
		return
	}
	delete(conn.topics, topic)
	h.removeFromTopicLocked(topic, conn.ID)
}

func (h *Hub) removeFromTopicLocked(topic, connID string) {
	if h.topicConnections[topic] != nil {
		delete(h.topicConnections[topic], connID)
		if len(h.topicConnections[topic]) == 0 {
			delete(h.topicConnections, topic)
		}
	}
}

// Publish 发布到主题的所有订阅者，返回成功入队的连接数
func (h *Hub) Publish(topic, msgType string, payload interface{}) int {
	data, err := h.encode(topic, msgType, payload)
	if err != nil {
		logrus.Errorf("encode message for %s failed: %v", topic, err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for connID := range h.topicConnections[topic] {
		if conn, ok := h.connections[connID]; ok && conn.alive.Load() {
			if h.trySend(conn, data) {
				sent++
			}
		}
	}
	return sent
}

// SendToUser 发送给某个身份的全部连接，返回成功入队的连接数；离线返回0
func (h *Hub) SendToUser(userID, destination, msgType string, payload interface{}) int {
	data, err := h.encode(destination, msgType, payload)
	if err != nil {
		logrus.Errorf("encode message for user %s failed: %v", userID, err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for connID := range h.userConnections[userID] {
		if conn, ok := h.connections[connID]; ok && conn.alive.Load() {
			if h.trySend(conn, data) {
				sent++
			}
		}
	}
	return sent
}

// sendTo 回复单个连接
func (h *Hub) sendTo(conn *Connection, msgType string, payload interface{}) bool {
	data, err := h.encode("", msgType, payload)
	if err != nil {
		logrus.Errorf("encode reply failed: %v", err)
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.connections[conn.ID]; !ok {
		return false
	}
	return h.trySend(conn, data)
}

func (h *Hub) encode(destination, msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(&Message{
		Type:        msgType,
		Payload:     payload,
		Timestamp:   h.now().UnixMilli(),
		Destination: destination,
	})
}

// trySend 背压策略，调用方持有读锁
func (h *Hub) trySend(conn *Connection, data []byte) bool {
	if h.config.DropOnFull {
		select {
		case conn.Send <- data:
			atomic.AddInt64(&h.delivered, 1)
			return true
		default:
		}
	} else {
		timeout := h.config.SendTimeout
		if timeout <= 0 {
			timeout = 50 * time.Millisecond
		}
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case conn.Send <- data:
			atomic.AddInt64(&h.delivered, 1)
			return true
		case <-t.C:
		}
	}

	atomic.AddInt64(&h.dropped, 1)
	logrus.Warnf("send buffer of connection %s (user %s) full, message dropped", conn.ID, conn.Principal.ID)
	if h.config.CloseOnBackpressure {
		conn.closeTransport()
	}
	return false
}

// checkHeartbeats 关闭心跳超时的连接，读协程随后完成注销
func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	for _, conn := range h.connections {
		if now.Sub(conn.LastSeen()) > h.config.ConnectionTimeout {
			logrus.Warnf("connection %s heartbeat timeout, closing", conn.ID)
			conn.alive.Store(false)
			conn.closeTransport()
		}
	}
}

// GetConnectionCount 获取当前连接数
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// GetUserConnections 获取用户的连接数
func (h *Hub) GetUserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConnections[userID])
}

// GetTopicConnections 获取主题的订阅连接数
func (h *Hub) GetTopicConnections(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topicConnections[topic])
}

// Stats 运行统计
type Stats struct {
	Connections int64 `json:"connections"`
	Users       int   `json:"users"`
	Topics      int   `json:"topics"`
	Delivered   int64 `json:"delivered"`
	Dropped     int64 `json:"dropped"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Connections: atomic.LoadInt64(&h.connectionCount),
		Users:       len(h.userConnections),
		Topics:      len(h.topicConnections),
		Delivered:   atomic.LoadInt64(&h.delivered),
		Dropped:     atomic.LoadInt64(&h.dropped),
	}
}

// Closed 是否已关闭
func (h *Hub) Closed() bool {
	return h.ctx.Err() != nil
}

// Close 关闭Hub，底层连接关闭后由各自读协程完成注销
func (h *Hub) Close() {
	h.cancel()

	h.mu.RLock()
	for _, conn := range h.connections {
		conn.closeTransport()
	}
	h.mu.RUnlock()

	logrus.Info("websocket hub closed")
}
