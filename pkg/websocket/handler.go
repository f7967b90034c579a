package websocket

import (
	"net/http"
	"time"

	"Guardian/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Authenticator 从升级请求中解析身份，失败时拒绝升级
type Authenticator func(r *http.Request) (Principal, error)

// Handler WebSocket HTTP处理器
type Handler struct {
	hub  *Hub
	auth Authenticator
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(hub *Hub, auth Authenticator) *Handler {
	return &Handler{hub: hub, auth: auth}
}

// RegisterRoutes 统一注册路由
func RegisterRoutes(r gin.IRouter, handler *Handler) {
	r.GET(RouteWebSocket, handler.HandleWebSocket)
	r.GET(RouteWebSocketStats, handler.GetStats)
	r.GET(RouteWebSocketHealth, handler.HealthCheck)
}

// HandleWebSocket 认证后升级连接
func (h *Handler) HandleWebSocket(c *gin.Context) {
	if h.auth == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication not configured"})
		return
	}
	principal, err := h.auth(c.Request)
	if err != nil {
		logrus.Warnf("websocket authentication failed from %s: %v", c.ClientIP(), err)
		status := http.StatusUnauthorized
		if errors.GetCode(err) == errors.CodeTransient {
			status = http.StatusServiceUnavailable
		}
		c.AbortWithStatusJSON(status, gin.H{"error": errors.GetMessage(err)})
		return
	}
	if h.hub.GetConnectionCount() >= h.hub.config.MaxConnections {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "connection limit reached"})
		return
	}

	Serve(h.hub, c.Writer, c.Request, principal)
}

// GetStats 获取WebSocket统计信息
func (h *Handler) GetStats(c *gin.Context) {
	stats := h.hub.Stats()
	c.JSON(http.StatusOK, gin.H{
		"total_connections": stats.Connections,
		"online_users":      stats.Users,
		"topics":            stats.Topics,
		"delivered":         stats.Delivered,
		"dropped":           stats.Dropped,
		"config":            GetConfigSummary(h.hub.config),
	})
}

// HealthCheck WebSocket健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	if h.hub.Closed() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "hub closed",
		})
		return
	}

	totalConnections := h.hub.GetConnectionCount()
	maxConnections := h.hub.config.MaxConnections

	status := "healthy"
	if totalConnections >= maxConnections*9/10 { // 90%以上认为警告
		status = "warning"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"total_connections": totalConnections,
		"max_connections":   maxConnections,
		"connection_usage":  float64(totalConnections) / float64(maxConnections) * 100,
		"timestamp":         time.Now().Unix(),
	})
}
