package handlers

import (
	"Guardian/internal/auth"
	"Guardian/internal/dispatch"
	"Guardian/internal/location"
	"Guardian/internal/models"
	"Guardian/internal/notify"
	"Guardian/internal/presence"
	"Guardian/pkg/metrics"
	"Guardian/pkg/middleware"
	"Guardian/pkg/sse"
	"Guardian/pkg/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps 处理器依赖，全部在 cmd/server 中构造后注入
type Deps struct {
	DB         *gorm.DB
	Dispatcher *dispatch.Dispatcher
	Tracker    *location.Tracker
	Presence   *presence.Registry
	Login      *auth.LoginService
	Tokens     *auth.TokenService
	Hub        *websocket.Hub
	Notifier   notify.Notifier
	Metrics    *metrics.Metrics
	// OTPLimiter 限制验证码接口，为 nil 时不限流
	OTPLimiter *middleware.RateLimiter
	// Stream 事件流，为 nil 时不注册 /stream
	Stream    *sse.Hub
	APIPrefix string
}

type Handlers struct {
	db         *gorm.DB
	dispatcher *dispatch.Dispatcher
	tracker    *location.Tracker
	presence   *presence.Registry
	login      *auth.LoginService
	tokens     *auth.TokenService
	hub        *websocket.Hub
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	otpLimiter *middleware.RateLimiter
	stream     *sse.Hub
	prefix     string
}

func NewHandlers(d Deps) *Handlers {
	prefix := d.APIPrefix
	if prefix == "" {
		prefix = "/api"
	}
	return &Handlers{
		db:         d.DB,
		dispatcher: d.Dispatcher,
		tracker:    d.Tracker,
		presence:   d.Presence,
		login:      d.Login,
		tokens:     d.Tokens,
		hub:        d.Hub,
		notifier:   d.Notifier,
		metrics:    d.Metrics,
		otpLimiter: d.OTPLimiter,
		stream:     d.Stream,
		prefix:     prefix,
	}
}

// Register 注册全部路由并挂接实时消息处理
func (h *Handlers) Register(engine *gin.Engine) {
	if h.metrics != nil {
		engine.Use(metrics.Middleware(h.metrics))
		engine.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
	engine.GET("/health", h.HealthCheck)

	// Realtime
	websocket.RegisterRoutes(engine, websocket.NewHandler(h.hub, h.AuthenticateSocket))
	h.hub.SetInboundHandler(h.HandleInbound)
	h.hub.SetTopicGuard(h.GuardTopic)

	r := engine.Group(h.prefix)
	h.registerAuthRoutes(r)

	authed := r.Group("", middleware.BearerAuth(h.ValidateToken))
	h.registerAlertRoutes(authed)
	h.registerOfficerRoutes(authed)
	h.registerSystemRoutes(authed)
	if h.stream != nil {
		authed.GET("/stream", h.handleStream)
	}
}

// Auth Module
func (h *Handlers) registerAuthRoutes(r *gin.RouterGroup) {
	otp := r.Group("/auth/otp")
	if h.otpLimiter != nil {
		otp.Use(h.otpLimiter.Middleware())
	}
	{
		otp.POST("/request", h.handleRequestOTP)
		otp.POST("/verify", h.handleVerifyOTP)
	}
}

// Alert Module
func (h *Handlers) registerAlertRoutes(r *gin.RouterGroup) {
	alerts := r.Group("/alerts")
	{
		alerts.GET("", h.handleListAlerts)
		alerts.GET("/:id", h.handleGetAlert)
		alerts.POST("/sos", h.handleTriggerSOS)

		responder := alerts.Group("", middleware.RequireRole(models.RoleOfficer, models.RoleAdmin))
		responder.GET("/active", h.handleActiveAlerts)
		responder.POST("/:id/acknowledge", h.handleAcknowledgeAlert)
		responder.POST("/:id/resolve", h.handleResolveAlert)
	}
}

// Officer Module
func (h *Handlers) registerOfficerRoutes(r *gin.RouterGroup) {
	officers := r.Group("/officers")
	{
		officers.GET("/active", h.handleActiveOfficers)
		officers.GET("/online", h.handleOnlineOfficers)
		officers.GET("/nearby", middleware.RequireRole(models.RoleOfficer, models.RoleAdmin), h.handleNearbyOfficers)
		officers.POST("/location", middleware.RequireRole(models.RoleOfficer, models.RoleAdmin), h.handleUpdateLocation)
	}
}

// System Module
func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("/system", middleware.RequireRole(models.RoleAdmin))
	{
		system.PUT("/rate-limit", h.UpdateRateLimiterConfig)
	}
}
