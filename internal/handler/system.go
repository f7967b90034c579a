package handlers

import (
	"net/http"

	"Guardian/pkg/errors"
	"Guardian/pkg/middleware"
	"Guardian/pkg/response"

	"github.com/gin-gonic/gin"
)

// UpdateRateLimiterConfig 更新验证码接口的限流配置
func (h *Handlers) UpdateRateLimiterConfig(c *gin.Context) {
	if h.otpLimiter == nil {
		response.Fail(c, errors.Conflict("rate limiter is not enabled"))
		return
	}
	var cfg middleware.RateLimiterConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.Fail(c, errors.Validation("invalid request: %v", err))
		return
	}
	if cfg.Rate == "" {
		response.Fail(c, errors.Validation("rate is required"))
		return
	}

	h.otpLimiter.UpdateConfig(cfg)
	response.Success(c, gin.H{"rate": cfg.Rate})
}

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	// 检查数据库连接
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}
	if h.hub.Closed() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "realtime hub closed"})
		return
	}

	// 返回健康状态
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"connections":     h.hub.GetConnectionCount(),
		"officers_online": len(h.presence.OnlineOfficers()),
		"alerts_in_open":  h.dispatcher.InFlight(),
		"locations":       h.tracker.Len(),
	})
}
