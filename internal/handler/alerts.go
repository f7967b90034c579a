package handlers

import (
	"strings"
	"time"

	"Guardian/internal/dispatch"
	"Guardian/internal/models"
	"Guardian/pkg/errors"
	"Guardian/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

type sosRequest struct {
	Kind      string   `json:"kind"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Details   string   `json:"details"`
}

type alertQuery struct {
	Kind      string `form:"kind"`
	Status    string `form:"status"`
	Reporter  string `form:"reporterId"`
	Responder string `form:"officerId"`
	Since     string `form:"since"`
	models.Pagination
}

func (h *Handlers) handleTriggerSOS(c *gin.Context) {
	var req sosRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Validation("invalid request: %v", err))
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		response.Fail(c, errors.Validation("latitude and longitude are required"))
		return
	}
	alert, err := h.dispatcher.CreateAlert(c.Request.Context(), dispatch.NewAlert{
		Kind:       req.Kind,
		Latitude:   *req.Latitude,
		Longitude:  *req.Longitude,
		Details:    req.Details,
		ReporterID: currentIdentity(c).ID,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, alert)
}

func (h *Handlers) handleAcknowledgeAlert(c *gin.Context) {
	alert, err := h.dispatcher.Acknowledge(c.Request.Context(), c.Param("id"), currentIdentity(c).ID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, alert)
}

func (h *Handlers) handleResolveAlert(c *gin.Context) {
	alert, err := h.dispatcher.Resolve(c.Request.Context(), c.Param("id"), currentIdentity(c).ID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, alert)
}

func (h *Handlers) handleGetAlert(c *gin.Context) {
	alert, err := h.dispatcher.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	me := currentIdentity(c)
	if !me.IsOfficer() && alert.ReporterID != me.ID {
		// citizens only see their own alerts
		response.Fail(c, errors.NotFound("alert %s not found", alert.ID))
		return
	}
	response.Success(c, alert)
}

// handleListAlerts 分页查询；普通用户只能看到自己上报的告警
func (h *Handlers) handleListAlerts(c *gin.Context) {
	var q alertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, errors.Validation("invalid query: %v", err))
		return
	}
	filter := models.AlertFilter{
		Kind:                strings.ToUpper(q.Kind),
		Status:              strings.ToUpper(q.Status),
		ReporterID:          q.Reporter,
		RespondingOfficerID: q.Responder,
	}
	if q.Since != "" {
		since, err := parseSince(q.Since)
		if err != nil {
			response.Fail(c, err)
			return
		}
		filter.Since = since
	}
	if me := currentIdentity(c); !me.IsOfficer() {
		filter.ReporterID = me.ID
	}

	page := q.Pagination.Normalize()
	alerts, total, err := h.dispatcher.List(c.Request.Context(), filter, page)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, response.Page{Items: alerts, Total: total, PageNum: page.PageNum, PageSize: page.PageSize})
}

func (h *Handlers) handleActiveAlerts(c *gin.Context) {
	response.Success(c, h.dispatcher.Active())
}

// parseSince 接受 RFC3339 时间或毫秒时间戳
func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	ms, err := cast.ToInt64E(raw)
	if err != nil {
		return time.Time{}, errors.Validation("since must be RFC3339 or epoch milliseconds")
	}
	return time.UnixMilli(ms).UTC(), nil
}
