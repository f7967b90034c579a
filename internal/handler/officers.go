package handlers

import (
	"context"

	"Guardian/internal/auth"
	"Guardian/internal/models"
	"Guardian/internal/notify"
	"Guardian/pkg/errors"
	"Guardian/pkg/response"

	"github.com/gin-gonic/gin"
)

type locationRequest struct {
	// OfficerID 仅管理员可代为上报
	OfficerID string   `json:"officerId"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type nearbyQuery struct {
	Latitude  *float64 `form:"lat"`
	Longitude *float64 `form:"lon"`
	RadiusKm  float64  `form:"radius"`
}

func (h *Handlers) handleUpdateLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.Validation("invalid request: %v", err))
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		response.Fail(c, errors.Validation("latitude and longitude are required"))
		return
	}
	loc, err := h.updateLocation(c.Request.Context(), currentIdentity(c), req.OfficerID, *req.Latitude, *req.Longitude)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, loc)
}

func (h *Handlers) handleActiveOfficers(c *gin.Context) {
	response.Success(c, h.tracker.ActiveOfficers())
}

func (h *Handlers) handleOnlineOfficers(c *gin.Context) {
	response.Success(c, h.presence.OnlineOfficers())
}

func (h *Handlers) handleNearbyOfficers(c *gin.Context) {
	var q nearbyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, errors.Validation("invalid query: %v", err))
		return
	}
	if q.Latitude == nil || q.Longitude == nil {
		response.Fail(c, errors.Validation("lat and lon are required"))
		return
	}
	radius := q.RadiusKm
	if radius == 0 {
		radius = h.dispatcher.RadiusKm()
	}
	nearby, err := h.tracker.FindWithinRadius(*q.Latitude, *q.Longitude, radius)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, nearby)
}

// updateLocation 记录位置后广播到 officer-locations 主题。officerID 为空时取调用者
func (h *Handlers) updateLocation(ctx context.Context, caller auth.Identity, officerID string, lat, lon float64) (models.OfficerLocation, error) {
	if officerID == "" {
		officerID = caller.ID
	}
	if officerID != caller.ID && caller.Role != models.RoleAdmin {
		return models.OfficerLocation{}, errors.Unauthorized("cannot report location for another officer")
	}
	loc, err := h.tracker.UpdateLocation(ctx, officerID, lat, lon)
	if err != nil {
		return models.OfficerLocation{}, err
	}
	h.notifier.Broadcast(notify.TopicOfficerLocations, notify.OfficerLocationUpdate{
		OfficerID:   loc.OfficerID,
		Latitude:    loc.Latitude,
		Longitude:   loc.Longitude,
		SubmittedBy: caller.ID,
		Timestamp:   notify.Millis(loc.LastUpdated),
	})
	return loc, nil
}
