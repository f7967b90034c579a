package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"Guardian/internal/auth"
	"Guardian/internal/dispatch"
	"Guardian/internal/models"
	"Guardian/internal/notify"
	"Guardian/pkg/errors"
	"Guardian/pkg/geo"
	"Guardian/pkg/logger"
	"Guardian/pkg/websocket"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// 入站业务消息类型
const (
	InboundSOSTrigger       = "sos.trigger"
	InboundOfficerLocation  = "officer.location"
	InboundAlertAcknowledge = "alert.acknowledge"
	InboundAlertResolve     = "alert.resolve"
	InboundIncidentReport   = "incident.report"
)

// 主题前缀
const (
	topicPrefix = "/topic/"
	alertPrefix = "/topic/alerts/"
)

// HandleInbound 路由业务入站消息，成功时回复 "<type>.ok"
func (h *Handlers) HandleInbound(ctx context.Context, c *websocket.Connection, f websocket.Frame) error {
	caller := auth.Identity{ID: c.Principal.ID, Name: c.Principal.Name, Role: c.Principal.Role}
	payload, err := decodePayload(f.Payload)
	if err != nil {
		return err
	}

	var result interface{}
	switch f.Type {
	case InboundSOSTrigger:
		result, err = h.inboundSOS(ctx, caller, payload)
	case InboundOfficerLocation:
		result, err = h.inboundLocation(ctx, caller, payload)
	case InboundAlertAcknowledge:
		if err = requireOfficer(caller); err == nil {
			result, err = h.dispatcher.Acknowledge(ctx, cast.ToString(payload["alertId"]), caller.ID)
		}
	case InboundAlertResolve:
		if err = requireOfficer(caller); err == nil {
			result, err = h.dispatcher.Resolve(ctx, cast.ToString(payload["alertId"]), caller.ID)
		}
	case InboundIncidentReport:
		result, err = h.inboundIncident(caller, payload)
	default:
		return errors.Validation("unknown message type %q", f.Type)
	}
	if err != nil {
		logger.Debug("inbound message rejected",
			zap.String("conn", c.ID),
			zap.String("type", f.Type),
			zap.Error(err))
		return err
	}
	c.Reply(f.Type+".ok", result)
	return nil
}

func (h *Handlers) inboundSOS(ctx context.Context, caller auth.Identity, p map[string]interface{}) (*models.Alert, error) {
	lat, lon, err := coordinates(p, true)
	if err != nil {
		return nil, err
	}
	return h.dispatcher.CreateAlert(ctx, dispatch.NewAlert{
		Kind:       cast.ToString(p["kind"]),
		Latitude:   *lat,
		Longitude:  *lon,
		Details:    cast.ToString(p["details"]),
		ReporterID: caller.ID,
	})
}

func (h *Handlers) inboundLocation(ctx context.Context, caller auth.Identity, p map[string]interface{}) (models.OfficerLocation, error) {
	if err := requireOfficer(caller); err != nil {
		return models.OfficerLocation{}, err
	}
	lat, lon, err := coordinates(p, true)
	if err != nil {
		return models.OfficerLocation{}, err
	}
	return h.updateLocation(ctx, caller, cast.ToString(p["officerId"]), *lat, *lon)
}

// inboundIncident 转发事件报告，不落库
func (h *Handlers) inboundIncident(caller auth.Identity, p map[string]interface{}) (notify.NewIncident, error) {
	description := strings.TrimSpace(cast.ToString(p["description"]))
	if description == "" {
		return notify.NewIncident{}, errors.Validation("description is required")
	}
	lat, lon, err := coordinates(p, false)
	if err != nil {
		return notify.NewIncident{}, err
	}
	if lat != nil {
		if err := geo.Validate(*lat, *lon); err != nil {
			return notify.NewIncident{}, err
		}
	}
	ev := notify.NewIncident{
		IncidentType: cast.ToString(p["incidentType"]),
		Description:  description,
		Latitude:     lat,
		Longitude:    lon,
		ReportedBy:   caller.ID,
		Timestamp:    notify.Millis(time.Now()),
	}
	h.notifier.Broadcast(notify.TopicIncidents, ev)
	return ev, nil
}

// GuardTopic 订阅鉴权：警员状态与位置主题只对警员和管理员开放
func (h *Handlers) GuardTopic(c *websocket.Connection, topic string) error {
	return topicAllowed(c.Principal.Role, topic)
}

func topicAllowed(role, topic string) error {
	if !strings.HasPrefix(topic, topicPrefix) {
		return errors.Validation("unknown topic %q", topic)
	}
	switch {
	case topic == notify.TopicSOS, topic == notify.TopicIncidents:
		return nil
	case topic == notify.TopicOfficerLocations, topic == notify.TopicOfficerStatus:
		return requireOfficer(auth.Identity{Role: role})
	case strings.HasPrefix(topic, alertPrefix) && len(topic) > len(alertPrefix):
		return nil
	default:
		return errors.Validation("unknown topic %q", topic)
	}
}

func requireOfficer(id auth.Identity) error {
	if !id.IsOfficer() {
		return errors.Unauthorized("officer role required")
	}
	return nil
}

func decodePayload(raw json.RawMessage) (map[string]interface{}, error) {
	p := map[string]interface{}{}
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Validation("payload must be a JSON object")
	}
	return p, nil
}

// coordinates 读取 latitude/longitude，数字或数字字符串均可
func coordinates(p map[string]interface{}, required bool) (*float64, *float64, error) {
	rawLat, hasLat := p["latitude"]
	rawLon, hasLon := p["longitude"]
	if !hasLat || !hasLon || rawLat == nil || rawLon == nil {
		if required || hasLat != hasLon {
			return nil, nil, errors.Validation("latitude and longitude are required")
		}
		return nil, nil, nil
	}
	lat, err := cast.ToFloat64E(rawLat)
	if err != nil {
		return nil, nil, errors.Validation("latitude is not a number")
	}
	lon, err := cast.ToFloat64E(rawLon)
	if err != nil {
		return nil, nil, errors.Validation("longitude is not a number")
	}
	return &lat, &lon, nil
}
