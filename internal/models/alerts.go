package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 警报类型
const (
	AlertKindSOS     = "SOS"
	AlertKindPanic   = "PANIC"
	AlertKindMedical = "MEDICAL"
)

// 警报状态，只能向前流转
const (
	AlertStatusActive       = "ACTIVE"
	AlertStatusAcknowledged = "ACKNOWLEDGED"
	AlertStatusResolved     = "RESOLVED"
)

// Alert 求助警报
type Alert struct {
	ID                  string     `gorm:"primaryKey;size:36" json:"id"`
	Kind                string     `gorm:"size:16;index;not null" json:"kind"`
	Status              string     `gorm:"size:16;index;not null" json:"status"`
	Latitude            float64    `json:"latitude"`
	Longitude           float64    `json:"longitude"`
	Details             string     `gorm:"type:text" json:"details"`
	ReporterID          string     `gorm:"size:64;index" json:"reporterId,omitempty"`          // 触发者
	RespondingOfficerID string     `gorm:"size:64;index" json:"respondingOfficerId,omitempty"` // 响应警员
	AcknowledgedAt      *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedAt          *time.Time `json:"resolvedAt,omitempty"`
	CreatedAt           time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

func (Alert) TableName() string { return "alerts" }

// BeforeCreate 补齐主键与默认值
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Kind == "" {
		a.Kind = AlertKindSOS
	}
	if a.Status == "" {
		a.Status = AlertStatusActive
	}
	return nil
}

// IsOpen 未解决
func (a *Alert) IsOpen() bool { return a.Status != AlertStatusResolved }

// ValidAlertKind 是否为已知类型
func ValidAlertKind(kind string) bool {
	switch kind {
	case AlertKindSOS, AlertKindPanic, AlertKindMedical:
		return true
	}
	return false
}

// ValidAlertStatus 是否为已知状态
func ValidAlertStatus(status string) bool {
	switch status {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved:
		return true
	}
	return false
}

// AlertFilter 列表查询条件，零值字段不参与过滤
type AlertFilter struct {
	Kind                string
	Status              string
	ReporterID          string
	RespondingOfficerID string
	Since               time.Time
}

// Pagination 分页参数
type Pagination struct {
	PageNum  int  `form:"pageNum"`
	PageSize int  `form:"pageSize"`
	Desc     bool `form:"desc"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize 修正非法分页参数
func (p Pagination) Normalize() Pagination {
	if p.PageNum < 1 {
		p.PageNum = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset 当前页的偏移量
func (p Pagination) Offset() int {
	p = p.Normalize()
	return (p.PageNum - 1) * p.PageSize
}
