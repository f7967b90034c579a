package models

import "time"

// 角色
const (
	RoleUser    = "USER"
	RoleOfficer = "OFFICER"
	RoleAdmin   = "ADMIN"
)

// OfficerLocation 警员最新位置，每个警员一条
type OfficerLocation struct {
	OfficerID   string    `gorm:"primaryKey;size:64" json:"officerId"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	LastUpdated time.Time `gorm:"index" json:"lastUpdated"`
}

func (OfficerLocation) TableName() string { return "officer_locations" }

// User 只读身份资料
type User struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Name        string    `gorm:"size:128" json:"name"`
	Email       string    `gorm:"size:128;index" json:"email"`
	Phone       string    `gorm:"size:32" json:"-"`
	Role        string    `gorm:"size:16;not null;default:USER" json:"role"`
	NationalID  string    `gorm:"size:12;uniqueIndex" json:"-"`
	BadgeNumber string    `gorm:"size:32" json:"badgeNumber,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// IsOfficer 警员或管理员
func (u *User) IsOfficer() bool { return u.Role == RoleOfficer || u.Role == RoleAdmin }

// AllModels 需要迁移的全部表
func AllModels() []interface{} {
	return []interface{}{&Alert{}, &OfficerLocation{}, &User{}}
}
