package models

import (
	"time"

	"gorm.io/datatypes"
)

type Tool struct {
	ID                 uint              `gorm:"primaryKey" json:"id"`
	Name               string            `gorm:"size:100;index;not null" json:"tool_name"`
	Quantity           int               `gorm:"not null;check:quantity >= 0" json:"quantity"`
	Make               string            `gorm:"size:100" json:"make,omitempty"`
	RangeMM            string            `gorm:"size:100" json:"range_mm,omitempty"`
	IdentificationCode string            `gorm:"size:100" json:"identification_code,omitempty"`
	Location           string            `gorm:"size:100" json:"location,omitempty"`
	Attributes         datatypes.JSONMap `json:"attributes,omitempty"`
	AddedAt            time.Time         `gorm:"not null" json:"added_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusApproved  RequestStatus = "APPROVED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusCollected RequestStatus = "COLLECTED"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCollected:
		return true
	}
	return false
}

// UsageRequest — заявка оператора на N единиц инструмента.
// Переходы только вперёд: PENDING -> APPROVED -> COLLECTED, PENDING -> REJECTED.
type UsageRequest struct {
	ID           uint          `gorm:"primaryKey" json:"-"`
	RequestID    string        `gorm:"uniqueIndex;size:48;not null" json:"request_id"` // TR00001
	RequesterID  uint          `gorm:"index;not null" json:"operator_id"`
	ToolID       uint          `gorm:"index;not null" json:"tool_id"`
	RequestedQty int           `gorm:"not null" json:"requested_qty"`
	Status       RequestStatus `gorm:"size:16;index;not null" json:"status"`
	CreatedAt    time.Time     `json:"requested_at"`
	ReviewedAt   *time.Time    `json:"reviewed_at,omitempty"`
	ReviewerID   *uint         `gorm:"index" json:"reviewer_id,omitempty"`
	Remarks      string        `gorm:"size:255" json:"reviewer_remarks,omitempty"`
	CollectedAt  *time.Time    `json:"collected_at,omitempty"`
}

func (UsageRequest) TableName() string { return "tool_usage_requests" }

type Notification struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"user_id"`
	Role        Role      `gorm:"size:32" json:"role,omitempty"`
	Title       string    `gorm:"size:100" json:"title"`
	Description string    `gorm:"size:255" json:"description"`
	TargetURL   string    `gorm:"size:255" json:"target_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
