package models

import (
	"slices"
	"time"
)

// Role — закрытый набор ролей системы.
type Role string

const (
	RoleOperator   Role = "OPERATOR"
	RoleOfficer    Role = "OFFICER"
	RoleSupervisor Role = "SUPERVISOR"
)

// ExclusiveRoles — роли, которые одновременно может держать только одна живая сессия.
var ExclusiveRoles = []Role{RoleOfficer, RoleSupervisor}

func (r Role) Exclusive() bool { return slices.Contains(ExclusiveRoles, r) }

func (r Role) Valid() bool {
	switch r {
	case RoleOperator, RoleOfficer, RoleSupervisor:
		return true
	}
	return false
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:64;not null" json:"username"`
	FullName     string    `gorm:"size:128" json:"full_name"`
	Email        string    `gorm:"size:255;index" json:"email,omitempty"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         Role      `gorm:"size:32;index;not null" json:"role"`
	IsActive     bool      `gorm:"not null;default:false" json:"is_active"` // только для UX, не источник правды о занятости роли
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// All — модели для AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Session{},
		&RoleLock{},
		&Tool{},
		&UsageRequest{},
		&Notification{},
	}
}
