package models

import "time"

type EndReason string

const (
	EndLogout     EndReason = "LOGOUT"
	EndExpired    EndReason = "EXPIRED"
	EndSuperseded EndReason = "SUPERSEDED"
)

// Session — одна аутентифицированная сессия. Не удаляется, остаётся как аудит.
type Session struct {
	ID        string     `gorm:"primaryKey;size:64" json:"session_id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	Role      Role       `gorm:"size:32;index;not null" json:"role"`
	CreatedAt time.Time  `json:"login_at"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	LogoutAt  *time.Time `gorm:"index" json:"logout_at,omitempty"` // выставляется один раз
	EndReason *EndReason `gorm:"size:32" json:"ended_reason,omitempty"`
	IPAddress string     `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent string     `gorm:"size:255" json:"user_agent,omitempty"`
}

func (s *Session) Ended() bool { return s.LogoutAt != nil }

func (s *Session) Expired(now time.Time) bool { return !s.ExpiresAt.After(now) }

// Live — нет logout и срок ещё не вышел.
func (s *Session) Live(now time.Time) bool { return !s.Ended() && !s.Expired(now) }

// RoleLock — занятость эксклюзивной роли. Строка не удаляется:
// свободная роль = строка без SessionID.
type RoleLock struct {
	Role      Role       `gorm:"primaryKey;size:32" json:"role"`
	SessionID *string    `gorm:"size:64" json:"session_id,omitempty"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (l RoleLock) Held() bool { return l.SessionID != nil }

func (l RoleLock) HeldBy(sessionID string) bool {
	return l.SessionID != nil && *l.SessionID == sessionID
}

func (l *RoleLock) Clear() {
	l.SessionID = nil
	l.LockedAt = nil
}

// SessionLog — строка журнала сессий для офицера: сессия и её владелец.
type SessionLog struct {
	Session
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Active   bool   `json:"active"`
}
