package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"toolcrib/internal/models"
	"toolcrib/internal/sessions"
)

// SessionStore — сессии и строки ролей. Занятость роли сериализуется
// SELECT ... FOR UPDATE по строке role_locks.
type SessionStore struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewSessionStore(db *gorm.DB, lockTimeout time.Duration) *SessionStore {
	return &SessionStore{db: db, lockTimeout: lockTimeout}
}

func (s *SessionStore) InTx(ctx context.Context, fn func(tx sessions.Tx) error) error {
	return inTx(ctx, s.db, s.lockTimeout, func(g *gorm.DB) error {
		return fn(&sessionTx{g: g})
	})
}

func (s *SessionStore) OpenSessions(ctx context.Context) ([]models.Session, error) {
	var out []models.Session
	err := s.db.WithContext(ctx).
		Where("logout_at IS NULL").
		Order("created_at").
		Find(&out).Error
	return out, err
}

// SessionLogs — журнал сессий: выборка по фильтрам, затем владельцы одним запросом.
func (s *SessionStore) SessionLogs(ctx context.Context, q sessions.LogQuery) ([]models.SessionLog, error) {
	db := s.db.WithContext(ctx)
	sq := db.Model(&models.Session{})
	if q.Role != "" {
		sq = sq.Where("role = ?", q.Role)
	}
	if q.Username != "" {
		sq = sq.Where("user_id IN (?)", db.Model(&models.User{}).Select("id").Where("username = ?", q.Username))
	}
	var rows []models.Session
	if err := sq.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(rows))
	seen := make(map[uint]bool, len(rows))
	for _, r := range rows {
		if !seen[r.UserID] {
			seen[r.UserID] = true
			ids = append(ids, r.UserID)
		}
	}
	users := make(map[uint]models.User, len(ids))
	if len(ids) > 0 {
		var list []models.User
		if err := db.Where("id IN ?", ids).Find(&list).Error; err != nil {
			return nil, err
		}
		for _, u := range list {
			users[u.ID] = u
		}
	}

	out := make([]models.SessionLog, 0, len(rows))
	for _, r := range rows {
		u := users[r.UserID]
		out = append(out, models.SessionLog{Session: r, Username: u.Username, FullName: u.FullName})
	}
	return out, nil
}

func (s *SessionStore) Ping(ctx context.Context) error { return ping(ctx, s.db) }

type sessionTx struct{ g *gorm.DB }

func (t *sessionTx) CreateSession(ctx context.Context, sess *models.Session) error {
	return t.g.WithContext(ctx).Create(sess).Error
}

func (t *sessionTx) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return takeOne[models.Session](t.g.WithContext(ctx).Where("id = ?", id))
}

// EndSession — условное обновление: logout_at выставляется ровно один раз.
func (t *sessionTx) EndSession(ctx context.Context, id string, at time.Time, reason models.EndReason) (bool, error) {
	res := t.g.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND logout_at IS NULL", id).
		Updates(map[string]any{"logout_at": at.UTC(), "end_reason": reason})
	return res.RowsAffected == 1, res.Error
}

// LockRole: строка роли создаётся лениво и дальше не удаляется,
// свободная роль — session_id IS NULL.
func (t *sessionTx) LockRole(ctx context.Context, role models.Role) (*models.RoleLock, error) {
	q := func() (*models.RoleLock, error) {
		return takeOne[models.RoleLock](t.g.WithContext(ctx).Clauses(forUpdate).Where("role = ?", role))
	}
	l, err := q()
	if err != nil || l != nil {
		return l, err
	}
	err = t.g.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RoleLock{Role: role}).Error
	if err != nil {
		return nil, err
	}
	return q()
}

func (t *sessionTx) SaveRoleLock(ctx context.Context, l *models.RoleLock) error {
	return t.g.WithContext(ctx).Model(&models.RoleLock{}).
		Where("role = ?", l.Role).
		Updates(map[string]any{
			"session_id": l.SessionID,
			"locked_at":  l.LockedAt,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (t *sessionTx) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return takeOne[models.User](t.g.WithContext(ctx).Where("id = ?", id))
}

func (t *sessionTx) SetUserActive(ctx context.Context, id uint, active bool) error {
	return t.g.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}
