// Package sessions — сессии и эксклюзивные роли (OFFICER, SUPERVISOR):
// не больше одной живой сессии на роль во всей системе.
//
// Занятость роли определяется только строкой RoleLock и живостью сессии,
// на которую она ссылается. Флаг User.IsActive — подсказка для UI.
package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"toolcrib/internal/apperr"
	"toolcrib/internal/clock"
	"toolcrib/internal/logs"
	"toolcrib/internal/models"
)

// Tx — операции хранилища внутри одной атомарной транзакции.
type Tx interface {
	CreateSession(ctx context.Context, s *models.Session) error
	// GetSession возвращает nil, nil если сессии нет.
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// EndSession проставляет logout_at/reason, только если сессия ещё открыта.
	EndSession(ctx context.Context, id string, at time.Time, reason models.EndReason) (bool, error)
	// LockRole берёт эксклюзивное удержание строки роли до конца транзакции,
	// создавая строку при первом обращении.
	LockRole(ctx context.Context, role models.Role) (*models.RoleLock, error)
	SaveRoleLock(ctx context.Context, l *models.RoleLock) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	SetUserActive(ctx context.Context, id uint, active bool) error
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// OpenSessions — все сессии без logout_at (живые и просроченные).
	OpenSessions(ctx context.Context) ([]models.Session, error)
	// SessionLogs — журнал всех сессий с владельцем, новые первыми.
	SessionLogs(ctx context.Context, q LogQuery) ([]models.SessionLog, error)
}

// LogQuery — фильтры журнала, которые применяет хранилище.
type LogQuery struct {
	Role     models.Role
	Username string
}

type LogStatus string

const (
	LogActive LogStatus = "ACTIVE"
	LogEnded  LogStatus = "ENDED"
)

// LogFilter — фильтры журнала сессий. Status считается по часам менеджера.
type LogFilter struct {
	Role     models.Role
	Username string
	Status   LogStatus
}

type ClientMeta struct {
	IP        string
	UserAgent string
}

// Denial — роль занята живой сессией.
type Denial struct {
	Role  models.Role
	Since *time.Time // когда текущий держатель занял роль
}

// Outcome — результат CreateSession. При отказе Session уже закрыта с SUPERSEDED.
type Outcome struct {
	Session *models.Session
	Denied  *Denial
}

func (o Outcome) OK() bool { return o.Denied == nil && o.Session != nil }

type Validity struct {
	Valid     bool        `json:"valid"`
	SessionID string      `json:"-"`
	UserID    uint        `json:"user_id,omitempty"`
	Username  string      `json:"username,omitempty"`
	Role      models.Role `json:"role,omitempty"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
}

type Manager struct {
	store Store
	clock clock.Clock
	ttl   time.Duration
	newID func() string
}

func NewManager(store Store, clk clock.Clock, ttl time.Duration) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	return &Manager{store: store, clock: clk, ttl: ttl, newID: uuid.NewString}
}

// CreateSession создаёт сессию для уже проверенного пользователя. Для
// эксклюзивной роли в той же транзакции пытается занять роль; при отказе
// только что созданная сессия закрывается до возврата.
func (m *Manager) CreateSession(ctx context.Context, user *models.User, meta ClientMeta) (Outcome, error) {
	now := m.clock.Now()
	var out Outcome
	err := m.store.InTx(ctx, func(tx Tx) error {
		out = Outcome{}
		sess := &models.Session{
			ID:        m.newID(),
			UserID:    user.ID,
			Role:      user.Role,
			CreatedAt: now,
			ExpiresAt: now.Add(m.ttl),
			IPAddress: meta.IP,
			UserAgent: meta.UserAgent,
		}
		if err := tx.CreateSession(ctx, sess); err != nil {
			return err
		}
		out.Session = sess

		if user.Role.Exclusive() {
			lock, ok, err := m.acquire(ctx, tx, user.Role, sess.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				if _, err := tx.EndSession(ctx, sess.ID, now, models.EndSuperseded); err != nil {
					return err
				}
				reason := models.EndSuperseded
				sess.LogoutAt, sess.EndReason = &now, &reason
				out.Denied = &Denial{Role: user.Role, Since: copyTime(lock.LockedAt)}
				return nil
			}
		}
		return tx.SetUserActive(ctx, user.ID, true)
	})
	if err != nil {
		return Outcome{}, err
	}

	entry := logs.Logger.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role, "session": out.Session.ID})
	if out.Denied != nil {
		entry.Info("login denied: role in use")
	} else {
		entry.Info("session created")
	}
	return out, nil
}

// AcquireRoleLock занимает роль для живой сессии этой роли. Занятость живой
// сессией — обычный исход (false), не ошибка.
func (m *Manager) AcquireRoleLock(ctx context.Context, role models.Role, sessionID string) (bool, error) {
	if !role.Exclusive() {
		return false, apperr.ErrInvalidArgument.WithMessagef("role %s is not exclusive", role)
	}
	now := m.clock.Now()
	var acquired bool
	err := m.store.InTx(ctx, func(tx Tx) error {
		acquired = false
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return apperr.ErrNotFound.WithMessagef("session %s", sessionID)
		}
		if sess.Role != role || !sess.Live(now) {
			return nil
		}
		_, acquired, err = m.acquire(ctx, tx, role, sessionID, now)
		return err
	})
	return acquired, err
}

// CheckSession проверяет сессию. Просроченная, но не закрытая сессия
// закрывается пассивно (logout_at = expires_at) и отпускает свою роль.
func (m *Manager) CheckSession(ctx context.Context, sessionID string) (Validity, error) {
	if sessionID == "" {
		return Validity{}, nil
	}
	now := m.clock.Now()
	var v Validity
	expired := false
	err := m.store.InTx(ctx, func(tx Tx) error {
		v, expired = Validity{}, false
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil || sess == nil || sess.Ended() {
			return err
		}
		if sess.Expired(now) {
			// сначала строка роли, потом сессия — тот же порядок, что и при входе
			if sess.Role.Exclusive() {
				if _, err := m.releaseIfOwner(ctx, tx, sess.Role, sess.ID); err != nil {
					return err
				}
			}
			expired, err = tx.EndSession(ctx, sess.ID, sess.ExpiresAt, models.EndExpired)
			return err
		}
		user, err := tx.GetUser(ctx, sess.UserID)
		if err != nil || user == nil || !user.IsActive {
			return err
		}
		v = Validity{
			Valid:     true,
			SessionID: sess.ID,
			UserID:    user.ID,
			Username:  user.Username,
			Role:      sess.Role,
			ExpiresAt: sess.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return Validity{}, err
	}
	if expired {
		logs.Logger.WithField("session", sessionID).Info("session expired")
	}
	return v, nil
}

// ReleaseSession завершает сессию. Для уже закрытой — no-op.
// Роль отпускается раньше, чем пользователь помечается неактивным.
func (m *Manager) ReleaseSession(ctx context.Context, sessionID string, reason models.EndReason) error {
	now := m.clock.Now()
	var released bool
	err := m.store.InTx(ctx, func(tx Tx) error {
		released = false
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess == nil {
			return apperr.ErrNotFound.WithMessagef("session %s", sessionID)
		}
		if sess.Ended() {
			return nil
		}
		if sess.Role.Exclusive() {
			if _, err := m.releaseIfOwner(ctx, tx, sess.Role, sess.ID); err != nil {
				return err
			}
		}
		ok, err := tx.EndSession(ctx, sess.ID, now, reason)
		if err != nil || !ok {
			return err
		}
		released = true
		return tx.SetUserActive(ctx, sess.UserID, false)
	})
	if err == nil && released {
		logs.Logger.WithFields(logrus.Fields{"session": sessionID, "reason": reason}).Info("session released")
	}
	return err
}

// ReleaseRoleLockIfOwner отпускает роль, только если её держит именно эта
// сессия: запоздалый повторный release не выселит следующего держателя.
func (m *Manager) ReleaseRoleLockIfOwner(ctx context.Context, role models.Role, sessionID string) error {
	if !role.Exclusive() {
		return nil
	}
	return m.store.InTx(ctx, func(tx Tx) error {
		_, err := m.releaseIfOwner(ctx, tx, role, sessionID)
		return err
	})
}

// ReclaimStale снимает захват роли, если держатель уже не жив.
func (m *Manager) ReclaimStale(ctx context.Context, role models.Role) (bool, error) {
	if !role.Exclusive() {
		return false, nil
	}
	now := m.clock.Now()
	var cleared bool
	err := m.store.InTx(ctx, func(tx Tx) error {
		var err error
		_, cleared, err = m.resolve(ctx, tx, role, now)
		return err
	})
	return cleared, err
}

// ActiveSessions — живые сессии на текущий момент. Без сериализации.
func (m *Manager) ActiveSessions(ctx context.Context) ([]models.Session, error) {
	return m.filterOpen(ctx, true)
}

// ExpiredSessions — просроченные, но ещё не закрытые сессии.
func (m *Manager) ExpiredSessions(ctx context.Context) ([]models.Session, error) {
	return m.filterOpen(ctx, false)
}

// SessionLogs — журнал сессий для аудита. Закрытые сессии не удаляются,
// поэтому журнал полный.
func (m *Manager) SessionLogs(ctx context.Context, f LogFilter) ([]models.SessionLog, error) {
	if f.Role != "" && !f.Role.Valid() {
		return nil, apperr.ErrInvalidArgument.WithMessagef("unknown role %q", f.Role)
	}
	switch f.Status {
	case "", LogActive, LogEnded:
	default:
		return nil, apperr.ErrInvalidArgument.WithMessagef("status must be ACTIVE or ENDED, got %q", f.Status)
	}
	rows, err := m.store.SessionLogs(ctx, LogQuery{Role: f.Role, Username: f.Username})
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	out := make([]models.SessionLog, 0, len(rows))
	for _, row := range rows {
		row.Active = row.Live(now)
		if (f.Status == LogActive && !row.Active) || (f.Status == LogEnded && row.Active) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *Manager) filterOpen(ctx context.Context, live bool) ([]models.Session, error) {
	open, err := m.store.OpenSessions(ctx)
	if err != nil {
		return nil, err
	}
	now := m.clock.Now()
	out := make([]models.Session, 0, len(open))
	for _, s := range open {
		if s.Live(now) == live {
			out = append(out, s)
		}
	}
	return out, nil
}

/* ───── внутри транзакции ───── */

// acquire: удержание строки роли, разбор протухшего захвата, захват.
// Повторный захват текущим держателем возвращает true.
func (m *Manager) acquire(ctx context.Context, tx Tx, role models.Role, sessionID string, now time.Time) (*models.RoleLock, bool, error) {
	lock, _, err := m.resolve(ctx, tx, role, now)
	if err != nil {
		return nil, false, err
	}
	if lock.Held() {
		return lock, lock.HeldBy(sessionID), nil
	}
	id, at := sessionID, now
	lock.SessionID, lock.LockedAt = &id, &at
	if err := tx.SaveRoleLock(ctx, lock); err != nil {
		return nil, false, err
	}
	return lock, true, nil
}

// resolve берёт удержание строки роли и, если держатель не жив, очищает
// захват. Держателя, который просрочен, но не закрыт, закрывает как EXPIRED.
func (m *Manager) resolve(ctx context.Context, tx Tx, role models.Role, now time.Time) (*models.RoleLock, bool, error) {
	lock, err := tx.LockRole(ctx, role)
	if err != nil {
		return nil, false, err
	}
	if !lock.Held() {
		return lock, false, nil
	}
	holder, err := tx.GetSession(ctx, *lock.SessionID)
	if err != nil {
		return nil, false, err
	}
	if holder != nil && holder.Live(now) {
		return lock, false, nil
	}
	if holder != nil && !holder.Ended() {
		if _, err := tx.EndSession(ctx, holder.ID, holder.ExpiresAt, models.EndExpired); err != nil {
			return nil, false, err
		}
	}
	logs.Logger.WithFields(logrus.Fields{"role": role, "session": *lock.SessionID}).Info("stale role lock cleared")
	lock.Clear()
	if err := tx.SaveRoleLock(ctx, lock); err != nil {
		return nil, false, err
	}
	return lock, true, nil
}

func (m *Manager) releaseIfOwner(ctx context.Context, tx Tx, role models.Role, sessionID string) (bool, error) {
	lock, err := tx.LockRole(ctx, role)
	if err != nil {
		return false, err
	}
	if !lock.HeldBy(sessionID) {
		return false, nil
	}
	lock.Clear()
	if err := tx.SaveRoleLock(ctx, lock); err != nil {
		return false, err
	}
	logs.Logger.WithFields(logrus.Fields{"role": role, "session": sessionID}).Debug("role lock released")
	return true, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
