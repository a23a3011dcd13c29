// Package sweeper — фоновая уборка просроченных сессий и протухших
// захватов ролей. Корректность от неё не зависит: то же самое делает
// любая проверка сессии или вход. Уборка лишь держит таблицы в порядке.
package sweeper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"toolcrib/internal/logs"
	"toolcrib/internal/models"
	"toolcrib/internal/sessions"
)

type Manager interface {
	ExpiredSessions(ctx context.Context) ([]models.Session, error)
	CheckSession(ctx context.Context, sessionID string) (sessions.Validity, error)
	ReclaimStale(ctx context.Context, role models.Role) (bool, error)
}

type Sweeper struct {
	mgr      Manager
	interval time.Duration
}

func New(mgr Manager, interval time.Duration) *Sweeper {
	return &Sweeper{mgr: mgr, interval: interval}
}

type Report struct {
	Expired   int
	Reclaimed int
}

// Sweep — один проход. Ошибка по одной сессии не прерывает проход.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var rep Report
	expired, err := s.mgr.ExpiredSessions(ctx)
	if err != nil {
		return rep, err
	}
	for _, sess := range expired {
		// CheckSession закрывает просроченную сессию и отпускает её роль
		if _, err := s.mgr.CheckSession(ctx, sess.ID); err != nil {
			logs.Logger.WithError(err).WithField("session", sess.ID).Warn("sweep: expire session")
			continue
		}
		rep.Expired++
	}
	for _, role := range models.ExclusiveRoles {
		cleared, err := s.mgr.ReclaimStale(ctx, role)
		if err != nil {
			logs.Logger.WithError(err).WithField("role", role).Warn("sweep: reclaim role")
			continue
		}
		if cleared {
			rep.Reclaimed++
		}
	}
	return rep, nil
}

// Run крутит Sweep до отмены ctx. interval <= 0 — сразу выходит.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	logs.Logger.WithField("interval", s.interval).Info("session sweeper started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rep, err := s.Sweep(ctx)
			if err != nil {
				logs.Logger.WithError(err).Warn("sweep failed")
				continue
			}
			if rep.Expired > 0 || rep.Reclaimed > 0 {
				logs.Logger.WithFields(logrus.Fields{"expired": rep.Expired, "reclaimed": rep.Reclaimed}).Info("sweep done")
			}
		}
	}
}
