package repo

import (
	"context"

	"gorm.io/gorm"

	"toolcrib/internal/apperr"
	"toolcrib/internal/models"
)

type UserStore struct{ db *gorm.DB }

func NewUserStore(db *gorm.DB) *UserStore { return &UserStore{db: db} }

func (s *UserStore) CreateUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(g *gorm.DB) error {
		var n int64
		if err := g.Model(&models.User{}).Where("username = ?", u.Username).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.ErrInvalidArgument.WithMessagef("username %q already exists", u.Username)
		}
		return g.Create(u).Error
	})
}

// FindByUsername: nil, nil если пользователя нет.
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return takeOne[models.User](s.db.WithContext(ctx).Where("username = ?", username))
}

func (s *UserStore) UserIDsByRole(ctx context.Context, role models.Role) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("role = ?", role).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

type NotificationStore struct{ db *gorm.DB }

func NewNotificationStore(db *gorm.DB) *NotificationStore { return &NotificationStore{db: db} }

func (s *NotificationStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.db.WithContext(ctx).Create(n).Error
}

// ListForUser — новые первыми; limit <= 0 без ограничения.
func (s *NotificationStore) ListForUser(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Notification
	err := q.Find(&out).Error
	return out, err
}
