package server

import (
	"context"
	"time"

	"gorm.io/gorm"

	"toolcrib/internal/memstore"
	"toolcrib/internal/models"
	"toolcrib/internal/repo"
	"toolcrib/internal/reservation"
	"toolcrib/internal/sessions"
)

type inventoryStore interface {
	reservation.Store
	CreateTool(ctx context.Context, t *models.Tool) error
}

type userStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	UserIDsByRole(ctx context.Context, role models.Role) ([]uint, error)
}

type notificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, userID uint, limit int) ([]models.Notification, error)
}

// Backend — набор хранилищ одного вида: gorm или память процесса.
type Backend struct {
	Sessions      sessions.Store
	Inventory     inventoryStore
	Users         userStore
	Notifications notificationStore
	ping          func(ctx context.Context) error
}

func (b *Backend) Ping(ctx context.Context) error { return b.ping(ctx) }

func newGormBackend(db *gorm.DB, lockTimeout time.Duration) *Backend {
	ss := repo.NewSessionStore(db, lockTimeout)
	return &Backend{
		Sessions:      ss,
		Inventory:     repo.NewInventoryStore(db, lockTimeout),
		Users:         repo.NewUserStore(db),
		Notifications: repo.NewNotificationStore(db),
		ping:          ss.Ping,
	}
}

func newMemBackend(st *memstore.Store) *Backend {
	return &Backend{
		Sessions:      st.Sessions(),
		Inventory:     st.Inventory(),
		Users:         st,
		Notifications: st,
		ping:          st.Ping,
	}
}

// notifyStore — notify.Store поверх раздельных хранилищ пользователей и уведомлений.
type notifyStore struct {
	users userStore
	notes notificationStore
}

func (s notifyStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return s.notes.CreateNotification(ctx, n)
}

func (s notifyStore) UserIDsByRole(ctx context.Context, role models.Role) ([]uint, error) {
	return s.users.UserIDsByRole(ctx, role)
}
