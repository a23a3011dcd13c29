package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"toolcrib/internal/models"
	"toolcrib/internal/reservation"
)

// InventoryStore — инструменты и заявки. Порядок удержаний: строка
// заявки, затем строка инструмента.
type InventoryStore struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

func NewInventoryStore(db *gorm.DB, lockTimeout time.Duration) *InventoryStore {
	return &InventoryStore{db: db, lockTimeout: lockTimeout}
}

func (s *InventoryStore) InTx(ctx context.Context, fn func(tx reservation.Tx) error) error {
	return inTx(ctx, s.db, s.lockTimeout, func(g *gorm.DB) error {
		return fn(&inventoryTx{g: g})
	})
}

// -------- вне транзакций --------

func (s *InventoryStore) CreateTool(ctx context.Context, t *models.Tool) error {
	if t.AddedAt.IsZero() {
		t.AddedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *InventoryStore) ListTools(ctx context.Context) ([]models.Tool, error) {
	var out []models.Tool
	err := s.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

func (s *InventoryStore) ListRequests(ctx context.Context, f reservation.RequestFilter) ([]models.UsageRequest, error) {
	q := s.db.WithContext(ctx).Model(&models.UsageRequest{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.RequesterID != 0 {
		q = q.Where("requester_id = ?", f.RequesterID)
	}
	var out []models.UsageRequest
	err := q.Order("id DESC").Find(&out).Error
	return out, err
}

// -------- в транзакции --------

type inventoryTx struct{ g *gorm.DB }

func (t *inventoryTx) GetTool(ctx context.Context, id uint) (*models.Tool, error) {
	return takeOne[models.Tool](t.g.WithContext(ctx).Where("id = ?", id))
}

func (t *inventoryTx) LockTool(ctx context.Context, id uint) (*models.Tool, error) {
	return takeOne[models.Tool](t.g.WithContext(ctx).Clauses(forUpdate).Where("id = ?", id))
}

func (t *inventoryTx) SetToolQuantity(ctx context.Context, id uint, qty int) error {
	return t.g.WithContext(ctx).Model(&models.Tool{}).
		Where("id = ?", id).
		Update("quantity", qty).Error
}

func (t *inventoryTx) CreateRequest(ctx context.Context, r *models.UsageRequest) error {
	return t.g.WithContext(ctx).Create(r).Error
}

func (t *inventoryTx) SetRequestCode(ctx context.Context, id uint, code string) error {
	return t.g.WithContext(ctx).Model(&models.UsageRequest{}).
		Where("id = ?", id).
		Update("request_id", code).Error
}

func (t *inventoryTx) LockRequest(ctx context.Context, code string) (*models.UsageRequest, error) {
	return takeOne[models.UsageRequest](t.g.WithContext(ctx).Clauses(forUpdate).Where("request_id = ?", code))
}

// TransitionRequest — условный переход: WHERE status = from.
func (t *inventoryTx) TransitionRequest(ctx context.Context, r *models.UsageRequest, from models.RequestStatus) (bool, error) {
	res := t.g.WithContext(ctx).Model(&models.UsageRequest{}).
		Where("id = ? AND status = ?", r.ID, from).
		Updates(map[string]any{
			"status":       r.Status,
			"reviewed_at":  r.ReviewedAt,
			"reviewer_id":  r.ReviewerID,
			"remarks":      r.Remarks,
			"collected_at": r.CollectedAt,
		})
	return res.RowsAffected == 1, res.Error
}
