// Package reservation — жизненный цикл заявок на инструмент и списание
// остатка при одобрении.
//
// Остаток меняется только под эксклюзивным удержанием строки инструмента,
// поэтому проверка и списание при одобрении не перемежаются ни с другим
// одобрением, ни с пополнением.
package reservation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"toolcrib/internal/apperr"
	"toolcrib/internal/clock"
	"toolcrib/internal/logs"
	"toolcrib/internal/models"
)

// Tx — операции хранилища в одной транзакции. Порядок удержаний
// всегда: заявка, затем инструмент.
type Tx interface {
	// GetTool / LockTool возвращают nil, nil если инструмента нет.
	GetTool(ctx context.Context, id uint) (*models.Tool, error)
	LockTool(ctx context.Context, id uint) (*models.Tool, error)
	SetToolQuantity(ctx context.Context, id uint, qty int) error

	CreateRequest(ctx context.Context, r *models.UsageRequest) error
	SetRequestCode(ctx context.Context, id uint, code string) error
	// LockRequest возвращает nil, nil если заявки нет.
	LockRequest(ctx context.Context, code string) (*models.UsageRequest, error)
	// TransitionRequest сохраняет r, только если статус в хранилище всё ещё from.
	TransitionRequest(ctx context.Context, r *models.UsageRequest, from models.RequestStatus) (bool, error)
}

type RequestFilter struct {
	Status      models.RequestStatus
	RequesterID uint
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	ListTools(ctx context.Context) ([]models.Tool, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]models.UsageRequest, error)
}

// Notifier получает события после коммита. Ошибка уведомления не
// откатывает уже зафиксированный переход.
type Notifier interface {
	RequestSubmitted(ctx context.Context, r *models.UsageRequest, t *models.Tool) error
	RequestReviewed(ctx context.Context, r *models.UsageRequest, t *models.Tool) error
}

type Approval struct {
	Request   *models.UsageRequest `json:"request"`
	Tool      *models.Tool         `json:"tool"`
	Remaining int                  `json:"remaining_quantity"`
}

type Controller struct {
	store    Store
	clock    clock.Clock
	notifier Notifier
}

func NewController(store Store, clk clock.Clock, n Notifier) *Controller {
	if clk == nil {
		clk = clock.System{}
	}
	return &Controller{store: store, clock: clk, notifier: n}
}

func requestCode(id uint) string { return fmt.Sprintf("TR%05d", id) }

// Submit создаёт заявку PENDING. Проверка остатка здесь только
// предварительная: окончательная — при одобрении.
func (c *Controller) Submit(ctx context.Context, requesterID, toolID uint, qty int) (*models.UsageRequest, error) {
	if qty <= 0 {
		return nil, apperr.ErrInvalidQuantity.WithMessagef("quantity must be positive, got %d", qty)
	}
	now := c.clock.Now()
	var (
		req  *models.UsageRequest
		tool *models.Tool
	)
	err := c.store.InTx(ctx, func(tx Tx) error {
		var err error
		tool, err = tx.GetTool(ctx, toolID)
		if err != nil {
			return err
		}
		if tool == nil {
			return apperr.ErrNotFound.WithMessagef("tool %d", toolID)
		}
		if qty > tool.Quantity {
			return apperr.ErrInsufficientStock.WithMessagef("requested %d, available %d", qty, tool.Quantity)
		}
		req = &models.UsageRequest{
			// временный код до получения id
			RequestID:    "pending-" + uuid.NewString(),
			RequesterID:  requesterID,
			ToolID:       toolID,
			RequestedQty: qty,
			Status:       models.StatusPending,
			CreatedAt:    now,
		}
		if err := tx.CreateRequest(ctx, req); err != nil {
			return err
		}
		req.RequestID = requestCode(req.ID)
		return tx.SetRequestCode(ctx, req.ID, req.RequestID)
	})
	if err != nil {
		return nil, err
	}

	logs.Logger.WithFields(logrus.Fields{"request": req.RequestID, "tool_id": toolID, "qty": qty}).Info("tool request submitted")
	c.notify(req, func() error { return c.notifier.RequestSubmitted(ctx, req, tool) })
	return req, nil
}

// Approve — одна транзакция: удержание заявки, удержание инструмента,
// окончательная проверка остатка, списание, переход в APPROVED.
// При нехватке ничего не меняется.
func (c *Controller) Approve(ctx context.Context, requestID string, reviewerID uint) (*Approval, error) {
	now := c.clock.Now()
	var out *Approval
	err := c.store.InTx(ctx, func(tx Tx) error {
		req, err := lockPending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		tool, err := tx.LockTool(ctx, req.ToolID)
		if err != nil {
			return err
		}
		if tool == nil {
			return apperr.ErrNotFound.WithMessagef("tool %d", req.ToolID)
		}
		if tool.Quantity < req.RequestedQty {
			return apperr.ErrInsufficientStock.WithMessagef("requested %d, available %d", req.RequestedQty, tool.Quantity)
		}

		remaining := tool.Quantity - req.RequestedQty
		if err := tx.SetToolQuantity(ctx, tool.ID, remaining); err != nil {
			return err
		}
		tool.Quantity = remaining

		req.Status = models.StatusApproved
		req.ReviewerID = &reviewerID
		req.ReviewedAt = &now
		ok, err := tx.TransitionRequest(ctx, req, models.StatusPending)
		if err != nil {
			return err
		}
		if !ok {
			// откатит и списание
			return apperr.ErrAlreadyProcessed.WithMessage(requestID)
		}
		out = &Approval{Request: req, Tool: tool, Remaining: remaining}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logs.Logger.WithFields(logrus.Fields{
		"request":   requestID,
		"tool_id":   out.Tool.ID,
		"reviewer":  reviewerID,
		"remaining": out.Remaining,
	}).Info("tool request approved")
	c.notify(out.Request, func() error { return c.notifier.RequestReviewed(ctx, out.Request, out.Tool) })
	return out, nil
}

// Reject — те же проверки, что и у Approve, остаток не трогается.
func (c *Controller) Reject(ctx context.Context, requestID string, reviewerID uint, remarks string) (*models.UsageRequest, error) {
	now := c.clock.Now()
	var (
		req  *models.UsageRequest
		tool *models.Tool
	)
	err := c.store.InTx(ctx, func(tx Tx) error {
		var err error
		req, err = lockPending(ctx, tx, requestID)
		if err != nil {
			return err
		}
		req.Status = models.StatusRejected
		req.ReviewerID = &reviewerID
		req.ReviewedAt = &now
		req.Remarks = remarks
		ok, err := tx.TransitionRequest(ctx, req, models.StatusPending)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrAlreadyProcessed.WithMessage(requestID)
		}
		tool, err = tx.GetTool(ctx, req.ToolID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logs.Logger.WithFields(logrus.Fields{"request": requestID, "reviewer": reviewerID}).Info("tool request rejected")
	c.notify(req, func() error { return c.notifier.RequestReviewed(ctx, req, tool) })
	return req, nil
}

// Collect — выдача одобренного инструмента заявителю.
func (c *Controller) Collect(ctx context.Context, requestID string, requesterID uint) (*models.UsageRequest, error) {
	now := c.clock.Now()
	var req *models.UsageRequest
	err := c.store.InTx(ctx, func(tx Tx) error {
		var err error
		req, err = tx.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return apperr.ErrNotFound.WithMessagef("request %s", requestID)
		}
		if req.Status != models.StatusApproved {
			return apperr.ErrInvalidTransition.WithMessagef("%s is %s", requestID, req.Status)
		}
		if req.RequesterID != requesterID {
			return apperr.ErrNotOwner.WithMessage(requestID)
		}
		req.Status = models.StatusCollected
		req.CollectedAt = &now
		ok, err := tx.TransitionRequest(ctx, req, models.StatusApproved)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrInvalidTransition.WithMessage(requestID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logs.Logger.WithFields(logrus.Fields{"request": requestID, "operator": requesterID}).Info("tool collected")
	return req, nil
}

// Restock пополняет остаток под тем же удержанием инструмента, что и Approve.
func (c *Controller) Restock(ctx context.Context, toolID uint, delta int) (*models.Tool, error) {
	if delta <= 0 {
		return nil, apperr.ErrInvalidQuantity.WithMessagef("restock delta must be positive, got %d", delta)
	}
	var tool *models.Tool
	err := c.store.InTx(ctx, func(tx Tx) error {
		var err error
		tool, err = tx.LockTool(ctx, toolID)
		if err != nil {
			return err
		}
		if tool == nil {
			return apperr.ErrNotFound.WithMessagef("tool %d", toolID)
		}
		tool.Quantity += delta
		return tx.SetToolQuantity(ctx, tool.ID, tool.Quantity)
	})
	if err != nil {
		return nil, err
	}
	logs.Logger.WithFields(logrus.Fields{"tool_id": toolID, "delta": delta, "quantity": tool.Quantity}).Info("tool restocked")
	return tool, nil
}

func (c *Controller) ListTools(ctx context.Context) ([]models.Tool, error) {
	return c.store.ListTools(ctx)
}

func (c *Controller) ListRequests(ctx context.Context, f RequestFilter) ([]models.UsageRequest, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.ErrInvalidArgument.WithMessagef("unknown status %q", f.Status)
	}
	return c.store.ListRequests(ctx, f)
}

// lockPending: удержание заявки и проверка, что решение по ней ещё не принято.
// Ревьюер, записанный при статусе PENDING, тоже означает, что заявку уже взяли.
func lockPending(ctx context.Context, tx Tx, requestID string) (*models.UsageRequest, error) {
	req, err := tx.LockRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch {
	case req == nil:
		return nil, apperr.ErrNotFound.WithMessagef("request %s", requestID)
	case req.Status != models.StatusPending:
		return nil, apperr.ErrAlreadyProcessed.WithMessagef("%s is %s", requestID, req.Status)
	case req.ReviewerID != nil:
		return nil, apperr.ErrAlreadyClaimed.WithMessagef("%s is taken by reviewer %d", requestID, *req.ReviewerID)
	}
	return req, nil
}

func (c *Controller) notify(req *models.UsageRequest, send func() error) {
	if c.notifier == nil {
		return
	}
	if err := send(); err != nil {
		logs.Logger.WithError(err).WithField("request", req.RequestID).Warn("notification failed")
	}
}

