// Package notify — уведомления в приложении: строки в таблице
// notifications, которые клиент забирает сам.
package notify

import (
	"context"
	"errors"
	"fmt"

	"toolcrib/internal/clock"
	"toolcrib/internal/models"
)

type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	UserIDsByRole(ctx context.Context, role models.Role) ([]uint, error)
}

type Service struct {
	store Store
	clock clock.Clock
}

func New(store Store, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{store: store, clock: clk}
}

// RequestSubmitted — всем супервизорам.
func (s *Service) RequestSubmitted(ctx context.Context, r *models.UsageRequest, t *models.Tool) error {
	ids, err := s.store.UserIDsByRole(ctx, models.RoleSupervisor)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		n := &models.Notification{
			UserID:      id,
			Role:        models.RoleSupervisor,
			Title:       "New tool request",
			Description: fmt.Sprintf("%s: %d x %s", r.RequestID, r.RequestedQty, toolName(t)),
			TargetURL:   "/supervisor/tool-requests/" + r.RequestID,
			CreatedAt:   s.clock.Now(),
		}
		errs = append(errs, s.store.CreateNotification(ctx, n))
	}
	return errors.Join(errs...)
}

// RequestReviewed — заявителю, о решении по его заявке.
func (s *Service) RequestReviewed(ctx context.Context, r *models.UsageRequest, t *models.Tool) error {
	desc := fmt.Sprintf("%s (%s) is %s", r.RequestID, toolName(t), r.Status)
	if r.Remarks != "" {
		desc += ": " + r.Remarks
	}
	return s.store.CreateNotification(ctx, &models.Notification{
		UserID:      r.RequesterID,
		Role:        models.RoleOperator,
		Title:       "Tool request " + string(r.Status),
		Description: desc,
		TargetURL:   "/operator/tool-requests/" + r.RequestID,
		CreatedAt:   s.clock.Now(),
	})
}

func toolName(t *models.Tool) string {
	if t == nil {
		return "tool"
	}
	return t.Name
}
