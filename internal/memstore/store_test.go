package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolcrib/internal/apperr"
	"toolcrib/internal/models"
	"toolcrib/internal/reservation"
	"toolcrib/internal/sessions"
)

func TestInTx_RollbackOnError(t *testing.T) {
	s := New(time.Second)
	ctx := context.Background()
	tool := &models.Tool{Name: "Caliper", Quantity: 5}
	require.NoError(t, s.Inventory().CreateTool(ctx, tool))

	boom := errors.New("boom")
	err := s.Inventory().InTx(ctx, func(tx reservation.Tx) error {
		require.NoError(t, tx.SetToolQuantity(ctx, tool.ID, 1))
		r := &models.UsageRequest{RequestID: "pending-x", ToolID: tool.ID, RequestedQty: 4, Status: models.StatusPending}
		require.NoError(t, tx.CreateRequest(ctx, r))
		require.NoError(t, tx.SetRequestCode(ctx, r.ID, "TR00001"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, ok := s.Inventory().Tool(tool.ID)
	require.True(t, ok)
	assert.Equal(t, 5, got.Quantity)

	list, err := s.Inventory().ListRequests(ctx, reservation.RequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInTx_RollbackSessionAndRole(t *testing.T) {
	s := New(time.Second)
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.Sessions().InTx(ctx, func(tx sessions.Tx) error {
		require.NoError(t, tx.CreateSession(ctx, &models.Session{ID: "s1", Role: models.RoleOfficer, ExpiresAt: now.Add(time.Hour)}))
		l, err := tx.LockRole(ctx, models.RoleOfficer)
		require.NoError(t, err)
		id := "s1"
		l.SessionID, l.LockedAt = &id, &now
		require.NoError(t, tx.SaveRoleLock(ctx, l))
		return errors.New("abort")
	})
	require.Error(t, err)

	assert.False(t, s.RoleLock(models.RoleOfficer).Held())
	open, err := s.Sessions().OpenSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestLockRole_TimeoutIsLockTimeout(t *testing.T) {
	s := New(30 * time.Millisecond)
	ctx := context.Background()

	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Sessions().InTx(ctx, func(tx sessions.Tx) error {
			_, err := tx.LockRole(ctx, models.RoleSupervisor)
			close(entered)
			<-done
			return err
		})
	}()
	<-entered

	err := s.Sessions().InTx(ctx, func(tx sessions.Tx) error {
		_, err := tx.LockRole(ctx, models.RoleSupervisor)
		return err
	})
	close(done)
	assert.ErrorIs(t, err, apperr.ErrLockTimeout)
	assert.True(t, apperr.Transient(err))
}

func TestLock_ReentrantWithinTx(t *testing.T) {
	s := New(30 * time.Millisecond)
	ctx := context.Background()
	tool := &models.Tool{Name: "Gauge", Quantity: 1}
	require.NoError(t, s.Inventory().CreateTool(ctx, tool))

	err := s.Inventory().InTx(ctx, func(tx reservation.Tx) error {
		if _, err := tx.LockTool(ctx, tool.ID); err != nil {
			return err
		}
		_, err := tx.LockTool(ctx, tool.ID)
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, s.locks.Len())
}

func TestTransitionRequest_Conditional(t *testing.T) {
	s := New(time.Second)
	ctx := context.Background()

	var r *models.UsageRequest
	require.NoError(t, s.Inventory().InTx(ctx, func(tx reservation.Tx) error {
		r = &models.UsageRequest{RequestID: "TR00001", ToolID: 1, RequestedQty: 1, Status: models.StatusPending}
		return tx.CreateRequest(ctx, r)
	}))

	require.NoError(t, s.Inventory().InTx(ctx, func(tx reservation.Tx) error {
		upd := *r
		upd.Status = models.StatusRejected
		ok, err := tx.TransitionRequest(ctx, &upd, models.StatusApproved)
		assert.False(t, ok)
		return err
	}))
	list, err := s.Inventory().ListRequests(ctx, reservation.RequestFilter{Status: models.StatusPending})
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestGettersReturnCopies(t *testing.T) {
	s := New(time.Second)
	ctx := context.Background()
	u := &models.User{Username: "op1", Role: models.RoleOperator}
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.FindByUsername(ctx, "op1")
	require.NoError(t, err)
	got.Role = models.RoleSupervisor

	again, err := s.FindByUsername(ctx, "op1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOperator, again.Role)

	assert.Error(t, s.CreateUser(ctx, &models.User{Username: "op1"}))
}

func TestNotifications_NewestFirst(t *testing.T) {
	s := New(time.Second)
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateNotification(ctx, &models.Notification{UserID: 7, Title: title}))
	}
	require.NoError(t, s.CreateNotification(ctx, &models.Notification{UserID: 8, Title: "other"}))

	list, err := s.ListForUser(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].Title)
	assert.Equal(t, "b", list[1].Title)
}
