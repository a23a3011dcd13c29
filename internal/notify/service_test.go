package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolcrib/internal/clock"
	"toolcrib/internal/memstore"
	"toolcrib/internal/models"
	"toolcrib/internal/notify"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	st := memstore.New(time.Second)
	for _, u := range []*models.User{
		{Username: "sup1", Role: models.RoleSupervisor},
		{Username: "sup2", Role: models.RoleSupervisor},
		{Username: "op", Role: models.RoleOperator},
	} {
		require.NoError(t, st.CreateUser(ctx, u))
	}
	op, err := st.FindByUsername(ctx, "op")
	require.NoError(t, err)

	svc := notify.New(st, clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))
	tool := &models.Tool{Name: "Caliper"}
	req := &models.UsageRequest{RequestID: "TR00001", RequesterID: op.ID, RequestedQty: 3, Status: models.StatusPending}

	require.NoError(t, svc.RequestSubmitted(ctx, req, tool))
	for _, name := range []string{"sup1", "sup2"} {
		sup, err := st.FindByUsername(ctx, name)
		require.NoError(t, err)
		list, err := st.ListForUser(ctx, sup.ID, 0)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "TR00001: 3 x Caliper", list[0].Description)
	}

	req.Status, req.Remarks = models.StatusRejected, "broken jaw"
	require.NoError(t, svc.RequestReviewed(ctx, req, tool))
	list, err := st.ListForUser(ctx, op.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Tool request REJECTED", list[0].Title)
	assert.Contains(t, list[0].Description, "broken jaw")
}
