package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/repository"
)

func TestGetConfigMasksSecrets(t *testing.T) {
	h := newHarness(t, newFakeDevice(), newFakePayroll(nil))
	ctx := context.Background()
	_, err := h.auth.GetValidToken(ctx, model.EndpointOnPrem)
	require.NoError(t, err)

	cfg, err := h.admin.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, MaskedSecret, cfg.OnPremPassword)
	assert.Equal(t, MaskedSecret, cfg.OnPremToken)
	assert.Equal(t, MaskedSecret, cfg.CloudPassword)
	assert.Empty(t, cfg.CloudToken)
	assert.Equal(t, testUser, cfg.OnPremUsername)
	assert.NotContains(t, []string{cfg.OnPremPassword, cfg.CloudPassword}, testPassword)
}

func TestUpdateConfigIgnoresMaskedSecrets(t *testing.T) {
	h := newHarness(t, newFakeDevice(), nil)
	ctx := context.Background()

	err := h.admin.UpdateConfig(ctx, model.EndpointConfigUpdate{
		OnPremPassword:      model.Ptr(MaskedSecret),
		CloudPassword:       model.Ptr(MaskedSecret),
		PullIntervalMinutes: model.Ptr(5),
	})
	require.NoError(t, err)

	cfg, err := h.repo.GetEndpointConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, testPassword, cfg.OnPremPassword)
	assert.Empty(t, cfg.CloudPassword)
	assert.Equal(t, 5, cfg.PullIntervalMinutes)
	assert.Equal(t, 15, cfg.PushIntervalMinutes)
}

func TestUpdateConfigValidation(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		in   model.EndpointConfigUpdate
	}{
		{name: "bad cloud url", in: model.EndpointConfigUpdate{CloudURL: model.Ptr("not a url")}},
		{name: "negative interval", in: model.EndpointConfigUpdate{PushIntervalMinutes: model.Ptr(-1)}},
		{name: "interval over a week", in: model.EndpointConfigUpdate{PullIntervalMinutes: model.Ptr(20000)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, h.admin.UpdateConfig(ctx, tt.in), ErrInvalidInput)
		})
	}
}

func TestUpdateConfigCredentialChangeDropsToken(t *testing.T) {
	h := newHarness(t, newFakeDevice(), newFakePayroll(nil))
	ctx := context.Background()
	_, err := h.auth.GetValidToken(ctx, model.EndpointOnPrem)
	require.NoError(t, err)
	_, err = h.auth.GetValidToken(ctx, model.EndpointCloud)
	require.NoError(t, err)

	require.NoError(t, h.admin.UpdateConfig(ctx, model.EndpointConfigUpdate{OnPremUsername: model.Ptr("operator")}))

	cfg, err := h.repo.GetEndpointConfig(ctx)
	require.NoError(t, err)
	assert.Empty(t, cfg.OnPremToken)
	assert.Equal(t, "cloud-token", cfg.CloudToken)
}

func TestRetryTimesheet(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	ids := seedPending(t, h.repo, "E1", model.DirectionIn, model.DirectionOut)
	require.NoError(t, h.repo.MarkSyncFailed(ctx, ids[0], "HTTP 500"))
	require.NoError(t, h.repo.MarkSynced(ctx, ids[1], "r-1", h.auth.now()))

	require.NoError(t, h.admin.RetryTimesheet(ctx, ids[0]))
	ev, err := h.repo.GetTimesheetEvent(ctx, ids[0])
	require.NoError(t, err)
	assert.Nil(t, ev.SyncError)

	assert.ErrorIs(t, h.admin.RetryTimesheet(ctx, ids[1]), ErrInvalidInput)
	assert.ErrorIs(t, h.admin.RetryTimesheet(ctx, 9999), repository.ErrNotFound)
}

func TestClearRange(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	seedPending(t, h.repo, "E1", model.DirectionIn, model.DirectionOut)

	_, err := h.admin.ClearRange(ctx, "2024-01-02", "2024-01-01")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.admin.ClearRange(ctx, "01/01/2024", "2024-01-01")
	assert.ErrorIs(t, err, ErrInvalidInput)

	n, err := h.admin.ClearRange(ctx, "2024-01-01", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStatsAndListings(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()
	seedPending(t, h.repo, "E1", model.DirectionIn, model.DirectionOut)

	dash, err := h.admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.TimesheetStats{Total: 2, Pending: 2, Employees: 1}, dash.Timesheets)
	assert.Equal(t, 30, dash.PullIntervalMinutes)

	page, err := h.admin.ListTimesheets(ctx, 0, -5)
	require.NoError(t, err)
	assert.Equal(t, defaultListLimit, page.Limit)
	assert.Zero(t, page.Offset)
	assert.Equal(t, 2, page.Total)

	unsynced, err := h.admin.ListUnsynced(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, unsynced, 1)

	_, err = h.admin.ListSyncRuns(ctx, "sideways", 10)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.admin.GetSyncRun(ctx, 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
