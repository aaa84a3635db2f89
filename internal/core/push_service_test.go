package core

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timebridge.service/internal/adapters/payroll"
	"timebridge.service/internal/adapters/transport"
	"timebridge.service/internal/core/model"
)

func TestPushConflictWithoutIdentifierFailsOnlyThatRecord(t *testing.T) {
	cloud := newFakePayroll(func(e payroll.LogEntry) (int, string) {
		if e.LogType == "IN" {
			return http.StatusConflict, `{"detail":"already exists"}`
		}
		return http.StatusOK, `{"id": 42}`
	})
	h := newHarness(t, nil, cloud)
	ctx := context.Background()
	ids := seedPending(t, h.repo, "E1", model.DirectionIn, model.DirectionOut)

	res, err := h.push.Push(ctx, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, model.Stats{Processed: 2, Success: 1, Failed: 1}, res.Stats)

	in, err := h.repo.GetTimesheetEvent(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, in.Synced())
	require.NotNil(t, in.SyncError)
	assert.Equal(t, errDuplicate, *in.SyncError)

	out, err := h.repo.GetTimesheetEvent(ctx, ids[1])
	require.NoError(t, err)
	require.True(t, out.Synced())
	assert.Equal(t, "42", *out.RemoteID)
	assert.Nil(t, out.SyncError)
	assert.NotNil(t, out.SyncedAt)

	run, err := h.repo.GetSyncRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunError, run.Status)
	assert.Equal(t, 1, run.Failed)

	cfg, err := h.repo.GetEndpointConfig(ctx)
	require.NoError(t, err)
	assert.NotNil(t, cfg.LastPushAt)
	assert.JSONEq(t, `{"user":{"id":7},"company":"Acme"}`, string(cfg.CloudTokenMetadata))
}

func TestPushNeverResubmitsSyncedEvents(t *testing.T) {
	cloud := newFakePayroll(func(payroll.LogEntry) (int, string) {
		return http.StatusCreated, `{"data":{"timesheet_id":"ts-1"}}`
	})
	h := newHarness(t, nil, cloud)
	ctx := context.Background()
	seedPending(t, h.repo, "E1", model.DirectionIn)

	first, err := h.push.Push(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats.Success)

	for range 3 {
		res, err := h.push.Push(ctx, nil)
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.Zero(t, res.Stats.Processed)
		assert.Equal(t, "No records to sync", res.Message)
	}
	assert.Equal(t, 1, cloud.receivedCount())
}

func TestPushIsolatesServerErrors(t *testing.T) {
	cloud := newFakePayroll(func(e payroll.LogEntry) (int, string) {
		if e.LogTime == "2024-01-01 09:00:00" {
			return http.StatusInternalServerError, `{"error":"boom"}`
		}
		return http.StatusOK, `{"results":[{"log_id":7}]}`
	})
	h := newHarness(t, nil, cloud)
	ctx := context.Background()
	ids := seedPending(t, h.repo, "E1", model.DirectionIn, model.DirectionOut, model.DirectionIn)

	res, err := h.push.Push(ctx, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, model.Stats{Processed: 3, Success: 2, Failed: 1}, res.Stats)

	failed, err := h.repo.GetTimesheetEvent(ctx, ids[1])
	require.NoError(t, err)
	require.NotNil(t, failed.SyncError)
	assert.Equal(t, `HTTP 500: {"error":"boom"}`, *failed.SyncError)

	last, err := h.repo.GetTimesheetEvent(ctx, ids[2])
	require.NoError(t, err)
	assert.True(t, last.Synced())
}

func TestPushKeepsSendingThroughServerErrorStreak(t *testing.T) {
	failing := map[string]bool{}
	for i := 1; i <= 10; i++ {
		failing[fmt.Sprintf("E%02d", i)] = true
	}
	cloud := newFakePayroll(func(e payroll.LogEntry) (int, string) {
		if failing[e.Employee] {
			return http.StatusInternalServerError, `{"error":"unavailable"}`
		}
		return http.StatusOK, fmt.Sprintf(`{"id":%d}`, e.ID)
	})
	h := newHarness(t, nil, cloud)
	ctx := context.Background()

	var ids []int64
	for i := 1; i <= 20; i++ {
		ids = append(ids, seedPending(t, h.repo, fmt.Sprintf("E%02d", i), model.DirectionIn)...)
	}

	res, err := h.push.Push(ctx, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, model.Stats{Processed: 20, Success: 10, Failed: 10}, res.Stats)
	assert.Equal(t, 20, cloud.receivedCount())

	for i, id := range ids {
		ev, err := h.repo.GetTimesheetEvent(ctx, id)
		require.NoError(t, err)
		if i < 10 {
			require.NotNil(t, ev.SyncError)
			assert.Equal(t, `HTTP 500: {"error":"unavailable"}`, *ev.SyncError)
			continue
		}
		assert.True(t, ev.Synced(), "event %d", id)
	}

	// The next run resends only the failed half and still reaches the cloud.
	again, err := h.push.Push(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, model.Stats{Processed: 10, Failed: 10}, again.Stats)
	assert.Equal(t, 30, cloud.receivedCount())
}

func TestPushPayloadShape(t *testing.T) {
	cloud := newFakePayroll(func(payroll.LogEntry) (int, string) {
		return http.StatusOK, `{"id":"r-1"}`
	})
	h := newHarness(t, nil, cloud)
	ids := seedPending(t, h.repo, "E9", model.DirectionOut)

	_, err := h.push.Push(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, cloud.received, 1)
	got := cloud.received[0]
	assert.Equal(t, ids[0], got.ID)
	assert.Equal(t, "E9", got.Employee)
	assert.Equal(t, "Employee E9", got.EmployeeName)
	assert.Equal(t, "OUT", got.LogType)
	assert.Equal(t, "2024-01-01", got.Date)
	assert.Equal(t, "2024-01-01 08:00:00", got.LogTime)
	assert.Equal(t, DedupKey("E9", "2024-01-01", "08:00:00", model.DirectionOut), got.SyncID)
	assert.NotEmpty(t, got.CreatedAt)
}

func TestPushReauthenticatesOnceOnRejectedToken(t *testing.T) {
	cloud := newFakePayroll(func(payroll.LogEntry) (int, string) {
		return http.StatusOK, `{"id":1}`
	})
	h := newHarness(t, nil, cloud)
	ctx := context.Background()
	require.NoError(t, h.repo.SetCloudToken(ctx, "stale", nil, h.auth.now()))
	seedPending(t, h.repo, "E1", model.DirectionIn, model.DirectionOut)

	res, err := h.push.Push(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.Success)
	assert.Equal(t, 1, cloud.logins)
}

func TestPushNoIdentifierIsFailure(t *testing.T) {
	cloud := newFakePayroll(func(payroll.LogEntry) (int, string) {
		return http.StatusOK, `{"status":"ok"}`
	})
	h := newHarness(t, nil, cloud)
	ctx := context.Background()
	ids := seedPending(t, h.repo, "E1", model.DirectionIn)

	res, err := h.push.Push(ctx, nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Stats.Failed)

	ev, err := h.repo.GetTimesheetEvent(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, ev.SyncError)
	assert.Equal(t, errNoIdentifier, *ev.SyncError)
}

func TestPushBadCredentialsAbortsRun(t *testing.T) {
	cloud := newFakePayroll(nil)
	h := newHarness(t, nil, cloud)
	ctx := context.Background()
	require.NoError(t, h.repo.UpdateEndpointConfig(ctx, model.EndpointConfigUpdate{CloudPassword: model.Ptr("wrong")}))
	seedPending(t, h.repo, "E1", model.DirectionIn)

	res, err := h.push.Push(ctx, nil)
	require.ErrorIs(t, err, ErrAuthentication)
	assert.False(t, res.OK)

	run, err := h.repo.GetSyncRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunError, run.Status)
	assert.Zero(t, cloud.receivedCount())
}

func TestExtractRemoteID(t *testing.T) {
	keys := []string{"id", "timesheet_id", "log_id", "existing_id"}
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "top level number", body: `{"id": 12}`, want: "12"},
		{name: "top level string", body: `{"timesheet_id": "ts-9"}`, want: "ts-9"},
		{name: "nested data object", body: `{"data": {"log_id": 3}}`, want: "3"},
		{name: "first result", body: `{"results": [{"id": 5}, {"id": 6}]}`, want: "5"},
		{name: "first data element", body: `{"data": [{"existing_id": 8}]}`, want: "8"},
		{name: "first log_list element", body: `{"log_list": [{"log_id": "L1"}]}`, want: "L1"},
		{name: "top level array", body: `[{"id": 4}]`, want: "4"},
		{name: "no identifier", body: `{"status": "ok"}`, want: ""},
		{name: "empty results", body: `{"results": []}`, want: ""},
		{name: "not json", body: `accepted`, want: ""},
		{name: "large id keeps precision", body: `{"id": 9007199254740993}`, want: "9007199254740993"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractRemoteID([]byte(tt.body), keys...))
		})
	}
}

func TestInterpretPushResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantID   string
		wantFail string
	}{
		{name: "created with id", status: 201, body: `{"id": 1}`, wantID: "1"},
		{name: "ok without id", status: 200, body: `{}`, wantFail: errNoIdentifier},
		{name: "conflict with existing id", status: 409, body: `{"existing_id": 77}`, wantID: "77"},
		{name: "conflict without id", status: 409, body: `{"detail": "dup"}`, wantFail: errDuplicate},
		{name: "bad request", status: 400, body: `{"employee":["unknown"]}`, wantFail: `HTTP 400: {"employee":["unknown"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, fail := interpretPushResponse(&transport.Response{StatusCode: tt.status, Body: []byte(tt.body)})
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantFail, fail)
		})
	}
}
