package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/messaging"
)

type fakeSyncer struct {
	window model.PullWindow
	result model.SyncResult
	err    error
}

func (f *fakeSyncer) Pull(_ context.Context, w model.PullWindow, onProgress model.ProgressFunc) (model.SyncResult, error) {
	f.window = w
	if onProgress != nil {
		onProgress(model.Progress{Type: model.SyncPull, RunID: f.result.RunID, Page: 1, Stats: f.result.Stats})
	}
	return f.result, f.err
}

func (f *fakeSyncer) Push(_ context.Context, _ model.ProgressFunc) (model.SyncResult, error) {
	return f.result, f.err
}

type fakeAdmin struct {
	runs      []model.SyncRun
	direction model.SyncType
}

func (f *fakeAdmin) TestConnection(_ context.Context, e model.Endpoint) (bool, string) {
	if e == model.EndpointCloud {
		return false, "authentication failed: HTTP 401"
	}
	return true, "Authentication successful. Token: abcd1234..."
}

func (f *fakeAdmin) ListSyncRuns(_ context.Context, t model.SyncType, _ int) ([]model.SyncRun, error) {
	f.direction = t
	return f.runs, nil
}

type fakeTrigger struct{ sent []messaging.TriggerMessage }

func (f *fakeTrigger) PublishTrigger(_ context.Context, msg messaging.TriggerMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

func execute(t *testing.T, env *Env, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand(func(context.Context, bool) (*Env, error) { return env, nil })
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(nil)
	for _, name := range []string{"pull", "push", "test-connection", "runs", "enqueue"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestPullCommand(t *testing.T) {
	syncer := &fakeSyncer{result: model.SyncResult{OK: true, RunID: 3, Type: model.SyncPull, Message: "Pull completed: 4 new events, 0 skipped, 0 failed"}}
	env := &Env{Sync: syncer, Admin: &fakeAdmin{}}

	out, _, err := execute(t, env, "pull", "--from", "2024-01-01", "--to", "2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, "pull run #3: Pull completed: 4 new events, 0 skipped, 0 failed\n", out)
	require.NotNil(t, syncer.window.From)
	require.NotNil(t, syncer.window.To)
	assert.Equal(t, "2024-01-07", syncer.window.To.Format(time.DateOnly))
}

func TestEnvIsClosed(t *testing.T) {
	closed := 0
	env := &Env{Sync: &fakeSyncer{result: model.SyncResult{OK: true}}, Close: func() { closed++ }}
	_, _, err := execute(t, env, "push")
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
}

func TestPullCommandRejectsBadDate(t *testing.T) {
	syncer := &fakeSyncer{}
	_, _, err := execute(t, &Env{Sync: syncer}, "pull", "--from", "01/02/2024")
	require.Error(t, err)
	assert.Nil(t, syncer.window.From)
}

func TestPullCommandVerbosePrintsProgress(t *testing.T) {
	syncer := &fakeSyncer{result: model.SyncResult{OK: true, RunID: 9, Type: model.SyncPull, Stats: model.Stats{Processed: 2, Success: 2}}}
	_, errOut, err := execute(t, &Env{Sync: syncer}, "pull", "-v")
	require.NoError(t, err)
	assert.Contains(t, errOut, "pull run #9: processed=2 success=2 failed=0 skipped=0")
}

func TestPushCommandFailures(t *testing.T) {
	errBoom := errors.New("boom")
	tests := []struct {
		name    string
		syncer  *fakeSyncer
		wantErr error
	}{
		{
			name:    "run not ok",
			syncer:  &fakeSyncer{result: model.SyncResult{OK: false, Type: model.SyncPush, Message: "cloud url is not configured"}},
			wantErr: ErrRunFailed,
		},
		{
			name:    "run error is surfaced",
			syncer:  &fakeSyncer{result: model.SyncResult{Type: model.SyncPush}, err: errBoom},
			wantErr: errBoom,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, &Env{Sync: tt.syncer}, "push")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPushCommandJSON(t *testing.T) {
	syncer := &fakeSyncer{result: model.SyncResult{OK: true, RunID: 4, Type: model.SyncPush, Stats: model.Stats{Processed: 3, Success: 2, Failed: 1}}}
	out, _, err := execute(t, &Env{Sync: syncer}, "push", "--format", "json")
	require.NoError(t, err)

	var got model.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, syncer.result, got)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, &Env{Sync: &fakeSyncer{}}, "push", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestTestConnectionCommand(t *testing.T) {
	env := &Env{Admin: &fakeAdmin{}}

	out, _, err := execute(t, env, "test-connection", "onprem")
	require.NoError(t, err)
	assert.Contains(t, out, "Authentication successful")

	_, _, err = execute(t, env, "test-connection", "cloud")
	require.Error(t, err)

	_, _, err = execute(t, env, "test-connection", "ftp")
	require.Error(t, err)
}

func TestRunsCommand(t *testing.T) {
	msg := "2 of 5 records failed"
	admin := &fakeAdmin{runs: []model.SyncRun{
		{ID: 2, Type: model.SyncPush, Status: model.RunError, Processed: 5, Success: 3, Failed: 2, Error: &msg},
		{ID: 1, Type: model.SyncPush, Status: model.RunSuccess, Processed: 1, Success: 1},
	}}
	out, _, err := execute(t, &Env{Admin: admin}, "runs", "--direction", "push")
	require.NoError(t, err)
	assert.Equal(t, model.SyncPush, admin.direction)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, msg)
}

func TestEnqueueCommand(t *testing.T) {
	trigger := &fakeTrigger{}
	env := &Env{Trigger: trigger}

	out, _, err := execute(t, env, "enqueue", "pull", "--from", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, "Queued pull trigger\n", out)
	require.Len(t, trigger.sent, 1)
	assert.Equal(t, "2024-01-01", trigger.sent[0].DateFrom)

	_, _, err = execute(t, env, "enqueue", "push", "--from", "2024-01-01")
	require.Error(t, err)

	_, _, err = execute(t, env, "enqueue", "sideways")
	require.Error(t, err)
	assert.Len(t, trigger.sent, 1)

	_, _, err = execute(t, &Env{}, "enqueue", "push")
	assert.ErrorIs(t, err, messaging.ErrNoQueue)
}
