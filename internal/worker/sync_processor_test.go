package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/messaging"
)

type fakeEngine struct {
	pull func(ctx context.Context, w model.PullWindow, onProgress model.ProgressFunc) (model.SyncResult, error)
	push func(ctx context.Context, onProgress model.ProgressFunc) (model.SyncResult, error)
}

func (f fakeEngine) Pull(ctx context.Context, w model.PullWindow, onProgress model.ProgressFunc) (model.SyncResult, error) {
	return f.pull(ctx, w, onProgress)
}

func (f fakeEngine) Push(ctx context.Context, onProgress model.ProgressFunc) (model.SyncResult, error) {
	return f.push(ctx, onProgress)
}

// recorder collects notifier events.
type recorder struct {
	mu        sync.Mutex
	queued    []messaging.JobEvent
	started   []messaging.JobEvent
	progress  []messaging.ProgressEvent
	completed []messaging.CompletionEvent
}

func (r *recorder) Queued(_ context.Context, ev messaging.JobEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, ev)
}

func (r *recorder) Started(_ context.Context, ev messaging.JobEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, ev)
}

func (r *recorder) Progress(_ context.Context, ev messaging.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, ev)
}

func (r *recorder) Completed(_ context.Context, ev messaging.CompletionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, ev)
}

func (r *recorder) completedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed)
}

func TestSyncProcessorReportsLifecycle(t *testing.T) {
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	from := &d
	engine := fakeEngine{
		pull: func(_ context.Context, w model.PullWindow, onProgress model.ProgressFunc) (model.SyncResult, error) {
			assert.Equal(t, from, w.From)
			onProgress(model.Progress{Type: model.SyncPull, Page: 1, Stats: model.Stats{Processed: 1}})
			return model.SyncResult{OK: true, Message: "Pull completed", RunID: 9, Type: model.SyncPull, Stats: model.Stats{Processed: 1, Success: 2}}, nil
		},
	}
	rec := &recorder{}
	proc := NewSyncProcessor(engine, engine, rec, false)

	job := NewJob(model.SyncPull, messaging.TriggerManual, model.PullWindow{From: from})
	proc.Run(context.Background(), job)

	require.Len(t, rec.started, 1)
	require.Len(t, rec.progress, 1)
	assert.Equal(t, job.ID, rec.progress[0].JobID)
	require.Len(t, rec.completed, 1)
	done := rec.completed[0]
	assert.Equal(t, job.ID, done.JobID)
	assert.Equal(t, int64(9), done.Result.RunID)
	assert.Empty(t, done.Error)
	assert.False(t, done.Skipped)
	assert.Zero(t, proc.Running(model.SyncPull))
}

func TestSyncProcessorCarriesRunError(t *testing.T) {
	engine := fakeEngine{
		push: func(context.Context, model.ProgressFunc) (model.SyncResult, error) {
			return model.SyncResult{OK: false, Message: "authentication error", Type: model.SyncPush}, errors.New("authentication error")
		},
	}
	rec := &recorder{}
	NewSyncProcessor(engine, engine, rec, false).Run(context.Background(), NewJob(model.SyncPush, messaging.TriggerSchedule, model.PullWindow{}))

	require.Len(t, rec.completed, 1)
	assert.Equal(t, "authentication error", rec.completed[0].Error)
	assert.False(t, rec.completed[0].Result.OK)
}

func TestSyncProcessorSingleFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	engine := fakeEngine{
		push: func(context.Context, model.ProgressFunc) (model.SyncResult, error) {
			entered <- struct{}{}
			<-release
			return model.SyncResult{OK: true, Type: model.SyncPush}, nil
		},
	}

	tests := []struct {
		name         string
		singleFlight bool
		wantSkipped  bool
	}{
		{name: "overlap allowed", singleFlight: false, wantSkipped: false},
		{name: "overlap skipped", singleFlight: true, wantSkipped: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			proc := NewSyncProcessor(engine, engine, rec, tt.singleFlight)

			first := make(chan struct{})
			go func() {
				proc.Run(context.Background(), NewJob(model.SyncPush, messaging.TriggerSchedule, model.PullWindow{}))
				close(first)
			}()
			<-entered

			second := make(chan struct{})
			go func() {
				proc.Run(context.Background(), NewJob(model.SyncPush, messaging.TriggerManual, model.PullWindow{}))
				close(second)
			}()

			if tt.wantSkipped {
				<-second
				require.Equal(t, 1, rec.completedCount())
				assert.True(t, rec.completed[0].Skipped)
				assert.Equal(t, messaging.TriggerManual, rec.completed[0].Trigger)
				release <- struct{}{}
			} else {
				<-entered
				assert.Equal(t, 2, proc.Running(model.SyncPush))
				release <- struct{}{}
				release <- struct{}{}
				<-second
			}
			<-first
		})
	}
}
