package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/repository"
)

// runRecorder owns the SyncRun row of one pull or push and finalizes it once.
type runRecorder struct {
	runs     repository.SyncRunStore
	id       int64
	syncType model.SyncType
	now      func() time.Time
	done     bool
}

func startRun(ctx context.Context, runs repository.SyncRunStore, syncType model.SyncType, now func() time.Time) (*runRecorder, error) {
	id, err := runs.CreateSyncRun(ctx, syncType, now())
	if err != nil {
		return nil, fmt.Errorf("create %s run: %w", syncType, err)
	}
	return &runRecorder{runs: runs, id: id, syncType: syncType, now: now}, nil
}

// finish writes the terminal state. Storage is reached through a context
// that ignores cancellation so a cancelled caller still leaves a finished row.
func (r *runRecorder) finish(ctx context.Context, status model.RunStatus, stats model.Stats, runErr error, metadata any) error {
	if r.done {
		return nil
	}
	r.done = true

	res := repository.SyncRunResult{
		Status:      status,
		Processed:   stats.Processed,
		Success:     stats.Success,
		Failed:      stats.Failed,
		CompletedAt: r.now(),
	}
	if runErr != nil {
		res.Error = model.Ptr(runErr.Error())
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encode %s run metadata: %w", r.syncType, err)
		}
		res.Metadata = raw
	}

	if err := r.runs.FinishSyncRun(context.WithoutCancel(ctx), r.id, res); err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("run_id", r.id).Msg("Failed to finalize sync run")
		return fmt.Errorf("finish %s run %d: %w", r.syncType, r.id, err)
	}
	return nil
}

// fail finalizes the run as error and builds the caller's result.
func (r *runRecorder) fail(ctx context.Context, stats model.Stats, runErr error, metadata any) (model.SyncResult, error) {
	if err := r.finish(ctx, model.RunError, stats, runErr, metadata); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Run error could not be recorded")
	}
	log.Ctx(ctx).Error().Err(runErr).Int64("run_id", r.id).Str("sync_type", string(r.syncType)).Msg("Sync run failed")
	return model.SyncResult{
		OK:      false,
		Message: runErr.Error(),
		Stats:   stats,
		RunID:   r.id,
		Type:    r.syncType,
	}, runErr
}

// recoverPanic finalizes an unfinished run before letting a panic continue.
func (r *runRecorder) recoverPanic(ctx context.Context, stats *model.Stats) {
	if p := recover(); p != nil {
		_ = r.finish(ctx, model.RunError, *stats, fmt.Errorf("panic: %v", p), nil)
		panic(p)
	}
}
