package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timebridge.service/internal/core/model"
)

const syncRunColumns = `id, sync_type, status, records_processed, records_success, records_failed,
	error_message, metadata, started_at, completed_at`

func (r *SQLRepository) CreateSyncRun(ctx context.Context, syncType model.SyncType, startedAt time.Time) (int64, error) {
	var id int64
	err := r.queryRow(ctx, `
		INSERT INTO sync_runs (sync_type, status, started_at)
		VALUES (?, ?, ?)
		RETURNING id`, string(syncType), string(model.RunStarted), normalizeTime(startedAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create %s sync run: %w", syncType, err)
	}
	return id, nil
}

// FinishSyncRun finalizes a run. Only a run still in "started" is updated, so
// a second call reports ErrNotFound instead of overwriting the outcome.
func (r *SQLRepository) FinishSyncRun(ctx context.Context, id int64, res SyncRunResult) error {
	var metadata any
	if len(res.Metadata) > 0 {
		metadata = string(res.Metadata)
	}
	result, err := r.exec(ctx, `
		UPDATE sync_runs
		SET status = ?,
		    records_processed = ?,
		    records_success = ?,
		    records_failed = ?,
		    error_message = ?,
		    metadata = ?,
		    completed_at = ?
		WHERE id = ? AND status = ?`,
		string(res.Status), res.Processed, res.Success, res.Failed, res.Error, metadata,
		normalizeTime(res.CompletedAt), id, string(model.RunStarted),
	)
	if err != nil {
		return fmt.Errorf("finish sync run %d: %w", id, err)
	}
	return requireAffected(result)
}

// GetSyncRun returns nil when the id is unknown.
func (r *SQLRepository) GetSyncRun(ctx context.Context, id int64) (*model.SyncRun, error) {
	run, err := scanSyncRun(r.queryRow(ctx, `SELECT `+syncRunColumns+` FROM sync_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListSyncRuns returns the most recent runs. An empty syncType lists both.
func (r *SQLRepository) ListSyncRuns(ctx context.Context, syncType model.SyncType, limit int) ([]model.SyncRun, error) {
	query := `SELECT ` + syncRunColumns + ` FROM sync_runs`
	args := []any{}
	if syncType != "" {
		query += ` WHERE sync_type = ?`
		args = append(args, string(syncType))
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func scanSyncRun(s scanner) (*model.SyncRun, error) {
	var (
		run                    model.SyncRun
		syncType, status       string
		errMsg, metadata       sql.NullString
		startedAt, completedAt sql.NullTime
	)
	err := s.Scan(&run.ID, &syncType, &status, &run.Processed, &run.Success, &run.Failed,
		&errMsg, &metadata, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	run.Type = model.SyncType(syncType)
	run.Status = model.RunStatus(status)
	run.Error = nullStringPtr(errMsg)
	if metadata.Valid && metadata.String != "" {
		run.Metadata = []byte(metadata.String)
	}
	run.StartedAt = startedAt.Time.UTC()
	run.CompletedAt = nullTimePtr(completedAt)
	return &run, nil
}
