package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timebridge.service/internal/core/model"
)

const timesheetSelect = `
	SELECT t.id, t.dedup_key, t.employee_id, t.direction, t.event_date, t.event_time,
	       t.photo, t.status, t.remote_id, t.sync_error, t.created_at, t.synced_at,
	       e.external_id, e.name, e.code
	FROM timesheet_events t
	JOIN employees e ON e.id = t.employee_id`

// InsertTimesheetEvent stores a new event. A dedup key that already exists
// leaves the table untouched and reports inserted=false.
func (r *SQLRepository) InsertTimesheetEvent(ctx context.Context, ev NewTimesheetEvent) (int64, bool, error) {
	status := ev.Status
	if status == "" {
		status = model.EventStatusSuccess
	}

	var id int64
	err := r.queryRow(ctx, `
		INSERT INTO timesheet_events (dedup_key, employee_id, direction, event_date, event_time, photo, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedup_key) DO NOTHING
		RETURNING id`,
		ev.DedupKey, ev.EmployeeID, string(ev.Direction), ev.EventDate, ev.EventTime, ev.Photo, string(status), r.timestamp(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert timesheet event %s: %w", ev.DedupKey, err)
	}
	return id, true, nil
}

// GetTimesheetEvent returns nil when the id is unknown.
func (r *SQLRepository) GetTimesheetEvent(ctx context.Context, id int64) (*model.TimesheetEvent, error) {
	row := r.queryRow(ctx, timesheetSelect+` WHERE t.id = ?`, id)
	ev, err := scanTimesheet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

// ListUnsynced returns events awaiting acknowledgment, oldest first.
func (r *SQLRepository) ListUnsynced(ctx context.Context, limit int) ([]model.TimesheetEvent, error) {
	return r.listTimesheets(ctx, timesheetSelect+`
		WHERE t.remote_id IS NULL AND t.status = ?
		ORDER BY t.created_at ASC, t.id ASC
		LIMIT ?`, string(model.EventStatusSuccess), limit)
}

// ListTimesheets returns one page of events, newest first, plus the total count.
func (r *SQLRepository) ListTimesheets(ctx context.Context, limit, offset int) ([]model.TimesheetEvent, int, error) {
	var total int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM timesheet_events`).Scan(&total); err != nil {
		return nil, 0, err
	}
	events, err := r.listTimesheets(ctx, timesheetSelect+`
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

func (r *SQLRepository) listTimesheets(ctx context.Context, query string, args ...any) ([]model.TimesheetEvent, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TimesheetEvent
	for rows.Next() {
		ev, err := scanTimesheet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// MarkSynced records the remote acknowledgment and clears any prior error.
func (r *SQLRepository) MarkSynced(ctx context.Context, id int64, remoteID string, at time.Time) error {
	res, err := r.exec(ctx, `
		UPDATE timesheet_events
		SET remote_id = ?, synced_at = ?, sync_error = NULL
		WHERE id = ?`, remoteID, normalizeTime(at), id)
	if err != nil {
		return fmt.Errorf("mark event %d synced: %w", id, err)
	}
	return requireAffected(res)
}

// MarkSyncFailed stores the last push error. The event stays pending.
func (r *SQLRepository) MarkSyncFailed(ctx context.Context, id int64, message string) error {
	res, err := r.exec(ctx, `UPDATE timesheet_events SET sync_error = ? WHERE id = ?`, message, id)
	if err != nil {
		return fmt.Errorf("mark event %d failed: %w", id, err)
	}
	return requireAffected(res)
}

// ClearSyncError is the operator retry: only the error text is reset.
func (r *SQLRepository) ClearSyncError(ctx context.Context, id int64) error {
	res, err := r.exec(ctx, `UPDATE timesheet_events SET sync_error = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear error on event %d: %w", id, err)
	}
	return requireAffected(res)
}

// DeleteTimesheetsInRange removes events whose date falls in [from, to].
// Both bounds are "2006-01-02" strings.
func (r *SQLRepository) DeleteTimesheetsInRange(ctx context.Context, from, to string) (int64, error) {
	res, err := r.exec(ctx, `DELETE FROM timesheet_events WHERE event_date >= ? AND event_date <= ?`, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete events %s..%s: %w", from, to, err)
	}
	return res.RowsAffected()
}

func (r *SQLRepository) TimesheetStats(ctx context.Context) (model.TimesheetStats, error) {
	var s model.TimesheetStats
	err := r.queryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN remote_id IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN remote_id IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN remote_id IS NULL AND sync_error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM timesheet_events`).Scan(&s.Total, &s.Synced, &s.Pending, &s.Errors)
	if err != nil {
		return s, err
	}
	err = r.queryRow(ctx, `SELECT COUNT(*) FROM employees WHERE deleted_at IS NULL`).Scan(&s.Employees)
	return s, err
}

func scanTimesheet(s scanner) (*model.TimesheetEvent, error) {
	var (
		ev                       model.TimesheetEvent
		direction, status        string
		photo, remoteID, syncErr sql.NullString
		empCode                  sql.NullString
		createdAt, syncedAt      sql.NullTime
	)
	err := s.Scan(&ev.ID, &ev.DedupKey, &ev.EmployeeID, &direction, &ev.EventDate, &ev.EventTime,
		&photo, &status, &remoteID, &syncErr, &createdAt, &syncedAt,
		&ev.EmployeeExtID, &ev.EmployeeName, &empCode)
	if err != nil {
		return nil, err
	}
	ev.Direction = model.Direction(direction)
	ev.Status = model.EventStatus(status)
	ev.Photo = nullStringPtr(photo)
	ev.RemoteID = nullStringPtr(remoteID)
	ev.SyncError = nullStringPtr(syncErr)
	ev.EmployeeCode = nullStringPtr(empCode)
	ev.CreatedAt = createdAt.Time.UTC()
	ev.SyncedAt = nullTimePtr(syncedAt)
	return &ev, nil
}
