package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"timebridge.service/internal/adapters/payroll"
	"timebridge.service/internal/adapters/transport"
	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/repository"
)

const (
	DefaultBatchLimit = 500

	errNoIdentifier = "success but no identifier returned"
	errDuplicate    = "duplicate in backend"
)

type PushStore interface {
	repository.TimesheetStore
	repository.SyncRunStore
	repository.ConfigStore
}

// PushService submits unsynced events to the cloud payroll endpoint, one
// request per event, persisting each outcome as soon as it is known.
type PushService struct {
	store      PushStore
	auth       *AuthService
	client     PayrollAPI
	batchLimit int
	now        func() time.Time
}

func NewPushService(store PushStore, auth *AuthService, client PayrollAPI, batchLimit int) *PushService {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	return &PushService{store: store, auth: auth, client: client, batchLimit: batchLimit, now: time.Now}
}

type pushMetadata struct {
	BatchSize int `json:"batch_size"`
}

// Push drains up to one batch of pending events. OK is true whenever the
// batch ran to the end, even if some records failed.
func (s *PushService) Push(ctx context.Context, onProgress model.ProgressFunc) (model.SyncResult, error) {
	run, err := startRun(ctx, s.store, model.SyncPush, s.now)
	if err != nil {
		return model.SyncResult{Type: model.SyncPush, Message: err.Error()}, err
	}

	var stats model.Stats
	defer run.recoverPanic(ctx, &stats)

	logger := log.Ctx(ctx).With().Int64("run_id", run.id).Str("sync_type", string(model.SyncPush)).Logger()
	ctx = logger.WithContext(ctx)

	cfg, err := s.store.GetEndpointConfig(ctx)
	if err != nil {
		return run.fail(ctx, stats, err, nil)
	}
	if cfg.CloudURL == "" {
		return run.fail(ctx, stats, fmt.Errorf("%w: cloud URL is not configured", ErrConfiguration), nil)
	}

	events, err := s.store.ListUnsynced(ctx, s.batchLimit)
	if err != nil {
		return run.fail(ctx, stats, err, nil)
	}
	meta := pushMetadata{BatchSize: len(events)}
	if len(events) == 0 {
		if err := run.finish(ctx, model.RunSuccess, stats, nil, meta); err != nil {
			return run.fail(ctx, stats, err, meta)
		}
		logger.Info().Msg("No records to sync")
		return model.SyncResult{OK: true, Message: "No records to sync", RunID: run.id, Type: model.SyncPush}, nil
	}

	token, err := s.auth.GetValidToken(ctx, model.EndpointCloud)
	if err != nil {
		return run.fail(ctx, stats, err, meta)
	}

	logger.Info().Int("batch_size", len(events)).Msg("Push started")
	for _, ev := range events {
		stats.Processed++
		synced, err := s.pushEvent(ctx, logger, cfg.CloudURL, &token, ev)
		if err != nil {
			return run.fail(ctx, stats, err, meta)
		}
		if synced {
			stats.Success++
		} else {
			stats.Failed++
		}
		if onProgress != nil {
			onProgress(model.Progress{Type: model.SyncPush, RunID: run.id, Stats: stats})
		}
	}

	if err := s.store.TouchLastSync(ctx, model.SyncPush, s.now()); err != nil {
		return run.fail(ctx, stats, err, meta)
	}

	status := model.RunSuccess
	var runErr error
	if stats.Failed > 0 {
		status = model.RunError
		runErr = fmt.Errorf("%d of %d records failed", stats.Failed, stats.Processed)
	}
	if err := run.finish(ctx, status, stats, runErr, meta); err != nil {
		return run.fail(ctx, stats, err, meta)
	}

	msg := fmt.Sprintf("Push completed: %d synced, %d failed", stats.Success, stats.Failed)
	logger.Info().
		Int("processed", stats.Processed).
		Int("success", stats.Success).
		Int("failed", stats.Failed).
		Msg("Push completed")
	return model.SyncResult{OK: true, Message: msg, Stats: stats, RunID: run.id, Type: model.SyncPush}, nil
}

// pushEvent submits one event and records its outcome. The returned error
// is fatal for the run: a storage failure or a token the endpoint keeps
// rejecting.
func (s *PushService) pushEvent(ctx context.Context, logger zerolog.Logger, baseURL string, token *string, ev model.TimesheetEvent) (bool, error) {
	req := payroll.NewSyncRequest(logEntry(ev))

	resp, err := s.client.SyncLogs(ctx, baseURL, *token, req)
	if errors.Is(err, payroll.ErrUnauthorized) {
		logger.Warn().Int64("event_id", ev.ID).Msg("Cloud token rejected, re-authenticating")
		if err := s.auth.Invalidate(ctx, model.EndpointCloud); err != nil {
			return false, err
		}
		if *token, err = s.auth.GetValidToken(ctx, model.EndpointCloud); err != nil {
			return false, err
		}
		resp, err = s.client.SyncLogs(ctx, baseURL, *token, req)
		if errors.Is(err, payroll.ErrUnauthorized) {
			if err := s.store.MarkSyncFailed(ctx, ev.ID, "HTTP 401: token rejected after re-authentication"); err != nil {
				return false, err
			}
			return false, fmt.Errorf("%w: cloud endpoint rejected a fresh token", ErrAuthentication)
		}
	}
	if err != nil {
		logger.Warn().Err(err).Int64("event_id", ev.ID).Msg("Push request failed")
		return false, s.store.MarkSyncFailed(ctx, ev.ID, "Request failed: "+err.Error())
	}

	remoteID, failure := interpretPushResponse(resp)
	if failure != "" {
		logger.Warn().Int64("event_id", ev.ID).Int("status", resp.StatusCode).Str("reason", failure).Msg("Event rejected")
		return false, s.store.MarkSyncFailed(ctx, ev.ID, failure)
	}
	if err := s.store.MarkSynced(ctx, ev.ID, remoteID, s.now()); err != nil {
		return false, err
	}
	return true, nil
}

// interpretPushResponse returns the remote id of an accepted event, or the
// failure text to store against it.
func interpretPushResponse(resp *transport.Response) (string, string) {
	switch {
	case resp.Success():
		if id := extractRemoteID(resp.Body, "id", "timesheet_id", "log_id", "existing_id"); id != "" {
			return id, ""
		}
		return "", errNoIdentifier
	case resp.StatusCode == http.StatusConflict:
		if id := extractRemoteID(resp.Body, "existing_id", "id", "timesheet_id", "log_id"); id != "" {
			return id, ""
		}
		return "", errDuplicate
	default:
		return "", fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Snippet(200))
	}
}

// extractRemoteID looks for the first of keys at the top level, under
// "data", and in the first element of "results", "data" or "log_list".
func extractRemoteID(body []byte, keys ...string) string {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return ""
	}

	candidates := []any{root}
	if obj, ok := root.(map[string]any); ok {
		if data, ok := obj["data"].(map[string]any); ok {
			candidates = append(candidates, data)
		}
		for _, list := range []string{"results", "data", "log_list"} {
			if items, ok := obj[list].([]any); ok && len(items) > 0 {
				candidates = append(candidates, items[0])
			}
		}
	}
	if items, ok := root.([]any); ok && len(items) > 0 {
		candidates = append(candidates, items[0])
	}

	for _, c := range candidates {
		obj, ok := c.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			if id := identifierString(obj[key]); id != "" {
				return id
			}
		}
	}
	return ""
}

func identifierString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

func logEntry(ev model.TimesheetEvent) payroll.LogEntry {
	employee := ev.EmployeeExtID
	if ev.EmployeeCode != nil && *ev.EmployeeCode != "" {
		employee = *ev.EmployeeCode
	}
	entry := payroll.LogEntry{
		ID:           ev.ID,
		Employee:     employee,
		EmployeeName: ev.EmployeeName,
		LogTime:      ev.LogTime(),
		LogType:      ev.Direction.LogType(),
		SyncID:       ev.DedupKey,
		Date:         ev.EventDate,
		Photo:        ev.Photo,
	}
	if !ev.CreatedAt.IsZero() {
		entry.CreatedAt = ev.CreatedAt.UTC().Format(time.RFC3339)
	}
	return entry
}
