package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"timebridge.service/internal/adapters/onprem"
	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/repository"
)

const DefaultPageSize = 100

type PullStore interface {
	repository.EmployeeStore
	repository.TimesheetStore
	repository.SyncRunStore
	repository.ConfigStore
}

// PullService copies attendance from the on-prem device into the store.
type PullService struct {
	store    PullStore
	auth     *AuthService
	client   OnPremAPI
	pageSize int
	now      func() time.Time
}

func NewPullService(store PullStore, auth *AuthService, client OnPremAPI, pageSize int) *PullService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &PullService{store: store, auth: auth, client: client, pageSize: pageSize, now: time.Now}
}

type pullMetadata struct {
	Skipped      int    `json:"skipped"`
	TotalRecords int    `json:"total_records"`
	Pages        int    `json:"pages"`
	WindowFrom   string `json:"window_from,omitempty"`
	WindowTo     string `json:"window_to,omitempty"`
}

// Pull fetches every report page of the window and stores the resulting
// events. Run-level failures return OK=false with the cause; bad records
// only bump the failed counter.
func (s *PullService) Pull(ctx context.Context, window model.PullWindow, onProgress model.ProgressFunc) (model.SyncResult, error) {
	run, err := startRun(ctx, s.store, model.SyncPull, s.now)
	if err != nil {
		return model.SyncResult{Type: model.SyncPull, Message: err.Error()}, err
	}

	var (
		stats model.Stats
		meta  pullMetadata
	)
	defer run.recoverPanic(ctx, &stats)

	logger := log.Ctx(ctx).With().Int64("run_id", run.id).Str("sync_type", string(model.SyncPull)).Logger()
	ctx = logger.WithContext(ctx)

	from, to, err := resolveWindow(window, s.now())
	if err != nil {
		return run.fail(ctx, stats, err, meta)
	}
	meta.WindowFrom = from.Format(onprem.TimeLayout)
	meta.WindowTo = to.Format(onprem.TimeLayout)

	cfg, err := s.store.GetEndpointConfig(ctx)
	if err != nil {
		return run.fail(ctx, stats, err, meta)
	}
	if cfg.OnPremHost == "" {
		return run.fail(ctx, stats, fmt.Errorf("%w: on-prem host is not configured", ErrConfiguration), meta)
	}

	token, err := s.auth.GetValidToken(ctx, model.EndpointOnPrem)
	if err != nil {
		return run.fail(ctx, stats, err, meta)
	}

	logger.Info().Str("from", meta.WindowFrom).Str("to", meta.WindowTo).Msg("Pull started")

	for page := 1; ; page++ {
		q := onprem.ReportQuery{Start: from, End: to, Page: page, PageSize: s.pageSize}
		resp, err := s.fetchPage(ctx, cfg.OnPremHost, &token, q)
		if err != nil {
			return run.fail(ctx, stats, err, meta)
		}

		records := resp.Data.PageData
		meta.Pages++
		meta.TotalRecords += len(records)

		for _, rec := range records {
			stats.Processed++
			if err := s.storeRecord(ctx, logger, rec, &stats); err != nil {
				return run.fail(ctx, stats, err, meta)
			}
		}
		meta.Skipped = stats.Skipped

		if onProgress != nil {
			onProgress(model.Progress{Type: model.SyncPull, RunID: run.id, Page: page, Stats: stats})
		}
		if len(records) < s.pageSize {
			break
		}
	}

	if err := s.store.TouchLastSync(ctx, model.SyncPull, s.now()); err != nil {
		return run.fail(ctx, stats, err, meta)
	}
	if err := run.finish(ctx, model.RunSuccess, stats, nil, meta); err != nil {
		return run.fail(ctx, stats, err, meta)
	}

	msg := fmt.Sprintf("Pull completed: %d new events, %d skipped, %d failed", stats.Success, stats.Skipped, stats.Failed)
	logger.Info().
		Int("processed", stats.Processed).
		Int("success", stats.Success).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int("pages", meta.Pages).
		Msg("Pull completed")
	return model.SyncResult{OK: true, Message: msg, Stats: stats, RunID: run.id, Type: model.SyncPull}, nil
}

// fetchPage requests one report page, re-authenticating once on a 401.
func (s *PullService) fetchPage(ctx context.Context, host string, token *string, q onprem.ReportQuery) (*onprem.ReportPage, error) {
	resp, err := s.client.AttendanceReport(ctx, host, *token, q)
	if errors.Is(err, onprem.ErrUnauthorized) {
		log.Ctx(ctx).Warn().Int("page", q.Page).Msg("On-prem token rejected, re-authenticating")
		if err := s.auth.Invalidate(ctx, model.EndpointOnPrem); err != nil {
			return nil, err
		}
		if *token, err = s.auth.GetValidToken(ctx, model.EndpointOnPrem); err != nil {
			return nil, err
		}
		resp, err = s.client.AttendanceReport(ctx, host, *token, q)
		if errors.Is(err, onprem.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: report page %d rejected after re-authentication", ErrAuthentication, q.Page)
		}
	}

	var statusErr *onprem.StatusError
	switch {
	case errors.As(err, &statusErr):
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	case err != nil && !errors.Is(err, ErrTransport):
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	case err != nil:
		return nil, fmt.Errorf("report page %d: %w", q.Page, err)
	}

	if int(resp.Code) != onprem.SuccessCode {
		return nil, fmt.Errorf("%w: report page %d returned code %d: %s", ErrProtocol, q.Page, int(resp.Code), resp.Desc)
	}
	return resp, nil
}

// storeRecord turns one attendance record into up to two events. Only a
// storage failure is returned; data problems are counted as failed.
func (s *PullService) storeRecord(ctx context.Context, logger zerolog.Logger, rec onprem.AttendanceRecord, stats *model.Stats) error {
	code := strings.TrimSpace(string(rec.Code))
	name := strings.TrimSpace(rec.Name)
	if code == "" || name == "" || strings.TrimSpace(rec.AttendanceDate) == "" {
		stats.Failed++
		logger.Warn().Str("code", code).Str("name", name).Msg("Skipping attendance record with missing fields")
		return nil
	}
	date, err := normalizeDate(rec.AttendanceDate)
	if err != nil {
		stats.Failed++
		logger.Warn().Err(err).Str("code", code).Msg("Skipping attendance record")
		return nil
	}

	employeeID, err := s.store.UpsertEmployee(ctx, repository.EmployeeInput{ExternalID: code, Name: name, Code: &code})
	if err != nil {
		return err
	}

	directions := []struct {
		dir model.Direction
		raw string
	}{
		{model.DirectionIn, rec.SignInTime},
		{model.DirectionOut, rec.SignOutTime},
	}
	for _, d := range directions {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		clock, err := normalizeClock(d.raw)
		if err != nil {
			stats.Failed++
			logger.Warn().Err(err).Str("code", code).Str("direction", string(d.dir)).Msg("Skipping event")
			continue
		}

		_, inserted, err := s.store.InsertTimesheetEvent(ctx, repository.NewTimesheetEvent{
			DedupKey:   DedupKey(code, date, clock, d.dir),
			EmployeeID: employeeID,
			Direction:  d.dir,
			EventDate:  date,
			EventTime:  clock,
			Status:     model.EventStatusSuccess,
		})
		if err != nil {
			return err
		}
		if inserted {
			stats.Success++
		} else {
			stats.Skipped++
		}
	}
	return nil
}
