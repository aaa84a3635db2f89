package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/repository"
)

// MaskedSecret replaces stored secrets in every config read. Updates that
// carry it leave the stored value untouched.
const MaskedSecret = "***"

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// Dashboard is the stats view of the operator UI.
type Dashboard struct {
	Timesheets          model.TimesheetStats `json:"timesheets"`
	LastPullAt          *time.Time           `json:"lastPullAt,omitempty"`
	LastPushAt          *time.Time           `json:"lastPushAt,omitempty"`
	PullIntervalMinutes int                  `json:"pullIntervalMinutes"`
	PushIntervalMinutes int                  `json:"pushIntervalMinutes"`
}

type TimesheetPage struct {
	Items  []model.TimesheetEvent `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// PublicConfig is EndpointConfig with every secret masked.
type PublicConfig struct {
	OnPremHost          string          `json:"onpremHost"`
	OnPremUsername      string          `json:"onpremUsername"`
	OnPremPassword      string          `json:"onpremPassword"`
	OnPremToken         string          `json:"onpremToken"`
	OnPremTokenIssuedAt *time.Time      `json:"onpremTokenIssuedAt,omitempty"`
	CloudURL            string          `json:"cloudUrl"`
	CloudUsername       string          `json:"cloudUsername"`
	CloudPassword       string          `json:"cloudPassword"`
	CloudToken          string          `json:"cloudToken"`
	CloudTokenMetadata  json.RawMessage `json:"cloudTokenMetadata,omitempty"`
	CloudTokenIssuedAt  *time.Time      `json:"cloudTokenIssuedAt,omitempty"`
	PullIntervalMinutes int             `json:"pullIntervalMinutes"`
	PushIntervalMinutes int             `json:"pushIntervalMinutes"`
	LastPullAt          *time.Time      `json:"lastPullAt,omitempty"`
	LastPushAt          *time.Time      `json:"lastPushAt,omitempty"`
}

// AdminService backs the operator-facing requests that are not sync runs.
type AdminService struct {
	repo     repository.Repository
	auth     *AuthService
	validate *validator.Validate
}

func NewAdminService(repo repository.Repository, auth *AuthService) *AdminService {
	return &AdminService{repo: repo, auth: auth, validate: validator.New()}
}

func (s *AdminService) Stats(ctx context.Context) (*Dashboard, error) {
	stats, err := s.repo.TimesheetStats(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := s.repo.GetEndpointConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Timesheets:          stats,
		LastPullAt:          cfg.LastPullAt,
		LastPushAt:          cfg.LastPushAt,
		PullIntervalMinutes: cfg.PullIntervalMinutes,
		PushIntervalMinutes: cfg.PushIntervalMinutes,
	}, nil
}

func (s *AdminService) ListTimesheets(ctx context.Context, limit, offset int) (*TimesheetPage, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.repo.ListTimesheets(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return &TimesheetPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *AdminService) ListUnsynced(ctx context.Context, limit int) ([]model.TimesheetEvent, error) {
	return s.repo.ListUnsynced(ctx, clampLimit(limit))
}

// RetryTimesheet clears the sync error of one event so the next push picks
// it up again. Synced events are left alone.
func (s *AdminService) RetryTimesheet(ctx context.Context, id int64) error {
	ev, err := s.repo.GetTimesheetEvent(ctx, id)
	if err != nil {
		return err
	}
	if ev == nil {
		return fmt.Errorf("timesheet %d: %w", id, repository.ErrNotFound)
	}
	if ev.Synced() {
		return fmt.Errorf("%w: timesheet %d is already synced", ErrInvalidInput, id)
	}
	return s.repo.ClearSyncError(ctx, id)
}

// ClearRange deletes the events dated within [from, to], both yyyy-MM-dd.
func (s *AdminService) ClearRange(ctx context.Context, from, to string) (int64, error) {
	f, err := time.Parse(dateLayout, from)
	if err != nil {
		return 0, fmt.Errorf("%w: from must be yyyy-MM-dd", ErrInvalidInput)
	}
	t, err := time.Parse(dateLayout, to)
	if err != nil {
		return 0, fmt.Errorf("%w: to must be yyyy-MM-dd", ErrInvalidInput)
	}
	if t.Before(f) {
		return 0, fmt.Errorf("%w: to is before from", ErrInvalidInput)
	}

	n, err := s.repo.DeleteTimesheetsInRange(ctx, from, to)
	if err != nil {
		return 0, err
	}
	log.Ctx(ctx).Info().Str("from", from).Str("to", to).Int64("deleted", n).Msg("Cleared timesheet range")
	return n, nil
}

func (s *AdminService) ListEmployees(ctx context.Context) ([]model.Employee, error) {
	return s.repo.ListEmployees(ctx)
}

func (s *AdminService) ListSyncRuns(ctx context.Context, syncType model.SyncType, limit int) ([]model.SyncRun, error) {
	if syncType != "" && syncType != model.SyncPull && syncType != model.SyncPush {
		return nil, fmt.Errorf("%w: unknown sync type %q", ErrInvalidInput, syncType)
	}
	return s.repo.ListSyncRuns(ctx, syncType, clampLimit(limit))
}

func (s *AdminService) GetSyncRun(ctx context.Context, id int64) (*model.SyncRun, error) {
	run, err := s.repo.GetSyncRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("sync run %d: %w", id, repository.ErrNotFound)
	}
	return run, nil
}

func (s *AdminService) GetConfig(ctx context.Context) (*PublicConfig, error) {
	cfg, err := s.repo.GetEndpointConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &PublicConfig{
		OnPremHost:          cfg.OnPremHost,
		OnPremUsername:      cfg.OnPremUsername,
		OnPremPassword:      mask(cfg.OnPremPassword),
		OnPremToken:         mask(cfg.OnPremToken),
		OnPremTokenIssuedAt: cfg.OnPremTokenIssuedAt,
		CloudURL:            cfg.CloudURL,
		CloudUsername:       cfg.CloudUsername,
		CloudPassword:       mask(cfg.CloudPassword),
		CloudToken:          mask(cfg.CloudToken),
		CloudTokenMetadata:  cfg.CloudTokenMetadata,
		CloudTokenIssuedAt:  cfg.CloudTokenIssuedAt,
		PullIntervalMinutes: cfg.PullIntervalMinutes,
		PushIntervalMinutes: cfg.PushIntervalMinutes,
		LastPullAt:          cfg.LastPullAt,
		LastPushAt:          cfg.LastPushAt,
	}, nil
}

// UpdateConfig applies a partial update. Masked secrets are dropped before
// validation, and a change to an endpoint's address or credentials forgets
// that endpoint's token.
func (s *AdminService) UpdateConfig(ctx context.Context, u model.EndpointConfigUpdate) error {
	if u.OnPremPassword != nil && *u.OnPremPassword == MaskedSecret {
		u.OnPremPassword = nil
	}
	if u.CloudPassword != nil && *u.CloudPassword == MaskedSecret {
		u.CloudPassword = nil
	}
	if err := s.validate.Struct(u); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrInvalidInput, verrs.Error())
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if u.Empty() {
		return nil
	}

	current, err := s.repo.GetEndpointConfig(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateEndpointConfig(ctx, u); err != nil {
		return err
	}

	if changed(u.OnPremHost, current.OnPremHost) || changed(u.OnPremUsername, current.OnPremUsername) || changed(u.OnPremPassword, current.OnPremPassword) {
		if err := s.auth.Invalidate(ctx, model.EndpointOnPrem); err != nil {
			return err
		}
	}
	if changed(u.CloudURL, current.CloudURL) || changed(u.CloudUsername, current.CloudUsername) || changed(u.CloudPassword, current.CloudPassword) {
		if err := s.auth.Invalidate(ctx, model.EndpointCloud); err != nil {
			return err
		}
	}
	log.Ctx(ctx).Info().Msg("Endpoint configuration updated")
	return nil
}

func (s *AdminService) TestConnection(ctx context.Context, endpoint model.Endpoint) (bool, string) {
	if !endpoint.Valid() {
		return false, fmt.Sprintf("Unknown endpoint %q", endpoint)
	}
	return s.auth.TestConnection(ctx, endpoint)
}

// CloudLogin forces a new cloud session and returns its account metadata.
func (s *AdminService) CloudLogin(ctx context.Context) (json.RawMessage, error) {
	session, err := s.auth.Login(ctx)
	if err != nil {
		return nil, err
	}
	return session.Metadata, nil
}

func (s *AdminService) CloudLogout(ctx context.Context) error {
	return s.auth.Logout(ctx)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return MaskedSecret
}

func changed(next *string, current string) bool {
	return next != nil && *next != current
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
