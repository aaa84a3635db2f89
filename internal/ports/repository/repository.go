package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"timebridge.service/internal/core/model"
)

// ErrNotFound is returned by mutations that target a row which does not exist.
var ErrNotFound = errors.New("record not found")

type EmployeeInput struct {
	ExternalID string
	Name       string
	Code       *string
	Number     *string
}

type NewTimesheetEvent struct {
	DedupKey   string
	EmployeeID int64
	Direction  model.Direction
	EventDate  string
	EventTime  string
	Photo      *string
	Status     model.EventStatus
}

// SyncRunResult is written once when a run finishes.
type SyncRunResult struct {
	Status      model.RunStatus
	Processed   int
	Success     int
	Failed      int
	Error       *string
	Metadata    json.RawMessage
	CompletedAt time.Time
}

type EmployeeStore interface {
	UpsertEmployee(ctx context.Context, in EmployeeInput) (int64, error)
	GetEmployeeByExternalID(ctx context.Context, externalID string) (*model.Employee, error)
	ListEmployees(ctx context.Context) ([]model.Employee, error)
}

type TimesheetStore interface {
	InsertTimesheetEvent(ctx context.Context, ev NewTimesheetEvent) (id int64, inserted bool, err error)
	GetTimesheetEvent(ctx context.Context, id int64) (*model.TimesheetEvent, error)
	ListUnsynced(ctx context.Context, limit int) ([]model.TimesheetEvent, error)
	ListTimesheets(ctx context.Context, limit, offset int) ([]model.TimesheetEvent, int, error)
	MarkSynced(ctx context.Context, id int64, remoteID string, at time.Time) error
	MarkSyncFailed(ctx context.Context, id int64, message string) error
	ClearSyncError(ctx context.Context, id int64) error
	DeleteTimesheetsInRange(ctx context.Context, from, to string) (int64, error)
	TimesheetStats(ctx context.Context) (model.TimesheetStats, error)
}

type SyncRunStore interface {
	CreateSyncRun(ctx context.Context, syncType model.SyncType, startedAt time.Time) (int64, error)
	FinishSyncRun(ctx context.Context, id int64, res SyncRunResult) error
	GetSyncRun(ctx context.Context, id int64) (*model.SyncRun, error)
	ListSyncRuns(ctx context.Context, syncType model.SyncType, limit int) ([]model.SyncRun, error)
}

type ConfigStore interface {
	GetEndpointConfig(ctx context.Context) (*model.EndpointConfig, error)
	UpdateEndpointConfig(ctx context.Context, u model.EndpointConfigUpdate) error
	SetOnPremToken(ctx context.Context, token string, issuedAt time.Time) error
	ClearOnPremToken(ctx context.Context) error
	SetCloudToken(ctx context.Context, token string, metadata json.RawMessage, issuedAt time.Time) error
	ClearCloudToken(ctx context.Context) error
	TouchLastSync(ctx context.Context, syncType model.SyncType, at time.Time) error
}

// Repository contract
type Repository interface {
	EmployeeStore
	TimesheetStore
	SyncRunStore
	ConfigStore
}
