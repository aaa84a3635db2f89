package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"

	"timebridge.service/internal/core"
	"timebridge.service/internal/core/model"
	"timebridge.service/internal/worker"
)

type AdminService interface {
	Stats(ctx context.Context) (*core.Dashboard, error)
	ListTimesheets(ctx context.Context, limit, offset int) (*core.TimesheetPage, error)
	ListUnsynced(ctx context.Context, limit int) ([]model.TimesheetEvent, error)
	RetryTimesheet(ctx context.Context, id int64) error
	ClearRange(ctx context.Context, from, to string) (int64, error)
	ListEmployees(ctx context.Context) ([]model.Employee, error)
	ListSyncRuns(ctx context.Context, syncType model.SyncType, limit int) ([]model.SyncRun, error)
	GetSyncRun(ctx context.Context, id int64) (*model.SyncRun, error)
	GetConfig(ctx context.Context) (*core.PublicConfig, error)
	UpdateConfig(ctx context.Context, u model.EndpointConfigUpdate) error
	TestConnection(ctx context.Context, endpoint model.Endpoint) (bool, string)
	CloudLogin(ctx context.Context) (json.RawMessage, error)
	CloudLogout(ctx context.Context) error
}

type Scheduler interface {
	TriggerPullNow(ctx context.Context, window model.PullWindow) (string, error)
	TriggerPushNow(ctx context.Context) (string, error)
	RefreshSchedule(ctx context.Context) error
	Running() bool
	NextRuns() map[model.SyncType]time.Time
}

type JobTracker interface {
	Get(id string) (worker.JobStatus, bool)
	Active() []worker.JobStatus
}

// Handler serves the operator API.
type Handler struct {
	Admin     AdminService
	Scheduler Scheduler
	Jobs      JobTracker
	validate  *validator.Validate
}

func New(admin AdminService, scheduler Scheduler, jobs JobTracker) *Handler {
	return &Handler{Admin: admin, Scheduler: scheduler, Jobs: jobs, validate: validator.New()}
}
