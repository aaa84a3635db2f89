package model

import (
	"encoding/json"
	"time"
)

// Direction of a timesheet event.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// LogType is the cloud payroll spelling of a direction.
func (d Direction) LogType() string {
	if d == DirectionOut {
		return "OUT"
	}
	return "IN"
}

// EventStatus is the local processing status of a timesheet event. It is
// independent of the remote sync state.
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusError   EventStatus = "error"
)

// SyncType identifies which pipeline a run belongs to.
type SyncType string

const (
	SyncPull SyncType = "pull"
	SyncPush SyncType = "push"
)

// RunStatus is the lifecycle of a SyncRun.
type RunStatus string

const (
	RunStarted RunStatus = "started"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Endpoint names one of the two remote systems.
type Endpoint string

const (
	EndpointOnPrem Endpoint = "onprem"
	EndpointCloud  Endpoint = "cloud"
)

func (e Endpoint) Valid() bool {
	return e == EndpointOnPrem || e == EndpointCloud
}

type Employee struct {
	ID         int64      `json:"id"`
	ExternalID string     `json:"externalId"`
	Name       string     `json:"name"`
	Code       *string    `json:"code,omitempty"`
	Number     *string    `json:"number,omitempty"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type TimesheetEvent struct {
	ID            int64       `json:"id"`
	DedupKey      string      `json:"dedupKey"`
	EmployeeID    int64       `json:"employeeId"`
	Direction     Direction   `json:"direction"`
	EventDate     string      `json:"eventDate"`
	EventTime     string      `json:"eventTime"`
	Photo         *string     `json:"photo,omitempty"`
	Status        EventStatus `json:"status"`
	RemoteID      *string     `json:"remoteId,omitempty"`
	SyncError     *string     `json:"syncError,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	SyncedAt      *time.Time  `json:"syncedAt,omitempty"`
	EmployeeExtID string      `json:"employeeExternalId,omitempty"`
	EmployeeName  string      `json:"employeeName,omitempty"`
	EmployeeCode  *string     `json:"employeeCode,omitempty"`
}

// Synced reports whether the cloud endpoint has acknowledged the event.
func (e TimesheetEvent) Synced() bool {
	return e.RemoteID != nil && *e.RemoteID != ""
}

// LogTime joins date and time as "2006-01-02 15:04:05".
func (e TimesheetEvent) LogTime() string {
	return e.EventDate + " " + e.EventTime
}

type SyncRun struct {
	ID          int64           `json:"id"`
	Type        SyncType        `json:"syncType"`
	Status      RunStatus       `json:"status"`
	Processed   int             `json:"recordsProcessed"`
	Success     int             `json:"recordsSuccess"`
	Failed      int             `json:"recordsFailed"`
	Error       *string         `json:"errorMessage,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// EndpointConfig is the singleton holding both endpoints' settings.
type EndpointConfig struct {
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
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// EndpointConfigUpdate carries only the fields a caller wants to change.
// A nil pointer leaves the stored value untouched.
type EndpointConfigUpdate struct {
	OnPremHost          *string `json:"onpremHost,omitempty" validate:"omitempty,max=255"`
	OnPremUsername      *string `json:"onpremUsername,omitempty" validate:"omitempty,max=255"`
	OnPremPassword      *string `json:"onpremPassword,omitempty"`
	CloudURL            *string `json:"cloudUrl,omitempty" validate:"omitempty,url"`
	CloudUsername       *string `json:"cloudUsername,omitempty" validate:"omitempty,max=255"`
	CloudPassword       *string `json:"cloudPassword,omitempty"`
	PullIntervalMinutes *int    `json:"pullIntervalMinutes,omitempty" validate:"omitempty,min=0,max=10080"`
	PushIntervalMinutes *int    `json:"pushIntervalMinutes,omitempty" validate:"omitempty,min=0,max=10080"`
}

func (u EndpointConfigUpdate) Empty() bool {
	return u.OnPremHost == nil && u.OnPremUsername == nil && u.OnPremPassword == nil &&
		u.CloudURL == nil && u.CloudUsername == nil && u.CloudPassword == nil &&
		u.PullIntervalMinutes == nil && u.PushIntervalMinutes == nil
}

// TimesheetStats summarises the event table.
type TimesheetStats struct {
	Total     int `json:"total"`
	Synced    int `json:"synced"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
	Employees int `json:"employees"`
}

// Stats is the outcome counters of one run.
type Stats struct {
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// SyncResult is what a pull or push returns to its caller.
type SyncResult struct {
	OK      bool     `json:"ok"`
	Message string   `json:"message"`
	Stats   Stats    `json:"stats"`
	RunID   int64    `json:"runId"`
	Type    SyncType `json:"syncType"`
}

// Progress is the cumulative state reported while a run is in flight.
type Progress struct {
	Type  SyncType `json:"syncType"`
	RunID int64    `json:"runId"`
	Page  int      `json:"page,omitempty"`
	Stats Stats    `json:"stats"`
}

// ProgressFunc observes a run. Implementations must return promptly.
type ProgressFunc func(Progress)

// PullWindow is an optional explicit range for a pull.
type PullWindow struct {
	From *time.Time
	To   *time.Time
}

func Ptr[T any](v T) *T {
	return &v
}
