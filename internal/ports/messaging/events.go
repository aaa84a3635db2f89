package messaging

import (
	"fmt"
	"time"

	"timebridge.service/internal/core/model"
)

const (
	EventTypeCompleted = "SYNC_COMPLETED"
	EventTypeTrigger   = "SYNC_TRIGGER"
)

// Trigger names what started a job.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
	TriggerQueue    Trigger = "queue"
)

// JobEvent marks a job being queued or picked up by a worker.
type JobEvent struct {
	JobID    string         `json:"jobId"`
	SyncType model.SyncType `json:"syncType"`
	Trigger  Trigger        `json:"trigger"`
	At       time.Time      `json:"at"`
}

type ProgressEvent struct {
	JobID string `json:"jobId"`
	model.Progress
}

// CompletionEvent is the JSON payload published when a job ends, whether it
// ran, failed or was skipped.
type CompletionEvent struct {
	JobID      string           `json:"jobId"`
	SyncType   model.SyncType   `json:"syncType"`
	Trigger    Trigger          `json:"trigger"`
	Result     model.SyncResult `json:"result"`
	Error      string           `json:"error,omitempty"`
	Skipped    bool             `json:"skipped,omitempty"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
}

// TriggerMessage is the JSON payload of the trigger queue. Dates are
// yyyy-MM-dd and only apply to pulls.
type TriggerMessage struct {
	SyncType model.SyncType `json:"syncType"`
	DateFrom string         `json:"dateFrom,omitempty"`
	DateTo   string         `json:"dateTo,omitempty"`
}

// Window parses the optional dates in the local time zone.
func (m TriggerMessage) Window() (model.PullWindow, error) {
	var w model.PullWindow
	for _, d := range []struct {
		raw string
		dst **time.Time
	}{{m.DateFrom, &w.From}, {m.DateTo, &w.To}} {
		if d.raw == "" {
			continue
		}
		t, err := time.ParseInLocation("2006-01-02", d.raw, time.Local)
		if err != nil {
			return w, fmt.Errorf("date %q is not yyyy-MM-dd", d.raw)
		}
		*d.dst = &t
	}
	return w, nil
}
