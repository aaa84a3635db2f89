package worker

import (
	"context"
	"sync"
	"time"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/messaging"
)

type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobSkipped JobState = "skipped"
)

// JobStatus is the observable state of one job.
type JobStatus struct {
	ID         string            `json:"id"`
	SyncType   model.SyncType    `json:"syncType"`
	Trigger    messaging.Trigger `json:"trigger"`
	State      JobState          `json:"state"`
	Progress   *model.Progress   `json:"progress,omitempty"`
	Result     *model.SyncResult `json:"result,omitempty"`
	Error      string            `json:"error,omitempty"`
	QueuedAt   time.Time         `json:"queuedAt"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
}

const defaultTrackerCapacity = 200

// Tracker keeps the most recent jobs in memory for the API.
type Tracker struct {
	mu       sync.Mutex
	jobs     map[string]*JobStatus
	order    []string
	capacity int
}

func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = defaultTrackerCapacity
	}
	return &Tracker{jobs: make(map[string]*JobStatus), capacity: capacity}
}

// Get returns a copy of the job's status.
func (t *Tracker) Get(id string) (JobStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[id]
	if !ok {
		return JobStatus{}, false
	}
	return *st, true
}

// Active lists jobs that are queued or running, oldest first.
func (t *Tracker) Active() []JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []JobStatus
	for _, id := range t.order {
		if st := t.jobs[id]; st.State == JobQueued || st.State == JobRunning {
			out = append(out, *st)
		}
	}
	return out
}

func (t *Tracker) Queued(_ context.Context, ev messaging.JobEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[ev.JobID]; ok {
		return
	}
	t.jobs[ev.JobID] = &JobStatus{ID: ev.JobID, SyncType: ev.SyncType, Trigger: ev.Trigger, State: JobQueued, QueuedAt: ev.At}
	t.order = append(t.order, ev.JobID)
	t.evict()
}

func (t *Tracker) Started(ctx context.Context, ev messaging.JobEvent) {
	t.Queued(ctx, ev)
	t.update(ev.JobID, func(st *JobStatus) {
		st.State = JobRunning
		at := ev.At
		st.StartedAt = &at
	})
}

func (t *Tracker) Progress(_ context.Context, ev messaging.ProgressEvent) {
	t.update(ev.JobID, func(st *JobStatus) {
		p := ev.Progress
		st.Progress = &p
	})
}

func (t *Tracker) Completed(ctx context.Context, ev messaging.CompletionEvent) {
	t.Queued(ctx, messaging.JobEvent{JobID: ev.JobID, SyncType: ev.SyncType, Trigger: ev.Trigger, At: ev.StartedAt})
	t.update(ev.JobID, func(st *JobStatus) {
		st.State = JobDone
		if ev.Skipped {
			st.State = JobSkipped
		}
		res := ev.Result
		st.Result = &res
		st.Error = ev.Error
		at := ev.FinishedAt
		st.FinishedAt = &at
	})
}

func (t *Tracker) update(id string, fn func(*JobStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.jobs[id]; ok {
		fn(st)
	}
}

// evict drops the oldest finished jobs beyond capacity. Active jobs are kept.
func (t *Tracker) evict() {
	for len(t.order) > t.capacity {
		dropped := false
		for i, id := range t.order {
			if st := t.jobs[id]; st.State == JobDone || st.State == JobSkipped {
				delete(t.jobs, id)
				t.order = append(t.order[:i], t.order[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			return
		}
	}
}
