package worker

import (
	"time"

	"github.com/google/uuid"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/messaging"
)

// Job is one requested pull or push.
type Job struct {
	ID       string
	Type     model.SyncType
	Trigger  messaging.Trigger
	Window   model.PullWindow
	QueuedAt time.Time
}

func NewJob(syncType model.SyncType, trigger messaging.Trigger, window model.PullWindow) Job {
	return Job{
		ID:       uuid.NewString(),
		Type:     syncType,
		Trigger:  trigger,
		Window:   window,
		QueuedAt: time.Now(),
	}
}

func (j Job) event() messaging.JobEvent {
	return messaging.JobEvent{JobID: j.ID, SyncType: j.Type, Trigger: j.Trigger, At: time.Now()}
}
