package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/messaging"
)

// Enqueuer is the part of Scheduler the trigger processor needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) (string, error)
}

// TriggerProcessor turns trigger-queue messages into sync jobs.
type TriggerProcessor struct {
	sched Enqueuer
}

func NewTriggerProcessor(sched Enqueuer) *TriggerProcessor {
	return &TriggerProcessor{sched: sched}
}

func (p *TriggerProcessor) Process(ctx context.Context, msg types.Message) (bool, int32, error) {
	if msg.Body == nil {
		return false, 0, errors.New("empty trigger message")
	}
	var trigger messaging.TriggerMessage
	if err := json.Unmarshal([]byte(*msg.Body), &trigger); err != nil {
		return false, 0, fmt.Errorf("malformed trigger message: %w", err)
	}
	if trigger.SyncType != model.SyncPull && trigger.SyncType != model.SyncPush {
		return false, 0, fmt.Errorf("unknown sync type %q", trigger.SyncType)
	}
	window, err := trigger.Window()
	if err != nil {
		return false, 0, err
	}

	jobID, err := p.sched.Enqueue(ctx, NewJob(trigger.SyncType, messaging.TriggerQueue, window))
	if errors.Is(err, ErrQueueFull) {
		return true, calculateBackoff(receiveCount(msg)), err
	}
	if err != nil {
		return false, 0, err
	}
	log.Ctx(ctx).Info().Str("job_id", jobID).Str("sync_type", string(trigger.SyncType)).Msg("Queued job from trigger message")
	return false, 0, nil
}

// calculateBackoff doubles the delay with each receive, capped at an hour.
func calculateBackoff(retryCount int) int32 {
	backoff := math.Pow(2, float64(retryCount)) * 10
	if backoff > 3600 {
		return 3600
	}
	return int32(backoff)
}
