package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/messaging"
	"timebridge.service/pkg/logger"
)

type Puller interface {
	Pull(ctx context.Context, window model.PullWindow, onProgress model.ProgressFunc) (model.SyncResult, error)
}

type Pusher interface {
	Push(ctx context.Context, onProgress model.ProgressFunc) (model.SyncResult, error)
}

// SyncProcessor runs jobs against the pull and push services and reports
// their lifecycle to a Notifier. With singleFlight set, a job whose
// direction is already running is skipped instead of overlapping it.
type SyncProcessor struct {
	puller       Puller
	pusher       Pusher
	notifier     messaging.Notifier
	singleFlight bool

	mu      sync.Mutex
	running map[model.SyncType]int
}

func NewSyncProcessor(puller Puller, pusher Pusher, notifier messaging.Notifier, singleFlight bool) *SyncProcessor {
	if notifier == nil {
		notifier = messaging.NopNotifier{}
	}
	return &SyncProcessor{
		puller:       puller,
		pusher:       pusher,
		notifier:     notifier,
		singleFlight: singleFlight,
		running:      make(map[model.SyncType]int),
	}
}

func (p *SyncProcessor) Run(ctx context.Context, job Job) {
	tracer := otel.Tracer("sync-worker")
	ctx, span := tracer.Start(ctx, "sync_job",
		trace.WithAttributes(
			attribute.String("app.job_id", job.ID),
			attribute.String("app.sync_type", string(job.Type)),
			attribute.String("app.trigger", string(job.Trigger)),
		),
	)
	defer span.End()

	ctx = logger.EnrichContextWithLogger(ctx)
	ctx = logger.WithJob(ctx, job.ID, string(job.Type), string(job.Trigger))

	started := time.Now()
	if !p.acquire(job.Type) {
		msg := fmt.Sprintf("a %s run is already in progress", job.Type)
		log.Ctx(ctx).Info().Msg("Skipping job: " + msg)
		p.notifier.Completed(ctx, messaging.CompletionEvent{
			JobID:      job.ID,
			SyncType:   job.Type,
			Trigger:    job.Trigger,
			Result:     model.SyncResult{OK: false, Message: msg, Type: job.Type},
			Error:      msg,
			Skipped:    true,
			StartedAt:  started,
			FinishedAt: time.Now(),
		})
		return
	}
	defer p.release(job.Type)

	p.notifier.Started(ctx, messaging.JobEvent{JobID: job.ID, SyncType: job.Type, Trigger: job.Trigger, At: started})
	onProgress := func(pr model.Progress) {
		p.notifier.Progress(ctx, messaging.ProgressEvent{JobID: job.ID, Progress: pr})
	}

	var (
		res model.SyncResult
		err error
	)
	switch job.Type {
	case model.SyncPull:
		res, err = p.puller.Pull(ctx, job.Window, onProgress)
	case model.SyncPush:
		res, err = p.pusher.Push(ctx, onProgress)
	default:
		err = fmt.Errorf("unknown sync type %q", job.Type)
		res = model.SyncResult{Type: job.Type, Message: err.Error()}
	}

	ev := messaging.CompletionEvent{
		JobID:      job.ID,
		SyncType:   job.Type,
		Trigger:    job.Trigger,
		Result:     res,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(
		attribute.Int64("app.run_id", res.RunID),
		attribute.Int("app.records_processed", res.Stats.Processed),
		attribute.Int("app.records_failed", res.Stats.Failed),
	)

	log.Ctx(ctx).Info().
		Bool("ok", res.OK).
		Dur("duration", ev.FinishedAt.Sub(started)).
		Msg(res.Message)
	p.notifier.Completed(ctx, ev)
}

func (p *SyncProcessor) acquire(t model.SyncType) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.singleFlight && p.running[t] > 0 {
		return false
	}
	p.running[t]++
	return true
}

func (p *SyncProcessor) release(t model.SyncType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[t]--
}

// Running reports how many jobs of type t are executing.
func (p *SyncProcessor) Running(t model.SyncType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[t]
}
