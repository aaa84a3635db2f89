package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/messaging"
)

const DefaultTick = time.Second

// Submitter accepts jobs without blocking.
type Submitter interface {
	Submit(job Job) error
}

// IntervalSource reads the configured intervals.
type IntervalSource interface {
	GetEndpointConfig(ctx context.Context) (*model.EndpointConfig, error)
}

type timer struct {
	interval time.Duration
	next     time.Time
}

// Scheduler fires a pull and a push job on independent intervals and
// accepts manual triggers. Intervals are read on Start and RefreshSchedule
// only; a zero interval disables that direction.
type Scheduler struct {
	source   IntervalSource
	pool     Submitter
	notifier messaging.Notifier

	// Tick is how often due timers are checked; Unit scales the stored
	// interval values.
	Tick time.Duration
	Unit time.Duration
	now  func() time.Time

	mu      sync.Mutex
	timers  map[model.SyncType]*timer
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(source IntervalSource, pool Submitter, notifier messaging.Notifier) *Scheduler {
	if notifier == nil {
		notifier = messaging.NopNotifier{}
	}
	return &Scheduler{
		source:   source,
		pool:     pool,
		notifier: notifier,
		Tick:     DefaultTick,
		Unit:     time.Minute,
		now:      time.Now,
		timers:   make(map[model.SyncType]*timer),
	}
}

// Start arms both timers and launches the check loop. Starting a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if err := s.armLocked(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.loop(loopCtx, s.done)

	log.Ctx(ctx).Info().
		Dur("pull_interval", s.timers[model.SyncPull].interval).
		Dur("push_interval", s.timers[model.SyncPush].interval).
		Msg("Scheduler started")
	return nil
}

// Stop ends the check loop. Jobs already handed to the pool keep running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	log.Info().Msg("Scheduler stopped")
}

// RefreshSchedule re-reads the intervals and re-arms both timers from now.
func (s *Scheduler) RefreshSchedule(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.armLocked(ctx); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Msg("Schedule refreshed")
	return nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRuns reports when each enabled direction fires next.
func (s *Scheduler) NextRuns() map[model.SyncType]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.SyncType]time.Time)
	if !s.running {
		return out
	}
	for t, tm := range s.timers {
		if tm.interval > 0 {
			out[t] = tm.next
		}
	}
	return out
}

// TriggerPullNow queues a pull outside the schedule.
func (s *Scheduler) TriggerPullNow(ctx context.Context, window model.PullWindow) (string, error) {
	return s.Enqueue(ctx, NewJob(model.SyncPull, messaging.TriggerManual, window))
}

// TriggerPushNow queues a push outside the schedule.
func (s *Scheduler) TriggerPushNow(ctx context.Context) (string, error) {
	return s.Enqueue(ctx, NewJob(model.SyncPush, messaging.TriggerManual, model.PullWindow{}))
}

// Enqueue hands job to the pool, reporting it as queued first so observers
// never see a job start before it was queued.
func (s *Scheduler) Enqueue(ctx context.Context, job Job) (string, error) {
	s.notifier.Queued(ctx, job.event())
	if err := s.pool.Submit(job); err != nil {
		now := s.now()
		s.notifier.Completed(ctx, messaging.CompletionEvent{
			JobID:      job.ID,
			SyncType:   job.Type,
			Trigger:    job.Trigger,
			Result:     model.SyncResult{Type: job.Type, Message: err.Error()},
			Error:      err.Error(),
			Skipped:    true,
			StartedAt:  now,
			FinishedAt: now,
		})
		return "", fmt.Errorf("queue %s job: %w", job.Type, err)
	}
	return job.ID, nil
}

func (s *Scheduler) armLocked(ctx context.Context) error {
	cfg, err := s.source.GetEndpointConfig(ctx)
	if err != nil {
		return fmt.Errorf("read sync intervals: %w", err)
	}
	now := s.now()
	for t, minutes := range map[model.SyncType]int{
		model.SyncPull: cfg.PullIntervalMinutes,
		model.SyncPush: cfg.PushIntervalMinutes,
	} {
		interval := time.Duration(max(minutes, 0)) * s.Unit
		s.timers[t] = &timer{interval: interval, next: now.Add(interval)}
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

func (s *Scheduler) fireDue(ctx context.Context) {
	s.mu.Lock()
	now := s.now()
	var due []model.SyncType
	for t, tm := range s.timers {
		if tm.interval > 0 && !now.Before(tm.next) {
			due = append(due, t)
			tm.next = now.Add(tm.interval)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		_, err := s.Enqueue(ctx, NewJob(t, messaging.TriggerSchedule, model.PullWindow{}))
		if errors.Is(err, ErrQueueFull) {
			log.Ctx(ctx).Warn().Str("sync_type", string(t)).Msg("Scheduled run dropped, queue is full")
		} else if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("sync_type", string(t)).Msg("Scheduled run could not be queued")
		}
	}
}
