// Package app assembles the bridge from configuration. Every binary builds
// the same object graph and starts only the parts it needs.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog/log"

	"timebridge.service/internal/adapters/onprem"
	"timebridge.service/internal/adapters/payroll"
	"timebridge.service/internal/config"
	"timebridge.service/internal/core"
	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/messaging"
	"timebridge.service/internal/ports/repository"
	"timebridge.service/internal/worker"
	"timebridge.service/internal/worker/alert"
	"timebridge.service/pkg/aws"
	"timebridge.service/pkg/database"
)

type Bridge struct {
	DB   *sql.DB
	Repo *repository.SQLRepository

	Auth  *core.AuthService
	Pull  *core.PullService
	Push  *core.PushService
	Admin *core.AdminService

	Tracker   *worker.Tracker
	Processor *worker.SyncProcessor
	Pool      *worker.Pool
	Scheduler *worker.Scheduler

	// SQS and Producer are nil unless an AWS-backed feature is configured.
	SQS      *sqs.Client
	Producer *messaging.Producer
}

// New opens and migrates the state store, applies the bootstrap endpoint
// settings and wires every service. Nothing runs until Start.
func New(ctx context.Context, cfg config.Config) (*Bridge, error) {
	db, dialect, err := database.NewInstrumentedConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	b, err := newBridge(ctx, cfg, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func newBridge(ctx context.Context, cfg config.Config, db *sql.DB, dialect repository.Dialect) (*Bridge, error) {
	repo := repository.NewSQLRepository(db, dialect)
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating state store: %w", err)
	}

	onpremClient := onprem.NewClient(cfg.HTTPTimeout)
	payrollClient := payroll.NewClient(cfg.HTTPTimeout)

	b := &Bridge{DB: db, Repo: repo}
	b.Auth = core.NewAuthService(repo, onpremClient, payrollClient)
	b.Pull = core.NewPullService(repo, b.Auth, onpremClient, cfg.PullPageSize)
	b.Push = core.NewPushService(repo, b.Auth, payrollClient, cfg.PushBatchLimit)
	b.Admin = core.NewAdminService(repo, b.Auth)

	if u := bootstrapUpdate(cfg.Bootstrap); !u.Empty() {
		if err := b.Admin.UpdateConfig(ctx, u); err != nil {
			return nil, fmt.Errorf("applying bootstrap endpoint settings: %w", err)
		}
		log.Info().Msg("Applied bootstrap endpoint settings")
	}

	b.Tracker = worker.NewTracker(0)
	notifiers := messaging.Fanout{b.Tracker}

	if aws.Enabled(cfg) {
		awsCfg, err := aws.NewAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		b.SQS = sqs.NewFromConfig(awsCfg)
		b.Producer = messaging.NewSQSProducer(b.SQS, cfg.NotifySQSQueueURL, cfg.TriggerSQSQueueURL)
		notifiers = append(notifiers, b.Producer)

		recipients := alert.ParseRecipients(cfg.AlertEmailTo)
		var emailService core.EmailService
		if cfg.AlertEmailFrom != "" && len(recipients) > 0 {
			emailService = core.NewSESEmailService(ses.NewFromConfig(awsCfg), cfg.AlertEmailFrom)
		}
		if emailService != nil || cfg.SlackWebhookURL != "" {
			notifiers = append(notifiers, alert.NewProcessor(emailService, recipients, cfg.SlackWebhookURL))
		}
	} else if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, alert.NewProcessor(nil, nil, cfg.SlackWebhookURL))
	}

	b.Processor = worker.NewSyncProcessor(b.Pull, b.Push, notifiers, cfg.SingleFlight)
	b.Pool = worker.NewPool(b.Processor, cfg.WorkerConcurrency, cfg.WorkerQueueSize)
	b.Scheduler = worker.NewScheduler(repo, b.Pool, notifiers)
	if cfg.SchedulerTick > 0 {
		b.Scheduler.Tick = cfg.SchedulerTick
	}
	return b, nil
}

// Start launches the worker pool and the interval scheduler.
func (b *Bridge) Start(ctx context.Context) error {
	b.Pool.Start(ctx)
	if err := b.Scheduler.Start(ctx); err != nil {
		b.Pool.Stop()
		return fmt.Errorf("starting scheduler: %w", err)
	}
	return nil
}

// TriggerConsumer returns a queue consumer that turns trigger messages into
// jobs, or nil when no trigger queue is configured.
func (b *Bridge) TriggerConsumer(queueURL string) *worker.Consumer {
	if b.SQS == nil || queueURL == "" {
		return nil
	}
	return worker.NewConsumer(b.SQS, queueURL, worker.NewTriggerProcessor(b.Scheduler))
}

// Close stops scheduling, lets queued jobs finish and closes the database.
func (b *Bridge) Close() {
	if b.Scheduler != nil {
		b.Scheduler.Stop()
	}
	if b.Pool != nil {
		b.Pool.Stop()
	}
	if err := b.DB.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}

// bootstrapUpdate turns the non-empty bootstrap settings into a partial
// update. Negative intervals mean "not set".
func bootstrapUpdate(bs config.Bootstrap) model.EndpointConfigUpdate {
	var u model.EndpointConfigUpdate
	str := func(v string) *string {
		if v == "" {
			return nil
		}
		return model.Ptr(v)
	}
	u.OnPremHost = str(bs.OnPremHost)
	u.OnPremUsername = str(bs.OnPremUsername)
	u.OnPremPassword = str(bs.OnPremPassword)
	u.CloudURL = str(bs.CloudURL)
	u.CloudUsername = str(bs.CloudUsername)
	u.CloudPassword = str(bs.CloudPassword)
	if bs.PullIntervalMinutes >= 0 {
		u.PullIntervalMinutes = model.Ptr(bs.PullIntervalMinutes)
	}
	if bs.PushIntervalMinutes >= 0 {
		u.PushIntervalMinutes = model.Ptr(bs.PushIntervalMinutes)
	}
	return u
}
