package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timebridge.service/internal/config"
	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/repository"
	"timebridge.service/internal/ports/repository/repotest"
)

func TestBootstrapUpdate(t *testing.T) {
	u := bootstrapUpdate(config.Bootstrap{
		OnPremHost:          "http://10.0.0.5",
		CloudUsername:       "payroll-bot",
		PullIntervalMinutes: 0,
		PushIntervalMinutes: -1,
	})

	require.NotNil(t, u.OnPremHost)
	assert.Equal(t, "http://10.0.0.5", *u.OnPremHost)
	require.NotNil(t, u.CloudUsername)
	assert.Nil(t, u.OnPremUsername)
	assert.Nil(t, u.CloudURL)
	require.NotNil(t, u.PullIntervalMinutes)
	assert.Equal(t, 0, *u.PullIntervalMinutes)
	assert.Nil(t, u.PushIntervalMinutes)

	assert.True(t, bootstrapUpdate(config.Bootstrap{PullIntervalMinutes: -1, PushIntervalMinutes: -1}).Empty())
}

func testConfig() config.Config {
	return config.Config{
		DBDriver:          config.DriverSQLite,
		HTTPTimeout:       5 * time.Second,
		PullPageSize:      100,
		PushBatchLimit:    500,
		WorkerConcurrency: 2,
		WorkerQueueSize:   4,
		SchedulerTick:     10 * time.Millisecond,
		Bootstrap: config.Bootstrap{
			OnPremHost:          "http://device.local",
			OnPremUsername:      "admin",
			PullIntervalMinutes: 30,
			PushIntervalMinutes: -1,
		},
	}
}

func TestNewBridgeAppliesBootstrapAndStarts(t *testing.T) {
	ctx := context.Background()
	db := repotest.New(t).DB

	b, err := newBridge(ctx, testConfig(), db, repository.DialectSQLite)
	require.NoError(t, err)
	assert.Nil(t, b.SQS)
	assert.Nil(t, b.Producer)
	assert.Nil(t, b.TriggerConsumer("https://sqs.local/trigger"))

	cfg, err := b.Repo.GetEndpointConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://device.local", cfg.OnPremHost)
	assert.Equal(t, "admin", cfg.OnPremUsername)
	assert.Equal(t, 30, cfg.PullIntervalMinutes)
	assert.Equal(t, 15, cfg.PushIntervalMinutes)

	require.NoError(t, b.Start(ctx))
	assert.True(t, b.Scheduler.Running())
	assert.Contains(t, b.Scheduler.NextRuns(), model.SyncPull)
	assert.Contains(t, b.Scheduler.NextRuns(), model.SyncPush)

	b.Scheduler.Stop()
	b.Pool.Stop()
	assert.False(t, b.Scheduler.Running())
}
