// Entry point for the headless sync worker: the scheduler, the worker pool
// and, when TRIGGER_SQS_QUEUE_URL is set, the trigger queue consumer.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"timebridge.service/internal/app"
	"timebridge.service/internal/config"
	"timebridge.service/pkg/logger"
	"timebridge.service/pkg/telemetry"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not load configuration")
	}

	logger.Setup(cfg.IsLocalDev, cfg.LogLevel)

	shutdownTracer, err := telemetry.InitTracer("timebridge-sync-worker", cfg.OtelExporter, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init tracer")
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	ctx, cancel := context.WithCancel(context.Background())

	bridge, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not initialise bridge")
	}
	if err := bridge.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Could not start scheduler")
	}

	var wg sync.WaitGroup
	if consumer := bridge.TriggerConsumer(cfg.TriggerSQSQueueURL); consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Start(ctx)
		}()
	} else {
		log.Info().Msg("No trigger queue configured; running on schedule only")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down worker...")

	// Cancel the context to signal the consumer to stop polling.
	cancel()
	wg.Wait()
	bridge.Close()

	log.Info().Msg("Worker exited gracefully")
}
