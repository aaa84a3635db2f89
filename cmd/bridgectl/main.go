// Entry point for the bridgectl operator CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"timebridge.service/internal/app"
	"timebridge.service/internal/cli"
	"timebridge.service/internal/config"
	"timebridge.service/internal/core"
	"timebridge.service/pkg/logger"
	"timebridge.service/pkg/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(openBridge).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func openBridge(ctx context.Context, verbose bool) (*cli.Env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger.Setup(cfg.IsLocalDev, level)

	shutdownTracer, err := telemetry.InitTracer("timebridge-cli", cfg.OtelExporter, cfg.OtelEndpoint)
	if err != nil {
		return nil, err
	}

	bridge, err := app.New(ctx, cfg)
	if err != nil {
		_ = shutdownTracer(context.Background())
		return nil, err
	}

	env := &cli.Env{
		Sync:  syncer{bridge.Pull, bridge.Push},
		Admin: bridge.Admin,
		Close: func() {
			bridge.Close()
			_ = shutdownTracer(context.Background())
		},
	}
	if bridge.Producer != nil {
		env.Trigger = bridge.Producer
	}
	return env, nil
}

// syncer runs pulls and pushes in the foreground, outside the worker pool.
type syncer struct {
	*core.PullService
	*core.PushService
}
