// Package cli implements bridgectl, the one-shot operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/messaging"
)

// Syncer runs one pull or push in the foreground.
type Syncer interface {
	Pull(ctx context.Context, window model.PullWindow, onProgress model.ProgressFunc) (model.SyncResult, error)
	Push(ctx context.Context, onProgress model.ProgressFunc) (model.SyncResult, error)
}

type Admin interface {
	TestConnection(ctx context.Context, endpoint model.Endpoint) (bool, string)
	ListSyncRuns(ctx context.Context, syncType model.SyncType, limit int) ([]model.SyncRun, error)
}

type TriggerPublisher interface {
	PublishTrigger(ctx context.Context, msg messaging.TriggerMessage) error
}

// Env is what a command runs against. Trigger is nil when no trigger queue
// is configured.
type Env struct {
	Sync    Syncer
	Admin   Admin
	Trigger TriggerPublisher
	Close   func()
}

// Opener builds the Env once a command has parsed its flags.
type Opener func(ctx context.Context, verbose bool) (*Env, error)

type RootOptions struct {
	Verbose bool
	Format  string
	open    Opener
}

var validFormats = []string{"text", "json"}

func NewRootCommand(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "bridgectl",
		Short: "Operate the timebridge attendance sync",
		Long:  "Run pulls and pushes in the foreground, test endpoint credentials and inspect the run history.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "print progress and debug logs")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newPullCommand(opts))
	cmd.AddCommand(newPushCommand(opts))
	cmd.AddCommand(newTestConnectionCommand(opts))
	cmd.AddCommand(newRunsCommand(opts))
	cmd.AddCommand(newEnqueueCommand(opts))

	return cmd
}

// withEnv opens the Env for the duration of fn.
func (o *RootOptions) withEnv(cmd *cobra.Command, fn func(*Env) error) error {
	env, err := o.open(cmd.Context(), o.Verbose)
	if err != nil {
		return err
	}
	if env.Close != nil {
		defer env.Close()
	}
	return fn(env)
}

// print writes v as indented JSON, or calls text for the text format.
func (o *RootOptions) print(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
