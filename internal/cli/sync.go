package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"timebridge.service/internal/core/model"
	"timebridge.service/internal/ports/messaging"
)

// ErrRunFailed is returned when a run finished with OK=false so the process
// exits non-zero.
var ErrRunFailed = errors.New("sync run failed")

func newPullCommand(opts *RootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull attendance from the on-prem device now",
		Long: `Pull attendance records for a date window from the on-prem device into
the local store. Without flags the last seven days are pulled.

Example:
  bridgectl pull
  bridgectl pull --from 2024-01-01 --to 2024-01-31`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			window, err := messaging.TriggerMessage{SyncType: model.SyncPull, DateFrom: from, DateTo: to}.Window()
			if err != nil {
				return err
			}
			return opts.withEnv(cmd, func(env *Env) error {
				res, err := env.Sync.Pull(cmd.Context(), window, opts.progress(cmd))
				return opts.report(cmd, res, err)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day to pull (yyyy-MM-dd)")
	cmd.Flags().StringVar(&to, "to", "", "last day to pull (yyyy-MM-dd)")
	return cmd
}

func newPushCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Push unsynced events to the payroll service now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd, func(env *Env) error {
				res, err := env.Sync.Push(cmd.Context(), opts.progress(cmd))
				return opts.report(cmd, res, err)
			})
		},
	}
}

func newEnqueueCommand(opts *RootOptions) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "enqueue <pull|push>",
		Short: "Ask a running sync worker to start a job via the trigger queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := messaging.TriggerMessage{SyncType: model.SyncType(args[0]), DateFrom: from, DateTo: to}
			if msg.SyncType != model.SyncPull && msg.SyncType != model.SyncPush {
				return fmt.Errorf("unknown sync type %q (want pull or push)", args[0])
			}
			if msg.SyncType == model.SyncPush && (from != "" || to != "") {
				return errors.New("--from and --to only apply to pull")
			}
			if _, err := msg.Window(); err != nil {
				return err
			}
			return opts.withEnv(cmd, func(env *Env) error {
				if env.Trigger == nil {
					return messaging.ErrNoQueue
				}
				if err := env.Trigger.PublishTrigger(cmd.Context(), msg); err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), msg, func(w io.Writer) {
					fmt.Fprintf(w, "Queued %s trigger\n", msg.SyncType)
				})
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day to pull (yyyy-MM-dd)")
	cmd.Flags().StringVar(&to, "to", "", "last day to pull (yyyy-MM-dd)")
	return cmd
}

// progress prints per-page progress to stderr in verbose mode.
func (o *RootOptions) progress(cmd *cobra.Command) model.ProgressFunc {
	if !o.Verbose {
		return nil
	}
	w := cmd.ErrOrStderr()
	return func(p model.Progress) {
		fmt.Fprintf(w, "%s run #%d: processed=%d success=%d failed=%d skipped=%d\n",
			p.Type, p.RunID, p.Stats.Processed, p.Stats.Success, p.Stats.Failed, p.Stats.Skipped)
	}
}

func (o *RootOptions) report(cmd *cobra.Command, res model.SyncResult, runErr error) error {
	if err := o.print(cmd.OutOrStdout(), res, func(w io.Writer) {
		fmt.Fprintf(w, "%s run #%d: %s\n", res.Type, res.RunID, res.Message)
	}); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if !res.OK {
		return ErrRunFailed
	}
	return nil
}
