package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"timebridge.service/internal/core/model"
)

func newTestConnectionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "test-connection <onprem|cloud>",
		Short:     "Authenticate against one endpoint with the stored credentials",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(model.EndpointOnPrem), string(model.EndpointCloud)},
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint := model.Endpoint(args[0])
			if !endpoint.Valid() {
				return fmt.Errorf("unknown endpoint %q (want onprem or cloud)", args[0])
			}
			return opts.withEnv(cmd, func(env *Env) error {
				ok, msg := env.Admin.TestConnection(cmd.Context(), endpoint)
				out := struct {
					Success bool   `json:"success"`
					Message string `json:"message"`
				}{ok, msg}
				if err := opts.print(cmd.OutOrStdout(), out, func(w io.Writer) { fmt.Fprintln(w, msg) }); err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s connection test failed", endpoint)
				}
				return nil
			})
		},
	}
}

func newRunsCommand(opts *RootOptions) *cobra.Command {
	var (
		direction string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withEnv(cmd, func(env *Env) error {
				runs, err := env.Admin.ListSyncRuns(cmd.Context(), model.SyncType(direction), limit)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), runs, func(w io.Writer) { printRuns(w, runs) })
			})
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "", "only show pull or push runs")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func printRuns(w io.Writer, runs []model.SyncRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tPROCESSED\tSUCCESS\tFAILED\tSTARTED\tERROR")
	for _, r := range runs {
		errMsg := ""
		if r.Error != nil {
			errMsg = *r.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.Type, r.Status, r.Processed, r.Success, r.Failed, r.StartedAt.Local().Format(time.DateTime), errMsg)
	}
	tw.Flush()
}
