package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rowsearch/internal/output"
	"github.com/Aman-CERP/rowsearch/internal/worker"
)

func newSyncCmd(a *app) *cobra.Command {
	var (
		once    bool
		rebuild bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest new rows into the index without serving searches",
		Long: `Run the sync worker on its own. With --once a single cycle runs and
its outcome is reported; otherwise cycles repeat every interval until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.release()

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			engine, s, err := a.openIndex(cfg, rebuild, false)
			if err != nil {
				return err
			}
			w, err := worker.FromConfig(cfg, engine, s)
			if err != nil {
				return err
			}
			if err := w.Prepare(rebuild); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !once {
				return w.Run(ctx)
			}

			res, err := w.RunOnce(ctx)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if res.Rows == 0 {
				out.Status("", "no new rows")
				return nil
			}
			out.Successf("ingested %d rows, checkpoint %d", res.Rows, res.LastKey)
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single cycle and exit")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Discard the index and checkpoint before syncing")

	return cmd
}
