package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/rowsearch/internal/search"
	"github.com/Aman-CERP/rowsearch/internal/server"
	"github.com/Aman-CERP/rowsearch/internal/worker"
)

func newServeCmd(a *app) *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync worker and the HTTP search API",
		Long: `Open (or create) the index, start the worker that polls the
datasource, and serve the search API and UI until interrupted.

With --rebuild the index and checkpoint are discarded and every row is
ingested again.`,
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
			svc, err := search.NewService(engine, s)
			if err != nil {
				return err
			}
			srv, err := server.New(svc, cfg.Server, w.Status())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return w.Run(gctx) })
			g.Go(func() error { return srv.Run(gctx) })

			slog.Info("rowsearch_started",
				slog.String("addr", cfg.Server.Addr()),
				slog.String("index_path", cfg.IndexPath))
			err = g.Wait()
			slog.Info("rowsearch_stopped")
			return err
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Discard the index and checkpoint and ingest every row again")

	return cmd
}
