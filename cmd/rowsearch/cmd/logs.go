package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rowsearch/internal/config"
	"github.com/Aman-CERP/rowsearch/internal/logging"
)

type logsOptions struct {
	file    string
	lines   int
	follow  bool
	level   string
	grep    string
	noColor bool
}

func newLogsCmd(a *app) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View the rowsearch log file",
		Long: `Print the last lines of the log file configured under logging.file,
formatted for reading. Use -f to keep printing new records.

Examples:
  rowsearch logs
  rowsearch logs -f --level warn
  rowsearch logs --grep sync_cycle -n 200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolveLogFile(a.configPath, opts.file)
			if err != nil {
				return err
			}

			vcfg := logging.ViewerConfig{
				Level:   opts.level,
				NoColor: opts.noColor || !isTerminal(cmd.OutOrStdout()),
			}
			if opts.grep != "" {
				re, err := regexp.Compile(opts.grep)
				if err != nil {
					return fmt.Errorf("invalid --grep pattern: %w", err)
				}
				vcfg.Pattern = re
			}
			viewer := logging.NewViewer(vcfg, cmd.OutOrStdout())

			entries, err := viewer.Tail(path, opts.lines)
			if err != nil {
				return err
			}
			viewer.Print(entries)
			if !opts.follow {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch := make(chan logging.LogEntry, 64)
			errCh := make(chan error, 1)
			go func() {
				errCh <- viewer.Follow(ctx, path, ch)
				close(ch)
			}()
			for e := range ch {
				viewer.Print([]logging.LogEntry{e})
			}
			return <-errCh
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Log file to read (default: logging.file from the configuration)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Keep printing new records")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.grep, "grep", "", "Only show lines matching the regular expression")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored levels")

	return cmd
}

// resolveLogFile prefers an explicit path, then the configured one.
func resolveLogFile(configPath, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", err
	}
	if cfg.Logging.File == "" {
		return "", fmt.Errorf("logging.file is not set in %s; pass --file", configPath)
	}
	return cfg.Logging.File, nil
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
