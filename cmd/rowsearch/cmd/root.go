// Package cmd provides the rowsearch CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/rowsearch/internal/config"
	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/index"
	"github.com/Aman-CERP/rowsearch/internal/logging"
	"github.com/Aman-CERP/rowsearch/internal/profiling"
	"github.com/Aman-CERP/rowsearch/internal/schema"
	"github.com/Aman-CERP/rowsearch/pkg/version"
)

// app carries the persistent flags and the resources a command opened, so
// they can be released when it returns.
type app struct {
	configPath string
	debug      bool
	profile    profiling.Options

	session  *profiling.Session
	cleanups []func()
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "rowsearch",
		Short: "Full-text search over rows of a SQL table",
		Long: `rowsearch polls a SQL query, indexes each row as a document and
serves searches over the index with a small query language:

  red shoe           rows containing either word
  +color:red         rows whose color is red
  -stock:0           rows whose stock is not 0
  price:10..20       rows with 10 <= price <= 20`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.start()
		},
	}
	cmd.SetVersionTemplate("rowsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Log at debug level")
	cmd.PersistentFlags().StringVar(&a.profile.CPU, "profile-cpu", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&a.profile.Heap, "profile-mem", "", "Write a heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&a.profile.Trace, "profile-trace", "", "Write an execution trace to file")

	cmd.AddCommand(newInitCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newSyncCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newFieldsCmd(a))
	cmd.AddCommand(newLogsCmd(a))
	cmd.AddCommand(newDoctorCmd(a))
	cmd.AddCommand(newVersionCmd())

	return cmd, a
}

// Execute runs the root command, then stops profiling.
func Execute() error {
	cmd, a := newRootCmd()
	err := cmd.Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

// start installs a stderr logger and starts any requested profiles.
// Commands that load a configuration replace the logger in loadConfig.
func (a *app) start() error {
	level := "warn"
	if a.debug {
		level = "debug"
	}
	if _, err := logging.SetupDefault(logging.Config{Level: level}); err != nil {
		return err
	}

	if a.profile.Enabled() {
		s, err := profiling.Start(a.profile)
		if err != nil {
			return err
		}
		a.session = s
	}
	return nil
}

// release closes everything the command opened, newest first. Commands
// defer it; it is idempotent.
func (a *app) release() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

// close releases the command's resources and stops profiling.
func (a *app) close() error {
	a.release()

	if a.session == nil {
		return nil
	}
	err := a.session.Stop()
	a.session = nil
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

func (a *app) onClose(fn func()) {
	a.cleanups = append(a.cleanups, fn)
}

// loadConfig reads the configuration and installs the logger it describes.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: true,
	}

	if a.debug {
		logCfg.Level = "debug"
	}
	previous := slog.Default()
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	a.onClose(func() {
		slog.SetDefault(previous)
		cleanup()
	})

	slog.Debug("config_loaded",
		slog.String("path", a.configPath),
		slog.String("index_path", cfg.IndexPath),
		slog.String("driver", cfg.Datasource.Driver))
	return cfg, nil
}

// openIndex builds the schema and opens the index it describes. With
// mustExist a missing index directory is an error instead of a new index.
func (a *app) openIndex(cfg *config.Config, rebuild, mustExist bool) (*index.Engine, schema.Schema, error) {
	s, err := cfg.BuildSchema()
	if err != nil {
		return nil, schema.Schema{}, err
	}

	if mustExist {
		if _, err := os.Stat(cfg.IndexPath); os.IsNotExist(err) {
			return nil, schema.Schema{}, errors.Newf(errors.ErrCodeIndexOpen, "no index found at %s", cfg.IndexPath).
				WithSuggestion("Run 'rowsearch sync --once' or 'rowsearch serve' first")
		}
	}

	engine, err := index.Open(s, cfg.IndexPath, rebuild)
	if err != nil {
		return nil, schema.Schema{}, err
	}
	a.onClose(func() { _ = engine.Close() })
	return engine, s, nil
}
