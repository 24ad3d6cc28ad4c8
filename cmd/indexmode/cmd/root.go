// Package cmd provides the CLI commands for indexmode.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
	"github.com/Aman-CERP/indexmode/internal/logging"
	"github.com/Aman-CERP/indexmode/pkg/version"
)

var (
	debugMode      bool
	logFile        string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the indexmode CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexmode",
		Short: "Coordinate dumb and smart index modes for a project",
		Long: `indexmode keeps a project's index mode in step with background work.

While rescans are queued or running the session is dumb; once the queue
drains it becomes smart and idle callbacks run. File changes are picked up
by a watcher, refreshed with background work paused, and queued as rescans.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("indexmode version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.indexmode/logs/")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs the process logger from the persistent flags.
func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.Config{Level: "warn", FilePath: logFile, MaxSizeMB: 10, MaxFiles: 5}
	if debugMode {
		cfg = logging.DebugConfig()
		if logFile != "" {
			cfg.FilePath = logFile
		}
	}
	return installLogger(cfg)
}

// installLogger replaces the default logger, closing the previous log file.
func installLogger(cfg logging.Config) error {
	if cfg.FilePath != "" {
		if err := logging.EnsureLogDir(cfg.FilePath); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if loggingCleanup != nil {
		loggingCleanup()
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	if cfg.FilePath != "" {
		slog.Debug("logging to file", slog.String("log_file", cfg.FilePath), slog.String("level", cfg.Level))
	}
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprint(root.ErrOrStderr(), moderr.FormatForCLI(err))
		return err
	}
	return nil
}
