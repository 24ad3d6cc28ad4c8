package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexmode/internal/config"
	"github.com/Aman-CERP/indexmode/internal/logging"
	"github.com/Aman-CERP/indexmode/internal/output"
)

func newRunCmd() *cobra.Command {
	var (
		noWatch     bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run [dir]",
		Short: "Run an index session for a project",
		Long: `Run an index session for a project directory until interrupted.

The session starts dumb when the project has not been fully indexed (or a
previous session stopped mid-index) and becomes smart once the initial
rescan completes. File changes queue further rescans.`,
		Example: `  # Run a session for the current directory
  indexmode run

  # Expose Prometheus metrics and /status
  indexmode run --metrics-addr 127.0.0.1:9464 ./myproject`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectDir(args)
			if err != nil {
				return err
			}
			cfg, err := config.Load(root)
			if err != nil {
				return err
			}
			if noWatch {
				cfg.Watch.Enabled = false
			}
			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Addr = metricsAddr
			}
			if err := configureSessionLogging(cfg); err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			s, err := newSession(cmd.Context(), root, cfg, out)
			if err != nil {
				return err
			}
			out.Statusf(output.KindInfo, "session started for %s", root)
			return s.run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch for file changes")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve metrics and status on this address")

	return cmd
}

// configureSessionLogging applies the project's logging section unless
// --debug or --log-file was given.
func configureSessionLogging(cfg *config.Config) error {
	if debugMode || logFile != "" {
		return nil
	}
	return installLogger(logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
}
