package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sisx-deploy/internal/config"
	"github.com/oshokin/sisx-deploy/internal/service/agent"
	"github.com/oshokin/sisx-deploy/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// options collects the flags of the agent.
	options agent.Options

	// rootCmd represents the base command for the deployment agent.
	rootCmd = &cobra.Command{
		Use:   "sisx-agent [listen-address]",
		Short: "Serve deployments of this machine's run configurations over gRPC",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			opts := options
			opts.ConfigPath = configPath

			if len(args) > 0 {
				opts.ListenAddress = args[0]
			}

			return agent.Run(ctx, &opts)
		},
	}
)

// Execute runs the sisx-agent CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&options.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().DurationVar(&options.StageTimeout, "stage-timeout", 0, "maximum duration of one pipeline stage")
	rootCmd.Flags().StringVar(&options.HistoryFile, "history-file", "", "override the history file from settings")
}
