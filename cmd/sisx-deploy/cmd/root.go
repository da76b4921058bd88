package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sisx-deploy/internal/config"
	"github.com/oshokin/sisx-deploy/internal/service/deployer"
	"github.com/oshokin/sisx-deploy/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// options collects the flags of the deploy command.
	options deployer.Options

	// rootCmd packages, signs and installs one run configuration.
	rootCmd = &cobra.Command{
		Use:   "sisx-deploy [configuration]",
		Short: "Package, sign and install a Symbian application",
		Long: "Runs makesis, signsis and the installer for a run configuration " +
			"and records the outcome in the history file.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			opts := options
			opts.ConfigPath = configPath
			opts.Output = cmd.OutOrStdout()

			if len(args) > 0 {
				opts.Configuration = args[0]
			}

			return deployer.Run(ctx, &opts)
		},
	}

	// initCmd writes a starter settings file.
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a starter settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Save(configPath, config.Default()); err != nil {
				return err
			}

			cmd.Printf("Settings written to %s\n", configPath)

			return nil
		},
	}
)

// Execute runs the sisx-deploy CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&options.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&options.NoColor, "no-color", false, "disable colored output")
	rootCmd.Flags().BoolVarP(&options.Verbose, "verbose", "v", false, "log every pipeline event")
	rootCmd.Flags().DurationVar(&options.StageTimeout, "stage-timeout", 0, "maximum duration of one pipeline stage")
	rootCmd.Flags().StringVar(&options.HistoryFile, "history-file", "", "override the history file from settings")

	rootCmd.AddCommand(initCmd)
}
