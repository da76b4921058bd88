package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sisx-deploy/internal/config"
	"github.com/oshokin/sisx-deploy/internal/service/remote"
	"github.com/oshokin/sisx-deploy/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// options collects the flags shared by every remote action.
	options remote.Options

	// rootCmd groups the requests sent to a deployment agent.
	rootCmd = &cobra.Command{
		Use:          "sisx-remote",
		Short:        "Drive a sisx-agent from another machine",
		SilenceUsage: true,
	}

	// deployCmd asks the agent to deploy a run configuration.
	deployCmd = &cobra.Command{
		Use:   "deploy <configuration>",
		Short: "Deploy a run configuration on the agent and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, remote.ActionDeploy, args[0])
		},
	}

	// lastCmd prints the agent's most recent deployment.
	lastCmd = &cobra.Command{
		Use:   "last",
		Short: "Show the agent's most recent deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, remote.ActionLast, "")
		},
	}

	// statusCmd prints whether the agent is idle.
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show whether the agent is ready for a deployment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, remote.ActionStatus, "")
		},
	}
)

func run(cmd *cobra.Command, action remote.Action, configuration string) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	opts := options
	opts.ConfigPath = configPath
	opts.Action = action
	opts.Configuration = configuration
	opts.Output = cmd.OutOrStdout()

	return remote.Run(ctx, &opts)
}

// Execute runs the sisx-remote CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	flags.StringVarP(&options.ServerAddress, "server", "s", "", "agent address, overrides settings")
	flags.StringVar(&options.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&options.NoColor, "no-color", false, "disable colored output")

	deployCmd.Flags().DurationVar(&options.DeployTimeout, "deploy-timeout", 0, "maximum duration of the remote deployment")

	rootCmd.AddCommand(deployCmd, lastCmd, statusCmd)
}
