package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/sisx-deploy/internal/api/grpc/deploy"
	"github.com/oshokin/sisx-deploy/internal/config"
	"github.com/oshokin/sisx-deploy/internal/logger"
	"github.com/oshokin/sisx-deploy/internal/repository/history"
	"github.com/oshokin/sisx-deploy/internal/service/common"
	"github.com/oshokin/sisx-deploy/internal/service/deployer"
	"github.com/oshokin/sisx-deploy/internal/telemetry"
)

// Options controls the sisx-agent process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// HistoryFile overrides the configured history file when set.
	HistoryFile string
	// StageTimeout overrides the configured per-stage timeout when positive.
	StageTimeout time.Duration
}

// ErrNoServerAddress indicates missing server configuration.
var ErrNoServerAddress = errors.New("no server address configured")

// Run starts the deployment agent and blocks until ctx is canceled or the
// server stops. A deployment in flight at shutdown is stopped.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "sisx-agent")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = common.ApplyLogLevel(opts.LogLevel, settings.LogLevel); err != nil {
		return fmt.Errorf("apply log level: %w", err)
	}

	if opts.StageTimeout > 0 {
		settings.StageTimeout = opts.StageTimeout
	}

	historyFile := settings.HistoryFile
	if opts.HistoryFile != "" {
		historyFile = opts.HistoryFile
	}

	// Determine listen address: CLI argument overrides config port extraction.
	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	svc, err := deployer.NewService(settings, history.NewFileRepository(historyFile, history.DefaultMaxRecords))
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	tracing, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:    settings.Tracing.Endpoint,
		Insecure:    settings.Tracing.Insecure,
		ServiceName: "sisx-agent",
	})
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settings.Timeout)
		defer cancel()

		if shutdownErr := tracing.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.WarnKV(ctx, "Unable to flush traces", "error", shutdownErr)
		}
	}()

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	healthServer := health.NewServer()
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	svc.OnBusyChange(healthReporter(healthServer))

	grpcServer := grpc.NewServer()
	api.Register(grpcServer, api.NewServer(newService(svc,
		deployer.NewTracingSink(context.WithoutCancel(ctx), tracing.Tracer()))))
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	logger.InfoKV(ctx, "Deployment agent listening",
		"listen_address", listenAddress,
		"history_file", historyFile,
		"configurations", svc.Configurations())

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if serveErr := grpcServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", serveErr)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down gRPC server")

		healthServer.Shutdown()
		svc.Stop()
		grpcServer.GracefulStop()

		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise extracts port from configAddr.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	_, port, err := net.SplitHostPort(configAddr)
	if err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	// Port-only address binds on all interfaces.
	return ":" + port, nil
}
