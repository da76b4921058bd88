package deployer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oshokin/sisx-deploy/internal/config"
	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/logger"
	"github.com/oshokin/sisx-deploy/internal/repository/history"
	"github.com/oshokin/sisx-deploy/internal/toolchain"
)

var errSettingsNotInitialised = errors.New("settings are not initialized")

// Service deploys named run configurations one at a time and records the
// outcome of every run.
type Service struct {
	cfg      *config.Config
	registry *toolchain.Registry
	repo     history.Repository
	opts     []RunnerOption

	mu      sync.Mutex
	current *Runner
	onBusy  func(busy bool)
}

// NewService builds a deployment service over validated settings.
// Runner options are applied to the runner of every deployment.
func NewService(cfg *config.Config, repo history.Repository, opts ...RunnerOption) (*Service, error) {
	if cfg == nil {
		return nil, errSettingsNotInitialised
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("build toolchain registry: %w", err)
	}

	return &Service{
		cfg:      cfg,
		registry: registry,
		repo:     repo,
		opts:     opts,
	}, nil
}

// Deploy runs the pipeline for the named configuration and waits for it to
// finish. The returned record is set whenever the run was started, including
// failed runs, in which case the error is the run's *deploy.StageError.
func (s *Service) Deploy(ctx context.Context, name string, actor *deploy.Actor, sinks ...Sink) (*deploy.Record, error) {
	rc, err := s.cfg.Configuration(name)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithKV(ctx, "configuration", rc.Name)

	pctx, err := rc.Context(s.registry, s.cfg.DeployTools())
	if err != nil {
		return nil, fmt.Errorf("prepare %s: %w", rc.DisplayName(), err)
	}

	recorder := NewRecorder(rc.Name, actor)

	runnerOpts := make([]RunnerOption, 0, len(s.opts)+2)
	runnerOpts = append(runnerOpts, WithStageTimeout(s.cfg.StageTimeout))
	runnerOpts = append(runnerOpts, s.opts...)
	runnerOpts = append(runnerOpts, WithSink(NewMultiSink(append([]Sink{NewLoggerSink(ctx), recorder}, sinks...)...)))

	runner := NewRunner(runnerOpts...)

	if err = s.claim(runner); err != nil {
		return nil, err
	}
	defer s.release(runner)

	lock, err := acquireRunLock(pctx.WorkingDir())
	if err != nil {
		return nil, err
	}

	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Unable to release the run lock", "error", releaseErr)
		}
	}()

	if err = runner.Start(ctx, pctx); err != nil {
		var stageErr *deploy.StageError
		if !errors.As(err, &stageErr) {
			return nil, err
		}
	}

	// The run context derives from ctx, so cancellation ends the run here too.
	<-runner.Done()

	record := recorder.Record()

	if s.repo != nil {
		if saveErr := s.repo.Save(context.WithoutCancel(ctx), record); saveErr != nil {
			logger.ErrorKV(ctx, "Unable to save deployment record", "error", saveErr)
		}
	}

	return record, runner.LastResult().Err()
}

// LastRun returns the most recently recorded run.
func (s *Service) LastRun(ctx context.Context) (*deploy.Record, error) {
	if s.repo == nil {
		return nil, history.ErrNotFound
	}

	return s.repo.Last(ctx)
}

// OnBusyChange registers fn to be told when a deployment is claimed (true)
// and released (false). fn runs under the service lock, so calls are ordered
// and never race with a concurrent claim. It must not call back into s.
func (s *Service) OnBusyChange(fn func(busy bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onBusy = fn
}

// IsRunning reports whether a deployment is in flight.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current != nil
}

// Stop cancels the deployment in flight, if any.
func (s *Service) Stop() {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current != nil {
		current.Stop()
	}
}

// Configurations returns the names of the configured applications.
func (s *Service) Configurations() []string {
	names := make([]string, 0, len(s.cfg.Configurations))
	for _, rc := range s.cfg.Configurations {
		names = append(names, rc.Name)
	}

	return names
}

func (s *Service) claim(r *Runner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return deploy.ErrDeploymentInProgress
	}

	s.current = r

	if s.onBusy != nil {
		s.onBusy(true)
	}

	return nil
}

func (s *Service) release(r *Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != r {
		return
	}

	s.current = nil

	if s.onBusy != nil {
		s.onBusy(false)
	}
}
