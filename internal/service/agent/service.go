package agent

import (
	"context"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/sisx-deploy/internal/api/grpc/deploy"
	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/service/deployer"
)

// deployments is the part of deployer.Service the agent uses.
type deployments interface {
	Deploy(ctx context.Context, name string, actor *deploy.Actor, sinks ...deployer.Sink) (*deploy.Record, error)
	LastRun(ctx context.Context) (*deploy.Record, error)
}

// service adapts the deployer to the transport and attaches the agent's
// sinks to every run.
type service struct {
	deployments deployments
	sinks       []deployer.Sink
}

func newService(d deployments, sinks ...deployer.Sink) *service {
	return &service{
		deployments: d,
		sinks:       sinks,
	}
}

// Deploy implements api.Service.
func (s *service) Deploy(ctx context.Context, name string, actor *deploy.Actor) (*deploy.Record, error) {
	return s.deployments.Deploy(ctx, name, actor, s.sinks...)
}

// LastRun implements api.Service.
func (s *service) LastRun(ctx context.Context) (*deploy.Record, error) {
	return s.deployments.LastRun(ctx)
}

// healthReporter marks the deploy service NOT_SERVING while a run is in flight.
func healthReporter(h *health.Server) func(busy bool) {
	return func(busy bool) {
		status := healthpb.HealthCheckResponse_SERVING
		if busy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}

		h.SetServingStatus(api.ServiceName, status)
	}
}
