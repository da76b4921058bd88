package deploy

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/sisx-deploy/internal/config"
	domain "github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/pbconv"
	"github.com/oshokin/sisx-deploy/internal/repository/history"
	"github.com/oshokin/sisx-deploy/internal/target"
	"github.com/oshokin/sisx-deploy/internal/toolchain"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	Deploy(ctx context.Context, name string, actor *domain.Actor) (*domain.Record, error)
	LastRun(ctx context.Context) (*domain.Record, error)
}

// Server implements the DeployService gRPC API.
type Server struct {
	// service runs deployments and reads their history.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// Deploy runs a deployment to completion. A failed pipeline is not an RPC
// error: the returned record carries the failure.
func (s *Server) Deploy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	name := req.GetFields()[pbconv.FieldConfiguration].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "configuration is required")
	}

	actor := pbconv.ActorFromStruct(req.GetFields()[pbconv.FieldActor].GetStructValue())
	if actor == nil {
		return nil, status.Error(codes.InvalidArgument, "actor is required")
	}

	record, err := s.service.Deploy(ctx, name, actor)
	if record == nil {
		return nil, toStatus(err)
	}

	return encodeRecord(record)
}

// GetLastRun returns the record of the most recent deployment.
func (s *Server) GetLastRun(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	record, err := s.service.LastRun(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	return encodeRecord(record)
}

func encodeRecord(record *domain.Record) (*structpb.Struct, error) {
	encoded, err := pbconv.RecordToStruct(record)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode record")
	}

	return encoded, nil
}

// toStatus maps service errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return status.Error(codes.Internal, "deployment did not start")
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, domain.ErrDeploymentInProgress):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, target.ErrNotDeployable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, config.ErrUnknownConfiguration),
		errors.Is(err, toolchain.ErrUnknownDevice),
		errors.Is(err, history.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
