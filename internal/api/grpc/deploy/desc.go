package deploy

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/pbconv"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "sisx.deploy.v1.DeployService"

	// DeployMethod runs a deployment and returns its record.
	DeployMethod = "/" + ServiceName + "/Deploy"
	// GetLastRunMethod returns the record of the most recent deployment.
	GetLastRunMethod = "/" + ServiceName + "/GetLastRun"
)

var errActorRequired = errors.New("actor is required")

// DeployServer is the server API of the deployment service.
type DeployServer interface {
	Deploy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetLastRun(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// ServiceDesc describes DeployService for grpc.ServiceRegistrar.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeployServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deploy",
			Handler:    deployHandler,
		},
		{
			MethodName: "GetLastRun",
			Handler:    getLastRunHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sisx/deploy/v1/deploy.proto",
}

// Register attaches srv to the registrar.
func Register(registrar grpc.ServiceRegistrar, srv DeployServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// NewDeployRequest builds the Deploy request for a configuration and actor.
func NewDeployRequest(configuration string, actor *domain.Actor) (*structpb.Struct, error) {
	if actor == nil {
		return nil, errActorRequired
	}

	return structpb.NewStruct(map[string]any{
		pbconv.FieldConfiguration: strings.TrimSpace(configuration),
		pbconv.FieldActor:         pbconv.ActorToMap(actor),
	})
}

func deployHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(DeployServer).Deploy(ctx, in) //nolint:forcetypeassert // Guaranteed by HandlerType.
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DeployMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeployServer).Deploy(ctx, req.(*structpb.Struct)) //nolint:forcetypeassert // See above.
	}

	return interceptor(ctx, in, info, handler)
}

func getLastRunHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(DeployServer).GetLastRun(ctx, in) //nolint:forcetypeassert // Guaranteed by HandlerType.
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetLastRunMethod,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DeployServer).GetLastRun(ctx, req.(*emptypb.Empty)) //nolint:forcetypeassert // See above.
	}

	return interceptor(ctx, in, info, handler)
}
