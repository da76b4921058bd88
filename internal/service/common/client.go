//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/oshokin/sisx-deploy/internal/api/grpc/deploy"
	"github.com/oshokin/sisx-deploy/internal/config"
	"github.com/oshokin/sisx-deploy/internal/domain/deploy"
	"github.com/oshokin/sisx-deploy/internal/pbconv"
)

// Client wraps a gRPC connection to the deployment agent.
type Client struct {
	// conn is the underlying gRPC connection to the agent.
	conn *grpc.ClientConn
	// health queries the agent's standard health service.
	health healthpb.HealthClient

	// callTimeout is the default timeout for short RPC calls.
	callTimeout time.Duration
	// deployTimeout bounds a whole remote deployment; zero means no limit.
	deployTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for short service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithDeployTimeout bounds Deploy calls, which last as long as the pipeline.
func WithDeployTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout >= 0 {
			c.deployTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errActorRequired is returned when an actor is not provided but is required for the operation.
	errActorRequired = errors.New("actor must be provided")
)

// Dial establishes a gRPC connection to the deployment agent.
// Note: this uses insecure transport credentials; run the agent on a trusted
// network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial deployment agent: %w", err)
	}

	client := &Client{
		conn:        conn,
		health:      healthpb.NewHealthClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Deploy asks the agent to run the named configuration and returns the
// record of the run. A failed pipeline is reported in the record, not as an error.
func (c *Client) Deploy(ctx context.Context, configuration string, actor *deploy.Actor) (*deploy.Record, error) {
	if actor == nil {
		return nil, errActorRequired
	}

	request, err := api.NewDeployRequest(configuration, actor)
	if err != nil {
		return nil, fmt.Errorf("build deploy request: %w", err)
	}

	callCtx, cancel := c.deployContext(ctx)
	defer cancel()

	response := new(structpb.Struct)
	if err = c.conn.Invoke(callCtx, api.DeployMethod, request, response); err != nil {
		return nil, fmt.Errorf("deploy %s: %w", configuration, err)
	}

	return pbconv.RecordFromStruct(response)
}

// GetLastRun returns the record of the agent's most recent deployment.
func (c *Client) GetLastRun(ctx context.Context) (*deploy.Record, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response := new(structpb.Struct)
	if err := c.conn.Invoke(callCtx, api.GetLastRunMethod, &emptypb.Empty{}, response); err != nil {
		return nil, fmt.Errorf("get last run: %w", err)
	}

	return pbconv.RecordFromStruct(response)
}

// Health reports the serving status of the deploy service. NOT_SERVING means
// a deployment is in flight.
func (c *Client) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.health.Check(callCtx, &healthpb.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("check health: %w", err)
	}

	return response.GetStatus(), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *Client) deployContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.deployTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.deployTimeout)
}
