// Package agent runs the deployment agent: a gRPC server on the machine with
// the SDK that builds and installs packages on behalf of remote clients.
package agent
