// Package deploy implements the gRPC transport for the deployment agent.
//
// The service is declared by hand over protobuf well-known types: requests
// and records travel as structpb.Struct values encoded by package pbconv.
package deploy
