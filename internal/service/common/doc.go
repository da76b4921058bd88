// Package common holds helpers shared by several services.
//
// It provides a gRPC client for the deployment agent with per-call timeouts
// and a helper that detects the current system actor (hostname/username) for
// deployment records.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
