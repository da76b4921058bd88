// Package version exposes build metadata for the sisx-deploy binaries.
//
// Version, Commit and BuildTime are injected through -ldflags and default to
// local-build values. Short is stamped into run records; Full backs the
// `version` subcommand of every CLI.
package version
