// Package logger wraps zap for the deployment binaries:
//   - a global sugared logger writing console-encoded lines to stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and runtime level changes,
//   - context-first convenience functions (Infof, ErrorKV, etc.).
//
// Stdout is left to the deployment console output, so tool chatter and
// diagnostic logs never interleave on the same stream.
package logger
