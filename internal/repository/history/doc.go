// Package history keeps the records of finished deployments.
//
// The FileRepository stores the most recent records as protobuf JSON on disk
// so the agent can answer "what happened last time" after a restart.
package history
