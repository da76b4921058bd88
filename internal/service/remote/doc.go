// Package remote is the client side of the deployment agent: it asks an agent
// to deploy a run configuration and reports what happened.
package remote
