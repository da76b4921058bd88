// Package config defines the settings shared by the sisx-deploy binaries and
// provides helpers to load, validate and save them in YAML format.
//
// Settings name the SDK devices, the packaging tools, the run configurations
// that can be deployed, and the agent address used by the remote client.
package config
