// Package deployer packages, signs and installs an application on a device.
//
// Runner drives the three external tools of a run one after another. Each
// stage is launched through a Launcher, which streams the tool's output to a
// Sink and reports completion through a callback; the callback decides
// whether the next stage starts. Service wraps a Runner with configuration
// lookup, a per-directory run lock and run history, and backs both the
// sisx-deploy CLI and the sisx-agent gRPC service.
package deployer
