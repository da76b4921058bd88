// Package target describes what a device deployment runs against.
//
// A RunConfiguration names the build output (target, build and destination
// directories, tool chain, debug or release) and how to sign and install it.
// Context turns it into the immutable deploy.PackagingContext using an
// injected toolchain registry.
package target
