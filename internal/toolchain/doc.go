// Package toolchain resolves SDK locations for a device.
//
// A Registry is built once from configuration and passed to whoever needs to
// turn a device id into a tools directory or toolchain root. There is no
// process-wide lookup table.
package toolchain
