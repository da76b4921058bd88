// Package deploy contains the core domain types of a device deployment run.
//
// A run takes one artifact through three stages (package, sign, install).
// PackagingContext is the immutable snapshot a run works from, RunStage tracks
// where the run is, StageError classifies how a stage failed, and Record is
// the persisted summary of a finished run.
package deploy
