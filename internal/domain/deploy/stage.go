package deploy

// RunStage is the position of a run in the pipeline.
type RunStage int

const (
	// StageIdle means no run has been started yet.
	StageIdle RunStage = iota
	// StagePackaging runs the packaging tool to produce the .sis file.
	StagePackaging
	// StageSigning runs the signing tool to produce the .sisx file.
	StageSigning
	// StageInstalling hands the .sisx file over to the device installer.
	StageInstalling
	// StageDone is the terminal stage of a successful run.
	StageDone
	// StageFailed is the terminal stage of a failed run.
	StageFailed
)

// String returns the lower-case stage name used in logs and records.
func (s RunStage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StagePackaging:
		return "packaging"
	case StageSigning:
		return "signing"
	case StageInstalling:
		return "installing"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseRunStage is the inverse of String.
func ParseRunStage(s string) (RunStage, bool) {
	for stage := StageIdle; stage <= StageFailed; stage++ {
		if stage.String() == s {
			return stage, true
		}
	}

	return StageIdle, false
}

// IsTerminal reports whether no further transition is possible.
func (s RunStage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// IsActive reports whether a stage process may be in flight.
func (s RunStage) IsActive() bool {
	return s == StagePackaging || s == StageSigning || s == StageInstalling
}

// Next returns the stage that follows s on success.
// Terminal stages return themselves.
func (s RunStage) Next() RunStage {
	switch s {
	case StageIdle:
		return StagePackaging
	case StagePackaging:
		return StageSigning
	case StageSigning:
		return StageInstalling
	case StageInstalling:
		return StageDone
	default:
		return s
	}
}

// CanTransition reports whether a run may move from one stage to another.
// Stages only move forward one step at a time; any active stage may fail.
func CanTransition(from, to RunStage) bool {
	if from.IsTerminal() {
		return false
	}

	if to == StageFailed {
		return from.IsActive()
	}

	return from.Next() == to
}
