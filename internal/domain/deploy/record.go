package deploy

import (
	"slices"
	"time"
)

// Actor identifies who started a run.
type Actor struct {
	// Hostname is the machine the run was started from.
	Hostname string
	// Username is the system user that started the run.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// Record summarizes a finished run for history and remote queries.
type Record struct {
	// RunID identifies the run.
	RunID string
	// Configuration is the run configuration name.
	Configuration string
	// Actor started the run.
	Actor *Actor
	// Stage is the final stage.
	Stage RunStage
	// FailedStage is the stage whose tool failed; StageIdle on success.
	FailedStage RunStage
	// FailureKind is set for failed runs.
	FailureKind FailureKind
	// Error is the user-facing failure message, empty on success.
	Error string
	// Artifact is the absolute path of the .sisx file.
	Artifact string
	// Messages are the lifecycle messages in the order they were emitted.
	Messages []string
	// StartedAt is when the run started.
	StartedAt time.Time
	// FinishedAt is when the run reached a terminal stage.
	FinishedAt time.Time
	// Version is the version of the tool that performed the run.
	Version string
}

// Succeeded reports whether the recorded run completed.
func (r *Record) Succeeded() bool {
	return r != nil && r.Stage == StageDone
}

// Duration returns how long the run took.
func (r *Record) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	cloned := *r
	cloned.Actor = r.Actor.Clone()
	cloned.Messages = slices.Clone(r.Messages)

	return &cloned
}
