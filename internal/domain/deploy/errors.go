package deploy

import (
	"errors"
	"fmt"
	"time"
)

// ErrDeploymentInProgress is returned when a run is requested while another
// one is still in flight.
var ErrDeploymentInProgress = errors.New("a deployment is already in progress")

// FailureKind classifies how a stage failed.
type FailureKind int

const (
	// LaunchFailure means the tool could not be started at all.
	LaunchFailure FailureKind = iota + 1
	// AbnormalTermination means the tool was killed or crashed.
	AbnormalTermination
	// NonZeroExit means the tool ran and reported failure.
	NonZeroExit
	// Canceled means the run was stopped while the tool was running.
	Canceled
	// TimedOut means the tool exceeded the stage timeout and was killed.
	TimedOut
	// ProcessError covers any other failure while waiting for the tool.
	ProcessError
)

// String returns the kind name used in logs and records.
func (k FailureKind) String() string {
	switch k {
	case LaunchFailure:
		return "launch_failure"
	case AbnormalTermination:
		return "abnormal_termination"
	case NonZeroExit:
		return "non_zero_exit"
	case Canceled:
		return "canceled"
	case TimedOut:
		return "timed_out"
	case ProcessError:
		return "process_error"
	default:
		return "unknown"
	}
}

// ParseFailureKind is the inverse of String. Unknown names map to zero.
func ParseFailureKind(s string) FailureKind {
	for k := LaunchFailure; k <= ProcessError; k++ {
		if k.String() == s {
			return k
		}
	}

	return 0
}

// StageError describes why a stage ended the run.
type StageError struct {
	// Stage is the stage that failed.
	Stage RunStage
	// Kind is the failure classification.
	Kind FailureKind
	// Tool is the display name of the program the stage ran.
	Tool string
	// ExitCode is the tool's exit code for NonZeroExit, -1 otherwise.
	ExitCode int
	// Timeout is the stage limit that was exceeded for TimedOut.
	Timeout time.Duration
	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s stage: %s", e.Stage, e.Message())
	if e.Kind == NonZeroExit {
		msg += fmt.Sprintf(" (exit code %d)", e.ExitCode)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *StageError) Unwrap() error {
	return e.Err
}

// Message renders the user-facing text reported to the log sink.
func (e *StageError) Message() string {
	switch e.Kind {
	case LaunchFailure:
		return fmt.Sprintf("Failed to start %s.", e.Tool)
	case AbnormalTermination:
		return fmt.Sprintf("%s has unexpectedly finished.", e.Tool)
	case NonZeroExit:
		if e.Stage == StageInstalling {
			return "An error occurred while installing the package."
		}

		return "An error occurred while creating the package."
	case Canceled:
		return fmt.Sprintf("Deployment of %s was stopped.", e.Tool)
	case TimedOut:
		return fmt.Sprintf("%s did not finish within %s.", e.Tool, e.Timeout)
	default:
		return fmt.Sprintf("Some error has occurred while running %s.", e.Tool)
	}
}

// Result is the outcome of one run.
type Result struct {
	// RunID identifies the run.
	RunID string
	// Stage is StageDone or StageFailed.
	Stage RunStage
	// Failure is set when Stage is StageFailed.
	Failure *StageError
}

// Succeeded reports whether the run reached StageDone.
func (r *Result) Succeeded() bool {
	return r != nil && r.Stage == StageDone
}

// Err returns the failure as an error, or nil for a successful run.
func (r *Result) Err() error {
	if r == nil || r.Failure == nil {
		return nil
	}

	return r.Failure
}
