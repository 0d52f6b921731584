package supervisor

import (
	"fmt"
	"time"
)

// Attempt status values, as stored in the build database.
const (
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusTimeout  = "timeout"
	StatusCanceled = "canceled"
)

// Outcome is everything known about an attempt once its shutdown sequence
// has finished.
type Outcome struct {
	AttemptID string
	Attempt   int // 1-based, per Supervisor

	// Exit codes; nil when the process never started or could not be reaped.
	BuilderExitCode   *int
	PopulatorExitCode *int

	PopulatorStarted bool
	MarkerSeen       bool

	// TimedOut is set when the builder's stream went quiet past a deadline.
	TimedOut bool

	// Canceled is set when the caller's context ended the attempt early.
	Canceled bool

	// ForcedStop is set when a still-running process had to be terminated.
	ForcedStop bool

	ForcedUnmountPerformed bool
	UnmountErr             error

	// SpawnErr is set when the builder or the populator could not be started.
	SpawnErr error

	// Lines counts the builder diagnostic lines observed.
	Lines int

	Started  time.Time
	Duration time.Duration
}

// Success reports whether the attempt produced a complete image: no timeout,
// both processes exited 0, and the populator actually ran.
func (o Outcome) Success() bool {
	return !o.TimedOut &&
		!o.Canceled &&
		o.PopulatorStarted &&
		isZero(o.BuilderExitCode) &&
		isZero(o.PopulatorExitCode)
}

// Status summarizes the outcome as one of the Status* constants.
func (o Outcome) Status() string {
	switch {
	case o.Success():
		return StatusSuccess
	case o.Canceled:
		return StatusCanceled
	case o.TimedOut:
		return StatusTimeout
	default:
		return StatusFailed
	}
}

// Reason explains a failed outcome in a few words. It is empty on success.
func (o Outcome) Reason() string {
	switch {
	case o.Success():
		return ""
	case o.Canceled:
		return "interrupted"
	case o.SpawnErr != nil && o.BuilderExitCode == nil && !o.MarkerSeen:
		return fmt.Sprintf("builder could not be started: %v", o.SpawnErr)
	case o.TimedOut && !o.MarkerSeen:
		return "timed out waiting for readiness marker"
	case o.TimedOut:
		return "builder output stalled"
	case !o.MarkerSeen:
		return fmt.Sprintf("readiness marker never seen (builder %s)", codeString(o.BuilderExitCode))
	case o.SpawnErr != nil:
		return fmt.Sprintf("populator could not be started: %v", o.SpawnErr)
	case !isZero(o.BuilderExitCode):
		return fmt.Sprintf("builder %s", codeString(o.BuilderExitCode))
	default:
		return fmt.Sprintf("populator %s", codeString(o.PopulatorExitCode))
	}
}

func isZero(code *int) bool {
	return code != nil && *code == 0
}

func codeString(code *int) string {
	if code == nil {
		return "exit code unknown"
	}
	return fmt.Sprintf("exited with code %d", *code)
}
