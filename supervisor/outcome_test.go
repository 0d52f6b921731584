package supervisor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestOutcome_Success(t *testing.T) {
	ok := Outcome{
		BuilderExitCode:   intPtr(0),
		PopulatorExitCode: intPtr(0),
		PopulatorStarted:  true,
		MarkerSeen:        true,
	}

	tests := []struct {
		name   string
		mutate func(*Outcome)
		want   bool
		status string
	}{
		{"all good", func(*Outcome) {}, true, StatusSuccess},
		{"timed out", func(o *Outcome) { o.TimedOut = true }, false, StatusTimeout},
		{"canceled", func(o *Outcome) { o.Canceled = true }, false, StatusCanceled},
		{"builder non-zero", func(o *Outcome) { o.BuilderExitCode = intPtr(1) }, false, StatusFailed},
		{"builder unknown", func(o *Outcome) { o.BuilderExitCode = nil }, false, StatusFailed},
		{"populator non-zero", func(o *Outcome) { o.PopulatorExitCode = intPtr(2) }, false, StatusFailed},
		{"populator unknown", func(o *Outcome) { o.PopulatorExitCode = nil }, false, StatusFailed},
		{"populator never started", func(o *Outcome) { o.PopulatorStarted = false }, false, StatusFailed},
		{"forced unmount alone does not fail", func(o *Outcome) { o.ForcedUnmountPerformed = true }, true, StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := ok
			tt.mutate(&o)
			assert.Equal(t, tt.want, o.Success())
			assert.Equal(t, tt.status, o.Status())
		})
	}
}

func TestOutcome_Reason(t *testing.T) {
	tests := []struct {
		name string
		o    Outcome
		want string
	}{
		{"success", Outcome{BuilderExitCode: intPtr(0), PopulatorExitCode: intPtr(0), PopulatorStarted: true}, ""},
		{"interrupted", Outcome{Canceled: true}, "interrupted"},
		{"builder spawn", Outcome{SpawnErr: errors.New("denied")}, "builder could not be started: denied"},
		{"marker timeout", Outcome{TimedOut: true, BuilderExitCode: intPtr(-1)}, "timed out waiting for readiness marker"},
		{"stalled", Outcome{TimedOut: true, MarkerSeen: true}, "builder output stalled"},
		{"no marker", Outcome{BuilderExitCode: intPtr(1)}, "readiness marker never seen (builder exited with code 1)"},
		{"populator spawn", Outcome{MarkerSeen: true, BuilderExitCode: intPtr(0), SpawnErr: errors.New("enoent")}, "populator could not be started: enoent"},
		{"builder failed", Outcome{MarkerSeen: true, PopulatorStarted: true, BuilderExitCode: intPtr(3), PopulatorExitCode: intPtr(0)}, "builder exited with code 3"},
		{"populator failed", Outcome{MarkerSeen: true, PopulatorStarted: true, BuilderExitCode: intPtr(0), PopulatorExitCode: intPtr(1)}, "populator exited with code 1"},
		{"populator unknown", Outcome{MarkerSeen: true, PopulatorStarted: true, BuilderExitCode: intPtr(0)}, "populator exit code unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.o.Reason())
		})
	}
}
