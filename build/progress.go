package build

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go-mkimg/image"
	"go-mkimg/supervisor"
)

// StdoutProgress prints one line per attempt event.
type StdoutProgress struct {
	Out io.Writer
	mu  sync.Mutex
}

var _ Observer = (*StdoutProgress)(nil)

// NewStdoutProgress creates a progress printer on stdout.
func NewStdoutProgress() *StdoutProgress {
	return &StdoutProgress{Out: os.Stdout}
}

func (p *StdoutProgress) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, format+"\n", args...)
}

func (p *StdoutProgress) RunStarted(run RunInfo) {
	p.printf("Building %s from %s (up to %d attempts)", run.Name, run.ContentSource, run.Retry)
}

func (p *StdoutProgress) AttemptStarted(run RunInfo, attempt int, cfg image.BuildConfig) {
	p.printf("[attempt %d/%d] start: %s", attempt, run.Retry, cfg)
}

func (p *StdoutProgress) AttemptFinished(run RunInfo, out supervisor.Outcome) {
	elapsed := out.Duration.Round(time.Second)
	if out.Success() {
		p.printf("[attempt %d/%d] success (%s)", out.Attempt, run.Retry, elapsed)
		return
	}

	msg := fmt.Sprintf("[attempt %d/%d] %s: %s (%s)", out.Attempt, run.Retry, out.Status(), out.Reason(), elapsed)
	if out.ForcedUnmountPerformed {
		msg += ", forced unmount"
		if out.UnmountErr != nil {
			msg += " failed"
		}
	}
	p.printf("%s", msg)
}

func (p *StdoutProgress) RunFinished(run RunInfo, res *Result) {
	switch {
	case res.Success:
		p.printf("Built %s after %d attempt(s) in %s", run.Name, len(res.Attempts), res.Duration.Round(time.Second))
	case res.Aborted:
		p.printf("Build of %s interrupted after %d attempt(s)", run.Name, len(res.Attempts))
	default:
		p.printf("Failed to build %s after %d attempt(s)", run.Name, len(res.Attempts))
	}
}
