// Package build drives repeated attempts at building a disk image until one
// succeeds or the retry budget is spent.
package build

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go-mkimg/config"
	"go-mkimg/image"
	"go-mkimg/log"
	"go-mkimg/supervisor"
)

// DefaultRetry is the customary retry budget.
const DefaultRetry = config.DefaultRetry

// ErrInvalidRetry is returned for a retry budget below 1.
var ErrInvalidRetry = errors.New("retry must be at least 1")

// AttemptRunner runs one attempt. *supervisor.Supervisor implements it.
type AttemptRunner interface {
	RunAttempt(ctx context.Context, cfg image.BuildConfig) supervisor.Outcome
}

// RunInfo identifies a build run to observers.
type RunInfo struct {
	ID            string
	Name          string
	ContentSource string
	Retry         int
	Started       time.Time
}

// Result summarizes a build run.
type Result struct {
	RunID    string
	Success  bool
	Attempts []supervisor.Outcome
	Duration time.Duration

	// Aborted is set when the context was cancelled before the retry budget
	// or a success ended the run.
	Aborted bool
}

// Last returns the final attempt's outcome, or nil when none ran.
func (r *Result) Last() *supervisor.Outcome {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// Observer is notified as a run progresses. Calls are made from the
// goroutine running Build, in order.
type Observer interface {
	RunStarted(run RunInfo)
	AttemptStarted(run RunInfo, attempt int, cfg image.BuildConfig)
	AttemptFinished(run RunInfo, out supervisor.Outcome)
	RunFinished(run RunInfo, res *Result)
}

// Driver runs attempts strictly one after another, with a fresh
// BuildConfig each time and no delay between them.
type Driver struct {
	Runner AttemptRunner

	// NewConfig builds the configuration of the next attempt.
	NewConfig func() image.BuildConfig

	Observers []Observer
	Logger    log.LibraryLogger
}

// Build makes up to retry attempts and stops at the first success. When ctx
// is cancelled the partial result is returned together with ctx.Err().
func (d *Driver) Build(ctx context.Context, retry int) (*Result, error) {
	if retry < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRetry, retry)
	}
	if d.Runner == nil || d.NewConfig == nil {
		return nil, errors.New("build driver needs a runner and a config constructor")
	}

	logger := d.Logger
	if logger == nil {
		logger = log.NoOpLogger{}
	}

	cfg := d.NewConfig()
	run := RunInfo{
		ID:            uuid.NewString(),
		Name:          cfg.Name,
		ContentSource: cfg.ContentSource,
		Retry:         retry,
		Started:       time.Now(),
	}
	res := &Result{RunID: run.ID}

	for _, o := range d.Observers {
		o.RunStarted(run)
	}

	for n := 1; n <= retry; n++ {
		if ctx.Err() != nil {
			res.Aborted = true
			break
		}
		if n > 1 {
			cfg = d.NewConfig()
		}

		for _, o := range d.Observers {
			o.AttemptStarted(run, n, cfg)
		}

		out := d.Runner.RunAttempt(ctx, cfg)
		res.Attempts = append(res.Attempts, out)

		for _, o := range d.Observers {
			o.AttemptFinished(run, out)
		}

		if out.Success() {
			res.Success = true
			break
		}
		if out.Canceled {
			res.Aborted = true
			break
		}

		logger.Warn("attempt %d/%d failed: %s", n, retry, out.Reason())
	}

	res.Duration = time.Since(run.Started)

	for _, o := range d.Observers {
		o.RunFinished(run, res)
	}

	if res.Aborted {
		return res, ctx.Err()
	}
	return res, nil
}

// Build builds the image at name from content, making up to retry attempts,
// and reports whether one succeeded. size may be nil; tmpDir may be empty.
func Build(ctx context.Context, runner AttemptRunner, name, content string, size *int64, tmpDir string, retry int) bool {
	d := &Driver{
		Runner: runner,
		NewConfig: func() image.BuildConfig {
			return image.NewBuildConfig(name, content, size, tmpDir)
		},
	}
	res, err := d.Build(ctx, retry)
	return err == nil && res.Success
}
