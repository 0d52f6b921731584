package builddb

import (
	"sync"
	"time"

	"go-mkimg/build"
	"go-mkimg/image"
	"go-mkimg/log"
	"go-mkimg/supervisor"
)

// Recorder persists a run and its attempts as the build driver reports
// them. Database failures are logged and remembered but never interrupt
// the build.
type Recorder struct {
	db     *DB
	logger log.LibraryLogger

	mu  sync.Mutex
	err error
}

var _ build.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder writing to db.
func NewRecorder(db *DB, logger log.LibraryLogger) *Recorder {
	if logger == nil {
		logger = log.NoOpLogger{}
	}
	return &Recorder{db: db, logger: logger}
}

// Err returns the first database error seen, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) fail(what string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("build database: %s: %v", what, err)

	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

func (r *Recorder) RunStarted(run build.RunInfo) {
	r.fail("start run", r.db.StartRun(&RunRecord{
		ID:            run.ID,
		Name:          run.Name,
		ContentSource: run.ContentSource,
		Retry:         run.Retry,
		StartTime:     run.Started,
	}))
}

// AttemptStarted is a no-op; attempts are stored once they have an outcome.
func (r *Recorder) AttemptStarted(build.RunInfo, int, image.BuildConfig) {}

func (r *Recorder) AttemptFinished(run build.RunInfo, out supervisor.Outcome) {
	r.fail("put attempt", r.db.PutAttempt(run.ID, AttemptFromOutcome(out)))
}

func (r *Recorder) RunFinished(run build.RunInfo, res *build.Result) {
	r.fail("finish run", r.db.FinishRun(run.ID, res.Success, res.Aborted, len(res.Attempts), time.Now()))
}

// AttemptFromOutcome converts an attempt outcome into its stored form.
func AttemptFromOutcome(out supervisor.Outcome) *AttemptRecord {
	rec := &AttemptRecord{
		ID:                out.AttemptID,
		Attempt:           out.Attempt,
		Status:            out.Status(),
		Reason:            out.Reason(),
		BuilderExitCode:   out.BuilderExitCode,
		PopulatorExitCode: out.PopulatorExitCode,
		MarkerSeen:        out.MarkerSeen,
		PopulatorStarted:  out.PopulatorStarted,
		ForcedStop:        out.ForcedStop,
		ForcedUnmount:     out.ForcedUnmountPerformed,
		Lines:             out.Lines,
		StartTime:         out.Started,
		EndTime:           out.Started.Add(out.Duration),
	}
	if out.UnmountErr != nil {
		rec.UnmountError = out.UnmountErr.Error()
	}
	return rec
}
