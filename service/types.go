package service

import (
	"io"
	"time"

	"go-mkimg/build"
	"go-mkimg/builddb"
	"go-mkimg/log"
)

// BuildOptions contains options for the Build service.
type BuildOptions struct {
	Name    string // Image file to build
	Content string // Directory copied into the image
	Size    *int64 // Image size in bytes; nil lets the builder decide
	TempDir string // Scratch directory for the builder, created if missing
	Retry   int    // Attempt budget; 0 uses the configured Retry

	// Observers are notified alongside the database recorder and the
	// metrics collector, e.g. a build.StdoutProgress.
	Observers []build.Observer

	// Logger receives progress messages in addition to the summary logs.
	Logger log.LibraryLogger

	// Output receives the prepare command's output; nil discards it.
	Output io.Writer
}

// BuildResult contains the results of a build operation.
type BuildResult struct {
	*build.Result

	Name     string
	Prepared bool // Whether a prepare command ran
}

// StatusOptions contains options for the Status service.
type StatusOptions struct {
	RunID string // Show a single run; empty lists recent runs
	Limit int    // Maximum number of runs listed; 0 means 10
}

// StatusResult contains the results of a status query.
type StatusResult struct {
	Runs         []RunStatus        // Newest first
	Active       *builddb.RunRecord // Run without an end time, if any
	DatabaseSize int64              // Size of the build database in bytes
	Logs         map[string]int     // Success and failure list entry counts
}

// RunStatus is a run with its attempts.
type RunStatus struct {
	Run      builddb.RunRecord
	Attempts []builddb.AttemptRecord
}

// Duration returns how long the run took, or has been running.
func (r RunStatus) Duration() time.Duration {
	if r.Run.Running() {
		return time.Since(r.Run.StartTime)
	}
	return r.Run.EndTime.Sub(r.Run.StartTime)
}

// InitResult contains the results of an initialization operation.
type InitResult struct {
	DirsCreated         []string // Directories created or verified
	DatabaseInitialized bool     // Whether the database is open
	ScriptsFound        []string // Configured scripts that exist
	Warnings            []string // Non-fatal warnings
}

// DatabaseResult contains the results of a database operation.
type DatabaseResult struct {
	DatabaseRemoved bool     // Whether the database was removed
	FilesRemoved    []string // List of files that were removed
}
