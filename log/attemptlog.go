package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go-mkimg/config"
)

// AttemptLogDir is the subdirectory of config.LogsPath holding attempt logs.
const AttemptLogDir = "attempts"

var _ io.Writer = (*AttemptLogger)(nil)

// AttemptLogger records the raw output of one attempt: the builder's
// diagnostic stream and whatever the populator prints. A logger whose file
// could not be created swallows writes so a full disk never fails a build.
type AttemptLogger struct {
	name    string
	attempt int
	path    string
	file    *os.File
	mu      sync.Mutex
}

// AttemptLogFileName returns the log file name for an attempt of the image
// at name, e.g. "disk.img.attempt-03.log".
func AttemptLogFileName(name string, attempt int) string {
	return fmt.Sprintf("%s.attempt-%02d.log", filepath.Base(name), attempt)
}

// NewAttemptLogger creates (truncating) the log for one attempt.
func NewAttemptLogger(cfg *config.Config, name string, attempt int) *AttemptLogger {
	al := &AttemptLogger{name: name, attempt: attempt}

	dir := filepath.Join(cfg.LogsPath, AttemptLogDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create attempt log directory: %v\n", err)
		return al
	}

	al.path = filepath.Join(dir, AttemptLogFileName(name, attempt))
	file, err := os.Create(al.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create attempt log: %v\n", err)
		al.path = ""
		return al
	}
	al.file = file

	return al
}

// Path returns the file backing the logger, or "" when it has none.
func (al *AttemptLogger) Path() string {
	return al.path
}

// Close closes the attempt log
func (al *AttemptLogger) Close() {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.file != nil {
		al.file.Close()
		al.file = nil
	}
}

// WriteHeader writes the log header including the builder environment.
func (al *AttemptLogger) WriteHeader(env map[string]string) {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.file == nil {
		return
	}

	fmt.Fprintf(al.file, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(al.file, "Image: %s\n", al.name)
	fmt.Fprintf(al.file, "Attempt: %d\n", al.attempt)
	fmt.Fprintf(al.file, "Started: %s\n", time.Now().Format(time.RFC3339))

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(al.file, "  %s=%s\n", k, env[k])
	}

	fmt.Fprintf(al.file, "%s\n\n", strings.Repeat("=", 70))
	al.file.Sync()
}

// WritePhase writes a phase header ("builder", "populator", "shutdown").
func (al *AttemptLogger) WritePhase(phase string) {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.file == nil {
		return
	}

	fmt.Fprintf(al.file, "\n%s\n", strings.Repeat("-", 70))
	fmt.Fprintf(al.file, "Phase: %s\n", phase)
	fmt.Fprintf(al.file, "Time: %s\n", time.Now().Format("15:04:05"))
	fmt.Fprintf(al.file, "%s\n\n", strings.Repeat("-", 70))
	al.file.Sync()
}

// Write appends raw process output. It always reports len(p) written so a
// broken log never stalls the process feeding it.
func (al *AttemptLogger) Write(p []byte) (int, error) {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.file != nil {
		al.file.Write(p)
	}
	return len(p), nil
}

// WriteString writes a string to the log
func (al *AttemptLogger) WriteString(s string) {
	al.Write([]byte(s))
}

// WriteCommand records a command line before it is started.
func (al *AttemptLogger) WriteCommand(cmd string) {
	al.WriteString(">>> " + cmd + "\n")
}

// WriteFooter closes the log with the attempt's status.
func (al *AttemptLogger) WriteFooter(status string, duration time.Duration) {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.file == nil {
		return
	}

	fmt.Fprintf(al.file, "\n%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(al.file, "ATTEMPT %s\n", strings.ToUpper(status))
	fmt.Fprintf(al.file, "Completed: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(al.file, "Duration: %s\n", duration)
	fmt.Fprintf(al.file, "%s\n", strings.Repeat("=", 70))
	al.file.Sync()
}
