package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go-mkimg/config"
)

// Summary log file names, relative to config.LogsPath.
const (
	ResultsLogName = "00_last_results.log"
	SuccessLogName = "01_success_list.log"
	FailureLogName = "02_failure_list.log"
	DebugLogName   = "07_debug.log"
)

// Compile-time interface checks
var (
	_ LibraryLogger = (*Logger)(nil)
	_ LibraryLogger = (*ContextLogger)(nil)
)

// Logger manages the summary log files of a build run.
type Logger struct {
	cfg         *config.Config
	resultsFile *os.File
	successFile *os.File
	failureFile *os.File
	debugFile   *os.File
	mu          sync.Mutex
}

// LogContext provides metadata for contextual logging
type LogContext struct {
	RunID   string // Run UUID (full or short)
	Name    string // Image path being built
	Attempt int    // 1-based attempt number, 0 outside an attempt
}

// ContextLogger wraps Logger with context metadata for enriched log entries
type ContextLogger struct {
	logger *Logger
	ctx    LogContext
}

// NewLogger creates the logs directory and opens the summary logs for
// appending. A log that is empty gets its header. Call Reset to start a new
// set of results.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogsPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	l := &Logger{cfg: cfg}

	for _, f := range l.files() {
		file, err := os.OpenFile(filepath.Join(cfg.LogsPath, f.name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to open %s: %w", f.name, err)
		}
		*f.dst = file

		if info, err := file.Stat(); err == nil && info.Size() == 0 {
			f.header(file)
		}
	}

	return l, nil
}

type logFile struct {
	dst    **os.File
	name   string
	header func(f *os.File)
}

func (l *Logger) files() []logFile {
	stamp := func(format string) func(*os.File) {
		return func(f *os.File) {
			fmt.Fprintf(f, format, time.Now().Format(time.RFC3339))
		}
	}
	return []logFile{
		{&l.resultsFile, ResultsLogName, func(f *os.File) {
			stamp("mkimg build log - %s\n")(f)
			fmt.Fprintf(f, "%s\n\n", strings.Repeat("=", 70))
		}},
		{&l.successFile, SuccessLogName, stamp("Successful attempts - %s\n\n")},
		{&l.failureFile, FailureLogName, stamp("Failed attempts - %s\n\n")},
		{&l.debugFile, DebugLogName, stamp("Debug log - %s\n\n")},
	}
}

// Reset truncates every summary log and rewrites its header.
func (l *Logger) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range l.files() {
		file := *f.dst
		if file == nil {
			continue
		}
		if err := file.Truncate(0); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", f.name, err)
		}
		f.header(file)
	}
	return nil
}

// Close closes all log files
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range []*os.File{l.resultsFile, l.successFile, l.failureFile, l.debugFile} {
		if f != nil {
			f.Close()
		}
	}
}

// Success logs a successful attempt
func (l *Logger) Success(name string, attempt int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] SUCCESS: %s (attempt %d)\n", timestamp, name, attempt)
	fmt.Fprintf(l.successFile, "%s attempt=%d\n", name, attempt)

	l.resultsFile.Sync()
	l.successFile.Sync()
}

// Failed logs a failed attempt. status is the attempt status ("failed" or
// "timeout").
func (l *Logger) Failed(name string, attempt int, status string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(l.resultsFile, "[%s] FAILED: %s (attempt %d, %s)\n", timestamp, name, attempt, status)
	fmt.Fprintf(l.failureFile, "%s attempt=%d status=%s\n", name, attempt, status)

	l.resultsFile.Sync()
	l.failureFile.Sync()
}

// Debug logs debug information
func (l *Logger) Debug(format string, args ...any) {
	l.write("", "DEBUG", fmt.Sprintf(format, args...), l.debugFile)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.write("", "ERROR", fmt.Sprintf(format, args...), l.resultsFile, l.debugFile)
}

// Warn logs a warning message (non-fatal issues)
func (l *Logger) Warn(format string, args ...any) {
	l.write("", "WARN", fmt.Sprintf(format, args...), l.resultsFile, l.debugFile)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...any) {
	l.write("", "INFO", fmt.Sprintf(format, args...), l.resultsFile)
}

func (l *Logger) write(prefix, level, msg string, files ...*os.File) {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("[%s] %s%s: %s\n", time.Now().Format("15:04:05"), prefix, level, msg)
	for _, f := range files {
		f.WriteString(line)
		f.Sync()
	}
}

// WriteSummary writes the run summary to the results log
func (l *Logger) WriteSummary(name string, attempts int, success bool, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := "FAILED"
	if success {
		result = "SUCCESS"
	}

	fmt.Fprintf(l.resultsFile, "\n%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(l.resultsFile, "BUILD SUMMARY\n")
	fmt.Fprintf(l.resultsFile, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(l.resultsFile, "Image:             %s\n", name)
	fmt.Fprintf(l.resultsFile, "Result:            %s\n", result)
	fmt.Fprintf(l.resultsFile, "Attempts:          %d\n", attempts)
	fmt.Fprintf(l.resultsFile, "Duration:          %s\n", duration)
	fmt.Fprintf(l.resultsFile, "%s\n", strings.Repeat("=", 70))

	l.resultsFile.Sync()
}

// WithContext creates a ContextLogger with metadata for enriched logging.
// The RunID is truncated to 8 characters for readability.
//
// Example:
//
//	ctxLogger := logger.WithContext(log.LogContext{
//	    RunID:   runUUID,
//	    Name:    "/tmp/disk.img",
//	    Attempt: 2,
//	})
//	ctxLogger.Info("marker seen")
//	// Output: [15:04:05] [a1b2c3d4] [A2] /tmp/disk.img: INFO: marker seen
func (l *Logger) WithContext(ctx LogContext) *ContextLogger {
	return &ContextLogger{
		logger: l,
		ctx:    ctx,
	}
}

func (cl *ContextLogger) formatPrefix() string {
	shortID := cl.ctx.RunID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	return fmt.Sprintf("[%s] [A%d] %s: ", shortID, cl.ctx.Attempt, cl.ctx.Name)
}

// Success logs a successful attempt with context
func (cl *ContextLogger) Success() {
	cl.logger.Success(cl.ctx.Name, cl.ctx.Attempt)
}

// Failed logs a failed attempt with context
func (cl *ContextLogger) Failed(status string) {
	cl.logger.Failed(cl.ctx.Name, cl.ctx.Attempt, status)
}

func (cl *ContextLogger) Info(format string, args ...any) {
	cl.logger.write(cl.formatPrefix(), "INFO", fmt.Sprintf(format, args...), cl.logger.resultsFile)
}

func (cl *ContextLogger) Error(format string, args ...any) {
	cl.logger.write(cl.formatPrefix(), "ERROR", fmt.Sprintf(format, args...),
		cl.logger.resultsFile, cl.logger.debugFile)
}

func (cl *ContextLogger) Debug(format string, args ...any) {
	cl.logger.write(cl.formatPrefix(), "DEBUG", fmt.Sprintf(format, args...), cl.logger.debugFile)
}

func (cl *ContextLogger) Warn(format string, args ...any) {
	cl.logger.write(cl.formatPrefix(), "WARN", fmt.Sprintf(format, args...),
		cl.logger.resultsFile, cl.logger.debugFile)
}
