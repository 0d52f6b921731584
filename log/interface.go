package log

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// LibraryLogger is the printf-style logging surface shared by the
// supervisor, the retry driver and the service layer.
type LibraryLogger interface {
	// Info logs progress (e.g., "builder started, pid 4711")
	Info(format string, args ...any)

	// Debug logs diagnostics; may be discarded
	Debug(format string, args ...any)

	// Warn logs non-fatal problems such as a failed unmount
	Warn(format string, args ...any)

	// Error logs failures; execution continues
	Error(format string, args ...any)
}

// NoOpLogger discards all log messages.
type NoOpLogger struct{}

func (NoOpLogger) Info(format string, args ...any)  {}
func (NoOpLogger) Debug(format string, args ...any) {}
func (NoOpLogger) Warn(format string, args ...any)  {}
func (NoOpLogger) Error(format string, args ...any) {}

// ConsoleLogger prints messages with a severity prefix. Debug output is
// suppressed unless Verbose is set. A nil Out writes to stderr so stdout
// stays free for command output.
type ConsoleLogger struct {
	Out     io.Writer
	Verbose bool

	mu sync.Mutex
}

// NewConsoleLogger returns a ConsoleLogger writing to stderr.
func NewConsoleLogger(verbose bool) *ConsoleLogger {
	return &ConsoleLogger{Out: os.Stderr, Verbose: verbose}
}

func (c *ConsoleLogger) printf(level, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintf(out, "["+level+"] "+format+"\n", args...)
}

func (c *ConsoleLogger) Info(format string, args ...any) { c.printf("INFO", format, args...) }

func (c *ConsoleLogger) Debug(format string, args ...any) {
	if c.Verbose {
		c.printf("DEBUG", format, args...)
	}
}

func (c *ConsoleLogger) Warn(format string, args ...any)  { c.printf("WARN", format, args...) }
func (c *ConsoleLogger) Error(format string, args ...any) { c.printf("ERROR", format, args...) }

// MultiLogger fans every message out to each of its loggers in order.
type MultiLogger []LibraryLogger

func (m MultiLogger) Info(format string, args ...any) {
	for _, l := range m {
		l.Info(format, args...)
	}
}

func (m MultiLogger) Debug(format string, args ...any) {
	for _, l := range m {
		l.Debug(format, args...)
	}
}

func (m MultiLogger) Warn(format string, args ...any) {
	for _, l := range m {
		l.Warn(format, args...)
	}
}

func (m MultiLogger) Error(format string, args ...any) {
	for _, l := range m {
		l.Error(format, args...)
	}
}
