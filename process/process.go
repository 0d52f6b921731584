// Package process starts and supervises the external scripts an image build
// is made of.
//
// A Launcher starts a Command and returns a Process handle. The handle
// offers exactly the operations the supervisor needs:
//   - a readable stderr stream (when requested)
//   - a bounded wait that reports "still running" instead of failing
//   - a Terminate that never fails: a process that is already gone is a
//     normal result, not an error
//
// Supported backends:
//   - "exec": real processes via os/exec, each in its own process group
//   - "mock": scripted processes for tests
//
// Usage example:
//
//	launcher, err := process.New("exec", cfg)
//	if err != nil {
//	    return err
//	}
//
//	p, err := launcher.Start(ctx, &process.Command{
//	    Path:          "/opt/mkimg/scripts/make_disk_image.sh",
//	    Env:           map[string]string{"NAME": "disk.img"},
//	    InheritEnv:    true,
//	    CaptureStderr: true,
//	})
//	if err != nil {
//	    return err
//	}
//
//	if _, exited := p.Wait(time.Minute); !exited {
//	    p.Terminate()
//	}
package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go-mkimg/config"
)

// Command describes a process to start.
type Command struct {
	// Path is the executable. Bare names are looked up in PATH.
	Path string

	// Args are the arguments, excluding Path itself.
	Args []string

	// Dir is the working directory. Empty inherits the caller's.
	Dir string

	// Env holds variables set for the process. They win over inherited ones.
	Env map[string]string

	// InheritEnv starts from the caller's environment before applying Env.
	InheritEnv bool

	// Stdout receives standard output. Nil discards it.
	Stdout io.Writer

	// Stderr receives standard error when CaptureStderr is false. Nil
	// discards it.
	Stderr io.Writer

	// CaptureStderr exposes standard error through Process.Stderr instead
	// of Stderr.
	CaptureStderr bool
}

// String renders the command line for logs.
func (c *Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Environ returns the process environment in "KEY=value" form. Keys from Env
// replace inherited ones; Env keys are appended in sorted order.
func (c *Command) Environ() []string {
	var base []string
	if c.InheritEnv {
		base = os.Environ()
	}

	env := make([]string, 0, len(base)+len(c.Env))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, overridden := c.Env[key]; !overridden {
			env = append(env, kv)
		}
	}

	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}

	return env
}

// ExitStatus is the result of a finished process.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was killed by a signal.
	Code int

	// Err carries detail beyond the code (the terminating signal, an I/O
	// error while collecting output). A non-zero Code alone is not an Err.
	Err error
}

// Success reports whether the process exited with code 0.
func (s ExitStatus) Success() bool {
	return s.Code == 0
}

// TerminateResult is the outcome of Process.Terminate.
type TerminateResult int

const (
	// AlreadyExited means the process was gone before it could be signaled.
	AlreadyExited TerminateResult = iota

	// Signaled means the process was still running and has been stopped.
	Signaled
)

func (r TerminateResult) String() string {
	switch r {
	case AlreadyExited:
		return "already-exited"
	case Signaled:
		return "signaled"
	default:
		return fmt.Sprintf("TerminateResult(%d)", int(r))
	}
}

// Process is a started process.
//
// Implementations must be safe for concurrent use: the supervisor waits on a
// process from one goroutine while its stderr is read from another.
type Process interface {
	// Pid returns the operating system process ID.
	Pid() int

	// Stderr returns the captured standard error stream, or nil when the
	// command did not request capture. The stream ends when every writer
	// (including descendants of the process) has closed it.
	Stderr() io.Reader

	// Wait blocks until the process exits or timeout elapses. The boolean is
	// false when the process was still running at the deadline. A timeout
	// <= 0 waits indefinitely.
	Wait(timeout time.Duration) (ExitStatus, bool)

	// Exited reports whether the process has been reaped.
	Exited() bool

	// Terminate stops the process (and its process group, where supported)
	// and reaps it. It never fails: a process that has already exited
	// yields AlreadyExited.
	Terminate() TerminateResult
}

// Launcher starts processes.
type Launcher interface {
	// Start starts cmd. A process that could not be started returns
	// *ErrSpawnFailed.
	Start(ctx context.Context, cmd *Command) (Process, error)
}

// NewLauncherFunc is a constructor function for Launcher implementations.
type NewLauncherFunc func(cfg *config.Config) Launcher

// Backend registry for launcher implementations.
var backends = make(map[string]NewLauncherFunc)

// Register registers a launcher backend.
//
// Panics if name is already registered (programming error).
func Register(name string, fn NewLauncherFunc) {
	if _, exists := backends[name]; exists {
		panic(fmt.Sprintf("process backend already registered: %s", name))
	}
	backends[name] = fn
}

// New creates a Launcher for the named backend.
func New(backend string, cfg *config.Config) (Launcher, error) {
	fn, ok := backends[backend]
	if !ok {
		return nil, &ErrUnknownBackend{Backend: backend}
	}
	return fn(cfg), nil
}

// ErrUnknownBackend is returned when requesting an unregistered backend.
type ErrUnknownBackend struct {
	Backend string
}

func (e *ErrUnknownBackend) Error() string {
	return fmt.Sprintf("unknown process backend: %s", e.Backend)
}

// ErrSpawnFailed indicates the process image could not be started
// (missing executable, permission denied, cancelled context).
type ErrSpawnFailed struct {
	Command string
	Err     error
}

func (e *ErrSpawnFailed) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Command, e.Err)
}

func (e *ErrSpawnFailed) Unwrap() error {
	return e.Err
}
