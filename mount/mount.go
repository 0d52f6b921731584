// Package mount releases the image mount left behind by a failed or
// interrupted attempt.
package mount

import (
	"context"
	"fmt"
	"io"
	"time"

	"go-mkimg/config"
	"go-mkimg/log"
	"go-mkimg/process"
)

// Unmounter forcibly releases whatever the builder mounted.
type Unmounter interface {
	// ForceUnmount runs synchronously. Output of the underlying tooling is
	// copied to out when it is non-nil.
	ForceUnmount(ctx context.Context, out io.Writer) error
}

// DefaultRetryDelay separates unmount retries.
const DefaultRetryDelay = 5 * time.Second

// ErrUnmountFailed reports that every unmount try failed.
type ErrUnmountFailed struct {
	Command  string
	Tries    int
	ExitCode int  // last exit code, -1 if killed or never started
	TimedOut bool // last try exceeded the timeout
	Err      error
}

func (e *ErrUnmountFailed) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("unmount failed (%s, %d tries): %v", e.Command, e.Tries, e.Err)
	case e.TimedOut:
		return fmt.Sprintf("unmount timed out (%s, %d tries)", e.Command, e.Tries)
	default:
		return fmt.Sprintf("unmount failed (%s, %d tries): exit code %d", e.Command, e.Tries, e.ExitCode)
	}
}

func (e *ErrUnmountFailed) Unwrap() error {
	return e.Err
}

// ScriptUnmounter runs the unmount script with FORCE=1 from the scripts
// directory.
type ScriptUnmounter struct {
	Launcher process.Launcher
	Path     string
	Args     []string
	Dir      string

	// Env is merged over the inherited environment, below FORCE=1.
	Env map[string]string

	// Timeout bounds each try; 0 waits indefinitely.
	Timeout time.Duration

	// Retries is the number of tries; values below 1 mean one try.
	Retries    int
	RetryDelay time.Duration

	Logger log.LibraryLogger
}

var _ Unmounter = (*ScriptUnmounter)(nil)

// NewScriptUnmounter builds a ScriptUnmounter from configuration.
func NewScriptUnmounter(cfg *config.Config, launcher process.Launcher, env map[string]string, logger log.LibraryLogger) *ScriptUnmounter {
	path, args := cfg.ResolveCommand(cfg.UnmountCommand)
	if logger == nil {
		logger = log.NoOpLogger{}
	}
	return &ScriptUnmounter{
		Launcher:   launcher,
		Path:       path,
		Args:       args,
		Dir:        cfg.ScriptsPath,
		Env:        env,
		Timeout:    cfg.Timeouts.Unmount,
		Retries:    cfg.UnmountRetries,
		RetryDelay: DefaultRetryDelay,
		Logger:     logger,
	}
}

func (u *ScriptUnmounter) command(out io.Writer) *process.Command {
	env := make(map[string]string, len(u.Env)+1)
	for k, v := range u.Env {
		env[k] = v
	}
	env["FORCE"] = "1"

	return &process.Command{
		Path:       u.Path,
		Args:       u.Args,
		Dir:        u.Dir,
		Env:        env,
		InheritEnv: true,
		Stdout:     out,
		Stderr:     out,
	}
}

// ForceUnmount implements Unmounter.
func (u *ScriptUnmounter) ForceUnmount(ctx context.Context, out io.Writer) error {
	logger := u.Logger
	if logger == nil {
		logger = log.NoOpLogger{}
	}

	tries := u.Retries
	if tries < 1 {
		tries = 1
	}

	cmd := u.command(out)
	failure := &ErrUnmountFailed{Command: cmd.String(), ExitCode: -1}

	for try := 1; try <= tries; try++ {
		if try > 1 {
			logger.Warn("[Unmount] retry %d/%d in %s", try, tries, u.RetryDelay)
			select {
			case <-time.After(u.RetryDelay):
			case <-ctx.Done():
				failure.Err = ctx.Err()
				return failure
			}
		}

		failure.Tries = try
		failure.TimedOut = false
		failure.Err = nil

		p, err := u.Launcher.Start(ctx, cmd)
		if err != nil {
			failure.ExitCode = -1
			failure.Err = err
			logger.Error("[Unmount] %v", err)
			continue
		}

		status, exited := p.Wait(u.Timeout)
		if !exited {
			p.Terminate()
			failure.ExitCode = -1
			failure.TimedOut = true
			logger.Error("[Unmount] %s still running after %s, terminated", cmd, u.Timeout)
			continue
		}

		if status.Success() {
			logger.Info("[Unmount] forced unmount completed")
			return nil
		}

		failure.ExitCode = status.Code
		logger.Warn("[Unmount] %s exited with code %d", cmd, status.Code)
	}

	return failure
}
