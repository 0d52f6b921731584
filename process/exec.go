//go:build unix

package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"go-mkimg/config"
)

func init() {
	Register("exec", func(cfg *config.Config) Launcher {
		grace := config.DefaultKillGrace
		if cfg != nil && cfg.Timeouts.KillGrace > 0 {
			grace = cfg.Timeouts.KillGrace
		}
		return &ExecLauncher{KillGrace: grace}
	})
}

// ExecLauncher starts real processes. Every process leads its own process
// group so Terminate reaches the helpers a shell script spawns.
type ExecLauncher struct {
	// KillGrace is how long Terminate waits after SIGTERM before SIGKILL.
	KillGrace time.Duration
}

var _ Launcher = (*ExecLauncher)(nil)

// Start implements Launcher.
func (l *ExecLauncher) Start(ctx context.Context, c *Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ErrSpawnFailed{Command: c.String(), Err: err}
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Environ()
	cmd.Stdout = c.Stdout
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Descendants may keep inherited output pipes open after the script
	// exits; don't let Wait hang on them forever.
	cmd.WaitDelay = l.grace()

	p := &execProcess{
		cmd:       cmd,
		done:      make(chan struct{}),
		killGrace: l.grace(),
	}

	// Stderr goes through a pipe we own rather than cmd.StderrPipe, which
	// must not be read after Wait returns.
	var pw *os.File
	if c.CaptureStderr {
		pr, w, err := os.Pipe()
		if err != nil {
			return nil, &ErrSpawnFailed{Command: c.String(), Err: err}
		}
		p.stderr = pr
		pw = w
		cmd.Stderr = pw
	} else {
		cmd.Stderr = c.Stderr
	}

	if err := cmd.Start(); err != nil {
		if pw != nil {
			pw.Close()
			p.stderr.Close()
		}
		return nil, &ErrSpawnFailed{Command: c.String(), Err: err}
	}
	if pw != nil {
		// The child holds its own copy now.
		pw.Close()
	}

	go p.reap()

	return p, nil
}

func (l *ExecLauncher) grace() time.Duration {
	if l.KillGrace > 0 {
		return l.KillGrace
	}
	return config.DefaultKillGrace
}

type execProcess struct {
	cmd       *exec.Cmd
	stderr    *os.File
	killGrace time.Duration

	done   chan struct{}
	exited atomic.Bool
	status ExitStatus
}

func (p *execProcess) reap() {
	err := p.cmd.Wait()
	p.status = exitStatus(p.cmd.ProcessState, err)
	p.exited.Store(true)
	close(p.done)
}

func exitStatus(state *os.ProcessState, err error) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1, Err: err}
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Err: fmt.Errorf("killed by signal: %s", ws.Signal())}
	}

	status := ExitStatus{Code: state.ExitCode()}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		status.Err = err
	}
	return status
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Stderr() io.Reader {
	if p.stderr == nil {
		return nil
	}
	return p.stderr
}

func (p *execProcess) Exited() bool {
	return p.exited.Load()
}

func (p *execProcess) Wait(timeout time.Duration) (ExitStatus, bool) {
	if timeout <= 0 {
		<-p.done
		return p.status, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.status, true
	case <-timer.C:
		return ExitStatus{}, false
	}
}

// Terminate sends SIGTERM to the process group, then SIGKILL after
// killGrace. ESRCH from the group means nobody was left to signal.
func (p *execProcess) Terminate() TerminateResult {
	if p.Exited() {
		return AlreadyExited
	}

	pid := p.cmd.Process.Pid
	if err := signalGroup(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return AlreadyExited
		}
		// Group signaling refused (EPERM after setuid, say); fall back to the
		// leader alone.
		if err := p.cmd.Process.Signal(syscall.SIGTERM); errors.Is(err, os.ErrProcessDone) {
			return AlreadyExited
		}
	}

	if _, ok := p.Wait(p.killGrace); ok {
		return Signaled
	}

	signalGroup(pid, unix.SIGKILL)
	p.cmd.Process.Kill()

	// A process stuck in uninterruptible sleep (a wedged FUSE mount) may
	// never be reaped; don't hang the caller on it.
	p.Wait(p.killGrace)
	return Signaled
}

func signalGroup(pgid int, sig unix.Signal) error {
	return unix.Kill(-pgid, sig)
}
