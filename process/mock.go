package process

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"time"

	"go-mkimg/config"
)

func init() {
	// Register mock backend for testing
	Register("mock", func(*config.Config) Launcher {
		return NewMockLauncher()
	})
}

// MockSpec scripts the behavior of one mock process.
type MockSpec struct {
	// Lines are written to stderr, each followed by a newline.
	Lines []string

	// LineDelay is slept before each line.
	LineDelay time.Duration

	// HoldStderr keeps stderr open, silently, until the process exits.
	HoldStderr bool

	// ExitCode is reported when the process finishes on its own.
	ExitCode int

	// ExitDelay is slept after the last line before exiting.
	ExitDelay time.Duration

	// Hang keeps the process running until it is terminated.
	Hang bool

	// SpawnErr makes Start fail with *ErrSpawnFailed wrapping it.
	SpawnErr error
}

// MockLauncher starts scripted processes and records every Command.
//
// Specs are keyed by the base name of Command.Path ("cp.sh"). Each Start
// consumes the next queued spec for that name; the last one is reused once
// the queue runs dry. Unknown names get a process that exits 0 at once.
//
// Usage example:
//
//	ml := process.NewMockLauncher()
//	ml.On("make_disk_image.sh", process.MockSpec{
//	    Lines:    []string{"fuse_init: activating writeback"},
//	    ExitCode: 0,
//	})
//	sup := &supervisor.Supervisor{Launcher: ml}
type MockLauncher struct {
	mu        sync.Mutex
	specs     map[string][]MockSpec
	calls     []*Command
	processes []*MockProcess
	nextPid   int
}

var _ Launcher = (*MockLauncher)(nil)

// NewMockLauncher creates an empty MockLauncher.
func NewMockLauncher() *MockLauncher {
	return &MockLauncher{
		specs:   make(map[string][]MockSpec),
		nextPid: 1000,
	}
}

// On queues specs for commands whose base name is name.
func (m *MockLauncher) On(name string, specs ...MockSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specs[name] = append(m.specs[name], specs...)
}

func (m *MockLauncher) nextSpec(name string) MockSpec {
	queue := m.specs[name]
	switch len(queue) {
	case 0:
		return MockSpec{}
	case 1:
		return queue[0]
	default:
		m.specs[name] = queue[1:]
		return queue[0]
	}
}

// Start implements Launcher.
func (m *MockLauncher) Start(ctx context.Context, c *Command) (Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Record the call
	m.calls = append(m.calls, c)

	if err := ctx.Err(); err != nil {
		return nil, &ErrSpawnFailed{Command: c.String(), Err: err}
	}

	spec := m.nextSpec(filepath.Base(c.Path))
	if spec.SpawnErr != nil {
		return nil, &ErrSpawnFailed{Command: c.String(), Err: spec.SpawnErr}
	}

	m.nextPid++
	p := newMockProcess(c, spec, m.nextPid)
	m.processes = append(m.processes, p)
	go p.run()

	return p, nil
}

// Calls returns every Command passed to Start, in order.
func (m *MockLauncher) Calls() []*Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*Command, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallsFor returns the Commands whose base name is name.
func (m *MockLauncher) CallsFor(name string) []*Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Command
	for _, c := range m.calls {
		if filepath.Base(c.Path) == name {
			result = append(result, c)
		}
	}
	return result
}

// CallCount returns how many times a command named name was started
// (including failed spawns).
func (m *MockLauncher) CallCount(name string) int {
	return len(m.CallsFor(name))
}

// Processes returns the started processes named name.
func (m *MockLauncher) Processes(name string) []*MockProcess {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*MockProcess
	for _, p := range m.processes {
		if filepath.Base(p.cmd.Path) == name {
			result = append(result, p)
		}
	}
	return result
}

// Reset clears recorded calls and queued specs.
func (m *MockLauncher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specs = make(map[string][]MockSpec)
	m.calls = nil
	m.processes = nil
}

// MockProcess is a scripted Process.
type MockProcess struct {
	cmd  *Command
	spec MockSpec
	pid  int

	stderrR *io.PipeReader
	stderrW *io.PipeWriter
	out     io.Writer

	term     chan struct{}
	termOnce sync.Once
	done     chan struct{}

	mu         sync.Mutex
	status     ExitStatus
	exited     bool
	terminated int
}

func newMockProcess(c *Command, spec MockSpec, pid int) *MockProcess {
	p := &MockProcess{
		cmd:  c,
		spec: spec,
		pid:  pid,
		term: make(chan struct{}),
		done: make(chan struct{}),
		out:  c.Stderr,
	}
	if c.CaptureStderr {
		p.stderrR, p.stderrW = io.Pipe()
		p.out = p.stderrW
	}
	return p
}

// sleep returns false when the process was terminated while sleeping.
func (p *MockProcess) sleep(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-p.term:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-p.term:
		return false
	}
}

func (p *MockProcess) closeStderr() {
	if p.stderrW != nil {
		p.stderrW.Close()
	}
}

func (p *MockProcess) finish(code int, err error) {
	p.closeStderr()
	p.mu.Lock()
	p.status = ExitStatus{Code: code, Err: err}
	p.exited = true
	p.mu.Unlock()
	close(p.done)
}

var errMockKilled = errors.New("killed by signal: terminated")

func (p *MockProcess) run() {
	for _, line := range p.spec.Lines {
		if !p.sleep(p.spec.LineDelay) {
			p.finish(-1, errMockKilled)
			return
		}
		if p.out != nil {
			// Terminate closes the pipe, which unblocks this write.
			p.out.Write([]byte(line + "\n"))
		}
	}

	if !p.spec.HoldStderr {
		p.closeStderr()
	}

	if p.spec.Hang {
		<-p.term
		p.finish(-1, errMockKilled)
		return
	}

	if !p.sleep(p.spec.ExitDelay) {
		p.finish(-1, errMockKilled)
		return
	}
	p.finish(p.spec.ExitCode, nil)
}

// Command returns the Command the process was started with.
func (p *MockProcess) Command() *Command {
	return p.cmd
}

func (p *MockProcess) Pid() int {
	return p.pid
}

func (p *MockProcess) Stderr() io.Reader {
	if p.stderrR == nil {
		return nil
	}
	return p.stderrR
}

func (p *MockProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *MockProcess) Wait(timeout time.Duration) (ExitStatus, bool) {
	if timeout <= 0 {
		<-p.done
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-p.done:
		case <-timer.C:
			return ExitStatus{}, false
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, true
}

func (p *MockProcess) Terminate() TerminateResult {
	p.mu.Lock()
	p.terminated++
	exited := p.exited
	p.mu.Unlock()

	if exited {
		return AlreadyExited
	}

	p.termOnce.Do(func() {
		close(p.term)
		if p.stderrW != nil {
			p.stderrW.CloseWithError(io.ErrClosedPipe)
		}
	})
	<-p.done
	return Signaled
}

// TerminateCalls returns how many times Terminate was called.
func (p *MockProcess) TerminateCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}
