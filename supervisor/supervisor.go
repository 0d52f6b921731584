// Package supervisor runs a single image build attempt: it starts the
// builder, watches its diagnostic stream for the readiness marker, starts
// the populator once the image is writable, and always finishes with a
// shutdown sequence that leaves nothing running and nothing mounted.
package supervisor

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go-mkimg/config"
	"go-mkimg/image"
	"go-mkimg/log"
	"go-mkimg/mount"
	"go-mkimg/process"
	"go-mkimg/watcher"
)

// Timeouts bounds each waiting phase of an attempt.
type Timeouts struct {
	// Marker is the inactivity deadline while waiting for the readiness
	// marker. 0 waits indefinitely.
	Marker time.Duration

	// Drain is the inactivity deadline while following the builder's stream
	// after the marker.
	Drain time.Duration

	// PopulatorGrace is how long a running populator may take to finish
	// once the stream has ended.
	PopulatorGrace time.Duration

	// BuilderReap is how long the builder may take to exit once the stream
	// has ended.
	BuilderReap time.Duration
}

// TimeoutsFromConfig copies the attempt timeouts out of cfg.
func TimeoutsFromConfig(cfg *config.Config) Timeouts {
	return Timeouts{
		Marker:         cfg.Timeouts.Marker,
		Drain:          cfg.Timeouts.Drain,
		PopulatorGrace: cfg.Timeouts.PopulatorGrace,
		BuilderReap:    cfg.Timeouts.BuilderReap,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Drain <= 0 {
		t.Drain = config.DefaultDrainTimeout
	}
	if t.PopulatorGrace <= 0 {
		t.PopulatorGrace = config.DefaultPopulatorGrace
	}
	if t.BuilderReap <= 0 {
		t.BuilderReap = config.DefaultBuilderReapTimeout
	}
	return t
}

// Scripts locates the builder and the populator.
type Scripts struct {
	BuilderPath   string
	BuilderArgs   []string
	PopulatorPath string
	PopulatorArgs []string

	// Dir is the scripts directory, the populator's working directory.
	Dir string

	// Env is extra environment for both scripts, below the per-attempt keys.
	Env map[string]string
}

// ScriptsFromConfig resolves the configured commands against the scripts
// directory.
func ScriptsFromConfig(cfg *config.Config, env map[string]string) Scripts {
	s := Scripts{Dir: cfg.ScriptsPath, Env: env}
	s.BuilderPath, s.BuilderArgs = cfg.ResolveCommand(cfg.BuilderCommand)
	s.PopulatorPath, s.PopulatorArgs = cfg.ResolveCommand(cfg.PopulatorCommand)
	return s
}

// AttemptLog receives the raw output of an attempt. *log.AttemptLogger
// implements it.
type AttemptLog interface {
	io.Writer
	WriteHeader(env map[string]string)
	WritePhase(phase string)
	WriteCommand(cmd string)
	WriteFooter(status string, duration time.Duration)
	Close()
}

// Supervisor runs attempts. It numbers the attempts it runs starting at 1,
// so use one Supervisor per build. Attempts must not run concurrently: they
// share the mount point the scripts manage.
type Supervisor struct {
	Launcher  process.Launcher
	Scripts   Scripts
	Timeouts  Timeouts
	Unmounter mount.Unmounter
	Logger    log.LibraryLogger

	// Marker is the readiness substring; empty means
	// config.DefaultReadinessMarker.
	Marker string

	// OpenLog, when set, opens the output log of an attempt.
	OpenLog func(attempt int, cfg image.BuildConfig) AttemptLog

	attempts atomic.Int64
}

// New creates a Supervisor wired from configuration.
func New(cfg *config.Config, launcher process.Launcher, env map[string]string, logger log.LibraryLogger) *Supervisor {
	return &Supervisor{
		Launcher:  launcher,
		Scripts:   ScriptsFromConfig(cfg, env),
		Timeouts:  TimeoutsFromConfig(cfg),
		Unmounter: mount.NewScriptUnmounter(cfg, launcher, env, logger),
		Logger:    logger,
		Marker:    cfg.ReadinessMarker,
		OpenLog: func(attempt int, bc image.BuildConfig) AttemptLog {
			return log.NewAttemptLogger(cfg, bc.Name, attempt)
		},
	}
}

// attempt holds the processes of one RunAttempt call.
type attempt struct {
	builder   process.Process
	populator process.Process
	watcher   *watcher.Watcher
}

// RunAttempt runs one attempt for cfg and returns its outcome. It never
// panics on process failures and never returns before the shutdown
// sequence has run, whatever happened before it, including cancellation
// of ctx.
func (s *Supervisor) RunAttempt(ctx context.Context, cfg image.BuildConfig) (out Outcome) {
	logger := s.logger()
	timeouts := s.Timeouts.withDefaults()

	out = Outcome{
		AttemptID: uuid.NewString(),
		Attempt:   int(s.attempts.Add(1)),
		Started:   time.Now(),
	}

	alog := s.openLog(out.Attempt, cfg)
	defer alog.Close()

	env := cfg.Environ()
	alog.WriteHeader(env)

	a := &attempt{}
	defer func() {
		// Shutdown must finish even if the caller gave up.
		s.shutdown(context.WithoutCancel(ctx), a, &out, alog, timeouts)
		out.Duration = time.Since(out.Started)
		alog.WriteFooter(out.Status(), out.Duration)
		logger.Info("attempt %d finished: %s in %s", out.Attempt, out.Status(), out.Duration.Round(time.Millisecond))
	}()

	builderCmd := &process.Command{
		Path:          s.Scripts.BuilderPath,
		Args:          s.Scripts.BuilderArgs,
		Env:           mergeEnv(s.Scripts.Env, env),
		InheritEnv:    true,
		Stdout:        alog,
		CaptureStderr: true,
	}

	alog.WritePhase("builder")
	alog.WriteCommand(builderCmd.String())
	logger.Info("attempt %d: building %s", out.Attempt, cfg)

	builder, err := s.Launcher.Start(ctx, builderCmd)
	if err != nil {
		out.SpawnErr = err
		logger.Error("attempt %d: %v", out.Attempt, err)
		return
	}
	a.builder = builder
	a.watcher = watcher.New(builder.Stderr(), watcher.WithTee(alog))
	logger.Debug("builder started, pid %d", builder.Pid())

	switch a.watcher.ScanForMarker(ctx, s.marker(), timeouts.Marker) {
	case watcher.MarkerFound:
		out.MarkerSeen = true
		logger.Info("attempt %d: image ready after %d lines", out.Attempt, a.watcher.Lines())
		s.startPopulator(ctx, a, &out, alog)
	case watcher.StreamClosed:
		logger.Warn("attempt %d: builder output ended without readiness marker", out.Attempt)
	case watcher.TimedOut:
		out.TimedOut = true
		logger.Error("attempt %d: no builder output for %s while waiting for readiness", out.Attempt, timeouts.Marker)
		return
	case watcher.Canceled:
		out.Canceled = true
		return
	}

	switch a.watcher.Drain(ctx, timeouts.Drain) {
	case watcher.TimedOut:
		out.TimedOut = true
		logger.Error("attempt %d: no builder output for %s", out.Attempt, timeouts.Drain)
	case watcher.Canceled:
		out.Canceled = true
	}

	return
}

func (s *Supervisor) startPopulator(ctx context.Context, a *attempt, out *Outcome, alog AttemptLog) {
	cmd := &process.Command{
		Path: s.Scripts.PopulatorPath,
		Args: s.Scripts.PopulatorArgs,
		Dir:  s.Scripts.Dir,
		Env: mergeEnv(s.Scripts.Env, map[string]string{
			"UNMOUNT":   "1",
			"RM_FAILED": "1",
		}),
		InheritEnv: true,
		Stdout:     alog,
		Stderr:     alog,
	}

	alog.WritePhase("populator")
	alog.WriteCommand(cmd.String())

	p, err := s.Launcher.Start(ctx, cmd)
	if err != nil {
		out.SpawnErr = err
		s.logger().Error("attempt %d: %v", out.Attempt, err)
		return
	}

	a.populator = p
	out.PopulatorStarted = true
	s.logger().Debug("populator started, pid %d", p.Pid())
}

// shutdown stops and reaps both processes and unmounts the image when
// anything went wrong. After a cancellation nobody is waited for beyond
// what Terminate needs.
func (s *Supervisor) shutdown(ctx context.Context, a *attempt, out *Outcome, alog AttemptLog, timeouts Timeouts) {
	logger := s.logger()
	alog.WritePhase("shutdown")

	if out.Canceled {
		timeouts.PopulatorGrace = 0
		timeouts.BuilderReap = 0
	}

	if a.watcher != nil {
		// Keep the builder's stderr flowing while we wait for it.
		a.watcher.Discard()
	}

	if a.populator != nil {
		status, exited := waitFor(a.populator, timeouts.PopulatorGrace)
		if !exited {
			if a.populator.Terminate() == process.Signaled {
				out.ForcedStop = true
				logger.Warn("attempt %d: populator still running after %s, terminated", out.Attempt, timeouts.PopulatorGrace)
			}
			status, exited = waitFor(a.populator, 0)
		}
		if exited {
			code := status.Code
			out.PopulatorExitCode = &code
		}
	}

	if a.builder != nil {
		status, exited := waitFor(a.builder, timeouts.BuilderReap)
		if !exited {
			if a.builder.Terminate() == process.Signaled {
				out.ForcedStop = true
				logger.Warn("attempt %d: builder still running after %s, terminated", out.Attempt, timeouts.BuilderReap)
			}
			status, exited = waitFor(a.builder, 0)
		}
		if exited {
			code := status.Code
			out.BuilderExitCode = &code
		}
	}

	if a.watcher != nil {
		out.Lines = a.watcher.Lines()
		a.watcher.Close()
	}

	if !needsUnmount(out) {
		return
	}

	if s.Unmounter == nil {
		logger.Warn("attempt %d: forced unmount needed but no unmounter configured", out.Attempt)
		return
	}

	alog.WritePhase("unmount")
	logger.Info("attempt %d: forcing unmount", out.Attempt)
	out.ForcedUnmountPerformed = true
	if err := s.Unmounter.ForceUnmount(ctx, alog); err != nil {
		out.UnmountErr = err
		logger.Warn("attempt %d: %v", out.Attempt, err)
	}
}

// needsUnmount: any forced stop, or any exit code that is non-zero or
// unknown.
func needsUnmount(out *Outcome) bool {
	return out.ForcedStop || !isZero(out.BuilderExitCode) || !isZero(out.PopulatorExitCode)
}

// waitFor waits up to d for p; d <= 0 only checks whether p has exited.
func waitFor(p process.Process, d time.Duration) (process.ExitStatus, bool) {
	if d <= 0 {
		if !p.Exited() {
			return process.ExitStatus{}, false
		}
		return p.Wait(0)
	}
	return p.Wait(d)
}

func mergeEnv(layers ...map[string]string) map[string]string {
	env := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			env[k] = v
		}
	}
	return env
}

func (s *Supervisor) marker() string {
	if s.Marker == "" {
		return config.DefaultReadinessMarker
	}
	return s.Marker
}

func (s *Supervisor) logger() log.LibraryLogger {
	if s.Logger == nil {
		return log.NoOpLogger{}
	}
	return s.Logger
}

func (s *Supervisor) openLog(attempt int, cfg image.BuildConfig) AttemptLog {
	if s.OpenLog == nil {
		return discardLog{}
	}
	if l := s.OpenLog(attempt, cfg); l != nil {
		return l
	}
	return discardLog{}
}

type discardLog struct{}

func (discardLog) Write(p []byte) (int, error)       { return len(p), nil }
func (discardLog) WriteHeader(map[string]string)     {}
func (discardLog) WritePhase(string)                 {}
func (discardLog) WriteCommand(string)               {}
func (discardLog) WriteFooter(string, time.Duration) {}
func (discardLog) Close()                            {}
