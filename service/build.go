package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/joho/godotenv"

	"go-mkimg/build"
	"go-mkimg/builddb"
	"go-mkimg/image"
	"go-mkimg/log"
	"go-mkimg/process"
	"go-mkimg/supervisor"
	"go-mkimg/util"
)

// ErrPrepareFailed is returned when the prepare command exits non-zero.
type ErrPrepareFailed struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *ErrPrepareFailed) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prepare command %q failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("prepare command %q exited with code %d", e.Command, e.ExitCode)
}

func (e *ErrPrepareFailed) Unwrap() error {
	return e.Err
}

// Build builds an image, retrying failed attempts.
//
// The build process includes:
//  1. Creating the scratch directory, validating the arguments and
//     resetting the summary logs
//  2. Running the prepare command, if configured; failure aborts the build
//  3. Loading extra script environment from the environment file
//  4. Running attempts under a supervisor until one succeeds or the retry
//     budget is spent, recording each one in the build database, the
//     summary logs and the metrics collector
//  5. Exporting metrics to the configured textfile
//
// A failed build is not an error: check BuildResult.Success. An error is
// returned for invalid arguments, a failed prepare step, or cancellation of
// ctx, in which case the partial result is returned as well.
func (s *Service) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	retry := opts.Retry
	if retry == 0 {
		retry = s.cfg.Retry
	}
	if retry < 1 {
		return nil, fmt.Errorf("%w: got %d", build.ErrInvalidRetry, retry)
	}

	if opts.TempDir != "" {
		if err := util.EnsureDir(opts.TempDir); err != nil {
			return nil, fmt.Errorf("failed to create temporary directory: %w", err)
		}
	}
	if err := image.NewBuildConfig(opts.Name, opts.Content, opts.Size, opts.TempDir).Validate(); err != nil {
		return nil, err
	}

	logger := s.libraryLogger(opts.Logger)
	result := &BuildResult{Name: opts.Name}

	// The summary logs describe the latest build only.
	if err := s.logger.Reset(); err != nil {
		logger.Warn("%v", err)
	}

	if s.cfg.PrepareCommand != "" {
		if err := s.prepare(ctx, opts.Output, logger); err != nil {
			return nil, err
		}
		result.Prepared = true
	}

	env, err := s.loadEnvironment()
	if err != nil {
		return nil, err
	}

	recorder := builddb.NewRecorder(s.db, logger)
	driver := &build.Driver{
		Runner: supervisor.New(s.cfg, s.launcher, env, logger),
		NewConfig: func() image.BuildConfig {
			return image.NewBuildConfig(opts.Name, opts.Content, opts.Size, opts.TempDir)
		},
		Observers: append([]build.Observer{recorder, s.stats, &resultsObserver{logger: s.logger}}, opts.Observers...),
		Logger:    logger,
	}

	res, err := driver.Build(ctx, retry)
	result.Result = res

	if path := s.cfg.MetricsTextfile; path != "" {
		if werr := s.stats.WriteTextfile(path); werr != nil {
			logger.Warn("metrics: %v", werr)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return result, fmt.Errorf("build interrupted: %w", err)
		}
		return result, err
	}
	return result, nil
}

// libraryLogger combines the summary logger with an optional caller logger.
func (s *Service) libraryLogger(extra log.LibraryLogger) log.LibraryLogger {
	if extra == nil {
		return s.logger
	}
	return log.MultiLogger{s.logger, extra}
}

// prepare runs the prepare command in the prepare directory and waits for
// it. Cancelling ctx terminates it.
func (s *Service) prepare(ctx context.Context, out io.Writer, logger log.LibraryLogger) error {
	path, args := s.cfg.ResolveCommand(s.cfg.PrepareCommand)
	cmd := &process.Command{
		Path:       path,
		Args:       args,
		Dir:        s.cfg.PrepareDir,
		InheritEnv: true,
		Stdout:     out,
		Stderr:     out,
	}

	logger.Info("Preparing: %s (in %s)", cmd, cmd.Dir)

	p, err := s.launcher.Start(ctx, cmd)
	if err != nil {
		return &ErrPrepareFailed{Command: cmd.String(), ExitCode: -1, Err: err}
	}

	for {
		status, exited := p.Wait(time.Second)
		if exited {
			if !status.Success() {
				return &ErrPrepareFailed{Command: cmd.String(), ExitCode: status.Code}
			}
			return nil
		}
		if ctx.Err() != nil {
			p.Terminate()
			return &ErrPrepareFailed{Command: cmd.String(), ExitCode: -1, Err: ctx.Err()}
		}
	}
}

// loadEnvironment reads the configured environment file. The variables are
// passed to every script, below the per-attempt keys.
func (s *Service) loadEnvironment() (map[string]string, error) {
	if s.cfg.EnvironmentFile == "" {
		return nil, nil
	}
	env, err := godotenv.Read(s.cfg.EnvironmentFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment file: %w", err)
	}
	return env, nil
}

// resultsObserver writes attempt results and the run summary to the
// summary logs.
type resultsObserver struct {
	logger *log.Logger
}

func (o *resultsObserver) RunStarted(run build.RunInfo) {
	o.logger.Info("Build %s: %s from %s, up to %d attempts", run.ID, run.Name, run.ContentSource, run.Retry)
}

func (o *resultsObserver) AttemptStarted(run build.RunInfo, attempt int, cfg image.BuildConfig) {
	o.logger.WithContext(log.LogContext{RunID: run.ID, Name: run.Name, Attempt: attempt}).
		Debug("starting with SIZE=%s TMP_DIR=%s", cfg.SizeString(), cfg.TempDir)
}

func (o *resultsObserver) AttemptFinished(run build.RunInfo, out supervisor.Outcome) {
	cl := o.logger.WithContext(log.LogContext{RunID: run.ID, Name: run.Name, Attempt: out.Attempt})
	if out.Success() {
		cl.Success()
		return
	}

	cl.Failed(out.Status())
	cl.Info("%s", out.Reason())
	if out.UnmountErr != nil {
		cl.Warn("forced unmount failed: %v", out.UnmountErr)
	}
}

func (o *resultsObserver) RunFinished(run build.RunInfo, res *build.Result) {
	o.logger.WriteSummary(run.Name, len(res.Attempts), res.Success, res.Duration)
}
