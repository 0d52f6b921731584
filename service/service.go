// Package service provides the operations behind the mkimg commands.
//
// The service layer sits between the CLI (cmd/) and the library packages
// (supervisor, build, builddb, stats):
//
//   - CLI layer (cmd/): flags, prompts, output formatting, signal handling
//   - Service layer (service/): wires configuration, logging, the build
//     database and metrics around the library packages
//   - Library layer: process supervision and the retry loop, no terminal I/O
//
// All service methods log through the LibraryLogger interface and never
// prompt, so they run the same under the CLI and in tests.
package service

import (
	"fmt"

	"go-mkimg/builddb"
	"go-mkimg/config"
	"go-mkimg/log"
	"go-mkimg/process"
	"go-mkimg/stats"
)

// Service coordinates a build and the resources it shares with the other
// commands: the summary logs, the build database and the metrics collector.
//
// Usage:
//
//	cfg, _ := config.LoadConfig("", "default")
//	svc, err := service.NewService(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	result, err := svc.Build(ctx, service.BuildOptions{
//	    Name:    "/srv/images/disk.img",
//	    Content: "/srv/content",
//	})
type Service struct {
	cfg      *config.Config
	logger   *log.Logger
	db       *builddb.DB
	stats    *stats.Collector
	launcher process.Launcher
}

// NewService opens the summary logs and the build database, and creates
// the process launcher named by cfg.ProcessBackend. The caller must Close
// the service.
func NewService(cfg *config.Config) (*Service, error) {
	launcher, err := process.New(cfg.ProcessBackend, cfg)
	if err != nil {
		return nil, err
	}

	logger, err := log.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := builddb.OpenDB(cfg.Database.Path)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to open build database: %w", err)
	}

	return &Service{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		stats:    stats.NewCollector(),
		launcher: launcher,
	}, nil
}

// Close releases the database and the log files.
func (s *Service) Close() error {
	var errs []error

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}

	if s.logger != nil {
		s.logger.Close()
	}

	if len(errs) > 0 {
		return fmt.Errorf("service close errors: %v", errs)
	}

	return nil
}

// Config returns the service's configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Logger returns the service's summary logger.
func (s *Service) Logger() *log.Logger {
	return s.logger
}

// Database returns the service's build database.
func (s *Service) Database() *builddb.DB {
	return s.db
}

// Stats returns the metrics collector fed by every build.
func (s *Service) Stats() *stats.Collector {
	return s.stats
}

// Launcher returns the process launcher used for every script.
func (s *Service) Launcher() process.Launcher {
	return s.launcher
}

// SetLauncher replaces the process launcher, typically with a
// *process.MockLauncher in tests.
func (s *Service) SetLauncher(l process.Launcher) {
	s.launcher = l
}
