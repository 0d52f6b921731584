package service

import (
	"fmt"
	"os"

	"go-mkimg/log"
)

const defaultStatusLimit = 10

// Status reports recent runs and their attempts from the build database.
//
// With opts.RunID set only that run is returned; otherwise the newest
// opts.Limit runs are. The caller formats the result.
func (s *Service) Status(opts StatusOptions) (*StatusResult, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	result := &StatusResult{
		Logs: log.GetLogSummary(s.cfg),
	}
	if info, err := os.Stat(s.cfg.Database.Path); err == nil {
		result.DatabaseSize = info.Size()
	}

	active, err := s.db.ActiveRun()
	if err != nil {
		return nil, fmt.Errorf("failed to look up active run: %w", err)
	}
	result.Active = active

	if opts.RunID != "" {
		run, err := s.db.GetRun(opts.RunID)
		if err != nil {
			return nil, err
		}
		attempts, err := s.db.ListAttempts(run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list attempts: %w", err)
		}
		result.Runs = []RunStatus{{Run: *run, Attempts: attempts}}
		return result, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultStatusLimit
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	for _, run := range runs {
		attempts, err := s.db.ListAttempts(run.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list attempts of %s: %w", run.ID, err)
		}
		result.Runs = append(result.Runs, RunStatus{Run: run, Attempts: attempts})
	}

	return result, nil
}
