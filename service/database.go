package service

import (
	"fmt"
	"os"

	"go-mkimg/builddb"
)

// ResetDatabase removes the build database, deleting all run history.
// The service's database is reopened empty afterwards.
//
// The caller is responsible for confirming the operation with the user.
func (s *Service) ResetDatabase() (*DatabaseResult, error) {
	result := &DatabaseResult{
		FilesRemoved: make([]string, 0),
	}

	dbPath := s.cfg.Database.Path

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return nil, fmt.Errorf("failed to close database before reset: %w", err)
		}
		s.db = nil
	}

	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove database: %w", err)
	} else if err == nil {
		result.DatabaseRemoved = true
		result.FilesRemoved = append(result.FilesRemoved, dbPath)
		s.logger.Info("Build database removed: %s", dbPath)
	}

	db, err := builddb.OpenDB(dbPath)
	if err != nil {
		return result, fmt.Errorf("failed to reopen database: %w", err)
	}
	s.db = db

	return result, nil
}

// DatabaseExists checks if the build database file exists.
func (s *Service) DatabaseExists() bool {
	_, err := os.Stat(s.cfg.Database.Path)
	return err == nil
}
