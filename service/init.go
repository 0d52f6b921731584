package service

import (
	"fmt"
	"path/filepath"

	"go-mkimg/log"
	"go-mkimg/util"
)

// Initialize prepares the mkimg environment: it creates the logs directory
// tree and checks that the configured scripts are in place.
//
// Missing scripts are reported as warnings, not errors, since a site may
// install them after mkimg. The caller displays the result.
func (s *Service) Initialize() (*InitResult, error) {
	result := &InitResult{
		DirsCreated: make([]string, 0),
		Warnings:    make([]string, 0),
	}

	dirs := []struct {
		label string
		path  string
	}{
		{"Logs", s.cfg.LogsPath},
		{"Attempt logs", filepath.Join(s.cfg.LogsPath, log.AttemptLogDir)},
		{"Database", filepath.Dir(s.cfg.Database.Path)},
	}
	for _, d := range dirs {
		if err := util.EnsureDir(d.path); err != nil {
			return nil, fmt.Errorf("failed to create %s directory (%s): %w", d.label, d.path, err)
		}
		result.DirsCreated = append(result.DirsCreated, d.path)
		s.logger.Info("Created %s: %s", d.label, d.path)
	}

	if s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	result.DatabaseInitialized = true

	if !util.DirExists(s.cfg.ScriptsPath) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Scripts directory does not exist: %s", s.cfg.ScriptsPath))
	}

	for _, command := range []string{s.cfg.BuilderCommand, s.cfg.PopulatorCommand, s.cfg.UnmountCommand} {
		path, _ := s.cfg.ResolveCommand(command)
		if !filepath.IsAbs(path) {
			// Left for a PATH lookup at run time.
			continue
		}
		if util.RegularFileExists(path) {
			result.ScriptsFound = append(result.ScriptsFound, path)
		} else {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Script not found: %s", path))
		}
	}

	return result, nil
}
