package service

import (
	"context"
	"io"

	"go-mkimg/log"
	"go-mkimg/mount"
)

// Unmount runs the unmount script with FORCE=1, the same way a failed
// attempt does. It is meant for recovering after mkimg itself was killed
// before it could clean up. The script's output goes to out.
//
// The caller is responsible for confirming the operation with the user.
func (s *Service) Unmount(ctx context.Context, out io.Writer, extra log.LibraryLogger) error {
	env, err := s.loadEnvironment()
	if err != nil {
		return err
	}

	logger := s.libraryLogger(extra)
	if active, err := s.db.ActiveRun(); err == nil && active != nil {
		logger.Warn("run %s for %s is still marked active", active.ID, active.Name)
	}

	return mount.NewScriptUnmounter(s.cfg, s.launcher, env, logger).ForceUnmount(ctx, out)
}
