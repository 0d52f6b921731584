package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitialize(t *testing.T) {
	cfg := newTestConfig(t)
	for _, name := range []string{"cp.sh", "unmount.sh"} {
		if err := os.WriteFile(filepath.Join(cfg.ScriptsPath, name), []byte("#!/bin/sh\n"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	svc, _ := newTestService(t, cfg)

	result, err := svc.Initialize()
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if !result.DatabaseInitialized {
		t.Error("DatabaseInitialized = false")
	}
	if _, err := os.Stat(filepath.Join(cfg.LogsPath, "attempts")); err != nil {
		t.Errorf("attempt log directory missing: %v", err)
	}
	if len(result.ScriptsFound) != 2 {
		t.Errorf("ScriptsFound = %v, want cp.sh and unmount.sh", result.ScriptsFound)
	}
	// make_disk_image.sh is absent from the scripts dir, so it is left for
	// a PATH lookup rather than reported.
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestInitialize_MissingScripts(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ScriptsPath = filepath.Join(t.TempDir(), "absent")
	svc, _ := newTestService(t, cfg)

	result, err := svc.Initialize()
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	joined := strings.Join(result.Warnings, "\n")
	if !strings.Contains(joined, "Scripts directory does not exist") {
		t.Errorf("missing scripts directory warning: %v", result.Warnings)
	}
	if !strings.Contains(joined, "cp.sh") {
		t.Errorf("missing cp.sh warning: %v", result.Warnings)
	}
}
