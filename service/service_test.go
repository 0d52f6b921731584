package service

import (
	"os"
	"path/filepath"
	"testing"

	"go-mkimg/config"
	"go-mkimg/process"
)

// newTestConfig returns a configuration rooted in a temporary directory
// that uses the mock process backend.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	tmpDir := t.TempDir()
	cfg := config.Default()
	cfg.ScriptsPath = filepath.Join(tmpDir, "scripts")
	cfg.LogsPath = filepath.Join(tmpDir, "logs")
	cfg.Database.Path = filepath.Join(tmpDir, "logs", "mkimg.db")
	cfg.ProcessBackend = "mock"
	cfg.Retry = 3

	if err := os.MkdirAll(cfg.ScriptsPath, 0755); err != nil {
		t.Fatalf("Failed to create scripts dir: %v", err)
	}
	return cfg
}

// newTestService creates a Service and returns its mock launcher.
func newTestService(t *testing.T, cfg *config.Config) (*Service, *process.MockLauncher) {
	t.Helper()

	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() failed: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	ml, ok := svc.Launcher().(*process.MockLauncher)
	if !ok {
		t.Fatalf("Launcher is %T, want *process.MockLauncher", svc.Launcher())
	}
	return svc, ml
}

func TestNewService(t *testing.T) {
	cfg := newTestConfig(t)
	svc, _ := newTestService(t, cfg)

	if svc.Config() != cfg {
		t.Error("Service config not set correctly")
	}
	if svc.Logger() == nil {
		t.Error("Service logger is nil")
	}
	if svc.Database() == nil {
		t.Error("Service database is nil")
	}
	if svc.Stats() == nil {
		t.Error("Service stats collector is nil")
	}
	if _, err := os.Stat(cfg.Database.Path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestNewService_UnknownBackend(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.ProcessBackend = "carrier-pigeon"

	svc, err := NewService(cfg)
	if err == nil {
		svc.Close()
		t.Fatal("Expected error for unknown backend, got nil")
	}
}

func TestNewService_InvalidLogPath(t *testing.T) {
	cfg := newTestConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg.LogsPath = filepath.Join(blocker, "logs")

	svc, err := NewService(cfg)
	if err == nil {
		svc.Close()
		t.Fatal("Expected error for invalid log path, got nil")
	}
}

func TestService_SetLauncher(t *testing.T) {
	svc, _ := newTestService(t, newTestConfig(t))
	ml := process.NewMockLauncher()

	svc.SetLauncher(ml)
	if svc.Launcher() != ml {
		t.Error("SetLauncher did not replace the launcher")
	}
}

func TestService_CloseTwice(t *testing.T) {
	svc, err := NewService(newTestConfig(t))
	if err != nil {
		t.Fatalf("NewService() failed: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
