package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-mkimg/config"
)

func newTestLogger(t *testing.T) (*Logger, *config.Config) {
	t.Helper()
	cfg := &config.Config{
		LogsPath: filepath.Join(t.TempDir(), "logs"),
	}

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	t.Cleanup(logger.Close)
	return logger, cfg
}

func readLog(t *testing.T, cfg *config.Config, name string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(cfg.LogsPath, name))
	if err != nil {
		t.Fatalf("Failed to read %s: %v", name, err)
	}
	return string(content)
}

func TestNewLogger(t *testing.T) {
	_, cfg := newTestLogger(t)

	for _, filename := range []string{ResultsLogName, SuccessLogName, FailureLogName, DebugLogName} {
		if _, err := os.Stat(filepath.Join(cfg.LogsPath, filename)); os.IsNotExist(err) {
			t.Errorf("Log file %s was not created", filename)
		}
	}
}

func TestNewLogger_CreateDirError(t *testing.T) {
	tempDir := t.TempDir()
	blocker := filepath.Join(tempDir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	cfg := &config.Config{LogsPath: filepath.Join(blocker, "logs")}
	if _, err := NewLogger(cfg); err == nil {
		t.Error("Expected error when logs path is under a regular file")
	}
}

func TestNewLogger_AppendsUntilReset(t *testing.T) {
	logger, cfg := newTestLogger(t)
	logger.Success("/tmp/a.img", 1)
	logger.Close()

	reopened, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer reopened.Close()
	reopened.Success("/tmp/b.img", 2)

	content := readLog(t, cfg, SuccessLogName)
	if !strings.Contains(content, "/tmp/a.img attempt=1") || !strings.Contains(content, "/tmp/b.img attempt=2") {
		t.Errorf("reopening lost entries:\n%s", content)
	}
	if strings.Count(content, "Successful attempts") != 1 {
		t.Errorf("header written more than once:\n%s", content)
	}

	if err := reopened.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	reopened.Success("/tmp/c.img", 1)

	content = readLog(t, cfg, SuccessLogName)
	if strings.Contains(content, "a.img") || !strings.Contains(content, "/tmp/c.img attempt=1") {
		t.Errorf("Reset did not start a fresh log:\n%s", content)
	}
	if !strings.HasPrefix(content, "Successful attempts") {
		t.Errorf("header missing after Reset:\n%s", content)
	}
}

func TestLogger_Success(t *testing.T) {
	logger, cfg := newTestLogger(t)

	logger.Success("/tmp/disk.img", 2)

	if got := readLog(t, cfg, SuccessLogName); !strings.Contains(got, "/tmp/disk.img attempt=2") {
		t.Errorf("Success log missing entry:\n%s", got)
	}
	if got := readLog(t, cfg, ResultsLogName); !strings.Contains(got, "SUCCESS: /tmp/disk.img (attempt 2)") {
		t.Errorf("Results log missing entry:\n%s", got)
	}
}

func TestLogger_Failed(t *testing.T) {
	logger, cfg := newTestLogger(t)

	logger.Failed("/tmp/disk.img", 1, "timeout")

	if got := readLog(t, cfg, FailureLogName); !strings.Contains(got, "status=timeout") {
		t.Errorf("Failure log missing status:\n%s", got)
	}
	if got := readLog(t, cfg, ResultsLogName); !strings.Contains(got, "FAILED: /tmp/disk.img (attempt 1, timeout)") {
		t.Errorf("Results log missing entry:\n%s", got)
	}
}

func TestLogger_Levels(t *testing.T) {
	logger, cfg := newTestLogger(t)

	logger.Info("info %d", 1)
	logger.Warn("warn %d", 2)
	logger.Error("error %d", 3)
	logger.Debug("debug %d", 4)

	results := readLog(t, cfg, ResultsLogName)
	debug := readLog(t, cfg, DebugLogName)

	tests := []struct {
		want      string
		inResults bool
		inDebug   bool
	}{
		{"INFO: info 1", true, false},
		{"WARN: warn 2", true, true},
		{"ERROR: error 3", true, true},
		{"DEBUG: debug 4", false, true},
	}
	for _, tt := range tests {
		if strings.Contains(results, tt.want) != tt.inResults {
			t.Errorf("results log contains %q = %v, want %v", tt.want, !tt.inResults, tt.inResults)
		}
		if strings.Contains(debug, tt.want) != tt.inDebug {
			t.Errorf("debug log contains %q = %v, want %v", tt.want, !tt.inDebug, tt.inDebug)
		}
	}
}

func TestLogger_WriteSummary(t *testing.T) {
	logger, cfg := newTestLogger(t)

	logger.WriteSummary("/tmp/disk.img", 3, true, 90*time.Second)

	content := readLog(t, cfg, ResultsLogName)
	for _, want := range []string{"BUILD SUMMARY", "Image:             /tmp/disk.img", "Result:            SUCCESS", "Attempts:          3", "1m30s"} {
		if !strings.Contains(content, want) {
			t.Errorf("Summary missing %q:\n%s", want, content)
		}
	}
}

func TestContextLogger_Prefix(t *testing.T) {
	logger, cfg := newTestLogger(t)

	cl := logger.WithContext(LogContext{
		RunID:   "a1b2c3d4-e5f6-7890-abcd-ef1234567890",
		Name:    "/tmp/disk.img",
		Attempt: 2,
	})
	cl.Info("marker seen after %d lines", 3)
	cl.Failed("failed")

	results := readLog(t, cfg, ResultsLogName)
	if !strings.Contains(results, "[a1b2c3d4] [A2] /tmp/disk.img: INFO: marker seen after 3 lines") {
		t.Errorf("Results log missing prefixed entry:\n%s", results)
	}
	if strings.Contains(results, "e5f6") {
		t.Error("RunID was not truncated")
	}
	if got := readLog(t, cfg, FailureLogName); !strings.Contains(got, "/tmp/disk.img attempt=2 status=failed") {
		t.Errorf("Failure log missing entry:\n%s", got)
	}
}

func TestConsoleLogger(t *testing.T) {
	var sb strings.Builder
	c := &ConsoleLogger{Out: &sb}

	c.Info("hello %s", "world")
	c.Debug("hidden")
	c.Verbose = true
	c.Debug("shown")

	got := sb.String()
	if !strings.Contains(got, "[INFO] hello world") {
		t.Errorf("missing info line: %q", got)
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("debug printed while not verbose: %q", got)
	}
	if !strings.Contains(got, "[DEBUG] shown") {
		t.Errorf("missing verbose debug line: %q", got)
	}
}

func TestMultiLogger(t *testing.T) {
	a := NewMemoryLogger()
	b := NewMemoryLogger()
	var logger LibraryLogger = MultiLogger{a, b, NoOpLogger{}}

	logger.Warn("unmount exited %d", 1)

	for i, m := range []*MemoryLogger{a, b} {
		if !m.HasMessageWithLevel("WARN", "unmount exited 1") {
			t.Errorf("logger %d did not receive message: %s", i, m.String())
		}
	}
}
