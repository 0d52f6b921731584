package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-mkimg/config"
)

func TestAttemptLogFileName(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		want    string
	}{
		{"/tmp/disk.img", 1, "disk.img.attempt-01.log"},
		{"relative/root.img", 10, "root.img.attempt-10.log"},
		{"plain", 3, "plain.attempt-03.log"},
	}
	for _, tt := range tests {
		if got := AttemptLogFileName(tt.name, tt.attempt); got != tt.want {
			t.Errorf("AttemptLogFileName(%q, %d) = %q, want %q", tt.name, tt.attempt, got, tt.want)
		}
	}
}

func TestAttemptLogger_Sections(t *testing.T) {
	cfg := &config.Config{LogsPath: t.TempDir()}

	al := NewAttemptLogger(cfg, "/tmp/disk.img", 2)
	if al.Path() == "" {
		t.Fatal("attempt logger has no file")
	}

	al.WriteHeader(map[string]string{"NAME": "/tmp/disk.img", "RM_FAILED": "1"})
	al.WritePhase("builder")
	al.WriteCommand("make_disk_image.sh")
	fmt.Fprintln(al, "fuse_init: activating writeback")
	al.WriteFooter("success", 2*time.Second)
	al.Close()

	content, err := os.ReadFile(filepath.Join(cfg.LogsPath, AttemptLogDir, "disk.img.attempt-02.log"))
	if err != nil {
		t.Fatalf("read attempt log: %v", err)
	}

	for _, want := range []string{
		"Image: /tmp/disk.img",
		"Attempt: 2",
		"  NAME=/tmp/disk.img",
		"  RM_FAILED=1",
		"Phase: builder",
		">>> make_disk_image.sh",
		"fuse_init: activating writeback",
		"ATTEMPT SUCCESS",
	} {
		if !strings.Contains(string(content), want) {
			t.Errorf("attempt log missing %q", want)
		}
	}
}

func TestAttemptLogger_NilFileIsSilent(t *testing.T) {
	tempDir := t.TempDir()
	blocker := filepath.Join(tempDir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	al := NewAttemptLogger(&config.Config{LogsPath: blocker}, "disk.img", 1)
	if al.Path() != "" {
		t.Errorf("Path() = %q, want empty", al.Path())
	}

	n, err := al.Write([]byte("lost"))
	if n != 4 || err != nil {
		t.Errorf("Write() = %d, %v; want 4, nil", n, err)
	}
	al.WriteHeader(nil)
	al.WritePhase("populator")
	al.WriteFooter("failed", 0)
	al.Close()
}
