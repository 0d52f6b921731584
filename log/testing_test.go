package log

import (
	"strings"
	"sync"
	"testing"
)

func TestMemoryLogger_ImplementsLibraryLogger(t *testing.T) {
	var _ LibraryLogger = NewMemoryLogger()
}

func TestMemoryLogger_CaptureMessages(t *testing.T) {
	m := NewMemoryLogger()

	m.Info("spawned %s", "builder")
	m.Debug("line %d", 3)
	m.Warn("unmount failed")
	m.Error("attempt %d failed", 1)

	msgs := m.GetMessages()
	if len(msgs) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(msgs))
	}

	want := []LogMessage{
		{"INFO", "spawned builder"},
		{"DEBUG", "line 3"},
		{"WARN", "unmount failed"},
		{"ERROR", "attempt 1 failed"},
	}
	for i, w := range want {
		if msgs[i] != w {
			t.Errorf("message %d = %+v, want %+v", i, msgs[i], w)
		}
	}

	if m.CountByLevel("WARN") != 1 {
		t.Errorf("CountByLevel(WARN) = %d, want 1", m.CountByLevel("WARN"))
	}
}

func TestMemoryLogger_HasMessageWithLevel(t *testing.T) {
	m := NewMemoryLogger()
	m.Warn("forced unmount")

	if !m.HasMessage("forced") {
		t.Error("HasMessage should match any level")
	}
	if !m.HasMessageWithLevel("WARN", "unmount") {
		t.Error("HasMessageWithLevel(WARN) should match")
	}
	if m.HasMessageWithLevel("ERROR", "unmount") {
		t.Error("HasMessageWithLevel(ERROR) should not match")
	}
}

func TestMemoryLogger_Clear(t *testing.T) {
	m := NewMemoryLogger()
	m.Info("one")
	m.Clear()

	if m.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", m.Count())
	}
	if m.String() != "" {
		t.Errorf("String() after Clear = %q, want empty", m.String())
	}
}

func TestMemoryLogger_Concurrent(t *testing.T) {
	m := NewMemoryLogger()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.Info("goroutine %d message %d", id, j)
			}
		}(i)
	}
	wg.Wait()

	if m.Count() != 500 {
		t.Errorf("Count() = %d, want 500", m.Count())
	}
}

func TestMemoryLogger_String(t *testing.T) {
	m := NewMemoryLogger()
	m.Info("first")
	m.Error("second")

	got := m.String()
	if !strings.Contains(got, "1. [INFO] first") || !strings.Contains(got, "2. [ERROR] second") {
		t.Errorf("String() = %q", got)
	}
}
