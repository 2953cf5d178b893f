package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogbook(t *testing.T) *Logbook {
	t.Helper()
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lb, err := New(filepath.Join(t.TempDir(), "run", "run.log"), WithClock(func() time.Time { return stamp }))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	return lb
}

func TestAppendAndTail(t *testing.T) {
	lb := newTestLogbook(t)
	lb.Info("run started")
	lb.Warn("slow executor")
	lb.Error("phase failed")

	lines := lb.Tail(2)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "WARN") || !strings.Contains(lines[1], "ERROR") {
		t.Fatalf("unexpected tail: %v", lines)
	}
	if !strings.HasPrefix(lines[0], "2026-03-01T12:00:00Z") {
		t.Fatalf("expected injected clock timestamp, got %q", lines[0])
	}
}

func TestDispatchEntries(t *testing.T) {
	lb := newTestLogbook(t)
	lb.Dispatch("scaffold", "scaffold", false)
	lb.Dispatch("scaffold", "scaffold", true)
	lines := lb.Tail(10)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[1], "replayed cached result") {
		t.Fatalf("expected cache entry, got %q", lines[1])
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var lb *Logbook
	lb.Info("ignored")
	lb.Transition("pending", "running")
	if lines := lb.Tail(5); lines != nil {
		t.Fatalf("expected nil tail")
	}
}
