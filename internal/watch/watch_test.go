package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestReloaderFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("writing initial file: %v", err)
	}

	var fired atomic.Int32
	r, err := NewReloader(path, 20*time.Millisecond, func() {
		fired.Add(1)
	})
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}
	defer r.Stop()

	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o600); err != nil {
		t.Fatalf("rewriting file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fired.Load() == 0 {
		t.Fatal("change callback never fired")
	}
}

func TestReloaderIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("writing initial file: %v", err)
	}

	var fired atomic.Int32
	r, err := NewReloader(path, 20*time.Millisecond, func() {
		fired.Add(1)
	})
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}
	defer r.Stop()

	other := filepath.Join(dir, "other.json")
	if err := os.WriteFile(other, []byte("{}"), 0o600); err != nil {
		t.Fatalf("writing sibling: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Errorf("callback fired %d times for a sibling file", n)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.json")
	r, err := NewReloader(path, 20*time.Millisecond, func() {})
	if err != nil {
		t.Fatalf("NewReloader: %v", err)
	}
	r.Stop()
	r.Stop()
}
