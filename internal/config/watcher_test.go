package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"hyperimswitch/internal/testutil"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, "auto_start: false\n")

	var mu sync.Mutex
	var got []Settings
	w := NewWatcher(path, 20*time.Millisecond, func(s Settings) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })

	writeFile(t, path, "auto_start: true\nlog_level: warn\n")

	testutil.Eventually(t, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1].AutoStart && got[len(got)-1].LogLevel == "warn"
	}, "watcher did not deliver reloaded settings")
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	writeFile(t, path, "auto_start: false\n")

	var mu sync.Mutex
	calls := 0
	w := NewWatcher(path, 10*time.Millisecond, func(Settings) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	writeFile(t, filepath.Join(dir, "history.db"), "x")
	time.Sleep(150 * time.Millisecond)
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("onChange called %d times for unrelated file", calls)
	}
}

func TestWatcherKeepsSettingsOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, "auto_start: false\n")
	logs := testutil.CaptureLogBuffer(t, 0)

	called := make(chan struct{}, 1)
	w := NewWatcher(path, 10*time.Millisecond, func(Settings) { called <- struct{}{} })
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })

	writeFile(t, path, "hotkeys: [")
	testutil.Eventually(t, 3*time.Second, func() bool {
		return strings.Contains(logs.String(), "settings reload failed")
	}, "expected reload failure warning")
	select {
	case <-called:
		t.Fatal("onChange called with unparseable settings")
	default:
	}
}

func TestWatcherCloseWithoutStart(t *testing.T) {
	if err := NewWatcher("settings.yaml", 0, nil).Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
