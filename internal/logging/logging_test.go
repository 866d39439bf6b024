package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hyperimswitch/internal/testutil"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{in: "debug", want: slog.LevelDebug, wantOK: true},
		{in: " INFO ", want: slog.LevelInfo, wantOK: true},
		{in: "", want: slog.LevelInfo, wantOK: true},
		{in: "warning", want: slog.LevelWarn, wantOK: true},
		{in: "error", want: slog.LevelError, wantOK: true},
		{in: "trace", want: slog.LevelInfo, wantOK: false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestSetupWritesFileAndRing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hyperimswitch.log")
	s, err := Setup(Options{Level: "info", FilePath: path, Stderr: testutil.Ptr(false), RingSize: 10})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	slog.Debug("[DEBUG-SWITCH] hidden")
	slog.Info("[DEBUG-SWITCH] visible", "slot", 3)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	if !strings.Contains(out, "visible") || strings.Contains(out, "hidden") {
		t.Fatalf("log file = %q", out)
	}
	tail := s.Ring.Tail(0)
	if len(tail) != 1 || tail[0].Attrs != "slot=3" {
		t.Fatalf("ring = %+v", tail)
	}
}

func TestSetLevelAppliesToRing(t *testing.T) {
	s, err := Setup(Options{Level: "warn", Stderr: testutil.Ptr(false)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })

	slog.Info("before")
	s.SetLevel("debug")
	slog.Debug("after")

	if s.Level() != slog.LevelDebug {
		t.Fatalf("Level() = %v", s.Level())
	}
	if got := messages(s.Ring.Tail(0)); got != "after" {
		t.Fatalf("ring = %q, want after", got)
	}
}

func TestSetupRotatesLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hyperimswitch.log")
	if err := os.WriteFile(path, make([]byte, maxLogFileBytes+1), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Setup(Options{FilePath: path, Stderr: testutil.Ptr(false)})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path + ".1"); err != nil || info.Size() != maxLogFileBytes+1 {
		t.Fatalf("rotated file: %v, %v", info, err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() != 0 {
		t.Fatalf("fresh file: %v, %v", info, err)
	}
}

func TestCloseRestoresDefault(t *testing.T) {
	before := slog.Default()
	s, err := Setup(Options{Stderr: testutil.Ptr(false)})
	if err != nil {
		t.Fatal(err)
	}
	if slog.Default() == before {
		t.Fatal("Setup() did not install a logger")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if slog.Default() != before {
		t.Fatal("Close() did not restore the previous logger")
	}
	var nilSession *Session
	if err := nilSession.Close(); err != nil {
		t.Fatal(err)
	}
}
