// Package logging builds the process logger: a text handler writing to a log
// file, mirrored to stderr on a console, teed into an in-memory ring.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
)

// maxLogFileBytes triggers a single-generation rotation at open.
const maxLogFileBytes int64 = 4 << 20

// isTerminalFn is a test seam.
var isTerminalFn = func(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Options configure Setup.
type Options struct {
	Level string
	// FilePath is the log file; empty logs to stderr only.
	FilePath string
	// Stderr mirrors output to stderr. When nil, stderr is used only if it
	// is a terminal.
	Stderr   *bool
	RingSize int
}

// Session owns the installed logger.
type Session struct {
	Ring  *Ring
	level *slog.LevelVar
	file  *os.File
	prev  *slog.Logger
}

// ParseLevel maps debug/info/warn/error (case-insensitive) to a level.
// Unknown values map to info with ok=false.
func ParseLevel(raw string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// Setup installs a new default logger. Close restores the previous one.
func Setup(opts Options) (*Session, error) {
	s := &Session{
		Ring:  NewRing(opts.RingSize),
		level: new(slog.LevelVar),
		prev:  slog.Default(),
	}
	s.SetLevel(opts.Level)

	var writers []io.Writer
	if opts.FilePath != "" {
		f, err := openLogFile(opts.FilePath)
		if err != nil {
			return nil, err
		}
		s.file = f
		writers = append(writers, f)
	}
	mirror := opts.FilePath == ""
	if opts.Stderr != nil {
		mirror = *opts.Stderr
	} else if !mirror {
		mirror = isTerminalFn(os.Stderr)
	}
	if mirror {
		writers = append(writers, os.Stderr)
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	base := slog.NewTextHandler(out, &slog.HandlerOptions{Level: s.level})
	// The ring captures at the file level so the logs command matches the file.
	slog.SetDefault(slog.New(NewTeeHandler(base, s.level, s.Ring.Add)))
	return s, nil
}

// SetLevel changes the level at runtime. Unknown names fall back to info.
func (s *Session) SetLevel(raw string) {
	level, ok := ParseLevel(raw)
	if !ok {
		slog.Warn("[WARN-CONFIG] unknown log level, using info", "value", raw)
	}
	s.level.Set(level)
}

// Level reports the current level.
func (s *Session) Level() slog.Level { return s.level.Level() }

// Close restores the previous default logger and closes the log file.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	slog.SetDefault(s.prev)
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if info, err := os.Stat(path); err == nil && info.Size() > maxLogFileBytes {
		_ = os.Remove(path + ".1")
		if err := os.Rename(path, path+".1"); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("rotate log file: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
