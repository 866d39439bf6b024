package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"hyperimswitch/internal/workerutil"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads the settings file after it changes on disk. Saves replace
// the file by rename, so the parent directory is watched.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(Settings)

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher returns a watcher for path. onChange runs on the watcher
// goroutine with each successfully parsed reload.
func NewWatcher(path string, debounce time.Duration, onChange func(Settings)) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{path: path, debounce: debounce, onChange: onChange}
}

// Start begins watching. It fails if the directory cannot be watched.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	w.fsw = fsw

	ctx, w.cancel = context.WithCancel(ctx)
	workerutil.RunWithPanicRecovery(ctx, "config-watcher", &w.wg, w.loop, workerutil.RecoveryOptions{
		IsShutdown: func() bool { return ctx.Err() != nil },
	})
	slog.Debug("[DEBUG-CONFIG] watching settings file", "path", w.path)
	return nil
}

// Close stops the watcher and waits for a reload in progress.
func (w *Watcher) Close() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	target := filepath.Clean(w.path)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("[WARN-CONFIG] settings watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err != nil {
		slog.Warn("[WARN-CONFIG] settings reload failed, keeping current settings", "path", w.path, "error", err)
		return
	}
	slog.Info("[DEBUG-CONFIG] settings file changed, reloading", "path", w.path, "hotkeys", len(s.Hotkeys))
	if w.onChange != nil {
		w.onChange(s)
	}
}
