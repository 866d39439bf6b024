package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"hyperimswitch/internal/autostart"
	"hyperimswitch/internal/config"
	"hyperimswitch/internal/diagnostics"
	"hyperimswitch/internal/diagstore"
	"hyperimswitch/internal/dispatch"
	"hyperimswitch/internal/enumerator"
	"hyperimswitch/internal/hotkeys"
	"hyperimswitch/internal/ipc"
	"hyperimswitch/internal/logging"
	"hyperimswitch/internal/switcher"
	"hyperimswitch/internal/tsf"
	"hyperimswitch/internal/win32"
)

const (
	shutdownWaitTimeout = 10 * time.Second
	historyFileName     = "history.db"
)

// defaultAppOptions wires the real desktop.
func defaultAppOptions(logs *logging.Session) appOptions {
	desktop := win32.NewDesktop()
	return appOptions{
		Subsystem: tsf.NewCOM(),
		Windowing: desktop,
		Layouts:   desktop,
		Names:     enumerator.DefaultNames(),
		NewLoop: func(d hotkeys.Dispatcher, s hotkeys.Switcher) hotkeyLoop {
			return hotkeys.NewLoop(hotkeys.NewPlatform(), d, s)
		},
		AutoStart:     autostart.New(),
		Logs:          logs,
		SettingsPath:  config.DefaultPath(),
		HistoryPath:   filepath.Join(config.DataDir(), historyFileName),
		PipeName:      ipc.DefaultPipeName(),
		WatchSettings: true,
		Timing:        switcher.DefaultTiming(),
	}
}

// startup brings components up in dependency order: settings, switch
// engine, catalog, dispatcher, hotkey loop, history, watcher, pipe. Failures
// past settings are logged and the app keeps running with what started.
func (a *App) startup(ctx context.Context) error {
	a.startedAt = time.Now()
	for _, message := range config.ConsumeDefaultPathWarnings() {
		slog.Warn("[WARN-CONFIG] " + message)
	}

	s, err := config.EnsureFile(a.opts.SettingsPath)
	if err != nil {
		// Load returns defaults alongside the error.
		slog.Warn("[WARN-CONFIG] failed to load settings, running with defaults",
			"path", a.opts.SettingsPath, "error", err)
	}

	a.engine = switcher.NewEngine(switcher.Config{
		Subsystem:   a.opts.Subsystem,
		Windowing:   a.opts.Windowing,
		Diagnostics: s.SwitchDiagnostics,
		Timing:      a.opts.Timing,
	})
	a.enumerator = enumerator.New(enumerator.Config{
		Runner:  a.engine,
		Layouts: a.opts.Layouts,
		Names:   a.opts.Names,
		Verbose: s.LogLevel == "debug",
	})
	a.enumerator.Enumerate()

	a.ui = dispatch.New(0)
	a.loop = a.opts.NewLoop(a.ui, a.engine)

	a.openHistory(ctx)
	diagCfg := a.opts.Diagnostics
	diagCfg.Engine = a.engine
	diagCfg.Bindings = a.bindingsSnapshot
	diagCfg.OnFinish = a.onDiagnosticsFinished
	if a.store != nil {
		diagCfg.Recorder = a.store
	}
	a.runner = diagnostics.NewRunner(diagCfg)

	a.applySettings(s, "startup")
	if err := a.loop.Start(); err != nil {
		slog.Error("[DEBUG-HOTKEY] hotkey loop failed to start, hotkeys unavailable", "error", err)
	}

	if a.opts.WatchSettings {
		w := config.NewWatcher(a.opts.SettingsPath, 0, a.onSettingsFileChanged)
		if err := w.Start(ctx); err != nil {
			slog.Warn("[WARN-CONFIG] settings watcher unavailable, use reload", "error", err)
		} else {
			a.watcher = w
		}
	}

	if a.opts.PipeName != "" {
		a.pipeServer = ipc.NewPipeServer(a.opts.PipeName, a)
		if err := a.pipeServer.Start(); err != nil {
			slog.Error("[ipc] pipe server failed, control commands unavailable", "error", err)
			a.pipeServer = nil
		} else {
			slog.Info("[ipc] pipe server listening", "pipe", a.pipeServer.PipeName())
		}
	}

	slog.Info("[DEBUG-APP] started", "elapsed", time.Since(a.startedAt))
	return nil
}

func (a *App) openHistory(ctx context.Context) {
	if a.opts.HistoryPath == "" {
		return
	}
	store, err := diagstore.Open(ctx, a.opts.HistoryPath)
	if err != nil {
		slog.Warn("[DEBUG-DIAG] diagnostic history unavailable", "path", a.opts.HistoryPath, "error", err)
		return
	}
	a.store = store
}

// shutdown stops components in reverse start order. Safe to call twice.
func (a *App) shutdown() {
	if !a.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	if a.pipeServer != nil {
		if err := a.pipeServer.Stop(); err != nil {
			slog.Warn("[ipc] pipe server stop failed", "error", err)
		}
	}
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			slog.Warn("[WARN-CONFIG] settings watcher close failed", "error", err)
		}
	}
	// The runner restores the diagnostics flags before it returns.
	if a.runner != nil && !waitWithTimeout(a.runner.Close, shutdownWaitTimeout) {
		slog.Warn("[DEBUG-DIAG] timed out waiting for diagnostic run during shutdown")
	}
	if a.loop != nil {
		if err := a.loop.Stop(); err != nil {
			slog.Warn("[DEBUG-HOTKEY] hotkey loop stop failed", "error", err)
		}
	}
	if a.ui != nil {
		a.ui.Close()
	}
	if a.engine != nil {
		if err := a.engine.Close(); err != nil {
			slog.Warn("[DEBUG-SWITCH] engine close failed", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("[DEBUG-DIAG] history close failed", "error", err)
		}
	}
	slog.Info("[DEBUG-APP] stopped")
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// The waiting goroutine may outlive timeout when waitFn blocks; this is
	// only used on shutdown paths where completion is eventually expected.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
