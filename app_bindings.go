package main

import (
	"errors"
	"log/slog"

	"hyperimswitch/internal/autostart"
	"hyperimswitch/internal/binding"
	"hyperimswitch/internal/config"
	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/switcher"
)

// resolveBindings converts settings into engine bindings. Legacy slot ids are
// renumbered and missing layout handles are filled from the catalog;
// repaired reports either. err carries entries that could not be parsed.
func resolveBindings(s config.Settings, catalog *profile.Catalog) (bs []binding.HotkeyBinding, repaired bool, err error) {
	bs, err = s.Bindings()
	if err != nil {
		slog.Warn("[WARN-CONFIG] some hotkey entries are invalid", "error", err)
	}
	bs, fixed := binding.FixSlotIDs(bs)
	if fixed {
		slog.Info("[DEBUG-CONFIG] renumbered legacy slot ids", "bindings", len(bs))
	}
	bs, filled := binding.BackfillLayoutHandles(bs, catalog)
	if filled {
		slog.Debug("[DEBUG-CONFIG] filled keyboard layout handles from catalog")
	}
	return bs, fixed || filled, err
}

// applySettings makes s the active settings: engine table, registered
// hotkeys, diagnostics flags, log level and autostart.
func (a *App) applySettings(s config.Settings, source string) {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	bs, repaired, err := resolveBindings(s, a.enumerator.Catalog())
	if repaired {
		// A file with unparseable entries is left for the user to fix.
		if err == nil {
			s.SetBindings(bs)
			a.persist(s)
		}
	}
	a.setSettingsSnapshot(s, bs)

	if a.opts.Logs != nil {
		level := s.LogLevel
		if a.opts.LogLevel != "" {
			level = a.opts.LogLevel
		}
		a.opts.Logs.SetLevel(level)
	}
	a.applyDiagnostics(s.SwitchDiagnostics)
	a.engine.UpdateBindings(bs)
	a.loop.ApplyBindings(bs)
	a.syncAutoStart(s.AutoStart)

	valid := 0
	for _, b := range bs {
		if b.IsValid() {
			valid++
		}
	}
	slog.Info("[DEBUG-CONFIG] settings applied", "source", source, "bindings", len(bs), "withHotkey", valid)
}

// applyDiagnostics hands the configured flags to the engine unless a
// diagnostic run owns them. onDiagnosticsFinished applies the latest
// settings once the run restores its snapshot.
func (a *App) applyDiagnostics(opts switcher.DiagnosticsOptions) {
	a.diagMu.Lock()
	defer a.diagMu.Unlock()
	if a.diagActive {
		slog.Warn("[WARN-CONFIG] diagnostic run in progress, switch_diagnostics applies when it finishes")
		return
	}
	a.engine.SetDiagnostics(opts)
}

// startDiagnostics starts an asynchronous run and marks the engine flags as
// owned by it.
func (a *App) startDiagnostics() bool {
	a.diagMu.Lock()
	defer a.diagMu.Unlock()
	if !a.runner.RunAllScenariosAsync() {
		return false
	}
	a.diagActive = true
	return true
}

func (a *App) onDiagnosticsFinished() {
	a.diagMu.Lock()
	defer a.diagMu.Unlock()
	a.diagActive = false
	a.engine.SetDiagnostics(a.getSettingsSnapshot().SwitchDiagnostics)
}

func (a *App) persist(s config.Settings) {
	a.settingsSaveMu.Lock()
	defer a.settingsSaveMu.Unlock()
	if _, err := config.Save(a.opts.SettingsPath, s); err != nil {
		slog.Warn("[WARN-CONFIG] failed to save repaired settings", "path", a.opts.SettingsPath, "error", err)
	}
}

func (a *App) syncAutoStart(want bool) {
	if a.opts.AutoStart == nil {
		return
	}
	on, err := a.opts.AutoStart.IsEnabled()
	if errors.Is(err, autostart.ErrUnsupported) {
		return
	}
	if err != nil {
		slog.Warn("[WARN-CONFIG] failed to read autostart state", "error", err)
		return
	}
	if on == want {
		return
	}
	if err := a.opts.AutoStart.SetEnabled(want); err != nil {
		slog.Warn("[WARN-CONFIG] failed to update autostart", "enable", want, "error", err)
		return
	}
	slog.Info("[DEBUG-CONFIG] autostart updated", "enabled", want)
}

// onSettingsFileChanged is the watcher callback.
func (a *App) onSettingsFileChanged(s config.Settings) {
	if a.shuttingDown.Load() {
		return
	}
	a.applySettings(s, "watcher")
}

// reloadSettings reads the settings file and applies it.
func (a *App) reloadSettings() (config.Settings, error) {
	s, err := config.Load(a.opts.SettingsPath)
	if err != nil {
		return s, err
	}
	a.applySettings(s, "reload")
	return s, nil
}
