package main

import (
	"hyperimswitch/internal/binding"
	"hyperimswitch/internal/config"
)

// getSettingsSnapshot returns a deep-copied settings value protected by
// settingsMu. All read access to App.settings should go through this helper.
func (a *App) getSettingsSnapshot() config.Settings {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return config.Clone(a.settings)
}

// bindingsSnapshot returns a deep copy of the active bindings.
func (a *App) bindingsSnapshot() []binding.HotkeyBinding {
	a.settingsMu.RLock()
	defer a.settingsMu.RUnlock()
	return binding.CloneAll(a.bindings)
}

// setSettingsSnapshot stores copies of s and the bindings derived from it.
func (a *App) setSettingsSnapshot(s config.Settings, bindings []binding.HotkeyBinding) {
	a.settingsMu.Lock()
	a.settings = config.Clone(s)
	a.bindings = binding.CloneAll(bindings)
	a.settingsMu.Unlock()
}
