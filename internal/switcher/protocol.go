package switcher

import (
	"log/slog"
	"time"

	"hyperimswitch/internal/binding"
	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/tsf"
	"hyperimswitch/internal/win32"
)

// activation is one run of the protocol for one binding. It lives on the
// worker thread only.
type activation struct {
	e        *Engine
	b        binding.HotkeyBinding
	diag     *DiagnosticsOptions
	log      *slog.Logger
	profiles tsf.Profiles
}

func (e *Engine) activate(b binding.HotkeyBinding, id uint64) {
	diag := e.Diagnostics()
	started := time.Now()
	a := &activation{
		e:    e,
		b:    b,
		diag: &diag,
		log:  slog.With("switch", id, "slot", b.SlotID),
	}
	a.log.Info("[DEBUG-SWITCH] activate profile",
		"name", b.DisplayName, "lang", b.LangID, "type", b.ProfileType,
		"clsid", b.CLSID.String(), "guidProfile", b.ProfileGUID.String())

	a.run()
	a.log.Info("[DEBUG-SWITCH] activation done", "elapsed", time.Since(started))

	if b.ConversionMode == nil {
		return
	}
	mode := *b.ConversionMode
	if !e.waitForLanguage(profile.LangJapanese, a.log) {
		a.log.Info("[DEBUG-SWITCH] skip conversion mode, current language is not Japanese after wait",
			"mode", mode, "wait", e.timing.LanguageWait)
		return
	}
	e.applyConversionMode(mode, a.log)
}

func (a *activation) run() {
	profiles, err := a.e.sub.OpenProfiles()
	if err != nil {
		a.log.Error("[DEBUG-SWITCH] open input processor profiles failed", "error", err)
	} else {
		a.profiles = profiles
		defer profiles.Release()
	}

	if a.diag.LogCurrentLanguageState {
		a.logCurrentLanguage("before")
	}

	switch a.b.ProfileType {
	case profile.TypeInputProcessor:
		if a.profiles == nil {
			a.log.Warn("[DEBUG-SWITCH] input processor activation skipped, subsystem unavailable")
			return
		}
		a.activateInputProcessor()
	default:
		a.activateKeyboardLayout()
	}

	if a.diag.LogCurrentLanguageState {
		a.logCurrentLanguage("after")
	}
}

func (a *activation) activateInputProcessor() {
	b := a.b
	p := a.profiles

	hr := a.step("ActivateLanguageProfile", func() tsf.Status {
		return p.ActivateLanguageProfile(b.CLSID, b.LangID, b.ProfileGUID)
	})
	if hr.OK() || !a.diag.EnableRetryChain {
		return
	}

	enabled, enabledHr := p.IsEnabledLanguageProfile(b.CLSID, b.LangID, b.ProfileGUID)
	a.log.Info("[DEBUG-SWITCH] IsEnabledLanguageProfile", "hr", enabledHr.String(), "enabled", enabled)

	if a.diag.RetryEnableProfile && enabledHr.OK() && !enabled {
		a.step("EnableLanguageProfile(true)", func() tsf.Status {
			return p.EnableLanguageProfile(b.CLSID, b.LangID, b.ProfileGUID, true)
		})
	}
	if a.diag.RetryChangeCurrentLanguage {
		a.step("ChangeCurrentLanguage", func() tsf.Status {
			return p.ChangeCurrentLanguage(b.LangID)
		})
	}
	if a.diag.RetrySetDefaultProfile {
		a.step("SetDefaultLanguageProfile", func() tsf.Status {
			return p.SetDefaultLanguageProfile(b.LangID, b.CLSID, b.ProfileGUID)
		})
	}
	if a.diag.RetryForegroundLangRequest {
		// Approximation: lang<<16|lang is the default layout for most
		// locales, not necessarily the installed one.
		a.requestForegroundLanguage(profile.SynthesizeLayoutHandle(b.LangID))
	}

	a.step("ActivateLanguageProfile(Retry)", func() tsf.Status {
		return p.ActivateLanguageProfile(b.CLSID, b.LangID, b.ProfileGUID)
	})
}

func (a *activation) activateKeyboardLayout() {
	hkl := a.b.EffectiveLayoutHandle()
	a.requestForegroundLanguage(hkl)

	// Some foreground windows ignore the posted request.
	started := time.Now()
	prev, err := a.e.win.ActivateKeyboardLayout(hkl, win32.KLFSetForProcess)
	attrs := []any{"hkl", hkl.String(), "result", prev.String(), "error", err}
	if a.diag.LogStepElapsed {
		attrs = append(attrs, "elapsed", time.Since(started))
	}
	a.log.Info("[DEBUG-SWITCH] ActivateKeyboardLayout(Fallback)", attrs...)
}

func (a *activation) requestForegroundLanguage(hkl profile.LayoutHandle) {
	win := a.e.win
	hwnd := win.ForegroundWindow()
	var tid, pid uint32
	procName := "unknown"
	if hwnd != 0 {
		tid, pid = win.WindowThreadProcessID(hwnd)
		if a.diag.LogForegroundWindowContext && pid != 0 {
			procName = win.ProcessName(pid)
		}
	}

	started := time.Now()
	err := win.PostInputLangChangeRequest(hwnd, hkl)
	attrs := []any{"hwnd", hwnd, "hkl", hkl.String(), "ok", err == nil}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	if a.diag.LogForegroundWindowContext {
		attrs = append(attrs, "tid", tid, "pid", pid, "proc", procName)
	}
	if a.diag.LogStepElapsed {
		attrs = append(attrs, "elapsed", time.Since(started))
	}
	a.log.Info("[DEBUG-SWITCH] WM_INPUTLANGCHANGEREQUEST", attrs...)
}

// step runs one native call and logs its status whatever the outcome.
func (a *activation) step(name string, call func() tsf.Status) tsf.Status {
	started := time.Now()
	hr := call()
	if a.diag.LogStepElapsed {
		a.log.Info("[DEBUG-SWITCH] "+name, "hr", hr.String(), "elapsed", time.Since(started))
	} else {
		a.log.Info("[DEBUG-SWITCH] "+name, "hr", hr.String())
	}
	return hr
}

func (a *activation) logCurrentLanguage(phase string) {
	if a.profiles == nil {
		return
	}
	started := time.Now()
	lang, hr := a.profiles.GetCurrentLanguage()
	attrs := []any{"phase", phase, "hr", hr.String(), "lang", lang}
	if a.diag.LogStepElapsed {
		attrs = append(attrs, "elapsed", time.Since(started))
	}
	a.log.Info("[DEBUG-SWITCH] GetCurrentLanguage", attrs...)
}
