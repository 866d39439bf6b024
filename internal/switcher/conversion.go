package switcher

import (
	"log/slog"
	"time"

	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/win32"
)

// waitForLanguage polls the current language until it equals target or
// Timing.LanguageWait elapses.
func (e *Engine) waitForLanguage(target profile.LangID, log *slog.Logger) bool {
	started := time.Now()
	p, err := e.sub.OpenProfiles()
	if err != nil {
		log.Warn("[DEBUG-SWITCH] WaitForLang open profiles failed", "error", err)
		return false
	}
	defer p.Release()

	for time.Since(started) < e.timing.LanguageWait {
		lang, hr := p.GetCurrentLanguage()
		if hr.OK() && lang == target {
			log.Info("[DEBUG-SWITCH] WaitForLang success", "target", target, "elapsed", time.Since(started))
			return true
		}
		time.Sleep(e.timing.LanguagePoll)
	}

	lang, hr := p.GetCurrentLanguage()
	log.Info("[DEBUG-SWITCH] WaitForLang timeout",
		"target", target, "lastHr", hr.String(), "lastLang", lang, "elapsed", time.Since(started))
	return false
}

// applyConversionMode sets mode through the global compartment and through
// WM_IME_CONTROL on the foreground window, then re-checks at staged delays
// since some controls reset IME state right after a focus or language change.
func (e *Engine) applyConversionMode(mode uint32, log *slog.Logger) {
	if err := e.sub.SetGlobalConversionMode(mode); err != nil {
		log.Warn("[DEBUG-SWITCH] SetConversionMode compartment failed", "mode", mode, "error", err)
	} else {
		log.Info("[DEBUG-SWITCH] SetConversionMode compartment", "mode", mode)
	}

	hwnd := e.win.ForegroundWindow()
	if hwnd == 0 {
		log.Info("[DEBUG-SWITCH] IME_CONTROL skipped, no foreground window")
		return
	}
	imeWnd := e.win.DefaultIMEWindow(hwnd)
	if imeWnd == 0 {
		log.Info("[DEBUG-SWITCH] IME_CONTROL skipped, no default IME window", "hwnd", hwnd)
		return
	}

	openRet, convRet := e.setIMEState(imeWnd, mode)
	// Sentence mode 0 leaves the IME's own preference in place.
	sentRet := e.win.SendIMEControl(imeWnd, win32.IMCSetSentenceMode, 0)
	log.Info("[DEBUG-SWITCH] IME_CONTROL", "open", openRet, "conv", convRet, "sent", sentRet, "mode", mode)

	for i, delay := range e.timing.VerifyDelays {
		time.Sleep(delay)
		openNow := e.win.SendIMEControl(imeWnd, win32.IMCGetOpenStatus, 0)
		convNow := uint32(e.win.SendIMEControl(imeWnd, win32.IMCGetConversionMode, 0))
		needRetry := openNow == 0 || convNow&mode != mode
		log.Info("[DEBUG-SWITCH] IME_CONTROL_CHECK",
			"stage", i, "delay", delay, "open", openNow, "conv", convNow, "needRetry", needRetry)
		if !needRetry {
			return
		}
		e.setIMEState(imeWnd, mode)
		log.Info("[DEBUG-SWITCH] IME_CONTROL_REAPPLY", "stage", i, "mode", mode)
	}
}

func (e *Engine) setIMEState(imeWnd win32.HWND, mode uint32) (openRet, convRet uintptr) {
	openRet = e.win.SendIMEControl(imeWnd, win32.IMCSetOpenStatus, 1)
	convRet = e.win.SendIMEControl(imeWnd, win32.IMCSetConversionMode, uintptr(mode))
	return openRet, convRet
}
