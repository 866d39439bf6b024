// Package enumerator builds the profile catalog from the installed input
// processors and keyboard layouts.
package enumerator

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ole/go-ole"

	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/tsf"
)

const defaultTimeout = 5 * time.Second

// ProfileRunner runs fn on the thread that owns the input-method subsystem.
// *switcher.Engine satisfies it.
type ProfileRunner interface {
	WithProfiles(timeout time.Duration, fn func(tsf.Profiles)) error
}

// LayoutSource lists installed keyboard layouts.
type LayoutSource interface {
	KeyboardLayouts() ([]profile.LayoutHandle, error)
}

// LayoutNames resolves human readable layout names.
type LayoutNames interface {
	// LayoutDisplayText looks up the Keyboard Layouts registry entry for klid.
	LayoutDisplayText(klid string) (string, bool)
	// LocaleName maps a language id to a BCP 47 tag such as "en-US".
	LocaleName(lang profile.LangID) (string, bool)
}

// Config wires an Enumerator.
type Config struct {
	Runner  ProfileRunner
	Layouts LayoutSource
	// Names defaults to the registry-backed resolver.
	Names   LayoutNames
	Timeout time.Duration
	// Verbose logs enabled, default and active state per profile.
	Verbose bool
}

// Enumerator publishes the latest catalog with an atomic swap.
type Enumerator struct {
	runner  ProfileRunner
	layouts LayoutSource
	names   LayoutNames
	timeout time.Duration
	verbose bool

	// mu serializes passes so the last published catalog is the newest one.
	mu      sync.Mutex
	current atomic.Pointer[profile.Catalog]
}

func New(cfg Config) *Enumerator {
	e := &Enumerator{
		runner:  cfg.Runner,
		layouts: cfg.Layouts,
		names:   cfg.Names,
		timeout: cfg.Timeout,
		verbose: cfg.Verbose,
	}
	if e.names == nil {
		e.names = DefaultNames()
	}
	if e.timeout <= 0 {
		e.timeout = defaultTimeout
	}
	e.current.Store(profile.NewCatalog(nil))
	return e
}

// LanguageName renders lang as "Japanese (Japan)", falling back to its hex id.
func (e *Enumerator) LanguageName(lang profile.LangID) string {
	if tag, ok := e.names.LocaleName(lang); ok {
		if name, ok := LocaleDisplayName(tag); ok {
			return name
		}
	}
	return lang.String()
}

// Catalog returns the last published catalog.
func (e *Enumerator) Catalog() *profile.Catalog { return e.current.Load() }

// Enumerate rebuilds the catalog and publishes it once complete. Failures
// are logged and yield an empty or partial catalog.
func (e *Enumerator) Enumerate() *profile.Catalog {
	e.mu.Lock()
	defer e.mu.Unlock()
	started := time.Now()
	entries := e.enumerateInputProcessors()
	entries = e.appendKeyboardLayouts(entries)

	catalog := profile.NewCatalog(entries)
	e.current.Store(catalog)

	slog.Info("[DEBUG-ENUM] enumeration complete", "profiles", catalog.Len(), "elapsed", time.Since(started))
	for _, p := range catalog.Profiles() {
		slog.Debug("[DEBUG-ENUM] catalog entry", "profile", p.String())
	}
	return catalog
}

func (e *Enumerator) enumerateInputProcessors() []profile.ImeProfile {
	if e.runner == nil {
		return nil
	}
	// Buffered so a task finishing after a timeout never blocks the worker.
	result := make(chan []profile.ImeProfile, 1)
	err := e.runner.WithProfiles(e.timeout, func(p tsf.Profiles) {
		result <- e.collectInputProcessors(p)
	})
	if err != nil {
		slog.Warn("[DEBUG-ENUM] input processor enumeration failed", "error", err)
		return nil
	}
	select {
	case entries := <-result:
		return entries
	default:
		return nil
	}
}

// collectInputProcessors runs on the subsystem thread.
func (e *Enumerator) collectInputProcessors(p tsf.Profiles) []profile.ImeProfile {
	current, hr := p.GetCurrentLanguage()
	slog.Info("[DEBUG-ENUM] GetCurrentLanguage", "hr", hr.String(), "lang", current)

	langs, hr := p.GetLanguageList()
	if !hr.OK() {
		slog.Warn("[DEBUG-ENUM] GetLanguageList failed", "hr", hr.String())
		return nil
	}

	var out []profile.ImeProfile
	for _, lang := range langs {
		items, hr := p.EnumLanguageProfiles(lang)
		if !hr.OK() {
			slog.Warn("[DEBUG-ENUM] EnumLanguageProfiles failed", "lang", lang, "hr", hr.String())
			continue
		}
		for _, item := range items {
			if item.CLSID == (ole.GUID{}) {
				continue
			}
			desc, hr := p.GetLanguageProfileDescription(item.CLSID, item.LangID, item.ProfileGUID)
			if !hr.OK() {
				desc = ""
			}
			if e.verbose {
				logProfileState(p, item, desc)
			}
			out = append(out, profile.ImeProfile{
				Type:        profile.TypeInputProcessor,
				LangID:      item.LangID,
				CLSID:       item.CLSID,
				ProfileGUID: item.ProfileGUID,
				Description: desc,
			})
		}
	}
	return out
}

func logProfileState(p tsf.Profiles, item tsf.LanguageProfile, desc string) {
	enabled, enabledHr := p.IsEnabledLanguageProfile(item.CLSID, item.LangID, item.ProfileGUID)
	defaultCLSID, defaultGUID, defaultHr := p.GetDefaultLanguageProfile(item.LangID, item.CatID)
	activeLang, activeGUID, activeHr := p.GetActiveLanguageProfile(item.CLSID)
	activeMatch := activeHr.OK() && activeLang == item.LangID && activeGUID == item.ProfileGUID

	slog.Debug("[DEBUG-ENUM] input processor state",
		"lang", item.LangID,
		"fActive", item.Active,
		"enabledHr", enabledHr.String(), "enabled", enabled,
		"defaultHr", defaultHr.String(), "defaultClsid", defaultCLSID.String(), "defaultGuid", defaultGUID.String(),
		"activeHr", activeHr.String(), "activeLang", activeLang, "activeGuid", activeGUID.String(), "activeMatch", activeMatch,
		"catid", item.CatID.String(), "clsid", item.CLSID.String(), "guidProfile", item.ProfileGUID.String(),
		"desc", desc,
	)
}

// appendKeyboardLayouts adds layouts that are neither IME substitutes nor
// shadowed by an input processor for the same language.
func (e *Enumerator) appendKeyboardLayouts(entries []profile.ImeProfile) []profile.ImeProfile {
	if e.layouts == nil {
		return entries
	}
	handles, err := e.layouts.KeyboardLayouts()
	if err != nil {
		slog.Warn("[DEBUG-ENUM] keyboard layout list failed", "error", err)
		return entries
	}

	for _, hkl := range handles {
		lang := hkl.Lang()
		substitute := hkl.IsIMESubstitute()
		slog.Debug("[DEBUG-ENUM] keyboard layout",
			"lang", lang, "hkl", hkl.String(), "layoutId", hkl.LayoutID(), "isImeSubstitute", substitute)
		if substitute || hasInputProcessor(entries, lang) {
			continue
		}
		entries = append(entries, profile.ImeProfile{
			Type:         profile.TypeKeyboardLayout,
			LangID:       lang,
			LayoutHandle: hkl,
			Description:  describeLayout(e.names, hkl),
		})
	}
	return entries
}

func hasInputProcessor(entries []profile.ImeProfile, lang profile.LangID) bool {
	for _, p := range entries {
		if p.IsInputProcessor() && p.LangID == lang {
			return true
		}
	}
	return false
}
