// Package tsftest provides an in-memory input-method subsystem and desktop
// for tests. One System stands in for both the profiles API and the
// foreground window so that activation paths share one current language.
package tsftest

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ole/go-ole"

	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/tsf"
	"hyperimswitch/internal/win32"
)

// GUID returns a distinct GUID for test fixtures.
func GUID(n uint32) ole.GUID { return ole.GUID{Data1: n, Data2: 0x1234, Data3: 0x5678} }

// Key identifies one input processor profile.
type Key struct {
	CLSID   ole.GUID
	Lang    profile.LangID
	Profile ole.GUID
}

type installed struct {
	key            Key
	description    string
	enabled        bool
	failActivation int
}

// System is a thread-safe fake of tsf.Subsystem and switcher.Windowing.
type System struct {
	mu sync.Mutex

	current   profile.LangID
	active    Key
	languages []profile.LangID
	profiles  []*installed
	defaults  map[profile.LangID]Key
	layouts   []profile.LayoutHandle

	foreground      win32.HWND
	imeWindow       win32.HWND
	imeOpen         uintptr
	imeConv         uintptr
	imeOverwrites   int
	compartmentMode *uint32

	postChangesLanguage bool
	activationDelay     time.Duration
	openErr             error
	initErr             error
	conversionErr       error
	panicOnActivate     bool

	calls []string

	inits    atomic.Int32
	uninits  atomic.Int32
	inFlight atomic.Int32
	overlaps atomic.Int32
}

// New returns an empty system with US English current and a foreground
// window that owns an IME window.
func New() *System {
	return &System{
		current:    profile.LangEnglishUS,
		defaults:   map[profile.LangID]Key{},
		foreground: 0x1001,
		imeWindow:  0x2002,
	}
}

// AddInputProcessor installs an enabled input processor profile.
func (s *System) AddInputProcessor(lang profile.LangID, clsid, profileGUID ole.GUID, description string) Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key{CLSID: clsid, Lang: lang, Profile: profileGUID}
	s.profiles = append(s.profiles, &installed{key: key, description: description, enabled: true})
	if !slices.Contains(s.languages, lang) {
		s.languages = append(s.languages, lang)
	}
	return key
}

// AddKeyboardLayout appends hkl to the installed layout list.
func (s *System) AddKeyboardLayout(hkl profile.LayoutHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layouts = append(s.layouts, hkl)
	if lang := hkl.Lang(); !slices.Contains(s.languages, lang) {
		s.languages = append(s.languages, lang)
	}
}

// SetEnabled toggles a profile's enabled state.
func (s *System) SetEnabled(key Key, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.find(key); p != nil {
		p.enabled = enabled
	}
}

// FailActivations makes the next n direct activations of key fail.
func (s *System) FailActivations(key Key, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.find(key); p != nil {
		p.failActivation = n
	}
}

func (s *System) SetCurrentLanguage(lang profile.LangID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = lang
}

func (s *System) CurrentLanguage() profile.LangID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetForeground sets the foreground window and its default IME window. Zero
// values model a desktop with no focus or no IME.
func (s *System) SetForeground(hwnd, imeWnd win32.HWND) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foreground = hwnd
	s.imeWindow = imeWnd
}

// SetPostChangesLanguage controls whether the foreground window honors
// WM_INPUTLANGCHANGEREQUEST.
func (s *System) SetPostChangesLanguage(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.postChangesLanguage = v
}

// SetIMEOverwrites makes the foreground application reset the IME window
// state before each of the next n status reads.
func (s *System) SetIMEOverwrites(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imeOverwrites = n
}

// SetActivationDelay blocks every activation call for d.
func (s *System) SetActivationDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activationDelay = d
}

// SetPanicOnActivate makes ActivateLanguageProfile panic.
func (s *System) SetPanicOnActivate(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panicOnActivate = v
}

func (s *System) SetOpenError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

func (s *System) SetInitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initErr = err
}

func (s *System) SetConversionError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversionErr = err
}

// IMEState returns the IME window open status and conversion bits.
func (s *System) IMEState() (open, conv uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imeOpen, s.imeConv
}

// CompartmentMode returns the last global conversion mode written.
func (s *System) CompartmentMode() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.compartmentMode == nil {
		return 0, false
	}
	return *s.compartmentMode, true
}

// Calls returns the recorded native calls in order.
func (s *System) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallsWithPrefix filters Calls by prefix.
func (s *System) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range s.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (s *System) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Overlaps counts profile calls that started while another was in flight.
func (s *System) Overlaps() int { return int(s.overlaps.Load()) }

// ThreadInits returns how many times InitThread and UninitThread ran.
func (s *System) ThreadInits() (inits, uninits int) {
	return int(s.inits.Load()), int(s.uninits.Load())
}

func (s *System) find(key Key) *installed {
	for _, p := range s.profiles {
		if p.key == key {
			return p
		}
	}
	return nil
}

func (s *System) record(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *System) enter() func() {
	if s.inFlight.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	return func() { s.inFlight.Add(-1) }
}

// InitThread implements tsf.Subsystem.
func (s *System) InitThread() error {
	s.inits.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initErr
}

func (s *System) UninitThread() { s.uninits.Add(1) }

func (s *System) OpenProfiles() (tsf.Profiles, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &session{s: s}, nil
}

func (s *System) SetGlobalConversionMode(mode uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SetGlobalConversionMode 0x%02X", mode)
	if s.conversionErr != nil {
		return s.conversionErr
	}
	s.compartmentMode = &mode
	return nil
}

// Windowing.

func (s *System) ForegroundWindow() win32.HWND {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foreground
}

func (s *System) WindowThreadProcessID(hwnd win32.HWND) (uint32, uint32) {
	if hwnd == 0 {
		return 0, 0
	}
	return 100, 200
}

func (s *System) ProcessName(pid uint32) string {
	if pid == 0 {
		return "unknown"
	}
	return "notepad"
}

func (s *System) PostInputLangChangeRequest(hwnd win32.HWND, hkl profile.LayoutHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("PostInputLangChangeRequest %s", hkl)
	if hwnd == 0 {
		return errors.New("no foreground window")
	}
	if s.postChangesLanguage {
		s.current = hkl.Lang()
	}
	return nil
}

func (s *System) ActivateKeyboardLayout(hkl profile.LayoutHandle, flags uint32) (profile.LayoutHandle, error) {
	s.mu.Lock()
	delay := s.activationDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ActivateKeyboardLayout %s flags=0x%X", hkl, flags)
	prev := profile.SynthesizeLayoutHandle(s.current)
	s.current = hkl.Lang()
	return prev, nil
}

func (s *System) DefaultIMEWindow(hwnd win32.HWND) win32.HWND {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hwnd == 0 || hwnd != s.foreground {
		return 0
	}
	return s.imeWindow
}

func (s *System) SendIMEControl(imeWnd win32.HWND, command, value uintptr) uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if imeWnd == 0 || imeWnd != s.imeWindow {
		return 0
	}
	switch command {
	case win32.IMCSetOpenStatus:
		s.record("IME_CONTROL SetOpenStatus %d", value)
		s.imeOpen = value
	case win32.IMCSetConversionMode:
		s.record("IME_CONTROL SetConversionMode 0x%02X", value)
		s.imeConv = value
	case win32.IMCSetSentenceMode:
		s.record("IME_CONTROL SetSentenceMode %d", value)
	case win32.IMCGetOpenStatus:
		if s.imeOverwrites > 0 {
			s.imeOverwrites--
			s.imeOpen, s.imeConv = 0, 0
		}
		return s.imeOpen
	case win32.IMCGetConversionMode:
		return s.imeConv
	}
	return 0
}

// KeyboardLayouts lists installed layouts for the enumerator.
func (s *System) KeyboardLayouts() ([]profile.LayoutHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.layouts), nil
}
