// Package config loads and saves the user settings file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-ole/go-ole"
	"go.yaml.in/yaml/v3"

	"hyperimswitch/internal/binding"
	"hyperimswitch/internal/hotkeys"
	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/switcher"
)

const (
	appDirName   = "HyperIMSwitch"
	settingsFile = "settings.yaml"

	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond
)

// defaultConfigDirFn is a test seam for validateConfigPath.
var defaultConfigDirFn = defaultConfigDir
var userHomeDirFn = os.UserHomeDir

var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	out := defaultPathWarningState.messages
	defaultPathWarningState.messages = nil
	return out
}

// Log levels accepted in log_level.
var validLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// Settings is the persisted application state.
type Settings struct {
	Hotkeys   []HotkeyEntry `yaml:"hotkeys"`
	AutoStart bool          `yaml:"auto_start"`
	LogLevel  string        `yaml:"log_level"`
	// SwitchDiagnostics fields missing from the file keep their defaults.
	SwitchDiagnostics switcher.DiagnosticsOptions `yaml:"switch_diagnostics"`
}

// HotkeyEntry is the file form of one binding. Identity fields are text so
// the file stays hand-editable: GUIDs in braces, ids in hex.
type HotkeyEntry struct {
	Slot           int     `yaml:"slot"`
	ProfileType    string  `yaml:"profile_type"`
	LangID         string  `yaml:"lang_id"`
	CLSID          string  `yaml:"clsid,omitempty"`
	ProfileGUID    string  `yaml:"profile_guid,omitempty"`
	LayoutHandle   string  `yaml:"layout_handle,omitempty"`
	ConversionMode *uint32 `yaml:"conversion_mode,omitempty"`
	DisplayName    string  `yaml:"display_name"`
	// Hotkey is a chord such as "Ctrl+Alt+1". Empty leaves the slot unbound.
	Hotkey string `yaml:"hotkey"`
}

// DefaultSettings returns an empty binding list with every diagnostic enabled.
func DefaultSettings() Settings {
	return Settings{
		Hotkeys:           []HotkeyEntry{},
		LogLevel:          "info",
		SwitchDiagnostics: switcher.DefaultDiagnosticsOptions(),
	}
}

// Clone returns a deep copy of s.
func Clone(s Settings) Settings {
	out := s
	if s.Hotkeys != nil {
		out.Hotkeys = make([]HotkeyEntry, len(s.Hotkeys))
		for i, e := range s.Hotkeys {
			if e.ConversionMode != nil {
				mode := *e.ConversionMode
				e.ConversionMode = &mode
			}
			out.Hotkeys[i] = e
		}
	}
	return out
}

// DefaultPath returns %LOCALAPPDATA%\HyperIMSwitch\settings.yaml, falling
// back to APPDATA, ~/.config and finally the temp dir.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/home directory. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, appDirName, settingsFile)
}

// DataDir is the directory holding the settings file, logs and history.
func DataDir() string { return filepath.Dir(DefaultPath()) }

// Load reads the settings file. A missing or empty file yields defaults; a
// parse error yields defaults and the error.
func Load(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, err
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse settings, using defaults", "path", path, "error", err)
		return DefaultSettings(), err
	}
	normalize(&s)
	return s, nil
}

// EnsureFile writes default settings if missing and returns the loaded
// settings.
func EnsureFile(path string) (Settings, error) {
	s, err := Load(path)
	if err != nil {
		return s, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, s); err != nil {
			return s, err
		}
	}
	return s, nil
}

// Save normalizes s and writes it atomically. It returns what was written.
func Save(path string, s Settings) (Settings, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return s, err
	}
	s = Clone(s)
	normalize(&s)

	raw, err := yaml.Marshal(s)
	if err != nil {
		return s, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return s, err
	}
	slog.Debug("[DEBUG-CONFIG] settings saved", "path", normalizedPath, "hotkeys", len(s.Hotkeys))
	return s, nil
}

// normalize fills missing values in place.
func normalize(s *Settings) {
	level := strings.ToLower(strings.TrimSpace(s.LogLevel))
	if _, ok := validLogLevels[level]; !ok {
		if level != "" {
			slog.Warn("[WARN-CONFIG] unknown log_level, using info", "value", s.LogLevel)
		}
		level = "info"
	}
	s.LogLevel = level
	if s.Hotkeys == nil {
		s.Hotkeys = []HotkeyEntry{}
	}
	for i := range s.Hotkeys {
		e := &s.Hotkeys[i]
		e.ProfileType = strings.TrimSpace(e.ProfileType)
		e.Hotkey = strings.TrimSpace(e.Hotkey)
		if chord, err := hotkeys.ParseChord(e.Hotkey); err == nil {
			e.Hotkey = chord.String()
		}
	}
}

// Bindings converts every entry. Entries with an unknown profile type are
// dropped; other field errors keep the entry with what parsed, and an
// unparseable chord leaves it unbound. All problems are joined in err.
func (s Settings) Bindings() ([]binding.HotkeyBinding, error) {
	out := make([]binding.HotkeyBinding, 0, len(s.Hotkeys))
	var errs []error
	for _, e := range s.Hotkeys {
		b, err := e.Binding()
		if err != nil {
			errs = append(errs, fmt.Errorf("hotkey slot %d: %w", e.Slot, err))
			if b.ProfileType == 0 {
				continue
			}
		}
		out = append(out, b)
	}
	return out, errors.Join(errs...)
}

// SetBindings replaces the entries with bs.
func (s *Settings) SetBindings(bs []binding.HotkeyBinding) {
	s.Hotkeys = make([]HotkeyEntry, 0, len(bs))
	for _, b := range bs {
		s.Hotkeys = append(s.Hotkeys, EntryFromBinding(b))
	}
}

// Binding parses e. On error the returned binding holds the fields that did
// parse.
func (e HotkeyEntry) Binding() (binding.HotkeyBinding, error) {
	b := binding.HotkeyBinding{SlotID: e.Slot, DisplayName: e.DisplayName}
	if e.ConversionMode != nil {
		mode := *e.ConversionMode
		b.ConversionMode = &mode
	}

	pt, err := profile.ParseType(e.ProfileType)
	if err != nil {
		return b, err
	}
	b.ProfileType = pt

	var errs []error
	if lang, err := strconv.ParseUint(strings.TrimSpace(e.LangID), 0, 16); err != nil {
		errs = append(errs, fmt.Errorf("lang_id %q: %w", e.LangID, err))
	} else {
		b.LangID = profile.LangID(lang)
	}
	if b.CLSID, err = parseGUID(e.CLSID); err != nil {
		errs = append(errs, fmt.Errorf("clsid: %w", err))
	}
	if b.ProfileGUID, err = parseGUID(e.ProfileGUID); err != nil {
		errs = append(errs, fmt.Errorf("profile_guid: %w", err))
	}
	if raw := strings.TrimSpace(e.LayoutHandle); raw != "" {
		if hkl, err := strconv.ParseUint(raw, 0, 64); err != nil {
			errs = append(errs, fmt.Errorf("layout_handle %q: %w", raw, err))
		} else {
			b.LayoutHandle = profile.LayoutHandle(hkl)
		}
	}
	if e.Hotkey != "" {
		if chord, err := hotkeys.ParseChord(e.Hotkey); err != nil {
			errs = append(errs, err)
		} else {
			b.Modifiers = uint32(chord.Modifiers())
			b.VirtualKey = uint32(chord.Key())
		}
	}
	return b, errors.Join(errs...)
}

// EntryFromBinding renders b in file form.
func EntryFromBinding(b binding.HotkeyBinding) HotkeyEntry {
	e := HotkeyEntry{
		Slot:        b.SlotID,
		ProfileType: b.ProfileType.String(),
		LangID:      b.LangID.String(),
		DisplayName: b.DisplayName,
		Hotkey:      hotkeys.FormatChord(b.Modifiers, b.VirtualKey),
	}
	if b.CLSID != (ole.GUID{}) {
		e.CLSID = b.CLSID.String()
	}
	if b.ProfileGUID != (ole.GUID{}) {
		e.ProfileGUID = b.ProfileGUID.String()
	}
	if b.LayoutHandle != 0 {
		e.LayoutHandle = fmt.Sprintf("0x%08X", uint64(b.LayoutHandle))
	}
	if b.ConversionMode != nil {
		mode := *b.ConversionMode
		e.ConversionMode = &mode
	}
	return e
}

func parseGUID(raw string) (ole.GUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ole.GUID{}, nil
	}
	g := ole.NewGUID(raw)
	if g == nil {
		return ole.GUID{}, fmt.Errorf("invalid GUID %q", raw)
	}
	return *g, nil
}

// atomicWrite writes data using temp-file + rename to avoid partial writes
// and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".settings.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// validateConfigPath normalizes path and keeps writes inside the default
// config directory.
func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}
	expectedDir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absoluteExpectedDir, err := filepath.Abs(expectedDir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !pathWithinDir(absolutePath, absoluteExpectedDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", absolutePath)
	}
	return absolutePath, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// pathWithinDir blocks directory traversal by ensuring path is under dir.
// It also rejects Windows cross-drive escapes because filepath.Rel returns
// an absolute path when roots differ.
func pathWithinDir(path string, dir string) bool {
	relativePath, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if relativePath == "." {
		return true
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
