package hotkeys

import (
	"strings"
	"testing"
)

func TestParseChordSuccess(t *testing.T) {
	tests := []struct {
		name     string
		spec     string
		wantNorm string
		wantMods Modifier
		wantKey  VKey
	}{
		// Function key with two modifiers
		{
			name:     "Ctrl+Shift+F12",
			spec:     "Ctrl+Shift+F12",
			wantNorm: "Ctrl+Shift+F12",
			wantMods: ModControl | ModShift,
			wantKey:  0x7B,
		},
		{
			name:     "Ctrl+Alt+digit",
			spec:     "Ctrl+Alt+1",
			wantNorm: "Ctrl+Alt+1",
			wantMods: ModControl | ModAlt,
			wantKey:  VKey('1'),
		},
		{
			name:     "Ctrl+backtick",
			spec:     "Ctrl+`",
			wantNorm: "Ctrl+`",
			wantMods: ModControl,
			wantKey:  vkOem3,
		},
		{
			name:     "Ctrl+Space",
			spec:     "Ctrl+space",
			wantNorm: "Ctrl+Space",
			wantMods: ModControl,
			wantKey:  vkSpace,
		},
		{
			name:     "Alt+Tab",
			spec:     "Alt+Tab",
			wantNorm: "Alt+Tab",
			wantMods: ModAlt,
			wantKey:  vkTab,
		},
		{
			name:     "RETURN alias",
			spec:     "Ctrl+Return",
			wantNorm: "Ctrl+Enter",
			wantMods: ModControl,
			wantKey:  vkReturn,
		},
		{
			name:     "PageUp",
			spec:     "Ctrl+PageUp",
			wantNorm: "Ctrl+PageUp",
			wantMods: ModControl,
			wantKey:  vkPrior,
		},
		{
			name:     "F24",
			spec:     "Win+F24",
			wantNorm: "Win+F24",
			wantMods: ModWin,
			wantKey:  vkF24,
		},
		// Hex virtual-key code renders by name when one is known
		{
			name:     "Ctrl+0x41 (hex A)",
			spec:     "Ctrl+0x41",
			wantNorm: "Ctrl+A",
			wantMods: ModControl,
			wantKey:  VKey(0x41),
		},
		{
			name:     "unnamed hex key",
			spec:     "Ctrl+0xE2",
			wantNorm: "Ctrl+0xE2",
			wantMods: ModControl,
			wantKey:  VKey(0xE2),
		},
		{
			name:     "Grave alias",
			spec:     "Ctrl+Grave",
			wantNorm: "Ctrl+`",
			wantMods: ModControl,
			wantKey:  vkOem3,
		},
		{
			name:     "Super alias",
			spec:     "Super+A",
			wantNorm: "Win+A",
			wantMods: ModWin,
			wantKey:  VKey('A'),
		},
		// Modifiers render in canonical order regardless of input order
		{
			name:     "all modifiers reordered",
			spec:     "Win+Shift+Alt+Ctrl+A",
			wantNorm: "Ctrl+Alt+Shift+Win+A",
			wantMods: ModControl | ModAlt | ModShift | ModWin,
			wantKey:  VKey('A'),
		},
		{
			name:     "dedup Ctrl+Ctrl+A",
			spec:     "Ctrl+Ctrl+A",
			wantNorm: "Ctrl+A",
			wantMods: ModControl,
			wantKey:  VKey('A'),
		},
		{
			name:     "whitespace padded",
			spec:     "  ctrl + a  ",
			wantNorm: "Ctrl+A",
			wantMods: ModControl,
			wantKey:  VKey('A'),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chord, err := ParseChord(tt.spec)
			if err != nil {
				t.Fatalf("ParseChord(%q) returned unexpected error: %v", tt.spec, err)
			}
			if chord.String() != tt.wantNorm {
				t.Errorf("String() = %q, want %q", chord.String(), tt.wantNorm)
			}
			if chord.Modifiers() != tt.wantMods {
				t.Errorf("Modifiers() = 0x%X, want 0x%X", chord.Modifiers(), tt.wantMods)
			}
			if chord.Key() != tt.wantKey {
				t.Errorf("Key() = 0x%X, want 0x%X", chord.Key(), tt.wantKey)
			}
		})
	}
}

func TestParseChordErrors(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantSub string // expected substring in error message
	}{
		{name: "empty spec", spec: "", wantSub: "empty"},
		{name: "whitespace-only spec", spec: "   ", wantSub: "empty"},
		{name: "key only, no modifier", spec: "A", wantSub: "modifiers and key"},
		{name: "unknown modifier", spec: "Meta+A", wantSub: "unknown modifier"},
		{name: "missing key token", spec: "Ctrl+", wantSub: "missing hotkey key token"},
		{name: "unknown key name", spec: "Ctrl+Hyper", wantSub: "unknown key"},
		{name: "function key out of range", spec: "Ctrl+F25", wantSub: "unknown key"},
		{name: "invalid hex key", spec: "Ctrl+0xZZZZ", wantSub: "invalid hex key"},
		{name: "hex key wider than a byte", spec: "Ctrl+0x1FF", wantSub: "invalid hex key"},
		{name: "hex key zero", spec: "Ctrl+0x00", wantSub: "not a valid virtual key"},
		{name: "leading plus", spec: "+A", wantSub: "unknown modifier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChord(tt.spec)
			if err == nil {
				t.Fatalf("ParseChord(%q) expected error, got nil", tt.spec)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %q, want substring %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestFormatChord(t *testing.T) {
	tests := []struct {
		mods uint32
		vk   uint32
		want string
	}{
		{mods: 0x0003, vk: '1', want: "Ctrl+Alt+1"},
		{mods: uint32(ModControl | ModNoRepeat), vk: 0x70, want: "Ctrl+F1"},
		{mods: 0, vk: 'K', want: "K"},
		{mods: 0x0002, vk: 0, want: ""},
	}
	for _, tt := range tests {
		if got := FormatChord(tt.mods, tt.vk); got != tt.want {
			t.Errorf("FormatChord(0x%X, 0x%X) = %q, want %q", tt.mods, tt.vk, got, tt.want)
		}
	}
}
