package hotkeys

import (
	"fmt"
	"strconv"
	"strings"
)

// Modifier represents a Win32 hotkey modifier bitmask.
type Modifier uint32

// VKey represents a Win32 virtual-key code.
type VKey uint32

const (
	ModAlt      Modifier = 0x0001
	ModControl  Modifier = 0x0002
	ModShift    Modifier = 0x0004
	ModWin      Modifier = 0x0008
	ModNoRepeat Modifier = 0x4000
)

const (
	vkBack     VKey = 0x08
	vkTab      VKey = 0x09
	vkReturn   VKey = 0x0D
	vkPause    VKey = 0x13
	vkEscape   VKey = 0x1B
	vkSpace    VKey = 0x20
	vkPrior    VKey = 0x21
	vkNext     VKey = 0x22
	vkEnd      VKey = 0x23
	vkHome     VKey = 0x24
	vkLeft     VKey = 0x25
	vkUp       VKey = 0x26
	vkRight    VKey = 0x27
	vkDown     VKey = 0x28
	vkInsert   VKey = 0x2D
	vkDelete   VKey = 0x2E
	vkF1       VKey = 0x70
	vkF24      VKey = 0x87
	vkOem1     VKey = 0xBA
	vkOemPlus  VKey = 0xBB
	vkOemComma VKey = 0xBC
	vkOemMinus VKey = 0xBD
	vkOemDot   VKey = 0xBE
	vkOem2     VKey = 0xBF
	vkOem3     VKey = 0xC0
)

var modifierByName = map[string]Modifier{
	"CTRL":    ModControl,
	"CONTROL": ModControl,
	"SHIFT":   ModShift,
	"ALT":     ModAlt,
	"WIN":     ModWin,
	"SUPER":   ModWin,
}

// modifierOrder is the canonical rendering order.
var modifierOrder = []struct {
	mod  Modifier
	name string
}{
	{ModControl, "Ctrl"},
	{ModAlt, "Alt"},
	{ModShift, "Shift"},
	{ModWin, "Win"},
}

var keyByName = map[string]VKey{
	"SPACE":     vkSpace,
	"TAB":       vkTab,
	"ENTER":     vkReturn,
	"RETURN":    vkReturn,
	"ESC":       vkEscape,
	"ESCAPE":    vkEscape,
	"BACKSPACE": vkBack,
	"PAUSE":     vkPause,
	"INSERT":    vkInsert,
	"DELETE":    vkDelete,
	"HOME":      vkHome,
	"END":       vkEnd,
	"PAGEUP":    vkPrior,
	"PAGEDOWN":  vkNext,
	"LEFT":      vkLeft,
	"RIGHT":     vkRight,
	"UP":        vkUp,
	"DOWN":      vkDown,
	"BACKQUOTE": vkOem3,
	"GRAVE":     vkOem3,
	"`":         vkOem3,
	";":         vkOem1,
	"=":         vkOemPlus,
	",":         vkOemComma,
	"-":         vkOemMinus,
	".":         vkOemDot,
	"/":         vkOem2,
}

var nameByKey = map[VKey]string{
	vkSpace:    "Space",
	vkTab:      "Tab",
	vkReturn:   "Enter",
	vkEscape:   "Esc",
	vkBack:     "Backspace",
	vkPause:    "Pause",
	vkInsert:   "Insert",
	vkDelete:   "Delete",
	vkHome:     "Home",
	vkEnd:      "End",
	vkPrior:    "PageUp",
	vkNext:     "PageDown",
	vkLeft:     "Left",
	vkRight:    "Right",
	vkUp:       "Up",
	vkDown:     "Down",
	vkOem3:     "`",
	vkOem1:     ";",
	vkOemPlus:  "=",
	vkOemComma: ",",
	vkOemMinus: "-",
	vkOemDot:   ".",
	vkOem2:     "/",
}

// Chord is a parsed global hotkey. Construct only via ParseChord.
type Chord struct {
	modifiers  Modifier
	key        VKey
	normalized string
}

// Modifiers returns the modifier bitmask without MOD_NOREPEAT.
func (c Chord) Modifiers() Modifier { return c.modifiers }

// Key returns the virtual-key code.
func (c Chord) Key() VKey { return c.key }

// String returns the canonical text, e.g. "Ctrl+Alt+1".
func (c Chord) String() string { return c.normalized }

// ParseChord parses a chord like "Ctrl+Shift+F12". At least one modifier is
// required.
func ParseChord(spec string) (Chord, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Chord{}, fmt.Errorf("hotkey spec is empty")
	}

	parts := strings.Split(raw, "+")
	if len(parts) < 2 {
		return Chord{}, fmt.Errorf("hotkey must include modifiers and key: %s", raw)
	}

	var modifiers Modifier
	for _, token := range parts[:len(parts)-1] {
		name := strings.ToUpper(strings.TrimSpace(token))
		mod, ok := modifierByName[name]
		if !ok {
			return Chord{}, fmt.Errorf("unknown modifier %q in hotkey %q", token, raw)
		}
		modifiers |= mod
	}

	key, err := parseKey(parts[len(parts)-1])
	if err != nil {
		return Chord{}, err
	}
	return Chord{
		modifiers:  modifiers,
		key:        key,
		normalized: FormatChord(uint32(modifiers), uint32(key)),
	}, nil
}

func parseKey(raw string) (VKey, error) {
	token := strings.ToUpper(strings.TrimSpace(raw))
	if token == "" {
		return 0, fmt.Errorf("missing hotkey key token")
	}

	if key, ok := keyByName[token]; ok {
		return key, nil
	}
	if len(token) == 1 {
		ch := token[0]
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			return VKey(ch), nil
		}
	}
	if n, ok := strings.CutPrefix(token, "F"); ok {
		if idx, err := strconv.Atoi(n); err == nil && idx >= 1 && idx <= 24 {
			return vkF1 + VKey(idx-1), nil
		}
	}
	if hex, ok := strings.CutPrefix(token, "0X"); ok {
		value, err := strconv.ParseUint(hex, 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid hex key %q", raw)
		}
		if value == 0 {
			return 0, fmt.Errorf("key code 0x00 is not a valid virtual key")
		}
		return VKey(value), nil
	}
	return 0, fmt.Errorf("unknown key %q in hotkey spec", raw)
}

// FormatChord renders a modifier mask and virtual key in canonical order.
// A zero key renders as the empty string.
func FormatChord(modifiers, vk uint32) string {
	if vk == 0 {
		return ""
	}
	var parts []string
	for _, m := range modifierOrder {
		if Modifier(modifiers)&m.mod != 0 {
			parts = append(parts, m.name)
		}
	}
	return strings.Join(append(parts, keyName(VKey(vk))), "+")
}

func keyName(vk VKey) string {
	if name, ok := nameByKey[vk]; ok {
		return name
	}
	switch {
	case (vk >= 'A' && vk <= 'Z') || (vk >= '0' && vk <= '9'):
		return string(rune(vk))
	case vk >= vkF1 && vk <= vkF24:
		return fmt.Sprintf("F%d", vk-vkF1+1)
	}
	return fmt.Sprintf("0x%02X", uint32(vk))
}
