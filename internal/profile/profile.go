// Package profile describes installed input-method profiles and the catalog
// produced by one enumeration pass.
package profile

import (
	"fmt"
	"strings"

	"github.com/go-ole/go-ole"
)

// Type mirrors TF_PROFILETYPE from msctf.h.
type Type uint32

const (
	TypeInputProcessor Type = 1
	TypeKeyboardLayout Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeInputProcessor:
		return "input_processor"
	case TypeKeyboardLayout:
		return "keyboard_layout"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// ParseType accepts the names produced by String and the raw numeric values.
func ParseType(raw string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "input_processor", "inputprocessor", "ime", "1":
		return TypeInputProcessor, nil
	case "keyboard_layout", "keyboardlayout", "keyboard", "2":
		return TypeKeyboardLayout, nil
	}
	return 0, fmt.Errorf("unknown profile type %q", raw)
}

// LangID is a Win32 LANGID.
type LangID uint16

const (
	LangEnglishUS         LangID = 0x0409
	LangChineseSimplified LangID = 0x0804
	LangJapanese          LangID = 0x0411
)

func (l LangID) String() string { return fmt.Sprintf("0x%04X", uint16(l)) }

// LayoutHandle is an HKL value. The low word carries the language id and the
// high word the layout (device) id.
type LayoutHandle uintptr

// SynthesizeLayoutHandle builds lang<<16|lang. This matches the default
// layout for most locales but is only an approximation of the installed HKL.
func SynthesizeLayoutHandle(lang LangID) LayoutHandle {
	return LayoutHandle(uint32(lang)<<16 | uint32(lang))
}

// Lang returns the language id carried in the low word.
func (h LayoutHandle) Lang() LangID { return LangID(uint32(h) & 0xFFFF) }

// LayoutID returns the high word.
func (h LayoutHandle) LayoutID() uint16 { return uint16((uint32(h) >> 16) & 0xFFFF) }

// IsIMESubstitute reports whether the handle lies in the 0xE0xx IME range of
// legacy IMM32 keyboard layouts.
func (h LayoutHandle) IsIMESubstitute() bool { return h.LayoutID()&0xF000 == 0xE000 }

func (h LayoutHandle) String() string { return fmt.Sprintf("0x%X", uintptr(h)) }

// Japanese conversion modes (IME_CMODE_* combinations).
const (
	ConversionAlphanumeric uint32 = 0x00
	ConversionHiragana     uint32 = 0x09 // NATIVE|FULLSHAPE
	ConversionKatakanaFull uint32 = 0x0B // NATIVE|KATAKANA|FULLSHAPE
	ConversionKatakanaHalf uint32 = 0x03 // NATIVE|KATAKANA
)

// ImeProfile is one catalog entry.
type ImeProfile struct {
	Type         Type
	LangID       LangID
	CLSID        ole.GUID
	ProfileGUID  ole.GUID
	LayoutHandle LayoutHandle
	Description  string
}

func (p ImeProfile) IsKeyboardLayout() bool { return p.Type == TypeKeyboardLayout }
func (p ImeProfile) IsInputProcessor() bool { return p.Type == TypeInputProcessor }

// IsEnglishUS reports the US-English keyboard layout.
func (p ImeProfile) IsEnglishUS() bool { return p.IsKeyboardLayout() && p.LangID == LangEnglishUS }

// IsJapanese reports a Japanese input processor.
func (p ImeProfile) IsJapanese() bool { return p.IsInputProcessor() && p.LangID == LangJapanese }

// IsWeChat reports the WeChat input method by its description.
func (p ImeProfile) IsWeChat() bool { return IsWeChatName(p.Description) }

// IsWeChatName matches localized and English WeChat IME names.
func IsWeChatName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "微信") || strings.Contains(lower, "wechat")
}

func (p ImeProfile) String() string {
	if p.IsKeyboardLayout() {
		return fmt.Sprintf("[%s] %s hkl=%s %q", p.LangID, p.Type, p.LayoutHandle, p.Description)
	}
	return fmt.Sprintf("[%s] %s clsid=%s profile=%s %q", p.LangID, p.Type, p.CLSID.String(), p.ProfileGUID.String(), p.Description)
}
