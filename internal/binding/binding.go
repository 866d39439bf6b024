// Package binding holds the user-configured hotkey to profile mappings that
// the switch engine and the hotkey loop consume as immutable snapshots.
package binding

import (
	"fmt"

	"github.com/go-ole/go-ole"

	"hyperimswitch/internal/profile"
)

// HotkeyBinding maps one slot to one input-method profile and one chord.
// SlotID doubles as the RegisterHotKey id.
type HotkeyBinding struct {
	SlotID       int
	ProfileType  profile.Type
	LangID       profile.LangID
	CLSID        ole.GUID
	ProfileGUID  ole.GUID
	LayoutHandle profile.LayoutHandle
	// ConversionMode is applied after activation when non-nil. Only honored
	// once the Japanese language is current.
	ConversionMode *uint32
	DisplayName    string
	Modifiers      uint32
	VirtualKey     uint32
}

// IsValid reports whether the binding carries a key and can be registered.
func (b HotkeyBinding) IsValid() bool { return b.VirtualKey != 0 }

// EffectiveLayoutHandle returns LayoutHandle, or one synthesized from LangID
// when it is zero.
func (b HotkeyBinding) EffectiveLayoutHandle() profile.LayoutHandle {
	if b.LayoutHandle != 0 {
		return b.LayoutHandle
	}
	return profile.SynthesizeLayoutHandle(b.LangID)
}

// Clone returns a deep copy.
func (b HotkeyBinding) Clone() HotkeyBinding {
	out := b
	if b.ConversionMode != nil {
		mode := *b.ConversionMode
		out.ConversionMode = &mode
	}
	return out
}

func (b HotkeyBinding) String() string {
	if b.ProfileType == profile.TypeKeyboardLayout {
		return fmt.Sprintf("slot=%d %s lang=%s hkl=%s name=%q", b.SlotID, b.ProfileType, b.LangID, b.LayoutHandle, b.DisplayName)
	}
	return fmt.Sprintf("slot=%d %s lang=%s clsid=%s profile=%s name=%q",
		b.SlotID, b.ProfileType, b.LangID, b.CLSID.String(), b.ProfileGUID.String(), b.DisplayName)
}

// CloneAll deep-copies a binding list. A nil input yields nil.
func CloneAll(bindings []HotkeyBinding) []HotkeyBinding {
	if bindings == nil {
		return nil
	}
	out := make([]HotkeyBinding, len(bindings))
	for i, b := range bindings {
		out[i] = b.Clone()
	}
	return out
}

// BySlot indexes bindings by slot id. Later duplicates win.
func BySlot(bindings []HotkeyBinding) map[int]HotkeyBinding {
	table := make(map[int]HotkeyBinding, len(bindings))
	for _, b := range bindings {
		table[b.SlotID] = b.Clone()
	}
	return table
}

// FixSlotIDs renumbers every binding from 1 when any slot id is non-positive.
// Lists whose ids are all positive are returned unchanged.
func FixSlotIDs(bindings []HotkeyBinding) ([]HotkeyBinding, bool) {
	out := CloneAll(bindings)
	needsFix := false
	for _, b := range out {
		if b.SlotID <= 0 {
			needsFix = true
			break
		}
	}
	if !needsFix {
		return out, false
	}
	for i := range out {
		out[i].SlotID = i + 1
	}
	return out, true
}

// BackfillLayoutHandles fills LayoutHandle for keyboard-layout bindings that
// have none, using the first catalog layout with the same language.
func BackfillLayoutHandles(bindings []HotkeyBinding, catalog *profile.Catalog) ([]HotkeyBinding, bool) {
	out := CloneAll(bindings)
	changed := false
	for i := range out {
		b := &out[i]
		if b.ProfileType != profile.TypeKeyboardLayout || b.LayoutHandle != 0 {
			continue
		}
		p, ok := catalog.FirstKeyboardLayout(b.LangID)
		if !ok || p.LayoutHandle == 0 {
			continue
		}
		b.LayoutHandle = p.LayoutHandle
		changed = true
	}
	return out, changed
}
