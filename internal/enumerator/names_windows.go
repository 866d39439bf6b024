//go:build windows

package enumerator

import (
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"hyperimswitch/internal/profile"
)

const keyboardLayoutsKey = `SYSTEM\CurrentControlSet\Control\Keyboard Layouts\`

var (
	shlwapi  = windows.NewLazySystemDLL("shlwapi.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSHLoadIndirectString = shlwapi.NewProc("SHLoadIndirectString")
	procLCIDToLocaleName     = kernel32.NewProc("LCIDToLocaleName")
)

const localeNameMaxLength = 85

type registryNames struct{}

// DefaultNames reads HKLM keyboard layout entries.
func DefaultNames() LayoutNames { return registryNames{} }

func (registryNames) LayoutDisplayText(klid string) (string, bool) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, keyboardLayoutsKey+klid, registry.QUERY_VALUE)
	if err != nil {
		return "", false
	}
	defer key.Close()

	if display, _, err := key.GetStringValue("Layout Display Name"); err == nil && strings.TrimSpace(display) != "" {
		if resolved, ok := resolveIndirectString(display); ok {
			return resolved, true
		}
	}
	if text, _, err := key.GetStringValue("Layout Text"); err == nil && strings.TrimSpace(text) != "" {
		return text, true
	}
	return "", false
}

func (registryNames) LocaleName(lang profile.LangID) (string, bool) {
	buf := make([]uint16, localeNameMaxLength)
	n, _, _ := procLCIDToLocaleName.Call(uintptr(lang), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)), 0)
	if n == 0 {
		return "", false
	}
	return windows.UTF16ToString(buf), true
}

// resolveIndirectString expands "@file,-id" resource references.
func resolveIndirectString(s string) (string, bool) {
	if !strings.HasPrefix(s, "@") {
		return s, true
	}
	src, err := windows.UTF16PtrFromString(s)
	if err != nil {
		return "", false
	}
	out := make([]uint16, windows.MAX_PATH)
	hr, _, _ := procSHLoadIndirectString.Call(
		uintptr(unsafe.Pointer(src)),
		uintptr(unsafe.Pointer(&out[0])),
		uintptr(len(out)),
		0,
	)
	if hr != 0 {
		return "", false
	}
	resolved := windows.UTF16ToString(out)
	return resolved, strings.TrimSpace(resolved) != ""
}
