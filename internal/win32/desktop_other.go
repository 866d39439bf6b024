//go:build !windows

package win32

import (
	"errors"

	"hyperimswitch/internal/profile"
)

var errUnsupported = errors.New("win32 desktop calls are only available on Windows")

func (*Desktop) ForegroundWindow() HWND                        { return 0 }
func (*Desktop) WindowThreadProcessID(HWND) (uint32, uint32)   { return 0, 0 }
func (*Desktop) ProcessName(uint32) string                     { return "unknown" }
func (*Desktop) DefaultIMEWindow(HWND) HWND                    { return 0 }
func (*Desktop) SendIMEControl(HWND, uintptr, uintptr) uintptr { return 0 }

func (*Desktop) PostInputLangChangeRequest(HWND, profile.LayoutHandle) error {
	return errUnsupported
}

func (*Desktop) ActivateKeyboardLayout(profile.LayoutHandle, uint32) (profile.LayoutHandle, error) {
	return 0, errUnsupported
}

func (*Desktop) KeyboardLayouts() ([]profile.LayoutHandle, error) {
	return nil, errUnsupported
}
