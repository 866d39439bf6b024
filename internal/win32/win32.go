// Package win32 wraps the handful of user32/imm32 calls the switch engine
// needs to reach the foreground window.
package win32

// HWND is a window handle.
type HWND uintptr

const (
	WMInputLangChangeRequest = 0x0050
	WMIMEControl             = 0x0283

	// KLFSetForProcess activates a layout for every thread of the process.
	KLFSetForProcess = 0x00000100
)

// WM_IME_CONTROL commands.
const (
	IMCGetConversionMode = 0x0001
	IMCSetConversionMode = 0x0002
	IMCSetSentenceMode   = 0x0004
	IMCGetOpenStatus     = 0x0005
	IMCSetOpenStatus     = 0x0006
)

// Desktop talks to the interactive desktop of the current session.
type Desktop struct{}

// NewDesktop returns the platform desktop.
func NewDesktop() *Desktop { return &Desktop{} }
