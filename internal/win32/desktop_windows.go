//go:build windows

package win32

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"hyperimswitch/internal/profile"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	imm32  = windows.NewLazySystemDLL("imm32.dll")

	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
	procPostMessageW             = user32.NewProc("PostMessageW")
	procSendMessageW             = user32.NewProc("SendMessageW")
	procActivateKeyboardLayout   = user32.NewProc("ActivateKeyboardLayout")
	procGetKeyboardLayoutList    = user32.NewProc("GetKeyboardLayoutList")
	procImmGetDefaultIMEWnd      = imm32.NewProc("ImmGetDefaultIMEWnd")
)

const processQueryLimitedInformation = 0x1000

func (*Desktop) ForegroundWindow() HWND {
	hwnd, _, _ := procGetForegroundWindow.Call()
	return HWND(hwnd)
}

// WindowThreadProcessID returns the owning thread and process of hwnd.
func (*Desktop) WindowThreadProcessID(hwnd HWND) (threadID, processID uint32) {
	if hwnd == 0 {
		return 0, 0
	}
	tid, _, _ := procGetWindowThreadProcessID.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&processID)))
	return uint32(tid), processID
}

// ProcessName returns the executable base name without extension, or
// "unavailable" when the process cannot be opened.
func (*Desktop) ProcessName(pid uint32) string {
	if pid == 0 {
		return "unknown"
	}
	h, err := windows.OpenProcess(processQueryLimitedInformation, false, pid)
	if err != nil {
		return "unavailable"
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil || size == 0 {
		return "unavailable"
	}
	base := filepath.Base(windows.UTF16ToString(buf[:size]))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PostInputLangChangeRequest posts WM_INPUTLANGCHANGEREQUEST with hkl as lParam.
func (*Desktop) PostInputLangChangeRequest(hwnd HWND, hkl profile.LayoutHandle) error {
	if hwnd == 0 {
		return errors.New("no foreground window")
	}
	ok, _, err := procPostMessageW.Call(uintptr(hwnd), WMInputLangChangeRequest, 0, uintptr(hkl))
	if ok != 0 {
		return nil
	}
	return lastError("PostMessageW", err)
}

// ActivateKeyboardLayout returns the previously active layout.
func (*Desktop) ActivateKeyboardLayout(hkl profile.LayoutHandle, flags uint32) (profile.LayoutHandle, error) {
	prev, _, err := procActivateKeyboardLayout.Call(uintptr(hkl), uintptr(flags))
	if prev != 0 {
		return profile.LayoutHandle(prev), nil
	}
	return 0, lastError("ActivateKeyboardLayout", err)
}

func (*Desktop) DefaultIMEWindow(hwnd HWND) HWND {
	if hwnd == 0 {
		return 0
	}
	ime, _, _ := procImmGetDefaultIMEWnd.Call(uintptr(hwnd))
	return HWND(ime)
}

// SendIMEControl sends WM_IME_CONTROL and returns the raw result.
func (*Desktop) SendIMEControl(imeWnd HWND, command, value uintptr) uintptr {
	ret, _, _ := procSendMessageW.Call(uintptr(imeWnd), WMIMEControl, command, value)
	return ret
}

// KeyboardLayouts returns the system's installed input locale handles.
func (*Desktop) KeyboardLayouts() ([]profile.LayoutHandle, error) {
	n, _, err := procGetKeyboardLayoutList.Call(0, 0)
	if n == 0 {
		return nil, lastError("GetKeyboardLayoutList", err)
	}
	handles := make([]uintptr, n)
	got, _, err := procGetKeyboardLayoutList.Call(n, uintptr(unsafe.Pointer(&handles[0])))
	if got == 0 {
		return nil, lastError("GetKeyboardLayoutList", err)
	}
	out := make([]profile.LayoutHandle, 0, got)
	for _, h := range handles[:got] {
		out = append(out, profile.LayoutHandle(h))
	}
	return out, nil
}

func lastError(op string, err error) error {
	if errno, ok := err.(syscall.Errno); ok && errno == 0 {
		return fmt.Errorf("%s failed", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
