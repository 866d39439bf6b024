//go:build windows

package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32DLL = windows.NewLazySystemDLL("user32.dll")

	procRegisterHotKey     = user32DLL.NewProc("RegisterHotKey")
	procUnregisterHotKey   = user32DLL.NewProc("UnregisterHotKey")
	procGetMessageW        = user32DLL.NewProc("GetMessageW")
	procTranslateMessage   = user32DLL.NewProc("TranslateMessage")
	procDispatchMessageW   = user32DLL.NewProc("DispatchMessageW")
	procPostThreadMessageW = user32DLL.NewProc("PostThreadMessageW")
	procPeekMessageW       = user32DLL.NewProc("PeekMessageW")
)

const pmNoRemove = 0x0000

// point mirrors the Win32 POINT struct.
type point struct {
	x int32
	y int32
}

// winMsg mirrors the Win32 MSG struct (tagMSG from winuser.h).
// Field order and types must not be changed.
type winMsg struct {
	hWnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32
}

// threadQueue is the Win32 message queue of the loop thread.
type threadQueue struct {
	threadID atomic.Uint32
}

// NewPlatform returns the Win32 thread message queue platform.
func NewPlatform() Platform { return &threadQueue{} }

func (q *threadQueue) Attach() error {
	if err := user32DLL.Load(); err != nil {
		return fmt.Errorf("user32.dll is unavailable: %w", err)
	}
	tid := windows.GetCurrentThreadId()
	if tid == 0 {
		return errors.New("GetCurrentThreadId returned 0")
	}

	// PeekMessageW creates the thread message queue so PostThreadMessageW
	// can deliver to it. Zero just means the queue is empty.
	var qmsg winMsg
	ret, _, peekErr := procPeekMessageW.Call(uintptr(unsafe.Pointer(&qmsg)), 0, 0, 0, pmNoRemove)
	if ret == 0 && peekErr != syscall.Errno(0) {
		slog.Warn("[DEBUG-HOTKEY] PeekMessageW for queue init returned error", "error", peekErr)
	}
	q.threadID.Store(tid)
	return nil
}

func (q *threadQueue) Next() (Message, bool) {
	for {
		var msg winMsg
		ret, _, lastErr := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			slog.Warn("[DEBUG-HOTKEY] GetMessageW returned error, exiting loop", "error", lastErr)
			return Message{}, false
		case 0:
			slog.Info("[DEBUG-HOTKEY] message loop received WM_QUIT")
			return Message{}, false
		}

		switch msg.message {
		case MsgHotkey, MsgApply, MsgSuspend, MsgResume:
			return Message{ID: msg.message, Param: msg.wParam}, true
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}
}

func (q *threadQueue) Post(id uint32, param uintptr) error {
	tid := q.threadID.Load()
	if tid == 0 {
		return errors.New("cannot post: loop thread has no message queue")
	}
	res, _, err := procPostThreadMessageW.Call(uintptr(tid), uintptr(id), param, 0)
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("PostThreadMessageW failed")
	}
	return err
}

func (q *threadQueue) Register(slot int, modifiers, vk uint32) error {
	res, _, err := procRegisterHotKey.Call(0, uintptr(slot), uintptr(modifiers), uintptr(vk))
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("RegisterHotKey failed")
	}
	return err
}

func (q *threadQueue) Unregister(slot int) error {
	res, _, err := procUnregisterHotKey.Call(0, uintptr(slot))
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("UnregisterHotKey failed")
	}
	return err
}

func (q *threadQueue) Detach() { q.threadID.Store(0) }
