// Package hotkeys owns the global hotkey message loop and chord parsing.
package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"hyperimswitch/internal/binding"
	"hyperimswitch/internal/workerutil"
)

// Loop control messages. Values match the Win32 thread message ids posted to
// the loop thread.
const (
	MsgQuit    uint32 = 0x0012 // WM_QUIT
	MsgHotkey  uint32 = 0x0312 // WM_HOTKEY
	MsgApply   uint32 = 0x0400 + 10
	MsgSuspend uint32 = 0x0400 + 11
	MsgResume  uint32 = 0x0400 + 12
)

const stopTimeout = 2 * time.Second

var (
	ErrLoopNotStarted = errors.New("hotkey loop not started")
	ErrLoopStopped    = errors.New("hotkey loop stopped")
)

// Message is one message taken from the loop thread's queue.
type Message struct {
	ID    uint32
	Param uintptr
}

// Platform is a thread message queue with no window. Attach, Next, Register,
// Unregister and Detach run on the locked loop thread; Post may be called
// from any goroutine once Attach has returned.
type Platform interface {
	Attach() error
	// Next blocks for the next message. It returns false on MsgQuit or when
	// the queue fails.
	Next() (Message, bool)
	Post(id uint32, param uintptr) error
	Register(slot int, modifiers, vk uint32) error
	Unregister(slot int) error
	Detach()
}

// Dispatcher marshals work onto the UI-affine queue.
type Dispatcher interface {
	Dispatch(fn func()) bool
}

// Switcher receives the slot of a triggered hotkey. *switcher.Engine
// satisfies it.
type Switcher interface {
	SwitchByID(slot int) bool
}

// Loop registers hotkeys on a dedicated OS thread and forwards triggers.
type Loop struct {
	platform   Platform
	dispatcher Dispatcher
	switcher   Switcher

	mu      sync.Mutex
	pending []binding.HotkeyBinding
	dirty   bool

	lifecycle sync.Mutex
	started   bool
	stopped   bool
	done      chan struct{}

	// Loop thread only.
	registered map[int]struct{}
	suspended  bool

	snapshot      atomic.Pointer[[]int]
	suspendedFlag atomic.Bool
}

func NewLoop(platform Platform, dispatcher Dispatcher, sw Switcher) *Loop {
	l := &Loop{
		platform:   platform,
		dispatcher: dispatcher,
		switcher:   sw,
		registered: map[int]struct{}{},
	}
	l.snapshot.Store(&[]int{})
	return l
}

// Start launches the loop thread, waits until its queue exists, then applies
// any bindings provided beforehand.
func (l *Loop) Start() error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if l.stopped {
		return ErrLoopStopped
	}
	if l.started {
		return nil
	}

	ready := make(chan error, 1)
	done := make(chan struct{})
	go l.run(ready, done)
	if err := <-ready; err != nil {
		return fmt.Errorf("start hotkey loop: %w", err)
	}
	l.started = true
	l.done = done

	l.mu.Lock()
	dirty := l.dirty
	l.mu.Unlock()
	if dirty {
		l.post(MsgApply)
	}
	return nil
}

// ApplyBindings buffers a snapshot and wakes the loop. It never blocks on
// the loop thread.
func (l *Loop) ApplyBindings(bindings []binding.HotkeyBinding) {
	l.mu.Lock()
	l.pending = binding.CloneAll(bindings)
	l.dirty = true
	l.mu.Unlock()

	if l.isRunning() {
		l.post(MsgApply)
	}
}

// Suspend unregisters every hotkey until Resume.
func (l *Loop) Suspend() error {
	if !l.isRunning() {
		return ErrLoopNotStarted
	}
	return l.post(MsgSuspend)
}

// Resume re-registers the buffered bindings.
func (l *Loop) Resume() error {
	if !l.isRunning() {
		return ErrLoopNotStarted
	}
	return l.post(MsgResume)
}

// Stop ends the loop and waits up to two seconds for it to unregister.
func (l *Loop) Stop() error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	if !l.started || l.stopped {
		l.stopped = true
		return nil
	}
	l.stopped = true

	postErr := l.platform.Post(MsgQuit, 0)
	if postErr != nil {
		slog.Warn("[DEBUG-HOTKEY] post quit failed", "error", postErr)
	}

	timer := time.NewTimer(stopTimeout)
	defer timer.Stop()
	select {
	case <-l.done:
		return postErr
	case <-timer.C:
		slog.Warn("[DEBUG-HOTKEY] message loop stop timed out, thread may leak")
		return errors.Join(postErr, errors.New("hotkey message loop stop timed out"))
	}
}

// Registered returns the slots live with the OS after the last pass.
func (l *Loop) Registered() []int {
	return slices.Clone(*l.snapshot.Load())
}

// Suspended reports whether the loop has processed a Suspend without a
// matching Resume.
func (l *Loop) Suspended() bool { return l.suspendedFlag.Load() }

func (l *Loop) isRunning() bool {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()
	return l.started && !l.stopped
}

func (l *Loop) post(id uint32) error {
	if err := l.platform.Post(id, 0); err != nil {
		slog.Warn("[DEBUG-HOTKEY] post loop message failed", "msg", fmt.Sprintf("0x%04X", id), "error", err)
		return err
	}
	return nil
}

func (l *Loop) run(ready chan<- error, done chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	if err := l.platform.Attach(); err != nil {
		ready <- err
		return
	}
	defer l.platform.Detach()
	ready <- nil

	slog.Info("[DEBUG-HOTKEY] message loop started")
	for {
		msg, ok := l.platform.Next()
		if !ok {
			break
		}
		workerutil.RecoverTask("hotkey-message", func() { l.handle(msg) })
	}
	l.unregisterAll()
	l.publish()
	slog.Info("[DEBUG-HOTKEY] message loop exited")
}

func (l *Loop) handle(msg Message) {
	switch msg.ID {
	case MsgHotkey:
		l.trigger(int(msg.Param))
	case MsgApply:
		if l.suspended {
			slog.Debug("[DEBUG-HOTKEY] bindings buffered while suspended")
			return
		}
		l.mu.Lock()
		dirty := l.dirty
		l.mu.Unlock()
		if dirty {
			l.reregister()
		}
	case MsgSuspend:
		l.unregisterAll()
		l.suspended = true
		l.suspendedFlag.Store(true)
		l.publish()
		slog.Info("[DEBUG-HOTKEY] suspended")
	case MsgResume:
		l.suspended = false
		l.suspendedFlag.Store(false)
		l.reregister()
		slog.Info("[DEBUG-HOTKEY] resumed", "registered", len(l.registered))
	}
}

func (l *Loop) trigger(slot int) {
	slog.Debug("[DEBUG-HOTKEY] hotkey triggered", "slot", slot)
	if l.switcher == nil {
		return
	}
	fn := func() { l.switcher.SwitchByID(slot) }
	if l.dispatcher == nil {
		fn()
		return
	}
	if !l.dispatcher.Dispatch(fn) {
		slog.Warn("[DEBUG-HOTKEY] dispatcher rejected hotkey trigger", "slot", slot)
	}
}

// reregister replaces every live registration with the pending bindings.
func (l *Loop) reregister() {
	l.mu.Lock()
	bindings := l.pending
	l.dirty = false
	l.mu.Unlock()

	l.unregisterAll()
	for _, b := range bindings {
		if !b.IsValid() {
			slog.Info("[DEBUG-HOTKEY] skipping binding without key", "slot", b.SlotID, "name", b.DisplayName)
			continue
		}
		mods := b.Modifiers | uint32(ModNoRepeat)
		if err := l.platform.Register(b.SlotID, mods, b.VirtualKey); err != nil {
			slog.Warn("[DEBUG-HOTKEY] RegisterHotKey failed",
				"slot", b.SlotID, "chord", FormatChord(b.Modifiers, b.VirtualKey), "error", err)
			continue
		}
		l.registered[b.SlotID] = struct{}{}
		slog.Debug("[DEBUG-HOTKEY] registered", "slot", b.SlotID, "chord", FormatChord(b.Modifiers, b.VirtualKey))
	}
	l.publish()
}

func (l *Loop) unregisterAll() {
	for slot := range l.registered {
		if err := l.platform.Unregister(slot); err != nil {
			slog.Warn("[DEBUG-HOTKEY] UnregisterHotKey failed", "slot", slot, "error", err)
		}
		delete(l.registered, slot)
	}
}

func (l *Loop) publish() {
	slots := make([]int, 0, len(l.registered))
	for slot := range l.registered {
		slots = append(slots, slot)
	}
	slices.Sort(slots)
	l.snapshot.Store(&slots)
}
