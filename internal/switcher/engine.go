// Package switcher runs the input-method activation protocol on a dedicated
// thread-affine worker.
package switcher

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"hyperimswitch/internal/binding"
	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/tsf"
	"hyperimswitch/internal/win32"
	"hyperimswitch/internal/workerutil"
)

var (
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("switch engine is closed")
	// ErrQueueTimeout means the caller stopped waiting. The task still runs.
	ErrQueueTimeout = errors.New("switch engine task did not complete before timeout")
)

const (
	DefaultSwitchTimeout   = 1500 * time.Millisecond
	DefaultLanguageTimeout = 1000 * time.Millisecond

	closeTimeout = 2 * time.Second
)

// Windowing is the subset of the desktop the protocol posts to.
type Windowing interface {
	ForegroundWindow() win32.HWND
	WindowThreadProcessID(hwnd win32.HWND) (threadID, processID uint32)
	ProcessName(pid uint32) string
	PostInputLangChangeRequest(hwnd win32.HWND, hkl profile.LayoutHandle) error
	ActivateKeyboardLayout(hkl profile.LayoutHandle, flags uint32) (profile.LayoutHandle, error)
	DefaultIMEWindow(hwnd win32.HWND) win32.HWND
	SendIMEControl(imeWnd win32.HWND, command, value uintptr) uintptr
}

// Config wires an Engine to its native collaborators.
type Config struct {
	Subsystem   tsf.Subsystem
	Windowing   Windowing
	Diagnostics DiagnosticsOptions
	Timing      Timing
}

// Stats is a point-in-time view of the worker queue.
type Stats struct {
	Submitted uint64
	Completed uint64
	Pending   int
	Panics    uint64
}

// Engine owns the worker thread and its task queue. All subsystem calls run
// on that thread in submission order.
type Engine struct {
	sub    tsf.Subsystem
	win    Windowing
	timing Timing

	bindings atomic.Pointer[map[int]binding.HotkeyBinding]

	diagMu sync.RWMutex
	diag   DiagnosticsOptions

	seq       atomic.Uint64
	submitted atomic.Uint64
	completed atomic.Uint64
	panics    atomic.Uint64

	queue     *taskQueue
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewEngine starts the worker and returns once it is consuming tasks.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		sub:    cfg.Subsystem,
		win:    cfg.Windowing,
		timing: cfg.Timing.withDefaults(),
		diag:   cfg.Diagnostics,
		queue:  newTaskQueue(),
		done:   make(chan struct{}),
	}
	empty := map[int]binding.HotkeyBinding{}
	e.bindings.Store(&empty)

	ready := make(chan struct{})
	go e.run(ready)
	<-ready
	return e
}

func (e *Engine) run(ready chan<- struct{}) {
	// The thread is never unlocked. When this goroutine returns the runtime
	// terminates the thread instead of handing its apartment to other work.
	runtime.LockOSThread()
	defer close(e.done)

	if err := e.sub.InitThread(); err != nil {
		slog.Error("[DEBUG-SWITCH] apartment init failed, switches will fail", "error", err)
	} else {
		defer e.sub.UninitThread()
	}
	slog.Info("[DEBUG-SWITCH] worker thread started")
	close(ready)

	for {
		t, ok := e.queue.pop()
		if !ok {
			slog.Info("[DEBUG-SWITCH] worker thread exiting")
			return
		}
		if workerutil.RecoverTask("switch-"+t.name, t.fn) {
			e.panics.Add(1)
		}
		e.completed.Add(1)
		if t.done != nil {
			close(t.done)
		}
	}
}

// UpdateBindings replaces the slot lookup table.
func (e *Engine) UpdateBindings(bindings []binding.HotkeyBinding) {
	table := binding.BySlot(bindings)
	e.bindings.Store(&table)
	slog.Debug("[DEBUG-SWITCH] bindings updated", "count", len(table))
}

func (e *Engine) lookup(slot int) (binding.HotkeyBinding, bool) {
	b, ok := (*e.bindings.Load())[slot]
	return b, ok
}

// SwitchByID queues one activation for slot. It reports false when the slot
// is unknown or the engine is closed.
func (e *Engine) SwitchByID(slot int) bool {
	b, ok := e.lookup(slot)
	if !ok {
		slog.Warn("[DEBUG-SWITCH] SwitchByID slot not found", "slot", slot)
		return false
	}
	id := e.seq.Add(1)
	return e.submit(task{name: "activate", fn: func() { e.activate(b, id) }})
}

// SwitchByIDSync is SwitchByID that waits up to timeout for the activation
// to finish. A timeout leaves the task queued.
func (e *Engine) SwitchByIDSync(slot int, timeout time.Duration) bool {
	b, ok := e.lookup(slot)
	if !ok {
		slog.Warn("[DEBUG-SWITCH] SwitchByIDSync slot not found", "slot", slot)
		return false
	}
	id := e.seq.Add(1)
	done := make(chan struct{})
	if !e.submit(task{name: "activate", fn: func() { e.activate(b, id) }, done: done}) {
		return false
	}
	if !wait(done, timeout) {
		slog.Warn("[DEBUG-SWITCH] SwitchByIDSync timed out", "slot", slot, "switch", id, "timeout", timeout)
		return false
	}
	return true
}

// CurrentLanguageSync reads the current language on the worker, after every
// previously queued switch.
func (e *Engine) CurrentLanguageSync(timeout time.Duration) (profile.LangID, bool) {
	var (
		lang profile.LangID
		ok   bool
	)
	err := e.WithProfiles(timeout, func(p tsf.Profiles) {
		got, s := p.GetCurrentLanguage()
		if s.OK() {
			lang, ok = got, true
		}
	})
	if err != nil {
		slog.Debug("[DEBUG-SWITCH] CurrentLanguageSync failed", "error", err)
		return 0, false
	}
	return lang, ok
}

// WithProfiles runs fn on the worker with a fresh profiles session.
func (e *Engine) WithProfiles(timeout time.Duration, fn func(tsf.Profiles)) error {
	var openErr error
	done := make(chan struct{})
	submitted := e.submit(task{name: "profiles", done: done, fn: func() {
		p, err := e.sub.OpenProfiles()
		if err != nil {
			openErr = err
			return
		}
		defer p.Release()
		fn(p)
	}})
	if !submitted {
		return ErrClosed
	}
	if !wait(done, timeout) {
		return ErrQueueTimeout
	}
	if openErr != nil {
		return fmt.Errorf("open input processor profiles: %w", openErr)
	}
	return nil
}

// Diagnostics returns a copy of the current options.
func (e *Engine) Diagnostics() DiagnosticsOptions {
	e.diagMu.RLock()
	defer e.diagMu.RUnlock()
	return e.diag
}

// SetDiagnostics replaces the options. Tasks already running keep the copy
// they started with.
func (e *Engine) SetDiagnostics(opts DiagnosticsOptions) {
	e.diagMu.Lock()
	defer e.diagMu.Unlock()
	e.diag = opts
}

// Stats reports queue counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Pending:   e.queue.len(),
		Panics:    e.panics.Load(),
	}
}

// Close stops accepting tasks, lets queued tasks drain, and waits a bounded
// time for the worker to exit.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.queue.close()
		if !wait(e.done, closeTimeout) {
			slog.Warn("[DEBUG-SWITCH] worker stop timed out, thread may leak", "pending", e.queue.len())
			e.closeErr = fmt.Errorf("switch worker stop timed out after %s", closeTimeout)
		}
	})
	return e.closeErr
}

func (e *Engine) submit(t task) bool {
	if !e.queue.push(t) {
		slog.Warn("[DEBUG-SWITCH] task rejected, engine closed", "task", t.name)
		return false
	}
	e.submitted.Add(1)
	return true
}

// wait blocks on done for up to timeout. A non-positive timeout waits forever.
func wait(done <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
