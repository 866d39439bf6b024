// Package diagnostics drives the switch engine through every retry-chain
// combination and checks the resulting language.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"hyperimswitch/internal/binding"
	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/switcher"
	"hyperimswitch/internal/workerutil"
)

var (
	ErrAlreadyRunning  = errors.New("a diagnostic run is already in progress")
	ErrMissingBindings = errors.New("missing required bindings: need 0x0409 keyboard layout, 0x0411 input processor and a Chinese or WeChat input processor")
)

const (
	defaultForegroundDelay = 5 * time.Second
	defaultSwitchSettle    = 150 * time.Millisecond
	defaultCheckSettle     = 180 * time.Millisecond
)

// Engine is the switch engine surface the runner drives.
type Engine interface {
	SwitchByIDSync(slot int, timeout time.Duration) bool
	CurrentLanguageSync(timeout time.Duration) (profile.LangID, bool)
	Diagnostics() switcher.DiagnosticsOptions
	SetDiagnostics(opts switcher.DiagnosticsOptions)
}

// Recorder persists finished reports.
type Recorder interface {
	Record(ctx context.Context, report Report) error
}

// Config wires a Runner. Zero durations take the production values.
type Config struct {
	Engine Engine
	// Bindings returns the current settings snapshot.
	Bindings func() []binding.HotkeyBinding
	Recorder Recorder

	// ForegroundDelay gives the operator time to focus a target app.
	ForegroundDelay time.Duration
	SwitchSettle    time.Duration
	CheckSettle     time.Duration
	SwitchTimeout   time.Duration
	QueryTimeout    time.Duration

	// OnFinish runs once after every run ends, after flags are restored.
	OnFinish func()
}

type Runner struct {
	cfg Config

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu   sync.Mutex
	last *Report
}

func NewRunner(cfg Config) *Runner {
	if cfg.ForegroundDelay <= 0 {
		cfg.ForegroundDelay = defaultForegroundDelay
	}
	if cfg.SwitchSettle <= 0 {
		cfg.SwitchSettle = defaultSwitchSettle
	}
	if cfg.CheckSettle <= 0 {
		cfg.CheckSettle = defaultCheckSettle
	}
	if cfg.SwitchTimeout <= 0 {
		cfg.SwitchTimeout = switcher.DefaultSwitchTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = switcher.DefaultLanguageTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{cfg: cfg, ctx: ctx, cancel: cancel}
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool { return r.running.Load() }

// LastReport returns the most recent finished report.
func (r *Runner) LastReport() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

// RunAllScenariosAsync starts a run in the background. It returns false,
// and does nothing else, if one is already in progress.
func (r *Runner) RunAllScenariosAsync() bool {
	if !r.running.CompareAndSwap(false, true) {
		slog.Warn("[DEBUG-DIAG] " + ErrAlreadyRunning.Error())
		return false
	}
	r.wg.Go(func() {
		defer r.running.Store(false)
		defer r.notifyFinish()
		workerutil.RecoverTask("diagnostics", func() {
			_, _ = r.run(r.ctx)
		})
	})
	return true
}

// Run performs a complete run on the calling goroutine.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRunning
	}
	defer r.running.Store(false)
	defer r.notifyFinish()
	return r.run(ctx)
}

func (r *Runner) notifyFinish() {
	if r.cfg.OnFinish != nil {
		workerutil.RecoverTask("diagnostics-finish", r.cfg.OnFinish)
	}
}

// Close cancels a run in progress and waits for it to restore the flags.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) run(ctx context.Context) (report Report, err error) {
	report = Report{ID: uuid.New(), StartedAt: time.Now()}
	slots, err := ResolveSlots(r.bindings())
	if err != nil {
		slog.Warn("[DEBUG-DIAG] "+err.Error(), "run", report.ID)
		return report, err
	}
	report.Slots = slots

	engine := r.cfg.Engine
	snapshot := engine.Diagnostics()
	defer func() {
		engine.SetDiagnostics(snapshot)
		report.FinishedAt = time.Now()
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-DIAG] run aborted by panic", "run", report.ID, "panic", rec)
			err = fmt.Errorf("diagnostic run panicked: %v", rec)
			report.Error = err.Error()
		}
		r.finish(report)
	}()

	baseline := snapshot
	baseline.EnableRetryChain = true
	baseline.RetryEnableProfile = false

	slog.Info("[DEBUG-DIAG] ===== auto diagnostics start =====",
		"run", report.ID, "en", slots.English, "jp", slots.Japanese, "target", slots.Target,
		"targetLang", slots.TargetLang, "targetName", slots.TargetName)

	combos := Combinations()
	for i, combo := range combos {
		opts := baseline
		opts.RetryChangeCurrentLanguage = combo.ChangeCurrentLanguage
		opts.RetrySetDefaultProfile = combo.SetDefaultProfile
		opts.RetryForegroundLangRequest = combo.ForegroundLangRequest
		engine.SetDiagnostics(opts)

		slog.Info(fmt.Sprintf("[DEBUG-DIAG] scenario %d/%d", i+1, len(combos)), "flags", combo.String())
		slog.Info("[DEBUG-DIAG] switch to the target app now", "delay", r.cfg.ForegroundDelay)
		if err = sleep(ctx, r.cfg.ForegroundDelay); err != nil {
			report.Error = err.Error()
			return report, err
		}

		var result ScenarioResult
		result, err = r.scenario(ctx, i+1, combo, slots)
		if err != nil {
			report.Error = err.Error()
			return report, err
		}
		report.Scenarios = append(report.Scenarios, result)
		slog.Info(fmt.Sprintf("[DEBUG-DIAG] scenario %d/%d result", i+1, len(combos)),
			"pass", result.Passed(), "elapsed", result.Elapsed)
	}

	slog.Info("[DEBUG-DIAG] ===== auto diagnostics end =====", "run", report.ID, "passed", report.PassCount())
	return report, nil
}

func (r *Runner) scenario(ctx context.Context, index int, combo Combination, slots Slots) (ScenarioResult, error) {
	started := time.Now()
	result := ScenarioResult{Index: index, Combination: combo}

	jp, err := r.check(ctx, slots.English, slots.Japanese, profile.LangJapanese)
	if err != nil {
		return result, err
	}
	result.Japanese = jp
	slog.Info("[DEBUG-DIAG]   check JP", "lang", jp.GotLang, "pass", jp.Passed())

	target, err := r.check(ctx, slots.English, slots.Target, slots.TargetLang)
	if err != nil {
		return result, err
	}
	result.Target = target
	slog.Info("[DEBUG-DIAG]   check target", "lang", target.GotLang, "want", target.WantLang, "pass", target.Passed())

	result.Elapsed = time.Since(started)
	return result, nil
}

// check switches to English, then to slot, and reads the language back.
func (r *Runner) check(ctx context.Context, english, slot int, want profile.LangID) (Check, error) {
	c := Check{Slot: slot, WantLang: want}
	engine := r.cfg.Engine

	completed := engine.SwitchByIDSync(english, r.cfg.SwitchTimeout)
	if err := sleep(ctx, r.cfg.SwitchSettle); err != nil {
		return c, err
	}
	completed = engine.SwitchByIDSync(slot, r.cfg.SwitchTimeout) && completed
	if err := sleep(ctx, r.cfg.CheckSettle); err != nil {
		return c, err
	}
	lang, ok := engine.CurrentLanguageSync(r.cfg.QueryTimeout)
	c.Completed = completed && ok
	c.GotLang = lang
	c.LangPassed = ok && lang == want
	return c, nil
}

func (r *Runner) bindings() []binding.HotkeyBinding {
	if r.cfg.Bindings == nil {
		return nil
	}
	return r.cfg.Bindings()
}

func (r *Runner) finish(report Report) {
	r.mu.Lock()
	r.last = &report
	r.mu.Unlock()

	if r.cfg.Recorder == nil {
		return
	}
	// The run context may already be cancelled; the record must still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), 5*time.Second)
	defer cancel()
	if err := r.cfg.Recorder.Record(ctx, report); err != nil {
		slog.Warn("[DEBUG-DIAG] failed to record report", "run", report.ID, "error", err)
	}
}

// ResolveSlots picks the English keyboard layout, the Japanese input
// processor and the target input processor: WeChat by name, else the first
// Simplified Chinese one.
func ResolveSlots(bindings []binding.HotkeyBinding) (Slots, error) {
	var (
		en, jp, target *binding.HotkeyBinding
		chinese        *binding.HotkeyBinding
	)
	for i := range bindings {
		b := &bindings[i]
		switch {
		case b.ProfileType == profile.TypeKeyboardLayout && b.LangID == profile.LangEnglishUS:
			if en == nil {
				en = b
			}
		case b.ProfileType != profile.TypeInputProcessor:
		case b.LangID == profile.LangJapanese:
			if jp == nil {
				jp = b
			}
		case profile.IsWeChatName(b.DisplayName):
			if target == nil {
				target = b
			}
		case b.LangID == profile.LangChineseSimplified:
			if chinese == nil {
				chinese = b
			}
		}
	}
	if target == nil {
		target = chinese
	}
	if en == nil || jp == nil || target == nil {
		return Slots{}, ErrMissingBindings
	}
	return Slots{
		English:    en.SlotID,
		Japanese:   jp.SlotID,
		Target:     target.SlotID,
		TargetLang: target.LangID,
		TargetName: target.DisplayName,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
