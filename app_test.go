package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"hyperimswitch/internal/binding"
	"hyperimswitch/internal/config"
	"hyperimswitch/internal/diagnostics"
	"hyperimswitch/internal/hotkeys"
	"hyperimswitch/internal/ipc"
	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/switcher"
	"hyperimswitch/internal/testutil"
	"hyperimswitch/internal/tsf/tsftest"
)

type fakeLoop struct {
	mu        sync.Mutex
	applied   [][]binding.HotkeyBinding
	started   int
	stopped   int
	suspended bool
}

func (l *fakeLoop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started++
	return nil
}

func (l *fakeLoop) ApplyBindings(bs []binding.HotkeyBinding) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applied = append(l.applied, binding.CloneAll(bs))
}

func (l *fakeLoop) Suspend() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suspended = true
	return nil
}

func (l *fakeLoop) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.suspended = false
	return nil
}

func (l *fakeLoop) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped++
	return nil
}

func (l *fakeLoop) Registered() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.applied) == 0 || l.suspended {
		return nil
	}
	var out []int
	for _, b := range l.applied[len(l.applied)-1] {
		if b.IsValid() {
			out = append(out, b.SlotID)
		}
	}
	return out
}

func (l *fakeLoop) Suspended() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suspended
}

func (l *fakeLoop) lastApplied() []binding.HotkeyBinding {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.applied) == 0 {
		return nil
	}
	return l.applied[len(l.applied)-1]
}

type fakeAutoStart struct {
	mu      sync.Mutex
	enabled bool
	sets    int
}

func (f *fakeAutoStart) IsEnabled() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled, nil
}

func (f *fakeAutoStart) SetEnabled(enable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = enable
	f.sets++
	return nil
}

type testNames struct{}

func (testNames) LayoutDisplayText(string) (string, bool) { return "", false }

func (testNames) LocaleName(lang profile.LangID) (string, bool) {
	switch lang {
	case profile.LangEnglishUS:
		return "en-US", true
	case profile.LangJapanese:
		return "ja-JP", true
	}
	return "", false
}

type testApp struct {
	*App
	sys  *tsftest.System
	loop *fakeLoop
	auto *fakeAutoStart
}

var (
	jpCLSID   = tsftest.GUID(1)
	jpProfile = tsftest.GUID(2)
	cnCLSID   = tsftest.GUID(3)
	cnProfile = tsftest.GUID(4)
)

// settingsYAML binds slot 1 to US English, 2 to the Japanese IME and 3 to
// WeChat, numbered from firstSlot.
func settingsYAML(firstSlot int, layoutHandle string) string {
	handle := ""
	if layoutHandle != "" {
		handle = fmt.Sprintf("    layout_handle: %q\n", layoutHandle)
	}
	return fmt.Sprintf(`auto_start: true
hotkeys:
  - slot: %d
    profile_type: keyboard_layout
    lang_id: "0x0409"
%s    display_name: US
    hotkey: Ctrl+Alt+1
  - slot: %d
    profile_type: input_processor
    lang_id: "0x0411"
    clsid: %q
    profile_guid: %q
    display_name: Microsoft IME
    hotkey: Ctrl+Alt+2
  - slot: %d
    profile_type: input_processor
    lang_id: "0x0804"
    clsid: %q
    profile_guid: %q
    display_name: 微信输入法
    hotkey: Ctrl+Alt+3
`, firstSlot, handle, firstSlot+1, jpCLSID.String(), jpProfile.String(), firstSlot+2, cnCLSID.String(), cnProfile.String())
}

func writeSettings(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
}

func newTestApp(t *testing.T, settings string) *testApp {
	t.Helper()
	return newTestAppWith(t, settings, nil)
}

// newTestAppWith lets configure adjust the options before startup.
func newTestAppWith(t *testing.T, settings string, configure func(*appOptions)) *testApp {
	t.Helper()
	testutil.IsolateDataDir(t)
	path := config.DefaultPath()
	if settings != "" {
		writeSettings(t, path, settings)
	}

	sys := tsftest.New()
	sys.AddKeyboardLayout(0x04090409)
	sys.AddInputProcessor(profile.LangJapanese, jpCLSID, jpProfile, "Microsoft IME")
	sys.AddInputProcessor(0x0804, cnCLSID, cnProfile, "微信输入法")

	loop := &fakeLoop{}
	auto := &fakeAutoStart{}
	opts := appOptions{
		Subsystem: sys,
		Windowing: sys,
		Layouts:   sys,
		Names:     testNames{},
		NewLoop: func(hotkeys.Dispatcher, hotkeys.Switcher) hotkeyLoop {
			return loop
		},
		AutoStart:    auto,
		SettingsPath: path,
		HistoryPath:  filepath.Join(t.TempDir(), historyFileName),
		Timing: switcher.Timing{
			LanguageWait: 50 * time.Millisecond,
			LanguagePoll: time.Millisecond,
			VerifyDelays: []time.Duration{time.Millisecond, time.Millisecond},
		},
		Diagnostics: diagnostics.Config{
			ForegroundDelay: time.Millisecond,
			SwitchSettle:    time.Millisecond,
			CheckSettle:     time.Millisecond,
		},
	}
	if configure != nil {
		configure(&opts)
	}
	app := NewApp(opts)
	if err := app.startup(context.Background()); err != nil {
		t.Fatalf("startup: %v", err)
	}
	t.Cleanup(app.shutdown)
	return &testApp{App: app, sys: sys, loop: loop, auto: auto}
}

func slotIDs(bs []binding.HotkeyBinding) []int {
	out := make([]int, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.SlotID)
	}
	return out
}

func TestStartupAppliesSettings(t *testing.T) {
	app := newTestApp(t, settingsYAML(1, "0x04090409"))

	if got := app.enumerator.Catalog().Len(); got != 3 {
		t.Fatalf("catalog size = %d, want 3", got)
	}
	if app.loop.started != 1 {
		t.Fatalf("loop started %d times, want 1", app.loop.started)
	}
	if got := slotIDs(app.loop.lastApplied()); !slices.Equal(got, []int{1, 2, 3}) {
		t.Fatalf("applied slots = %v, want [1 2 3]", got)
	}
	if !app.auto.enabled || app.auto.sets != 1 {
		t.Fatalf("autostart enabled=%v sets=%d, want enabled once", app.auto.enabled, app.auto.sets)
	}
	if !app.engine.SwitchByIDSync(2, time.Second) {
		t.Fatal("SwitchByIDSync(2) = false")
	}
	if got := app.sys.CurrentLanguage(); got != profile.LangJapanese {
		t.Fatalf("current language = %s, want 0x0411", got)
	}
}

func TestStartupCreatesMissingSettingsFile(t *testing.T) {
	app := newTestApp(t, "")

	if _, err := os.Stat(app.opts.SettingsPath); err != nil {
		t.Fatalf("settings file not created: %v", err)
	}
	if got := app.loop.lastApplied(); len(got) != 0 {
		t.Fatalf("applied %d bindings, want none", len(got))
	}
	if app.auto.sets != 0 {
		t.Fatalf("autostart touched %d times, want 0", app.auto.sets)
	}
}

func TestStartupPersistsRepairedBindings(t *testing.T) {
	app := newTestApp(t, settingsYAML(0, ""))

	if got := slotIDs(app.bindingsSnapshot()); !slices.Equal(got, []int{1, 2, 3}) {
		t.Fatalf("active slots = %v, want [1 2 3]", got)
	}
	saved, err := config.Load(app.opts.SettingsPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	bs, err := saved.Bindings()
	if err != nil {
		t.Fatalf("Bindings: %v", err)
	}
	if got := slotIDs(bs); !slices.Equal(got, []int{1, 2, 3}) {
		t.Fatalf("saved slots = %v, want [1 2 3]", got)
	}
	if bs[0].LayoutHandle != 0x04090409 {
		t.Fatalf("saved layout handle = %s, want 0x4090409", bs[0].LayoutHandle)
	}
}

func TestStartupKeepsFileWithInvalidEntries(t *testing.T) {
	content := settingsYAML(0, "") + `  - slot: 4
    profile_type: keyboard_layout
    lang_id: "0x0409"
    hotkey: Hyper+4
`
	app := newTestApp(t, content)

	raw, err := os.ReadFile(app.opts.SettingsPath)
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	if string(raw) != content {
		t.Fatalf("settings file rewritten despite invalid entry:\n%s", raw)
	}
	if got := slotIDs(app.bindingsSnapshot()); !slices.Equal(got, []int{1, 2, 3}) {
		t.Fatalf("active slots = %v, want the three parseable entries", got)
	}
}

func TestApplySettingsUpdatesDiagnostics(t *testing.T) {
	app := newTestApp(t, settingsYAML(1, "0x04090409"))

	s := app.getSettingsSnapshot()
	s.SwitchDiagnostics.RetrySetDefaultProfile = false
	app.applySettings(s, "test")

	if app.engine.Diagnostics().RetrySetDefaultProfile {
		t.Fatal("RetrySetDefaultProfile still enabled after apply")
	}
	if len(app.loop.applied) != 2 {
		t.Fatalf("ApplyBindings called %d times, want 2", len(app.loop.applied))
	}
}

func TestExecuteCommands(t *testing.T) {
	app := newTestApp(t, settingsYAML(1, "0x04090409"))

	tests := []struct {
		name     string
		req      ipc.Request
		wantCode int
		contains string
	}{
		{name: "switch without slot", req: ipc.Request{Command: ipc.CommandSwitch}, wantCode: 1, contains: "usage"},
		{name: "switch invalid slot", req: ipc.Request{Command: ipc.CommandSwitch, Args: []string{"x"}}, wantCode: 1, contains: "invalid slot"},
		{name: "switch unknown slot", req: ipc.Request{Command: ipc.CommandSwitch, Args: []string{"9"}}, wantCode: 1, contains: "no binding"},
		{name: "switch queued", req: ipc.Request{Command: ipc.CommandSwitch, Args: []string{"3"}}, contains: "queued"},
		{
			name:     "switch sync",
			req:      ipc.Request{Command: ipc.CommandSwitch, Args: []string{"2"}, Flags: map[string]string{"sync": "true"}},
			contains: "switched to slot 2",
		},
		{name: "current", req: ipc.Request{Command: ipc.CommandCurrent}, contains: "0x0411 Japanese"},
		{name: "status", req: ipc.Request{Command: ipc.CommandStatus}, contains: "Ctrl+Alt+2"},
		{name: "profiles table", req: ipc.Request{Command: ipc.CommandProfiles}, contains: "keyboard_layout"},
		{name: "logs without capture", req: ipc.Request{Command: ipc.CommandLogs}, wantCode: 1, contains: "unavailable"},
		{name: "history bad limit", req: ipc.Request{Command: ipc.CommandHistory, Flags: map[string]string{"limit": "-1"}}, wantCode: 1, contains: "invalid --limit"},
		{name: "history empty", req: ipc.Request{Command: ipc.CommandHistory}, contains: "RUN"},
		{name: "diagnose last before run", req: ipc.Request{Command: ipc.CommandDiagnose, Flags: map[string]string{"last": "true"}}, wantCode: 1, contains: "no diagnostic run"},
		{name: "unknown", req: ipc.Request{Command: "dance"}, wantCode: 1, contains: `unknown command "dance"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := app.Execute(tt.req)
			if resp.ExitCode != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (stdout=%q stderr=%q)", resp.ExitCode, tt.wantCode, resp.Stdout, resp.Stderr)
			}
			if got := resp.Stdout + resp.Stderr; !strings.Contains(got, tt.contains) {
				t.Fatalf("output %q does not contain %q", got, tt.contains)
			}
		})
	}
}

func TestExecuteProfilesJSON(t *testing.T) {
	app := newTestApp(t, settingsYAML(1, "0x04090409"))

	resp := app.Execute(ipc.Request{Command: ipc.CommandProfiles, Flags: map[string]string{"json": "true", "refresh": "true"}})
	if resp.ExitCode != 0 {
		t.Fatalf("profiles failed: %q", resp.Stderr)
	}
	var views []profileView
	if err := json.Unmarshal([]byte(resp.Stdout), &views); err != nil {
		t.Fatalf("decode profiles: %v\n%s", err, resp.Stdout)
	}
	if len(views) != 3 {
		t.Fatalf("profiles = %d, want 3", len(views))
	}
	for _, v := range views {
		switch v.Type {
		case "input_processor":
			if v.CLSID == "" || v.LayoutHandle != "" {
				t.Fatalf("input processor view = %+v", v)
			}
		case "keyboard_layout":
			if v.LayoutHandle != "0x4090409" || v.CLSID != "" {
				t.Fatalf("keyboard layout view = %+v", v)
			}
		default:
			t.Fatalf("unexpected type %q", v.Type)
		}
	}
}

func TestExecuteSuspendResume(t *testing.T) {
	app := newTestApp(t, settingsYAML(1, "0x04090409"))

	if resp := app.Execute(ipc.Request{Command: ipc.CommandSuspend}); resp.ExitCode != 0 {
		t.Fatalf("suspend: %q", resp.Stderr)
	}
	if !app.loop.Suspended() {
		t.Fatal("loop not suspended")
	}
	if got := statusField(t, app.Execute(ipc.Request{Command: ipc.CommandStatus}), "suspended"); got != "true" {
		t.Fatalf("status suspended = %q, want true", got)
	}
	if resp := app.Execute(ipc.Request{Command: ipc.CommandResume}); resp.ExitCode != 0 {
		t.Fatalf("resume: %q", resp.Stderr)
	}
	if app.loop.Suspended() {
		t.Fatal("loop still suspended")
	}
}

func statusField(t *testing.T, resp ipc.Response, name string) string {
	t.Helper()
	for _, line := range strings.Split(resp.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == name {
			return fields[1]
		}
	}
	t.Fatalf("status has no %q line:\n%s", name, resp.Stdout)
	return ""
}

func TestExecuteReloadAppliesEditedFile(t *testing.T) {
	app := newTestApp(t, settingsYAML(1, "0x04090409"))

	writeSettings(t, app.opts.SettingsPath, `auto_start: false
hotkeys:
  - slot: 1
    profile_type: keyboard_layout
    lang_id: "0x0409"
    layout_handle: "0x04090409"
    hotkey: Ctrl+Alt+1
`)
	resp := app.Execute(ipc.Request{Command: ipc.CommandReload})
	if resp.ExitCode != 0 || !strings.Contains(resp.Stdout, "reloaded 1") {
		t.Fatalf("reload = %+v", resp)
	}
	if got := slotIDs(app.loop.lastApplied()); !slices.Equal(got, []int{1}) {
		t.Fatalf("applied slots = %v, want [1]", got)
	}
	if app.engine.SwitchByID(2) {
		t.Fatal("slot 2 still bound after reload")
	}
	if app.auto.enabled {
		t.Fatal("autostart still enabled after reload")
	}
}

func TestExecuteDiagnoseRecordsHistory(t *testing.T) {
	app := newTestApp(t, settingsYAML(1, "0x04090409"))
	before := app.engine.Diagnostics()

	resp := app.Execute(ipc.Request{Command: ipc.CommandDiagnose})
	if resp.ExitCode != 0 {
		t.Fatalf("diagnose: %q", resp.Stderr)
	}
	testutil.Eventually(t, 10*time.Second, func() bool {
		_, ok := app.runner.LastReport()
		return ok && !app.runner.Running()
	}, "diagnostic run did not finish")

	report, _ := app.runner.LastReport()
	if len(report.Scenarios) != 8 {
		t.Fatalf("scenarios = %d, want 8", len(report.Scenarios))
	}
	if got := app.engine.Diagnostics(); got != before {
		t.Fatalf("diagnostics not restored: got %+v, want %+v", got, before)
	}

	last := app.Execute(ipc.Request{Command: ipc.CommandDiagnose, Flags: map[string]string{"last": "true"}})
	if last.ExitCode != 0 || !strings.Contains(last.Stdout, "JAPANESE") {
		t.Fatalf("diagnose --last = %+v", last)
	}
	testutil.Eventually(t, 5*time.Second, func() bool {
		history := app.Execute(ipc.Request{Command: ipc.CommandHistory})
		return strings.Contains(history.Stdout, report.ID.String())
	}, "run not recorded in history")
}

func TestApplySettingsDuringDiagnosticRun(t *testing.T) {
	app := newTestAppWith(t, settingsYAML(1, "0x04090409"), func(o *appOptions) {
		o.Diagnostics.ForegroundDelay = 300 * time.Millisecond
	})
	if !app.engine.Diagnostics().RetrySetDefaultProfile {
		t.Fatal("RetrySetDefaultProfile disabled before the run")
	}

	resp := app.Execute(ipc.Request{Command: ipc.CommandDiagnose})
	if resp.ExitCode != 0 {
		t.Fatalf("diagnose: %q", resp.Stderr)
	}
	if !app.runner.Running() {
		t.Fatal("runner not running after diagnose")
	}

	s := app.getSettingsSnapshot()
	s.SwitchDiagnostics.RetrySetDefaultProfile = false
	app.applySettings(s, "test")

	testutil.Eventually(t, 10*time.Second, func() bool {
		app.diagMu.Lock()
		defer app.diagMu.Unlock()
		return !app.diagActive && !app.runner.Running()
	}, "diagnostic run did not finish")

	if app.engine.Diagnostics().RetrySetDefaultProfile {
		t.Fatal("settings applied during the run were lost when it finished")
	}
	if got, want := app.engine.Diagnostics(), app.getSettingsSnapshot().SwitchDiagnostics; got != want {
		t.Fatalf("engine diagnostics = %+v, want %+v", got, want)
	}
}

func TestDiagnoseRequiresBindings(t *testing.T) {
	app := newTestApp(t, "")

	resp := app.Execute(ipc.Request{Command: ipc.CommandDiagnose})
	if resp.ExitCode == 0 {
		t.Fatalf("diagnose without bindings succeeded: %q", resp.Stdout)
	}
	if app.runner.Running() {
		t.Fatal("runner started without bindings")
	}
}

func TestQuitClosesDone(t *testing.T) {
	app := newTestApp(t, "")

	for range 2 {
		if resp := app.Execute(ipc.Request{Command: ipc.CommandQuit}); resp.ExitCode != 0 {
			t.Fatalf("quit: %q", resp.Stderr)
		}
	}
	select {
	case <-app.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after quit")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	app := newTestApp(t, settingsYAML(1, "0x04090409"))

	app.shutdown()
	app.shutdown()

	if app.loop.stopped != 1 {
		t.Fatalf("loop stopped %d times, want 1", app.loop.stopped)
	}
	if resp := app.Execute(ipc.Request{Command: ipc.CommandStatus}); resp.ExitCode == 0 {
		t.Fatal("Execute succeeded after shutdown")
	}
	if app.engine.SwitchByID(1) {
		t.Fatal("engine accepted work after shutdown")
	}
}

func TestWaitWithTimeout(t *testing.T) {
	if !waitWithTimeout(func() {}, time.Second) {
		t.Fatal("waitWithTimeout() = false for immediate fn")
	}
	block := make(chan struct{})
	defer close(block)
	if waitWithTimeout(func() { <-block }, 10*time.Millisecond) {
		t.Fatal("waitWithTimeout() = true for blocked fn")
	}
}
