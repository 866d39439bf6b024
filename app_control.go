package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"hyperimswitch/internal/diagnostics"
	"hyperimswitch/internal/hotkeys"
	"hyperimswitch/internal/ipc"
	"hyperimswitch/internal/profile"
	"hyperimswitch/internal/switcher"
)

const (
	defaultLogLines    = 50
	defaultHistoryRuns = 10
)

// Execute implements ipc.CommandExecutor for the control pipe.
func (a *App) Execute(req ipc.Request) ipc.Response {
	if a.shuttingDown.Load() {
		return ipc.Fail("shutting down")
	}
	switch req.Command {
	case ipc.CommandSwitch:
		return a.cmdSwitch(req)
	case ipc.CommandSuspend:
		if err := a.loop.Suspend(); err != nil {
			return ipc.Fail(err.Error())
		}
		return ipc.OK("hotkeys suspended\n")
	case ipc.CommandResume:
		if err := a.loop.Resume(); err != nil {
			return ipc.Fail(err.Error())
		}
		return ipc.OK("hotkeys resumed\n")
	case ipc.CommandReload:
		s, err := a.reloadSettings()
		if err != nil {
			return ipc.Fail("reload failed: " + err.Error())
		}
		return ipc.OK(fmt.Sprintf("reloaded %d hotkey entries\n", len(s.Hotkeys)))
	case ipc.CommandProfiles:
		return a.cmdProfiles(req)
	case ipc.CommandCurrent:
		lang, ok := a.engine.CurrentLanguageSync(switcher.DefaultLanguageTimeout)
		if !ok {
			return ipc.Fail("current language query timed out")
		}
		return ipc.OK(fmt.Sprintf("%s %s\n", lang, a.enumerator.LanguageName(lang)))
	case ipc.CommandDiagnose:
		return a.cmdDiagnose(req)
	case ipc.CommandStatus:
		return ipc.OK(a.statusText())
	case ipc.CommandLogs:
		return a.cmdLogs(req)
	case ipc.CommandHistory:
		return a.cmdHistory(req)
	case ipc.CommandQuit:
		slog.Info("[DEBUG-APP] quit requested over control pipe")
		a.requestQuit()
		return ipc.OK("shutting down\n")
	default:
		return ipc.Fail(fmt.Sprintf("unknown command %q", req.Command))
	}
}

func (a *App) cmdSwitch(req ipc.Request) ipc.Response {
	if len(req.Args) != 1 {
		return ipc.Fail("usage: switch <slot>")
	}
	slot, err := strconv.Atoi(req.Args[0])
	if err != nil || slot <= 0 {
		return ipc.Fail(fmt.Sprintf("invalid slot %q", req.Args[0]))
	}
	if req.Flag("sync", "") == "true" {
		if !a.engine.SwitchByIDSync(slot, switcher.DefaultSwitchTimeout) {
			return ipc.Fail(fmt.Sprintf("slot %d: no binding or switch did not finish", slot))
		}
		return ipc.OK(fmt.Sprintf("switched to slot %d\n", slot))
	}
	if !a.engine.SwitchByID(slot) {
		return ipc.Fail(fmt.Sprintf("no binding for slot %d", slot))
	}
	return ipc.OK(fmt.Sprintf("switch to slot %d queued\n", slot))
}

func (a *App) cmdProfiles(req ipc.Request) ipc.Response {
	catalog := a.enumerator.Catalog()
	if req.Flag("refresh", "") == "true" {
		catalog = a.enumerator.Enumerate()
	}
	if req.Flag("json", "") == "true" {
		views := make([]profileView, 0, catalog.Len())
		for _, p := range catalog.Profiles() {
			views = append(views, newProfileView(p))
		}
		raw, err := json.MarshalIndent(views, "", "  ")
		if err != nil {
			return ipc.Fail(err.Error())
		}
		return ipc.OK(string(raw) + "\n")
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tLANG\tDESCRIPTION\tIDENTITY")
	for _, p := range catalog.Profiles() {
		identity := p.LayoutHandle.String()
		if p.IsInputProcessor() {
			identity = p.CLSID.String() + " " + p.ProfileGUID.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Type, p.LangID, p.Description, identity)
	}
	_ = tw.Flush()
	return ipc.OK(b.String())
}

// profileView is the JSON form of a catalog entry, identities as text.
type profileView struct {
	Type         string `json:"type"`
	LangID       string `json:"lang_id"`
	Description  string `json:"description"`
	CLSID        string `json:"clsid,omitempty"`
	ProfileGUID  string `json:"profile_guid,omitempty"`
	LayoutHandle string `json:"layout_handle,omitempty"`
}

func newProfileView(p profile.ImeProfile) profileView {
	v := profileView{Type: p.Type.String(), LangID: p.LangID.String(), Description: p.Description}
	if p.IsInputProcessor() {
		v.CLSID = p.CLSID.String()
		v.ProfileGUID = p.ProfileGUID.String()
	} else {
		v.LayoutHandle = p.LayoutHandle.String()
	}
	return v
}

func (a *App) cmdDiagnose(req ipc.Request) ipc.Response {
	if req.Flag("last", "") == "true" {
		report, ok := a.runner.LastReport()
		if !ok {
			return ipc.Fail("no diagnostic run has finished yet")
		}
		return ipc.OK(formatReport(report))
	}
	if _, err := diagnostics.ResolveSlots(a.bindingsSnapshot()); err != nil {
		return ipc.Fail(err.Error())
	}
	if !a.startDiagnostics() {
		return ipc.Fail(diagnostics.ErrAlreadyRunning.Error())
	}
	return ipc.OK("diagnostic run started; focus the target window now. Use diagnose --last for the result.\n")
}

func (a *App) cmdLogs(req ipc.Request) ipc.Response {
	if a.opts.Logs == nil {
		return ipc.Fail("log capture unavailable")
	}
	n, err := positiveFlag(req, "lines", defaultLogLines)
	if err != nil {
		return ipc.Fail(err.Error())
	}
	var b strings.Builder
	for _, e := range a.opts.Logs.Ring.Tail(n) {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return ipc.OK(b.String())
}

func (a *App) cmdHistory(req ipc.Request) ipc.Response {
	if a.store == nil {
		return ipc.Fail("diagnostic history unavailable")
	}
	n, err := positiveFlag(req, "limit", defaultHistoryRuns)
	if err != nil {
		return ipc.Fail(err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runs, err := a.store.History(ctx, n)
	if err != nil {
		return ipc.Fail(err.Error())
	}
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tPASSED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n", r.ID, r.StartedAt.Local().Format(time.DateTime), r.Passed, r.Scenarios, r.Error)
	}
	_ = tw.Flush()
	return ipc.OK(b.String())
}

func (a *App) statusText() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	stats := a.engine.Stats()
	bindings := a.bindingsSnapshot()

	fmt.Fprintf(tw, "uptime\t%s\n", time.Since(a.startedAt).Round(time.Second))
	fmt.Fprintf(tw, "profiles\t%d\n", a.enumerator.Catalog().Len())
	fmt.Fprintf(tw, "bindings\t%d\n", len(bindings))
	fmt.Fprintf(tw, "registered\t%v\n", a.loop.Registered())
	fmt.Fprintf(tw, "suspended\t%v\n", a.loop.Suspended())
	fmt.Fprintf(tw, "switch tasks\t%d submitted, %d completed, %d pending, %d panics\n",
		stats.Submitted, stats.Completed, stats.Pending, stats.Panics)
	fmt.Fprintf(tw, "dispatch dropped\t%d\n", a.ui.Dropped())
	fmt.Fprintf(tw, "diagnostics running\t%v\n", a.runner.Running())
	if report, ok := a.runner.LastReport(); ok {
		fmt.Fprintf(tw, "last diagnostic\t%s\n", report.Summary())
	}
	if a.opts.Logs != nil {
		fmt.Fprintf(tw, "log level\t%s\n", a.opts.Logs.Level())
	}
	for _, bd := range bindings {
		fmt.Fprintf(tw, "slot %d\t%s\t%s\n", bd.SlotID, hotkeys.FormatChord(bd.Modifiers, bd.VirtualKey), describeBinding(bd.ProfileType, bd.LangID, bd.DisplayName))
	}
	_ = tw.Flush()
	return b.String()
}

func describeBinding(t profile.Type, lang profile.LangID, name string) string {
	if name == "" {
		return fmt.Sprintf("%s %s", t, lang)
	}
	return fmt.Sprintf("%s (%s %s)", name, t, lang)
}

func formatReport(r diagnostics.Report) string {
	var b strings.Builder
	b.WriteString(r.Summary())
	b.WriteByte('\n')
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFLAGS\tJAPANESE\tTARGET\tELAPSED")
	for _, s := range r.Scenarios {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.Index, s.Combination, checkText(s.Japanese), checkText(s.Target), s.Elapsed.Round(time.Millisecond))
	}
	_ = tw.Flush()
	return b.String()
}

func checkText(c diagnostics.Check) string {
	if c.Passed() {
		return "pass"
	}
	if !c.Completed {
		return "incomplete"
	}
	return fmt.Sprintf("got %s", c.GotLang)
}

func positiveFlag(req ipc.Request, name string, def int) (int, error) {
	raw := req.Flag(name, "")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid --%s %q", name, raw)
	}
	return n, nil
}
