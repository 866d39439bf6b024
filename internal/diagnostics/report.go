package diagnostics

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"hyperimswitch/internal/profile"
)

// Combination is one setting of the three independently gated retry steps.
type Combination struct {
	ChangeCurrentLanguage bool `json:"change_current_language"`
	SetDefaultProfile     bool `json:"set_default_profile"`
	ForegroundLangRequest bool `json:"foreground_lang_request"`
}

func (c Combination) String() string {
	return fmt.Sprintf("change=%t setDefault=%t foreground=%t",
		c.ChangeCurrentLanguage, c.SetDefaultProfile, c.ForegroundLangRequest)
}

// Combinations lists every combination, all-enabled first.
func Combinations() []Combination {
	out := make([]Combination, 0, 8)
	for _, change := range []bool{true, false} {
		for _, setDefault := range []bool{true, false} {
			for _, foreground := range []bool{true, false} {
				out = append(out, Combination{
					ChangeCurrentLanguage: change,
					SetDefaultProfile:     setDefault,
					ForegroundLangRequest: foreground,
				})
			}
		}
	}
	return out
}

// Check is one switch-and-verify leg of a scenario.
type Check struct {
	Slot       int            `json:"slot"`
	WantLang   profile.LangID `json:"want_lang"`
	GotLang    profile.LangID `json:"got_lang"`
	Completed  bool           `json:"completed"`
	LangPassed bool           `json:"lang_passed"`
}

// Passed reports whether every switch completed and the language matched.
func (c Check) Passed() bool { return c.Completed && c.LangPassed }

// ScenarioResult is the outcome of one combination.
type ScenarioResult struct {
	Index       int           `json:"index"`
	Combination Combination   `json:"combination"`
	Japanese    Check         `json:"japanese"`
	Target      Check         `json:"target"`
	Elapsed     time.Duration `json:"elapsed"`
}

func (s ScenarioResult) Passed() bool { return s.Japanese.Passed() && s.Target.Passed() }

// Slots are the bindings a run drives.
type Slots struct {
	English    int            `json:"english"`
	Japanese   int            `json:"japanese"`
	Target     int            `json:"target"`
	TargetLang profile.LangID `json:"target_lang"`
	TargetName string         `json:"target_name"`
}

// Report describes one complete or aborted run.
type Report struct {
	ID         uuid.UUID        `json:"id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Slots      Slots            `json:"slots"`
	Scenarios  []ScenarioResult `json:"scenarios"`
	// Error is set when the run stopped before all scenarios finished.
	Error string `json:"error,omitempty"`
}

// PassCount returns the number of passing scenarios.
func (r Report) PassCount() int {
	n := 0
	for _, s := range r.Scenarios {
		if s.Passed() {
			n++
		}
	}
	return n
}

func (r Report) Summary() string {
	if r.Error != "" {
		return fmt.Sprintf("run %s aborted after %d/8 scenarios: %s", r.ID, len(r.Scenarios), r.Error)
	}
	return fmt.Sprintf("run %s: %d/%d scenarios passed", r.ID, r.PassCount(), len(r.Scenarios))
}
