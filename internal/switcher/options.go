package switcher

import "time"

// DiagnosticsOptions selects which retry steps run and how much detail the
// activation protocol logs.
type DiagnosticsOptions struct {
	EnableRetryChain           bool `yaml:"enable_retry_chain"`
	RetryEnableProfile         bool `yaml:"retry_enable_profile"`
	RetryChangeCurrentLanguage bool `yaml:"retry_change_current_language"`
	RetrySetDefaultProfile     bool `yaml:"retry_set_default_profile"`
	RetryForegroundLangRequest bool `yaml:"retry_foreground_lang_request"`
	LogForegroundWindowContext bool `yaml:"log_foreground_window_context"`
	LogCurrentLanguageState    bool `yaml:"log_current_language_state"`
	LogStepElapsed             bool `yaml:"log_step_elapsed"`
}

// DefaultDiagnosticsOptions enables every retry step and every log detail.
func DefaultDiagnosticsOptions() DiagnosticsOptions {
	return DiagnosticsOptions{
		EnableRetryChain:           true,
		RetryEnableProfile:         true,
		RetryChangeCurrentLanguage: true,
		RetrySetDefaultProfile:     true,
		RetryForegroundLangRequest: true,
		LogForegroundWindowContext: true,
		LogCurrentLanguageState:    true,
		LogStepElapsed:             true,
	}
}

// Timing holds the waits used by conversion-mode enforcement.
type Timing struct {
	// LanguageWait bounds the poll for the Japanese language before a
	// conversion mode is applied.
	LanguageWait time.Duration
	LanguagePoll time.Duration
	// VerifyDelays are the staged re-checks of the IME window after apply.
	VerifyDelays []time.Duration
}

const (
	defaultLanguageWait = 300 * time.Millisecond
	defaultLanguagePoll = 20 * time.Millisecond
)

// DefaultTiming returns the production waits.
func DefaultTiming() Timing {
	return Timing{
		LanguageWait: defaultLanguageWait,
		LanguagePoll: defaultLanguagePoll,
		VerifyDelays: []time.Duration{80 * time.Millisecond, 200 * time.Millisecond},
	}
}

func (t Timing) withDefaults() Timing {
	if t.LanguageWait <= 0 {
		t.LanguageWait = defaultLanguageWait
	}
	if t.LanguagePoll <= 0 {
		t.LanguagePoll = defaultLanguagePoll
	}
	if t.VerifyDelays == nil {
		t.VerifyDelays = DefaultTiming().VerifyDelays
	}
	return t
}
