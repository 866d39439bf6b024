package main

import (
	"sync"
	"sync/atomic"
	"time"

	"hyperimswitch/internal/binding"
	"hyperimswitch/internal/config"
	"hyperimswitch/internal/diagnostics"
	"hyperimswitch/internal/diagstore"
	"hyperimswitch/internal/dispatch"
	"hyperimswitch/internal/enumerator"
	"hyperimswitch/internal/hotkeys"
	"hyperimswitch/internal/ipc"
	"hyperimswitch/internal/logging"
	"hyperimswitch/internal/switcher"
	"hyperimswitch/internal/tsf"
)

// hotkeyLoop is the part of *hotkeys.Loop the app drives.
type hotkeyLoop interface {
	Start() error
	ApplyBindings(bindings []binding.HotkeyBinding)
	Suspend() error
	Resume() error
	Stop() error
	Registered() []int
	Suspended() bool
}

// autoStarter is satisfied by *autostart.Service.
type autoStarter interface {
	IsEnabled() (bool, error)
	SetEnabled(enable bool) error
}

// appOptions wires the native collaborators. Tests replace them with fakes.
type appOptions struct {
	Subsystem tsf.Subsystem
	Windowing switcher.Windowing
	Layouts   enumerator.LayoutSource
	Names     enumerator.LayoutNames
	NewLoop   func(d hotkeys.Dispatcher, s hotkeys.Switcher) hotkeyLoop
	AutoStart autoStarter
	Logs      *logging.Session
	// LogLevel overrides log_level from settings when set.
	LogLevel string

	SettingsPath string
	// HistoryPath is the diagnostic history database; empty disables it.
	HistoryPath string
	// PipeName empty disables the control pipe.
	PipeName string
	// WatchSettings reloads on external edits of the settings file.
	WatchSettings bool

	Timing      switcher.Timing
	Diagnostics diagnostics.Config
}

// App owns every long-lived component of the running switcher.
type App struct {
	opts appOptions

	// Lock ordering (outer -> inner): applyMu -> diagMu -> settingsMu,
	// applyMu -> settingsSaveMu -> settingsMu.
	applyMu        sync.Mutex
	diagMu         sync.Mutex
	diagActive     bool
	settingsMu     sync.RWMutex
	settingsSaveMu sync.Mutex
	settings       config.Settings
	bindings       []binding.HotkeyBinding

	engine     *switcher.Engine
	enumerator *enumerator.Enumerator
	ui         *dispatch.Queue
	loop       hotkeyLoop
	runner     *diagnostics.Runner
	store      *diagstore.Store
	watcher    *config.Watcher
	pipeServer *ipc.PipeServer

	startedAt    time.Time
	quit         chan struct{}
	quitOnce     sync.Once
	shuttingDown atomic.Bool
}

// NewApp creates the app service. Nothing starts until startup.
func NewApp(opts appOptions) *App {
	return &App{
		opts:     opts,
		settings: config.DefaultSettings(),
		quit:     make(chan struct{}),
	}
}

// Done is closed when a quit command arrives.
func (a *App) Done() <-chan struct{} { return a.quit }

func (a *App) requestQuit() {
	a.quitOnce.Do(func() { close(a.quit) })
}
