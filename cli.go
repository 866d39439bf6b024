package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"hyperimswitch/internal/autostart"
	"hyperimswitch/internal/config"
	"hyperimswitch/internal/ipc"
	"hyperimswitch/internal/logging"
	"hyperimswitch/internal/singleinstance"
)

const logFileName = "hyperimswitch.log"

// Test seams.
var (
	sendFn      = ipc.Send
	runDaemonFn = runDaemon
)

var errNotRunning = errors.New("hyperimswitch is not running")

// exitError carries a remote exit code without printing anything more.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

type daemonFlags struct {
	logLevel string
	logFile  string
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())

	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if err != nil {
		fmt.Fprintln(stderr, "hyperimswitch:", err)
		return 1
	}
	return 0
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		pipeName string
		daemon   daemonFlags
	)
	root := &cobra.Command{
		Use:   "hyperimswitch",
		Short: "Switch input methods with global hotkeys",
		Long: `hyperimswitch binds global hotkeys to installed input-method profiles and
keyboard layouts. Run without a subcommand to start the switcher; the other
subcommands control a running instance.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonFn(cmd.Context(), daemon, pipeName, stdout, stderr)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&pipeName, "pipe", "", "control pipe name (default: per-user pipe)")
	root.Flags().StringVar(&daemon.logLevel, "log-level", "", "override log_level from settings (debug, info, warn, error)")
	root.Flags().StringVar(&daemon.logFile, "log-file", "", "log file path (default: data directory)")

	control := func(use, short, command string, args cobra.PositionalArgs) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				// Forward flags the user set on this subcommand; --pipe is
				// inherited from the root and stays local.
				flags := map[string]string{}
				inherited := cmd.InheritedFlags()
				cmd.Flags().Visit(func(f *pflag.Flag) {
					if inherited.Lookup(f.Name) != nil {
						return
					}
					flags[f.Name] = f.Value.String()
				})
				return sendControl(pipeName, ipc.Request{Command: command, Args: args, Flags: flags}, stdout, stderr)
			},
		}
	}

	switchCmd := control("switch <slot>", "Switch to the profile bound to a slot", ipc.CommandSwitch, cobra.ExactArgs(1))
	switchCmd.Flags().Bool("sync", false, "wait for the activation to finish")

	profilesCmd := control("profiles", "List installed input-method profiles", ipc.CommandProfiles, cobra.NoArgs)
	profilesCmd.Flags().Bool("refresh", false, "re-enumerate before listing")
	profilesCmd.Flags().Bool("json", false, "print JSON")

	diagnoseCmd := control("diagnose", "Run the retry-chain diagnostic scenarios", ipc.CommandDiagnose, cobra.NoArgs)
	diagnoseCmd.Flags().Bool("last", false, "print the last finished run instead of starting one")

	logsCmd := control("logs", "Print recent log entries", ipc.CommandLogs, cobra.NoArgs)
	logsCmd.Flags().IntP("lines", "n", defaultLogLines, "number of entries")

	historyCmd := control("history", "List recorded diagnostic runs", ipc.CommandHistory, cobra.NoArgs)
	historyCmd.Flags().IntP("limit", "n", defaultHistoryRuns, "number of runs")

	root.AddCommand(
		switchCmd,
		control("suspend", "Unregister all hotkeys until resume", ipc.CommandSuspend, cobra.NoArgs),
		control("resume", "Register hotkeys again", ipc.CommandResume, cobra.NoArgs),
		control("reload", "Reload the settings file", ipc.CommandReload, cobra.NoArgs),
		profilesCmd,
		control("current", "Print the current input language", ipc.CommandCurrent, cobra.NoArgs),
		diagnoseCmd,
		control("status", "Print the state of the running switcher", ipc.CommandStatus, cobra.NoArgs),
		logsCmd,
		historyCmd,
		control("quit", "Stop the running switcher", ipc.CommandQuit, cobra.NoArgs),
		newAutostartCmd(&pipeName, stdout),
		newPathsCmd(stdout),
	)
	return root
}

func newAutostartCmd(pipeName *string, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:       "autostart [on|off]",
		Short:     "Show or change launch at sign-in",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(_ *cobra.Command, args []string) error {
			path := config.DefaultPath()
			s, err := config.Load(path)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Fprintf(stdout, "auto_start: %t\n", s.AutoStart)
				return nil
			}
			s.AutoStart = args[0] == "on"
			if _, err := config.Save(path, s); err != nil {
				return err
			}
			// A running instance applies the change itself; otherwise write the
			// Run key directly.
			_, err = sendFn(*pipeName, ipc.Request{Command: ipc.CommandReload})
			if ipc.IsConnectionError(err) {
				err = autostart.New().SetEnabled(s.AutoStart)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "auto_start: %t\n", s.AutoStart)
			return nil
		},
	}
}

func newPathsCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print settings, log and history locations",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			dir := config.DataDir()
			fmt.Fprintf(stdout, "settings\t%s\n", config.DefaultPath())
			fmt.Fprintf(stdout, "log\t%s\n", filepath.Join(dir, logFileName))
			fmt.Fprintf(stdout, "history\t%s\n", filepath.Join(dir, historyFileName))
		},
	}
}

func sendControl(pipeName string, req ipc.Request, stdout, stderr io.Writer) error {
	resp, err := sendFn(pipeName, req)
	if err != nil {
		if ipc.IsConnectionError(err) {
			return errNotRunning
		}
		return err
	}
	_, _ = io.WriteString(stdout, resp.Stdout)
	_, _ = io.WriteString(stderr, resp.Stderr)
	if resp.ExitCode != 0 {
		return exitError{code: resp.ExitCode}
	}
	return nil
}

// runDaemon runs the switcher until a quit command or a signal.
func runDaemon(ctx context.Context, flags daemonFlags, pipeName string, stdout, stderr io.Writer) error {
	lock, err := singleinstance.TryLock(singleinstance.DefaultMutexName())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		fmt.Fprintln(stderr, "hyperimswitch is already running")
		return sendControl(pipeName, ipc.Request{Command: ipc.CommandStatus}, stdout, stderr)
	}
	if err != nil {
		slog.Warn("[DEBUG-SINGLE] mutex creation failed, proceeding without single-instance guard", "error", err)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			slog.Warn("[DEBUG-SINGLE] mutex release failed", "error", releaseErr)
		}
	}()

	setConsoleUTF8()

	level := flags.logLevel
	if level == "" {
		if s, err := config.Load(config.DefaultPath()); err == nil {
			level = s.LogLevel
		}
	}
	logFile := flags.logFile
	if logFile == "" {
		logFile = filepath.Join(config.DataDir(), logFileName)
	}
	logs, err := logging.Setup(logging.Options{Level: level, FilePath: logFile})
	if err != nil {
		return err
	}
	defer logs.Close()

	opts := defaultAppOptions(logs)
	opts.LogLevel = flags.logLevel
	if pipeName != "" {
		opts.PipeName = pipeName
	}
	app := NewApp(opts)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.startup(ctx); err != nil {
		app.shutdown()
		return err
	}
	select {
	case <-ctx.Done():
		slog.Info("[DEBUG-APP] signal received, shutting down")
	case <-app.Done():
	}
	app.shutdown()
	return nil
}
