// Package ipc carries control commands between a CLI invocation and the
// running switcher over a per-user named pipe. One JSON request line and one
// JSON response line per connection.
package ipc

import (
	"encoding/json"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"hyperimswitch/internal/userutil"
)

var pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\HyperIMSwitch-[a-z0-9._-]{1,128}$`)

const (
	defaultPipePrefix = `\\.\pipe\HyperIMSwitch-`
	pipeEnvVar        = "HYPERIMSWITCH_PIPE"
)

// Control commands understood by the running instance.
const (
	CommandSwitch   = "switch"
	CommandSuspend  = "suspend"
	CommandResume   = "resume"
	CommandReload   = "reload"
	CommandProfiles = "profiles"
	CommandCurrent  = "current"
	CommandDiagnose = "diagnose"
	CommandStatus   = "status"
	CommandLogs     = "logs"
	CommandHistory  = "history"
	CommandQuit     = "quit"
)

// Request is a single control command.
type Request struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Flags   map[string]string `json:"flags,omitempty"`
}

// Flag returns the named flag value, or def when absent.
func (r Request) Flag(name, def string) string {
	if v, ok := r.Flags[name]; ok {
		return v
	}
	return def
}

// Response mirrors a process result so the CLI can exit with ExitCode.
type Response struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// OK returns a successful response carrying stdout.
func OK(stdout string) Response { return Response{Stdout: stdout} }

// Fail returns exit code 1 with msg on stderr, newline-terminated.
func Fail(msg string) Response {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	return Response{ExitCode: 1, Stderr: msg}
}

// CommandExecutor handles a control request and returns a response.
type CommandExecutor interface {
	Execute(req Request) Response
}

// ExecutorFunc adapts a function to CommandExecutor.
type ExecutorFunc func(Request) Response

func (f ExecutorFunc) Execute(req Request) Response { return f(req) }

// DefaultPipeName returns the pipe path to use. If HYPERIMSWITCH_PIPE is set
// and passes pattern validation, its value is used; otherwise a per-user
// default is constructed from the current username.
func DefaultPipeName() string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}
	return userutil.ScopedName(defaultPipePrefix)
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(pipeEnvVar))
	if value == "" {
		return "", false
	}
	if !pipeNamePattern.MatchString(value) {
		slog.Warn("[ipc] "+pipeEnvVar+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeRequest(req Request) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	req.Command = strings.ToLower(strings.TrimSpace(req.Command))
	if req.Args == nil {
		req.Args = []string{}
	}
	if req.Flags == nil {
		req.Flags = map[string]string{}
	}
	return req, nil
}

func encodeResponse(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}
