// Package autostart registers the switcher to launch at sign-in through the
// per-user Run key.
package autostart

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	runKeyPath = `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`
	valueName  = "HyperIMSwitch"
)

// ErrUnsupported is returned on platforms without a Run key.
var ErrUnsupported = errors.New("autostart requires windows")

// Service reads and writes one Run key value.
type Service struct {
	keyPath    string
	valueName  string
	executable func() (string, error)
}

// New returns a Service for the current executable.
func New() *Service {
	return &Service{keyPath: runKeyPath, valueName: valueName, executable: os.Executable}
}

// SetEnabled enables or disables launch at sign-in.
func (s *Service) SetEnabled(enable bool) error {
	if enable {
		return s.Enable()
	}
	return s.Disable()
}

// Enable writes the quoted executable path.
func (s *Service) Enable() error {
	exe, err := s.executable()
	if err != nil {
		return err
	}
	return s.write(CommandLine(exe))
}

// Disable removes the value; a missing value is not an error.
func (s *Service) Disable() error { return s.remove() }

// IsEnabled reports whether the value exists.
func (s *Service) IsEnabled() (bool, error) {
	_, ok, err := s.read()
	return ok, err
}

// PointsHere reports whether the registered command launches the current
// executable. A moved binary leaves a stale value behind.
func (s *Service) PointsHere() (bool, error) {
	cmd, ok, err := s.read()
	if err != nil || !ok {
		return false, err
	}
	exe, err := s.executable()
	if err != nil {
		return false, err
	}
	return strings.EqualFold(filepath.Clean(commandPath(cmd)), filepath.Clean(exe)), nil
}

// CommandLine quotes exe for the Run key.
func CommandLine(exe string) string {
	return `"` + strings.Trim(exe, `"`) + `"`
}

// commandPath extracts the program path from a Run key command.
func commandPath(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if strings.HasPrefix(cmd, `"`) {
		if end := strings.Index(cmd[1:], `"`); end >= 0 {
			return cmd[1 : end+1]
		}
		return strings.Trim(cmd, `"`)
	}
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		return cmd[:i]
	}
	return cmd
}
