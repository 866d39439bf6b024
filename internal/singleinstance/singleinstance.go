// Package singleinstance keeps one switcher per user session.
package singleinstance

import (
	"errors"

	"hyperimswitch/internal/userutil"
)

// ErrAlreadyRunning is returned by TryLock when another instance holds the mutex.
var ErrAlreadyRunning = errors.New("another instance is already running")

const mutexPrefix = `Local\HyperIMSwitch_SingleInstance-`

// DefaultMutexName names the session-local mutex. It mirrors the pipe naming
// from ipc.DefaultPipeName.
func DefaultMutexName() string {
	return userutil.ScopedName(mutexPrefix)
}
