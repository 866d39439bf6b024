//go:build !windows

package hotkeys

import "errors"

var errUnsupported = errors.New("global hotkeys are currently supported only on Windows")

type unsupportedPlatform struct{}

// NewPlatform returns a platform whose Attach always fails.
func NewPlatform() Platform { return unsupportedPlatform{} }

func (unsupportedPlatform) Attach() error                      { return errUnsupported }
func (unsupportedPlatform) Next() (Message, bool)              { return Message{}, false }
func (unsupportedPlatform) Post(uint32, uintptr) error         { return errUnsupported }
func (unsupportedPlatform) Register(int, uint32, uint32) error { return errUnsupported }
func (unsupportedPlatform) Unregister(int) error               { return errUnsupported }
func (unsupportedPlatform) Detach()                            {}
