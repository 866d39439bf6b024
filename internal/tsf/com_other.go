//go:build !windows

package tsf

import "errors"

// ErrUnsupported is returned on platforms without Text Services Framework.
var ErrUnsupported = errors.New("text services framework is only available on Windows")

// COM is a stub on non-Windows targets.
type COM struct{}

// NewCOM returns the stub subsystem.
func NewCOM() *COM { return &COM{} }

func (*COM) InitThread() error                    { return nil }
func (*COM) UninitThread()                        {}
func (*COM) OpenProfiles() (Profiles, error)      { return nil, ErrUnsupported }
func (*COM) SetGlobalConversionMode(uint32) error { return ErrUnsupported }
