package tsf

import "fmt"

// Status is a raw HRESULT returned by a native call.
type Status int32

const (
	StatusOK          Status = 0
	StatusFalse       Status = 1
	StatusNotImpl     Status = -0x7FFFBFFF // E_NOTIMPL 0x80004001
	StatusFail        Status = -0x7FFFBFFB // E_FAIL 0x80004005
	StatusInvalidArg  Status = -0x7FF8FFA9 // E_INVALIDARG 0x80070057
	StatusUnavailable Status = -0x7FFBFE10 // CO_E_NOTINITIALIZED 0x800401F0
)

// OK reports S_OK exactly. The activation protocol treats S_FALSE as failure.
func (s Status) OK() bool { return s == StatusOK }

// Succeeded mirrors the SUCCEEDED macro.
func (s Status) Succeeded() bool { return s >= 0 }

func (s Status) String() string { return fmt.Sprintf("0x%08X", uint32(s)) }

// StatusError reports the native call that failed and its status.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: hr=%s", e.Op, e.Status)
}

// Check returns nil for S_OK and a *StatusError otherwise.
func Check(op string, s Status) error {
	if s.OK() {
		return nil
	}
	return &StatusError{Op: op, Status: s}
}
