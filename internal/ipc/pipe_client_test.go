package ipc

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "dial", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, want: true},
		{name: "open wrapped", err: fmt.Errorf("send: %w", &net.OpError{Op: "open", Err: errors.New("no pipe")}), want: true},
		{name: "read", err: &net.OpError{Op: "read", Err: errors.New("reset")}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.want {
				t.Fatalf("IsConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDialMissingPipeIsConnectionError(t *testing.T) {
	_, err := dialPipe(`\\.\pipe\HyperIMSwitch-missing-test`, 50*time.Millisecond)
	if err == nil {
		t.Fatal("dialPipe() to a missing pipe succeeded")
	}
	if !IsConnectionError(err) {
		t.Fatalf("dialPipe() error = %v, want connection error", err)
	}
}
