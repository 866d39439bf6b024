//go:build !windows

package ipc

import (
	"errors"
	"net"
	"time"
)

var errPipeUnsupported = errors.New("named pipes require windows")

func listenPipe(string) (net.Listener, error) { return nil, errPipeUnsupported }

func dialPipe(pipeName string, _ time.Duration) (net.Conn, error) {
	return nil, &net.OpError{Op: "dial", Net: "pipe", Addr: pipeAddr(pipeName), Err: errPipeUnsupported}
}
