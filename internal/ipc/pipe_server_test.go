package ipc

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// useLoopback routes the pipe seams through a TCP loopback listener so the
// server can be exercised without named pipes.
func useLoopback(t *testing.T) {
	t.Helper()
	origListen, origDial := listenFn, dialFn
	t.Cleanup(func() { listenFn, dialFn = origListen, origDial })

	var addr atomic.Value
	addr.Store("127.0.0.1:1")
	listenFn = func(string) (net.Listener, error) {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err == nil {
			addr.Store(l.Addr().String())
		}
		return l, err
	}
	dialFn = func(_ string, timeout time.Duration) (net.Conn, error) {
		return net.DialTimeout("tcp", addr.Load().(string), timeout)
	}
}

func startServer(t *testing.T, exec CommandExecutor) *PipeServer {
	t.Helper()
	srv := NewPipeServer(`\\.\pipe\HyperIMSwitch-test`, exec)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv
}

func TestPipeServerRoundTrip(t *testing.T) {
	useLoopback(t)
	srv := startServer(t, ExecutorFunc(func(req Request) Response {
		if req.Command != CommandSwitch {
			return Fail("unexpected command " + req.Command)
		}
		return OK("switched slot " + strings.Join(req.Args, ",") + " sync=" + req.Flag("sync", "false") + "\n")
	}))

	resp, err := Send(srv.PipeName(), Request{Command: "Switch", Args: []string{"3"}, Flags: map[string]string{"sync": "true"}})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.ExitCode != 0 || resp.Stdout != "switched slot 3 sync=true\n" {
		t.Fatalf("Send() = %+v", resp)
	}
}

func TestPipeServerRecoversExecutorPanic(t *testing.T) {
	useLoopback(t)
	var calls atomic.Int32
	srv := startServer(t, ExecutorFunc(func(req Request) Response {
		if calls.Add(1) == 1 {
			panic("executor exploded")
		}
		return OK("alive\n")
	}))

	resp, err := Send(srv.PipeName(), Request{Command: CommandStatus})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.ExitCode != 1 || !strings.Contains(resp.Stderr, "internal error") {
		t.Fatalf("panicking executor response = %+v", resp)
	}

	resp, err = Send(srv.PipeName(), Request{Command: CommandStatus})
	if err != nil || resp.Stdout != "alive\n" {
		t.Fatalf("server did not survive panic: %+v, %v", resp, err)
	}
}

func TestPipeServerRejectsMalformedRequest(t *testing.T) {
	useLoopback(t)
	srv := startServer(t, ExecutorFunc(func(Request) Response { return OK("") }))

	conn, err := dialFn(srv.PipeName(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("not json\n")); err != nil {
		t.Fatal(err)
	}
	raw, err := readFrame(bufio.NewReader(conn), maxPipeResponseBytes)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	resp, err := decodeResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ExitCode != 1 || !strings.HasPrefix(resp.Stderr, "invalid request") {
		t.Fatalf("response = %+v", resp)
	}
}

func TestPipeServerStartErrors(t *testing.T) {
	useLoopback(t)

	if err := NewPipeServer("", nil).Start(); err == nil {
		t.Fatal("Start() without executor expected error")
	}

	srv := startServer(t, ExecutorFunc(func(Request) Response { return OK("") }))
	if err := srv.Start(); err == nil {
		t.Fatal("second Start() expected error")
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestSendWithoutServerIsConnectionError(t *testing.T) {
	useLoopback(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	dialFn = func(_ string, timeout time.Duration) (net.Conn, error) {
		return net.DialTimeout("tcp", addr, timeout)
	}

	_, err = Send("", Request{Command: CommandStatus})
	if !IsConnectionError(err) {
		t.Fatalf("Send() error = %v, want connection error", err)
	}
}

func TestPipeServerRejectsClientsBeyondLimit(t *testing.T) {
	useLoopback(t)
	release := make(chan struct{})
	srv := startServer(t, ExecutorFunc(func(Request) Response {
		<-release
		return OK("done\n")
	}))

	var wg sync.WaitGroup
	for range maxPipeConnections {
		wg.Go(func() {
			if _, err := Send(srv.PipeName(), Request{Command: CommandStatus}); err != nil {
				t.Errorf("blocked Send() error = %v", err)
			}
		})
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(srv.busy) < maxPipeConnections {
		if time.Now().After(deadline) {
			close(release)
			t.Fatalf("busy connections = %d, want %d", len(srv.busy), maxPipeConnections)
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp, err := Send(srv.PipeName(), Request{Command: CommandStatus})
	close(release)
	wg.Wait()
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.ExitCode != 1 || !strings.Contains(resp.Stderr, "server busy") {
		t.Fatalf("over-limit response = %+v", resp)
	}
}
