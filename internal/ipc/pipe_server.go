package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"hyperimswitch/internal/workerutil"
)

const (
	pipeConnTimeout     = 30 * time.Second
	maxPipeRequestBytes = 64 * 1024
	// A control CLI holds a connection for one command; more than a handful at
	// once means something is looping.
	maxPipeConnections = 8
	maxAcceptFailures  = 10
)

// listenFn is a test seam; platform files provide listenPipe.
var listenFn = listenPipe

// PipeServer answers control requests, one command per connection.
type PipeServer struct {
	pipeName string
	executor CommandExecutor

	mu       sync.Mutex
	listener net.Listener
	closed   chan struct{}
	wg       sync.WaitGroup
	busy     chan struct{}
}

// NewPipeServer constructs a PipeServer. An empty name uses DefaultPipeName.
func NewPipeServer(pipeName string, executor CommandExecutor) *PipeServer {
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}
	return &PipeServer{
		pipeName: pipeName,
		executor: executor,
		busy:     make(chan struct{}, maxPipeConnections),
	}
}

// PipeName returns the listen pipe name.
func (s *PipeServer) PipeName() string {
	return s.pipeName
}

// Start begins listening.
func (s *PipeServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("pipe server already started")
	}
	if s.executor == nil {
		return errors.New("pipe server requires executor")
	}
	listener, err := listenFn(s.pipeName)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.pipeName, err)
	}
	s.listener = listener
	s.closed = make(chan struct{})
	closed := s.closed
	s.wg.Go(func() { s.acceptLoop(listener, closed) })
	return nil
}

// Stop closes the listener and waits for in-flight commands.
func (s *PipeServer) Stop() error {
	s.mu.Lock()
	listener := s.listener
	if listener == nil {
		s.mu.Unlock()
		return nil
	}
	s.listener = nil
	close(s.closed)
	s.mu.Unlock()

	if err := listener.Close(); err != nil {
		slog.Warn("[ipc] failed to close pipe listener during shutdown", "error", err)
	}
	s.wg.Wait()
	return nil
}

func (s *PipeServer) acceptLoop(listener net.Listener, closed <-chan struct{}) {
	failures := 0
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-closed:
				return
			default:
			}
			failures++
			if failures > maxAcceptFailures {
				slog.Warn("[ipc] accept loop: repeated failures, possible permanent error", "error", err, "count", failures)
				time.Sleep(500 * time.Millisecond)
			} else {
				slog.Debug("[ipc] accept error", "error", err)
			}
			continue
		}
		failures = 0

		select {
		case s.busy <- struct{}{}:
		default:
			slog.Warn("[ipc] too many control connections, rejecting client")
			writeResponse(conn, Fail("server busy, try again later"))
			if closeErr := conn.Close(); closeErr != nil {
				slog.Debug("[ipc] failed to close rejected connection", "error", closeErr)
			}
			continue
		}
		s.wg.Go(func() {
			defer func() { <-s.busy }()
			s.serve(conn)
		})
	}
}

func (s *PipeServer) serve(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(pipeConnTimeout)); err != nil {
		slog.Warn("[ipc] failed to set connection deadline", "error", err)
		return
	}

	raw, err := readFrame(bufio.NewReaderSize(conn, maxPipeRequestBytes+1), maxPipeRequestBytes)
	if errors.Is(err, io.EOF) {
		slog.Debug("[ipc] client disconnected without sending data")
		return
	}
	if err != nil {
		writeResponse(conn, Fail(fmt.Sprintf("invalid request: %v", err)))
		return
	}
	writeResponse(conn, s.respond(raw))
}

// respond runs one decoded request. An executor panic becomes an error
// response and the server keeps serving.
func (s *PipeServer) respond(raw []byte) Response {
	req, err := decodeRequest(raw)
	if err != nil {
		return Fail(fmt.Sprintf("invalid request: %v", err))
	}

	start := time.Now()
	resp := Fail("internal error")
	workerutil.RecoverTask("ipc-"+req.Command, func() {
		resp = s.executor.Execute(req)
	})
	slog.Debug("[DEBUG-IPC-PIPE] control request",
		"command", req.Command,
		"args", req.Args,
		"flags", req.Flags,
		"exitCode", resp.ExitCode,
		"elapsed", time.Since(start),
	)
	return resp
}

func writeResponse(conn net.Conn, resp Response) {
	raw, err := encodeResponse(resp)
	if err != nil {
		slog.Warn("[ipc] failed to encode response", "error", err, "exitCode", resp.ExitCode)
		raw = []byte(`{"exit_code":1,"stderr":"internal encode error\n"}`)
	}
	if err := writeFrame(conn, raw); err != nil {
		slog.Debug("[ipc] failed to write response", "error", err)
	}
}
