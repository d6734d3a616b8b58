package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/fyrsmithlabs/mcpgate/internal/config"
	"go.uber.org/zap"
)

// stdioTransport frames requests and responses as newline-delimited
// JSON over a child process's stdin and stdout. The process is spawned
// on Connect and owned exclusively by this transport; any exit (normal
// or signalled) transitions the transport to closed and fails every
// call still in flight.
type stdioTransport struct {
	cfg    config.ServerConfig
	logger *zap.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	connected  bool
	closed     bool
	onResponse func(*Response)
	onClose    func(error)

	// writeMu serializes frame writes independently of mu, so a child
	// that stops draining stdin can never block Close.
	writeMu sync.Mutex

	closeOnce sync.Once
}

func newStdioTransport(cfg config.ServerConfig, logger *zap.Logger) *stdioTransport {
	return &stdioTransport{
		cfg:    cfg,
		logger: logger.Named("stdio").With(zap.String("server_id", cfg.ID)),
	}
}

func (t *stdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.connected {
		return nil
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range t.cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = &stderrWriter{logger: t.logger}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning %s: %w", t.cfg.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.connected = true
	t.logger.Debug("child process started", zap.Int("pid", cmd.Process.Pid))

	go t.readLoop(stdout)
	return nil
}

func (t *stdioTransport) Send(ctx context.Context, req *Request) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return &SendError{RequestID: req.ID, Err: ErrTransportClosed}
	}
	if !t.connected {
		t.mu.Unlock()
		return &SendError{RequestID: req.ID, Err: ErrNotConnected}
	}
	stdin := t.stdin
	t.mu.Unlock()

	frame, err := json.Marshal(req)
	if err != nil {
		return &SendError{RequestID: req.ID, Err: err}
	}
	frame = append(frame, '\n')

	t.writeMu.Lock()
	_, err = stdin.Write(frame)
	t.writeMu.Unlock()
	if err != nil {
		return &SendError{RequestID: req.ID, Err: err}
	}
	return nil
}

func (t *stdioTransport) OnResponse(fn func(*Response)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onResponse = fn
}

func (t *stdioTransport) OnClose(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClose = fn
}

func (t *stdioTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	stdin, cmd := t.stdin, t.cmd
	t.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}

	t.transitionClosed(nil)
	return nil
}

// readLoop consumes stdout frames until the pipe closes, then reaps
// the child and reports the termination cause exactly once.
func (t *stdioTransport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil || resp.ID == "" {
			// Partial or binary output from the child must never kill
			// the parser. Drop the frame and keep reading.
			t.logger.Warn("discarding malformed frame", zap.Int("bytes", len(line)))
			continue
		}
		resp.ReceivedAt = time.Now()
		t.deliver(&resp)
	}

	err := t.cmd.Wait()
	t.transitionClosed(err)
}

func (t *stdioTransport) deliver(resp *Response) {
	t.mu.Lock()
	fn := t.onResponse
	t.mu.Unlock()

	if fn == nil {
		t.logger.Warn("no response handler registered, dropping response", zap.String("id", resp.ID))
		return
	}
	fn(resp)
}

// transitionClosed marks the transport closed and notifies the owner
// exactly once, whether the cause was an explicit Close or the child
// exiting on its own.
func (t *stdioTransport) transitionClosed(cause error) {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.connected = false
		fn := t.onClose
		t.mu.Unlock()

		if cause != nil {
			t.logger.Warn("child process exited", zap.Error(cause))
		}
		if fn != nil {
			fn(cause)
		}
	})
}

// stderrWriter forwards child stderr chunks to the log at warn level.
type stderrWriter struct {
	logger *zap.Logger
}

func (w *stderrWriter) Write(p []byte) (int, error) {
	if s := string(bytes.TrimSpace(p)); s != "" {
		w.logger.Warn("child stderr", zap.String("output", s))
	}
	return len(p), nil
}
