package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/aurras/internal/log"
	"github.com/mattjoyce/aurras/internal/protocol"
)

const (
	// maxStderrBytes caps the amount of stderr captured from plugin execution.
	maxStderrBytes = 64 * 1024

	// maxStdoutBytes caps how much output a plugin may produce for one turn.
	maxStdoutBytes = 1 << 20

	// DefaultGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	DefaultGracePeriod = 2 * time.Second
)

// ExecError describes a subprocess plugin that failed to run to completion.
type ExecError struct {
	ExitCode int // -1 when the process never exited on its own
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	msg := e.Err.Error()
	if e.ExitCode > 0 {
		msg = fmt.Sprintf("exit status %d", e.ExitCode)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		return fmt.Sprintf("%s: %s", msg, firstLine(s))
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// ExecHandler runs a plugin executable once per turn: the request is written
// to stdin and whatever the process writes to stdout is returned verbatim.
//
// The context deadline is enforced with SIGTERM followed by SIGKILL after
// GracePeriod.
type ExecHandler struct {
	Entrypoint  string
	Dir         string
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// NewExecHandler returns a handler for the executable at entrypoint.
func NewExecHandler(entrypoint, dir string) *ExecHandler {
	return &ExecHandler{
		Entrypoint:  entrypoint,
		Dir:         dir,
		GracePeriod: DefaultGracePeriod,
	}
}

// Execute implements Handler.
func (h *ExecHandler) Execute(ctx context.Context, req *protocol.Request) ([]byte, error) {
	logger := h.Logger
	if logger == nil {
		logger = log.WithComponent("plugin_exec")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Not CommandContext: termination is managed here so SIGTERM comes first.
	cmd := exec.Command(h.Entrypoint)
	cmd.Dir = h.Dir
	cmd.WaitDelay = h.grace()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout := &limitedBuffer{max: maxStdoutBytes}
	stderr := &limitedBuffer{max: maxStderrBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug("spawning plugin", "entrypoint", h.Entrypoint)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		writeErr <- protocol.EncodeRequest(stdin, req)
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		logger.Warn("plugin execution cancelled, sending SIGTERM", "reason", ctx.Err())
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			logger.Error("failed to send SIGTERM", "error", err)
		}

		grace := time.NewTimer(h.grace())
		defer grace.Stop()

		select {
		case <-waitErr:
			logger.Debug("plugin exited after SIGTERM")
		case <-grace.C:
			logger.Warn("plugin did not exit after SIGTERM, sending SIGKILL")
			if err := cmd.Process.Kill(); err != nil {
				logger.Error("failed to send SIGKILL", "error", err)
			}
			<-waitErr
		}
		return nil, &ExecError{ExitCode: -1, Stderr: stderr.String(), Err: ctx.Err()}

	case err := <-waitErr:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				logger.Warn("plugin exited with non-zero status", "exit_code", exitErr.ExitCode())
				return nil, &ExecError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String(), Err: err}
			}
			return nil, &ExecError{ExitCode: -1, Stderr: stderr.String(), Err: fmt.Errorf("wait for process: %w", err)}
		}
		// A plugin may exit without reading stdin; a broken pipe then is harmless.
		if werr := <-writeErr; werr != nil && !errors.Is(werr, syscall.EPIPE) {
			logger.Debug("request write failed", "error", werr)
		}
		if stdout.truncated {
			return nil, fmt.Errorf("plugin output exceeds %d bytes", maxStdoutBytes)
		}
		if s := strings.TrimSpace(stderr.String()); s != "" {
			logger.Debug("plugin stderr", "stderr", s)
		}
		return stdout.Bytes(), nil
	}
}

func (h *ExecHandler) grace() time.Duration {
	if h.GracePeriod > 0 {
		return h.GracePeriod
	}
	return DefaultGracePeriod
}

// limitedBuffer keeps the first max bytes written and discards the rest
// without failing the writer.
type limitedBuffer struct {
	bytes.Buffer
	max       int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.max - b.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.Buffer.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.Buffer.Write(p)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
