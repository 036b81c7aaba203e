package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/aurras/internal/config"
	"github.com/mattjoyce/aurras/internal/log"
	"github.com/mattjoyce/aurras/internal/nlu"
	"github.com/mattjoyce/aurras/internal/plugin"
	"github.com/mattjoyce/aurras/internal/protocol"
)

// ErrPluginPanic marks a handler that panicked during a turn.
var ErrPluginPanic = errors.New("plugin panicked")

type turnIDKey struct{}

// WithTurnID attaches a turn id to ctx. Dispatch generates one when absent.
func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, turnIDKey{}, id)
}

// TurnID returns the turn id carried by ctx, if any.
func TurnID(ctx context.Context) string {
	id, _ := ctx.Value(turnIDKey{}).(string)
	return id
}

// Router selects and invokes plugins. It holds no per-turn state and is safe
// for concurrent use once the registry is fully loaded.
type Router struct {
	registry *plugin.Registry
	timeout  func(name string) time.Duration
	cascade  bool
	logger   *slog.Logger
}

// New creates a Router over a loaded registry.
func New(reg *plugin.Registry, cfg *config.Config) *Router {
	if cfg == nil {
		cfg = config.Defaults()
	}
	return &Router{
		registry: reg,
		timeout:  cfg.PluginTimeout,
		cascade:  cfg.Dispatch.Cascade,
		logger:   log.WithComponent("dispatch"),
	}
}

// Dispatch answers one classified prompt. It never returns an error: every
// failure mode is folded into the Result.
func (r *Router) Dispatch(ctx context.Context, cls nlu.Classification, prompt string) Result {
	turnID := TurnID(ctx)
	if turnID == "" {
		turnID = uuid.NewString()
	}
	logger := r.logger.With("turn_id", turnID, "intent", cls.Intent)
	logger.Debug("turn received", "entities", len(cls.Entities))

	candidates := r.registry.Candidates(cls.Intent)
	if len(candidates) == 0 {
		res := Failed(KindNoPluginForIntent, "", fmt.Sprintf("no plugin accepts intent %q", cls.Intent))
		logger.Info("turn failed", "kind", res.Kind)
		return res
	}

	var res Result
	for i, d := range candidates {
		pluginLogger := logger.With("plugin", d.Name)
		pluginLogger.Info("turn routed", "priority", d.Priority, "candidate", i+1, "of", len(candidates))

		res = r.invoke(ctx, d, turnID, cls, prompt, pluginLogger)
		if res.OK() {
			pluginLogger.Info("turn succeeded")
			return res
		}
		pluginLogger.Warn("turn failed", "kind", res.Kind, "detail", res.Detail)

		if !r.cascade || ctx.Err() != nil {
			break
		}
	}
	return res
}

type outcome struct {
	out []byte
	err error
}

// invoke runs a single handler under its timeout and converts whatever it
// does into a Result.
func (r *Router) invoke(
	ctx context.Context,
	d *plugin.Descriptor,
	turnID string,
	cls nlu.Classification,
	prompt string,
	logger *slog.Logger,
) Result {
	timeout := r.timeout(d.Name)
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	deadline, _ := ictx.Deadline()
	entities := cls.Entities
	if entities == nil {
		entities = []nlu.Entity{}
	}
	req := &protocol.Request{
		Protocol:   protocol.Version,
		TurnID:     turnID,
		Intent:     cls.Intent,
		Entities:   entities,
		Prompt:     prompt,
		Config:     d.Config,
		DeadlineAt: deadline.UTC(),
	}

	// Buffered so an abandoned handler can still finish and be collected.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("plugin panicked", "panic", p, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("%w: %v", ErrPluginPanic, p)}
			}
		}()
		out, err := d.Handler.Execute(ictx, req)
		done <- outcome{out: out, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ictx.Done():
		if errors.Is(ictx.Err(), context.DeadlineExceeded) {
			return Failed(KindPluginExecutionFailure, d.Name, fmt.Sprintf("timed out after %s", timeout))
		}
		return Failed(KindPluginExecutionFailure, d.Name, "cancelled: "+ictx.Err().Error())
	}

	if o.err != nil {
		if errors.Is(o.err, context.DeadlineExceeded) {
			return Failed(KindPluginExecutionFailure, d.Name, fmt.Sprintf("timed out after %s", timeout))
		}
		return Failed(KindPluginExecutionFailure, d.Name, o.err.Error())
	}

	resp, err := protocol.DecodeResponse(o.out)
	if err != nil {
		return Failed(KindMalformedPluginResponse, d.Name, err.Error())
	}
	relayLogs(logger, resp.Logs)
	if resp.Failed() {
		return Failed(KindPluginExecutionFailure, d.Name, "plugin reported error: "+resp.Error)
	}
	return Succeeded(d.Name, resp.Response)
}

// relayLogs forwards log lines a plugin returned alongside its response.
func relayLogs(logger *slog.Logger, entries []protocol.LogEntry) {
	for _, e := range entries {
		switch strings.ToLower(e.Level) {
		case "error":
			logger.Error(e.Message, "source", "plugin")
		case "warn", "warning":
			logger.Warn(e.Message, "source", "plugin")
		case "debug":
			logger.Debug(e.Message, "source", "plugin")
		default:
			logger.Info(e.Message, "source", "plugin")
		}
	}
}
