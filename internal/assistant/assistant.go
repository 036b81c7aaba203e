// Package assistant ties classification, dispatch and reply normalization
// into a single turn, and runs the interactive console loop.
package assistant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/aurras/internal/dispatch"
	"github.com/mattjoyce/aurras/internal/history"
	"github.com/mattjoyce/aurras/internal/log"
	"github.com/mattjoyce/aurras/internal/nlu"
	"github.com/mattjoyce/aurras/internal/response"
)

// Turn sources recorded in history.
const (
	SourceCLI      = "cli"
	SourceInteract = "interact"
	SourceTUI      = "tui"
	SourceAPI      = "api"
)

// Classifier turns a prompt into an intent and entities.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (nlu.Classification, error)
}

// Dispatcher routes a classification to a plugin.
type Dispatcher interface {
	Dispatch(ctx context.Context, cls nlu.Classification, prompt string) dispatch.Result
}

// Recorder stores answered turns.
type Recorder interface {
	Record(ctx context.Context, t history.Turn) error
}

// Reply is the full outcome of a turn. Only Envelope is meant for the user.
type Reply struct {
	TurnID         string
	Envelope       response.Envelope
	Classification nlu.Classification
	Result         dispatch.Result
	Duration       time.Duration
}

// Assistant answers prompts. It is safe for concurrent use when its
// collaborators are.
type Assistant struct {
	classifier Classifier
	router     Dispatcher
	recorder   Recorder
	logger     *slog.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithRecorder stores every turn. Recording failures are logged, never
// surfaced to the user.
func WithRecorder(r Recorder) Option {
	return func(a *Assistant) { a.recorder = r }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

func New(c Classifier, d Dispatcher, opts ...Option) *Assistant {
	a := &Assistant{
		classifier: c,
		router:     d,
		logger:     log.WithComponent("assistant"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask answers one prompt.
func (a *Assistant) Ask(ctx context.Context, prompt string) response.Envelope {
	return a.Respond(ctx, SourceCLI, prompt).Envelope
}

// Classify exposes the classification step on its own.
func (a *Assistant) Classify(ctx context.Context, prompt string) (nlu.Classification, error) {
	return a.classifier.Classify(ctx, prompt)
}

// Respond runs a full turn. A classifier failure is answered with the
// internal-error fallback; the conversation continues.
func (a *Assistant) Respond(ctx context.Context, source, prompt string) Reply {
	start := time.Now()
	turnID := uuid.NewString()
	ctx = dispatch.WithTurnID(ctx, turnID)
	logger := a.logger.With("turn_id", turnID, "source", source)

	reply := Reply{TurnID: turnID}

	cls, err := a.classifier.Classify(ctx, prompt)
	if err != nil {
		logger.Error("classification failed", "error", err)
		reply.Envelope = response.InternalError()
		reply.Result = dispatch.Failed(dispatch.KindPluginExecutionFailure, "", "classification: "+err.Error())
	} else {
		logger.Debug("prompt classified", "intent", cls.Intent, "entities", len(cls.Entities))
		reply.Classification = cls
		reply.Result = a.router.Dispatch(ctx, cls, prompt)
		reply.Envelope = response.Normalize(reply.Result)
	}
	reply.Duration = time.Since(start)

	a.record(ctx, logger, source, prompt, reply, start)
	return reply
}

func (a *Assistant) record(ctx context.Context, logger *slog.Logger, source, prompt string, r Reply, at time.Time) {
	if a.recorder == nil {
		return
	}
	turn := history.Turn{
		ID:          r.TurnID,
		Source:      source,
		Prompt:      prompt,
		Intent:      r.Classification.Intent,
		Entities:    r.Classification.Entities,
		Plugin:      r.Result.Plugin,
		Status:      string(r.Result.Status),
		FailureKind: string(r.Result.Kind),
		Detail:      r.Result.Detail,
		Response:    r.Envelope.Response,
		Duration:    r.Duration,
		CreatedAt:   at,
	}
	// The reply is already decided; a cancelled caller should not lose the record.
	if err := a.recorder.Record(context.WithoutCancel(ctx), turn); err != nil {
		logger.Warn("failed to record turn", "error", err)
	}
}

// IsExit reports whether a console line ends the session.
func IsExit(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), "exit")
}
