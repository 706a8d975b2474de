// Package skill answers voice-platform requests for the syllable practice
// conversation. Requests run through an ordered chain of handlers; the first
// one that can handle a request answers it, and failures are routed to the
// error handlers.
package skill

import (
	"context"
	"errors"
	"fmt"

	"github.com/lexiqai/speech-practice/internal/alexa"
	"github.com/lexiqai/speech-practice/internal/observability"
	"github.com/rs/zerolog"
)

var (
	ErrMalformedRequest = errors.New("malformed request envelope")
	ErrSkillIDMismatch  = errors.New("application id does not match skill")
	ErrNoHandler        = errors.New("no handler for request")
)

// Input is the per-request state handed to handlers
type Input struct {
	Envelope *alexa.RequestEnvelope
	Logger   zerolog.Logger

	attrs map[string]any
}

// SessionAttributes returns the current session attributes
func (in *Input) SessionAttributes() map[string]any {
	return in.attrs
}

// SetSessionAttributes replaces the session attributes echoed in the response
func (in *Input) SetSessionAttributes(attrs map[string]any) {
	in.attrs = attrs
}

// StringAttribute returns a string session attribute
func (in *Input) StringAttribute(key string) (string, bool) {
	s, ok := in.attrs[key].(string)
	return s, ok && s != ""
}

// RequestHandler answers one kind of request
type RequestHandler interface {
	CanHandle(in *Input) bool
	Handle(ctx context.Context, in *Input) (*alexa.Response, error)
}

// ErrorHandler turns a handler failure into a response
type ErrorHandler interface {
	CanHandle(in *Input, err error) bool
	Handle(ctx context.Context, in *Input, err error) (*alexa.Response, error)
}

// Skill dispatches request envelopes to handlers
type Skill struct {
	skillID       string
	handlers      []RequestHandler
	errorHandlers []ErrorHandler
}

// Builder assembles a Skill
type Builder struct {
	skill Skill
}

// NewBuilder returns an empty skill builder
func NewBuilder() *Builder {
	return &Builder{}
}

// AddRequestHandlers appends handlers in priority order
func (b *Builder) AddRequestHandlers(handlers ...RequestHandler) *Builder {
	b.skill.handlers = append(b.skill.handlers, handlers...)
	return b
}

// AddErrorHandlers appends error handlers in priority order
func (b *Builder) AddErrorHandlers(handlers ...ErrorHandler) *Builder {
	b.skill.errorHandlers = append(b.skill.errorHandlers, handlers...)
	return b
}

// WithSkillID rejects requests from other applications. Empty accepts all.
func (b *Builder) WithSkillID(id string) *Builder {
	b.skill.skillID = id
	return b
}

// Build returns the configured skill
func (b *Builder) Build() *Skill {
	s := b.skill
	return &s
}

// Invoke answers a request envelope. A logger stored in ctx with
// zerolog's WithContext is used for request logs.
func (s *Skill) Invoke(ctx context.Context, env *alexa.RequestEnvelope) (*alexa.ResponseEnvelope, error) {
	if env == nil || env.Request == nil || env.Request.Type == "" {
		return nil, ErrMalformedRequest
	}
	if s.skillID != "" && env.ApplicationID() != s.skillID {
		return nil, fmt.Errorf("%w: got %q", ErrSkillIDMismatch, env.ApplicationID())
	}

	in := &Input{
		Envelope: env,
		Logger:   requestLogger(ctx, env),
		attrs:    env.SessionAttributes(),
	}

	metrics := observability.NewRequestMetrics(env.RequestType(), env.IntentName())
	defer metrics.RecordEnd()

	resp, err := s.dispatch(ctx, in)
	if err != nil {
		metrics.RecordError(errorType(err))
		in.Logger.Error().Err(err).Msg("Request handler failed")

		resp, err = s.handleError(ctx, in, err)
		if err != nil {
			return nil, err
		}
	}

	return alexa.NewResponseEnvelope(resp, in.attrs), nil
}

func (s *Skill) dispatch(ctx context.Context, in *Input) (resp *alexa.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()

	for _, h := range s.handlers {
		if h.CanHandle(in) {
			return h.Handle(ctx, in)
		}
	}
	return nil, fmt.Errorf("%w: %s %s", ErrNoHandler, in.Envelope.RequestType(), in.Envelope.IntentName())
}

func (s *Skill) handleError(ctx context.Context, in *Input, cause error) (*alexa.Response, error) {
	for _, h := range s.errorHandlers {
		if h.CanHandle(in, cause) {
			return h.Handle(ctx, in, cause)
		}
	}
	return nil, cause
}

func requestLogger(ctx context.Context, env *alexa.RequestEnvelope) zerolog.Logger {
	logger := *zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = observability.WithCorrelationID("")
	}
	return logger.With().
		Str("request_id", env.Request.RequestID).
		Str("request_type", env.RequestType()).
		Str("intent", env.IntentName()).
		Str("session_id", env.SessionID()).
		Logger()
}

func errorType(err error) string {
	if errors.Is(err, ErrNoHandler) {
		return "no_handler"
	}
	return "handler_error"
}
