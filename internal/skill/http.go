package skill

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/lexiqai/speech-practice/internal/alexa"
	"github.com/lexiqai/speech-practice/internal/observability"
	"github.com/lexiqai/speech-practice/internal/verify"
	"github.com/rs/zerolog"
)

const defaultMaxBodyBytes = 128 << 10

// RequestVerifier authenticates a raw request body
type RequestVerifier interface {
	Verify(ctx context.Context, header http.Header, body []byte) error
}

// HTTPHandler serves the skill endpoint
type HTTPHandler struct {
	skill        *Skill
	verifier     RequestVerifier
	tolerance    time.Duration
	maxBodyBytes int64
	now          func() time.Time
}

// HTTPOption configures an HTTPHandler
type HTTPOption func(*HTTPHandler)

// WithVerifier enables signature and timestamp checks
func WithVerifier(v RequestVerifier, tolerance time.Duration) HTTPOption {
	return func(h *HTTPHandler) {
		h.verifier = v
		h.tolerance = tolerance
	}
}

// WithMaxBodyBytes limits the request body size
func WithMaxBodyBytes(n int64) HTTPOption {
	return func(h *HTTPHandler) { h.maxBodyBytes = n }
}

// WithNow overrides the clock used for timestamp checks
func WithNow(now func() time.Time) HTTPOption {
	return func(h *HTTPHandler) { h.now = now }
}

// NewHTTPHandler creates the skill endpoint handler
func NewHTTPHandler(skill *Skill, opts ...HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		skill:        skill,
		maxBodyBytes: defaultMaxBodyBytes,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = observability.NewCorrelationID()
	}
	logger := observability.WithCorrelationID(correlationID)
	w.Header().Set("X-Correlation-ID", correlationID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		logger.Warn().Err(err).Msg("Failed to read request body")
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if h.verifier != nil {
		if err := h.verifier.Verify(r.Context(), r.Header, body); err != nil {
			h.reject(w, logger, err)
			return
		}
	}

	var env alexa.RequestEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		logger.Warn().Err(err).Msg("Malformed request envelope")
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	if h.verifier != nil {
		ts, err := env.Time()
		if err == nil {
			err = verify.CheckTimestamp(ts, h.now(), h.tolerance)
		} else {
			err = errors.Join(verify.ErrStaleRequest, err)
		}
		if err != nil {
			h.reject(w, logger, err)
			return
		}
	}

	ctx := logger.WithContext(r.Context())
	resp, err := h.skill.Invoke(ctx, &env)
	switch {
	case errors.Is(err, ErrSkillIDMismatch):
		logger.Warn().Err(err).Msg("Rejected request for another skill")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	case errors.Is(err, ErrMalformedRequest):
		logger.Warn().Err(err).Msg("Malformed request envelope")
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	case err != nil:
		logger.Error().Err(err).Msg("Skill invocation failed")
		observability.RecordError("invoke_error", "http")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Msg("Failed to write response")
	}
}

func (h *HTTPHandler) reject(w http.ResponseWriter, logger zerolog.Logger, err error) {
	reason := verify.Reason(err)
	observability.RecordVerificationFailure(reason)
	logger.Warn().Err(err).Str("reason", reason).Msg("Request verification failed")
	http.Error(w, "request verification failed", http.StatusBadRequest)
}
