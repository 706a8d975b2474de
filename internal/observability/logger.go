package observability

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	loggerOnce   sync.Once
	loggerMu     sync.RWMutex
)

// ParseLevel maps a config string to a zerolog level, falling back to info
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// NewLogger builds a logger writing to out. Pretty output is meant for local development.
func NewLogger(level string, pretty bool, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if pretty {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// InitLogger initializes the global structured logger
func InitLogger(level string, pretty bool) {
	loggerOnce.Do(func() {
		zerolog.SetGlobalLevel(ParseLevel(level))
		setLogger(NewLogger(level, pretty, os.Stdout))
	})
}

func setLogger(l zerolog.Logger) {
	loggerMu.Lock()
	globalLogger = l
	log.Logger = l
	loggerMu.Unlock()
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	InitLogger("info", false)
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return globalLogger
}

// WithCorrelationID creates a logger with a correlation ID
func WithCorrelationID(correlationID string) zerolog.Logger {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return GetLogger().With().Str("correlation_id", correlationID).Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
