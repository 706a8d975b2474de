// Package stream serves the live practice WebSocket. Each connection is a
// session: the client sends words and receives their syllables as they are
// processed.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lexiqai/speech-practice/internal/alexa"
	"github.com/lexiqai/speech-practice/internal/observability"
	"github.com/lexiqai/speech-practice/internal/syllable"
	"github.com/rs/zerolog"
)

// Reply error codes
const (
	ErrCodeInvalidInput     = "invalid_input"
	ErrCodeMalformedMessage = "malformed_message"
)

// ClientMessage is a word sent by the practice client
type ClientMessage struct {
	ID   string `json:"id,omitempty"`
	Word any    `json:"word"`
}

// Reply is the answer to a single ClientMessage
type Reply struct {
	ID        string   `json:"id,omitempty"`
	Word      string   `json:"word,omitempty"`
	Syllables []string `json:"syllables,omitempty"`
	SSML      string   `json:"ssml,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Config tunes connection handling
type Config struct {
	MaxMessageBytes int64
	QueueSize       int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		MaxMessageBytes: 4096,
		QueueSize:       32,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingInterval:    50 * time.Second,
	}
}

// Server accepts practice stream connections
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// NewServer creates a stream server
func NewServer(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = def.MaxMessageBytes
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}

	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:   observability.GetLogger().With().Str("component", "practice_stream").Logger(),
		sessions: make(map[*Session]struct{}),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		s.logger.Warn().Err(err).Msg("Failed to upgrade practice stream")
		return
	}

	session := newSession(conn, s.cfg)
	if !s.track(session) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server is shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteWait))
		conn.Close()
		return
	}
	defer s.untrack(session)

	session.run()
}

// ActiveSessions returns the number of open sessions
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown closes every open session and rejects new ones. It waits until
// the sessions are gone or ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	open := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		open = append(open, session)
	}
	s.mu.Unlock()

	for _, session := range open {
		session.Close()
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.ActiveSessions() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Server) track(session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[session] = struct{}{}
	return true
}

func (s *Server) untrack(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session)
	s.mu.Unlock()
}

// Session holds the state of one practice connection
type Session struct {
	conn   *websocket.Conn
	cfg    Config
	logger zerolog.Logger

	out       chan Reply
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, cfg Config) *Session {
	correlationID := observability.NewCorrelationID()
	return &Session{
		conn: conn,
		cfg:  cfg,
		logger: observability.WithCorrelationID(correlationID).
			With().
			Str("remote_addr", conn.RemoteAddr().String()).
			Logger(),
		out:  make(chan Reply, cfg.QueueSize),
		done: make(chan struct{}),
	}
}

// Close ends the session. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) run() {
	observability.RecordStreamOpen()
	defer observability.RecordStreamClose()
	s.logger.Info().Msg("Practice stream opened")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()

	s.readLoop()
	s.Close()
	wg.Wait()
	s.conn.Close()

	s.logger.Info().Msg("Practice stream closed")
}

func (s *Session) readLoop() {
	s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("Practice stream read error")
			}
			return
		}
		observability.RecordStreamMessage("in")

		select {
		case s.out <- s.handle(message):
		case <-s.done:
			return
		}
	}
}

func (s *Session) handle(message []byte) Reply {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.logger.Debug().Err(err).Msg("Malformed practice message")
		observability.RecordError("malformed_message", "stream")
		return Reply{Error: ErrCodeMalformedMessage}
	}

	reply := Reply{ID: msg.ID}
	if word, ok := msg.Word.(string); ok {
		reply.Word = word
	}

	syllables, err := syllable.SplitValue(msg.Word)
	if err != nil {
		observability.RecordWord("stream", 0, false)
		s.logger.Debug().Err(err).Str("id", msg.ID).Msg("Rejected practice word")
		reply.Error = ErrCodeInvalidInput
		return reply
	}
	observability.RecordWord("stream", len(syllables), true)

	reply.Syllables = syllables
	reply.SSML = speak(syllables)
	return reply
}

func speak(syllables []string) string {
	escaped := make([]string, len(syllables))
	for i, s := range syllables {
		escaped[i] = alexa.EscapeSSML(s)
	}
	return "<speak>" + syllable.Join(escaped) + "</speak>"
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case reply := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteJSON(reply); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to write practice reply")
				s.abort()
				return
			}
			observability.RecordStreamMessage("out")

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.abort()
				return
			}

		case <-s.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteWait))
			// Unblock the reader if it is still waiting for the peer
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.WriteWait))
			return
		}
	}
}

// abort stops the session after a write failure and unblocks the reader
func (s *Session) abort() {
	s.Close()
	_ = s.conn.SetReadDeadline(time.Now())
}
