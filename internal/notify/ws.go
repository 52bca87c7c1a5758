package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
)

const writeWait = 2 * time.Second

var ErrNoSession = errors.New("no ws session")

// WSSession represents a connected rider or driver session
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// WSRegistry holds user sessions and implements Sink.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRegistry{sessions: make(map[string]*WSSession), logger: logger}
}

// Add registers conn for userID, closing any session it replaces.
func (r *WSRegistry) Add(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	old := r.sessions[userID]
	r.sessions[userID] = &WSSession{conn: conn}
	r.mu.Unlock()
	if old != nil {
		_ = old.conn.Close()
	}
}

// Remove drops the session for userID if it still belongs to conn.
func (r *WSRegistry) Remove(userID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok && s.conn == conn {
		delete(r.sessions, userID)
	}
}

func (r *WSRegistry) Send(userID string, v any) error {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(v)
}

func (r *WSRegistry) Notify(ctx context.Context, userID string, e models.Event) {
	err := r.Send(userID, e)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSession):
		r.logger.DebugContext(ctx, "ws no session", "user_id", userID, "event", string(e.Type))
	default:
		r.logger.WarnContext(ctx, "ws send error", "user_id", userID, "error", err)
	}
}
