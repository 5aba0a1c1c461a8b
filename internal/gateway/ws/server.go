// Package ws exposes the relay room over WebSocket. It owns the HTTP
// listener, upgrades connections, and pipes frames between sockets and
// the room controller; all chat semantics live behind the controller.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/draftwire/relay/internal/chat/protocol"
	"github.com/draftwire/relay/internal/chat/room"
	"github.com/draftwire/relay/internal/config"
)

// Server serves the /ws endpoint and a /healthz probe.
type Server struct {
	cfg      config.WebSocketConfig
	chat     config.ChatConfig
	room     *room.Controller
	logger   *zap.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	running    bool
}

// NewServer creates a WebSocket gateway over the given room controller.
//
// Precondition: ctrl and logger must be non-nil.
// Postcondition: Returns a Server ready to be started with Start.
func NewServer(cfg config.WebSocketConfig, chat config.ChatConfig, ctrl *room.Controller, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		chat:   chat,
		room:   ctrl,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The relay is origin-agnostic; auth and origin policy are
			// out of scope for this service.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleSocket)
	mux.HandleFunc("/healthz", handleHealth)
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start listens on the configured address and serves until Stop is called.
// This method blocks.
//
// Precondition: The server must not already be running.
func (s *Server) Start() error {
	start := time.Now()

	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("websocket gateway listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := s.httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket gateway: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down, bounded by the configured
// shutdown timeout. Live sockets past the deadline are closed hard.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("websocket gateway shutdown incomplete", zap.Error(err))
		_ = s.httpServer.Close()
	}

	s.logger.Info("websocket gateway stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleSocket upgrades the request and runs the connection's read loop.
// The goroutine serving the HTTP request becomes the read pump; writes go
// through the channel's write pump.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	conn.SetReadLimit(s.cfg.ReadLimit)

	ch := newChannel(conn, s.chat.SendBuffer, s.cfg.WriteTimeout)
	go ch.writePump()

	sess := s.room.Connect(ch)
	defer func() {
		s.room.Disconnect(sess.ID)
		ch.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				s.logger.Debug("websocket read error",
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
			}
			return
		}

		cmd, err := protocol.Decode(raw)
		if err != nil {
			// Malformed input is dropped without a reply.
			s.logger.Debug("dropping invalid envelope",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			continue
		}
		s.room.Handle(sess.ID, cmd)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
