// Package tcp exposes the relay room to plain socket clients using the
// same JSON envelopes as the WebSocket gateway, one object per line.
package tcp

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draftwire/relay/internal/chat/protocol"
	"github.com/draftwire/relay/internal/chat/room"
	"github.com/draftwire/relay/internal/config"
)

// Acceptor listens for TCP connections and runs a read loop per client.
type Acceptor struct {
	cfg    config.TCPConfig
	room   *room.Controller
	logger *zap.Logger

	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewAcceptor creates a TCP acceptor over the given room controller.
//
// Precondition: cfg must have a valid port; ctrl and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with Start.
func NewAcceptor(cfg config.TCPConfig, ctrl *room.Controller, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:    cfg,
		room:   ctrl,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
		quit:   make(chan struct{}),
	}
}

// Start begins accepting connections and blocks until Stop is called.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) Start() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("tcp gateway listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-a.quit:
				return nil
			default:
				a.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}

		a.track(conn)
		a.wg.Add(1)
		go a.handleConn(conn)
	}
}

// handleConn runs one client's session: register, read lines, deregister.
func (a *Acceptor) handleConn(raw net.Conn) {
	defer a.wg.Done()
	start := time.Now()
	addr := raw.RemoteAddr().String()

	a.logger.Info("client connected",
		zap.String("remote_addr", addr),
	)

	ch := newLineChannel(raw, a.cfg.WriteTimeout)
	sess := a.room.Connect(ch)

	defer func() {
		a.room.Disconnect(sess.ID)
		ch.Close()
		a.untrack(raw)
		_ = raw.Close()
		a.logger.Info("client disconnected",
			zap.String("remote_addr", addr),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	reader := bufio.NewReaderSize(raw, 4096)
	for {
		select {
		case <-a.quit:
			return
		default:
		}

		if a.cfg.ReadTimeout > 0 {
			_ = raw.SetReadDeadline(time.Now().Add(a.cfg.ReadTimeout))
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		cmd, err := protocol.Decode(line)
		if err != nil {
			a.logger.Debug("dropping invalid envelope",
				zap.String("remote_addr", addr),
				zap.Error(err),
			)
			continue
		}
		a.room.Handle(sess.ID, cmd)
	}
}

// Stop closes the listener and all live connections, then waits for the
// per-connection goroutines to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false

	close(a.quit)
	if a.listener != nil {
		_ = a.listener.Close()
	}
	for conn := range a.conns {
		_ = conn.Close()
	}
	a.mu.Unlock()

	a.wg.Wait()

	a.logger.Info("tcp gateway stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

func (a *Acceptor) track(conn net.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conns[conn] = struct{}{}
}

func (a *Acceptor) untrack(conn net.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.conns, conn)
}
