// Package main provides the relay server binary: a single-room broadcast
// relay reachable over WebSocket and plain TCP.
package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/draftwire/relay/internal/chat/broadcast"
	"github.com/draftwire/relay/internal/chat/room"
	"github.com/draftwire/relay/internal/chat/session"
	"github.com/draftwire/relay/internal/config"
	"github.com/draftwire/relay/internal/gateway/tcp"
	"github.com/draftwire/relay/internal/gateway/ws"
	"github.com/draftwire/relay/internal/observability"
	"github.com/draftwire/relay/internal/server"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting relay server",
		zap.String("websocket_addr", cfg.WebSocket.Addr()),
		zap.Bool("tcp_enabled", cfg.TCP.Enabled),
	)

	registry := session.NewRegistry()
	publisher := broadcast.NewPublisher(logger)
	controller := room.NewController(registry, publisher, room.WallClock, logger)

	lc := server.NewLifecycle(logger)
	lc.Add("websocket-gateway", ws.NewServer(cfg.WebSocket, cfg.Chat, controller, logger))
	if cfg.TCP.Enabled {
		lc.Add("tcp-gateway", tcp.NewAcceptor(cfg.TCP, controller, logger))
	}

	if err := lc.Run(context.Background()); err != nil {
		logger.Fatal("lifecycle error", zap.Error(err))
	}
}
