package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/observer/proctord/docs"
	"github.com/observer/proctord/internal/analysis"
	"github.com/observer/proctord/internal/api"
	"github.com/observer/proctord/internal/config"
	"github.com/observer/proctord/internal/middleware"
	"github.com/observer/proctord/internal/pubsub"
	"github.com/observer/proctord/internal/room"
	"github.com/observer/proctord/internal/rules"
	"github.com/observer/proctord/internal/server"
	rtc "github.com/observer/proctord/internal/webrtc"
	"github.com/observer/proctord/internal/websocket"
)

func main() {
	// Structured logging from the start
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PubSub (in-memory for single instance, Redis for horizontal scaling)
	var ps pubsub.PubSub
	if cfg.PubSubType == "redis" {
		ps, err = pubsub.NewRedisPubSub(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
	} else {
		ps = pubsub.NewMemoryPubSub()
	}
	defer ps.Close()

	// Rules engine and room registry
	engine := rules.NewEngine(logger)
	registry := room.NewRegistry(cfg.RoomIncidentCap, logger)

	// SFU core
	iceServers := rtc.ICEServers(cfg.ICESTUNURLs, cfg.ICETURNURLs, cfg.TURNUsername, cfg.TURNPassword)
	media, err := rtc.NewCore(cfg.SFUEnabled, iceServers, ps, logger)
	if err != nil {
		slog.Error("failed to initialize SFU", "error", err)
		os.Exit(1)
	}
	slog.Info("signaling configured", "mode", cfg.Mode(), "ai_analysis", cfg.AIAnalysisEnabled)

	// Analysis runner
	runner := analysis.NewRunner(registry, engine, logger)

	// When a room empties, all per-room state goes with it
	registry.OnDestroy(engine.DropRoom)
	registry.OnDestroy(media.CloseRoom)
	registry.OnDestroy(runner.StopRoom)

	// WebSocket control channel
	wsHandler := websocket.NewHandler(registry, engine, media, runner, ps, cfg.AIAnalysisEnabled, logger)

	// Query API handlers
	roomHandler := api.NewRoomHandler(registry, engine, media, cfg, logger)
	analysisHandler := api.NewAnalysisHandler(registry, runner, cfg.AIAnalysisEnabled, logger)

	// Create and start server
	deps := &server.Dependencies{
		RoomHandler:     roomHandler,
		AnalysisHandler: analysisHandler,
		WSHandler:       wsHandler,
		RateLimiter:     middleware.NewRateLimiter(cfg.RateLimitPerMin),
		Logger:          logger,
	}

	srv := server.New(cfg, deps)

	// Graceful shutdown setup
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-shutdownCtx.Done()
	slog.Info("shutting down gracefully...")

	// Stop all analysis tasks before tearing down connections
	runner.StopAll()

	// Give active connections 10 seconds to finish
	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
