// Package server assembles the HTTP surface: query API, websocket control
// channel, swagger docs, and the middleware chain.
package server

import (
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/observer/proctord/internal/api"
	"github.com/observer/proctord/internal/config"
	"github.com/observer/proctord/internal/middleware"
	"github.com/observer/proctord/internal/websocket"
)

// Dependencies holds all service dependencies for the server
type Dependencies struct {
	RoomHandler     *api.RoomHandler
	AnalysisHandler *api.AnalysisHandler
	WSHandler       *websocket.Handler
	RateLimiter     *middleware.RateLimiter
	Logger          *slog.Logger
}

// New creates an HTTP server with all routes configured.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()

	registerRoutes(mux, deps)

	// Wrap with middleware
	handler := chainMiddleware(mux,
		requestIDMiddleware,
		corsMiddleware(cfg),
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)

	return &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	// Health checks - /healthz for load balancers, /health with feature flags
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /health", deps.RoomHandler.Health)

	// Query API, rate limited per client
	limited := func(h http.HandlerFunc) http.Handler {
		return deps.RateLimiter.Middleware(h)
	}
	mux.Handle("GET /rooms/{roomId}/incidents", limited(deps.RoomHandler.GetIncidents))
	mux.Handle("POST /rooms/{roomId}/incidents", limited(deps.RoomHandler.PostIncident))
	mux.Handle("GET /rooms/{roomId}/sessions/{userId}/summary", limited(deps.RoomHandler.GetSessionSummary))
	mux.Handle("GET /rooms/{roomId}/sfu/stats", limited(deps.RoomHandler.GetSFUStats))

	// Analysis task control and history
	mux.Handle("POST /api/analysis/start/{roomId}/{candidateId}", limited(deps.AnalysisHandler.Start))
	mux.Handle("POST /api/analysis/stop/{candidateId}", limited(deps.AnalysisHandler.Stop))
	mux.Handle("GET /api/analysis/history/{roomId}/{candidateId}", limited(deps.AnalysisHandler.History))

	// API documentation
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)

	// WebSocket control channel
	mux.Handle("GET /ws/{roomId}", deps.WSHandler)
}
