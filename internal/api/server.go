// Package api exposes the chat core as a JSON HTTP surface for the external
// UI: conversation CRUD, turn submission and single-document chat.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paperchat/paperchat/internal/chat"
	"github.com/paperchat/paperchat/internal/conversation"
	"github.com/paperchat/paperchat/internal/log"
	"github.com/paperchat/paperchat/internal/search"
)

// ServerConfig contains the dependencies for the API server.
type ServerConfig struct {
	Logger       log.Logger
	Store        conversation.Store      // Required
	Orchestrator *chat.Orchestrator      // Required
	DocChat      *chat.DocChat           // Required
	Resolver     search.FullTextResolver // Optional: nil requires callers to inline paper text
	Pool         *pgxpool.Pool           // Optional: nil disables the database readiness probe
	TrustProxy   bool                    // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst    int                     // Rate limiter burst per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("conversation store is required")
	}
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.DocChat == nil {
		return nil, errors.New("document chat is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &conversationHandler{store: cfg.Store, orch: cfg.Orchestrator, logger: logger}
	ph := &paperHandler{docs: cfg.DocChat, resolver: cfg.Resolver, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/conversations", ch.list)
	mux.HandleFunc("POST /api/v1/conversations", ch.create)
	mux.HandleFunc("GET /api/v1/conversations/{id}", ch.get)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", ch.delete)

	mux.HandleFunc("POST /api/v1/conversations/messages", ch.submit)
	mux.HandleFunc("POST /api/v1/conversations/{id}/messages", ch.submit)

	mux.HandleFunc("POST /api/v1/papers/{id}/messages", ph.submit)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID runs before Logging so request_id is available in log
	// attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes stay outside the middleware stack so orchestration
	// checks are never rate limited.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
