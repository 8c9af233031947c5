// Package api exposes the council over HTTP: webhook ingest, session
// and deliberation endpoints for agents, review and dashboard endpoints
// for humans, and the WebSocket event stream.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conclave-hq/conclave/pkg/events"
	"github.com/conclave-hq/conclave/pkg/orchestrator"
	"github.com/conclave-hq/conclave/pkg/registry"
	"github.com/conclave-hq/conclave/pkg/store"
)

// Server holds the handlers' collaborators. Handlers stay thin: bind,
// validate shape, call the orchestrator, map the error.
type Server struct {
	orch        *orchestrator.Orchestrator
	registry    *registry.Registry
	store       store.Interface
	connManager *events.ConnectionManager

	// configPath is the council file reloaded by POST /api/v1/config/reload.
	// Empty when the process was started without one.
	configPath string

	logger *slog.Logger
}

// Config carries the server's dependencies.
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Registry     *registry.Registry
	Store        store.Interface
	ConnManager  *events.ConnectionManager
	ConfigPath   string
}

// NewServer creates an API server. The WebSocket connection manager is
// optional; without it GET /ws answers 503.
func NewServer(cfg Config) *Server {
	return &Server{
		orch:        cfg.Orchestrator,
		registry:    cfg.Registry,
		store:       cfg.Store,
		connManager: cfg.ConnManager,
		configPath:  cfg.ConfigPath,
		logger:      slog.Default().With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())

	r.GET("/health", s.healthHandler)
	r.GET("/ws", s.wsHandler)

	// Webhook ingest is unauthenticated at this layer; signature
	// verification belongs to the proxy in front.
	r.POST("/webhooks/:source", s.webhookHandler)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/sessions", s.listSessionsHandler)
		v1.POST("/sessions", s.createSessionHandler)
		v1.GET("/sessions/:id", s.getSessionHandler)
		v1.POST("/sessions/:id/abort", s.abortSessionHandler)
		v1.POST("/sessions/:id/phase", s.transitionPhaseHandler)
		v1.POST("/sessions/:id/review", s.submitReviewHandler)

		v1.GET("/agents", s.listAgentsHandler)
		v1.GET("/decisions/pending", s.pendingDecisionsHandler)
		v1.GET("/events", s.listEventsHandler)
		v1.POST("/config/reload", s.reloadConfigHandler)

		// Agent-facing deliberation endpoints. The acting agent comes
		// from the bearer token, never from the body.
		agent := v1.Group("", s.agentAuth())
		{
			agent.POST("/sessions/:id/proposal", s.createProposalHandler)
			agent.POST("/sessions/:id/messages", s.postMessageHandler)
			agent.POST("/sessions/:id/votes", s.castVoteHandler)
		}
	}

	return r
}
