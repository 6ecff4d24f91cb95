// Package api serves the read-only HTTP surface: health, subscription
// status, position history and a websocket event stream. Everything is
// answered from the store; no handler ever calls an exchange.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"botcore/internal/events"
	"botcore/internal/strategy"
	"botcore/pkg/db"
)

// Config wires a Server.
type Config struct {
	Store         *db.Database
	Bus           *events.Bus
	Registry      *strategy.Registry
	RatePerSecond float64 // per-client request budget
}

// Server is the HTTP/WS front.
type Server struct {
	store    *db.Database
	bus      *events.Bus
	registry *strategy.Registry
	engine   *gin.Engine
}

// New builds the router.
func New(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		store:    cfg.Store,
		bus:      cfg.Bus,
		registry: cfg.Registry,
		engine:   gin.New(),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(requestLogger())
	if cfg.RatePerSecond > 0 {
		s.engine.Use(perClientRateLimit(cfg.RatePerSecond))
	}

	s.routes()
	return s
}

// Handler exposes the router for an http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/health", s.health)
	s.engine.GET("/ws", s.streamEvents)

	api := s.engine.Group("/api")
	{
		api.GET("/subscriptions", s.listSubscriptions)
		api.GET("/subscriptions/:id/status", s.subscriptionStatus)
		api.GET("/subscriptions/:id/cycles", s.recentCycles)
		api.GET("/positions", s.listPositions)
		api.GET("/strategies", s.listStrategies)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) listSubscriptions(c *gin.Context) {
	subs, err := s.store.ListSubscriptions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list subscriptions failed"})
		return
	}
	out := make([]gin.H, 0, len(subs))
	for _, sub := range subs {
		out = append(out, gin.H{
			"id":            sub.ID,
			"user_id":       sub.UserID,
			"exchange_type": sub.ExchangeType,
			"symbol":        sub.Symbol,
			"timeframe":     sub.Timeframe,
			"strategy_type": sub.StrategyType,
			"status":        sub.Status,
			"next_run_at":   sub.NextRunAt,
			"last_run_at":   sub.LastRunAt,
			"fault_note":    sub.FaultNote,
		})
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

func (s *Server) subscriptionStatus(c *gin.Context) {
	status, err := s.store.GetSubscriptionStatus(c.Request.Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status query failed"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) recentCycles(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50)
	cycles, err := s.store.ListRecentCycles(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cycle query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles})
}

func (s *Server) listPositions(c *gin.Context) {
	subID := c.Query("subscription")
	if subID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subscription query parameter required"})
		return
	}
	limit := parseLimit(c.Query("limit"), 100)
	positions, err := s.store.ListBySubscription(c.Request.Context(), subID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "position query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) listStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.registry.Names()})
}

func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}
