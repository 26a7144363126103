package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sezginpak/gold-price-analyzer-sub002/internal/infra"
	"github.com/sezginpak/gold-price-analyzer-sub002/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Server exposes the websocket endpoint and the REST introspection API
type Server struct {
	cfg     *infra.Config
	log     *slog.Logger
	hub     *Hub
	ingest  *service.IngestService
	sched   *service.Scheduler
	cache   *service.QuoteCache
	metrics *infra.Metrics

	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

// NewServer builds the gin router and the underlying http.Server
func NewServer(cfg *infra.Config, hub *Hub, ingest *service.IngestService, sched *service.Scheduler, cache *service.QuoteCache, log *slog.Logger, metrics *infra.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		log:     log,
		hub:     hub,
		ingest:  ingest,
		sched:   sched,
		cache:   cache,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from arbitrary origins
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware(), s.requestLogger())

	router.GET("/ws", s.handleWebSocket)

	api := router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/prices", s.handlePrices)
		api.GET("/status", s.handleStatus)
		api.GET("/stats", s.handleStats)
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", slog.String("addr", s.httpSrv.Addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until the context expires
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// handleWebSocket upgrades the connection and hands it to the hub. The hub's
// membership loop performs the capacity check and the forced initial send.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := newClient(s.hub, conn)
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.ingest.Status()
	status := "ok"
	if !st.CacheValid {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      status,
		"running":     st.Running,
		"cache_valid": st.CacheValid,
		"clients":     s.hub.ConnectionCount(),
	})
}

func (s *Server) handlePrices(c *gin.Context) {
	snap, last := s.cache.Snapshot()
	if snap.IsEmpty() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no prices yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"prices":      snap.Quotes,
		"last_update": last,
		"valid":       s.cache.IsValid(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":        s.cfg.App.Name,
		"version":    s.cfg.App.Version,
		"ingest":     s.ingest.Status(),
		"timeframes": s.sched.Status(),
		"clients":    s.hub.ConnectionCount(),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":     s.metrics.Snapshot(),
		"connections": s.hub.ConnectionStats(),
	})
}

// corsMiddleware adds permissive CORS headers for the dashboard frontend
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/ws" {
			// Upgraded connections log through the hub instead
			return
		}
		s.log.Debug("HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("took", time.Since(start)))
	}
}
