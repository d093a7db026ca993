// Package api exposes a small read-only HTTP surface for monitoring the bot.
package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/colbyharris/pcforge/internal/session"
	"github.com/colbyharris/pcforge/pkg/utils"
)

// CatalogChecker reports whether the parts catalog is loadable
type CatalogChecker interface {
	CheckCatalog() error
}

// Server wraps the gin engine so tests can drive routes without a listener
type Server struct {
	engine    *gin.Engine
	port      string
	store     *session.Store
	catalog   CatalogChecker
	startedAt time.Time
}

// New builds the server and its routes
func New(cfg *utils.Config, store *session.Store, catalog CatalogChecker) *Server {
	engine := gin.Default()

	// Add trusted proxies
	engine.SetTrustedProxies(nil)

	// Add CORS using gin-contrib/cors (https://github.com/gin-contrib/cors for documentation)
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.GetWithDefault("CORS_ALLOWED_ORIGINS", "*"), ","),
		AllowMethods:     []string{"OPTIONS", "GET"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s := &Server{
		engine:    engine,
		port:      cfg.GetWithDefault("API_PORT", "8080"),
		store:     store,
		catalog:   catalog,
		startedAt: time.Now(),
	}

	// Base group '/api' for all API routes
	baseGroup := engine.Group("/api")
	baseGroup.GET("/health", s.getHealth)
	baseGroup.GET("/sessions/:id", s.getSession)

	return s
}

// Start runs the listener until the context is cancelled
func (s *Server) Start(ctx context.Context) {
	srv := &http.Server{Addr: ":" + s.port, Handler: s.engine}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[API]: listening on :%s", s.port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[API]: server stopped: %v", err)
	}
}

// Handler exposes the engine for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// getHealth reports readiness: catalog state, session load, uptime
func (s *Server) getHealth(c *gin.Context) {
	status := "ok"
	httpStatus := http.StatusOK
	var catalogErr string
	if err := s.catalog.CheckCatalog(); err != nil {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
		catalogErr = err.Error()
	}

	c.JSON(httpStatus, gin.H{
		"status":          status,
		"catalog_error":   catalogErr,
		"active_sessions": s.store.Count(),
		"uptime_seconds":  int(time.Since(s.startedAt).Seconds()),
	})
}

// getSession reports one session's phase and progress. No transcript or
// build content leaves this endpoint
func (s *Server) getSession(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer user id"})
		return
	}

	sess, ok := s.store.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session for user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":          sess.UserID,
		"phase":            sess.Phase,
		"slots_collected":  len(sess.Slots),
		"messages":         len(sess.Transcript),
		"has_build":        sess.BuildResult != "",
		"last_activity_at": sess.LastActivityAt,
	})
}
