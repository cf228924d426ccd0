// Package server exposes the search service over HTTP.
package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Aman-CERP/rowsearch/internal/config"
	"github.com/Aman-CERP/rowsearch/internal/metrics"
	"github.com/Aman-CERP/rowsearch/internal/search"
	"github.com/Aman-CERP/rowsearch/internal/worker"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP front end.
type Server struct {
	cfg    config.ServerConfig
	router *gin.Engine
}

// SyncStatus reports the sync worker's progress on /health.
type SyncStatus interface {
	Healthy() bool
	Snapshot() worker.StatusSnapshot
}

// New builds the router: JSON API under /api/v1, static files from the
// public directory, /metrics and /health. sync may be nil.
func New(svc *search.Service, cfg config.ServerConfig, sync SyncStatus) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID(), requestLogger())

	router.GET("/health", health(sync))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	h := NewHandler(svc)
	api := router.Group("/api/v1")
	if cfg.RateLimit > 0 {
		limiter, err := newRateLimiter(cfg.RateLimit, cfg.RateBurst, maxTrackedClients)
		if err != nil {
			return nil, err
		}
		api.Use(limiter.middleware())
	}
	api.GET("/fields", h.Fields)
	api.POST("/search", h.Search)

	if cfg.PublicDir != "" {
		if info, err := os.Stat(cfg.PublicDir); err == nil && info.IsDir() {
			router.Static("/static", cfg.PublicDir)
			indexPage := filepath.Join(cfg.PublicDir, "index.html")
			if _, err := os.Stat(indexPage); err == nil {
				router.StaticFile("/", indexPage)
			}
		} else {
			slog.Warn("public_dir_missing", slog.String("path", cfg.PublicDir))
		}
	}

	return &Server{cfg: cfg, router: router}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_server_started", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("http_server_stopped")
	return nil
}

// health answers "ok", or "degraded" while the last sync cycle has failed.
// Searches keep working from the existing index either way.
func health(sync SyncStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		if sync == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		status := "ok"
		if !sync.Healthy() {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "sync": sync.Snapshot()})
	}
}
