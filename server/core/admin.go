package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewAdminRouter exposes health, counters and per-entity state as JSON.
func NewAdminRouter(s *Server, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Next()
		logger.Debug("admin request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()))
	})

	r.GET("/healthz", Health())
	r.GET("/stats", StatsHandler(s))
	r.GET("/entities", ListEntities(s))
	r.GET("/entities/:token", GetEntity(s))
	return r
}

func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func StatsHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg := s.Config()
		c.JSON(http.StatusOK, gin.H{
			"name":     cfg.Name,
			"version":  cfg.Version,
			"tickRate": cfg.TickRate,
			"stats":    s.Stats(),
		})
	}
}

func ListEntities(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"entities": s.Entities()})
	}
}

func GetEntity(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, ok := s.EntityByToken(c.Param("token"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown client token"})
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// AdminServer serves the admin router until its context is cancelled.
type AdminServer struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewAdminServer(addr string, s *Server, logger *zap.Logger) *AdminServer {
	logger = logger.Named("admin")
	return &AdminServer{
		srv:    &http.Server{Addr: addr, Handler: NewAdminRouter(s, logger), ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
	}
}

// Run blocks until ctx is done or the listener fails.
func (a *AdminServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("admin listening", zap.String("addr", a.srv.Addr))
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	}
}
