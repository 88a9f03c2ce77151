// Package server exposes the transport's introspection surface over HTTP:
// queue depths, circuit state, the latest refresh snapshot, and Prometheus
// metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/knoxav/chamctl/internal/client"
	"github.com/knoxav/chamctl/internal/config"
	"github.com/knoxav/chamctl/internal/logging"
	"github.com/knoxav/chamctl/internal/scheduler"
)

// SchedulerInfo is the scheduler introspection surface.
type SchedulerInfo interface {
	Depths() (high, low int)
	HighPending() bool
	Current() (string, bool)
	CircuitState() scheduler.CircuitState
}

// Snapshotter provides the last background refresh result.
type Snapshotter interface {
	Snapshot() (map[int]client.ZoneState, time.Time)
}

type Server struct {
	cfg       config.ServerConfig
	sched     SchedulerInfo
	snap      Snapshotter
	router    *gin.Engine
	log       zerolog.Logger
	startedAt time.Time
}

func New(cfg config.ServerConfig, sched SchedulerInfo, snap Snapshotter) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:       cfg,
		sched:     sched,
		snap:      snap,
		router:    gin.New(),
		log:       logging.Nop(),
		startedAt: time.Now(),
	}

	s.router.Use(gin.Recovery())
	if len(cfg.CorsOrigins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	s.registerRoutes()
	return s
}

func (s *Server) SetLogger(log zerolog.Logger) {
	s.log = log
}

// Router exposes the gin engine for httptest.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
