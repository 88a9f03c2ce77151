package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.startedAt).String(),
			"service": "chamctl",
		})
	})

	s.router.GET("/status", func(c *gin.Context) {
		high, low := s.sched.Depths()
		circuit := s.sched.CircuitState()
		status := gin.H{
			"queues": gin.H{
				"high": high,
				"low":  low,
			},
			"high_pending": s.sched.HighPending(),
			"breaker": gin.H{
				"consecutive_failures": circuit.ConsecutiveFailures,
			},
		}
		if !circuit.LastFailureAt.IsZero() {
			status["breaker"].(gin.H)["last_failure_at"] = circuit.LastFailureAt
		}
		if cmd, ok := s.sched.Current(); ok {
			status["current_command"] = cmd
		}
		c.JSON(http.StatusOK, status)
	})

	s.router.GET("/zones", func(c *gin.Context) {
		states, at := s.snap.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"refreshed_at": at,
			"zones":        states,
		})
	})

	s.router.GET("/zones/:zone", func(c *gin.Context) {
		zone, err := strconv.Atoi(c.Param("zone"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid zone"})
			return
		}
		states, at := s.snap.Snapshot()
		state, ok := states[zone]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "zone not in snapshot"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"refreshed_at": at,
			"zone":         state,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
