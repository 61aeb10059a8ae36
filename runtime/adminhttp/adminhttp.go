// Package adminhttp provides an optional, read-only admin/status HTTP
// surface over a *runtime.Runtime: session listing, per-session artifact
// stats, hook-pipeline metrics, and storage-backend health. It is
// strictly observability — it never mutates runtime state — built on
// gin the way the teacher's pkg/api.Server wraps its own session
// manager in handler methods on a Server struct.
package adminhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tarsy-substrate/substrate/runtime"
	"github.com/tarsy-substrate/substrate/storage"
)

// Server exposes the admin HTTP surface.
type Server struct {
	rt     *runtime.Runtime
	engine *gin.Engine
}

// New builds a Server wrapping rt. The returned *gin.Engine is also
// reachable via Handler for embedding in a larger mux or tests.
func New(rt *runtime.Runtime) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{rt: rt, engine: gin.New()}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run starts the HTTP server on addr, blocking until it exits.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/sessions", s.listSessions)
	s.engine.GET("/sessions/:id/stats", s.sessionStats)
	s.engine.GET("/metrics", s.metrics)
}

func (s *Server) healthz(c *gin.Context) {
	checker, ok := s.rt.Storage.(storage.HealthChecker)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	health, err := checker.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": health.Status, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           health.Status,
		"response_time_ms": health.ResponseTime.Milliseconds(),
		"open_connections": health.OpenConnections,
		"in_use":           health.InUse,
		"idle":             health.Idle,
	})
}

func (s *Server) listSessions(c *gin.Context) {
	tenant := c.Query("tenant")
	if tenant == "" {
		tenant = "default"
	}
	sessions := s.rt.Sessions.List(tenant)
	out := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, gin.H{
			"id":             sess.ID,
			"status":         sess.Status,
			"artifact_count": sess.ArtifactCount,
			"storage_bytes":  sess.StorageBytes,
			"last_heartbeat": sess.LastHeartbeat,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tenant": tenant, "sessions": out})
}

func (s *Server) sessionStats(c *gin.Context) {
	id := c.Param("id")
	stats, err := s.rt.Artifacts.Stats(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"artifact_count":   stats.ArtifactCount,
		"total_size_bytes": stats.TotalSizeBytes,
		"last_updated":     stats.LastUpdated,
	})
}

func (s *Server) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"hook_executions": s.rt.Metrics.Snapshot()})
}
