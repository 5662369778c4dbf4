package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/usgs/vdx/internal"
	"github.com/usgs/vdx/internal/observability"
)

// SourceInfo is the admin view of one descriptor.
type SourceInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Constructed bool   `json:"constructed"`
}

func (s *Server) newRouter() *gin.Engine {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.AdminAccess(s.logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(s.cfg.CORSOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(s.started).String(),
			"service":  internal.Name,
			"version":  internal.Version(),
			"sessions": s.ActiveSessions(),
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.Ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   s.Ready(),
			"uptime":  time.Since(s.started).String(),
			"service": internal.Name,
			"version": internal.Version(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/sources", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sources": s.ListSources()})
	})
	return r
}

// ListSources returns every descriptor with its construction state.
func (s *Server) ListSources() []SourceInfo {
	list := s.registry.List()
	out := make([]SourceInfo, 0, len(list))
	for _, d := range list {
		out = append(out, SourceInfo{
			Name:        d.Name,
			Kind:        d.Kind,
			Description: d.Description,
			Constructed: s.registry.Constructed(d.Name),
		})
	}
	return out
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
