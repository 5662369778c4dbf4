package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UnmatchedRoute labels requests that hit no admin route, so scanners cannot
// grow the metric label set.
const UnmatchedRoute = "unmatched"

// pollRoutes are hit on a fixed schedule by orchestrators and scrapers.
var pollRoutes = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// AdminAccess logs and counts admin HTTP requests by route template.
// Successful polls log at trace so they do not drown session logs.
func AdminAccess(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := RouteLabel(c)
		RecordHTTPRequest(c.Request.Method, route, status, elapsed)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case pollRoutes[route]:
			event = logger.Trace()
		default:
			event = logger.Debug()
		}
		event = event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Str("remote", c.ClientIP()).
			Int("bytes", c.Writer.Size())
		if route == UnmatchedRoute {
			event = event.Str("path", c.Request.URL.Path)
		}
		event.Msg("admin request")
	}
}

func RouteLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return UnmatchedRoute
}
