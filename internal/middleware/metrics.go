package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/journal-api/internal/service"
)

// probes are not recorded.
var probes = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// Metrics records one observation per request, labelled by route template and never by raw path.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if _, skip := probes[route]; skip {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		if route == "" {
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
