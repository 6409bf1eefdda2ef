package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/svcgw/internal/observability"
)

// ServiceMatcher reports whether name is a configured service. It keeps
// arbitrary path segments out of the metric label space.
type ServiceMatcher func(name string) bool

// MetricsConfig holds configuration for the metrics middleware.
type MetricsConfig struct {
	Metrics   *observability.Metrics
	IsService ServiceMatcher
	SkipPaths []string
}

// Metrics returns a middleware recording request count, latency and
// response size per method, service and status.
func Metrics(config MetricsConfig) gin.HandlerFunc {
	if config.Metrics == nil {
		return func(c *gin.Context) { c.Next() }
	}

	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		config.Metrics.IncActiveRequests()
		defer config.Metrics.DecActiveRequests()

		c.Next()

		config.Metrics.RecordRequest(
			c.Request.Method,
			serviceLabel(c, config.IsService),
			c.Writer.Status(),
			time.Since(start),
			c.Writer.Size(),
		)
	}
}

func serviceLabel(c *gin.Context, isService ServiceMatcher) string {
	name := c.Param(ServiceParam)
	if name == "" || isService == nil || !isService(name) {
		return observability.UnmatchedService
	}
	return name
}
