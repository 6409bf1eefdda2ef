package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/svcgw/internal/observability"
)

// IPAllowlistConfig holds configuration for the IP allowlist middleware.
type IPAllowlistConfig struct {
	Allowed   Networks
	Extractor *ClientIPExtractor
	Logger    observability.Logger
}

// IPAllowlist rejects clients outside the allowed networks with
// 403 {"detail": "Access denied"}. An empty allowlist admits everyone.
func IPAllowlist(config IPAllowlistConfig) gin.HandlerFunc {
	if len(config.Allowed) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if config.Logger == nil {
		config.Logger = observability.NopLogger()
	}
	if config.Extractor == nil {
		config.Extractor = &ClientIPExtractor{}
	}

	return func(c *gin.Context) {
		clientIP := config.Extractor.Extract(c.Request)
		if config.Allowed.Contains(clientIP) {
			c.Next()
			return
		}

		config.Logger.WithContext(c.Request.Context()).Warn("client address not allowed",
			observability.String("client_ip", clientIP),
			observability.String("path", c.Request.URL.Path),
		)
		AbortWithDetail(c, http.StatusForbidden, DetailAccessDenied)
	}
}
