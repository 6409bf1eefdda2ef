package health

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/svcgw/internal/registry"
)

// Names of the built-in readiness checks.
const (
	CheckRegistry  = "registry"
	CheckMutualTLS = "mutual_tls"
)

// RegistryCheck is unhealthy when no service is enabled.
func RegistryCheck(reg *registry.Registry) CheckFunc {
	return func() Check {
		names := reg.Names()
		if len(names) == 0 {
			return Check{Status: StatusUnhealthy, Message: "no enabled services"}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d enabled services", len(names))}
	}
}

// MutualTLSCheck is degraded when an enabled service requires mutual TLS
// and available reports that no client material is loaded.
func MutualTLSCheck(reg *registry.Registry, available func() bool) CheckFunc {
	return func() Check {
		if !reg.RequiresMutualTLS() {
			return Check{Status: StatusHealthy, Message: "not required"}
		}
		if available() {
			return Check{Status: StatusHealthy}
		}
		return Check{Status: StatusDegraded, Message: "client certificate unavailable"}
	}
}

// ServicesResponse is the registry dump body.
type ServicesResponse struct {
	Status   Status                          `json:"status"`
	Services map[string]registry.ServiceInfo `json:"services"`
}

// ServicesHandler serves the registry dump at /health/services and
// {api_prefix}/health, listing every configured service including
// disabled ones.
func ServicesHandler(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, ServicesResponse{
			Status:   StatusHealthy,
			Services: reg.Snapshot(),
		})
	}
}
