package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/svcgw/internal/middleware"
	"github.com/vyrodovalexey/svcgw/internal/observability"
	"github.com/vyrodovalexey/svcgw/internal/proxy"
)

// hopHeaders are connection-scoped and never relayed to the client.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// registryDumpName is the bare route under the API prefix that serves the
// registry dump when no enabled service claims the name.
const registryDumpName = "health"

// proxyHandler adapts the forwarding engine to gin.
type proxyHandler struct {
	engine  *proxy.Engine
	maxBody int64
	logger  observability.Logger
	// services serves GET {prefix}/health.
	services gin.HandlerFunc
}

func (h *proxyHandler) handle(c *gin.Context) {
	service := c.Param(middleware.ServiceParam)
	if service == "" {
		middleware.AbortWithDetail(c, http.StatusNotFound, middleware.DetailRouteNotFound)
		return
	}
	if h.servesRegistryDump(c, service) {
		h.services(c)
		return
	}

	req, err := proxy.NewProxyRequest(c.Request, service, h.maxBody)
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, proxy.ErrBodyTooLarge) {
			middleware.AbortWithDetail(c, http.StatusRequestEntityTooLarge, middleware.DetailRequestTooLarge)
			return
		}
		h.logger.WithContext(c.Request.Context()).Warn("failed to read request body",
			observability.String("service", service),
			observability.Error(err),
		)
		middleware.AbortWithDetail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.engine.Forward(c.Request.Context(), req)
	if err != nil {
		ferr := proxy.AsForwardError(err)
		_ = c.Error(ferr)
		middleware.AbortWithDetail(c, ferr.StatusCode(), ferr.PublicDetail())
		return
	}

	writeResponse(c, resp)
}

func (h *proxyHandler) servesRegistryDump(c *gin.Context, service string) bool {
	if h.services == nil || service != registryDumpName || c.Request.Method != http.MethodGet {
		return false
	}
	if c.Param("path") != "" {
		return false
	}
	_, err := h.engine.Registry().Lookup(service)
	return err != nil
}

// writeResponse relays status, end-to-end headers and body verbatim.
func writeResponse(c *gin.Context, resp *proxy.ProxyResponse) {
	dst := c.Writer.Header()
	for key, values := range relayHeaders(resp.Header) {
		if key == http.CanonicalHeaderKey(middleware.HeaderXRequestID) && dst.Get(key) != "" {
			continue
		}
		dst[key] = values
	}

	// A declared length that disagrees with the buffered body would
	// corrupt the client connection. HEAD responses carry no body.
	if cl := dst.Get("Content-Length"); cl != "" && c.Request.Method != http.MethodHead {
		if n, err := strconv.Atoi(cl); err != nil || n != len(resp.Body) {
			dst.Del("Content-Length")
		}
	}

	c.Status(resp.StatusCode)
	if len(resp.Body) > 0 && bodyAllowed(resp.StatusCode) {
		_, _ = c.Writer.Write(resp.Body)
	} else {
		c.Writer.WriteHeaderNow()
	}
}

// relayHeaders returns a copy of h without hop-by-hop headers, including
// those listed in its Connection header.
func relayHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		return http.Header{}
	}
	for _, v := range out.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				out.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		out.Del(name)
	}
	return out
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// infoResponse is the body of GET /.
type infoResponse struct {
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	APIPrefix string    `json:"api_prefix"`
}

func (g *Gateway) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, infoResponse{
		Service:   g.config.App.Name,
		Version:   g.config.App.Version,
		Timestamp: g.now().UTC(),
		APIPrefix: g.config.App.APIPrefix,
	})
}
