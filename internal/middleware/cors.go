package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/svcgw/internal/config"
)

var (
	defaultCORSMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	defaultCORSHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key", "X-Request-ID"}
)

// corsContext holds pre-computed values for the CORS middleware.
type corsContext struct {
	allowOrigins     map[string]bool
	allowAllOrigins  bool
	allowCredentials bool
	allowMethodsStr  string
	allowHeadersStr  string
	exposeHeadersStr string
	maxAgeStr        string
}

func newCORSContext(cfg config.CORSConfig) *corsContext {
	methods := cfg.AllowMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	headers := cfg.AllowHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}

	ctx := &corsContext{
		allowOrigins:     make(map[string]bool, len(cfg.AllowOrigins)),
		allowCredentials: cfg.AllowCredentials,
		allowMethodsStr:  strings.Join(methods, ", "),
		allowHeadersStr:  strings.Join(headers, ", "),
		exposeHeadersStr: strings.Join(cfg.ExposeHeaders, ", "),
	}
	if cfg.MaxAge > 0 {
		ctx.maxAgeStr = strconv.Itoa(cfg.MaxAge)
	}
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			ctx.allowAllOrigins = true
			continue
		}
		ctx.allowOrigins[origin] = true
	}

	return ctx
}

func (ctx *corsContext) originAllowed(origin string) bool {
	return ctx.allowAllOrigins || ctx.allowOrigins[origin]
}

func (ctx *corsContext) setCommonCORSHeaders(c *gin.Context, origin string) {
	// Credentialed responses may not use the wildcard origin.
	if ctx.allowAllOrigins && !ctx.allowCredentials {
		c.Header("Access-Control-Allow-Origin", "*")
	} else {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Add("Vary", HeaderOrigin)
	}

	if ctx.allowCredentials {
		c.Header("Access-Control-Allow-Credentials", "true")
	}
	if ctx.exposeHeadersStr != "" {
		c.Header("Access-Control-Expose-Headers", ctx.exposeHeadersStr)
	}
}

func (ctx *corsContext) setPreflightHeaders(c *gin.Context) {
	c.Header("Access-Control-Allow-Methods", ctx.allowMethodsStr)
	c.Header("Access-Control-Allow-Headers", ctx.allowHeadersStr)
	if ctx.maxAgeStr != "" {
		c.Header("Access-Control-Max-Age", ctx.maxAgeStr)
	}
}

// CORS returns a middleware applying cfg. Requests without an Origin
// header, or from origins not in the list, pass through untouched.
// Only real preflights (OPTIONS carrying Access-Control-Request-Method)
// are answered here; other OPTIONS requests reach the backend.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	ctx := newCORSContext(cfg)

	return func(c *gin.Context) {
		origin := c.GetHeader(HeaderOrigin)
		if origin == "" || !ctx.originAllowed(origin) {
			c.Next()
			return
		}

		ctx.setCommonCORSHeaders(c, origin)

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			ctx.setPreflightHeaders(c)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
