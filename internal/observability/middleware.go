package observability

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// EpochFunc reports the current connection generation of the hub link.
type EpochFunc func() uint64

// RouteRegion maps a gateway route to the hub region it reads or writes.
func RouteRegion(route string) string {
	seg, _, _ := strings.Cut(strings.TrimPrefix(route, "/"), "/")
	switch seg {
	case "config":
		return "config"
	case "state", "clock":
		return "state"
	case "uptime":
		return "device"
	default:
		return "none"
	}
}

// CacheMode reports whether a request asked to be served from the region
// cache.
func CacheMode(raw string) string {
	if v, err := strconv.ParseBool(raw); err == nil && v {
		return "cached"
	}
	return "fresh"
}

// Outcome buckets a gateway status the way operators read it: rejected
// requests are the caller's fault, failed ones the link's.
func Outcome(status int) string {
	switch {
	case status >= 500:
		return "failed"
	case status >= 400:
		return "rejected"
	default:
		return "ok"
	}
}

// GatewayRequests logs and measures every gateway request by region and
// cache mode. A request during which epoch advanced forced the session to
// recover the link; the number of generations it moved is recorded.
func GatewayRequests(node string, logger zerolog.Logger, epoch EpochFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		before := epoch()
		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		region := RouteRegion(route)
		mode := CacheMode(c.Query("cache"))
		recoveries := epoch() - before

		RecordHTTPRequest(node, c.Request.Method, route, status, elapsed)
		RecordGatewayRequest(region, mode, Outcome(status), recoveries)

		event := logger.Debug()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400 || recoveries > 0:
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Str("region", region).
			Str("mode", mode).
			Int("status", status).
			Uint64("recoveries", recoveries).
			Dur("duration", elapsed).
			Msg("gateway: request")
	}
}
