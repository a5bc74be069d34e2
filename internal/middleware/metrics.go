package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"friend-graph-service/internal/observability"
)

// ContextSignal carries the friend operation outcome a handler responded with.
const ContextSignal = "signal"

// unmatchedRoute labels requests no route matched, so raw paths never become label values.
const unmatchedRoute = "unmatched"

// Metrics records every request under its route template, e.g.
// /send-friend-request/:userId, together with the signal the handler set.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}

		observability.RecordHTTPRequest(
			c.Request.Method,
			route,
			c.Writer.Status(),
			c.GetString(ContextSignal),
			time.Since(start),
		)
	}
}
