package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Paashik/MyIS-sub004/internal/service"
)

// Metrics observes method, route template, status and duration for every
// request. Unmatched paths collapse into one label so cardinality stays
// bounded.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	if metrics == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
