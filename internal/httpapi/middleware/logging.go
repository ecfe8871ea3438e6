package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amd-agi/genforge/internal/logger/log"
)

// RequestLogging logs one structured line per completed request.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"clientIP": c.ClientIP(),
		}).Info("handled request")
	}
}
