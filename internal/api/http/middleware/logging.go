package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sealkeep/sessionvault/internal/logger"
)

// Logging logs method, path, duration and status for each request. Bodies
// are never logged: they carry raw credentials.
func Logging(logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("http request completed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
