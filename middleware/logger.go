package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"checkin-backend/utils"
)

// Logger writes one structured line per request, tagged with the
// request id set by RequestID.
func Logger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"client_ip", c.ClientIP(),
			"status", status,
			"latency", time.Since(start).String(),
		}

		reqLog := utils.Logger(c.Request.Context(), log)
		switch {
		case status >= 500:
			reqLog.Error("request", attrs...)
		case status >= 400:
			reqLog.Warn("request", attrs...)
		default:
			reqLog.Info("request", attrs...)
		}
	}
}
