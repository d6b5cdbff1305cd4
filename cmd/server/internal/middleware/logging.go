package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/studysphere/studysphere/pkg/logger"
)

// RequestIDKey gin context 中请求 ID 的键
const RequestIDKey = "request_id"

// RequestLogger 写入结构化请求日志并注入 request_id
// 客户端传入 X-Request-ID 时沿用，否则生成新的 UUID
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	log = logger.Or(log).With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(RequestIDKey, reqID)
		c.Writer.Header().Set("X-Request-ID", reqID)

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		attrs := []any{
			"rid", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", duration.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if user := c.GetString(UserIDKey); user != "" {
			attrs = append(attrs, "user_id", user)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("http_request", attrs...)
		case status >= 400:
			log.Warn("http_request", attrs...)
		default:
			log.Info("http_request", attrs...)
		}
	}
}
