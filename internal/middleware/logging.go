// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cookie-ai-go/pkg/log"
)

// RequestLogger 是一个 Gin 中间件，为每个请求生成 requestId 并记录访问日志。
// 不捕获请求体和响应体：上传接口的请求体可达数十 MB，聊天接口的响应是流式的。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("requestId", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()

		latency := time.Since(startTime)
		log.Infow("HTTP Request Log",
			"requestId", requestID,
			"statusCode", c.Writer.Status(),
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"errors", strings.Join(c.Errors.Errors(), "; "),
		)
	}
}
