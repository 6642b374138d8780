package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLogger はリクエストごとにアクセスログを出力するGinミドルウェアを返す。
// ボディは読み取らないため、プロキシのストリーミングを妨げない。
func RequestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"bytes":      c.Writer.Size(),
		}
		if userID := GetUserID(c); userID != "" {
			fields["user_id"] = userID
		}
		entry := logger.WithFields(fields)

		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Warn("リクエストを処理しました")
		default:
			entry.Info("リクエストを処理しました")
		}
	}
}
