package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/microblog/microblog/pkg/logger"
	"github.com/sirupsen/logrus"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestLogger tags each request with an id, echoed in X-Request-ID, and
// logs one line per request once the handler chain has run.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
		})
		if userID := GetUserID(c); userID != 0 {
			entry = entry.WithFields(logrus.Fields{
				"user_id":  userID,
				"username": GetUsername(c),
			})
		}
		entry.Info("Request handled")
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
