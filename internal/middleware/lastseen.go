package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microblog/microblog/pkg/logger"
)

type LastSeenToucher interface {
	TouchLastSeen(ctx context.Context, userID uint) error
}

const touchTimeout = 5 * time.Second

// LastSeen records activity for authenticated callers without delaying the
// response. The update outlives the request and its failure is only logged.
func LastSeen(toucher LastSeenToucher, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := GetUserID(c); userID != 0 {
			ctx := context.WithoutCancel(c.Request.Context())
			go func() {
				ctx, cancel := context.WithTimeout(ctx, touchTimeout)
				defer cancel()
				if err := toucher.TouchLastSeen(ctx, userID); err != nil {
					log.WithError(err).WithField("user_id", userID).Warn("Failed to update last seen")
				}
			}()
		}
		c.Next()
	}
}
