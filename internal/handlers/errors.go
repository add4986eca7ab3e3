package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microblog/microblog/internal/middleware"
	"github.com/microblog/microblog/internal/services"
	"github.com/microblog/microblog/pkg/logger"
	"github.com/sirupsen/logrus"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrDuplicateIdentity):
		return http.StatusConflict
	case errors.Is(err, services.ErrSelfFollowNotAllowed),
		errors.Is(err, services.ErrInvalidCursor),
		errors.Is(err, services.ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConstraintViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{
			"path":       c.FullPath(),
			"request_id": middleware.GetRequestID(c),
		}).Error("Request failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type pageQuery struct {
	Offset int `form:"offset" binding:"min=0"`
	Limit  int `form:"limit" binding:"min=0"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func bindPage(c *gin.Context) (offset, limit int, ok bool) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, 0, false
	}
	limit = q.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return q.Offset, limit, true
}
