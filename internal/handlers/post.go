package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/microblog/microblog/internal/middleware"
	"github.com/microblog/microblog/internal/services"
	"github.com/microblog/microblog/pkg/logger"
)

type PostHandler struct {
	postService *services.PostService
	userService *services.UserService
	logger      *logger.Logger
}

func NewPostHandler(postService *services.PostService, userService *services.UserService, logger *logger.Logger) *PostHandler {
	return &PostHandler{
		postService: postService,
		userService: userService,
		logger:      logger,
	}
}

func (h *PostHandler) CreatePost(c *gin.Context) {
	var req services.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.postService.CreatePost(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Your post is now live!",
		"post":    post,
	})
}

func (h *PostHandler) GetPost(c *gin.Context) {
	postID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	post, err := h.postService.GetPost(c.Request.Context(), uint(postID))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"post": post})
}

// GetTimeline pages through the caller's own posts and those of everyone
// they follow. Pass next_cursor back as cursor to continue.
func (h *PostHandler) GetTimeline(c *gin.Context) {
	var req services.TimelineRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	page, err := h.postService.Timeline(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *PostHandler) Explore(c *gin.Context) {
	offset, limit, ok := bindPage(c)
	if !ok {
		return
	}

	posts, err := h.postService.Explore(c.Request.Context(), offset, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts":  posts,
		"offset": offset,
		"limit":  limit,
	})
}

func (h *PostHandler) GetUserPosts(c *gin.Context) {
	offset, limit, ok := bindPage(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	user, err := h.userService.GetByUsername(ctx, c.Param("username"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	posts, err := h.postService.GetUserPosts(ctx, user.ID, offset, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts":  posts,
		"offset": offset,
		"limit":  limit,
	})
}
