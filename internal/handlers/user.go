package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microblog/microblog/internal/config"
	"github.com/microblog/microblog/internal/middleware"
	"github.com/microblog/microblog/internal/models"
	"github.com/microblog/microblog/internal/services"
	"github.com/microblog/microblog/pkg/logger"
)

const avatarSize = 128

type UserHandler struct {
	userService *services.UserService
	postService *services.PostService
	jwtConfig   *config.JWTConfig
	logger      *logger.Logger
}

func NewUserHandler(userService *services.UserService, postService *services.PostService, jwtConfig *config.JWTConfig, logger *logger.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		postService: postService,
		jwtConfig:   jwtConfig,
		logger:      logger,
	}
}

type profileResponse struct {
	User           *models.User `json:"user"`
	Avatar         string       `json:"avatar"`
	FollowersCount int64        `json:"followers_count"`
	FollowingCount int64        `json:"following_count"`
	PostsCount     int64        `json:"posts_count"`
}

// accountResponse is the caller's own account, the only place email is shown.
type accountResponse struct {
	*models.User
	Email  string `json:"email"`
	Avatar string `json:"avatar"`
}

func newAccountResponse(user *models.User) accountResponse {
	return accountResponse{User: user, Email: user.Email, Avatar: user.AvatarURL(avatarSize)}
}

func (h *UserHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    newAccountResponse(user),
	})
}

func (h *UserHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.VerifyCredentials(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Username, h.jwtConfig.Secret, h.jwtConfig.ExpireTime)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"user":    newAccountResponse(user),
	})
}

// RequestPasswordReset always answers 202 so callers cannot discover which
// addresses are registered.
func (h *UserHandler) RequestPasswordReset(c *gin.Context) {
	var req services.ResetPasswordTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.userService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "If the address is registered, a reset token has been issued"})
}

func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req services.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.VerifyResetPasswordToken(c.Request.Context(), req.Token)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if err := h.userService.ResetPassword(c.Request.Context(), user.ID, req.Password); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successfully"})
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()

	user, err := h.userService.GetByUsername(ctx, c.Param("username"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	followers, err := h.userService.FollowersCount(ctx, user.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	following, err := h.userService.FollowingCount(ctx, user.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	posts, err := h.postService.CountUserPosts(ctx, user.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, profileResponse{
		User:           user,
		Avatar:         user.AvatarURL(avatarSize),
		FollowersCount: followers,
		FollowingCount: following,
		PostsCount:     posts,
	})
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.userService.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"user":    newAccountResponse(user),
	})
}

func (h *UserHandler) DeleteAccount(c *gin.Context) {
	if err := h.userService.DeleteUser(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
}

func (h *UserHandler) Follow(c *gin.Context) {
	ctx := c.Request.Context()

	target, err := h.userService.GetByUsername(ctx, c.Param("username"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if err := h.userService.Follow(ctx, middleware.GetUserID(c), target.ID); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "You are following " + target.Username})
}

func (h *UserHandler) Unfollow(c *gin.Context) {
	ctx := c.Request.Context()

	target, err := h.userService.GetByUsername(ctx, c.Param("username"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	if err := h.userService.Unfollow(ctx, middleware.GetUserID(c), target.ID); err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "You are not following " + target.Username})
}

func (h *UserHandler) GetFollowers(c *gin.Context) {
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

	followers, err := h.userService.GetFollowers(ctx, user.ID, offset, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"followers": followers,
		"offset":    offset,
		"limit":     limit,
	})
}

func (h *UserHandler) GetFollowing(c *gin.Context) {
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

	following, err := h.userService.GetFollowing(ctx, user.ID, offset, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"following": following,
		"offset":    offset,
		"limit":     limit,
	})
}

func (h *UserHandler) SearchUsers(c *gin.Context) {
	offset, limit, ok := bindPage(c)
	if !ok {
		return
	}
	query := c.Query("q")

	users, err := h.userService.Search(c.Request.Context(), query, offset, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":  users,
		"query":  query,
		"offset": offset,
		"limit":  limit,
	})
}
