package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microblog/microblog/internal/middleware"
	"github.com/microblog/microblog/pkg/logger"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Router struct {
	Users  *UserHandler
	Posts  *PostHandler
	Health HealthChecker
	Logger *logger.Logger
}

// RegisterRoutes mounts the public and authenticated API under /api/v1 and a
// health check at /health.
func (r *Router) RegisterRoutes(engine *gin.Engine, jwtConfig *middleware.JWTConfig) {
	engine.GET("/health", r.health)

	api := engine.Group("/api/v1")
	{
		users := api.Group("/users")
		{
			users.POST("/register", r.Users.Register)
			users.POST("/login", r.Users.Login)
			users.POST("/reset-password/token", r.Users.RequestPasswordReset)
			users.POST("/reset-password", r.Users.ResetPassword)
			users.GET("/search", r.Users.SearchUsers)
			users.GET("/:username", r.Users.GetProfile)
			users.GET("/:username/followers", r.Users.GetFollowers)
			users.GET("/:username/following", r.Users.GetFollowing)
			users.GET("/:username/posts", r.Posts.GetUserPosts)
		}
		api.GET("/posts/:id", r.Posts.GetPost)

		protected := api.Group("")
		protected.Use(middleware.NewJWTAuth(jwtConfig), middleware.LastSeen(r.Users.userService, r.Logger))
		{
			protected.PUT("/users/profile", r.Users.UpdateProfile)
			protected.DELETE("/users/me", r.Users.DeleteAccount)
			protected.POST("/users/:username/follow", r.Users.Follow)
			protected.DELETE("/users/:username/follow", r.Users.Unfollow)

			protected.POST("/posts", r.Posts.CreatePost)
			protected.GET("/timeline", r.Posts.GetTimeline)
			protected.GET("/explore", r.Posts.Explore)
		}
	}
}

func (r *Router) health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	if r.Health != nil {
		if err := r.Health.Ping(c.Request.Context()); err != nil {
			r.Logger.WithError(err).Warn("Health check failed")
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().Unix(),
	})
}
