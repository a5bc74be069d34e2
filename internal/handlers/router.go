package handlers

import (
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"friend-graph-service/internal/middleware"
)

type RouterConfig struct {
	Auth    *AuthHandler
	Users   *UserHandler
	Friends *FriendHandler
	Tokens  middleware.TokenVerifier
	Logger  logrus.FieldLogger
	// Metrics is mounted at /metrics when set.
	Metrics nethttp.Handler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(cfg.Logger), middleware.RequestLogger(cfg.Logger), middleware.Metrics())

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(nethttp.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/register", cfg.Auth.Register)
	r.POST("/login", cfg.Auth.Login)

	authed := r.Group("", middleware.JWTAuth(cfg.Tokens, cfg.Logger))
	authed.POST("/logout", cfg.Auth.Logout)
	authed.GET("/protected", cfg.Auth.Protected)

	authed.GET("/users", cfg.Users.ListUsers)
	authed.POST("/profile", cfg.Users.UploadProfilePicture)

	authed.POST("/send-friend-request/:userId", cfg.Friends.SendRequest)
	authed.PUT("/friend-request/:userId", cfg.Friends.ResolveRequest)
	authed.GET("/show-friend-requests", cfg.Friends.ListFriendRequests)
	authed.GET("/friend-list", cfg.Friends.ListFriends)
	authed.POST("/remove-friend/:friendUserId", cfg.Friends.RemoveFriend)

	return r
}
