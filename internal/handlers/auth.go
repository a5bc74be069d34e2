package handlers

import (
	"errors"
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"friend-graph-service/internal/middleware"
	"friend-graph-service/internal/repositories"
	"friend-graph-service/internal/services"
)

type AuthHandler struct {
	auth   *services.AuthService
	logger logrus.FieldLogger
}

func NewAuthHandler(auth *services.AuthService, logger logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type registerBody struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginBody struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(nethttp.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	_, err := h.auth.Register(c.Request.Context(), services.RegisterInput{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
	})
	switch {
	case err == nil:
		c.JSON(nethttp.StatusOK, gin.H{"message": "User Registered successfully"})
	case errors.Is(err, repositories.ErrEmailTaken):
		c.JSON(nethttp.StatusConflict, gin.H{"message": "User already exists"})
	case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, services.ErrMissingField):
		c.JSON(nethttp.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		h.logger.WithError(err).Error("failed to register account")
		c.JSON(nethttp.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(nethttp.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	res, err := h.auth.Login(c.Request.Context(), body.Email, body.Password)
	switch {
	case errors.Is(err, repositories.ErrAccountNotFound):
		c.JSON(nethttp.StatusNotFound, gin.H{"message": "User not found."})
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(nethttp.StatusUnauthorized, gin.H{"message": "Invalid password."})
		return
	case err != nil:
		h.logger.WithError(err).Error("sign-in failed")
		c.JSON(nethttp.StatusInternalServerError, gin.H{"message": "An error occurred during sign-in."})
		return
	}

	c.JSON(nethttp.StatusOK, gin.H{
		"user": gin.H{
			"id":       res.Account.ID,
			"email":    res.Account.Email,
			"username": res.Account.Username,
		},
		"message":     "Login successful",
		"accessToken": res.AccessToken,
		"expiresAt":   res.ExpiresAt,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.Claims(c)
	if claims == nil {
		c.JSON(nethttp.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	account, err := h.auth.Logout(c.Request.Context(), claims)
	switch {
	case errors.Is(err, repositories.ErrAccountNotFound):
		c.JSON(nethttp.StatusNotFound, gin.H{"message": "User not found"})
		return
	case err != nil:
		h.logger.WithError(err).Error("logout failed")
		c.JSON(nethttp.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	c.JSON(nethttp.StatusOK, gin.H{
		"message": "Logged out successfully",
		"user": gin.H{
			"id":       account.ID,
			"email":    account.Email,
			"username": account.Username,
		},
	})
}

func (h *AuthHandler) Protected(c *gin.Context) {
	c.JSON(nethttp.StatusOK, gin.H{
		"message": "You have access to content!",
		"user": gin.H{
			"id":       middleware.AccountID(c),
			"username": c.GetString(middleware.ContextUsername),
		},
	})
}
