package handlers

import (
	"errors"
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"friend-graph-service/internal/repositories"
	"friend-graph-service/internal/services"
	"friend-graph-service/internal/storage"
)

type UserHandler struct {
	users    *services.UserService
	pictures *storage.PictureStore
	logger   logrus.FieldLogger
}

func NewUserHandler(users *services.UserService, pictures *storage.PictureStore, logger logrus.FieldLogger) *UserHandler {
	return &UserHandler{users: users, pictures: pictures, logger: logger}
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to list users")
		c.JSON(nethttp.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"users": users})
}

// UploadProfilePicture stores the multipart field "profilePicture" and associates it with
// the caller. The previous picture, if any, is removed.
func (h *UserHandler) UploadProfilePicture(c *gin.Context) {
	accountID := accountIDFromContext(c)
	file, err := c.FormFile("profilePicture")
	if err != nil {
		c.JSON(nethttp.StatusBadRequest, gin.H{"message": "Profile picture not uploaded"})
		return
	}

	ctx := c.Request.Context()
	current, err := h.users.GetUserByID(ctx, accountID)
	if err != nil {
		h.userError(c, err)
		return
	}

	path, err := h.pictures.Save(accountID, file)
	if err != nil {
		if errors.Is(err, storage.ErrEmptyUpload) {
			c.JSON(nethttp.StatusBadRequest, gin.H{"message": "Profile picture not uploaded"})
			return
		}
		h.logger.WithError(err).WithField("account_id", accountID).Error("failed to store profile picture")
		c.JSON(nethttp.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	user, err := h.users.SetProfilePicture(ctx, accountID, path)
	if err != nil {
		_ = h.pictures.Remove(path)
		h.userError(c, err)
		return
	}
	if current.ProfilePicture != "" && current.ProfilePicture != path {
		if err := h.pictures.Remove(current.ProfilePicture); err != nil {
			h.logger.WithError(err).WithField("path", current.ProfilePicture).Warn("warning: failed to remove previous profile picture")
		}
	}

	c.JSON(nethttp.StatusOK, gin.H{
		"message": "Profile picture uploaded and associated with the user!",
		"user": gin.H{
			"id":             user.ID,
			"username":       user.Username,
			"profilePicture": user.ProfilePicture,
		},
	})
}

func (h *UserHandler) userError(c *gin.Context, err error) {
	if errors.Is(err, repositories.ErrAccountNotFound) {
		c.JSON(nethttp.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	h.logger.WithError(err).Error("user lookup failed")
	c.JSON(nethttp.StatusInternalServerError, gin.H{"message": "Internal server error"})
}
