package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"friend-graph-service/internal/middleware"
)

func requestIDFromHeader(c *gin.Context) string {
	if requestID := c.GetString("requestID"); requestID != "" {
		return requestID
	}
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("requestID", requestID)
	return requestID
}

func accountIDFromContext(c *gin.Context) string {
	return middleware.AccountID(c)
}
