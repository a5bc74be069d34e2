package handlers

import (
	"errors"
	"fmt"
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"friend-graph-service/internal/graph"
	"friend-graph-service/internal/metrics"
	"friend-graph-service/internal/middleware"
	"friend-graph-service/internal/services"
	"friend-graph-service/internal/telemetry"
)

const signalPartialFailure = "PartialFailure"

type FriendHandler struct {
	graph  *services.FriendGraphService
	audit  *telemetry.AuditEmitter
	logger logrus.FieldLogger
}

func NewFriendHandler(graph *services.FriendGraphService, audit *telemetry.AuditEmitter, logger logrus.FieldLogger) *FriendHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FriendHandler{graph: graph, audit: audit, logger: logger}
}

type resolveRequestBody struct {
	Action string `json:"action" binding:"required"`
}

func (h *FriendHandler) SendRequest(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.graph.SendRequest(ctx, accountIDFromContext(c), c.Param("userId"))
	if err != nil {
		metrics.IncFriendRequest(metrics.StatusFailed)
		h.fail(c, services.OperationSendRequest, err)
		return
	}

	message := signalMessage(res.Signal)
	if res.Signal == graph.SignalSelfReference {
		message = "You can't send a friend request to yourself"
	}
	metrics.IncFriendRequest(metricStatus(res.Signal))
	h.respond(c, res.Signal, message, gin.H{"user": res.Target})
}

// ResolveRequest handles PUT /friend-request/:userId where :userId is the sender.
func (h *FriendHandler) ResolveRequest(c *gin.Context) {
	ctx := c.Request.Context()
	var body resolveRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid request payload", "")
		c.JSON(nethttp.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	action, err := graph.ParseAction(body.Action)
	if err != nil {
		h.emitAudit(c, telemetry.LevelError, "unknown friend request action", "")
		c.JSON(nethttp.StatusBadRequest, gin.H{"message": "Invalid action, expected accept or reject"})
		return
	}

	inc := metrics.IncFriendAccept
	operation := services.OperationAcceptRequest
	if action == graph.ActionReject {
		inc = metrics.IncFriendReject
		operation = services.OperationRejectRequest
	}

	res, err := h.graph.ResolveRequest(ctx, accountIDFromContext(c), c.Param("userId"), action)
	if err != nil {
		inc(metrics.StatusFailed)
		h.fail(c, operation, err)
		return
	}

	message := signalMessage(res.Signal)
	if res.Signal.Applied() {
		message = fmt.Sprintf("Friend request %s by %s (%s)", action.Past(), res.Resolver.Username, res.Resolver.ID)
	}
	inc(metricStatus(res.Signal))
	h.respond(c, res.Signal, message, gin.H{
		"action":   action,
		"resolver": res.Resolver,
		"sender":   res.Sender,
	})
}

func (h *FriendHandler) ListFriendRequests(c *gin.Context) {
	res, err := h.graph.ListFriendRequests(c.Request.Context(), accountIDFromContext(c))
	if err != nil {
		h.fail(c, "list_friend_requests", err)
		return
	}
	h.respond(c, res.Signal, signalMessage(res.Signal), gin.H{"friendRequests": res.Accounts})
}

func (h *FriendHandler) ListFriends(c *gin.Context) {
	res, err := h.graph.ListFriends(c.Request.Context(), accountIDFromContext(c))
	if err != nil {
		h.fail(c, "list_friends", err)
		return
	}
	h.respond(c, res.Signal, signalMessage(res.Signal), gin.H{"friendList": res.Accounts})
}

func (h *FriendHandler) RemoveFriend(c *gin.Context) {
	res, err := h.graph.RemoveFriend(c.Request.Context(), accountIDFromContext(c), c.Param("friendUserId"))
	if err != nil {
		metrics.IncFriendRemoval(metrics.StatusFailed)
		h.fail(c, services.OperationRemoveFriend, err)
		return
	}

	message := signalMessage(res.Signal)
	if res.NoFriendsLeft {
		message += ", and you no longer have any friends"
	}
	metrics.IncFriendRemoval(metricStatus(res.Signal))
	h.respond(c, res.Signal, message, gin.H{"user": res.Target})
}

func (h *FriendHandler) respond(c *gin.Context, signal graph.Signal, message string, payload gin.H) {
	status := statusForSignal(signal)
	c.Set(middleware.ContextSignal, string(signal))
	level := telemetry.LevelInfo
	if status != nethttp.StatusOK {
		level = telemetry.LevelError
	}
	h.emitAudit(c, level, message, signal)

	body := gin.H{"signal": signal, "message": message}
	if status == nethttp.StatusOK {
		for k, v := range payload {
			body[k] = v
		}
	}
	c.JSON(status, body)
}

func (h *FriendHandler) fail(c *gin.Context, operation string, err error) {
	log := h.logger.WithError(err).WithFields(logrus.Fields{
		"operation":  operation,
		"account_id": accountIDFromContext(c),
	})

	var partial *services.PartialFailureError
	if errors.As(err, &partial) {
		log.WithField("repair_id", partial.RepairID).Error("friend operation partially applied")
		c.Set(middleware.ContextSignal, signalPartialFailure)
		h.emitAudit(c, telemetry.LevelError, "friend relationship partially updated", signalPartialFailure)
		c.JSON(nethttp.StatusInternalServerError, gin.H{
			"signal":    signalPartialFailure,
			"message":   "Friend relationship partially updated, repair scheduled",
			"repair_id": partial.RepairID,
		})
		return
	}

	log.Error("friend operation failed")
	h.emitAudit(c, telemetry.LevelError, "internal error", "")
	c.JSON(nethttp.StatusInternalServerError, gin.H{"message": "Internal server error"})
}

func (h *FriendHandler) emitAudit(c *gin.Context, level, text string, signal graph.Signal) {
	if h.audit == nil {
		return
	}
	h.audit.EmitAudit(c.Request.Context(), level, text, string(signal), requestIDFromHeader(c), accountIDFromContext(c))
}

func statusForSignal(signal graph.Signal) int {
	switch signal {
	case graph.SignalSent, graph.SignalFriends, graph.SignalRejected, graph.SignalRemoved, graph.SignalListed:
		return nethttp.StatusOK
	case graph.SignalSelfReference, graph.SignalAlreadyRequested, graph.SignalReciprocalPending,
		graph.SignalAlreadyFriends, graph.SignalNoPendingRequest, graph.SignalNotFriends:
		return nethttp.StatusBadRequest
	case graph.SignalNotFound:
		return nethttp.StatusNotFound
	}
	return nethttp.StatusInternalServerError
}

func signalMessage(signal graph.Signal) string {
	switch signal {
	case graph.SignalSent:
		return "Friend request sent"
	case graph.SignalAlreadyRequested:
		return "Friend request already sent"
	case graph.SignalReciprocalPending:
		return "You have already received a friend request from this user"
	case graph.SignalAlreadyFriends:
		return "You are already friends with this user"
	case graph.SignalFriends:
		return "Friend request accepted"
	case graph.SignalRejected:
		return "Friend request rejected"
	case graph.SignalNoPendingRequest:
		return "No friend request from this user"
	case graph.SignalRemoved:
		return "Friend removed"
	case graph.SignalNotFriends:
		return "You are not friends with this user"
	case graph.SignalSelfReference:
		return "You can't do that to yourself"
	case graph.SignalNotFound:
		return "User not found"
	case graph.SignalListed:
		return "OK"
	}
	return string(signal)
}

func metricStatus(signal graph.Signal) string {
	if signal.Applied() {
		return metrics.StatusSuccess
	}
	return metrics.StatusFailed
}
