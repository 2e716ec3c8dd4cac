package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"converse/internal/apperr"
	"converse/internal/middleware"
	"converse/internal/service"
)

// ConversationHandler is the REST-side gateway. It parses transport concerns
// and delegates every business decision to the services.
type ConversationHandler interface {
	CreatePrivate(c *gin.Context)
	CreateGroup(c *gin.Context)
	ListMine(c *gin.Context)
	UnreadTotal(c *gin.Context)
	ListMessages(c *gin.Context)
	PostMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	AddParticipants(c *gin.Context)
	RemoveParticipant(c *gin.Context)
	Leave(c *gin.Context)
	UpdateSettings(c *gin.Context)
}

type conversationHandler struct {
	conversations service.ConversationService
	participants  service.ParticipantService
}

func NewConversationHandler(conversations service.ConversationService, participants service.ParticipantService) ConversationHandler {
	return &conversationHandler{
		conversations: conversations,
		participants:  participants,
	}
}

type createPrivateRequest struct {
	OtherUserID string `json:"otherUserId" binding:"required"`
}

func (h *conversationHandler) CreatePrivate(c *gin.Context) {
	var req createPrivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "otherUserId is required"})
		return
	}

	conversation, err := h.conversations.CreateOrGetPrivate(c.Request.Context(), middleware.UserID(c), req.OtherUserID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

type createGroupRequest struct {
	Name           string   `json:"name" binding:"required"`
	Description    string   `json:"description"`
	ParticipantIDs []string `json:"participantIds" binding:"required"`
}

func (h *conversationHandler) CreateGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and participantIds are required"})
		return
	}

	conversation, err := h.conversations.CreateGroup(c.Request.Context(), middleware.UserID(c), req.Name, req.Description, req.ParticipantIDs)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": conversation})
}

func (h *conversationHandler) ListMine(c *gin.Context) {
	summaries, err := h.conversations.ListMine(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

func (h *conversationHandler) UnreadTotal(c *gin.Context) {
	total, err := h.conversations.UnreadTotal(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": total})
}

func (h *conversationHandler) ListMessages(c *gin.Context) {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 50)

	messages, err := h.conversations.ListMessages(c.Request.Context(), c.Param("conversationId"), page, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type postMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"messageType" binding:"omitempty,oneof=text image video"`
}

func (h *conversationHandler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message body"})
		return
	}

	msg, err := h.conversations.PostMessage(c.Request.Context(), c.Param("conversationId"), middleware.UserID(c), req.Content, req.MessageType)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *conversationHandler) MarkRead(c *gin.Context) {
	if err := h.conversations.MarkRead(c.Request.Context(), c.Param("conversationId"), middleware.UserID(c)); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type addParticipantsRequest struct {
	UserIDs []string `json:"userIds" binding:"required"`
}

func (h *conversationHandler) AddParticipants(c *gin.Context) {
	var req addParticipantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userIds is required"})
		return
	}

	added, err := h.participants.AddParticipants(c.Request.Context(), c.Param("conversationId"), middleware.UserID(c), req.UserIDs)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"addedParticipants": added})
}

func (h *conversationHandler) RemoveParticipant(c *gin.Context) {
	removed, err := h.participants.RemoveParticipant(c.Request.Context(), c.Param("conversationId"), middleware.UserID(c), c.Param("userId"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removedParticipant": removed})
}

func (h *conversationHandler) Leave(c *gin.Context) {
	deleted, err := h.participants.Leave(c.Request.Context(), c.Param("conversationId"), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *conversationHandler) UpdateSettings(c *gin.Context) {
	var patch service.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings body"})
		return
	}

	conversation, err := h.participants.UpdateSettings(c.Request.Context(), c.Param("conversationId"), middleware.UserID(c), patch)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

// writeError maps the error taxonomy onto HTTP statuses. Storage details
// never reach the response body.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindInvalidArgument:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindPermissionDenied:
		status = http.StatusForbidden
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindUnavailable:
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"error": apperr.MessageOf(err)})
}

func queryInt(c *gin.Context, name string, fallback int64) int64 {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}
