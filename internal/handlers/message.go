package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
	"chat-backend/internal/ws"
)

// MessageHandler manages the message endpoints and the realtime fan-out a
// successful send triggers.
type MessageHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	hub         *ws.Hub
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		hub:         hub,
		audit:       audit,
	}
}

// SendMessage appends a message to the chat, updates the chat's latest
// message pointer and broadcasts newMessage to the room plus chatListUpdate
// to every connected client.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req struct {
		ChatID  int    `json:"chatId" binding:"required"`
		Content string `json:"content" binding:"required,max=5000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, _, ok := h.loadChatAsMember(c, req.ChatID, userID)
	if !ok {
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), chat.ID, userID, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}
	if err := h.chatRepo.SetLatestMessage(c.Request.Context(), chat.ID, msg.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update chat"})
		return
	}

	sender, err := h.userRepo.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sender"})
		return
	}

	view := messageView(msg, sender.Summary(), chat)
	if err := h.hub.EmitNewMessage(chat.ID, view); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to broadcast message"})
		return
	}

	h.emitAudit(c, "INFO", "Message sent")
	c.JSON(http.StatusCreated, view)
}

// GetMessages lists chat messages newest first with pagination metadata.
// Messages older than the caller's restoration cutoff are never returned.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	chat, members, ok := h.loadChatAsMember(c, chatID, userID)
	if !ok {
		return
	}

	page := positiveIntQuery(c.Query("page"), 1)
	limit := positiveIntQuery(c.Query("limit"), 10)
	if limit > maxPageSize {
		limit = maxPageSize
	}

	member, _ := findMember(members, userID)
	cutoff := member.RestoredAt

	total, err := h.messageRepo.CountMessages(c.Request.Context(), chat.ID, cutoff)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count messages"})
		return
	}
	skip, pagination := buildPagination(page, limit, total)

	msgs, err := h.messageRepo.ListMessages(c.Request.Context(), chat.ID, cutoff, limit, skip)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	senderIDs := make([]int, 0, len(msgs))
	seen := map[int]struct{}{}
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	summaries, err := h.userRepo.SummariesByIDs(c.Request.Context(), senderIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load senders"})
		return
	}

	views := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messageView(m, summaries[m.SenderID], chat))
	}

	c.JSON(http.StatusOK, gin.H{"messages": views, "pagination": pagination})
}

func (h *MessageHandler) loadChatAsMember(c *gin.Context, chatID, userID int) (models.Chat, []models.ChatMember, bool) {
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return models.Chat{}, nil, false
	}

	members, err := h.chatRepo.GetMembers(c.Request.Context(), chat.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load members"})
		return models.Chat{}, nil, false
	}
	if !isMember(members, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not part of this chat"})
		return models.Chat{}, nil, false
	}
	return chat, members, true
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
