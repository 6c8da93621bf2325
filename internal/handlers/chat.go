package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
)

// ChatHandler manages chat membership endpoints.
type ChatHandler struct {
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
	views       chatViewBuilder
	audit       *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		views:       chatViewBuilder{chatRepo: chatRepo, messageRepo: messageRepo, userRepo: userRepo},
		audit:       audit,
	}
}

// AccessChat creates a private chat with the user owning the given email, or
// returns the existing one. A chat the caller had soft-deleted is restored
// with a fresh history cutoff so pre-deletion messages stay hidden.
func (h *ChatHandler) AccessChat(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	target, err := h.userRepo.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found with this email"})
		return
	}
	if target.ID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot create chat with yourself"})
		return
	}

	chat, found, err := h.chatRepo.FindPrivateChat(c.Request.Context(), userID, target.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not look up chat"})
		return
	}

	if found {
		members, err := h.chatRepo.GetMembers(c.Request.Context(), chat.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load members"})
			return
		}
		if member, ok := findMember(members, userID); ok && member.Deleted {
			if err := h.chatRepo.RestoreMember(c.Request.Context(), chat.ID, userID, time.Now()); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "could not restore chat"})
				return
			}
			h.emitAudit(c, "INFO", "Private chat restored")
		}
		h.respondWithChat(c, http.StatusOK, chat)
		return
	}

	chat, err = h.chatRepo.CreatePrivateChat(c.Request.Context(), userID, target.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}
	h.emitAudit(c, "INFO", "Private chat created")
	h.respondWithChat(c, http.StatusCreated, chat)
}

// ListChats returns the chats visible to the caller, most recently updated
// first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.chatRepo.ListChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	responses, err := h.views.build(c.Request.Context(), chats)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assemble chats"})
		return
	}
	c.JSON(http.StatusOK, responses)
}

// DeleteChat removes a group chat outright; private chats follow the
// per-user soft-delete protocol and are purged once both sides have deleted.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	var req struct {
		ChatID int `json:"chatId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, members, ok := h.loadChatAsMember(c, req.ChatID, userID)
	if !ok {
		return
	}

	if chat.IsGroup {
		if err := h.chatRepo.PurgeChat(c.Request.Context(), chat.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete chat"})
			return
		}
		h.emitAudit(c, "INFO", "Group chat deleted")
		c.JSON(http.StatusOK, gin.H{"message": "Chat deleted successfully"})
		return
	}

	if err := h.chatRepo.MarkDeleted(c.Request.Context(), chat.ID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete chat"})
		return
	}

	remaining := 0
	for _, m := range members {
		if m.UserID != userID && !m.Deleted {
			remaining++
		}
	}
	if remaining == 0 {
		if err := h.chatRepo.PurgeChat(c.Request.Context(), chat.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete chat"})
			return
		}
		h.emitAudit(c, "INFO", "Private chat purged")
		c.JSON(http.StatusOK, gin.H{"message": "Chat permanently deleted"})
		return
	}

	h.emitAudit(c, "INFO", "Private chat hidden")
	c.JSON(http.StatusOK, gin.H{"message": "Chat deleted successfully"})
}

// CreateGroupChat creates a group with the caller as admin and creator.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	var req struct {
		Name  string   `json:"name" binding:"required,min=3"`
		Users []string `json:"users" binding:"required,min=1,dive,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	memberIDs := make([]int, 0, len(req.Users))
	for _, email := range req.Users {
		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found with email: " + email})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve members"})
			return
		}
		memberIDs = append(memberIDs, user.ID)
	}

	chat, err := h.chatRepo.CreateGroupChat(c.Request.Context(), userID, req.Name, memberIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, "INFO", "Group created")
	h.respondWithChat(c, http.StatusCreated, chat)
}

// RenameGroup updates the group name. Admin only.
func (h *ChatHandler) RenameGroup(c *gin.Context) {
	var req struct {
		ChatID   int    `json:"chatId" binding:"required"`
		ChatName string `json:"chatName" binding:"required,min=3"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, ok := h.loadChatAsAdmin(c, req.ChatID, userID)
	if !ok {
		return
	}

	if err := h.chatRepo.RenameChat(c.Request.Context(), chat.ID, req.ChatName); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not rename group"})
		return
	}

	chat.Name = &req.ChatName
	h.emitAudit(c, "INFO", "Group renamed")
	h.respondWithChat(c, http.StatusOK, chat)
}

// AddToGroup adds the user owning the given email. Admin only.
func (h *ChatHandler) AddToGroup(c *gin.Context) {
	var req struct {
		ChatID int    `json:"chatId" binding:"required"`
		Email  string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, ok := h.loadChatAsAdmin(c, req.ChatID, userID)
	if !ok {
		return
	}

	target, err := h.userRepo.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found with this email"})
		return
	}

	if err := h.chatRepo.AddMember(c.Request.Context(), chat.ID, target.ID); err != nil {
		if errors.Is(err, repositories.ErrAlreadyMember) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user is already a member of this group"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add member"})
		return
	}

	h.emitAudit(c, "INFO", "Group member added")
	h.respondWithChat(c, http.StatusOK, chat)
}

// RemoveFromGroup removes a member. Admin only.
func (h *ChatHandler) RemoveFromGroup(c *gin.Context) {
	var req struct {
		ChatID int `json:"chatId" binding:"required"`
		UserID int `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, ok := h.loadChatAsAdmin(c, req.ChatID, userID)
	if !ok {
		return
	}

	if err := h.chatRepo.RemoveMember(c.Request.Context(), chat.ID, req.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}

	h.emitAudit(c, "INFO", "Group member removed")
	h.respondWithChat(c, http.StatusOK, chat)
}

// LeaveGroup removes the caller from a group chat. The last member leaving
// purges the chat; a departing admin hands the role to the first remaining
// member by join order.
func (h *ChatHandler) LeaveGroup(c *gin.Context) {
	var req struct {
		ChatID int `json:"chatId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, members, ok := h.loadChatAsMember(c, req.ChatID, userID)
	if !ok {
		return
	}
	if !chat.IsGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only group chats can be left"})
		return
	}

	wasAdmin := isGroupAdmin(chat, userID)

	if err := h.chatRepo.RemoveMember(c.Request.Context(), chat.ID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave group"})
		return
	}

	remaining := make([]models.ChatMember, 0, len(members))
	for _, m := range members {
		if m.UserID != userID {
			remaining = append(remaining, m)
		}
	}

	if len(remaining) == 0 {
		if err := h.chatRepo.PurgeChat(c.Request.Context(), chat.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete group"})
			return
		}
		h.emitAudit(c, "INFO", "Group purged after last member left")
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Left group chat successfully"})
		return
	}

	if wasAdmin {
		if err := h.chatRepo.SetAdmin(c.Request.Context(), chat.ID, remaining[0].UserID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not promote new admin"})
			return
		}
	}

	h.emitAudit(c, "INFO", "Left group chat")
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Left group chat successfully"})
}

// loadChatAsMember fetches the chat and its members, enforcing membership.
func (h *ChatHandler) loadChatAsMember(c *gin.Context, chatID, userID int) (models.Chat, []models.ChatMember, bool) {
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

// loadChatAsAdmin fetches the chat and enforces the group-admin gate.
func (h *ChatHandler) loadChatAsAdmin(c *gin.Context, chatID, userID int) (models.Chat, bool) {
	chat, err := h.chatRepo.GetChat(c.Request.Context(), chatID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrChatNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "chat not found"})
		return models.Chat{}, false
	}
	if !isGroupAdmin(chat, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only admin can perform this action"})
		return models.Chat{}, false
	}
	return chat, true
}

func (h *ChatHandler) respondWithChat(c *gin.Context, status int, chat models.Chat) {
	resp, err := h.views.buildOne(c.Request.Context(), chat)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assemble chat"})
		return
	}
	c.JSON(status, resp)
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
