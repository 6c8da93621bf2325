package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-backend/internal/models"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	if val, ok := c.Get("userID"); ok {
		if userID, ok := val.(int); ok && userID != 0 {
			value := int64(userID)
			return &value
		}
	}
	return nil
}

func findMember(members []models.ChatMember, userID int) (models.ChatMember, bool) {
	for _, m := range members {
		if m.UserID == userID {
			return m, true
		}
	}
	return models.ChatMember{}, false
}

func isMember(members []models.ChatMember, userID int) bool {
	_, ok := findMember(members, userID)
	return ok
}

func isGroupAdmin(chat models.Chat, userID int) bool {
	return chat.IsGroup && chat.AdminID != nil && *chat.AdminID == userID
}
