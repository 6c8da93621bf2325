package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/repositories"
)

// UserHandler exposes identity lookups.
type UserHandler struct {
	userRepo repositories.UserRepository
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(userRepo repositories.UserRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

// ListUsers returns every user except the caller.
func (h *UserHandler) ListUsers(c *gin.Context) {
	userID := c.GetInt("userID")
	users, err := h.userRepo.ListUsersExcept(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	c.JSON(http.StatusOK, users)
}
