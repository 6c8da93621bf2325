package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/mocks"
	"chat-backend/internal/models"
	"chat-backend/internal/ws"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/messages", handler.SendMessage)
	r.GET("/messages/chat/:chatId", handler.GetMessages)
	return r
}

func TestSendMessageSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewMessageHandler(chatRepo, messageRepo, userRepo, ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 3).Return(models.Chat{ID: 3, CreatedBy: 1}, nil).Once()
	chatRepo.On("GetMembers", mock.Anything, 3).Return([]models.ChatMember{
		{ChatID: 3, UserID: 1},
		{ChatID: 3, UserID: 2},
	}, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 3, 1, "hello").Return(models.Message{ID: 7, ChatID: 3, SenderID: 1, Content: "hello"}, nil).Once()
	chatRepo.On("SetLatestMessage", mock.Anything, 3, 7).Return(nil).Once()
	userRepo.On("GetUser", mock.Anything, 1).Return(models.User{ID: 1, Name: "alice", Email: "alice@example.com"}, nil).Once()

	body := bytes.NewBufferString(`{"chatId":3,"content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var view models.MessageView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, 7, view.ID)
	assert.Equal(t, "hello", view.Content)
	assert.Equal(t, 1, view.Sender.ID)
	assert.Equal(t, 3, view.Chat.ID)
	chatRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestSendMessageForbiddenForNonMember(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	handler := NewMessageHandler(chatRepo, messageRepo, new(mocks.UserRepositoryMock), ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	chatRepo.On("GetChat", mock.Anything, 3).Return(models.Chat{ID: 3, CreatedBy: 2}, nil).Once()
	chatRepo.On("GetMembers", mock.Anything, 3).Return([]models.ChatMember{
		{ChatID: 3, UserID: 2},
		{ChatID: 3, UserID: 5},
	}, nil).Once()

	body := bytes.NewBufferString(`{"chatId":3,"content":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	chatRepo.AssertExpectations(t)
}

func TestSendMessageMissingContent(t *testing.T) {
	handler := NewMessageHandler(new(mocks.ChatRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	body := bytes.NewBufferString(`{"chatId":3}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type messagesResponse struct {
	Messages   []models.MessageView `json:"messages"`
	Pagination Pagination           `json:"pagination"`
}

func expectChatWithMembers(chatRepo *mocks.ChatRepositoryMock, chatID int, members []models.ChatMember) {
	chatRepo.On("GetChat", mock.Anything, chatID).Return(models.Chat{ID: chatID, CreatedBy: 1}, nil).Once()
	chatRepo.On("GetMembers", mock.Anything, chatID).Return(members, nil).Once()
}

func TestGetMessagesFirstPage(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewMessageHandler(chatRepo, messageRepo, userRepo, ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	expectChatWithMembers(chatRepo, 3, []models.ChatMember{{ChatID: 3, UserID: 1}, {ChatID: 3, UserID: 2}})
	messageRepo.On("CountMessages", mock.Anything, 3, (*time.Time)(nil)).Return(25, nil).Once()

	msgs := make([]models.Message, 0, 10)
	for i := 0; i < 10; i++ {
		msgs = append(msgs, models.Message{ID: 25 - i, ChatID: 3, SenderID: 2, Content: "m"})
	}
	messageRepo.On("ListMessages", mock.Anything, 3, (*time.Time)(nil), 10, 0).Return(msgs, nil).Once()
	userRepo.On("SummariesByIDs", mock.Anything, []int{2}).Return(map[int]models.UserSummary{2: {ID: 2, Name: "bob"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/chat/3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp messagesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 10)
	assert.Equal(t, 1, resp.Pagination.Page)
	assert.Equal(t, 10, resp.Pagination.Limit)
	assert.Equal(t, 3, resp.Pagination.NumberOfPages)
	require.NotNil(t, resp.Pagination.Next)
	assert.Equal(t, 2, *resp.Pagination.Next)
	assert.Nil(t, resp.Pagination.Prev)
	messageRepo.AssertExpectations(t)
}

func TestGetMessagesLastPage(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewMessageHandler(chatRepo, messageRepo, userRepo, ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	expectChatWithMembers(chatRepo, 3, []models.ChatMember{{ChatID: 3, UserID: 1}, {ChatID: 3, UserID: 2}})
	messageRepo.On("CountMessages", mock.Anything, 3, (*time.Time)(nil)).Return(25, nil).Once()
	messageRepo.On("ListMessages", mock.Anything, 3, (*time.Time)(nil), 10, 20).Return([]models.Message{
		{ID: 5, ChatID: 3, SenderID: 1, Content: "m"},
	}, nil).Once()
	userRepo.On("SummariesByIDs", mock.Anything, []int{1}).Return(map[int]models.UserSummary{1: {ID: 1, Name: "alice"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/chat/3?page=3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp messagesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Pagination.Page)
	assert.Nil(t, resp.Pagination.Next)
	require.NotNil(t, resp.Pagination.Prev)
	assert.Equal(t, 2, *resp.Pagination.Prev)
	messageRepo.AssertExpectations(t)
}

func TestGetMessagesAppliesRestorationCutoff(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewMessageHandler(chatRepo, messageRepo, userRepo, ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	restoredAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expectChatWithMembers(chatRepo, 3, []models.ChatMember{
		{ChatID: 3, UserID: 1, RestoredAt: &restoredAt},
		{ChatID: 3, UserID: 2},
	})
	messageRepo.On("CountMessages", mock.Anything, 3, &restoredAt).Return(0, nil).Once()
	messageRepo.On("ListMessages", mock.Anything, 3, &restoredAt, 10, 0).Return([]models.Message{}, nil).Once()
	userRepo.On("SummariesByIDs", mock.Anything, []int{}).Return(map[int]models.UserSummary{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/chat/3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp messagesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Messages)
	assert.Equal(t, 0, resp.Pagination.NumberOfPages)
	messageRepo.AssertExpectations(t)
}

func TestGetMessagesClampsLimit(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewMessageHandler(chatRepo, messageRepo, userRepo, ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	expectChatWithMembers(chatRepo, 3, []models.ChatMember{{ChatID: 3, UserID: 1}})
	messageRepo.On("CountMessages", mock.Anything, 3, (*time.Time)(nil)).Return(0, nil).Once()
	messageRepo.On("ListMessages", mock.Anything, 3, (*time.Time)(nil), 50, 0).Return([]models.Message{}, nil).Once()
	userRepo.On("SummariesByIDs", mock.Anything, []int{}).Return(map[int]models.UserSummary{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/messages/chat/3?limit=500", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestGetMessagesInvalidChatID(t *testing.T) {
	handler := NewMessageHandler(new(mocks.ChatRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), ws.NewHub(), nil)
	router := setupMessageRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/messages/chat/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
