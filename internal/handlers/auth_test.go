package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/auth"
	"chat-backend/internal/config"
	"chat-backend/internal/mocks"
	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

func testAuthConfig() config.Config {
	return config.Config{
		JWTAccessSecret:   "access-secret",
		JWTSocketSecret:   "socket-secret",
		AccessTokenTTLMin: 15,
		SocketTokenTTLMin: 5,
	}
}

func setupAuthRouter(handler *AuthHandler, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if authenticated {
		r.Use(func(c *gin.Context) {
			c.Set("userID", 1)
			c.Next()
		})
	}
	r.POST("/auth/register", handler.Register)
	r.POST("/auth/login", handler.Login)
	r.GET("/auth/socket-token", handler.SocketToken)
	return r
}

func TestRegisterSuccess(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, testAuthConfig(), nil)
	router := setupAuthRouter(handler, false)

	userRepo.On("CreateUser", mock.Anything, "alice", "alice@example.com", mock.AnythingOfType("string")).
		Return(models.User{ID: 1, Name: "alice", Email: "alice@example.com"}, nil).Once()

	body := bytes.NewBufferString(`{"name":"alice","email":"alice@example.com","password":"hunter2hunter2"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		User        models.UserSummary `json:"user"`
		AccessToken string             `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.User.ID)

	claims, err := auth.ParseToken(resp.AccessToken, "access-secret")
	require.NoError(t, err)
	assert.Equal(t, 1, claims.UserID)
	assert.Empty(t, claims.TokenType)
	userRepo.AssertExpectations(t)
}

func TestRegisterShortPassword(t *testing.T) {
	handler := NewAuthHandler(new(mocks.UserRepositoryMock), testAuthConfig(), nil)
	router := setupAuthRouter(handler, false)

	body := bytes.NewBufferString(`{"name":"alice","email":"alice@example.com","password":"short"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, testAuthConfig(), nil)
	router := setupAuthRouter(handler, false)

	userRepo.On("CreateUser", mock.Anything, "alice", "alice@example.com", mock.AnythingOfType("string")).
		Return(models.User{}, repositories.ErrEmailTaken).Once()

	body := bytes.NewBufferString(`{"name":"alice","email":"alice@example.com","password":"hunter2hunter2"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email already registered")
	userRepo.AssertExpectations(t)
}

func TestLoginSuccess(t *testing.T) {
	hash, err := auth.HashPassword("hunter2hunter2")
	require.NoError(t, err)

	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, testAuthConfig(), nil)
	router := setupAuthRouter(handler, false)

	userRepo.On("GetUserByEmail", mock.Anything, "alice@example.com").
		Return(models.User{ID: 1, Name: "alice", Email: "alice@example.com", PasswordHash: hash}, nil).Once()

	body := bytes.NewBufferString(`{"email":"alice@example.com","password":"hunter2hunter2"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	claims, err := auth.ParseToken(resp.AccessToken, "access-secret")
	require.NoError(t, err)
	assert.Equal(t, 1, claims.UserID)
	userRepo.AssertExpectations(t)
}

func TestLoginWrongPassword(t *testing.T) {
	hash, err := auth.HashPassword("hunter2hunter2")
	require.NoError(t, err)

	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, testAuthConfig(), nil)
	router := setupAuthRouter(handler, false)

	userRepo.On("GetUserByEmail", mock.Anything, "alice@example.com").
		Return(models.User{ID: 1, PasswordHash: hash}, nil).Once()

	body := bytes.NewBufferString(`{"email":"alice@example.com","password":"wrong-password"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")
}

func TestLoginUnknownEmail(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewAuthHandler(userRepo, testAuthConfig(), nil)
	router := setupAuthRouter(handler, false)

	userRepo.On("GetUserByEmail", mock.Anything, "ghost@example.com").
		Return(models.User{}, repositories.ErrUserNotFound).Once()

	body := bytes.NewBufferString(`{"email":"ghost@example.com","password":"hunter2hunter2"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSocketTokenSignedWithSocketSecret(t *testing.T) {
	handler := NewAuthHandler(new(mocks.UserRepositoryMock), testAuthConfig(), nil)
	router := setupAuthRouter(handler, true)

	req := httptest.NewRequest(http.MethodGet, "/auth/socket-token", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		SocketToken string `json:"socket_token"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	// Signed with the dedicated socket secret, not the access secret.
	_, err := auth.ParseToken(resp.SocketToken, "access-secret")
	require.Error(t, err)

	claims, err := auth.ParseToken(resp.SocketToken, "socket-secret")
	require.NoError(t, err)
	assert.Equal(t, 1, claims.UserID)
	assert.Equal(t, auth.TokenTypeSocket, claims.TokenType)
}
