package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// TokenTypeSocket marks tokens minted for the websocket handshake. They are
// signed with a dedicated secret and are not interchangeable with REST
// access tokens.
const TokenTypeSocket = "socket"

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID    int    `json:"uid"`
	TokenType string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func VerifyPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// GenerateAccessToken mints a short-lived REST access token.
func GenerateAccessToken(userID int, secret string, ttl time.Duration) (string, error) {
	return sign(userID, "", secret, ttl)
}

// GenerateSocketToken mints a token used exclusively for websocket
// authentication.
func GenerateSocketToken(userID int, secret string, ttl time.Duration) (string, error) {
	return sign(userID, TokenTypeSocket, secret, ttl)
}

func sign(userID int, tokenType, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a token and returns its claims.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
