package service

import (
	"time"

	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/internal/dto"
)

// SessionMeta describes the client a refresh token is issued to
type SessionMeta struct {
	UserAgent string
	ClientIP  string
}

// Session is an authenticated request: the presented access token and its verified claims
type Session struct {
	AccessToken string
	Claims      *domain.TokenClaims
}

// AuthResult is the outcome of register, login and refresh.
// Tokens is nil when registration does not sign the user in.
type AuthResult struct {
	User             dto.UserResponse
	Tokens           *domain.TokenPair
	RefreshExpiresIn int // refresh token lifetime in seconds
}

func toUserResponse(user *domain.User) dto.UserResponse {
	response := dto.UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Fullname:  user.Fullname,
		Email:     user.Email,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}

	if user.LastLoginAt != nil {
		lastLogin := user.LastLoginAt.Format(time.RFC3339)
		response.LastLoginAt = &lastLogin
	}

	return response
}
