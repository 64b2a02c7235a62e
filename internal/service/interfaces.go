package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_service.go -package=mocks

import (
	"context"
	"time"

	"github.com/prperemyshlev/blog-auth-service/internal/config"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/internal/dto"
)

// AuthService defines methods for authentication operations
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest, meta SessionMeta) (*AuthResult, error)
	Login(ctx context.Context, req *dto.LoginRequest, meta SessionMeta) (*AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken string, meta SessionMeta) (*AuthResult, error)
	Logout(ctx context.Context, session *Session, refreshToken string) error
	GetUser(ctx context.Context, userID string) (*dto.UserResponse, error)
	ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error)
	ChangeRole(ctx context.Context, actor *domain.TokenClaims, userID string, role domain.Role) (*dto.UserResponse, error)
	SeedAdmin(ctx context.Context, seed config.SeedConfig) error
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// TokenBlacklist is a revocation list of tokens that must not be accepted before they expire
type TokenBlacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}
