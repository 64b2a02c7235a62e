package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/blog-auth-service/internal/config"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/internal/dto"
	"github.com/prperemyshlev/blog-auth-service/internal/repository"
	"github.com/prperemyshlev/blog-auth-service/internal/token"
	"github.com/prperemyshlev/blog-auth-service/internal/utils"
	"go.uber.org/zap"
)

// Options are the session policy knobs of the auth service
type Options struct {
	BCryptCost          int
	RegisterAutoLogin   bool
	RotateRefreshTokens bool
}

// authService implements AuthService interface
type authService struct {
	userRepo  repository.UserRepository
	tokenRepo repository.TokenRepository
	tokens    *token.Manager
	blacklist TokenBlacklist
	opts      Options
	metrics   *authMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	tokens *token.Manager,
	blacklist TokenBlacklist,
	opts Options,
	logger *zap.Logger,
) AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &authService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		tokens:    tokens,
		blacklist: blacklist,
		opts:      opts,
		metrics:   newAuthMetrics(),
		logger:    logger.Named("auth"),
		now:       time.Now,
	}
}

// Register creates a user with the default role. With RegisterAutoLogin set it also
// issues a credential pair, otherwise the client has to log in separately.
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest, meta SessionMeta) (*AuthResult, error) {
	user, err := s.createUser(ctx, req.Username, req.Fullname, req.Email, req.Password, domain.RoleUser)
	if err != nil {
		s.metrics.registration(ctx, resultOf(err))
		return nil, err
	}
	s.metrics.registration(ctx, "success")

	if !s.opts.RegisterAutoLogin {
		return &AuthResult{User: toUserResponse(user)}, nil
	}

	return s.issueSession(ctx, user, meta)
}

// Login authenticates a user by email and password
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest, meta SessionMeta) (*AuthResult, error) {
	result, err := s.login(ctx, req, meta)
	s.metrics.login(ctx, resultOf(err))
	return result, err
}

func (s *authService) login(ctx context.Context, req *dto.LoginRequest, meta SessionMeta) (*AuthResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !utils.CheckPasswordHash(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, fmt.Errorf("%w: account is inactive", ErrInvalidCredentials)
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	return s.issueSession(ctx, user, meta)
}

// RefreshToken exchanges a valid refresh token for a new credential pair
func (s *authService) RefreshToken(ctx context.Context, refreshToken string, meta SessionMeta) (*AuthResult, error) {
	result, err := s.refresh(ctx, refreshToken, meta)
	s.metrics.refresh(ctx, resultOf(err))
	return result, err
}

func (s *authService) refresh(ctx context.Context, refreshToken string, meta SessionMeta) (*AuthResult, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRefreshToken, err)
	}

	revoked, err := s.blacklist.Contains(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	if revoked {
		// A rotated-out token came back: treat the whole token family as compromised.
		if n, err := s.tokenRepo.DeleteByUserID(ctx, claims.UserID); err != nil {
			s.logger.Error("failed to revoke sessions after refresh token reuse", zap.String("user_id", claims.UserID), zap.Error(err))
		} else {
			s.logger.Warn("refresh token reuse detected, sessions revoked", zap.String("user_id", claims.UserID), zap.Int64("revoked", n))
		}
		return nil, fmt.Errorf("%w: token was revoked", ErrInvalidRefreshToken)
	}

	tokenHash := hashToken(refreshToken)

	stored, err := s.tokenRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown token", ErrInvalidRefreshToken)
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if stored.UserID != claims.UserID || !s.now().Before(stored.ExpiresAt) {
		return nil, fmt.Errorf("%w: token record does not match", ErrInvalidRefreshToken)
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", ErrInvalidRefreshToken)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: account is inactive", ErrInvalidRefreshToken)
	}

	if !s.opts.RotateRefreshTokens {
		return s.reissueAccess(user, refreshToken, claims)
	}

	// Deleting the row consumes the token; a concurrent refresh with the same token loses here.
	if err := s.tokenRepo.DeleteByTokenHash(ctx, tokenHash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: token already used", ErrInvalidRefreshToken)
		}
		return nil, fmt.Errorf("failed to consume refresh token: %w", err)
	}
	s.blacklistRefreshToken(ctx, refreshToken, claims.ExpiresAt)

	return s.issueSession(ctx, user, meta)
}

// Logout revokes the access token of session and, when given, the caller's refresh token
func (s *authService) Logout(ctx context.Context, session *Session, refreshToken string) error {
	if ttl := session.Claims.ExpiresAt.Sub(s.now()); ttl > 0 {
		if err := s.blacklist.Add(ctx, session.AccessToken, ttl); err != nil {
			return fmt.Errorf("failed to revoke access token: %w", err)
		}
	}

	if refreshToken == "" {
		return nil
	}

	tokenHash := hashToken(refreshToken)
	stored, err := s.tokenRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to look up refresh token on logout", zap.Error(err))
		}
		return nil
	}
	if stored.UserID != session.Claims.UserID {
		return nil
	}

	s.revokeRefreshToken(ctx, refreshToken, tokenHash, stored.ExpiresAt)
	return nil
}

// GetUser gets user information
func (s *authService) GetUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	response := toUserResponse(user)
	return &response, nil
}

// ValidateToken verifies an access token and checks that it was not revoked
func (s *authService) ValidateToken(ctx context.Context, accessToken string) (*domain.TokenClaims, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}

	revoked, err := s.blacklist.Contains(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: token was revoked", ErrInvalidToken)
	}

	return claims, nil
}

// ChangeRole assigns role to a user. Only admins may change roles, and an admin
// cannot demote themselves.
func (s *authService) ChangeRole(ctx context.Context, actor *domain.TokenClaims, userID string, role domain.Role) (*dto.UserResponse, error) {
	if actor == nil || !actor.Role.Satisfies(domain.RoleAdmin) {
		return nil, ErrForbidden
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	if actor.UserID == userID && role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: admins cannot demote themselves", ErrValidation)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.Role != role {
		user.Role = role
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
		s.logger.Info("role changed",
			zap.String("user_id", user.ID),
			zap.String("role", string(role)),
			zap.String("by", actor.UserID),
		)
	}

	response := toUserResponse(user)
	return &response, nil
}

// PurgeExpiredTokens removes refresh token records past their expiry
func (s *authService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.tokenRepo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	return n, nil
}

func (s *authService) createUser(ctx context.Context, username, fullname, email, password string, role domain.Role) (*domain.User, error) {
	username = utils.SanitizeUsername(username)
	email = utils.SanitizeEmail(email)

	if !utils.ValidateUsername(username) {
		return nil, fmt.Errorf("%w: username must be 3-32 letters, digits, dots, dashes or underscores", ErrValidation)
	}
	if !utils.ValidateFullname(fullname) {
		return nil, fmt.Errorf("%w: fullname is required", ErrValidation)
	}
	if !utils.ValidateEmail(email) {
		return nil, fmt.Errorf("%w: invalid email format", ErrValidation)
	}
	if !utils.ValidatePassword(password) {
		return nil, fmt.Errorf("%w: password must be 8-72 characters and contain uppercase, lowercase, and number", ErrValidation)
	}

	if err := s.ensureUnique(ctx, username, email); err != nil {
		return nil, err
	}

	passwordHash, err := utils.HashPassword(password, s.opts.BCryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		Fullname:     fullname,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) || errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, fmt.Errorf("%w: %v", ErrUserExists, err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (s *authService) ensureUnique(ctx context.Context, username, email string) error {
	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return fmt.Errorf("%w: email %s is taken", ErrUserExists, email)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to check user existence: %w", err)
	}

	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return fmt.Errorf("%w: username %s is taken", ErrUserExists, username)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to check user existence: %w", err)
	}

	return nil
}

// issueSession issues and persists a fresh credential pair for user
func (s *authService) issueSession(ctx context.Context, user *domain.User, meta SessionMeta) (*AuthResult, error) {
	accessToken, err := s.tokens.IssueAccess(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.tokens.IssueRefresh(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	record := &domain.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: s.now().Add(s.tokens.RefreshTokenExpiry()),
		UserAgent: meta.UserAgent,
		ClientIP:  meta.ClientIP,
	}
	if err := s.tokenRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &AuthResult{
		User: toUserResponse(user),
		Tokens: &domain.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    s.tokens.AccessTokenExpiry(),
		},
		RefreshExpiresIn: int(s.tokens.RefreshTokenExpiry().Seconds()),
	}, nil
}

// reissueAccess keeps the presented refresh token and only mints a new access token
func (s *authService) reissueAccess(user *domain.User, refreshToken string, claims *domain.TokenClaims) (*AuthResult, error) {
	accessToken, err := s.tokens.IssueAccess(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &AuthResult{
		User: toUserResponse(user),
		Tokens: &domain.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "Bearer",
			ExpiresIn:    s.tokens.AccessTokenExpiry(),
		},
		RefreshExpiresIn: int(claims.ExpiresAt.Sub(s.now()).Seconds()),
	}, nil
}

// revokeRefreshToken blacklists a refresh token until expiresAt and drops its record.
// Failures are logged: the caller has already decided the token is spent.
func (s *authService) revokeRefreshToken(ctx context.Context, refreshToken, tokenHash string, expiresAt time.Time) {
	s.blacklistRefreshToken(ctx, refreshToken, expiresAt)

	if err := s.tokenRepo.DeleteByTokenHash(ctx, tokenHash); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("failed to delete refresh token", zap.Error(err))
	}
}

// blacklistRefreshToken marks a retired refresh token so that presenting it again is detected as reuse
func (s *authService) blacklistRefreshToken(ctx context.Context, refreshToken string, expiresAt time.Time) {
	if ttl := expiresAt.Sub(s.now()); ttl > 0 {
		if err := s.blacklist.Add(ctx, refreshToken, ttl); err != nil {
			s.logger.Warn("failed to blacklist refresh token", zap.Error(err))
		}
	}
}

// hashToken hashes a token using SHA256
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// SeedAdmin creates the bootstrap admin account unless a user with that email exists.
func (s *authService) SeedAdmin(ctx context.Context, seed config.SeedConfig) error {
	if !seed.SeedEnabled() {
		return nil
	}

	existing, err := s.userRepo.GetByEmail(ctx, utils.SanitizeEmail(seed.Email))
	if err == nil {
		if existing.Role != domain.RoleAdmin {
			s.logger.Warn("seed admin email belongs to a non-admin account", zap.String("user_id", existing.ID))
		}
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to look up seed admin: %w", err)
	}

	user, err := s.createUser(ctx, seed.Username, seed.Fullname, seed.Email, seed.Password, domain.RoleAdmin)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil
		}
		return fmt.Errorf("failed to seed admin: %w", err)
	}

	s.logger.Info("admin account seeded", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return nil
}
