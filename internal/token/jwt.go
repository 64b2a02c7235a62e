package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
)

// MaxAccessTokenTTL caps the lifetime of every access token.
const MaxAccessTokenTTL = time.Hour

var (
	// ErrInvalidToken is returned for malformed tokens, bad signatures and unexpected claims
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned for a well-formed token past its expiry
	ErrExpiredToken = errors.New("token is expired")
)

type sessionClaims struct {
	Role string `json:"role"`
	Kind string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256 session tokens
type Manager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewManager creates a new token manager. accessTTL is capped at MaxAccessTokenTTL.
func NewManager(secret, issuer string, accessTTL, refreshTTL time.Duration) *Manager {
	if accessTTL > MaxAccessTokenTTL {
		accessTTL = MaxAccessTokenTTL
	}
	return &Manager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// WithClock returns a copy of m that reads the current time from now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	c := *m
	c.now = now
	return &c
}

// Issue signs claims with the server secret, expiring ttl from now.
// IssuedAt, ExpiresAt and an empty ID are filled in by the manager.
func (m *Manager) Issue(claims domain.TokenClaims, ttl time.Duration) (string, error) {
	if !claims.Role.Valid() {
		return "", fmt.Errorf("cannot issue token for role %q", claims.Role)
	}
	if !claims.Kind.Valid() {
		return "", fmt.Errorf("cannot issue token of kind %q", claims.Kind)
	}
	if claims.Kind == domain.TokenKindAccess && ttl > MaxAccessTokenTTL {
		ttl = MaxAccessTokenTTL
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	now := m.now().Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Role: string(claims.Role),
		Kind: string(claims.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   claims.UserID,
			ID:        claims.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// IssueAccess issues an access token using the configured access TTL
func (m *Manager) IssueAccess(userID string, role domain.Role) (string, error) {
	return m.Issue(domain.TokenClaims{UserID: userID, Role: role, Kind: domain.TokenKindAccess}, m.accessTTL)
}

// IssueRefresh issues a refresh token using the configured refresh TTL
func (m *Manager) IssueRefresh(userID string, role domain.Role) (string, error) {
	return m.Issue(domain.TokenClaims{UserID: userID, Role: role, Kind: domain.TokenKindRefresh}, m.refreshTTL)
}

// Verify checks signature, issuer and expiry of tokenString and returns its claims.
func (m *Manager) Verify(tokenString string) (*domain.TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &sessionClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sc, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, err := toDomain(sc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return claims, nil
}

// VerifyAccess verifies tokenString and requires it to be an access token
func (m *Manager) VerifyAccess(tokenString string) (*domain.TokenClaims, error) {
	return m.verifyKind(tokenString, domain.TokenKindAccess)
}

// VerifyRefresh verifies tokenString and requires it to be a refresh token
func (m *Manager) VerifyRefresh(tokenString string) (*domain.TokenClaims, error) {
	return m.verifyKind(tokenString, domain.TokenKindRefresh)
}

func (m *Manager) verifyKind(tokenString string, kind domain.TokenKind) (*domain.TokenClaims, error) {
	claims, err := m.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %s", ErrInvalidToken, kind, claims.Kind)
	}
	return claims, nil
}

// AccessTokenExpiry returns the access token lifetime in seconds
func (m *Manager) AccessTokenExpiry() int {
	return int(m.accessTTL.Seconds())
}

// RefreshTokenExpiry returns the refresh token lifetime
func (m *Manager) RefreshTokenExpiry() time.Duration {
	return m.refreshTTL
}

// Decode parses tokenString without checking its signature or expiry.
// The result must never be used for authorization on the server; it returns nil
// when the token cannot be parsed.
func Decode(tokenString string) *domain.TokenClaims {
	var sc sessionClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &sc); err != nil {
		return nil
	}

	claims, err := toDomain(&sc)
	if err != nil {
		return nil
	}
	return claims
}

func toDomain(sc *sessionClaims) (*domain.TokenClaims, error) {
	if sc.Subject == "" {
		return nil, errors.New("missing subject")
	}
	if sc.ExpiresAt == nil {
		return nil, errors.New("missing expiry")
	}

	role := domain.Role(sc.Role)
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", sc.Role)
	}
	kind := domain.TokenKind(sc.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown token kind %q", sc.Kind)
	}

	claims := &domain.TokenClaims{
		UserID:    sc.Subject,
		Role:      role,
		Kind:      kind,
		ID:        sc.ID,
		ExpiresAt: sc.ExpiresAt.Time,
	}
	if sc.IssuedAt != nil {
		claims.IssuedAt = sc.IssuedAt.Time
	}
	return claims, nil
}
