package domain

import "time"

// TokenKind distinguishes short-lived access tokens from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// TokenClaims is the identity carried by a session token. It is the only data
// trusted for authorization decisions without a database round trip.
type TokenClaims struct {
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	Kind      TokenKind `json:"kind"`
	ID        string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// IsExpired checks if the token is expired at now
func (tc TokenClaims) IsExpired(now time.Time) bool {
	return !now.Before(tc.ExpiresAt)
}

// TokenPair is the credential pair held by a client session.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int    `json:"expiresIn"`
}
