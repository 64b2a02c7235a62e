package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/pkg/database"
)

const refreshTokenColumns = `id, user_id, token_hash, expires_at, created_at, user_agent, client_ip`

// tokenRepository keeps one row per live refresh token, keyed by the token's hash
type tokenRepository struct {
	db *database.Postgres
}

func NewTokenRepository(db *database.Postgres) TokenRepository {
	return &tokenRepository{db: db}
}

// Create stores a refresh token record, filling in ID and CreatedAt when unset
func (r *tokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	_, err := r.db.DB.ExecContext(ctx,
		`INSERT INTO refresh_tokens (`+refreshTokenColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt,
		nullString(token.UserAgent), nullString(token.ClientIP),
	)
	if err != nil {
		if _, dup := uniqueConstraint(err); dup {
			return fmt.Errorf("refresh token already stored: %w", ErrDuplicateToken)
		}
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	return nil
}

func (r *tokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	row := r.db.DB.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)

	token, err := scanRefreshToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh token not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}

	return token, nil
}

// DeleteByTokenHash removes a single refresh token. ErrNotFound means the row was
// already gone, so at most one caller can consume a given token.
func (r *tokenRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("refresh token not found: %w", ErrNotFound)
	}

	return nil
}

// DeleteByUserID revokes every refresh token of a user
func (r *tokenRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens of user: %w", err)
	}

	return result.RowsAffected()
}

func (r *tokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired refresh tokens: %w", err)
	}

	return result.RowsAffected()
}

func scanRefreshToken(row *sql.Row) (*domain.RefreshToken, error) {
	var (
		token               domain.RefreshToken
		userAgent, clientIP sql.NullString
	)
	if err := row.Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt, &token.CreatedAt,
		&userAgent, &clientIP,
	); err != nil {
		return nil, err
	}

	if userAgent.Valid {
		token.UserAgent = userAgent.String
	}
	if clientIP.Valid {
		token.ClientIP = clientIP.String
	}

	return &token, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
