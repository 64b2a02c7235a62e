package service

import (
	"errors"

	"github.com/prperemyshlev/blog-auth-service/internal/token"
)

var (
	// ErrValidation is returned for malformed or rule-breaking input
	ErrValidation = errors.New("validation failed")

	// ErrUserExists is returned when the username or email is already taken
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials is returned when login fails for any reason
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidRefreshToken is returned when a refresh token cannot be exchanged
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrForbidden is returned when the caller's role is insufficient
	ErrForbidden = errors.New("forbidden")

	// ErrUserNotFound is returned when an operation targets an unknown user
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidToken and ErrExpiredToken are re-exported so handlers depend on one package
	ErrInvalidToken = token.ErrInvalidToken
	ErrExpiredToken = token.ErrExpiredToken
)
