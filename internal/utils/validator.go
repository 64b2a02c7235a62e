package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{3,32}$`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidateUsername accepts 3-32 latin letters, digits, dots, dashes and underscores
func ValidateUsername(username string) bool {
	return usernameRegex.MatchString(username)
}

// ValidateFullname requires a non-blank name of at most 100 characters
func ValidateFullname(fullname string) bool {
	fullname = strings.TrimSpace(fullname)
	return fullname != "" && utf8.RuneCountInString(fullname) <= 100
}

// ValidatePassword validates a password
// Minimum 8 characters, at least one uppercase letter, one lowercase letter, one number
func ValidatePassword(password string) bool {
	if len(password) < 8 || len(password) > maxPasswordBytes {
		return false
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case 'A' <= char && char <= 'Z':
			hasUpper = true
		case 'a' <= char && char <= 'z':
			hasLower = true
		case '0' <= char && char <= '9':
			hasNumber = true
		}
	}

	return hasUpper && hasLower && hasNumber
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SanitizeUsername trims surrounding whitespace; usernames stay case-sensitive for display
// but are compared case-insensitively by the repository.
func SanitizeUsername(username string) string {
	return strings.TrimSpace(username)
}
