package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/internal/service"
)

const (
	claimsKey  = "claims"
	sessionKey = "session"
)

// AuthMiddleware validates the bearer access token and puts the session into the context
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondError(c, http.StatusUnauthorized, "authorization header is required")
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			respondError(c, http.StatusUnauthorized, "invalid authorization header format")
			return
		}
		token = strings.TrimSpace(token)

		claims, err := authService.ValidateToken(c.Request.Context(), token)
		if err != nil {
			status, message := errorStatus(err)
			if status != http.StatusUnauthorized {
				status, message = http.StatusUnauthorized, service.ErrInvalidToken.Error()
			}
			respondError(c, status, message)
			return
		}

		c.Set(claimsKey, claims)
		c.Set(sessionKey, &service.Session{AccessToken: token, Claims: claims})

		c.Next()
	}
}

// RequireRole rejects authenticated callers whose role does not satisfy required.
// It must run after AuthMiddleware.
func RequireRole(required domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "authentication required")
			return
		}

		if !claims.Role.Satisfies(required) {
			respondError(c, http.StatusForbidden, service.ErrForbidden.Error())
			return
		}

		c.Next()
	}
}

// CurrentClaims returns the verified claims of the request, if any
func CurrentClaims(c *gin.Context) (*domain.TokenClaims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*domain.TokenClaims)
	return claims, ok && claims != nil
}

func currentSession(c *gin.Context) (*service.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*service.Session)
	return session, ok && session != nil
}
