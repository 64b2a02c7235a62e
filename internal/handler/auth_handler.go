package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/blog-auth-service/internal/dto"
	"github.com/prperemyshlev/blog-auth-service/internal/service"
	"go.uber.org/zap"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/api/v1/auth"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService  service.AuthService
	logger       *zap.Logger
	secureCookie bool
}

// NewAuthHandler creates a new auth handler. secureCookie marks the refresh cookie HTTPS-only.
func NewAuthHandler(authService service.AuthService, logger *zap.Logger, secureCookie bool) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		authService:  authService,
		logger:       logger,
		secureCookie: secureCookie,
	}
}

// Register handles user registration
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration request"
// @Success 201 {object} dto.SuccessResponse{data=dto.RegisterData}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	result, err := h.authService.Register(c.Request.Context(), &req, sessionMeta(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	data := dto.RegisterData{User: result.User}
	if result.Tokens != nil {
		data.AccessToken = result.Tokens.AccessToken
		data.RefreshToken = result.Tokens.RefreshToken
		data.TokenType = result.Tokens.TokenType
		data.ExpiresIn = result.Tokens.ExpiresIn
		h.setRefreshCookie(c, result.Tokens.RefreshToken, result.RefreshExpiresIn)
	}

	respondOK(c, http.StatusCreated, data, "User registered successfully")
}

// Login handles user login
// @Summary Login user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.SuccessResponse{data=dto.LoginData}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), &req, sessionMeta(c))
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.setRefreshCookie(c, result.Tokens.RefreshToken, result.RefreshExpiresIn)

	respondOK(c, http.StatusOK, dto.LoginData{
		TokenData: tokenData(result),
		User:      result.User,
	}, "Login successful")
}

// RefreshToken exchanges a refresh token for a new credential pair.
// The token is read from the JSON body, falling back to the refresh cookie.
// @Summary Refresh tokens
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.RefreshRequest false "Refresh request"
// @Success 200 {object} dto.SuccessResponse{data=dto.TokenData}
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/refresh-token [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req dto.RefreshRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(refreshCookieName)
	}
	if refreshToken == "" {
		respondError(c, http.StatusBadRequest, "validation failed: refresh token is required")
		return
	}

	result, err := h.authService.RefreshToken(c.Request.Context(), refreshToken, sessionMeta(c))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			h.clearRefreshCookie(c)
		}
		respondServiceError(c, h.logger, err)
		return
	}

	h.setRefreshCookie(c, result.Tokens.RefreshToken, result.RefreshExpiresIn)

	respondOK(c, http.StatusOK, tokenData(result), "Token refreshed successfully")
}

// Logout revokes the current session
// @Summary Logout user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Param request body dto.LogoutRequest false "Refresh token to revoke"
// @Success 200 {object} dto.SuccessResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	session, ok := currentSession(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	var req dto.LogoutRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		respondError(c, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken, _ = c.Cookie(refreshCookieName)
	}

	if err := h.authService.Logout(c.Request.Context(), session, refreshToken); err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	h.clearRefreshCookie(c)

	respondOK(c, http.StatusOK, nil, "Logged out successfully")
}

// GetMe returns the profile of the authenticated user
// @Summary Get current user profile
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.SuccessResponse{data=dto.UserData}
// @Failure 401 {object} dto.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	claims, ok := CurrentClaims(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := h.authService.GetUser(c.Request.Context(), claims.UserID)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}

	respondOK(c, http.StatusOK, dto.UserData{User: *user}, "User retrieved successfully")
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, refreshToken string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, refreshToken, maxAge, refreshCookiePath, "", h.secureCookie, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookieName, "", -1, refreshCookiePath, "", h.secureCookie, true)
}

func tokenData(result *service.AuthResult) dto.TokenData {
	return dto.TokenData{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    result.Tokens.TokenType,
		ExpiresIn:    result.Tokens.ExpiresIn,
	}
}

func sessionMeta(c *gin.Context) service.SessionMeta {
	return service.SessionMeta{
		UserAgent: c.Request.UserAgent(),
		ClientIP:  c.ClientIP(),
	}
}

// bindOptionalJSON binds a JSON body when one is present; an empty body is not an error
func bindOptionalJSON(c *gin.Context, obj interface{}) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
