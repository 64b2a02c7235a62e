package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/internal/dto"
	"github.com/prperemyshlev/blog-auth-service/internal/service"
	"github.com/prperemyshlev/blog-auth-service/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const userID = "6f1c3c1e-8d8a-4b36-9a51-0d3f1f2b7c10"

type envelope struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *mocks.MockAuthService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	authService := mocks.NewMockAuthService(ctrl)

	authHandler := NewAuthHandler(authService, nil, false)
	userHandler := NewUserHandler(authService, nil)

	router := gin.New()
	api := router.Group("/api/v1")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh-token", authHandler.RefreshToken)
	auth.POST("/logout", AuthMiddleware(authService), authHandler.Logout)
	auth.GET("/me", AuthMiddleware(authService), authHandler.GetMe)
	api.PATCH("/users/:id/role", AuthMiddleware(authService), RequireRole(domain.RoleAdmin), userHandler.ChangeRole)

	return router, authService
}

func doJSON(router http.Handler, method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func authResult(role string) *service.AuthResult {
	return &service.AuthResult{
		User: dto.UserResponse{ID: userID, Username: "writer", Email: "writer@example.com", Role: role},
		Tokens: &domain.TokenPair{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			TokenType:    "Bearer",
			ExpiresIn:    3600,
		},
		RefreshExpiresIn: 86400,
	}
}

func refreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

func TestLogin_Success(t *testing.T) {
	router, authService := newTestRouter(t)

	authService.EXPECT().
		Login(gomock.Any(), &dto.LoginRequest{Email: "writer@example.com", Password: "Password123"}, gomock.Any()).
		Return(authResult("blogger"), nil)

	w := doJSON(router, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "writer@example.com",
		"password": "Password123",
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	assert.Equal(t, http.StatusOK, env.Status)

	var data dto.LoginData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "access-token", data.AccessToken)
	assert.Equal(t, "refresh-token", data.RefreshToken)
	assert.Equal(t, 3600, data.ExpiresIn)
	assert.Equal(t, "blogger", data.User.Role)

	cookie := refreshCookie(w)
	require.NotNil(t, cookie)
	assert.Equal(t, "refresh-token", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, refreshCookiePath, cookie.Path)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	router, authService := newTestRouter(t)

	authService.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: account is inactive", service.ErrInvalidCredentials))

	w := doJSON(router, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "writer@example.com",
		"password": "nope",
	}, nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, http.StatusUnauthorized, env.Status)
	assert.Equal(t, service.ErrInvalidCredentials.Error(), env.Message)
	assert.Nil(t, refreshCookie(w))
}

func TestLogin_MalformedBody(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "not-an-email"}, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decodeEnvelope(t, w).Success)
}

func TestRegister(t *testing.T) {
	body := map[string]string{
		"username": "writer",
		"fullname": "Writer",
		"email":    "writer@example.com",
		"password": "Password123",
	}

	t.Run("without tokens", func(t *testing.T) {
		router, authService := newTestRouter(t)
		result := authResult("user")
		result.Tokens = nil
		authService.EXPECT().Register(gomock.Any(), gomock.Any(), gomock.Any()).Return(result, nil)

		w := doJSON(router, http.MethodPost, "/api/v1/auth/register", body, nil)

		require.Equal(t, http.StatusCreated, w.Code)
		env := decodeEnvelope(t, w)
		assert.True(t, env.Success)
		assert.NotContains(t, string(env.Data), "accessToken")
		assert.Nil(t, refreshCookie(w))
	})

	t.Run("with auto login", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().Register(gomock.Any(), gomock.Any(), gomock.Any()).Return(authResult("user"), nil)

		w := doJSON(router, http.MethodPost, "/api/v1/auth/register", body, nil)

		require.Equal(t, http.StatusCreated, w.Code)
		var data dto.RegisterData
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
		assert.Equal(t, "access-token", data.AccessToken)
		assert.NotNil(t, refreshCookie(w))
	})

	t.Run("conflict", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().Register(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, fmt.Errorf("%w: email writer@example.com is taken", service.ErrUserExists))

		w := doJSON(router, http.MethodPost, "/api/v1/auth/register", body, nil)

		require.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, decodeEnvelope(t, w).Message, "already exists")
	})

	t.Run("validation", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().Register(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, fmt.Errorf("%w: invalid email format", service.ErrValidation))

		w := doJSON(router, http.MethodPost, "/api/v1/auth/register", body, nil)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeEnvelope(t, w).Message, "invalid email format")
	})

	t.Run("unexpected error is hidden", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().Register(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("pq: connection refused"))

		w := doJSON(router, http.MethodPost, "/api/v1/auth/register", body, nil)

		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal server error", decodeEnvelope(t, w).Message)
	})
}

func TestRefreshToken(t *testing.T) {
	t.Run("from body", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().RefreshToken(gomock.Any(), "old-refresh", gomock.Any()).Return(authResult("user"), nil)

		w := doJSON(router, http.MethodPost, "/api/v1/auth/refresh-token", map[string]string{"refreshToken": "old-refresh"}, nil)

		require.Equal(t, http.StatusOK, w.Code)
		var data dto.TokenData
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
		assert.Equal(t, "access-token", data.AccessToken)
		assert.Equal(t, "refresh-token", data.RefreshToken)
	})

	t.Run("from cookie", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().RefreshToken(gomock.Any(), "cookie-refresh", gomock.Any()).Return(authResult("user"), nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh-token", nil)
		req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "cookie-refresh"})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		router, _ := newTestRouter(t)

		w := doJSON(router, http.MethodPost, "/api/v1/auth/refresh-token", nil, nil)

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejected clears cookie", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().RefreshToken(gomock.Any(), "stale", gomock.Any()).
			Return(nil, fmt.Errorf("%w: token was revoked", service.ErrInvalidRefreshToken))

		w := doJSON(router, http.MethodPost, "/api/v1/auth/refresh-token", map[string]string{"refreshToken": "stale"}, nil)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		cookie := refreshCookie(w)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
		assert.True(t, cookie.MaxAge < 0)
	})
}

func TestGetMe(t *testing.T) {
	claims := &domain.TokenClaims{UserID: userID, Role: domain.RoleUser, Kind: domain.TokenKindAccess, ExpiresAt: time.Now().Add(time.Hour)}

	t.Run("no header", func(t *testing.T) {
		router, _ := newTestRouter(t)

		w := doJSON(router, http.MethodGet, "/api/v1/auth/me", nil, nil)

		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, decodeEnvelope(t, w).Success)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		router, _ := newTestRouter(t)

		w := doJSON(router, http.MethodGet, "/api/v1/auth/me", nil, http.Header{"Authorization": []string{"Basic abc"}})

		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().ValidateToken(gomock.Any(), "expired").Return(nil, service.ErrExpiredToken)

		w := doJSON(router, http.MethodGet, "/api/v1/auth/me", nil, bearer("expired"))

		require.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, service.ErrExpiredToken.Error(), decodeEnvelope(t, w).Message)
	})

	t.Run("blacklist outage is still unauthorized", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().ValidateToken(gomock.Any(), "tok").Return(nil, errors.New("redis: connection refused"))

		w := doJSON(router, http.MethodGet, "/api/v1/auth/me", nil, bearer("tok"))

		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("ok", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().ValidateToken(gomock.Any(), "good").Return(claims, nil)
		authService.EXPECT().GetUser(gomock.Any(), userID).Return(&dto.UserResponse{ID: userID, Username: "writer", Role: "user"}, nil)

		w := doJSON(router, http.MethodGet, "/api/v1/auth/me", nil, bearer("good"))

		require.Equal(t, http.StatusOK, w.Code)
		var data dto.UserData
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
		assert.Equal(t, "writer", data.User.Username)
	})
}

func TestLogout(t *testing.T) {
	router, authService := newTestRouter(t)
	claims := &domain.TokenClaims{UserID: userID, Role: domain.RoleUser, Kind: domain.TokenKindAccess}

	authService.EXPECT().ValidateToken(gomock.Any(), "good").Return(claims, nil)
	authService.EXPECT().Logout(gomock.Any(), gomock.Any(), "refresh-token").
		DoAndReturn(func(_ context.Context, session *service.Session, _ string) error {
			assert.Equal(t, "good", session.AccessToken)
			assert.Equal(t, userID, session.Claims.UserID)
			return nil
		})

	w := doJSON(router, http.MethodPost, "/api/v1/auth/logout", map[string]string{"refreshToken": "refresh-token"}, bearer("good"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeEnvelope(t, w).Success)
	cookie := refreshCookie(w)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
}

func TestChangeRole(t *testing.T) {
	admin := &domain.TokenClaims{UserID: "admin-id", Role: domain.RoleAdmin, Kind: domain.TokenKindAccess}
	blogger := &domain.TokenClaims{UserID: userID, Role: domain.RoleBlogger, Kind: domain.TokenKindAccess}

	t.Run("blogger is forbidden", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().ValidateToken(gomock.Any(), "blogger").Return(blogger, nil)

		w := doJSON(router, http.MethodPatch, "/api/v1/users/"+userID+"/role", map[string]string{"role": "admin"}, bearer("blogger"))

		require.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, http.StatusForbidden, decodeEnvelope(t, w).Status)
	})

	t.Run("admin promotes", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().ValidateToken(gomock.Any(), "admin").Return(admin, nil)
		authService.EXPECT().ChangeRole(gomock.Any(), admin, userID, domain.RoleBlogger).
			Return(&dto.UserResponse{ID: userID, Role: "blogger"}, nil)

		w := doJSON(router, http.MethodPatch, "/api/v1/users/"+userID+"/role", map[string]string{"role": "Blogger"}, bearer("admin"))

		require.Equal(t, http.StatusOK, w.Code)
		var data dto.UserData
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
		assert.Equal(t, "blogger", data.User.Role)
	})

	t.Run("unknown role", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().ValidateToken(gomock.Any(), "admin").Return(admin, nil)

		w := doJSON(router, http.MethodPatch, "/api/v1/users/"+userID+"/role", map[string]string{"role": "root"}, bearer("admin"))

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		router, authService := newTestRouter(t)
		authService.EXPECT().ValidateToken(gomock.Any(), "admin").Return(admin, nil)
		authService.EXPECT().ChangeRole(gomock.Any(), admin, userID, domain.RoleUser).Return(nil, service.ErrUserNotFound)

		w := doJSON(router, http.MethodPatch, "/api/v1/users/"+userID+"/role", map[string]string{"role": "user"}, bearer("admin"))

		require.Equal(t, http.StatusNotFound, w.Code)
	})
}
