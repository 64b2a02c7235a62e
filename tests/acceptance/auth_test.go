package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prperemyshlev/blog-auth-service/internal/client"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/internal/dto"
	"github.com/prperemyshlev/blog-auth-service/internal/guard"
	"github.com/prperemyshlev/blog-auth-service/internal/token"
)

func (s *Suite) newClient() *client.Client {
	return client.New(s.BaseURL, client.NewMemoryStore())
}

func (s *Suite) postJSON(path string, body interface{}, accessToken string) *http.Response {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost, s.BaseURL+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *Suite) getMe(accessToken string) int {
	req, err := http.NewRequest(http.MethodGet, s.BaseURL+"/api/v1/auth/me", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func writerRequest() dto.RegisterRequest {
	return dto.RegisterRequest{
		Username: "writer",
		Fullname: "Jane Writer",
		Email:    "writer@example.com",
		Password: "Password123",
	}
}

func (s *Suite) TestRegisterThenLogin() {
	ctx := context.Background()
	c := s.newClient()

	registered, err := c.Register(ctx, writerRequest())
	s.Require().NoError(err)
	s.Equal("user", registered.User.Role)
	s.Empty(registered.AccessToken, "registration does not sign in by default")

	_, ok := c.Store().Get()
	s.False(ok)

	data, err := c.Login(ctx, "Writer@Example.com", "Password123")
	s.Require().NoError(err)
	s.Equal("Bearer", data.TokenType)
	s.Equal(int((15 * time.Minute).Seconds()), data.ExpiresIn)

	me, err := c.Me(ctx)
	s.Require().NoError(err)
	s.Equal("writer", me.Username)
	s.Equal(registered.User.ID, me.ID)
	s.NotNil(me.LastLoginAt)
}

func (s *Suite) TestRegister_Duplicate() {
	ctx := context.Background()
	c := s.newClient()

	_, err := c.Register(ctx, writerRequest())
	s.Require().NoError(err)

	_, err = c.Register(ctx, writerRequest())
	s.True(client.IsStatus(err, http.StatusConflict), "got %v", err)

	sameNameOtherCase := writerRequest()
	sameNameOtherCase.Username = "WRITER"
	sameNameOtherCase.Email = "other@example.com"
	_, err = c.Register(ctx, sameNameOtherCase)
	s.True(client.IsStatus(err, http.StatusConflict), "got %v", err)
}

func (s *Suite) TestRegister_Invalid() {
	req := writerRequest()
	req.Password = "short"

	_, err := s.newClient().Register(context.Background(), req)
	s.True(client.IsStatus(err, http.StatusBadRequest), "got %v", err)
}

func (s *Suite) TestLogin_WrongPassword() {
	_, err := s.newClient().Login(context.Background(), adminEmail, "Wrong@1234")
	s.True(client.IsStatus(err, http.StatusUnauthorized), "got %v", err)
}

func (s *Suite) TestAdminLoginCarriesAdminRole() {
	c := s.newClient()

	data, err := c.Login(context.Background(), adminEmail, adminPassword)
	s.Require().NoError(err)
	s.Equal("admin", data.User.Role)

	claims := token.Decode(data.AccessToken)
	s.Require().NotNil(claims)
	s.Equal(domain.RoleAdmin, claims.Role)

	guards := guard.New(c.Store(), guard.Options{})
	s.True(guards.RoleGuard(domain.RoleAdmin)("/admin").Allowed)
}

func (s *Suite) TestRefreshRotatesAndDetectsReuse() {
	ctx := context.Background()
	c := s.newClient()

	login, err := c.Login(ctx, adminEmail, adminPassword)
	s.Require().NoError(err)

	refreshed, err := c.Refresh(ctx)
	s.Require().NoError(err)
	s.NotEqual(login.RefreshToken, refreshed.RefreshToken)

	// The rotated-out token is rejected and revokes the newer session too.
	resp := s.postJSON("/api/v1/auth/refresh-token", dto.RefreshRequest{RefreshToken: login.RefreshToken}, "")
	_ = resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = s.postJSON("/api/v1/auth/refresh-token", dto.RefreshRequest{RefreshToken: refreshed.RefreshToken}, "")
	_ = resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestTransportRenewsExpiredAccessToken() {
	ctx := context.Background()
	c := s.newClient()

	login, err := c.Login(ctx, adminEmail, adminPassword)
	s.Require().NoError(err)
	claims := token.Decode(login.AccessToken)
	s.Require().NotNil(claims)

	past := token.NewManager(jwtSecret, "blog-auth-service", time.Minute, time.Hour).
		WithClock(func() time.Time { return time.Now().Add(-time.Hour) })
	expired, err := past.IssueAccess(claims.UserID, claims.Role)
	s.Require().NoError(err)
	s.Equal(http.StatusUnauthorized, s.getMe(expired))

	s.Require().NoError(c.Store().Set(domain.TokenPair{AccessToken: expired, RefreshToken: login.RefreshToken}))

	me, err := c.Me(ctx)
	s.Require().NoError(err)
	s.Equal(adminEmail, me.Email)

	pair, ok := c.Store().Get()
	s.Require().True(ok)
	s.NotEqual(expired, pair.AccessToken)
	s.NotEqual(login.RefreshToken, pair.RefreshToken)
}

func (s *Suite) TestLogoutRevokesTokens() {
	ctx := context.Background()
	c := s.newClient()

	login, err := c.Login(ctx, adminEmail, adminPassword)
	s.Require().NoError(err)
	s.Equal(http.StatusOK, s.getMe(login.AccessToken))

	s.Require().NoError(c.Logout(ctx))
	_, ok := c.Store().Get()
	s.False(ok)

	s.Equal(http.StatusUnauthorized, s.getMe(login.AccessToken))

	resp := s.postJSON("/api/v1/auth/refresh-token", dto.RefreshRequest{RefreshToken: login.RefreshToken}, "")
	_ = resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestChangeRole() {
	ctx := context.Background()

	writer := s.newClient()
	registered, err := writer.Register(ctx, writerRequest())
	s.Require().NoError(err)
	_, err = writer.Login(ctx, "writer@example.com", "Password123")
	s.Require().NoError(err)

	_, err = writer.ChangeRole(ctx, registered.User.ID, domain.RoleAdmin)
	s.True(client.IsStatus(err, http.StatusForbidden), "got %v", err)

	admin := s.newClient()
	_, err = admin.Login(ctx, adminEmail, adminPassword)
	s.Require().NoError(err)

	updated, err := admin.ChangeRole(ctx, registered.User.ID, domain.RoleBlogger)
	s.Require().NoError(err)
	s.Equal("blogger", updated.Role)

	// Tokens carry the role at issue time; a refresh picks up the new one.
	_, err = writer.Refresh(ctx)
	s.Require().NoError(err)
	guards := guard.New(writer.Store(), guard.Options{})
	s.True(guards.RoleGuard(domain.RoleBlogger)("/posts/new").Allowed)
	s.Equal("/forbidden", guards.RoleGuard(domain.RoleAdmin)("/admin").RedirectTo)
}
