package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prperemyshlev/blog-auth-service/internal/client"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/internal/dto"
	"github.com/prperemyshlev/blog-auth-service/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func savedSession(t *testing.T, role domain.Role) string {
	t.Helper()
	m := token.NewManager("blogctl-test-secret-with-32-characters", "blog-auth-service", time.Hour, 24*time.Hour)
	access, err := m.IssueAccess("user-1", role)
	require.NoError(t, err)
	refresh, err := m.IssueRefresh("user-1", role)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, client.NewFileStore(path).Set(domain.TokenPair{AccessToken: access, RefreshToken: refresh}))
	return path
}

func TestCan(t *testing.T) {
	tests := []struct {
		name  string
		store string
		role  string
		want  string
	}{
		{"blogger in admin area", savedSession(t, domain.RoleBlogger), "admin", "denied, redirect to /forbidden\n"},
		{"admin in admin area", savedSession(t, domain.RoleAdmin), "admin", "allowed\n"},
		{"anonymous", filepath.Join(t.TempDir(), "none.json"), "user", "denied, redirect to /login?returnUrl=%2Fadmin\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), []string{"-store", tt.store, "can", tt.role, "/admin"}, &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestLoginPersistsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dto.SuccessResponse{
			Success: true,
			Status:  http.StatusOK,
			Data: dto.LoginData{
				TokenData: dto.TokenData{AccessToken: "a1", RefreshToken: "r1", TokenType: "Bearer", ExpiresIn: 3600},
				User:      dto.UserResponse{Username: "admin", Role: "admin"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "credentials.json")
	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-server", srv.URL, "-store", path,
		"login", "-email", "admin@example.com", "-password", "Admin@123",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "signed in as admin (admin)\n", out.String())

	store := client.NewFileStore(path)
	require.NoError(t, store.Init())
	pair, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, "a1", pair.AccessToken)
}

func TestUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-store", filepath.Join(t.TempDir(), "c.json"), "dance"}, &out)
	require.Error(t, err)
}
