package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "unit-test-secret-that-is-at-least-32-chars"
	testIssuer = "blog-auth-service"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(testSecret, testIssuer, time.Hour, 365*24*time.Hour).WithClock(clock.Now)
	return m, clock
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	m, clock := newTestManager(t)

	in := domain.TokenClaims{UserID: "user-1", Role: domain.RoleBlogger, Kind: domain.TokenKindAccess}
	tok, err := m.Issue(in, 10*time.Minute)
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)

	out, err := m.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.Role, out.Role)
	assert.Equal(t, in.Kind, out.Kind)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, out.IssuedAt.Add(10*time.Minute), out.ExpiresAt)
}

func TestVerifyExpired(t *testing.T) {
	m, clock := newTestManager(t)

	tok, err := m.IssueAccess("user-1", domain.RoleUser)
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)

	_, err = m.Verify(tok)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestAccessTTLIsCapped(t *testing.T) {
	m, _ := newTestManager(t)

	tok, err := m.Issue(domain.TokenClaims{UserID: "u", Role: domain.RoleAdmin, Kind: domain.TokenKindAccess}, 24*time.Hour)
	require.NoError(t, err)

	claims, err := m.Verify(tok)
	require.NoError(t, err)
	assert.LessOrEqual(t, claims.ExpiresAt.Sub(claims.IssuedAt), MaxAccessTokenTTL)

	capped := NewManager(testSecret, testIssuer, 3*time.Hour, 24*time.Hour)
	assert.Equal(t, int(MaxAccessTokenTTL.Seconds()), capped.AccessTokenExpiry())
}

func TestVerifyRejectsTamperedTokens(t *testing.T) {
	m, clock := newTestManager(t)

	tok, err := m.IssueAccess("user-1", domain.RoleUser)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewManager("another-secret-that-is-at-least-32-chars", testIssuer, time.Hour, time.Hour).WithClock(clock.Now)
		_, err := other.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewManager(testSecret, "someone-else", time.Hour, time.Hour).WithClock(clock.Now)
		_, err := other.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Verify("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("modified payload", func(t *testing.T) {
		parts := strings.Split(tok, ".")
		require.Len(t, parts, 3)
		forged := parts[0] + "." + parts[1] + "x." + parts[2]
		_, err := m.Verify(forged)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub":  "user-1",
			"role": "admin",
			"typ":  "access",
			"iss":  testIssuer,
			"iat":  clock.Now().Unix(),
			"exp":  clock.Now().Add(time.Minute).Unix(),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = m.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		claims := jwt.MapClaims{
			"sub":  "user-1",
			"role": "root",
			"typ":  "access",
			"iss":  testIssuer,
			"iat":  clock.Now().Unix(),
			"exp":  clock.Now().Add(time.Minute).Unix(),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = m.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestVerifyKind(t *testing.T) {
	m, _ := newTestManager(t)

	access, err := m.IssueAccess("user-1", domain.RoleUser)
	require.NoError(t, err)
	refresh, err := m.IssueRefresh("user-1", domain.RoleUser)
	require.NoError(t, err)

	_, err = m.VerifyAccess(access)
	assert.NoError(t, err)
	_, err = m.VerifyRefresh(refresh)
	assert.NoError(t, err)

	_, err = m.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = m.VerifyRefresh(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Issue(domain.TokenClaims{UserID: "u", Role: "root", Kind: domain.TokenKindAccess}, time.Minute)
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	m, clock := newTestManager(t)

	tok, err := m.IssueRefresh("user-9", domain.RoleAdmin)
	require.NoError(t, err)

	clock.Advance(400 * 24 * time.Hour)

	claims := Decode(tok)
	require.NotNil(t, claims)
	assert.Equal(t, "user-9", claims.UserID)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.Equal(t, domain.TokenKindRefresh, claims.Kind)
	assert.True(t, claims.IsExpired(clock.Now()))

	assert.Nil(t, Decode(""))
	assert.Nil(t, Decode("garbage"))
}
