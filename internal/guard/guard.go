// Package guard decides whether a navigation target may be entered with the
// current session, redirecting to login or to the forbidden page otherwise.
package guard

import (
	"net/url"
	"time"

	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"github.com/prperemyshlev/blog-auth-service/internal/token"
)

// TokenSource exposes the credential pair of the current session
type TokenSource interface {
	Get() (domain.TokenPair, bool)
}

// Decision is the outcome of a guard. RedirectTo is set when Allowed is false.
type Decision struct {
	Allowed    bool
	RedirectTo string
}

// Func evaluates navigation to target
type Func func(target string) Decision

type Options struct {
	LoginPath     string
	ForbiddenPath string
	ReturnParam   string
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.ForbiddenPath == "" {
		o.ForbiddenPath = "/forbidden"
	}
	if o.ReturnParam == "" {
		o.ReturnParam = "returnUrl"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Guards builds route guards over a session source. Guards only read token
// claims; the server remains the authority on every request.
type Guards struct {
	source TokenSource
	opts   Options
}

func New(source TokenSource, opts Options) *Guards {
	return &Guards{source: source, opts: opts.withDefaults()}
}

// Claims returns the claims of the current session, or nil when there is none.
// An expired access token still counts while the refresh token is valid,
// since the next request will renew it.
func (g *Guards) Claims() *domain.TokenClaims {
	pair, ok := g.source.Get()
	if !ok {
		return nil
	}

	now := g.opts.Now()
	for _, raw := range []string{pair.AccessToken, pair.RefreshToken} {
		if raw == "" {
			continue
		}
		if claims := token.Decode(raw); claims != nil && !claims.IsExpired(now) {
			return claims
		}
	}
	return nil
}

// AuthGuard allows any signed-in session
func (g *Guards) AuthGuard(target string) Decision {
	if g.Claims() == nil {
		return g.toLogin(target)
	}
	return Decision{Allowed: true}
}

// RoleGuard allows sessions whose role satisfies required
func (g *Guards) RoleGuard(required domain.Role) Func {
	return func(target string) Decision {
		claims := g.Claims()
		if claims == nil {
			return g.toLogin(target)
		}
		if !claims.Role.Satisfies(required) {
			return Decision{RedirectTo: g.opts.ForbiddenPath}
		}
		return Decision{Allowed: true}
	}
}

func (g *Guards) toLogin(target string) Decision {
	q := url.Values{}
	q.Set(g.opts.ReturnParam, target)
	return Decision{RedirectTo: g.opts.LoginPath + "?" + q.Encode()}
}
