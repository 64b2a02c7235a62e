package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prperemyshlev/blog-auth-service/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when the session can no longer be renewed.
// The credential store has been cleared by the time it is returned.
var ErrSessionExpired = errors.New("session expired")

const (
	refreshFlight         = "refresh"
	defaultRefreshTimeout = 10 * time.Second

	refreshPath  = "/auth/refresh-token"
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
)

// Transport attaches the session's access token to outgoing requests and
// renews the session once when the server answers 401.
//
// Concurrent requests that hit 401 share a single refresh call and each is
// retried at most once afterwards. Login and register calls are sent as is:
// their 401 means bad credentials, not an expired session.
type Transport struct {
	base           http.RoundTripper
	store          Store
	refreshURL     string
	credentialURLs []string
	refreshTimeout time.Duration
	logger         *zap.Logger

	group singleflight.Group
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport wraps base. apiURL is the absolute URL of the API root, e.g. http://host/api/v1.
func NewTransport(base http.RoundTripper, store Store, apiURL string, logger *zap.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	apiURL = strings.TrimSuffix(apiURL, "/")
	return &Transport{
		base:           base,
		store:          store,
		refreshURL:     apiURL + refreshPath,
		credentialURLs: []string{apiURL + loginPath, apiURL + registerPath},
		refreshTimeout: defaultRefreshTimeout,
		logger:         logger,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch {
	case t.isRefreshRequest(req):
		return t.roundTripRefresh(req)
	case t.isCredentialRequest(req):
		return t.base.RoundTrip(req)
	}

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	pair, authenticated := t.store.Get()
	resp, err := t.base.RoundTrip(withBearer(req, body, pair.AccessToken))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || !authenticated {
		return resp, err
	}
	drain(resp)

	current, ok := t.store.Get()
	if !ok {
		return nil, ErrSessionExpired
	}

	if current.AccessToken == pair.AccessToken {
		current, err = t.refresh(req.Context(), pair.AccessToken)
		if err != nil {
			return nil, err
		}
	} else {
		t.logger.Debug("access token replaced concurrently, retrying without refresh")
	}

	return t.base.RoundTrip(withBearer(req, body, current.AccessToken))
}

// roundTripRefresh dispatches a refresh call made by the application.
// A 401 here ends the session instead of triggering another refresh.
func (t *Transport) roundTripRefresh(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		t.endSession()
		return nil, ErrSessionExpired
	}
	return resp, nil
}

// refresh renews the pair whose access token was rejected. Callers arriving
// while a refresh is in flight wait for its result, each until its own context ends.
func (t *Transport) refresh(ctx context.Context, rejected string) (domain.TokenPair, error) {
	results := t.group.DoChan(refreshFlight, func() (interface{}, error) {
		current, ok := t.store.Get()
		if !ok {
			return nil, ErrSessionExpired
		}
		// A refresh that completed just before this flight already replaced the token.
		if current.AccessToken != rejected {
			return current, nil
		}
		if current.RefreshToken == "" {
			t.endSession()
			return nil, ErrSessionExpired
		}

		// Waiters share this call, so one caller's cancellation must not fail it for all.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.refreshTimeout)
		defer cancel()

		pair, err := t.requestRefresh(flightCtx, current.RefreshToken)
		if err != nil {
			return nil, err
		}
		if err := t.store.Set(pair); err != nil {
			return nil, fmt.Errorf("failed to store refreshed credentials: %w", err)
		}
		t.logger.Debug("session refreshed")
		return pair, nil
	})

	select {
	case <-ctx.Done():
		return domain.TokenPair{}, fmt.Errorf("waiting for session refresh: %w", ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return domain.TokenPair{}, res.Err
		}
		if res.Shared {
			t.logger.Debug("joined in-flight refresh")
		}
		return res.Val.(domain.TokenPair), nil
	}
}

func (t *Transport) requestRefresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return domain.TokenPair{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Info("session refresh failed", zap.Error(err))
		t.endSession()
		return domain.TokenPair{}, fmt.Errorf("%w: refresh request failed: %v", ErrSessionExpired, err)
	}
	defer resp.Body.Close()

	var pair domain.TokenPair
	if err := decodeEnvelope(resp, &pair); err != nil {
		t.logger.Info("session refresh rejected", zap.Int("status", resp.StatusCode), zap.Error(err))
		t.endSession()
		return domain.TokenPair{}, ErrSessionExpired
	}
	if pair.AccessToken == "" {
		t.endSession()
		return domain.TokenPair{}, ErrSessionExpired
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}

	return pair, nil
}

func (t *Transport) endSession() {
	if err := t.store.Clear(); err != nil {
		t.logger.Warn("failed to clear credentials", zap.Error(err))
	}
}

func (t *Transport) isRefreshRequest(req *http.Request) bool {
	return req.Method == http.MethodPost && sameURL(req, t.refreshURL)
}

func (t *Transport) isCredentialRequest(req *http.Request) bool {
	if req.Method != http.MethodPost {
		return false
	}
	for _, u := range t.credentialURLs {
		if sameURL(req, u) {
			return true
		}
	}
	return false
}

func sameURL(req *http.Request, target string) bool {
	return strings.TrimSuffix(req.URL.String(), "/") == strings.TrimSuffix(target, "/")
}

// bufferBody reads the request body so it can be replayed on retry
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	return body, nil
}

// withBearer clones req with a fresh copy of body and the given access token
func withBearer(req *http.Request, body []byte, accessToken string) *http.Request {
	clone := req.Clone(req.Context())
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		clone.ContentLength = int64(len(body))
	}
	if accessToken != "" {
		clone.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return clone
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
