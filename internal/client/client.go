// Package client is a Go client for the blog auth API. It keeps the session
// in a Store and renews it transparently through Transport.
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
	"github.com/prperemyshlev/blog-auth-service/internal/dto"
	"go.uber.org/zap"
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 15 * time.Second
)

// APIError is a non-2xx response decoded from the error envelope
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type envelope struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Client calls the auth API on behalf of the session held in its Store
type Client struct {
	baseURL string
	http    *http.Client
	store   Store
	logger  *zap.Logger
}

type Option func(*options)

type options struct {
	base           http.RoundTripper
	timeout        time.Duration
	refreshTimeout time.Duration
	logger         *zap.Logger
}

// WithBaseTransport sets the transport used beneath the session transport
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRefreshTimeout bounds the shared refresh call that renews the session
func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) { o.refreshTimeout = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a client for the API served at baseURL
func New(baseURL string, store Store, opts ...Option) *Client {
	o := options{timeout: defaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	baseURL = strings.TrimSuffix(baseURL, "/")
	transport := NewTransport(o.base, store, baseURL+apiPrefix, o.logger)
	if o.refreshTimeout > 0 {
		transport.refreshTimeout = o.refreshTimeout
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Transport: transport, Timeout: o.timeout},
		store:   store,
		logger:  o.logger,
	}
}

// Store returns the credential store of the client
func (c *Client) Store() Store {
	return c.store
}

// HTTPClient returns an http.Client that authenticates and refreshes like c.
// Use it for calls to other services that accept the same tokens.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Register creates an account. When the server signs the user in, the session is stored.
func (c *Client) Register(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterData, error) {
	var data dto.RegisterData
	if err := c.Do(ctx, http.MethodPost, registerPath, req, &data); err != nil {
		return nil, err
	}

	if data.AccessToken != "" {
		if err := c.store.Set(domain.TokenPair{
			AccessToken:  data.AccessToken,
			RefreshToken: data.RefreshToken,
			TokenType:    data.TokenType,
			ExpiresIn:    data.ExpiresIn,
		}); err != nil {
			return nil, err
		}
	}

	return &data, nil
}

// Login authenticates and stores the session
func (c *Client) Login(ctx context.Context, email, password string) (*dto.LoginData, error) {
	var data dto.LoginData
	req := dto.LoginRequest{Email: email, Password: password}
	if err := c.Do(ctx, http.MethodPost, loginPath, req, &data); err != nil {
		return nil, err
	}

	if err := c.store.Set(pairOf(data.TokenData)); err != nil {
		return nil, err
	}

	return &data, nil
}

// Refresh renews the session explicitly
func (c *Client) Refresh(ctx context.Context) (*dto.TokenData, error) {
	pair, ok := c.store.Get()
	if !ok || pair.RefreshToken == "" {
		return nil, ErrSessionExpired
	}

	var data dto.TokenData
	if err := c.Do(ctx, http.MethodPost, refreshPath, dto.RefreshRequest{RefreshToken: pair.RefreshToken}, &data); err != nil {
		return nil, err
	}
	if data.RefreshToken == "" {
		data.RefreshToken = pair.RefreshToken
	}

	if err := c.store.Set(pairOf(data)); err != nil {
		return nil, err
	}

	return &data, nil
}

// Me returns the profile of the signed-in user
func (c *Client) Me(ctx context.Context) (*dto.UserResponse, error) {
	var data dto.UserData
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &data); err != nil {
		return nil, err
	}
	return &data.User, nil
}

// Logout revokes the session on the server and clears the local store.
// The store is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	pair, ok := c.store.Get()
	if !ok {
		return nil
	}

	err := c.Do(ctx, http.MethodPost, "/auth/logout", dto.LogoutRequest{RefreshToken: pair.RefreshToken}, nil)
	if errors.Is(err, ErrSessionExpired) {
		err = nil
	}

	if clearErr := c.store.Clear(); clearErr != nil {
		return errors.Join(err, clearErr)
	}
	return err
}

// ChangeRole assigns a role to a user; the session must belong to an admin
func (c *Client) ChangeRole(ctx context.Context, userID string, role domain.Role) (*dto.UserResponse, error) {
	var data dto.UserData
	if err := c.Do(ctx, http.MethodPatch, "/users/"+userID+"/role", dto.ChangeRoleRequest{Role: string(role)}, &data); err != nil {
		return nil, err
	}
	return &data.User, nil
}

// Do sends a JSON request to path under the API prefix and decodes the envelope data into out.
// body and out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, out)
}

// decodeEnvelope turns an API response into out or an *APIError
func decodeEnvelope(resp *http.Response, out interface{}) error {
	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: env.Message}
		if decodeErr != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if decodeErr != nil {
		if errors.Is(decodeErr, io.EOF) && out == nil {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func pairOf(data dto.TokenData) domain.TokenPair {
	return domain.TokenPair{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
		TokenType:    data.TokenType,
		ExpiresIn:    data.ExpiresIn,
	}
}
