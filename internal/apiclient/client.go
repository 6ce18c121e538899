// Package apiclient is the HTTP client for the ProperPakistan API. Every
// request carries the token currently held by the token cache.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"properpakistan-api/internal/domain"
	"properpakistan-api/internal/tokencache"
	"properpakistan-api/pkg/logger"
)

// SignInRedirector is told to send the user to sign-in when a request is
// rejected and no token exists at all.
type SignInRedirector interface {
	RedirectToSignIn()
}

// APIError is a non-2xx response. Body keeps the raw payload because some
// failure responses still carry a usable result.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
}

func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *tokencache.Cache
	redirector SignInRedirector
	// onLoggedOut clears state beyond the token, e.g. the reconciled user
	onLoggedOut func()
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithRedirector(r SignInRedirector) Option {
	return func(c *Client) { c.redirector = r }
}

// WithLoggedOutHook registers a callback run when a 401 arrives with no token.
func WithLoggedOutHook(fn func()) Option {
	return func(c *Client) { c.onLoggedOut = fn }
}

func New(baseURL string, tokens *tokencache.Cache, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Read at call time so a refreshed token is used immediately
	if token := c.tokens.Get(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized()
	}

	if resp.StatusCode >= 300 {
		var env envelope
		_ = json.Unmarshal(data, &env)
		return &APIError{Status: resp.StatusCode, Message: env.Message, Body: data}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode %s: %w", path, err)
	}
	return nil
}

// handleUnauthorized: with no token the user is already logged out, so clear
// what is left and go to sign-in. With a token, drop it and let the next
// session refresh repopulate it.
func (c *Client) handleUnauthorized() {
	if !c.tokens.Present() {
		c.tokens.Clear()
		if c.onLoggedOut != nil {
			c.onLoggedOut()
		}
		if c.redirector != nil {
			c.redirector.RedirectToSignIn()
		}
		return
	}
	logger.Log.Debug("Request unauthorized, clearing cached token")
	c.tokens.Clear()
}

// SyncRequest is the body of POST /auth/sync.
type SyncRequest struct {
	SupabaseID string `json:"supabaseId"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar"`
}

type UserResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	User    *domain.Profile `json:"user"`
}

type UsersResponse struct {
	Success bool             `json:"success"`
	Users   []domain.Profile `json:"users"`
}

type BookmarkResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Bookmarked bool   `json:"bookmarked"`
}

type BookmarksResponse struct {
	Success   bool              `json:"success"`
	Bookmarks []domain.Bookmark `json:"bookmarks"`
}

type HealthResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    map[string]string `json:"data"`
}

func (c *Client) SyncUser(ctx context.Context, req SyncRequest) (*UserResponse, error) {
	var out UserResponse
	if err := c.do(ctx, http.MethodPost, "/auth/sync", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetProfile(ctx context.Context) (*domain.Profile, error) {
	var out UserResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) UpdateProfile(ctx context.Context, in domain.UpdateProfileInput) (*domain.Profile, error) {
	var out UserResponse
	if err := c.do(ctx, http.MethodPut, "/auth/profile", in, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// ToggleBookmark reports whether the post is bookmarked afterwards.
func (c *Client) ToggleBookmark(ctx context.Context, postID string) (bool, error) {
	var out BookmarkResponse
	if err := c.do(ctx, http.MethodPost, "/auth/bookmark/"+url.PathEscape(postID), nil, &out); err != nil {
		return false, err
	}
	return out.Bookmarked, nil
}

func (c *Client) GetBookmarks(ctx context.Context) ([]domain.Bookmark, error) {
	var out BookmarksResponse
	if err := c.do(ctx, http.MethodGet, "/auth/bookmarks", nil, &out); err != nil {
		return nil, err
	}
	return out.Bookmarks, nil
}

func (c *Client) GetAllUsers(ctx context.Context) ([]domain.Profile, error) {
	var out UsersResponse
	if err := c.do(ctx, http.MethodGet, "/auth/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	// a degraded server answers 503 with the same report
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
		if json.Unmarshal(apiErr.Body, &out) == nil && out.Data != nil {
			return &out, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
