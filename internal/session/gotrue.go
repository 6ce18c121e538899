package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Provider is the subset of the GoTrue API the Store uses.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	// SignUp returns a nil session when email confirmation is pending.
	SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*Session, error)
	AuthorizeURL(provider, redirectTo, challenge string) string
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*Identity, error)
}

// GoTrueClient talks to <SUPABASE_URL>/auth/v1.
type GoTrueClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewGoTrueClient(supabaseURL, anonKey string, client *http.Client) (*GoTrueClient, error) {
	if supabaseURL == "" || anonKey == "" {
		return nil, ErrNotConfigured
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoTrueClient{
		baseURL: strings.TrimRight(supabaseURL, "/") + "/auth/v1",
		apiKey:  anonKey,
		client:  client,
	}, nil
}

// gotrueError covers both the legacy {error, error_description} and the
// newer {code, error_code, msg} response bodies.
type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (g gotrueError) message() string {
	for _, m := range []string{g.Msg, g.ErrorDescription, g.Message, g.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

func (c *GoTrueClient) do(ctx context.Context, method, path string, body interface{}, accessToken string, out interface{}) error {
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
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &AuthError{Kind: Network, Message: "Unable to reach the auth service", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp gotrueError
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return classify(resp.StatusCode, errResp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &AuthError{Kind: ProviderError, Status: resp.StatusCode, Message: "Failed to parse auth response", Err: err}
	}
	return nil
}

func classify(status int, e gotrueError) *AuthError {
	msg := e.message()
	lower := strings.ToLower(msg)
	authErr := &AuthError{Status: status, Message: msg, Err: fmt.Errorf("gotrue: %d %s", status, e.Error)}

	switch {
	case e.ErrorCode == "email_not_confirmed" || strings.Contains(lower, "email not confirmed"):
		authErr.Kind = EmailNotConfirmed
	case e.Error == "invalid_grant" || e.ErrorCode == "invalid_credentials" ||
		e.ErrorCode == "refresh_token_not_found" || status == http.StatusUnauthorized:
		authErr.Kind = InvalidCredentials
	case status >= 500 || status == http.StatusTooManyRequests:
		authErr.Kind = Network
	default:
		authErr.Kind = ProviderError
	}
	if authErr.Message == "" {
		authErr.Message = http.StatusText(status)
	}
	return authErr
}

func (c *GoTrueClient) token(ctx context.Context, grantType string, body interface{}) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/token?grant_type="+grantType, body, "", &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, &AuthError{Kind: ProviderError, Message: "Auth response contained no access token"}
	}
	s.normalize(time.Now())
	return &s, nil
}

func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return c.token(ctx, "password", map[string]string{"email": email, "password": password})
}

func (c *GoTrueClient) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *GoTrueClient) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	return c.token(ctx, "pkce", map[string]string{"auth_code": code, "code_verifier": verifier})
}

func (c *GoTrueClient) SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (*Session, error) {
	// With autoconfirm the body is a session; otherwise it is the bare user
	var resp struct {
		Session
	}
	body := map[string]interface{}{
		"email":    email,
		"password": password,
		"data":     metadata,
	}
	if err := c.do(ctx, http.MethodPost, "/signup", body, "", &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, nil
	}
	s := resp.Session
	s.normalize(time.Now())
	return &s, nil
}

func (c *GoTrueClient) AuthorizeURL(provider, redirectTo, challenge string) string {
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "s256")
	return c.baseURL + "/authorize?" + q.Encode()
}

func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil)
}

func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, &id); err != nil {
		return nil, err
	}
	return &id, nil
}
