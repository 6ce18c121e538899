// Package session wraps the Supabase auth API: it owns the current session,
// persists it, refreshes it before expiry and publishes session changes.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"properpakistan-api/internal/domain"
)

// Identity is the auth provider's record of the user.
type Identity struct {
	ID       string                 `json:"id"`
	Email    string                 `json:"email"`
	Metadata map[string]interface{} `json:"user_metadata,omitempty"`
}

func (i Identity) metadataString(key string) string {
	v, _ := i.Metadata[key].(string)
	return strings.TrimSpace(v)
}

// Name is metadata "name", then "full_name", then the email local part.
func (i Identity) Name() string {
	if n := i.metadataString("name"); n != "" {
		return n
	}
	if n := i.metadataString("full_name"); n != "" {
		return n
	}
	return domain.DefaultName(i.Email)
}

func (i Identity) AvatarURL() string {
	return i.metadataString("avatar_url")
}

// Session is a GoTrue token response. A non-nil Session returned by this
// package always has a non-empty AccessToken.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type,omitempty"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         Identity `json:"user"`
}

func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.User.ID != ""
}

// Expiry falls back to ExpiresIn when the server did not send expires_at.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	return time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
}

// ExpiresWithin reports whether the token expires before now+margin.
func (s *Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return !now.Add(margin).Before(time.Unix(s.ExpiresAt, 0))
}

func (s *Session) normalize(now time.Time) {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = now.Unix() + s.ExpiresIn
	}
}

type EventType int

const (
	SignedIn EventType = iota + 1
	SignedOut
	TokenRefreshed
)

func (t EventType) String() string {
	switch t {
	case SignedIn:
		return "SIGNED_IN"
	case SignedOut:
		return "SIGNED_OUT"
	case TokenRefreshed:
		return "TOKEN_REFRESHED"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is a session change. Session is nil for SignedOut.
type Event struct {
	Type    EventType
	Session *Session
}

type AuthErrorKind int

const (
	InvalidCredentials AuthErrorKind = iota + 1
	Network
	EmailNotConfirmed
	ProviderError
)

func (k AuthErrorKind) String() string {
	switch k {
	case InvalidCredentials:
		return "invalid_credentials"
	case Network:
		return "network"
	case EmailNotConfirmed:
		return "email_not_confirmed"
	case ProviderError:
		return "provider"
	default:
		return "unknown"
	}
}

// AuthError is returned by sign-in, sign-up, refresh and sign-out.
type AuthError struct {
	Kind    AuthErrorKind
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *AuthError of kind k.
func IsKind(err error, k AuthErrorKind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == k
}

var (
	ErrNotConfigured = errors.New("session: SUPABASE_URL or SUPABASE_ANON_KEY not set")
	ErrNoSession     = errors.New("session: not signed in")
)
