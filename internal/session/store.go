package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"properpakistan-api/pkg/logger"

	"golang.org/x/oauth2"
)

const (
	DefaultRefreshTick   = 10 * time.Second
	DefaultRefreshMargin = 60 * time.Second

	subscriberBuffer = 16
)

type subscriber struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Store owns the current session. It restores the session lazily from
// Storage, persists every change and publishes SignedIn, SignedOut and
// TokenRefreshed events to subscribers in the order the changes happened.
type Store struct {
	provider Provider
	storage  Storage
	now      func() time.Time

	refreshTick   time.Duration
	refreshMargin time.Duration

	// emitMu serialises state changes with their publication.
	emitMu sync.Mutex

	mu       sync.Mutex
	session  *Session
	restored bool
	verifier string

	subsMu sync.Mutex
	subs   map[int]*subscriber
	nextID int
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithRefresh(tick, margin time.Duration) Option {
	return func(s *Store) {
		s.refreshTick = tick
		s.refreshMargin = margin
	}
}

func NewStore(provider Provider, storage Storage, opts ...Option) *Store {
	if storage == nil {
		storage = &MemoryStorage{}
	}
	s := &Store{
		provider:      provider,
		storage:       storage,
		now:           time.Now,
		refreshTick:   DefaultRefreshTick,
		refreshMargin: DefaultRefreshMargin,
		subs:          make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener. Events must be drained promptly; the
// returned func unregisters it and is safe to call more than once.
func (s *Store) Subscribe() (<-chan Event, func()) {
	sub := &subscriber{
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}

	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.subsMu.Unlock()

	return sub.ch, func() {
		sub.once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(sub.done)
		})
	}
}

func (s *Store) publish(ev Event) {
	s.subsMu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subsMu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		case <-sub.done:
		}
	}
}

// transition swaps the current session, persists it when asked and publishes
// the event. Callers must not hold s.mu.
func (s *Store) transition(ev Event, persist bool) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	s.session = ev.Session
	s.restored = true
	s.mu.Unlock()

	if persist {
		var err error
		if ev.Session != nil {
			err = s.storage.Save(ev.Session)
		} else {
			err = s.storage.Remove()
		}
		if err != nil {
			logger.Log.Warn("Session persistence failed", "event", ev.Type.String(), "error", err)
		}
	}

	logger.Log.Debug("Auth state change", "event", ev.Type.String())
	s.publish(ev)
}

func (s *Store) current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.restored {
		restored, err := s.storage.Load()
		if err != nil {
			logger.Log.Warn("Session restore failed", "error", err)
		}
		s.session = restored
		s.restored = true
	}
	return s.session
}

// GetSession returns the current session if present and unexpired. An expired
// session is refreshed first; nil means signed out.
func (s *Store) GetSession(ctx context.Context) (*Session, error) {
	sess := s.current()
	if sess == nil {
		return nil, nil
	}
	if !sess.ExpiresWithin(s.now(), 0) {
		return sess, nil
	}

	refreshed, err := s.Refresh(ctx)
	if err != nil {
		if IsKind(err, InvalidCredentials) {
			return nil, nil
		}
		return nil, err
	}
	return refreshed, nil
}

func (s *Store) SignIn(ctx context.Context, email, password string) (*Session, error) {
	sess, err := s.provider.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, err
	}
	s.transition(Event{Type: SignedIn, Session: sess}, true)
	return sess, nil
}

// SignUp creates an account with name stored as both "name" and "full_name".
// When the project requires email confirmation no session is created and an
// EmailNotConfirmed error is returned; a failure to send that email is
// reported the same way because the user was still created.
func (s *Store) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	metadata := map[string]interface{}{
		"name":      name,
		"full_name": name,
	}
	sess, err := s.provider.SignUp(ctx, strings.TrimSpace(email), password, metadata)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) && isEmailDeliveryFailure(authErr.Message) {
			logger.Log.Warn("Sign-up confirmation email failed", "error", authErr.Message)
			return nil, &AuthError{Kind: EmailNotConfirmed, Status: authErr.Status, Message: "Account created. Confirm your email before signing in.", Err: err}
		}
		return nil, err
	}
	if sess == nil {
		return nil, &AuthError{Kind: EmailNotConfirmed, Message: "Account created. Check your email to confirm it before signing in."}
	}
	s.transition(Event{Type: SignedIn, Session: sess}, true)
	return sess, nil
}

func isEmailDeliveryFailure(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "email") &&
		(strings.Contains(lower, "sending") || strings.Contains(lower, "send") || strings.Contains(lower, "deliver"))
}

// SignInWithOAuth starts a PKCE flow and returns the provider URL to open.
// The flow completes with ExchangeCode.
func (s *Store) SignInWithOAuth(provider, redirectTo string) string {
	verifier := oauth2.GenerateVerifier()

	s.mu.Lock()
	s.verifier = verifier
	s.mu.Unlock()

	return s.provider.AuthorizeURL(provider, redirectTo, oauth2.S256ChallengeFromVerifier(verifier))
}

func (s *Store) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	s.mu.Lock()
	verifier := s.verifier
	s.verifier = ""
	s.mu.Unlock()

	if verifier == "" {
		return nil, &AuthError{Kind: ProviderError, Message: "No OAuth sign-in in progress"}
	}
	sess, err := s.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	s.transition(Event{Type: SignedIn, Session: sess}, true)
	return sess, nil
}

// SignOut always clears the local session and emits SignedOut. The error from
// revoking the refresh token server-side is returned after that.
func (s *Store) SignOut(ctx context.Context) error {
	sess := s.current()
	s.transition(Event{Type: SignedOut}, true)

	if sess == nil {
		return nil
	}
	if err := s.provider.SignOut(ctx, sess.AccessToken); err != nil && !IsKind(err, InvalidCredentials) {
		return err
	}
	return nil
}

// Refresh exchanges the refresh token. A rejected refresh token signs the
// user out.
func (s *Store) Refresh(ctx context.Context) (*Session, error) {
	sess := s.current()
	if sess == nil || sess.RefreshToken == "" {
		return nil, ErrNoSession
	}

	refreshed, err := s.provider.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if IsKind(err, InvalidCredentials) {
			logger.Log.Info("Refresh token rejected, signing out")
			s.transition(Event{Type: SignedOut}, true)
		}
		return nil, err
	}

	s.transition(Event{Type: TokenRefreshed, Session: refreshed}, true)
	return refreshed, nil
}

// StartAutoRefresh refreshes the session when it is within the refresh margin
// of expiry. It returns when ctx is done.
func (s *Store) StartAutoRefresh(ctx context.Context) {
	ticker := time.NewTicker(s.refreshTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess := s.current()
			if sess == nil || !sess.ExpiresWithin(s.now(), s.refreshMargin) {
				continue
			}
			if _, err := s.Refresh(ctx); err != nil && !IsKind(err, InvalidCredentials) {
				// Network trouble: keep the session and retry on the next tick
				logger.Log.Warn("Token auto-refresh failed", "error", err)
			}
		}
	}
}

// WatchStorage observes sign-ins and sign-outs performed by other processes
// sharing the same storage.
func (s *Store) WatchStorage(ctx context.Context) error {
	w, ok := s.storage.(Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, s.reloadFromStorage)
}

func (s *Store) reloadFromStorage() {
	stored, err := s.storage.Load()
	if err != nil {
		logger.Log.Warn("Session reload failed", "error", err)
		return
	}

	s.mu.Lock()
	prev := s.session
	s.mu.Unlock()

	switch {
	case stored == nil && prev == nil:
		return
	case stored == nil:
		s.transition(Event{Type: SignedOut}, false)
	case prev == nil || prev.User.ID != stored.User.ID:
		s.transition(Event{Type: SignedIn, Session: stored}, false)
	case prev.AccessToken != stored.AccessToken:
		s.transition(Event{Type: TokenRefreshed, Session: stored}, false)
	}
}
