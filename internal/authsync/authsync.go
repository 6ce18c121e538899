// Package authsync reconciles the Supabase identity with the backend profile
// and keeps the reconciled state in step with session events.
package authsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"properpakistan-api/internal/apiclient"
	"properpakistan-api/internal/domain"
	"properpakistan-api/internal/session"
	"properpakistan-api/internal/tokencache"
	"properpakistan-api/pkg/logger"
)

// DefaultInitTimeout bounds how long Init waits before forcing READY.
const DefaultInitTimeout = 5 * time.Second

var (
	// ErrStale means a sign-out or a newer sync superseded this one.
	ErrStale           = errors.New("authsync: superseded by a newer session change")
	ErrInvalidIdentity = errors.New("authsync: identity has no id or email")
)

// Kind tags the outcome of a sync.
type Kind int

const (
	// Synced carries the backend profile and its trusted role.
	Synced Kind = iota + 1
	// Fallback is built locally from the identity; its role is always "user".
	Fallback
	Failed
)

func (k Kind) String() string {
	switch k {
	case Synced:
		return "synced"
	case Fallback:
		return "fallback"
	case Failed:
		return "failed"
	default:
		return "none"
	}
}

// SyncResult carries the profile for Synced and Fallback, and Err for Fallback and Failed.
type SyncResult struct {
	Kind    Kind
	Profile *domain.Profile
	Err     error
}

// State is a snapshot of the reconciled session.
type State struct {
	User         *domain.Profile
	SupabaseUser *session.Identity
	Loading      bool
	Source       Kind
}

// Backend is the profile sync endpoint, satisfied by *apiclient.Client.
type Backend interface {
	SyncUser(ctx context.Context, req apiclient.SyncRequest) (*apiclient.UserResponse, error)
}

// SessionSource is the session store the synchronizer follows, satisfied by
// *session.Store.
type SessionSource interface {
	GetSession(ctx context.Context) (*session.Session, error)
	Subscribe() (<-chan session.Event, func())
	SignOut(ctx context.Context) error
}

type Synchronizer struct {
	backend  Backend
	tokens   *tokencache.Cache
	sessions SessionSource
	timeout  time.Duration

	mu           sync.Mutex
	gen          uint64
	user         *domain.Profile
	supabaseUser *session.Identity
	loading      bool
	source       Kind
	syncCtx      context.Context
	syncCancel   context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once
	inflight  sync.WaitGroup
}

func New(sessions SessionSource, backend Backend, tokens *tokencache.Cache, initTimeout time.Duration) *Synchronizer {
	if initTimeout <= 0 {
		initTimeout = DefaultInitTimeout
	}
	return &Synchronizer{
		backend:  backend,
		tokens:   tokens,
		sessions: sessions,
		timeout:  initTimeout,
		loading:  true,
		ready:    make(chan struct{}),
	}
}

// Sync stores token, then reconciles identity with the backend profile. The
// token is written before the backend call so that call is authenticated. A
// result superseded by sign-out or a newer sync is discarded and reported as
// Failed(ErrStale).
func (s *Synchronizer) Sync(ctx context.Context, identity session.Identity, token string) SyncResult {
	if identity.ID == "" || identity.Email == "" {
		return SyncResult{Kind: Failed, Err: ErrInvalidIdentity}
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		// cancelled by a sign-out before this sync started
		s.mu.Unlock()
		return SyncResult{Kind: Failed, Err: ErrStale}
	}
	gen := s.beginLocked(identity, token)
	s.mu.Unlock()

	return s.complete(ctx, gen, identity)
}

// beginLocked starts a sync generation: it stores the token and identity and
// supersedes every earlier sync. Callers hold s.mu.
func (s *Synchronizer) beginLocked(identity session.Identity, token string) uint64 {
	s.gen++
	s.tokens.Set(token)
	id := identity
	s.supabaseUser = &id
	return s.gen
}

// complete calls the backend and applies the result only if gen is still the
// current generation.
func (s *Synchronizer) complete(ctx context.Context, gen uint64, identity session.Identity) SyncResult {
	resp, err := s.backend.SyncUser(ctx, apiclient.SyncRequest{
		SupabaseID: identity.ID,
		Email:      identity.Email,
		Name:       identity.Name(),
		Avatar:     identity.AvatarURL(),
	})
	result := reconcile(identity, resp, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		logger.Log.Debug("Discarding stale sync result", "user_id", identity.ID)
		return SyncResult{Kind: Failed, Err: ErrStale}
	}
	s.user = result.Profile
	s.source = result.Kind
	return result
}

func reconcile(identity session.Identity, resp *apiclient.UserResponse, err error) SyncResult {
	if err == nil && resp != nil && resp.Success && resp.User != nil {
		return SyncResult{Kind: Synced, Profile: resp.User}
	}

	// Some failures still carry a successful sync body
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		var body apiclient.UserResponse
		if json.Unmarshal(apiErr.Body, &body) == nil && body.Success && body.User != nil {
			return SyncResult{Kind: Synced, Profile: body.User}
		}
	}

	if err == nil {
		err = errors.New("authsync: backend returned success:false")
	}
	logger.Log.Warn("Profile sync failed, using fallback profile", "user_id", identity.ID, "error", err)
	return SyncResult{Kind: Fallback, Profile: FallbackProfile(identity), Err: err}
}

// FallbackProfile never grants more than role "user".
func FallbackProfile(identity session.Identity) *domain.Profile {
	return &domain.Profile{
		ID:        identity.ID,
		Email:     identity.Email,
		Name:      identity.Name(),
		AvatarURL: identity.AvatarURL(),
		Role:      domain.RoleUser,
	}
}

// Start subscribes to session events, then runs the initial session check.
// It returns once READY; events are handled until ctx is done.
func (s *Synchronizer) Start(ctx context.Context) {
	events, unsubscribe := s.sessions.Subscribe()
	go s.run(ctx, events, unsubscribe)
	s.Init(ctx)
}

func (s *Synchronizer) run(ctx context.Context, events <-chan session.Event, unsubscribe func()) {
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent applies one session event. Syncs run in the background so a
// sign-out arriving meanwhile is applied immediately.
func (s *Synchronizer) HandleEvent(ctx context.Context, ev session.Event) {
	logger.Log.Debug("Auth state change", "event", ev.Type.String())

	switch {
	case ev.Type == session.SignedOut:
		s.clear()
	case ev.Type == session.TokenRefreshed && ev.Session.Valid():
		// user stays in place until the new profile arrives
		s.syncAsync(ctx, ev.Session)
	case ev.Type == session.TokenRefreshed:
		// A refresh without a session is transient; the next event decides
	case ev.Session.Valid():
		s.syncAsync(ctx, ev.Session)
	default:
		s.clear()
	}
}

// syncAsync starts the generation in event order, so the token of the latest
// event is the one left in the cache, and runs the backend call in the
// background.
func (s *Synchronizer) syncAsync(parent context.Context, sess *session.Session) {
	if sess.User.Email == "" {
		logger.Log.Warn("Session identity has no email, skipping sync", "user_id", sess.User.ID)
		return
	}

	s.mu.Lock()
	ctx := s.syncContextLocked(parent)
	gen := s.beginLocked(sess.User, sess.AccessToken)
	s.mu.Unlock()

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.complete(ctx, gen, sess.User)
	}()
}

// syncContextLocked returns the context shared by the syncs of the current
// session; clear cancels it. Callers hold s.mu.
func (s *Synchronizer) syncContextLocked(parent context.Context) context.Context {
	if s.syncCtx == nil {
		s.syncCtx, s.syncCancel = context.WithCancel(parent)
	}
	return s.syncCtx
}

// Reset clears the reconciled state as a sign-out would, without calling the
// provider. Used when the API reports that no session exists.
func (s *Synchronizer) Reset() {
	s.clear()
}

// clear resets the reconciled state and invalidates every in-flight sync.
func (s *Synchronizer) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.user = nil
	s.supabaseUser = nil
	s.source = 0
	s.tokens.Clear()
	if s.syncCancel != nil {
		s.syncCancel()
		s.syncCtx, s.syncCancel = nil, nil
	}
}

// Init moves INIT -> READY. With no session READY is immediate; with a
// session READY follows the sync. After the init timeout READY is forced and
// the sync keeps running.
func (s *Synchronizer) Init(ctx context.Context) {
	// A sign-out during the session lookup moves the generation on and
	// cancels syncCtx, so the lookup result is dropped.
	s.mu.Lock()
	gen := s.gen
	syncCtx := s.syncContextLocked(ctx)
	s.mu.Unlock()

	done := make(chan struct{})
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer close(done)
		sess, err := s.sessions.GetSession(syncCtx)
		if err != nil {
			logger.Log.Warn("Error checking session", "error", err)
			return
		}
		if !sess.Valid() || sess.User.Email == "" {
			return
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			logger.Log.Debug("Session changed during init, dropping restored session")
			return
		}
		gen = s.beginLocked(sess.User, sess.AccessToken)
		s.mu.Unlock()

		s.complete(syncCtx, gen, sess.User)
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		logger.Log.Warn("Auth timeout, continuing without a reconciled session")
	case <-ctx.Done():
	}
	s.markReady()
}

func (s *Synchronizer) markReady() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Synchronizer) Ready() <-chan struct{} {
	return s.ready
}

func (s *Synchronizer) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{Loading: s.loading, Source: s.source}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	if s.supabaseUser != nil {
		id := *s.supabaseUser
		st.SupabaseUser = &id
	}
	return st
}

func (s *Synchronizer) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.IsAdmin()
}

// SignOut signs out with the provider and clears local state even when the
// provider call fails.
func (s *Synchronizer) SignOut(ctx context.Context) error {
	err := s.sessions.SignOut(ctx)
	s.clear()
	return err
}

// Wait blocks until background syncs have finished.
func (s *Synchronizer) Wait() {
	s.inflight.Wait()
}
