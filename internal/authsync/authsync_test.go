package authsync

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"properpakistan-api/internal/apiclient"
	"properpakistan-api/internal/domain"
	"properpakistan-api/internal/session"
	"properpakistan-api/internal/tokencache"
)

type fakeBackend struct {
	mu         sync.Mutex
	tokens     *tokencache.Cache
	seenTokens []string
	calls      int
	role       string
	err        error

	// when gate is set, SyncUser blocks until it is closed
	gate    chan struct{}
	entered chan struct{}
}

func newBackend(tokens *tokencache.Cache) *fakeBackend {
	return &fakeBackend{tokens: tokens, role: domain.RoleUser, entered: make(chan struct{}, 8)}
}

func (f *fakeBackend) SyncUser(ctx context.Context, req apiclient.SyncRequest) (*apiclient.UserResponse, error) {
	f.mu.Lock()
	f.calls++
	f.seenTokens = append(f.seenTokens, f.tokens.Get())
	gate, role, err := f.gate, f.role, f.err
	f.mu.Unlock()

	f.entered <- struct{}{}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &apiclient.UserResponse{Success: true, User: &domain.Profile{
		ID: req.SupabaseID, Email: req.Email, Name: req.Name, AvatarURL: req.Avatar, Role: role,
	}}, nil
}

type fakeSource struct {
	mu         sync.Mutex
	sess       *session.Session
	events     chan session.Event
	signOutErr error
	// onGet runs during GetSession, before the session is returned
	onGet func()
}

func (f *fakeSource) GetSession(context.Context) (*session.Session, error) {
	if f.onGet != nil {
		f.onGet()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess, nil
}

func (f *fakeSource) Subscribe() (<-chan session.Event, func()) {
	return f.events, func() {}
}

func (f *fakeSource) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sess = nil
	return f.signOutErr
}

func testSession(id, token string) *session.Session {
	return &session.Session{
		AccessToken: token,
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		User: session.Identity{
			ID:       id,
			Email:    id + "@example.com",
			Metadata: map[string]interface{}{"full_name": "Ayesha Khan", "avatar_url": "https://cdn.example.com/a.png"},
		},
	}
}

func setup(t *testing.T, timeout time.Duration) (*Synchronizer, *fakeBackend, *fakeSource, *tokencache.Cache) {
	t.Helper()
	tokens := tokencache.New(nil)
	backend := newBackend(tokens)
	source := &fakeSource{events: make(chan session.Event, 8)}
	return New(source, backend, tokens, timeout), backend, source, tokens
}

func waitEntered(t *testing.T, b *fakeBackend) {
	t.Helper()
	select {
	case <-b.entered:
	case <-time.After(time.Second):
		t.Fatal("backend was not called")
	}
}

func TestSync(t *testing.T) {
	t.Run("Should store the token before calling the backend", func(t *testing.T) {
		s, backend, _, tokens := setup(t, 0)

		res := s.Sync(context.Background(), testSession("u-1", "at-1").User, "at-1")

		require.Equal(t, Synced, res.Kind)
		assert.Equal(t, []string{"at-1"}, backend.seenTokens)
		assert.Equal(t, "at-1", tokens.Get())
		assert.Equal(t, "Ayesha Khan", res.Profile.Name)
		assert.Equal(t, "https://cdn.example.com/a.png", res.Profile.AvatarURL)
	})

	t.Run("Should be idempotent", func(t *testing.T) {
		s, backend, _, _ := setup(t, 0)
		id := testSession("u-1", "at-1").User

		first := s.Sync(context.Background(), id, "at-1")
		second := s.Sync(context.Background(), id, "at-1")

		assert.Equal(t, first, second)
		assert.Equal(t, 2, backend.calls)
		assert.Equal(t, "u-1", s.State().User.ID)
	})

	t.Run("Should keep the backend role", func(t *testing.T) {
		s, backend, _, _ := setup(t, 0)
		backend.role = domain.RoleAdmin

		res := s.Sync(context.Background(), testSession("u-1", "at-1").User, "at-1")

		assert.Equal(t, Synced, res.Kind)
		assert.True(t, s.IsAdmin())
	})

	t.Run("Should fall back to role user on a server error", func(t *testing.T) {
		s, backend, _, _ := setup(t, 0)
		backend.err = &apiclient.APIError{Status: http.StatusInternalServerError, Message: "Server error"}
		id := testSession("u-1", "at-1").User
		id.Metadata["role"] = domain.RoleAdmin

		res := s.Sync(context.Background(), id, "at-1")

		require.Equal(t, Fallback, res.Kind)
		assert.Error(t, res.Err)
		assert.Equal(t, domain.RoleUser, res.Profile.Role)
		assert.Equal(t, "u-1@example.com", res.Profile.Email)
		assert.False(t, s.IsAdmin())
		assert.Equal(t, Fallback, s.State().Source)
	})

	t.Run("Should accept a failure response that still reports success", func(t *testing.T) {
		s, backend, _, _ := setup(t, 0)
		backend.err = &apiclient.APIError{
			Status: http.StatusInternalServerError,
			Body:   []byte(`{"success":true,"user":{"id":"u-1","email":"u-1@example.com","role":"admin"}}`),
		}

		res := s.Sync(context.Background(), testSession("u-1", "at-1").User, "at-1")

		assert.Equal(t, Synced, res.Kind)
		assert.Equal(t, domain.RoleAdmin, res.Profile.Role)
	})

	t.Run("Should reject an identity without id or email", func(t *testing.T) {
		s, backend, _, _ := setup(t, 0)

		res := s.Sync(context.Background(), session.Identity{ID: "u-1"}, "at-1")

		assert.Equal(t, Failed, res.Kind)
		assert.ErrorIs(t, res.Err, ErrInvalidIdentity)
		assert.Zero(t, backend.calls)
	})

	t.Run("Should use the email local part as the default name", func(t *testing.T) {
		s, _, _, _ := setup(t, 0)

		res := s.Sync(context.Background(), session.Identity{ID: "u-9", Email: "ali@example.com"}, "at-9")

		assert.Equal(t, "ali", res.Profile.Name)
	})
}

func TestSignOutDominance(t *testing.T) {
	t.Run("Should discard a sync that completes after sign-out", func(t *testing.T) {
		s, backend, _, tokens := setup(t, 0)
		backend.gate = make(chan struct{})
		ctx := context.Background()

		s.HandleEvent(ctx, session.Event{Type: session.SignedIn, Session: testSession("u-1", "at-1")})
		waitEntered(t, backend)

		s.HandleEvent(ctx, session.Event{Type: session.SignedOut})
		close(backend.gate)
		s.Wait()

		st := s.State()
		assert.Nil(t, st.User)
		assert.Nil(t, st.SupabaseUser)
		assert.False(t, tokens.Present())
	})

	t.Run("Should discard a result superseded by a direct sign-out", func(t *testing.T) {
		s, backend, _, tokens := setup(t, 0)
		backend.gate = make(chan struct{})

		done := make(chan SyncResult, 1)
		go func() { done <- s.Sync(context.Background(), testSession("u-1", "at-1").User, "at-1") }()
		waitEntered(t, backend)

		require.NoError(t, s.SignOut(context.Background()))
		close(backend.gate)

		res := <-done
		assert.Equal(t, Failed, res.Kind)
		assert.ErrorIs(t, res.Err, ErrStale)
		assert.Nil(t, s.State().User)
		assert.False(t, tokens.Present())
	})

	t.Run("Should clear local state when provider sign-out fails", func(t *testing.T) {
		s, _, source, tokens := setup(t, 0)
		source.signOutErr = errors.New("network down")
		s.Sync(context.Background(), testSession("u-1", "at-1").User, "at-1")

		err := s.SignOut(context.Background())

		assert.Error(t, err)
		assert.Nil(t, s.State().User)
		assert.False(t, tokens.Present())
	})

	t.Run("Should treat a non-refresh event without session as sign-out", func(t *testing.T) {
		s, _, _, tokens := setup(t, 0)
		s.Sync(context.Background(), testSession("u-1", "at-1").User, "at-1")

		s.HandleEvent(context.Background(), session.Event{Type: session.SignedIn})

		assert.Nil(t, s.State().User)
		assert.False(t, tokens.Present())
	})
}

func TestTokenRefresh(t *testing.T) {
	t.Run("Should keep the user while re-syncing with the new token", func(t *testing.T) {
		s, backend, _, tokens := setup(t, 0)
		ctx := context.Background()
		s.Sync(ctx, testSession("u-1", "at-1").User, "at-1")
		<-backend.entered

		backend.mu.Lock()
		backend.gate = make(chan struct{})
		backend.mu.Unlock()

		s.HandleEvent(ctx, session.Event{Type: session.TokenRefreshed, Session: testSession("u-1", "at-2")})
		waitEntered(t, backend)

		assert.Equal(t, "at-2", tokens.Get())
		require.NotNil(t, s.State().User)
		assert.Equal(t, "u-1", s.State().User.ID)

		close(backend.gate)
		s.Wait()
		assert.Equal(t, "u-1", s.State().User.ID)
		assert.Equal(t, []string{"at-1", "at-2"}, backend.seenTokens)
	})

	t.Run("Should keep the refreshed token when the sign-in sync is still pending", func(t *testing.T) {
		s, backend, _, tokens := setup(t, 0)
		backend.gate = make(chan struct{})
		ctx := context.Background()

		s.HandleEvent(ctx, session.Event{Type: session.SignedIn, Session: testSession("u-1", "at-1")})
		s.HandleEvent(ctx, session.Event{Type: session.TokenRefreshed, Session: testSession("u-1", "at-2")})
		assert.Equal(t, "at-2", tokens.Get())

		waitEntered(t, backend)
		waitEntered(t, backend)
		close(backend.gate)
		s.Wait()

		assert.Equal(t, "at-2", tokens.Get())
		require.NotNil(t, s.State().User)
		assert.Equal(t, "u-1", s.State().User.ID)
	})

	t.Run("Should end on the newest token under any goroutine ordering", func(t *testing.T) {
		ctx := context.Background()
		for i := 0; i < 200; i++ {
			s, _, _, tokens := setup(t, 0)

			s.HandleEvent(ctx, session.Event{Type: session.SignedIn, Session: testSession("u-1", "old")})
			s.HandleEvent(ctx, session.Event{Type: session.TokenRefreshed, Session: testSession("u-1", "new")})
			s.Wait()

			require.Equal(t, "new", tokens.Get(), "run %d", i)
			require.NotNil(t, s.State().User, "run %d", i)
		}
	})

	t.Run("Should ignore a refresh without session", func(t *testing.T) {
		s, _, _, tokens := setup(t, 0)
		s.Sync(context.Background(), testSession("u-1", "at-1").User, "at-1")

		s.HandleEvent(context.Background(), session.Event{Type: session.TokenRefreshed})

		assert.NotNil(t, s.State().User)
		assert.Equal(t, "at-1", tokens.Get())
	})
}

func TestInit(t *testing.T) {
	t.Run("Should be ready immediately without a session", func(t *testing.T) {
		s, backend, _, _ := setup(t, 0)

		s.Init(context.Background())

		require.NoError(t, s.WaitReady(context.Background()))
		st := s.State()
		assert.False(t, st.Loading)
		assert.Nil(t, st.User)
		assert.Zero(t, backend.calls)
	})

	t.Run("Should be ready after syncing an existing session", func(t *testing.T) {
		s, _, source, tokens := setup(t, 0)
		source.sess = testSession("u-1", "at-1")

		assert.True(t, s.State().Loading)
		s.Init(context.Background())

		st := s.State()
		assert.False(t, st.Loading)
		require.NotNil(t, st.User)
		assert.Equal(t, "u-1", st.User.ID)
		assert.Equal(t, "u-1", st.SupabaseUser.ID)
		assert.Equal(t, "at-1", tokens.Get())
	})

	t.Run("Should drop the restored session when signed out during lookup", func(t *testing.T) {
		s, backend, source, tokens := setup(t, 0)
		source.sess = testSession("u-1", "tok-1")
		source.onGet = func() {
			s.HandleEvent(context.Background(), session.Event{Type: session.SignedOut})
		}

		s.Init(context.Background())
		s.Wait()

		st := s.State()
		assert.False(t, st.Loading)
		assert.Nil(t, st.User)
		assert.Nil(t, st.SupabaseUser)
		assert.False(t, tokens.Present())
		assert.Zero(t, backend.calls)
	})

	t.Run("Should discard the init sync when signed out mid-flight", func(t *testing.T) {
		s, backend, source, tokens := setup(t, 50*time.Millisecond)
		source.sess = testSession("u-1", "tok-1")
		backend.gate = make(chan struct{})

		s.Init(context.Background())
		waitEntered(t, backend)

		s.HandleEvent(context.Background(), session.Event{Type: session.SignedOut})
		close(backend.gate)
		s.Wait()

		assert.Nil(t, s.State().User)
		assert.False(t, tokens.Present())
	})

	t.Run("Should force ready on timeout and keep syncing", func(t *testing.T) {
		s, backend, source, _ := setup(t, 50*time.Millisecond)
		source.sess = testSession("u-1", "at-1")
		backend.gate = make(chan struct{})

		start := time.Now()
		s.Init(context.Background())

		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
		assert.False(t, s.State().Loading)
		assert.Nil(t, s.State().User)

		close(backend.gate)
		assert.Eventually(t, func() bool { return s.State().User != nil }, time.Second, 10*time.Millisecond)
	})
}

func TestStart(t *testing.T) {
	t.Run("Should sync on a fresh sign-in event", func(t *testing.T) {
		s, _, source, tokens := setup(t, 0)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s.Start(ctx)
		assert.Nil(t, s.State().User)

		source.events <- session.Event{Type: session.SignedIn, Session: testSession("u-2", "at-2")}

		assert.Eventually(t, func() bool {
			u := s.State().User
			return u != nil && u.ID == "u-2"
		}, time.Second, 10*time.Millisecond)
		assert.Equal(t, "at-2", tokens.Get())
		assert.Equal(t, Synced, s.State().Source)
	})
}

func TestReset(t *testing.T) {
	t.Run("Should clear state and invalidate a pending sync", func(t *testing.T) {
		s, backend, _, tokens := setup(t, 0)
		backend.gate = make(chan struct{})

		s.HandleEvent(context.Background(), session.Event{Type: session.SignedIn, Session: testSession("u-1", "at-1")})
		waitEntered(t, backend)

		s.Reset()
		close(backend.gate)
		s.Wait()

		assert.Nil(t, s.State().User)
		assert.Nil(t, s.State().SupabaseUser)
		assert.False(t, tokens.Present())
	})
}
