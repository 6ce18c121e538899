package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"properpakistan-api/config"
	"properpakistan-api/internal/apiclient"
	"properpakistan-api/internal/authsync"
	"properpakistan-api/internal/domain"
	"properpakistan-api/internal/guard"
	"properpakistan-api/internal/session"
	"properpakistan-api/internal/tokencache"
	"properpakistan-api/pkg/logger"
)

// App wires the client core for one command invocation.
type App struct {
	Config *config.ClientConfig
	Store  *session.Store
	Tokens *tokencache.Cache
	API    *apiclient.Client
	Sync   *authsync.Synchronizer
	Guard  *guard.Guard
	Out    io.Writer
}

func NewApp(cfg *config.ClientConfig, out io.Writer) (*App, error) {
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	hc := &http.Client{Timeout: 15 * time.Second}
	provider, err := session.NewGoTrueClient(cfg.SupabaseUrl, cfg.SupabaseKey, hc)
	if err != nil {
		return nil, fmt.Errorf("supabase: %w", err)
	}

	store := session.NewStore(provider, session.NewFileStorage(cfg.StateDir))
	tokens := tokencache.New(tokencache.NewFilePersister(cfg.StateDir))
	nav := &terminalNavigator{out: out}

	app := &App{Config: cfg, Store: store, Tokens: tokens, Out: out}
	app.API = apiclient.New(cfg.APIURL, tokens,
		apiclient.WithHTTPClient(hc),
		apiclient.WithRedirector(nav),
		// a 401 with no token also drops the reconciled user
		apiclient.WithLoggedOutHook(func() { app.Sync.Reset() }),
	)
	app.Sync = authsync.New(store, app.API, tokens, cfg.AuthTimeout)
	app.Guard = guard.New(store, app.Sync, nav, cfg.GuardRetries, cfg.GuardDelay)
	return app, nil
}

// Start runs the background session machinery and returns once the
// synchronizer is READY.
func (a *App) Start(ctx context.Context) {
	go a.Store.StartAutoRefresh(ctx)
	go func() {
		if err := a.Store.WatchStorage(ctx); err != nil {
			logger.Log.Warn("Session watch stopped", "error", err)
		}
	}()
	a.Sync.Start(ctx)
}

// AwaitProfile waits for the synchronizer to reconcile the given identity
// after a sign-in event.
func (a *App) AwaitProfile(ctx context.Context, id string) (*domain.Profile, bool) {
	delay := a.Config.GuardDelay
	if delay <= 0 {
		delay = guard.DefaultDelay
	}
	attempts := int(a.Config.AuthTimeout/delay) + 1
	user, found, err := guard.Retry(ctx, attempts, delay, func(context.Context) (*domain.Profile, bool, error) {
		st := a.Sync.State()
		return st.User, st.User != nil && st.User.ID == id, nil
	})
	if err != nil {
		return nil, false
	}
	return user, found
}

type terminalNavigator struct {
	out io.Writer
}

func (n *terminalNavigator) RedirectToSignIn() {
	fmt.Fprintln(n.out, "You are not signed in. Run 'ppk login' to continue.")
}

func (n *terminalNavigator) RedirectToDefault() {
	fmt.Fprintln(n.out, "Admin access is required for this view. Run 'ppk whoami' to see your account.")
}
