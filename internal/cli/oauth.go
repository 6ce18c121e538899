package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"properpakistan-api/internal/session"
	"properpakistan-api/pkg/logger"
)

const oauthWait = 2 * time.Minute

type callbackResult struct {
	code string
	err  error
}

// oauthLogin runs the PKCE flow: it prints the provider URL, waits for the
// provider to redirect back to the loopback address, then exchanges the code.
func oauthLogin(ctx context.Context, a *App, provider string) (*session.Session, error) {
	redirect, err := url.Parse(a.Config.OAuthRedirectTo)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("invalid OAuth redirect %q", a.Config.OAuthRedirectTo)
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(redirect.Path, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Warn("OAuth callback server stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := a.Store.SignInWithOAuth(provider, redirect.String())
	fmt.Fprintf(a.Out, "Open this link in your browser to continue:\n\n  %s\n\n", authURL)

	waitCtx, cancel := context.WithTimeout(ctx, oauthWait)
	defer cancel()

	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		return a.Store.ExchangeCode(ctx, res.code)
	case <-waitCtx.Done():
		return nil, fmt.Errorf("timed out waiting for %s sign-in", provider)
	}
}

func callbackHandler(path string, results chan<- callbackResult) http.Handler {
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res := callbackResult{code: q.Get("code")}
		if desc := q.Get("error_description"); desc != "" {
			res.err = &session.AuthError{Kind: session.ProviderError, Message: desc}
		} else if res.code == "" {
			res.err = &session.AuthError{Kind: session.ProviderError, Message: "OAuth callback is missing the code"}
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, "Sign-in failed. You can close this window and try again.")
		} else {
			fmt.Fprintln(w, "Signed in. You can close this window and return to the terminal.")
		}

		select {
		case results <- res:
		default:
		}
	})
	return mux
}
