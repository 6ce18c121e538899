// Package guard decides whether a protected view may render for the current
// session, waiting briefly for a session that is still being restored.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"properpakistan-api/internal/authsync"
	"properpakistan-api/internal/domain"
	"properpakistan-api/internal/session"
	"properpakistan-api/pkg/logger"
)

const (
	DefaultRetries = 5
	DefaultDelay   = 200 * time.Millisecond
)

// Retry calls fn up to maxAttempts times, sleeping delay between attempts
// (never after the last one). It stops at the first found result or the first
// error. Not finding anything is reported as found=false with a nil error.
func Retry[T any](ctx context.Context, maxAttempts int, delay time.Duration, fn func(ctx context.Context) (T, bool, error)) (T, bool, error) {
	var zero T
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, found, err := fn(ctx)
		if err != nil {
			return zero, false, err
		}
		if found {
			return v, true, nil
		}
		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, false, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, false, nil
}

type SessionGetter interface {
	GetSession(ctx context.Context) (*session.Session, error)
}

// WaitForSession polls for a session so a guard does not redirect while a
// persisted session is still being restored. A lookup error counts as absent.
func WaitForSession(ctx context.Context, getter SessionGetter, retries int, delay time.Duration) (*session.Session, bool) {
	sess, found, err := Retry(ctx, retries, delay, func(ctx context.Context) (*session.Session, bool, error) {
		s, err := getter.GetSession(ctx)
		if err != nil {
			logger.Log.Debug("Session lookup failed", "error", err)
			return nil, false, nil
		}
		return s, s.Valid(), nil
	})
	if err != nil {
		return nil, false
	}
	return sess, found
}

type Decision int

const (
	Render Decision = iota
	RedirectSignIn
	RedirectDefault
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case RedirectSignIn:
		return "redirect-sign-in"
	case RedirectDefault:
		return "redirect-default"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

type Navigator interface {
	RedirectToSignIn()
	RedirectToDefault()
}

// RedirectError is returned by Run when the view was not rendered.
type RedirectError struct {
	Decision Decision
}

func (e *RedirectError) Error() string {
	return "guard: " + e.Decision.String()
}

func IsRedirect(err error) (Decision, bool) {
	var re *RedirectError
	if errors.As(err, &re) {
		return re.Decision, true
	}
	return Render, false
}

// Reconciler is the part of the synchronizer the guard reads.
type Reconciler interface {
	WaitReady(ctx context.Context) error
	State() authsync.State
}

type Guard struct {
	sessions  SessionGetter
	reconcile Reconciler
	nav       Navigator
	retries   int
	delay     time.Duration
}

func New(sessions SessionGetter, reconcile Reconciler, nav Navigator, retries int, delay time.Duration) *Guard {
	if retries <= 0 {
		retries = DefaultRetries
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Guard{sessions: sessions, reconcile: reconcile, nav: nav, retries: retries, delay: delay}
}

// Check returns the decision and, on Render, the reconciled profile.
// A signed-in non-admin on an admin view goes to the default view, not
// sign-in.
func (g *Guard) Check(ctx context.Context, requireAdmin bool) (Decision, *domain.Profile) {
	if _, ok := WaitForSession(ctx, g.sessions, g.retries, g.delay); !ok {
		return RedirectSignIn, nil
	}
	if err := g.reconcile.WaitReady(ctx); err != nil {
		return RedirectSignIn, nil
	}

	user := g.reconcile.State().User
	if user == nil {
		return RedirectSignIn, nil
	}
	if requireAdmin && !user.IsAdmin() {
		return RedirectDefault, user
	}
	return Render, user
}

// Run renders view when Check allows it, otherwise navigates and returns a
// *RedirectError.
func (g *Guard) Run(ctx context.Context, requireAdmin bool, view func(ctx context.Context, user *domain.Profile) error) error {
	decision, user := g.Check(ctx, requireAdmin)
	switch decision {
	case Render:
		return view(ctx, user)
	case RedirectDefault:
		logger.Log.Debug("Admin view denied", "user_id", user.ID)
		if g.nav != nil {
			g.nav.RedirectToDefault()
		}
	default:
		if g.nav != nil {
			g.nav.RedirectToSignIn()
		}
	}
	return &RedirectError{Decision: decision}
}
