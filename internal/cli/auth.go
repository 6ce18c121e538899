package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"properpakistan-api/internal/domain"
	"properpakistan-api/internal/guard"
	"properpakistan-api/internal/session"
)

func newLoginCmd(app func() *App) *cobra.Command {
	var email, password, provider string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to your account",
		Long: `Sign in with email and password, or with an OAuth provider.

Examples:
  ppk login
  ppk login --email user@example.com
  ppk login --provider google`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ctx := cmd.Context()

			var (
				sess *session.Session
				err  error
			)
			if provider != "" {
				sess, err = oauthLogin(ctx, a, provider)
			} else {
				if err := promptCredentials(&email, &password, nil); err != nil {
					return err
				}
				sess, err = a.Store.SignIn(ctx, email, password)
			}
			if err != nil {
				return describeAuthError(err)
			}

			user, ok := a.AwaitProfile(ctx, sess.User.ID)
			if !ok {
				fmt.Fprintf(a.Out, "Signed in as %s. Your profile is still loading.\n", sess.User.Email)
				return nil
			}
			fmt.Fprintf(a.Out, "Signed in as %s (%s).\n", user.Name, user.Email)
			if user.IsAdmin() {
				fmt.Fprintln(a.Out, "Run 'ppk dashboard' to manage users.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	cmd.Flags().StringVar(&provider, "provider", "", "OAuth provider, e.g. google")
	return cmd
}

func newSignupCmd(app func() *App) *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := promptCredentials(&email, &password, &name); err != nil {
				return err
			}

			_, err := a.Store.SignUp(cmd.Context(), email, password, name)
			if session.IsKind(err, session.EmailNotConfirmed) {
				fmt.Fprintln(a.Out, "Account created. Check your email to confirm it, then run 'ppk login'.")
				return nil
			}
			if err != nil {
				return describeAuthError(err)
			}
			fmt.Fprintln(a.Out, "Account created. You are signed in.")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (prompted when omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	return cmd
}

func newLogoutCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			if err := a.Sync.SignOut(cmd.Context()); err != nil {
				// local state is already cleared
				fmt.Fprintf(a.Out, "Signed out locally; the server could not be reached: %v\n", err)
				return nil
			}
			fmt.Fprintln(a.Out, "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd(app func() *App) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			return guarded(a.Guard.Run(cmd.Context(), false, func(_ context.Context, user *domain.Profile) error {
				return printProfile(a.Out, format, user)
			}))
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format (text, json, yaml)")
	return cmd
}

// promptCredentials asks for whatever was not given as a flag. name is only
// prompted for when non-nil.
func promptCredentials(email, password, name *string) error {
	var fields []huh.Field
	if name != nil && *name == "" {
		fields = append(fields, huh.NewInput().Title("Name").Value(name))
	}
	if *email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Validate(func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("enter a valid email")
				}
				return nil
			}).
			Value(email))
	}
	if *password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(password))
	}
	if len(fields) == 0 {
		return nil
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

func describeAuthError(err error) error {
	var authErr *session.AuthError
	if !errors.As(err, &authErr) {
		return err
	}
	switch authErr.Kind {
	case session.InvalidCredentials:
		return errors.New("invalid email or password")
	case session.EmailNotConfirmed:
		return errors.New("please confirm your email before signing in")
	case session.Network:
		return fmt.Errorf("could not reach the sign-in service: %w", err)
	default:
		return err
	}
}

// guarded turns a guard redirect into a quiet exit; the navigator has
// already told the user where to go.
func guarded(err error) error {
	if _, ok := guard.IsRedirect(err); ok {
		return errRedirected
	}
	return err
}

var errRedirected = errors.New("not authorised for this view")
