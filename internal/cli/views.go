package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"properpakistan-api/internal/domain"
)

func newDashboardCmd(app func() *App) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Admin dashboard: list all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			return guarded(a.Guard.Run(cmd.Context(), true, func(ctx context.Context, _ *domain.Profile) error {
				users, err := a.API.GetAllUsers(ctx)
				if err != nil {
					return fmt.Errorf("failed to list users: %w", err)
				}
				return printUsers(a.Out, format, users)
			}))
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format (text, json, yaml)")
	return cmd
}

func newProfileCmd(app func() *App) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			return guarded(a.Guard.Run(cmd.Context(), false, func(ctx context.Context, _ *domain.Profile) error {
				profile, err := a.API.GetProfile(ctx)
				if err != nil {
					return fmt.Errorf("failed to load profile: %w", err)
				}
				return printProfile(a.Out, format, profile)
			}))
		},
	}
	cmd.PersistentFlags().StringVarP(&format, "output", "o", formatText, "Output format (text, json, yaml)")

	var name, avatar string
	update := &cobra.Command{
		Use:   "update",
		Short: "Change your display name or avatar",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" && avatar == "" {
				return fmt.Errorf("nothing to update: pass --name or --avatar")
			}
			a := app()
			return guarded(a.Guard.Run(cmd.Context(), false, func(ctx context.Context, _ *domain.Profile) error {
				profile, err := a.API.UpdateProfile(ctx, domain.UpdateProfileInput{Name: name, Avatar: avatar})
				if err != nil {
					return fmt.Errorf("failed to update profile: %w", err)
				}
				return printProfile(a.Out, format, profile)
			}))
		},
	}
	update.Flags().StringVar(&name, "name", "", "New display name")
	update.Flags().StringVar(&avatar, "avatar", "", "New avatar URL")
	cmd.AddCommand(update)
	return cmd
}

func newBookmarksCmd(app func() *App) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "bookmarks",
		Short: "List your bookmarked posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			return guarded(a.Guard.Run(cmd.Context(), false, func(ctx context.Context, _ *domain.Profile) error {
				bookmarks, err := a.API.GetBookmarks(ctx)
				if err != nil {
					return fmt.Errorf("failed to list bookmarks: %w", err)
				}
				return printBookmarks(a.Out, format, bookmarks)
			}))
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "Output format (text, json, yaml)")
	return cmd
}

func newBookmarkCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "bookmark <postId>",
		Short: "Bookmark a post, or remove the bookmark if it exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			return guarded(a.Guard.Run(cmd.Context(), false, func(ctx context.Context, _ *domain.Profile) error {
				bookmarked, err := a.API.ToggleBookmark(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to toggle bookmark: %w", err)
				}
				if bookmarked {
					fmt.Fprintf(a.Out, "Bookmarked %s.\n", args[0])
				} else {
					fmt.Fprintf(a.Out, "Removed bookmark for %s.\n", args[0])
				}
				return nil
			}))
		},
	}
}

func newStatusCmd(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the API and your session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			st := a.Sync.State()
			if st.SupabaseUser != nil {
				fmt.Fprintf(a.Out, "Session: signed in as %s (%s)\n", st.SupabaseUser.Email, st.Source)
			} else {
				fmt.Fprintln(a.Out, "Session: signed out")
			}

			health, err := a.API.Health(cmd.Context())
			if err != nil {
				fmt.Fprintf(a.Out, "API:     unreachable (%v)\n", err)
				return nil
			}
			fmt.Fprintf(a.Out, "API:     %s\n", health.Data["status"])
			for _, dep := range []string{"database", "redis"} {
				if v, ok := health.Data[dep]; ok {
					fmt.Fprintf(a.Out, "  %-9s %s\n", dep+":", v)
				}
			}
			return nil
		},
	}
}
