// Package cli implements the ppk command line client.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"properpakistan-api/config"
	"properpakistan-api/pkg/logger"
)

// NewRootCmd builds the command tree. The App is created lazily so that
// --help works without any configuration.
func NewRootCmd(out io.Writer) *cobra.Command {
	var app *App

	root := &cobra.Command{
		Use:   "ppk",
		Short: "ProperPakistan account client",
		Long: `ppk signs you in to ProperPakistan and works with your account.

The session is stored in the state directory and shared with other ppk
processes, so signing out in one terminal signs out everywhere.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig()
			if err != nil {
				return err
			}
			// stdout is reserved for command output
			logger.InitWith(os.Stderr, cfg.LogLevel)

			app, err = NewApp(cfg, out)
			if err != nil {
				return err
			}
			app.Start(cmd.Context())
			return nil
		},
	}
	root.SetOut(out)

	get := func() *App { return app }
	root.AddCommand(
		newLoginCmd(get),
		newSignupCmd(get),
		newLogoutCmd(get),
		newWhoamiCmd(get),
		newDashboardCmd(get),
		newProfileCmd(get),
		newBookmarksCmd(get),
		newBookmarkCmd(get),
		newStatusCmd(get),
	)
	return root
}
