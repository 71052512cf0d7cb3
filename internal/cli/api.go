package cli

import (
	"fmt"

	"oidc-auth-demo/internal/ui"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Call the public health endpoint",
		RunE: withApp(func(cmd *cobra.Command, app *App, _ []string) error {
			st, _ := app.API.Health(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), withBanner(app, ui.PublicTile(st)))
			return nil
		}),
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Call the protected endpoint with the signed-in user's token",
		RunE: withApp(func(cmd *cobra.Command, app *App, _ []string) error {
			session, err := app.Session(cmd.Context())
			if err != nil {
				return err
			}
			view := ui.PrivateView{Authenticated: session.IsAuthenticated()}
			if view.Authenticated {
				view.State, _ = app.API.PrivateInfo(cmd.Context(), session.AccessToken())
			}
			fmt.Fprintln(cmd.OutOrStdout(), withBanner(app, ui.PrivateTile(view)))
			return nil
		}),
	}
}

func withBanner(app *App, body string) string {
	banner := ui.ErrorBanner(app.Errors.Message())
	if banner == "" {
		return body
	}
	return banner + "\n" + body
}
