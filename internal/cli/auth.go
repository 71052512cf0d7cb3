package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oidc-auth-demo/internal/auth"
	"oidc-auth-demo/internal/ui"

	"github.com/spf13/cobra"
)

var errRenewFailed = errors.New("token renewal failed, sign in again")

func newLoginCmd() *cobra.Command {
	var noBrowser bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		RunE: withApp(func(cmd *cobra.Command, app *App, _ []string) error {
			ctx := cmd.Context()
			session, err := app.Session(ctx)
			if err != nil {
				return err
			}

			cb, err := auth.NewCallbackServer(app.AuthService(), app.Config.OIDC.RedirectURL, app.Logger)
			if err != nil {
				return err
			}
			if _, err := cb.Listen(ctx); err != nil {
				return err
			}
			defer cb.Close()

			authURL, err := session.Login(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", authURL)
			if !noBrowser {
				if err := auth.OpenBrowser(authURL); err != nil {
					app.Logger.Warn("could not open browser", "error", err)
				}
			}

			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			user, err := cb.Wait(waitCtx)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintln(out, ui.Header(ui.HeaderView{Authenticated: true, UserName: user.Profile.DisplayName()}))
			return nil
		}),
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the URL without opening a browser")
	cmd.Flags().DurationVar(&timeout, "timeout", auth.DefaultCallbackTimeout, "how long to wait for the browser")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out and end the provider session",
		RunE: withApp(func(cmd *cobra.Command, app *App, _ []string) error {
			session, err := app.Session(cmd.Context())
			if err != nil {
				return err
			}
			endSession, err := session.Logout()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Header(ui.HeaderView{}))
			if endSession == "" {
				return nil
			}
			fmt.Fprintf(out, "\nEnd the provider session at:\n\n  %s\n", endSession)
			if !noBrowser {
				if err := auth.OpenBrowser(endSession); err != nil {
					app.Logger.Warn("could not open browser", "error", err)
				}
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the end-session URL without opening a browser")
	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: withApp(func(cmd *cobra.Command, app *App, _ []string) error {
			session, err := app.Session(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Header(ui.HeaderView{
				Authenticated: session.IsAuthenticated(),
				UserName:      session.DisplayName(),
			}))
			user := session.User()
			if user == nil {
				return nil
			}
			fmt.Fprintf(out, "\nsub:     %s\nemail:   %s\n", user.Profile.Sub, user.Profile.Email)
			if !user.ExpiresAt.IsZero() {
				fmt.Fprintf(out, "expires: %s (%s)\n", user.ExpiresAt.Format(time.RFC3339), user.ExpiresIn().Round(time.Second))
			}
			return nil
		}),
	}
}

func newRenewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renew",
		Short: "Renew the access token with the refresh token",
		RunE: withApp(func(cmd *cobra.Command, app *App, _ []string) error {
			session, err := app.Session(cmd.Context())
			if err != nil {
				return err
			}
			if session.User() == nil {
				return auth.ErrNotAuthenticated
			}
			user := session.RenewToken(cmd.Context())
			if user == nil {
				return errRenewFailed
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token renewed, expires in %s\n", user.ExpiresIn().Round(time.Second))
			return nil
		}),
	}
}
