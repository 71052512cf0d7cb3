package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"oidc-auth-demo/internal/auth"
	"oidc-auth-demo/internal/biz"

	"github.com/spf13/cobra"
)

const clearScreen = "\033[H\033[2J"

func newDashboardCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
		columns  int
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the header and both tiles",
		RunE: withApp(func(cmd *cobra.Command, app *App, _ []string) error {
			ctx := cmd.Context()
			session, err := app.Session(ctx)
			if err != nil {
				return err
			}
			svc, uc := app.Dashboard(session, columns)
			defer uc.Close()

			out := cmd.OutOrStdout()
			view, err := svc.Render(ctx)
			if err != nil {
				return err
			}
			if !watch {
				fmt.Fprintln(out, view)
				return nil
			}

			redraw := make(chan struct{}, 1)
			poke := func() {
				select {
				case redraw <- struct{}{}:
				default:
				}
			}
			defer uc.Subscribe(func(*biz.Dashboard) { poke() })()
			defer app.Errors.Subscribe(func(string, bool) { poke() })()
			defer app.AuthService().Subscribe(func(auth.Event) { poke() })()

			go func() {
				err := app.AuthService().AutoRenew(ctx, auth.DefaultRenewBefore)
				if err != nil && !errors.Is(err, auth.ErrNoRefreshToken) && ctx.Err() == nil {
					app.Logger.Warn("automatic renew stopped", "error", err)
				}
			}()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			draw(out, svc.View(uc.Snapshot()))
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if _, err := uc.Refresh(ctx); err != nil && ctx.Err() == nil {
						return err
					}
				case <-redraw:
					// 登录状态变化后重新启动 query
					if err := uc.Start(ctx); err != nil {
						return err
					}
					draw(out, svc.View(uc.Snapshot()))
				}
			}
		}),
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep refreshing until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "refresh interval with --watch")
	cmd.Flags().IntVar(&columns, "columns", 2, "tiles per row")
	return cmd
}

func draw(out io.Writer, view string) {
	fmt.Fprint(out, clearScreen)
	fmt.Fprintln(out, view)
}
