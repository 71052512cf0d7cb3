package cli

import (
	"fmt"
	"sync"
	"time"

	"oidc-auth-demo/internal/store"
	"oidc-auth-demo/internal/ui"

	"github.com/spf13/cobra"
)

func newErrorDemoCmd() *cobra.Command {
	var dismissAfter time.Duration

	cmd := &cobra.Command{
		Use:   "error-demo",
		Short: "Show the error banner until it dismisses itself",
		RunE: withApp(func(cmd *cobra.Command, app *App, _ []string) error {
			app.Errors.AutoDismiss(dismissAfter)
			dismissed := make(chan struct{})
			var once sync.Once
			unsubscribe := app.Errors.Subscribe(func(_ string, ok bool) {
				if !ok {
					once.Do(func() { close(dismissed) })
				}
			})
			defer unsubscribe()

			demo := ui.NewErrorDemo(app.Errors)
			demo.Trigger()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, withBanner(app, demo.Render()))

			select {
			case <-dismissed:
				fmt.Fprintln(out, "Error dismissed")
			case <-cmd.Context().Done():
				demo.Clear()
			}
			return nil
		}),
	}
	cmd.Flags().DurationVar(&dismissAfter, "dismiss-after", store.DefaultDismissAfter, "auto-dismiss delay")
	return cmd
}
