// Package cli wires the authdemo commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"oidc-auth-demo/internal/conf"

	"github.com/spf13/cobra"
)

type appKey struct{}

type globalFlags struct {
	config    string
	apiURL    string
	storage   string
	sessionID string
	logLevel  string
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:           "authdemo",
		Short:         "OIDC Auth Demo",
		Long:          "authdemo signs in against an OIDC provider and calls a public and a protected backend endpoint.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipsSetup(cmd) {
				return nil
			}
			cfg, err := conf.Load(flags.config)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			flags.apply(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			app, err := NewApp(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, app))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.config, "conf", "c", "", "config path, eg: -c configs/config.yaml")
	cmd.PersistentFlags().StringVar(&flags.apiURL, "api", "", "backend base URL")
	cmd.PersistentFlags().StringVar(&flags.storage, "storage", "", "session storage: memory or sqlite")
	cmd.PersistentFlags().StringVar(&flags.sessionID, "session-id", "", "sqlite session to resume")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newWhoamiCmd(),
		newRenewCmd(),
		newHealthCmd(),
		newInfoCmd(),
		newDashboardCmd(),
		newErrorDemoCmd(),
	)
	return cmd
}

// skipsSetup is true for help and shell completion, which must work
// without a valid config.
func skipsSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}

// apply lets flags win over file and env.
func (f *globalFlags) apply(cfg *conf.Config) {
	if f.apiURL != "" {
		cfg.API.BaseURL = f.apiURL
	}
	if f.storage != "" {
		cfg.Storage.Type = f.storage
		if f.storage == conf.StorageSQLite && cfg.Storage.SQLitePath == "" {
			cfg.Storage.SQLitePath = conf.DefaultSQLitePath
		}
	}
	if f.sessionID != "" {
		cfg.Storage.SessionID = f.sessionID
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
}

// withApp hands the wired App to fn and closes it afterwards.
func withApp(fn func(cmd *cobra.Command, app *App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, ok := cmd.Context().Value(appKey{}).(*App)
		if !ok {
			return fmt.Errorf("%s: app not initialized", cmd.Name())
		}
		defer func() {
			if err := app.Close(); err != nil {
				app.Logger.Warn("failed to close app", "error", err)
			}
		}()
		return fn(cmd, app, args)
	}
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
