package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"oidc-auth-demo/internal/api"
	"oidc-auth-demo/internal/auth"
	"oidc-auth-demo/internal/biz"
	"oidc-auth-demo/internal/conf"
	"oidc-auth-demo/internal/data"
	"oidc-auth-demo/internal/fetch"
	"oidc-auth-demo/internal/service"
	"oidc-auth-demo/internal/store"

	"github.com/hashicorp/go-hclog"
)

// storage is what both the fetch cache and the user store sit on.
type storage interface {
	fetch.KeyedCache
	Close() error
}

// App holds the wired dependencies for one command run.
type App struct {
	Config  *conf.Config
	Logger  hclog.Logger
	Errors  *store.ErrorStore
	Storage storage
	API     *api.Client

	authSvc *auth.AuthService
	session *auth.Session
}

// NewApp wires everything that does not need the network. The OIDC
// provider is discovered lazily by Session.
func NewApp(cfg *conf.Config, logOutput io.Writer) (*App, error) {
	logger := newLogger(cfg.Log, logOutput)

	// 手动依赖注入
	// data 层
	st, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	logger.Debug("storage opened", "type", cfg.Storage.Type)

	// store
	errs := store.NewErrorStore()
	errs.AutoDismiss(store.DefaultDismissAfter)

	// api 层
	fetcher := fetch.New(&fetch.Config{Cache: st, ErrorSink: errs, Logger: logger})

	return &App{
		Config:  cfg,
		Logger:  logger,
		Errors:  errs,
		Storage: st,
		API:     api.NewClient(cfg.API.BaseURL, fetcher),
	}, nil
}

func newLogger(cfg conf.Log, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "authdemo",
		Level:      hclog.LevelFromString(cfg.Level),
		JSONFormat: cfg.JSON,
		Output:     output,
	})
}

func openStorage(cfg conf.Storage) (storage, error) {
	if cfg.Type != conf.StorageSQLite {
		return data.NewSessionStorage(), nil
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = data.NewSessionID()
	}
	return data.NewSQLiteStorage(cfg.SQLitePath, sessionID)
}

// Session discovers the provider on first use and loads the stored user.
func (a *App) Session(ctx context.Context) (*auth.Session, error) {
	if a.session != nil {
		return a.session, nil
	}

	// auth 层
	client, err := auth.NewOIDCClient(ctx, &a.Config.OIDC, nil)
	if err != nil {
		return nil, err
	}
	users := auth.NewUserStore(a.Storage, client.Issuer(), client.ClientID(), a.vault())
	a.authSvc = auth.NewAuthService(client, users, a.Logger)
	a.session = auth.NewSession(a.authSvc, a.Logger)
	a.session.Load()
	a.Logger.Debug("OIDC provider discovered", "issuer", client.Issuer())
	return a.session, nil
}

// AuthService is valid after Session succeeded.
func (a *App) AuthService() *auth.AuthService { return a.authSvc }

func (a *App) vault() auth.Vault {
	if !a.Config.OIDC.UseKeyring {
		return nil
	}
	v := auth.NewKeyringVault("")
	if !v.Available() {
		a.Logger.Warn("system keyring unavailable, refresh token stays in session storage")
		return nil
	}
	return v
}

// Dashboard builds the dashboard service over the current session.
func (a *App) Dashboard(session *auth.Session, columns int) (*service.DashboardService, *biz.DashboardUsecase) {
	// biz 层
	uc := biz.NewDashboardUsecase(a.API, session, a.Logger)
	// service 层
	return service.NewDashboardService(uc, session, a.Errors, columns), uc
}

// Close releases the session and storage.
func (a *App) Close() error {
	if a.session != nil {
		a.session.Close()
	}
	return a.Storage.Close()
}
