package biz

import (
	"context"
	"errors"
	"sync"

	"oidc-auth-demo/internal/api"
	"oidc-auth-demo/internal/fetch"

	"github.com/hashicorp/go-hclog"
)

// ErrDashboardClosed is returned by Load after Close.
var ErrDashboardClosed = errors.New("dashboard closed")

// Authenticator 当前登录状态（由 auth.Session 实现）
type Authenticator interface {
	IsAuthenticated() bool
	AccessToken() string
}

// Dashboard 一次加载后的页面数据
type Dashboard struct {
	Authenticated bool
	Health        fetch.State[api.HealthResponse]
	Private       fetch.State[api.PrivateInfoResponse]
}

// DashboardUsecase 首页业务逻辑：公共 tile 总是请求，私有 tile 仅在登录后请求
type DashboardUsecase struct {
	client *api.Client
	auth   Authenticator
	logger hclog.Logger

	health  *fetch.Query[api.HealthResponse]
	private *fetch.Query[api.PrivateInfoResponse]

	mu     sync.Mutex
	closed bool
}

// NewDashboardUsecase 创建 DashboardUsecase
func NewDashboardUsecase(client *api.Client, auth Authenticator, logger hclog.Logger) *DashboardUsecase {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &DashboardUsecase{
		client:  client,
		auth:    auth,
		logger:  logger.Named("dashboard"),
		health:  fetch.NewQuery[api.HealthResponse](client.Fetcher()),
		private: fetch.NewQuery[api.PrivateInfoResponse](client.Fetcher()),
	}
}

// Start 按当前登录状态启动两个 query，不等待结果。
// 登录状态或 token 变化时会取消旧请求并重新发起。
func (uc *DashboardUsecase) Start(ctx context.Context) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.closed {
		return ErrDashboardClosed
	}

	authenticated := uc.auth.IsAuthenticated()
	token := ""
	if authenticated {
		token = uc.auth.AccessToken()
	}
	uc.health.Run(ctx, uc.client.HealthURL(), api.HealthOptions()...)
	uc.private.Run(ctx, uc.client.PrivateInfoURL(), api.PrivateInfoOptions(token, !authenticated)...)
	return nil
}

// Load 启动并等待两个 tile 都完成
func (uc *DashboardUsecase) Load(ctx context.Context) (*Dashboard, error) {
	if err := uc.Start(ctx); err != nil {
		return nil, err
	}
	return uc.wait(ctx)
}

// Refresh 强制重新请求（即使目标未变化）
func (uc *DashboardUsecase) Refresh(ctx context.Context) (*Dashboard, error) {
	// A stopped query restarts even for an unchanged target.
	uc.health.Close()
	uc.private.Close()
	return uc.Load(ctx)
}

func (uc *DashboardUsecase) wait(ctx context.Context) (*Dashboard, error) {
	health, err := uc.health.Wait(ctx)
	if err != nil {
		return nil, err
	}
	private, err := uc.private.Wait(ctx)
	if err != nil {
		return nil, err
	}
	d := uc.Snapshot()
	d.Health, d.Private = health, private
	uc.logger.Debug("dashboard loaded",
		"authenticated", d.Authenticated,
		"health_stale", health.IsStale,
		"health_error", health.ErrorMessage(),
		"private_error", private.ErrorMessage())
	return d, nil
}

// Snapshot 返回当前状态，不阻塞
func (uc *DashboardUsecase) Snapshot() *Dashboard {
	return &Dashboard{
		Authenticated: uc.auth.IsAuthenticated(),
		Health:        uc.health.State(),
		Private:       uc.private.State(),
	}
}

// Subscribe 任一 tile 状态变化时回调
func (uc *DashboardUsecase) Subscribe(fn func(*Dashboard)) (unsubscribe func()) {
	unsubHealth := uc.health.Subscribe(func(fetch.State[api.HealthResponse]) { fn(uc.Snapshot()) })
	unsubPrivate := uc.private.Subscribe(func(fetch.State[api.PrivateInfoResponse]) { fn(uc.Snapshot()) })
	return func() {
		unsubHealth()
		unsubPrivate()
	}
}

// Close 取消进行中的请求
func (uc *DashboardUsecase) Close() {
	uc.mu.Lock()
	uc.closed = true
	uc.mu.Unlock()
	uc.health.Close()
	uc.private.Close()
}
