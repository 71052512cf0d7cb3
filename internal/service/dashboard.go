package service

import (
	"context"

	"oidc-auth-demo/internal/biz"
	"oidc-auth-demo/internal/ui"
)

// SessionView 提供 header 所需的登录信息（由 auth.Session 实现）
type SessionView interface {
	IsLoading() bool
	IsAuthenticated() bool
	DisplayName() string
}

// ErrorView 读取当前的错误 banner（由 store.ErrorStore 实现）
type ErrorView interface {
	Message() (string, bool)
}

// DashboardService 首页服务：调用 biz 层并转换为终端视图
type DashboardService struct {
	dashboardUsecase *biz.DashboardUsecase
	session          SessionView
	errors           ErrorView
	columns          int
}

// NewDashboardService 创建 DashboardService，columns 为 tile 每行数量
func NewDashboardService(dashboardUsecase *biz.DashboardUsecase, session SessionView, errors ErrorView, columns int) *DashboardService {
	return &DashboardService{
		dashboardUsecase: dashboardUsecase,
		session:          session,
		errors:           errors,
		columns:          columns,
	}
}

// Render 加载首页并渲染
func (s *DashboardService) Render(ctx context.Context) (string, error) {
	d, err := s.dashboardUsecase.Load(ctx)
	if err != nil {
		return "", err
	}
	return s.View(d), nil
}

// Refresh 强制重新请求后渲染
func (s *DashboardService) Refresh(ctx context.Context) (string, error) {
	d, err := s.dashboardUsecase.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return s.View(d), nil
}

// View biz.Dashboard -> 终端视图
func (s *DashboardService) View(d *biz.Dashboard) string {
	header := ui.Header(s.HeaderView())
	tiles := ui.TilesGrid(s.columns,
		ui.PublicTile(d.Health),
		ui.PrivateTile(ui.PrivateView{Authenticated: d.Authenticated, State: d.Private}),
	)
	return ui.Page(s.Banner(), header, tiles)
}

// HeaderView session -> header 视图
func (s *DashboardService) HeaderView() ui.HeaderView {
	v := ui.HeaderView{Loading: s.session.IsLoading()}
	if !v.Loading && s.session.IsAuthenticated() {
		v.Authenticated = true
		v.UserName = s.session.DisplayName()
	}
	return v
}

// Banner 当前错误 banner，没有错误时为空
func (s *DashboardService) Banner() string {
	return ui.ErrorBanner(s.errors.Message())
}
