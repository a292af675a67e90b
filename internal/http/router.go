package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）。
// Handler 内部自己做子路径分发，ServeMux 只负责前缀挂载。
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 promhttp 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAuthRoutes 认证面（免租户）：注册、登录
func (r *Router) RegisterAuthRoutes(h *AuthHandler) {
	r.Handle("/auth/api/v1/signup", h.ServeHTTP)
	r.Handle("/auth/api/v1/login", h.ServeHTTP)
}

// RegisterInvitationRoutes 邀请兑换面（免租户，凭 token）
func (r *Router) RegisterInvitationRoutes(h *InvitationHandler) {
	r.Handle("/invite/api/v1/validate", h.ServeHTTP)
	r.Handle("/invite/api/v1/redeem", h.ServeHTTP)
}

// RegisterTenantAdminRoutes 租户管理面：资料、设置、域名、成员、导出
func (r *Router) RegisterTenantAdminRoutes(h *TenantAdminHandler) {
	r.Handle("/admin/api/v1/tenant", h.ServeHTTP)
	r.Handle("/admin/api/v1/tenant/", h.ServeHTTP)
}

// RegisterInvitationsAdminRoutes 邀请管理面：创建、列表、撤销
func (r *Router) RegisterInvitationsAdminRoutes(h *InvitationsAdminHandler) {
	r.Handle("/admin/api/v1/invitations", h.ServeHTTP)
	r.Handle("/admin/api/v1/invitations/", h.ServeHTTP)
}

// RegisterInvoiceRoutes 业务数据面：发票
func (r *Router) RegisterInvoiceRoutes(h *InvoiceHandler) {
	r.Handle("/data/api/v1/invoices", h.ServeHTTP)
	r.Handle("/data/api/v1/invoices/", h.ServeHTTP)
}

// RegisterHealthRoutes 存活/就绪探针
func (r *Router) RegisterHealthRoutes(h *HealthHandler) {
	r.Handle("/health", h.Health)
	r.Handle("/health/ready", h.Ready)
}

// RegisterMetricsRoute Prometheus 抓取端点
func (r *Router) RegisterMetricsRoute() {
	r.HandleHandler("/metrics", promhttp.Handler())
}
