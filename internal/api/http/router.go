package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/hertz-contrib/jwt"

	"tenant-rag/internal/api/http/middleware"
	"tenant-rag/pkg/log"
)

// RouterDeps 路由装配依赖
type RouterDeps struct {
	Handler    *Handler
	Middleware *middleware.Middleware
	Tenants    middleware.TenantResolver
	Admitter   middleware.MessageAdmitter
	AdminJWT   *jwt.HertzJWTMiddleware // nil 时不注册 /admin 路由
	Logger     *log.Logger
}

// Router HTTP 路由器
type Router struct {
	deps RouterDeps
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(deps RouterDeps) *Router {
	if deps.Logger == nil {
		deps.Logger = log.Nop()
	}
	return &Router{deps: deps}
}

// Build 创建 Hertz 实例并注册路由（不启动）；opts 可附加 tracer 等
func (r *Router) Build(addr string, opts ...hertzconfig.Option) *server.Hertz {
	opts = append([]hertzconfig.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(opts...)
	r.Register(h)
	return h
}

// Register 在已有 Hertz 实例上注册全部路由
func (r *Router) Register(h *server.Hertz) {
	hd := r.deps.Handler
	mw := r.deps.Middleware
	logger := r.deps.Logger

	h.Use(middleware.AccessLog(logger), mw.CORS())

	v1 := h.Group("/api/v1")
	v1.GET("/health", hd.HealthCheck)
	v1.GET("/metrics", hd.Metrics)

	tenant := v1.Group("", middleware.TenantAuth(r.deps.Tenants, logger), mw.RateLimit())
	{
		kb := tenant.Group("/kb")
		kb.POST("/documents", hd.UploadDocument)
		kb.GET("/documents", hd.ListDocuments)
		kb.GET("/documents/:id", hd.GetDocument)
		kb.DELETE("/documents/:id", hd.DeleteDocument)

		tenant.POST("/chat/send", middleware.MessageQuota(r.deps.Admitter, hd.analytics, logger), hd.SendMessage)
		tenant.GET("/analytics/usage", hd.Usage)
		tenant.GET("/quota", hd.QuotaUsage)
	}

	if r.deps.AdminJWT != nil {
		v1.POST("/admin/login", r.deps.AdminJWT.LoginHandler)
		admin := v1.Group("/admin", r.deps.AdminJWT.MiddlewareFunc())
		admin.POST("/tenants/:id/quota/reset", hd.ResetQuota)
		admin.DELETE("/tenants/:id/chunks", hd.WipeTenantChunks)
		admin.GET("/refresh_token", r.deps.AdminJWT.RefreshHandler)
	}
}
