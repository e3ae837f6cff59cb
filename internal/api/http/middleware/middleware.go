package middleware

import (
	"context"
	"sync"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/time/rate"

	"tenant-rag/pkg/auth"
	"tenant-rag/pkg/config"
	"tenant-rag/pkg/log"
)

// Middleware 中间件管理器
type Middleware struct {
	cfg    config.APIConfig
	logger *log.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewMiddleware 创建中间件管理器
func NewMiddleware(cfg config.APIConfig, logger *log.Logger) *Middleware {
	if logger == nil {
		logger = log.Nop()
	}
	return &Middleware{cfg: cfg, logger: logger, limiters: make(map[string]*rate.Limiter)}
}

// CORS 按 api.cors 配置设置跨域响应头
func (m *Middleware) CORS() app.HandlerFunc {
	allowed := make(map[string]bool, len(m.cfg.CORS.AllowOrigins))
	for _, o := range m.cfg.CORS.AllowOrigins {
		allowed[o] = true
	}
	return func(ctx context.Context, c *app.RequestContext) {
		if !m.cfg.CORS.Enable {
			c.Next(ctx)
			return
		}
		origin := string(c.GetHeader("Origin"))
		if allowed["*"] || allowed[origin] {
			if allowed["*"] {
				origin = "*"
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-API-Key")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if string(c.Method()) == consts.MethodOptions {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}
		c.Next(ctx)
	}
}

// RateLimit 按租户限流（未认证请求按客户端 IP），令牌桶参数取 api.middleware
func (m *Middleware) RateLimit() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if !m.cfg.Middleware.RateLimit {
			c.Next(ctx)
			return
		}
		key := auth.GetTenantID(ctx)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !m.limiter(key).Allow() {
			c.AbortWithStatusJSON(consts.StatusTooManyRequests, utils.H{
				"error":   "Too many requests",
				"message": "rate limit exceeded, retry later",
			})
			return
		}
		c.Next(ctx)
	}
}

func (m *Middleware) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[key]
	if !ok {
		rps := m.cfg.Middleware.RateLimitRPS
		if rps <= 0 {
			rps = 10
		}
		burst := m.cfg.Middleware.RateLimitBurst
		if burst <= 0 {
			burst = int(rps) * 2
		}
		l = rate.NewLimiter(rate.Limit(rps), burst)
		m.limiters[key] = l
	}
	return l
}
