// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/hertz-contrib/jwt"

	"tenant-rag/pkg/auth"
	"tenant-rag/pkg/config"
)

const adminIdentityKey = "admin"

// AdminUser 已登录管理员
type AdminUser struct {
	Username string `json:"username"`
}

type adminLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// NewAdminJWT 创建管理员 JWT 中间件：LoginHandler 用于 /admin/login，MiddlewareFunc 保护 /admin 路由
func NewAdminJWT(cfg config.MiddlewareConfig) (*jwt.HertzJWTMiddleware, error) {
	if cfg.JWTKey == "" {
		return nil, fmt.Errorf("api.middleware.jwt_key 未配置")
	}
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:         "tenant-rag admin",
		Key:           []byte(cfg.JWTKey),
		Timeout:       config.ParseDuration(cfg.JWTTimeout, time.Hour),
		MaxRefresh:    config.ParseDuration(cfg.JWTMaxRefresh, time.Hour),
		IdentityKey:   adminIdentityKey,
		TokenLookup:   "header: Authorization",
		TokenHeadName: "Bearer",
		TimeFunc:      time.Now,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if u, ok := data.(*AdminUser); ok {
				return jwt.MapClaims{adminIdentityKey: u.Username, "role": string(auth.RoleAdmin)}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			name, _ := claims[adminIdentityKey].(string)
			return &AdminUser{Username: name}
		},
		Authenticator: func(ctx context.Context, c *app.RequestContext) (interface{}, error) {
			var req adminLogin
			if err := c.BindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
				return nil, jwt.ErrMissingLoginValues
			}
			if cfg.AdminUser == "" ||
				subtle.ConstantTimeCompare([]byte(req.Username), []byte(cfg.AdminUser)) != 1 ||
				subtle.ConstantTimeCompare([]byte(req.Password), []byte(cfg.AdminPassword)) != 1 {
				return nil, jwt.ErrFailedAuthentication
			}
			return &AdminUser{Username: req.Username}, nil
		},
		Authorizator: func(data interface{}, ctx context.Context, c *app.RequestContext) bool {
			u, ok := data.(*AdminUser)
			return ok && u.Username != ""
		},
		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, utils.H{"error": "Unauthorized", "message": message})
		},
	})
}
