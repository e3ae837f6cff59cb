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
	"errors"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"tenant-rag/pkg/auth"
	apperrors "tenant-rag/pkg/errors"
	"tenant-rag/pkg/log"
)

// APIKeyHeader 租户 API Key 请求头
const APIKeyHeader = "X-API-Key"

// TenantKey RequestContext 中保存已认证租户的键
const TenantKey = "tenant"

// TenantResolver 按 API Key 解析租户
type TenantResolver interface {
	ResolveAPIKey(ctx context.Context, apiKey string) (*auth.Tenant, error)
}

// TenantAuth 校验 X-API-Key；试用到期或账户停用返回 403
func TenantAuth(resolver TenantResolver, logger *log.Logger) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		apiKey := string(c.GetHeader(APIKeyHeader))
		if apiKey == "" {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{
				"error":   "API key required",
				"message": "Please provide a valid API key in the X-API-Key header",
			})
			return
		}

		t, err := resolver.ResolveAPIKey(ctx, apiKey)
		if err != nil {
			if apperrors.Is(err, apperrors.KindNotFound) {
				c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{
					"error":   "Invalid API key",
					"message": "The provided API key is not valid or has been deactivated",
				})
				return
			}
			logger.Error("api key authentication failed", "error", err)
			c.AbortWithStatusJSON(consts.StatusInternalServerError, utils.H{"error": "Authentication failed"})
			return
		}

		if err := t.CheckActive(time.Now()); err != nil {
			msg := "Your account has been suspended. Please contact support."
			title := "Account suspended"
			if errors.Is(err, auth.ErrTrialExpired) {
				title = "Trial expired"
				msg = "Your free trial has expired. Please upgrade to premium to continue."
			}
			c.AbortWithStatusJSON(consts.StatusForbidden, utils.H{"error": title, "message": msg})
			return
		}

		c.Set(TenantKey, t)
		ctx = auth.WithRole(auth.WithTenant(ctx, t), auth.RoleTenant)
		c.Next(ctx)
	}
}

// TenantFrom 取已认证租户：优先 context，其次 RequestContext
func TenantFrom(ctx context.Context, c *app.RequestContext) *auth.Tenant {
	if t := auth.GetTenant(ctx); t != nil {
		return t
	}
	if v, ok := c.Get(TenantKey); ok {
		return tenantOf(v)
	}
	return nil
}

func tenantOf(v any) *auth.Tenant {
	t, _ := v.(*auth.Tenant)
	return t
}
