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
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"tenant-rag/internal/analytics"
	"tenant-rag/internal/quota"
	"tenant-rag/pkg/auth"
	apperrors "tenant-rag/pkg/errors"
	"tenant-rag/pkg/log"
)

// QuotaKey RequestContext 中保存消息配额判定结果的键
const QuotaKey = "quota"

// MessageAdmitter 消息配额准入
type MessageAdmitter interface {
	AdmitMessage(ctx context.Context, tenant *auth.Tenant) (*quota.Decision, error)
}

// MessageQuota 超出消息配额时返回 429 并记录 quota_exceeded
func MessageQuota(admitter MessageAdmitter, sink analytics.Sink, logger *log.Logger) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		t := TenantFrom(ctx, c)
		if t == nil {
			c.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "Unauthorized"})
			return
		}

		d, err := admitter.AdmitMessage(ctx, t)
		if err != nil {
			if apperrors.Is(err, apperrors.KindQuotaExceeded) {
				if sink != nil {
					if logErr := sink.Log(ctx, &analytics.Entry{
						TenantID:     t.ID,
						Endpoint:     string(c.Path()),
						Outcome:      analytics.OutcomeQuotaExceeded,
						ErrorMessage: err.Error(),
						CreatedAt:    time.Now(),
					}); logErr != nil {
						logger.Warn("analytics log failed", "tenant_id", t.ID, "error", logErr)
					}
				}
				body := utils.H{"error": "Quota exceeded", "message": apperrors.MessageOf(err)}
				if d != nil {
					body["quota"] = utils.H{
						"messages_used":      d.Used,
						"messages_limit":     d.Limit,
						"messages_remaining": 0,
					}
				}
				c.AbortWithStatusJSON(consts.StatusTooManyRequests, body)
				return
			}
			logger.Error("message quota check failed", "tenant_id", t.ID, "error", err)
			c.AbortWithStatusJSON(consts.StatusInternalServerError, utils.H{
				"error":   "Quota check failed",
				"message": "An error occurred while checking your message quota",
			})
			return
		}

		c.Set(QuotaKey, d)
		c.Next(ctx)
	}
}
