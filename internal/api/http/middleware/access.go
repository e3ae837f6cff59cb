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
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"tenant-rag/pkg/log"
)

// AccessLog 请求结束后记录一条结构化访问日志
func AccessLog(logger *log.Logger) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)

		method := string(c.Method())
		path := string(c.Path())
		status := c.Response.StatusCode()
		resourceType, resourceID := extractResource(path)
		attrs := []any{
			"method", method,
			"path", path,
			"status", status,
			"action", determineAction(method, path),
			"resource_type", resourceType,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if resourceID != "" {
			attrs = append(attrs, "resource_id", resourceID)
		}
		if v, ok := c.Get(TenantKey); ok {
			if t := tenantOf(v); t != nil {
				attrs = append(attrs, "tenant_id", t.ID)
			}
		}
		switch {
		case status >= 500:
			logger.Error("request", attrs...)
		case status >= 400:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

// determineAction 根据 HTTP 方法和路径确定操作类型
func determineAction(method, path string) string {
	switch {
	case strings.HasSuffix(path, "/chat/send"):
		return "chat"
	case strings.Contains(path, "/kb/documents"):
		switch method {
		case "POST":
			return "upload_document"
		case "DELETE":
			return "delete_document"
		default:
			return "view_document"
		}
	case strings.Contains(path, "/quota/reset"):
		return "reset_quota"
	case strings.Contains(path, "/admin/tenants/") && method == "DELETE":
		return "wipe_tenant_chunks"
	case strings.HasSuffix(path, "/admin/login"):
		return "admin_login"
	case strings.Contains(path, "/analytics"), strings.HasSuffix(path, "/quota"):
		return "view_usage"
	}
	return "unknown"
}

// extractResource 从路径提取资源类型和 ID
func extractResource(path string) (resourceType string, resourceID string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		switch {
		case parts[i] == "documents":
			return "document", parts[i+1]
		case parts[i] == "tenants":
			return "tenant", parts[i+1]
		}
	}
	if len(parts) > 0 {
		return parts[len(parts)-1], ""
	}
	return "unknown", ""
}
