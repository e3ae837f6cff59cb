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

package http

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	apperrors "tenant-rag/pkg/errors"
)

// StatusOf 错误类别到 HTTP 状态码
func StatusOf(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return consts.StatusBadRequest
	case apperrors.KindQuotaExceeded:
		return consts.StatusTooManyRequests
	case apperrors.KindNotFound:
		return consts.StatusNotFound
	case apperrors.KindTransientIO, apperrors.KindIndexWrite:
		return consts.StatusBadGateway
	default:
		return consts.StatusInternalServerError
	}
}

// writeError 5xx 不向调用方暴露内部错误细节
func (h *Handler) writeError(c *app.RequestContext, err error) {
	status := StatusOf(err)
	if status >= 500 {
		h.logger.Error("request failed", "path", string(c.Path()), "status", status, "error", err)
		title := "Internal server error"
		if status == consts.StatusBadGateway {
			title = "Upstream service unavailable"
		}
		c.JSON(status, utils.H{"error": title})
		return
	}
	c.JSON(status, utils.H{"error": apperrors.MessageOf(err)})
}
