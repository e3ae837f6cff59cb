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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("RAG_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

// client 租户 API 的 resty 封装；apiKey 对应 X-API-Key
type client struct {
	r *resty.Client
}

func newClient(baseURL, apiKey string) *client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second)
	if apiKey != "" {
		r.SetHeader("X-API-Key", apiKey)
	}
	return &client{r: r}
}

// apiError 非 2xx 响应
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

func check(resp *resty.Response, err error, ok ...int) error {
	if err != nil {
		return err
	}
	for _, code := range ok {
		if resp.StatusCode() == code {
			return nil
		}
	}
	return &apiError{Status: resp.StatusCode(), Body: resp.String()}
}

func (c *client) health() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := c.r.R().SetResult(&out).Get("/api/v1/health")
	return out, check(resp, err, http.StatusOK)
}

func (c *client) upload(path string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := c.r.R().
		SetFile("file", path).
		SetResult(&out).
		Post("/api/v1/kb/documents")
	if err := check(resp, err, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("上传 %s 失败: %w", filepath.Base(path), err)
	}
	return out, nil
}

func (c *client) listDocuments() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := c.r.R().SetResult(&out).Get("/api/v1/kb/documents")
	return out, check(resp, err, http.StatusOK)
}

func (c *client) getDocument(id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := c.r.R().SetResult(&out).Get("/api/v1/kb/documents/" + id)
	return out, check(resp, err, http.StatusOK)
}

func (c *client) deleteDocument(id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := c.r.R().SetResult(&out).Delete("/api/v1/kb/documents/" + id)
	return out, check(resp, err, http.StatusOK)
}

// chatReply /chat/send 响应中 CLI 关心的字段
type chatReply struct {
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
	TokensUsed int     `json:"tokens_used"`
	Quota      *struct {
		MessagesUsed      int64 `json:"messages_used"`
		MessagesLimit     int64 `json:"messages_limit"`
		MessagesRemaining int64 `json:"messages_remaining"`
	} `json:"quota,omitempty"`
}

func (c *client) chat(message string, contextLimit int) (*chatReply, error) {
	body := map[string]interface{}{"message": message}
	if contextLimit > 0 {
		body["context_limit"] = contextLimit
	}
	var out chatReply
	resp, err := c.r.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&out).
		Post("/api/v1/chat/send")
	if err := check(resp, err, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) usage(days int) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := c.r.R().
		SetQueryParam("days", fmt.Sprint(days)).
		SetResult(&out).
		Get("/api/v1/analytics/usage")
	return out, check(resp, err, http.StatusOK)
}

func (c *client) quota() (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := c.r.R().SetResult(&out).Get("/api/v1/quota")
	return out, check(resp, err, http.StatusOK)
}

// adminLogin 换取管理员 JWT，之后的请求带 Bearer token
func (c *client) adminLogin(user, password string) error {
	var out struct {
		Token string `json:"token"`
	}
	resp, err := c.r.R().
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"username": user, "password": password}).
		SetResult(&out).
		Post("/api/v1/admin/login")
	if err := check(resp, err, http.StatusOK); err != nil {
		return fmt.Errorf("管理员登录失败: %w", err)
	}
	c.r.SetAuthToken(out.Token)
	return nil
}

func (c *client) resetQuota(tenantID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := c.r.R().SetResult(&out).Post("/api/v1/admin/tenants/" + tenantID + "/quota/reset")
	return out, check(resp, err, http.StatusOK)
}

func (c *client) wipeChunks(tenantID string) (map[string]interface{}, error) {
	var out map[string]interface{}
	resp, err := c.r.R().SetResult(&out).Delete("/api/v1/admin/tenants/" + tenantID + "/chunks")
	return out, check(resp, err, http.StatusOK)
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
