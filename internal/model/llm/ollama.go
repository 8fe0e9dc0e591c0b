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

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
)

// OllamaClient 本地 Ollama /api/chat 客户端
type OllamaClient struct {
	model   string
	baseURL string
	client  *resty.Client
}

// NewOllamaClient 创建 Ollama 客户端
func NewOllamaClient(cfg Config) *OllamaClient {
	model := cfg.Model
	if model == "" {
		model = "qwen2.5:7b"
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaClient{
		model:   model,
		baseURL: baseURL,
		client:  resty.New().SetTimeout(timeout),
	}
}

// ChatWithContext 非流式聊天，读取 message.content
func (c *OllamaClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	body := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   false,
	}
	if options.Temperature > 0 {
		body["options"] = map[string]any{"temperature": options.Temperature}
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.baseURL + "/api/chat")
	if err != nil {
		return "", fmt.Errorf("调用 Ollama 失败: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return "", perrors.Upstream(ProviderOllama, response.StatusCode(), response.String())
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return "", fmt.Errorf("解析 Ollama 响应失败: %w", err)
	}
	return result.Message.Content, nil
}

// Model 返回模型名称
func (c *OllamaClient) Model() string { return c.model }

// Provider 返回提供商名称
func (c *OllamaClient) Provider() string { return ProviderOllama }
