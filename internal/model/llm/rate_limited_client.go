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
	"time"

	"github.com/annie25726/perfume-assistant/pkg/metrics"
)

// RateLimitedClient 在真实调用前后执行限流的 Client 包装
type RateLimitedClient struct {
	inner   Client
	limiter *RateLimiter
}

// NewRateLimitedClient limiter 为 nil 时退化为直接调用
func NewRateLimitedClient(inner Client, limiter *RateLimiter) *RateLimitedClient {
	return &RateLimitedClient{inner: inner, limiter: limiter}
}

// ChatWithContext 实现 Client
func (c *RateLimitedClient) ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error) {
	if c.limiter != nil {
		provider := c.inner.Provider()
		start := time.Now()
		if err := c.limiter.Wait(ctx, provider, estimateTokens(messages, options.MaxTokens)); err != nil {
			return "", err
		}
		if waited := time.Since(start); waited > 100*time.Millisecond {
			metrics.RateLimitWaitSeconds.WithLabelValues("llm", provider).Observe(waited.Seconds())
		}
		defer c.limiter.Release(provider)
	}
	return c.inner.ChatWithContext(ctx, messages, options)
}

// Model 返回底层模型名称
func (c *RateLimitedClient) Model() string { return c.inner.Model() }

// Provider 返回底层提供商名称
func (c *RateLimitedClient) Provider() string { return c.inner.Provider() }

// estimateTokens 粗略估算：CJK 字符按 1 token，其余按 4 字节 1 token
func estimateTokens(messages []Message, maxTokens int) int {
	estimated := maxTokens
	for _, m := range messages {
		ascii := 0
		for _, r := range m.Content {
			if r >= 0x2E80 {
				estimated++
			} else {
				ascii++
			}
		}
		estimated += ascii / 4
	}
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}
