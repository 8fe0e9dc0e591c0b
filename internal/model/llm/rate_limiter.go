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
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/annie25726/perfume-assistant/pkg/config"
)

// 未配置的 provider 使用的限流默认值
var defaultLimit = config.LLMRateLimitConfig{
	TokensPerMinute:   60000,
	RequestsPerMinute: 600,
	MaxConcurrent:     8,
}

// RateLimiter 按 provider 维度做请求数、token 预算与并发控制
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*providerLimiter
	defaults config.LLMRateLimitConfig
}

type providerLimiter struct {
	requests  *rate.Limiter
	tokens    *rate.Limiter
	semaphore chan struct{}
	cfg       config.LLMRateLimitConfig

	mu          sync.Mutex
	usedMinute  int
	minuteStart time.Time
}

// NewRateLimiter 创建限流器；defaults 为 nil 时使用内置默认值
func NewRateLimiter(configs map[string]config.LLMRateLimitConfig, defaults *config.LLMRateLimitConfig) *RateLimiter {
	d := defaultLimit
	if defaults != nil {
		d = *defaults
	}
	l := &RateLimiter{limiters: make(map[string]*providerLimiter), defaults: d}
	for provider, cfg := range configs {
		l.limiters[provider] = newProviderLimiter(cfg)
	}
	return l
}

func newProviderLimiter(cfg config.LLMRateLimitConfig) *providerLimiter {
	p := &providerLimiter{cfg: cfg, minuteStart: time.Now()}
	if cfg.RequestsPerMinute > 0 {
		// burst 为 2 秒的配额
		burst := int(cfg.RequestsPerMinute / 30)
		if burst < 1 {
			burst = 1
		}
		p.requests = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), burst)
	}
	if cfg.TokensPerMinute > 0 {
		burst := cfg.TokensPerMinute / 30
		if burst < 1 {
			burst = 1
		}
		p.tokens = rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60), burst)
	}
	if cfg.MaxConcurrent > 0 {
		p.semaphore = make(chan struct{}, cfg.MaxConcurrent)
	}
	return p
}

func (l *RateLimiter) get(provider string) *providerLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.limiters[provider]
	if !ok {
		p = newProviderLimiter(l.defaults)
		l.limiters[provider] = p
	}
	return p
}

// Wait 阻塞直到允许执行；成功后必须调用 Release
func (l *RateLimiter) Wait(ctx context.Context, provider string, estimatedTokens int) error {
	p := l.get(provider)

	if p.requests != nil {
		if err := p.requests.Wait(ctx); err != nil {
			return fmt.Errorf("request rate limit wait failed: %w", err)
		}
	}

	if p.tokens != nil && estimatedTokens > 0 {
		// WaitN 的 n 超过 burst 会直接报错
		n := estimatedTokens
		if b := p.tokens.Burst(); n > b {
			n = b
		}
		if err := p.tokens.WaitN(ctx, n); err != nil {
			return fmt.Errorf("token budget wait failed: %w", err)
		}
	}

	if p.semaphore != nil {
		select {
		case p.semaphore <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.record(estimatedTokens)
	return nil
}

// Release 释放并发 slot
func (l *RateLimiter) Release(provider string) {
	p := l.get(provider)
	if p.semaphore == nil {
		return
	}
	select {
	case <-p.semaphore:
	default:
	}
}

func (p *providerLimiter) record(tokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if now.Sub(p.minuteStart) > time.Minute {
		p.usedMinute = tokens
		p.minuteStart = now
		return
	}
	p.usedMinute += tokens
}

// Stats 当前分钟的用量与并发占用
func (l *RateLimiter) Stats(provider string) map[string]interface{} {
	p := l.get(provider)
	p.mu.Lock()
	used := p.usedMinute
	p.mu.Unlock()

	stats := map[string]interface{}{
		"requests_per_minute": p.cfg.RequestsPerMinute,
		"tokens_per_minute":   p.cfg.TokensPerMinute,
		"tokens_used_minute":  used,
		"max_concurrent":      p.cfg.MaxConcurrent,
	}
	if p.semaphore != nil {
		stats["current_concurrent"] = len(p.semaphore)
	}
	return stats
}
