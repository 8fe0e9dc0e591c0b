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

package model

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annie25726/perfume-assistant/internal/model/llm"
	"github.com/annie25726/perfume-assistant/internal/quality"
	"github.com/annie25726/perfume-assistant/pkg/config"
	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
	"github.com/annie25726/perfume-assistant/pkg/log"
)

// 层级名称
const (
	TierPrimary    = "primary"
	TierEscalation = "escalation"
)

// Registry 按层级名称保存模型后端，便于运行时替换
type Registry struct {
	mu       sync.RWMutex
	backends map[string]*llm.Backend
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]*llm.Backend)}
}

// Register 注册层级后端
func (r *Registry) Register(tier string, b *llm.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[tier] = b
}

// Get 获取层级后端
func (r *Registry) Get(tier string) (*llm.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[tier]
	if !ok {
		return nil, fmt.Errorf("model tier not registered: %s: %w", tier, perrors.ErrNotFound)
	}
	return b, nil
}

// Primary 一级模型，未配置时为 nil
func (r *Registry) Primary() *llm.Backend {
	b, _ := r.Get(TierPrimary)
	return b
}

// Escalation 升级模型，未配置时为 nil
func (r *Registry) Escalation() *llm.Backend {
	b, _ := r.Get(TierEscalation)
	return b
}

// FromConfig 按配置构建两个层级；缺少凭证的层级跳过并记录警告，其余错误返回
func FromConfig(cfg config.ModelConfig, q config.QualityConfig, limiter *llm.RateLimiter, logger *log.Logger) (*Registry, error) {
	logger = logger.Component("model")
	r := NewRegistry()

	gate := quality.Gate{EnglishRatioThreshold: q.EnglishRatioThreshold, MinLength: q.MinLength}
	if gate.EnglishRatioThreshold <= 0 {
		gate = quality.DefaultGate
	}

	primary, err := newClient(cfg.Primary, 30*time.Second, limiter)
	switch {
	case err == nil:
		r.Register(TierPrimary, llm.NewPrimaryBackend(primary,
			quality.Options{KeepChinese: q.KeepChineseOnly}, gate, generateOptions(cfg.Primary, 0.3, 512)))
	case errors.Is(err, perrors.ErrMissingCredential):
		logger.Warn("一级模型未配置，跳过", "provider", cfg.Primary.Provider, "error", err)
	default:
		return nil, err
	}

	escalation, err := newClient(cfg.Escalation, 60*time.Second, limiter)
	switch {
	case err == nil:
		r.Register(TierEscalation, llm.NewEscalationBackend(escalation, generateOptions(cfg.Escalation, 0.7, 1024)))
	case errors.Is(err, perrors.ErrMissingCredential):
		logger.Warn("升级模型未配置，一级模型输出即为最终回答", "provider", cfg.Escalation.Provider, "error", err)
	default:
		return nil, err
	}
	return r, nil
}

func newClient(p config.ProviderConfig, timeout time.Duration, limiter *llm.RateLimiter) (llm.Client, error) {
	c, err := llm.NewClient(llm.Config{
		Provider: p.Provider,
		Model:    p.Model,
		APIKey:   p.APIKey,
		BaseURL:  p.BaseURL,
		Timeout:  p.TimeoutDuration(timeout),
	})
	if err != nil {
		return nil, err
	}
	if limiter == nil {
		return c, nil
	}
	return llm.NewRateLimitedClient(c, limiter), nil
}

func generateOptions(p config.ProviderConfig, temperature float64, maxTokens int) llm.GenerateOptions {
	opts := llm.GenerateOptions{Temperature: p.Temperature, MaxTokens: p.MaxTokens}
	if opts.Temperature == 0 {
		opts.Temperature = temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = maxTokens
	}
	return opts
}
