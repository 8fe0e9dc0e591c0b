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
	"strings"
	"time"

	"github.com/annie25726/perfume-assistant/internal/quality"
	"github.com/annie25726/perfume-assistant/pkg/metrics"
)

// 一级模型的系统提示词；Strict 用于语言门槛未通过后的重试
const (
	SystemPrompt = "You are an assistant that answers ONLY in Traditional Chinese (Taiwan).\n" +
		"Do not use any English words.\n" +
		"Do not add citations, authors, years, or notes.\n" +
		"Answer directly."

	StrictSystemPrompt = "You must answer ONLY in Traditional Chinese (Taiwan).\n" +
		"DO NOT output any English words.\n" +
		"If the content is originally English, translate it to Traditional Chinese.\n" +
		"Do not add citations, authors, years, or notes.\n" +
		"Answer directly."
)

// Reply 模型调用的规范化结果
type Reply struct {
	Text         string        `json:"text"`
	Raw          string        `json:"raw"`
	Cleaned      string        `json:"cleaned"`
	Meta         quality.Meta  `json:"meta"`
	UsedRetry    bool          `json:"usedRetry"`
	FirstTryMeta *quality.Meta `json:"firstTryMeta,omitempty"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
}

// ModelInfo 返回给前端的模型描述
type ModelInfo struct {
	Model    string `json:"model"`
	API      string `json:"api"`
	Provider string `json:"provider"`
}

// RetryPolicy 语言门槛失败后的有界重试
type RetryPolicy struct {
	MaxRetries int
}

// Backend 一个模型层级：客户端 + 提示词 + 后处理
type Backend struct {
	client  Client
	system  string
	strict  string
	options GenerateOptions
	clean   quality.Options
	gate    quality.Gate
	retry   RetryPolicy
}

// BackendOption Backend 选项
type BackendOption func(*Backend)

// WithSystemPrompts 设置普通与严格系统提示词；空串表示不发送 system 消息
func WithSystemPrompts(system, strict string) BackendOption {
	return func(b *Backend) {
		b.system = system
		b.strict = strict
	}
}

// WithGenerateOptions 设置采样参数
func WithGenerateOptions(opts GenerateOptions) BackendOption {
	return func(b *Backend) { b.options = opts }
}

// WithQuality 设置清洗选项与门槛
func WithQuality(clean quality.Options, gate quality.Gate) BackendOption {
	return func(b *Backend) {
		b.clean = clean
		b.gate = gate
	}
}

// WithRetry 设置重试策略
func WithRetry(p RetryPolicy) BackendOption {
	return func(b *Backend) { b.retry = p }
}

// NewBackend 创建模型层级
func NewBackend(client Client, opts ...BackendOption) *Backend {
	b := &Backend{
		client:  client,
		options: GenerateOptions{Temperature: 0.3, MaxTokens: 512},
		gate:    quality.DefaultGate,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// NewPrimaryBackend 一级模型：繁中系统提示词，语言门槛失败时严格重试一次
func NewPrimaryBackend(client Client, clean quality.Options, gate quality.Gate, opts GenerateOptions) *Backend {
	return NewBackend(client,
		WithSystemPrompts(SystemPrompt, StrictSystemPrompt),
		WithGenerateOptions(opts),
		WithQuality(clean, gate),
		WithRetry(RetryPolicy{MaxRetries: 1}),
	)
}

// NewEscalationBackend 升级模型：单条 user 消息，不做保留中文过滤，不重试
func NewEscalationBackend(client Client, opts GenerateOptions) *Backend {
	return NewBackend(client,
		WithGenerateOptions(opts),
		WithQuality(quality.Options{}, quality.DefaultGate),
	)
}

// Gate 返回该层级使用的语言门槛
func (b *Backend) Gate() quality.Gate { return b.gate }

// Info 模型描述
func (b *Backend) Info() ModelInfo {
	switch b.client.Provider() {
	case ProviderHuggingFace:
		name := b.client.Model()
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		return ModelInfo{Model: name, API: "Hugging Face Router", Provider: "Hugging Face"}
	case ProviderOllama:
		return ModelInfo{Model: b.client.Model(), API: "Ollama API", Provider: "Ollama"}
	default:
		return ModelInfo{Model: b.client.Model(), API: "OpenAI API", Provider: "OpenAI"}
	}
}

// Ask 发送提示词并后处理；乱码或英文比例超标时按 RetryPolicy 以严格提示词重试
func (b *Backend) Ask(ctx context.Context, prompt string) (Reply, error) {
	first, err := b.call(ctx, b.system, prompt)
	if err != nil {
		return Reply{}, err
	}
	if b.retry.MaxRetries <= 0 {
		return first, nil
	}

	reason := b.gate.Check(quality.Output{Text: first.Text, Meta: first.Meta})
	// 过短不重试，换提示词也无济于事
	if reason != quality.ReasonGarbled && reason != quality.ReasonEnglish {
		return first, nil
	}

	current := first
	for i := 0; i < b.retry.MaxRetries; i++ {
		metrics.QualityRejectionsTotal.WithLabelValues(reason).Inc()
		next, err := b.call(ctx, b.strict, prompt)
		if err != nil {
			// 重试失败时保留首轮结果，交由上层门槛判断
			return current, nil
		}
		meta := first.Meta
		next.UsedRetry = true
		next.FirstTryMeta = &meta
		current = next
		reason = b.gate.Check(quality.Output{Text: next.Text, Meta: next.Meta})
		if reason != quality.ReasonGarbled && reason != quality.ReasonEnglish {
			break
		}
	}
	return current, nil
}

func (b *Backend) call(ctx context.Context, system, prompt string) (Reply, error) {
	messages := make([]Message, 0, 2)
	if system != "" {
		messages = append(messages, Message{Role: "system", Content: system})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	start := time.Now()
	raw, err := b.client.ChatWithContext(ctx, messages, b.options)
	metrics.LLMDuration.WithLabelValues(b.client.Provider()).Observe(time.Since(start).Seconds())
	if err != nil {
		return Reply{}, err
	}

	out := quality.Process(raw, b.clean)
	return Reply{
		Text:     out.Text,
		Raw:      out.Raw,
		Cleaned:  out.Cleaned,
		Meta:     out.Meta,
		Provider: b.client.Provider(),
		Model:    b.client.Model(),
	}, nil
}
