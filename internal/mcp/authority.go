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

package mcp

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/annie25726/perfume-assistant/internal/intent"
	"github.com/annie25726/perfume-assistant/internal/tool"
	"github.com/annie25726/perfume-assistant/internal/tool/registry"
	"github.com/annie25726/perfume-assistant/pkg/config"
	"github.com/annie25726/perfume-assistant/pkg/log"
	"github.com/annie25726/perfume-assistant/pkg/metrics"
	"github.com/annie25726/perfume-assistant/pkg/tracing"
)

// DefaultTimeout 单次工具轨道的总超时
const DefaultTimeout = 8 * time.Second

var segmentRe = regexp.MustCompile(`\n+`)

// Authority 一个工具权威服务：连接、握手、列工具、按问题调用
type Authority struct {
	client  *Client
	timeout time.Duration
	now     func() time.Time
	logger  *log.Logger
	// generic 为 true 时直接用原问题调用首选工具，不做记账参数提取
	generic bool

	mu sync.Mutex
	// tools 最近一次 tools/list 的快照；每次调用使用各自的注册表
	tools *registry.Registry
}

// Option Authority 选项
type Option func(*Authority)

// WithClock 注入时钟（日期参数）
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// WithTimeout 覆盖总超时
func WithTimeout(d time.Duration) Option {
	return func(a *Authority) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func newAuthority(sseURL string, cfg config.MCPConfig, generic bool, logger *log.Logger, opts ...Option) *Authority {
	info := ClientInfo{Name: cfg.ClientName, Version: cfg.ClientVersion}
	if info.Name == "" {
		info = ClientInfo{Name: "perfume-assistant", Version: "1.0.0"}
	}
	name := "mcp-accounting"
	if generic {
		name = "mcp-generic"
	}
	a := &Authority{
		client:  NewClient(sseURL, info),
		tools:   registry.New(),
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  logger.Component(name),
		generic: generic,
	}
	if cfg.TimeoutMS > 0 {
		a.timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// NewAccounting 记账权威服务
func NewAccounting(cfg config.MCPConfig, logger *log.Logger, opts ...Option) *Authority {
	return newAuthority(cfg.AccountingSSEURL, cfg, false, logger, opts...)
}

// NewGeneric 通用权威服务（汇率、公告等）；未配置地址时返回 nil
func NewGeneric(cfg config.MCPConfig, logger *log.Logger, opts ...Option) *Authority {
	if cfg.GenericSSEURL == "" {
		return nil
	}
	return newAuthority(cfg.GenericSSEURL, cfg, true, logger, opts...)
}

// Tools 最近一次 tools/list 的结果
func (a *Authority) Tools() []tool.Descriptor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tools.List()
}

// ListTools 仅握手并列出工具
func (a *Authority) ListTools(ctx context.Context) ([]tool.Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	s, tools, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return tools.List(), nil
}

func (a *Authority) open(ctx context.Context) (*Session, *registry.Registry, error) {
	s, err := a.client.Connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Initialize(ctx); err != nil {
		s.Close()
		return nil, nil, err
	}
	listed, err := s.ListTools(ctx)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	tools := registry.New(listed...)
	a.mu.Lock()
	a.tools = tools
	a.mu.Unlock()
	if tools.Len() == 0 {
		s.Close()
		return nil, nil, errors.New("mcp: 服务未提供任何工具")
	}
	return s, tools, nil
}

// Run 按问题调用工具；多行输入逐行调用并汇总为批量结果。
// 返回 nil, nil 表示没有可调用的工具或参数不足
func (a *Authority) Run(ctx context.Context, question string) (*ToolCallResult, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	s, tools, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	var segments []string
	for _, seg := range segmentRe.Split(q, -1) {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}

	if len(segments) > 1 {
		batch := &ToolCallResult{Tool: BatchTool}
		for _, seg := range segments {
			res, err := a.runSegment(ctx, s, tools, seg)
			if err != nil {
				return nil, err
			}
			if res != nil {
				batch.Results = append(batch.Results, *res)
			}
		}
		if len(batch.Results) == 0 {
			return nil, nil
		}
		return batch, nil
	}
	return a.runSegment(ctx, s, tools, q)
}

func (a *Authority) runSegment(ctx context.Context, s *Session, tools *registry.Registry, segment string) (*ToolCallResult, error) {
	toolIntent := ""
	if !a.generic {
		toolIntent = intent.PickToolIntent(segment)
	}
	name, ok := tools.Resolve(toolIntent)
	if !ok {
		a.logger.Warn("无法解析工具名称", "intent", toolIntent)
		return nil, nil
	}

	var args map[string]any
	if a.generic {
		args = map[string]any{"question": segment}
	} else {
		key := toolIntent
		if key == "" {
			key = name
		}
		if args, ok = tool.BuildArgs(key, segment, a.now()); !ok {
			return nil, nil
		}
	}
	if err := tools.Validate(name, args); err != nil {
		a.logger.Warn("工具参数未通过 schema 校验，跳过", "tool", name, "error", err)
		return nil, nil
	}

	ctx, span := tracing.StartToolSpan(ctx, name)
	start := time.Now()
	raw, err := s.CallTool(ctx, name, args)
	metrics.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	canonical := toolIntent
	if canonical == "" {
		canonical = name
	}
	res := &ToolCallResult{Tool: name, Intent: canonical, Input: segment, Raw: raw}
	if text, ok := contentText(raw); ok {
		res.Content = text
	}
	res.Parsed = ParseContent(res.Content, res.Raw)
	return res, nil
}
