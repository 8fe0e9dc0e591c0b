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

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/annie25726/perfume-assistant/internal/learning"
	"github.com/annie25726/perfume-assistant/internal/mcp"
	"github.com/annie25726/perfume-assistant/internal/model"
	"github.com/annie25726/perfume-assistant/internal/model/llm"
	"github.com/annie25726/perfume-assistant/internal/pipeline/chat"
	"github.com/annie25726/perfume-assistant/internal/retrieval"
	"github.com/annie25726/perfume-assistant/internal/runtime/session"
	"github.com/annie25726/perfume-assistant/internal/storage/cache"
	"github.com/annie25726/perfume-assistant/internal/weather"
	"github.com/annie25726/perfume-assistant/pkg/config"
	"github.com/annie25726/perfume-assistant/pkg/log"
	"github.com/annie25726/perfume-assistant/pkg/secrets"
)

// Bootstrap 统一初始化：供 api 与 cli 复用，避免在 cmd 内写业务装配
type Bootstrap struct {
	Config     *config.Config
	Logger     *log.Logger
	Cache      cache.Store
	Sessions   *session.Manager
	Knowledge  *retrieval.Store
	Models     *model.Registry
	Weather    *weather.Service
	Accounting *mcp.Authority
	Generic    *mcp.Authority
	Learning   *learning.Loop // learning.enable=false 时为 nil
	Responder  *chat.Responder

	closers []func()
}

// NewBootstrap 根据配置创建 Bootstrap（日志、缓存、会话、检索库、模型、工具、学习闭环）
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置为空")
	}
	logger, err := log.NewLogger(&log.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}
	b := &Bootstrap{Config: cfg, Logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := b.resolveSecrets(ctx); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.Cache, err = cache.NewCache(cfg.Storage.Cache); err != nil {
		return nil, fmt.Errorf("初始化缓存failed: %w", err)
	}
	b.closers = append(b.closers, func() { _ = b.Cache.Close() })

	if b.Sessions, err = b.newSessions(); err != nil {
		b.Close()
		return nil, fmt.Errorf("初始化会话存储failed: %w", err)
	}

	b.Knowledge = retrieval.NewStore(
		retrieval.NewFileBackend(cfg.RAG.StorePath),
		retrieval.WithUploadDir(cfg.API.UploadDir),
		retrieval.WithLogger(logger),
	)

	limiter := llm.NewRateLimiter(cfg.RateLimits.LLM, nil)
	if b.Models, err = model.FromConfig(cfg.Model, cfg.Quality, limiter, logger); err != nil {
		b.Close()
		return nil, fmt.Errorf("初始化模型failed: %w", err)
	}

	b.Weather = weather.NewService(weather.NewClient(cfg.Weather, b.Cache, logger), logger)
	if cfg.MCP.AccountingSSEURL != "" {
		b.Accounting = mcp.NewAccounting(cfg.MCP, logger)
	}
	b.Generic = mcp.NewGeneric(cfg.MCP, logger)

	if cfg.Learning.Enable {
		if b.Learning, err = b.newLearning(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("初始化自动学习failed: %w", err)
		}
	}

	b.Responder = chat.NewResponder(b.deps(), chat.Options{
		TopK:              cfg.RAG.TopK,
		EscalationTimeout: cfg.Model.Escalation.TimeoutDuration(0),
	}, logger)
	return b, nil
}

func (b *Bootstrap) resolveSecrets(ctx context.Context) error {
	store, err := secrets.NewStore(b.Config.Secrets)
	if err != nil {
		return fmt.Errorf("初始化密钥存储failed: %w", err)
	}
	if err := b.Config.ResolveSecrets(ctx, store); err != nil {
		return fmt.Errorf("解析密钥failed: %w", err)
	}
	return nil
}

func (b *Bootstrap) newSessions() (*session.Manager, error) {
	cfg := b.Config.Session
	var store session.SessionStore
	switch cfg.Store {
	case "memory":
		store = session.NewMemoryStore()
	case "cache":
		store = session.NewCacheStore(b.Cache, config.ParseDuration(cfg.TTL, 30*24*time.Hour))
	default:
		fs, err := session.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		store = fs
	}
	return session.NewManager(store, cfg.MaxMessages), nil
}

func (b *Bootstrap) newLearning(ctx context.Context) (*learning.Loop, error) {
	cfg := b.Config.Learning
	var notes learning.NoteStore
	switch cfg.Store {
	case "postgres":
		pg, err := learning.NewPgStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pg.Close)
		notes = pg
	default:
		fs, err := learning.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		notes = fs
	}

	events, err := learning.NewEventLog(cfg.EventLog)
	if err != nil {
		return nil, err
	}
	learner := learning.NewIntentLearner(cfg.ForceThreshold)
	history, err := events.ReadAll()
	if err != nil {
		b.Logger.Warn("读取学习日志失败，升级统计从零开始", "error", err)
	}
	learner.Replay(history)
	return learning.NewLoop(notes, events, learner, b.Logger), nil
}

// deps 组装应答器依赖；未配置的组件保持为 nil 接口
func (b *Bootstrap) deps() chat.Deps {
	d := chat.Deps{
		Sessions:  b.Sessions,
		Retriever: b.Knowledge,
		Weather:   b.Weather,
	}
	if p := b.Models.Primary(); p != nil {
		d.Primary = p
	}
	if e := b.Models.Escalation(); e != nil {
		d.Escalation = e
	}
	if b.Accounting != nil {
		d.Accounting = b.Accounting
	}
	if b.Generic != nil {
		d.Generic = b.Generic
	}
	if b.Learning != nil {
		d.Learning = b.Learning
	}
	return d
}

// Close 释放缓存与数据库连接
func (b *Bootstrap) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
