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
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"

	"github.com/annie25726/perfume-assistant/pkg/log"
)

// AuditMiddleware 管理接口访问审计
type AuditMiddleware struct {
	sink AuditSink
}

// AuditSink 审计记录落地
type AuditSink interface {
	LogAccess(ctx context.Context, rec AuditLog) error
}

// AuditLog 审计记录
type AuditLog struct {
	Identity   string
	Action     string
	Resource   string
	Success    bool
	DurationMS int64
	CreatedAt  time.Time
}

// LoggerSink 写入结构化日志
type LoggerSink struct {
	logger *log.Logger
}

// NewLoggerSink 创建日志审计落地
func NewLoggerSink(logger *log.Logger) *LoggerSink {
	return &LoggerSink{logger: logger.Component("audit")}
}

// LogAccess 实现 AuditSink
func (s *LoggerSink) LogAccess(_ context.Context, rec AuditLog) error {
	s.logger.Info("admin access",
		"identity", rec.Identity,
		"action", rec.Action,
		"resource", rec.Resource,
		"success", rec.Success,
		"duration_ms", rec.DurationMS,
	)
	return nil
}

// NewAuditMiddleware 创建审计中间件
func NewAuditMiddleware(sink AuditSink) *AuditMiddleware {
	return &AuditMiddleware{sink: sink}
}

// AuditAccess 记录管理接口访问
func (a *AuditMiddleware) AuditAccess() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)

		identity := "anonymous"
		if v, ok := c.Get(identityKey); ok && v != nil {
			identity = fmt.Sprint(v)
		}
		method, path := string(c.Method()), string(c.Path())
		action, resource := determineAction(method, path)
		_ = a.sink.LogAccess(ctx, AuditLog{
			Identity:   identity,
			Action:     action,
			Resource:   resource,
			Success:    c.Response.StatusCode() < 400,
			DurationMS: time.Since(start).Milliseconds(),
			CreatedAt:  time.Now().UTC(),
		})
	}
}

// determineAction 根据方法与路径归类管理操作
func determineAction(method, path string) (action, resource string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case strings.HasSuffix(path, "/rag/ingest"):
		return "ingest", "rag"
	case strings.HasSuffix(path, "/learned"):
		return "list_learned", "learned"
	case len(parts) >= 3 && parts[1] == "sessions" && method == "DELETE":
		return "reset_session", parts[2]
	}
	return "unknown", ""
}
