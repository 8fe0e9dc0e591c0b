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
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/hertz-contrib/jwt"

	"github.com/annie25726/perfume-assistant/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	jwt        *jwt.HertzJWTMiddleware
	audit      *middleware.AuditMiddleware
	rateRPS    int
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetJWT 启用管理接口 JWT 认证；nil 表示管理接口不鉴权
func (r *Router) SetJWT(m *jwt.HertzJWTMiddleware) { r.jwt = m }

// SetAudit 管理接口访问审计（可选）
func (r *Router) SetAudit(a *middleware.AuditMiddleware) { r.audit = a }

// SetRateLimit 对话与上传接口的全局限流，<=0 不限
func (r *Router) SetRateLimit(rps int) { r.rateRPS = rps }

// admin 管理接口的中间件链
func (r *Router) admin(h app.HandlerFunc) []app.HandlerFunc {
	chain := make([]app.HandlerFunc, 0, 3)
	if r.jwt != nil {
		chain = append(chain, r.jwt.MiddlewareFunc())
	}
	if r.audit != nil {
		chain = append(chain, r.audit.AuditAccess())
	}
	return append(chain, h)
}

// Build 创建 Hertz 实例并注册路由（addr 如 ":5050"）；opts 追加到默认选项之后
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	maxBody := int(r.handler.maxUploadSize)*MaxUploadFiles + 1<<20
	all := append([]config.Option{
		server.WithHostPorts(addr),
		server.WithMaxRequestBodySize(maxBody),
	}, opts...)
	h := server.Default(all...)

	h.Use(r.middleware.CORS(), r.middleware.AccessLog())

	h.GET("/metrics", r.handler.Metrics)
	if r.handler.kb != nil {
		h.StaticFS("/uploads", &app.FS{
			Root:        r.handler.kb.UploadDir(),
			PathRewrite: app.NewPathSlashesStripper(1),
		})
	}

	limited := r.middleware.RateLimit(r.rateRPS)
	api := h.Group("/api")
	{
		api.GET("/health", r.handler.HealthCheck)
		api.POST("/chat", limited, r.handler.Chat)
		api.POST("/upload", limited, r.handler.Upload)
		api.GET("/rag/stats", r.handler.Stats)

		api.POST("/rag/ingest", r.admin(r.handler.Ingest)...)
		api.GET("/learned", r.admin(r.handler.ListLearned)...)
		api.DELETE("/sessions/:id", r.admin(r.handler.ResetSession)...)
	}

	if r.jwt != nil {
		adm := api.Group("/admin")
		adm.POST("/login", r.jwt.LoginHandler)
		adm.GET("/refresh_token", r.jwt.RefreshHandler)
	}
	return h
}
