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

package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"github.com/annie25726/perfume-assistant/internal/api/http"
	"github.com/annie25726/perfume-assistant/internal/api/http/middleware"
	"github.com/annie25726/perfume-assistant/internal/app"
	"github.com/annie25726/perfume-assistant/internal/retrieval"
	"github.com/annie25726/perfume-assistant/pkg/config"
	"github.com/annie25726/perfume-assistant/pkg/log"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用（装配 HTTP Router、Handler、Middleware 与上传目录监听）
type App struct {
	config       *app.Bootstrap
	router       *http.Router
	hertz        *server.Hertz
	watcher      *retrieval.UploadWatcher
	cancelWatch  context.CancelFunc
	otelProvider otelProviderShutdown
}

// NewApp 根据 Bootstrap 装配 HTTP 层
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config

	handler := http.NewHandler(bootstrap.Responder, bootstrap.Knowledge, bootstrap.Logger)
	handler.SetSessions(bootstrap.Sessions)
	handler.SetMaxUploadSize(cfg.API.MaxUploadSize)
	if bootstrap.Learning != nil {
		handler.SetLearnedNotes(bootstrap.Learning)
	}

	var origins []string
	if cfg.API.CORS.Enable {
		origins = cfg.API.CORS.AllowOrigins
	}
	mw := middleware.NewMiddleware(
		middleware.WithAllowOrigins(origins),
		middleware.WithLogger(bootstrap.Logger),
	)
	router := http.NewRouter(handler, mw)
	router.SetAudit(middleware.NewAuditMiddleware(middleware.NewLoggerSink(bootstrap.Logger)))
	if cfg.API.Middleware.RateLimit {
		router.SetRateLimit(cfg.API.Middleware.RateLimitRPS)
	}

	if cfg.API.Middleware.Auth && cfg.API.Middleware.JWTKey != "" {
		timeout := config.ParseDuration(cfg.API.Middleware.JWTTimeout, time.Hour)
		maxRefresh := config.ParseDuration(cfg.API.Middleware.JWTMaxRefresh, time.Hour)
		jwtAuth, err := middleware.NewJWTAuth([]byte(cfg.API.Middleware.JWTKey), cfg.API.Middleware.AdminPassword, timeout, maxRefresh)
		if err != nil {
			bootstrap.Logger.Warn("JWT 初始化失败，将跳过认证", "error", err)
		} else {
			router.SetJWT(jwtAuth)
			bootstrap.Logger.Info("JWT 认证已启用")
		}
	}

	a := &App{config: bootstrap, router: router}
	if cfg.RAG.WatchUploads {
		w, err := retrieval.NewUploadWatcher(bootstrap.Knowledge, bootstrap.Logger)
		if err != nil {
			bootstrap.Logger.Warn("上传目录监听不可用", "error", err)
		} else {
			a.watcher = w
		}
	}
	return a, nil
}

// hertzLogWriter 与 bootstrap 日志配置对齐的 hertz 日志输出
func hertzLogWriter(cfg *config.Config) (io.Writer, error) {
	if cfg.Log.File == "" {
		return os.Stdout, nil
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %w", err)
	}
	return f, nil
}

// Run 启动 HTTP 服务，addr 如 ":5050"
func (a *App) Run(addr string) error {
	cfg := a.config.Config
	a.config.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	output, err := hertzLogWriter(cfg)
	if err != nil {
		return err
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	// 可选：启用链路追踪（OpenTelemetry）
	tracingCfg := cfg.Monitoring.Tracing
	exportEndpoint := tracingCfg.ExportEndpoint
	if exportEndpoint == "" {
		exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if tracingCfg.Enable && exportEndpoint != "" {
		serviceName := tracingCfg.ServiceName
		if serviceName == "" {
			serviceName = "perfume-assistant"
		}
		opts := []provider.Option{
			provider.WithServiceName(serviceName),
			provider.WithExportEndpoint(exportEndpoint),
		}
		if tracingCfg.Insecure {
			opts = append(opts, provider.WithInsecure())
		}
		a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
		tracerOpt, serverCfg := hertztracing.NewServerTracer()
		a.hertz = a.router.Build(addr, tracerOpt)
		a.hertz.Use(hertztracing.ServerMiddleware(serverCfg))
		a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
	} else {
		a.hertz = a.router.Build(addr)
	}

	if a.watcher != nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancelWatch = cancel
		if err := a.watcher.Start(ctx); err != nil {
			a.config.Logger.Warn("上传目录监听启动失败", "error", err)
		}
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	if a.cancelWatch != nil {
		a.cancelWatch()
	}
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	a.config.Close()
	return nil
}
