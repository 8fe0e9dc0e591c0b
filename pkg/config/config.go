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

package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/annie25726/perfume-assistant/pkg/secrets"
)

// Config 应用配置结构体
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Model      ModelConfig      `mapstructure:"model"`
	Quality    QualityConfig    `mapstructure:"quality"`
	RAG        RAGConfig        `mapstructure:"rag"`
	Session    SessionConfig    `mapstructure:"session"`
	Learning   LearningConfig   `mapstructure:"learning"`
	Weather    WeatherConfig    `mapstructure:"weather"`
	MCP        MCPConfig        `mapstructure:"mcp"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	RateLimits RateLimitsConfig `mapstructure:"rate_limits"`
	Secrets    secrets.Config   `mapstructure:"secrets"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port          int              `mapstructure:"port"`
	Host          string           `mapstructure:"host"`
	UploadDir     string           `mapstructure:"upload_dir"`
	MaxUploadSize int64            `mapstructure:"max_upload_size"` // 单文件字节数
	CORS          CORSConfig       `mapstructure:"cors"`
	Middleware    MiddlewareConfig `mapstructure:"middleware"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	Auth          bool   `mapstructure:"auth"` // 管理接口启用 JWT
	AdminPassword string `mapstructure:"admin_password"`
	RateLimit     bool   `mapstructure:"rate_limit"`
	RateLimitRPS  int    `mapstructure:"rate_limit_rps"`
	JWTKey        string `mapstructure:"jwt_key"`
	JWTTimeout    string `mapstructure:"jwt_timeout"`     // 如 "1h"
	JWTMaxRefresh string `mapstructure:"jwt_max_refresh"` // 如 "1h"
}

// ModelConfig 模型配置：primary 为低成本一级模型，escalation 为升级模型
type ModelConfig struct {
	Primary    ProviderConfig `mapstructure:"primary"`
	Escalation ProviderConfig `mapstructure:"escalation"`
}

// ProviderConfig 单个模型后端配置
type ProviderConfig struct {
	Provider    string  `mapstructure:"provider"` // huggingface | openai | ollama
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Timeout     string  `mapstructure:"timeout"` // 如 "30s"
}

// TimeoutDuration 解析 Timeout，空或非法时返回 def
func (p ProviderConfig) TimeoutDuration(def time.Duration) time.Duration {
	return ParseDuration(p.Timeout, def)
}

// QualityConfig 输出质量门槛
type QualityConfig struct {
	EnglishRatioThreshold float64 `mapstructure:"english_ratio_threshold"`
	MinLength             int     `mapstructure:"min_length"`
	KeepChineseOnly       bool    `mapstructure:"keep_chinese_only"`
}

// RAGConfig 检索库配置
type RAGConfig struct {
	StorePath    string `mapstructure:"store_path"`
	TopK         int    `mapstructure:"top_k"`
	WatchUploads bool   `mapstructure:"watch_uploads"`
}

// SessionConfig 会话存储配置
type SessionConfig struct {
	Store       string `mapstructure:"store"` // memory | file | cache
	Dir         string `mapstructure:"dir"`
	MaxMessages int    `mapstructure:"max_messages"`
	TTL         string `mapstructure:"ttl"` // 仅 cache 存储使用
}

// LearningConfig 自动学习配置
type LearningConfig struct {
	Enable         bool   `mapstructure:"enable"`
	Store          string `mapstructure:"store"` // file | postgres
	Dir            string `mapstructure:"dir"`
	DSN            string `mapstructure:"dsn"`
	EventLog       string `mapstructure:"event_log"`
	ForceThreshold int    `mapstructure:"force_threshold"` // 同一意图升级次数达到后直接走升级模型
}

// WeatherConfig 中央气象署开放资料配置
type WeatherConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	CacheTTL string `mapstructure:"cache_ttl"`
	Timeout  string `mapstructure:"timeout"`
}

// MCPConfig 工具权威服务（MCP over SSE）配置
type MCPConfig struct {
	AccountingSSEURL string `mapstructure:"accounting_sse_url"`
	GenericSSEURL    string `mapstructure:"generic_sse_url"`
	TimeoutMS        int    `mapstructure:"timeout_ms"`
	ClientName       string `mapstructure:"client_name"`
	ClientVersion    string `mapstructure:"client_version"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Cache CacheConfig `mapstructure:"cache"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type     string `mapstructure:"type"` // memory | redis
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
}

// RateLimitsConfig 限流配置（按 LLM provider）
type RateLimitsConfig struct {
	LLM map[string]LLMRateLimitConfig `mapstructure:"llm"`
}

// LLMRateLimitConfig 单个 LLM Provider 的限流配置
type LLMRateLimitConfig struct {
	TokensPerMinute   int     `mapstructure:"tokens_per_minute"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// setDefaults 与参考部署保持一致的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 5050)
	v.SetDefault("api.upload_dir", "data/uploads")
	v.SetDefault("api.max_upload_size", 10*1024*1024)
	v.SetDefault("api.middleware.rate_limit_rps", 20)

	v.SetDefault("model.primary.provider", "huggingface")
	v.SetDefault("model.primary.base_url", "https://router.huggingface.co/v1")
	v.SetDefault("model.primary.model", "meta-llama/Meta-Llama-3-8B-Instruct")
	v.SetDefault("model.primary.api_key", "${HF_API_TOKEN}")
	v.SetDefault("model.primary.temperature", 0.3)
	v.SetDefault("model.primary.max_tokens", 512)
	v.SetDefault("model.primary.timeout", "30s")
	v.SetDefault("model.escalation.provider", "openai")
	v.SetDefault("model.escalation.base_url", "https://api.openai.com/v1")
	v.SetDefault("model.escalation.model", "gpt-4o-mini")
	v.SetDefault("model.escalation.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("model.escalation.temperature", 0.7)
	v.SetDefault("model.escalation.max_tokens", 1024)
	v.SetDefault("model.escalation.timeout", "60s")

	v.SetDefault("quality.english_ratio_threshold", 0.18)
	v.SetDefault("quality.min_length", 4)

	v.SetDefault("rag.store_path", "data/rag/rag_store.json")
	v.SetDefault("rag.top_k", 4)

	v.SetDefault("session.store", "file")
	v.SetDefault("session.dir", "data/memory")
	v.SetDefault("session.max_messages", 80)
	v.SetDefault("session.ttl", "720h")

	v.SetDefault("learning.enable", true)
	v.SetDefault("learning.store", "file")
	v.SetDefault("learning.dir", "data/learned")
	v.SetDefault("learning.event_log", "data/learning/learning_log.jsonl")
	v.SetDefault("learning.force_threshold", 3)

	v.SetDefault("weather.api_key", "${CWA_API_KEY}")
	v.SetDefault("weather.base_url", "https://opendata.cwa.gov.tw/api/v1/rest/datastore")
	v.SetDefault("weather.cache_ttl", "10m")
	v.SetDefault("weather.timeout", "10s")

	v.SetDefault("mcp.accounting_sse_url", "http://127.0.0.1:5050/mcp/accounting/sse")
	v.SetDefault("mcp.timeout_ms", 8000)
	v.SetDefault("mcp.client_name", "perfume-assistant")
	v.SetDefault("mcp.client_version", "1.0.0")

	v.SetDefault("storage.cache.type", "memory")
	v.SetDefault("storage.cache.prefix", "perfume:")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.tracing.service_name", "perfume-assistant")
}

// LoadConfig 加载配置文件；configPath 为空时仅使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("无法读取配置文件: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// replaceEnvVars 替换配置中 ${ENV} 形式的凭证
func replaceEnvVars(config *Config) {
	config.Model.Primary.APIKey = expandEnv(config.Model.Primary.APIKey)
	config.Model.Escalation.APIKey = expandEnv(config.Model.Escalation.APIKey)
	config.Weather.APIKey = expandEnv(config.Weather.APIKey)
	config.Learning.DSN = expandEnv(config.Learning.DSN)
	config.Storage.Cache.Password = expandEnv(config.Storage.Cache.Password)
	config.API.Middleware.JWTKey = expandEnv(config.API.Middleware.JWTKey)
	config.API.Middleware.AdminPassword = expandEnv(config.API.Middleware.AdminPassword)
	config.Secrets.Token = expandEnv(config.Secrets.Token)
}

// expandEnv 仅处理整值为 ${VAR} 的情况；变量未设置时得到空串
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}"))
	}
	return s
}

// ResolveSecrets 将 secret:// 引用替换为 Store 中的真实值
func (c *Config) ResolveSecrets(ctx context.Context, store secrets.Store) error {
	targets := []*string{
		&c.Model.Primary.APIKey,
		&c.Model.Escalation.APIKey,
		&c.Weather.APIKey,
		&c.Learning.DSN,
		&c.Storage.Cache.Password,
		&c.API.Middleware.JWTKey,
		&c.API.Middleware.AdminPassword,
	}
	for _, p := range targets {
		v, err := secrets.Resolve(ctx, store, *p)
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}

// Validate 校验互相依赖的配置项
func (c *Config) Validate() error {
	var problems []string
	if c.API.Port <= 0 || c.API.Port > 65535 {
		problems = append(problems, fmt.Sprintf("api.port 非法: %d", c.API.Port))
	}
	switch c.Session.Store {
	case "memory", "file", "cache":
	default:
		problems = append(problems, fmt.Sprintf("session.store 不支持: %q", c.Session.Store))
	}
	if c.Learning.Store == "postgres" && c.Learning.DSN == "" {
		problems = append(problems, "learning.store=postgres 时 learning.dsn 必填")
	}
	if c.Storage.Cache.Type == "redis" && c.Storage.Cache.Addr == "" {
		problems = append(problems, "storage.cache.type=redis 时 storage.cache.addr 必填")
	}
	if c.API.Middleware.Auth && c.API.Middleware.JWTKey == "" {
		problems = append(problems, "api.middleware.auth 启用时 jwt_key 必填")
	}
	if c.Quality.EnglishRatioThreshold < 0 || c.Quality.EnglishRatioThreshold > 1 {
		problems = append(problems, "quality.english_ratio_threshold 需在 [0,1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("配置校验失败: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// LoadAPIConfig 加载 API 配置（configs/api.yaml 不存在时退回默认值）
func LoadAPIConfig() (*Config, error) {
	path := "configs/api.yaml"
	if p := os.Getenv("PERFUME_CONFIG"); p != "" {
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return LoadConfig("")
	}
	return LoadConfig(path)
}
