package llm

import (
	"context"
	"fmt"
	"time"

	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
)

// Client LLM 客户端接口
type Client interface {
	// ChatWithContext 使用上下文聊天，返回模型原始输出
	ChatWithContext(ctx context.Context, messages []Message, options GenerateOptions) (string, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	TopP        float64  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Message 聊天消息
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// 提供商
const (
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
	ProviderOllama      = "ollama"
)

// Config 客户端配置
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewClient 按 provider 创建客户端；需要凭证的 provider 缺少 key 时返回 ErrMissingCredential
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderHuggingFace:
		if cfg.APIKey == "" {
			return nil, perrors.MissingCredential("HF_API_TOKEN")
		}
		return NewOpenAIClient(ProviderHuggingFace, cfg)
	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			return nil, perrors.MissingCredential("OPENAI_API_KEY")
		}
		return NewOpenAIClient(ProviderOpenAI, cfg)
	case ProviderOllama:
		return NewOllamaClient(cfg), nil
	default:
		return nil, fmt.Errorf("不支持的模型提供商: %s", cfg.Provider)
	}
}
