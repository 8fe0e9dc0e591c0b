package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annie25726/perfume-assistant/internal/quality"
	"github.com/annie25726/perfume-assistant/pkg/config"
	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
)

func TestOpenAIClient_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer hf-test", r.Header.Get("Authorization"))
		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "meta-llama/Meta-Llama-3-8B-Instruct", req.Model)
		assert.Equal(t, 512, req.MaxTokens)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"你好"}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Provider: ProviderHuggingFace, APIKey: "hf-test", BaseURL: srv.URL})
	require.NoError(t, err)
	out, err := c.ChatWithContext(context.Background(), []Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: "嗨"},
	}, GenerateOptions{Temperature: 0.3, MaxTokens: 512})
	require.NoError(t, err)
	assert.Equal(t, "你好", out)
	assert.Equal(t, ProviderHuggingFace, c.Provider())
}

func TestOpenAIClient_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{Provider: ProviderOpenAI, APIKey: "sk", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.ChatWithContext(context.Background(), []Message{{Role: "user", Content: "q"}}, GenerateOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, perrors.ErrUpstream))
}

func TestNewClient_MissingCredential(t *testing.T) {
	for _, p := range []string{ProviderHuggingFace, ProviderOpenAI} {
		_, err := NewClient(Config{Provider: p})
		if !errors.Is(err, perrors.ErrMissingCredential) {
			t.Errorf("provider %s: err = %v, want ErrMissingCredential", p, err)
		}
	}
	if _, err := NewClient(Config{Provider: ProviderOllama}); err != nil {
		t.Errorf("ollama needs no key, got %v", err)
	}
	if _, err := NewClient(Config{Provider: "claude"}); err == nil {
		t.Error("unknown provider should fail")
	}
}

func TestOllamaClient_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["stream"])
		assert.Equal(t, "qwen2.5:7b", body["model"])
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"本地回答"}}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(Config{BaseURL: srv.URL})
	out, err := c.ChatWithContext(context.Background(), []Message{{Role: "user", Content: "q"}}, GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "本地回答", out)
}

// scriptedClient 按顺序返回预设输出并记录收到的消息
type scriptedClient struct {
	outputs []string
	calls   [][]Message
}

func (s *scriptedClient) ChatWithContext(_ context.Context, messages []Message, _ GenerateOptions) (string, error) {
	s.calls = append(s.calls, messages)
	i := len(s.calls) - 1
	if i >= len(s.outputs) {
		return "", errors.New("no more outputs")
	}
	return s.outputs[i], nil
}

func (s *scriptedClient) Model() string    { return "meta-llama/Meta-Llama-3-8B-Instruct" }
func (s *scriptedClient) Provider() string { return ProviderHuggingFace }

func TestBackend_StrictRetryOnEnglish(t *testing.T) {
	client := &scriptedClient{outputs: []string{
		"This perfume has a woody base note.",
		"這款香水帶有木質基調，適合秋冬。",
	}}
	b := NewPrimaryBackend(client, quality.Options{}, quality.DefaultGate, GenerateOptions{Temperature: 0.3, MaxTokens: 512})

	reply, err := b.Ask(context.Background(), "木質調香水？")
	require.NoError(t, err)
	require.Len(t, client.calls, 2)
	assert.Equal(t, SystemPrompt, client.calls[0][0].Content)
	assert.Equal(t, StrictSystemPrompt, client.calls[1][0].Content)
	assert.True(t, reply.UsedRetry)
	require.NotNil(t, reply.FirstTryMeta)
	assert.Greater(t, reply.FirstTryMeta.EnglishRatio, 0.18)
	assert.Equal(t, "這款香水帶有木質基調，適合秋冬。", reply.Text)
}

func TestBackend_NoRetryWhenShort(t *testing.T) {
	client := &scriptedClient{outputs: []string{"好"}}
	b := NewPrimaryBackend(client, quality.Options{}, quality.DefaultGate, GenerateOptions{})

	reply, err := b.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, client.calls, 1)
	assert.False(t, reply.UsedRetry)
}

func TestBackend_RetryErrorKeepsFirst(t *testing.T) {
	client := &scriptedClient{outputs: []string{"English only answer here"}}
	b := NewPrimaryBackend(client, quality.Options{}, quality.DefaultGate, GenerateOptions{})

	reply, err := b.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, client.calls, 2)
	assert.False(t, reply.UsedRetry)
	assert.Equal(t, "English only answer here", reply.Raw)
}

func TestEscalationBackend_SingleUserMessage(t *testing.T) {
	client := &scriptedClient{outputs: []string{"Chanel No.5 是經典的醛香花香調。"}}
	b := NewEscalationBackend(client, GenerateOptions{Temperature: 0.7})

	reply, err := b.Ask(context.Background(), "【使用者問題】\n經典香水")
	require.NoError(t, err)
	require.Len(t, client.calls, 1)
	require.Len(t, client.calls[0], 1)
	assert.Equal(t, "user", client.calls[0][0].Role)
	assert.Contains(t, reply.Text, "Chanel")
}

func TestBackend_Info(t *testing.T) {
	b := NewBackend(&scriptedClient{})
	assert.Equal(t, ModelInfo{Model: "Meta-Llama-3-8B-Instruct", API: "Hugging Face Router", Provider: "Hugging Face"}, b.Info())
}

func TestRateLimitedClient_ClampsTokenBudget(t *testing.T) {
	limiter := NewRateLimiter(map[string]config.LLMRateLimitConfig{
		ProviderHuggingFace: {TokensPerMinute: 60, RequestsPerMinute: 600, MaxConcurrent: 1},
	}, nil)
	client := NewRateLimitedClient(&scriptedClient{outputs: []string{"一"}}, limiter)

	// 估算 token 远超 burst，仍应放行
	if _, err := client.ChatWithContext(context.Background(), []Message{{Role: "user", Content: "很長的問題"}}, GenerateOptions{MaxTokens: 512}); err != nil {
		t.Fatalf("ChatWithContext: %v", err)
	}
	stats := limiter.Stats(ProviderHuggingFace)
	if stats["current_concurrent"] != 0 {
		t.Errorf("current_concurrent = %v, want 0", stats["current_concurrent"])
	}
}
