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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annie25726/perfume-assistant/pkg/secrets"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
api:
  port: 9000
  host: "127.0.0.1"
log:
  level: "debug"
rag:
  top_k: 6
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port: got %d", cfg.API.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
	if cfg.RAG.TopK != 6 {
		t.Errorf("RAG.TopK: got %d", cfg.RAG.TopK)
	}
	// 未出现在文件里的字段取默认值
	if cfg.Quality.EnglishRatioThreshold != 0.18 {
		t.Errorf("default threshold: got %v", cfg.Quality.EnglishRatioThreshold)
	}
	if cfg.Session.MaxMessages != 80 {
		t.Errorf("default max messages: got %d", cfg.Session.MaxMessages)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 5050, cfg.API.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Escalation.Model)
	assert.Equal(t, 8000, cfg.MCP.TimeoutMS)
	assert.Equal(t, "http://127.0.0.1:5050/mcp/accounting/sse", cfg.MCP.AccountingSSEURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvPlaceholder(t *testing.T) {
	t.Setenv("HF_API_TOKEN", "hf_xyz")
	t.Setenv("CWA_API_KEY", "cwa_key")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "hf_xyz", cfg.Model.Primary.APIKey)
	assert.Equal(t, "cwa_key", cfg.Weather.APIKey)
}

func TestConfig_ResolveSecrets(t *testing.T) {
	store := secrets.NewMemoryStore()
	store.Set("openai", "sk-1")
	cfg := &Config{}
	cfg.Model.Escalation.APIKey = "secret://openai"
	cfg.Model.Primary.APIKey = "plain"
	require.NoError(t, cfg.ResolveSecrets(context.Background(), store))
	assert.Equal(t, "sk-1", cfg.Model.Escalation.APIKey)
	assert.Equal(t, "plain", cfg.Model.Primary.APIKey)
}

func TestConfig_Validate(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Learning.Store = "postgres"
	cfg.Session.Store = "sqlite"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "learning.dsn")
	assert.Contains(t, err.Error(), "session.store")
}

func TestParseDuration(t *testing.T) {
	if got := ParseDuration("", time.Second); got != time.Second {
		t.Errorf("empty: %v", got)
	}
	if got := ParseDuration("bad", time.Second); got != time.Second {
		t.Errorf("invalid: %v", got)
	}
	if got := ParseDuration("5m", time.Second); got != 5*time.Minute {
		t.Errorf("5m: %v", got)
	}
}
