// Copyright 2026 fanjia1024
// Tests for model tier registry

package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annie25726/perfume-assistant/pkg/config"
	perrors "github.com/annie25726/perfume-assistant/pkg/errors"
	"github.com/annie25726/perfume-assistant/pkg/log"
)

func TestGet_NotRegistered(t *testing.T) {
	_, err := NewRegistry().Get("non-existent-tier")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
	assert.True(t, errors.Is(err, perrors.ErrNotFound))
}

func TestFromConfig_BothTiers(t *testing.T) {
	cfg := config.ModelConfig{
		Primary:    config.ProviderConfig{Provider: "huggingface", APIKey: "hf"},
		Escalation: config.ProviderConfig{Provider: "openai", APIKey: "sk", Model: "gpt-4o-mini"},
	}
	r, err := FromConfig(cfg, config.QualityConfig{EnglishRatioThreshold: 0.18, MinLength: 4}, nil, log.Nop())
	require.NoError(t, err)
	require.NotNil(t, r.Primary())
	require.NotNil(t, r.Escalation())
	assert.Equal(t, "Hugging Face", r.Primary().Info().Provider)
	assert.Equal(t, "gpt-4o-mini", r.Escalation().Info().Model)
}

func TestFromConfig_MissingKeysSkipTier(t *testing.T) {
	cfg := config.ModelConfig{
		Primary:    config.ProviderConfig{Provider: "ollama"},
		Escalation: config.ProviderConfig{Provider: "openai"},
	}
	r, err := FromConfig(cfg, config.QualityConfig{}, nil, log.Nop())
	require.NoError(t, err)
	assert.NotNil(t, r.Primary())
	assert.Nil(t, r.Escalation())
	assert.Equal(t, 0.18, r.Primary().Gate().EnglishRatioThreshold)
}

func TestFromConfig_UnknownProvider(t *testing.T) {
	cfg := config.ModelConfig{Primary: config.ProviderConfig{Provider: "claude", APIKey: "x"}}
	_, err := FromConfig(cfg, config.QualityConfig{}, nil, log.Nop())
	require.Error(t, err)
}
