// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "tandem", cfg.Logger.ServiceName)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.DefaultFastModel)
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.DefaultPowerfulModel)
	assert.Equal(t, 60*time.Second, cfg.LLM.APITimeout)
	assert.Equal(t, 2, cfg.Chain.MinChainSize)
	assert.Equal(t, 10, cfg.Chain.MaxChainSize)
	assert.Equal(t, 2, cfg.Chain.MaxRetryAttempts)
	assert.False(t, cfg.Chain.AllowTrailingClick)
	assert.Equal(t, 10*time.Second, cfg.Verification.Tier2Timeout)
	assert.Equal(t, 0.7, cfg.Verification.Tier2MinConfidence)
	assert.Equal(t, 4, cfg.Engine.WorkerConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.Engine.DefaultTaskTimeout)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "tandem", cfg.Observability.MetricsNamespace)

	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Chain Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Chain
		assert.NoError(t, valid.Validate())

		tooSmall := valid
		tooSmall.MinChainSize = 1
		assert.ErrorContains(t, tooSmall.Validate(), "min_chain_size must be at least 2")

		inverted := valid
		inverted.MaxChainSize = 1
		assert.ErrorContains(t, inverted.Validate(), "max_chain_size must not be smaller")

		threshold := valid
		threshold.ConfidenceThreshold = 1.5
		assert.ErrorContains(t, threshold.Validate(), "confidence_threshold")

		retries := valid
		retries.MaxRetryAttempts = -1
		assert.ErrorContains(t, retries.Validate(), "max_retry_attempts")
	})

	t.Run("Verification Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Verification
		assert.NoError(t, valid.Validate())

		noTimeout := valid
		noTimeout.Tier3Timeout = 0
		assert.ErrorContains(t, noTimeout.Validate(), "tier2_timeout and tier3_timeout")

		confidence := valid
		confidence.Tier2MinConfidence = -0.1
		assert.ErrorContains(t, confidence.Validate(), "tier2_min_confidence")
	})

	t.Run("LLM Validation", func(t *testing.T) {
		valid := NewDefaultConfig().LLM
		assert.NoError(t, valid.Validate())

		burst := valid
		burst.RateLimit = 5
		burst.RateBurst = 0
		assert.ErrorContains(t, burst.Validate(), "rate_burst")

		provider := valid
		provider.Models = map[string]LLMModelConfig{"gpt": {Provider: "openai"}}
		assert.ErrorContains(t, provider.Validate(), "unsupported provider")
	})

	t.Run("Top Level Wrapping", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Server.Address = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server configuration invalid")

		cfg = NewDefaultConfig()
		cfg.Engine.WorkerConcurrency = 0
		assert.ErrorContains(t, cfg.Validate(), "worker_concurrency")

		cfg = NewDefaultConfig()
		cfg.Observability.SampleRatio = 2
		assert.ErrorContains(t, cfg.Validate(), "sample_ratio")
	})
}

func TestModelConfig(t *testing.T) {
	l := LLMRouterConfig{
		APIKey:     "shared",
		APITimeout: 5 * time.Second,
		Models: map[string]LLMModelConfig{
			"custom": {Model: "gemini-custom", APIKey: "own", TopK: 7},
		},
	}

	synth := l.ModelConfig("gemini-2.5-flash")
	assert.Equal(t, ProviderGemini, synth.Provider)
	assert.Equal(t, "gemini-2.5-flash", synth.Model)
	assert.Equal(t, "shared", synth.APIKey)
	assert.Equal(t, 5*time.Second, synth.APITimeout)

	custom := l.ModelConfig("custom")
	assert.Equal(t, "gemini-custom", custom.Model)
	assert.Equal(t, "own", custom.APIKey)
	assert.Equal(t, 7, custom.TopK)
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
chain:
  max_chain_size: 6
  allow_trailing_click: true
verification:
  tier3_timeout: 2m
llm:
  models:
    gemini-2.5-pro:
      top_k: 40
      max_tokens: 4096
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, 6, cfg.Chain.MaxChainSize)
		assert.True(t, cfg.Chain.AllowTrailingClick)
		assert.Equal(t, 2*time.Minute, cfg.Verification.Tier3Timeout)
		assert.Equal(t, 40, cfg.LLM.Models["gemini-2.5-pro"].TopK)
		// Defaults survive alongside file values.
		assert.Equal(t, 2, cfg.Chain.MinChainSize)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("chain.min_chain_size", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "min_chain_size must be at least 2")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		t.Setenv("TANDEM_LLM_API_KEY", "env-key-123")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "env-key-123", cfg.LLM.APIKey)
	})

	t.Run("Provider Fallback Variable", func(t *testing.T) {
		t.Setenv("TANDEM_LLM_API_KEY", "")
		t.Setenv("GEMINI_API_KEY", "gemini-key")

		v := viper.New()
		SetDefaults(v)
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "gemini-key", cfg.LLM.APIKey)
	})
}
