// File: internal/config/chain_config.go
// This file defines the tunables for action chaining, chain recovery and the
// tiered verification pipeline. The defaults mirror the constants in the
// chain package so an empty config file behaves like the library defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ChainConfig holds settings for chain analysis, generation and recovery.
type ChainConfig struct {
	MinChainSize         int     `mapstructure:"min_chain_size" yaml:"min_chain_size"`
	MaxChainSize         int     `mapstructure:"max_chain_size" yaml:"max_chain_size"`
	ConfidenceThreshold  float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	MinRemainingForChain int     `mapstructure:"min_remaining_for_chain" yaml:"min_remaining_for_chain"`
	AlternativeRadius    int     `mapstructure:"alternative_radius" yaml:"alternative_radius"`
	MaxRetryAttempts     int     `mapstructure:"max_retry_attempts" yaml:"max_retry_attempts"`
	AllowTrailingClick   bool    `mapstructure:"allow_trailing_click" yaml:"allow_trailing_click"`
}

// VerificationConfig holds settings for Tier 2 and Tier 3 model calls.
type VerificationConfig struct {
	Tier2Timeout         time.Duration `mapstructure:"tier2_timeout" yaml:"tier2_timeout"`
	Tier3Timeout         time.Duration `mapstructure:"tier3_timeout" yaml:"tier3_timeout"`
	Tier2MinConfidence   float64       `mapstructure:"tier2_min_confidence" yaml:"tier2_min_confidence"`
	Tier2MaxOutputTokens int           `mapstructure:"tier2_max_output_tokens" yaml:"tier2_max_output_tokens"`
	Tier3MaxOutputTokens int           `mapstructure:"tier3_max_output_tokens" yaml:"tier3_max_output_tokens"`
	// DOMExcerptChars bounds the DOM window sent to the Tier 3 model.
	DOMExcerptChars int `mapstructure:"dom_excerpt_chars" yaml:"dom_excerpt_chars"`
}

func setChainDefaults(v *viper.Viper) {
	v.SetDefault("chain.min_chain_size", 2)
	v.SetDefault("chain.max_chain_size", 10)
	v.SetDefault("chain.confidence_threshold", 0.7)
	v.SetDefault("chain.min_remaining_for_chain", 2)
	v.SetDefault("chain.alternative_radius", 10)
	v.SetDefault("chain.max_retry_attempts", 2)
	v.SetDefault("chain.allow_trailing_click", false)

	v.SetDefault("verification.tier2_timeout", "10s")
	v.SetDefault("verification.tier3_timeout", "45s")
	v.SetDefault("verification.tier2_min_confidence", 0.7)
	v.SetDefault("verification.tier2_max_output_tokens", 256)
	v.SetDefault("verification.tier3_max_output_tokens", 1024)
	v.SetDefault("verification.dom_excerpt_chars", 6000)
}

// Validate checks the ChainConfig settings.
func (c *ChainConfig) Validate() error {
	if c.MinChainSize < 2 {
		return fmt.Errorf("min_chain_size must be at least 2")
	}
	if c.MaxChainSize < c.MinChainSize {
		return fmt.Errorf("max_chain_size must not be smaller than min_chain_size")
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in (0.0, 1.0]")
	}
	if c.MinRemainingForChain < 1 {
		return fmt.Errorf("min_remaining_for_chain must be a positive integer")
	}
	if c.AlternativeRadius < 0 {
		return fmt.Errorf("alternative_radius must not be negative")
	}
	if c.MaxRetryAttempts < 0 {
		return fmt.Errorf("max_retry_attempts must not be negative")
	}
	return nil
}

// Validate checks the VerificationConfig settings.
func (vc *VerificationConfig) Validate() error {
	if vc.Tier2Timeout <= 0 || vc.Tier3Timeout <= 0 {
		return fmt.Errorf("tier2_timeout and tier3_timeout must be positive durations")
	}
	if vc.Tier2MinConfidence < 0 || vc.Tier2MinConfidence > 1 {
		return fmt.Errorf("tier2_min_confidence must be between 0.0 and 1.0")
	}
	if vc.Tier2MaxOutputTokens <= 0 || vc.Tier3MaxOutputTokens <= 0 {
		return fmt.Errorf("tier2_max_output_tokens and tier3_max_output_tokens must be positive integers")
	}
	if vc.DOMExcerptChars <= 0 {
		return fmt.Errorf("dom_excerpt_chars must be a positive integer")
	}
	return nil
}
