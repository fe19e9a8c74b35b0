package engine

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/xkilldash9x/tandem/internal/chain"
	"github.com/xkilldash9x/tandem/internal/config"
	"github.com/xkilldash9x/tandem/internal/verification"
)

const tracerName = "github.com/xkilldash9x/tandem/internal/engine"

// ChainOptions converts the chain section of the configuration.
func ChainOptions(cfg config.ChainConfig) chain.Options {
	return chain.Options{
		MinChainSize:         cfg.MinChainSize,
		MaxChainSize:         cfg.MaxChainSize,
		ConfidenceThreshold:  cfg.ConfidenceThreshold,
		MinRemainingForChain: cfg.MinRemainingForChain,
		AlternativeRadius:    cfg.AlternativeRadius,
		AllowTrailingClick:   cfg.AllowTrailingClick,
	}
}

// VerificationOptions converts the verification section of the configuration.
func VerificationOptions(cfg config.VerificationConfig) verification.Options {
	return verification.Options{
		Tier2Timeout:         cfg.Tier2Timeout,
		Tier3Timeout:         cfg.Tier3Timeout,
		Tier2MinConfidence:   cfg.Tier2MinConfidence,
		Tier2MaxOutputTokens: cfg.Tier2MaxOutputTokens,
		Tier3MaxOutputTokens: cfg.Tier3MaxOutputTokens,
		DOMExcerptChars:      cfg.DOMExcerptChars,
	}
}

// Option configures a Coordinator.
type Option func(*settings)

type settings struct {
	tracer trace.Tracer
	newID  func() string
}

// WithTracer sets the tracer shared by the coordinator and the components it
// builds.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// WithIDSource overrides chain id generation.
func WithIDSource(f func() string) Option {
	return func(s *settings) { s.newID = f }
}

func applyOptions(opts []Option) settings {
	s := settings{tracer: otel.Tracer(tracerName)}
	for _, o := range opts {
		o(&s)
	}
	return s
}
