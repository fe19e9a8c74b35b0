package verification

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/xkilldash9x/tandem/internal/verification"

// Options tunes the model-backed tiers.
type Options struct {
	Tier2Timeout         time.Duration
	Tier3Timeout         time.Duration
	Tier2MinConfidence   float64
	Tier2MaxOutputTokens int
	Tier3MaxOutputTokens int
	DOMExcerptChars      int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Tier2Timeout:         10 * time.Second,
		Tier3Timeout:         45 * time.Second,
		Tier2MinConfidence:   0.7,
		Tier2MaxOutputTokens: 256,
		Tier3MaxOutputTokens: 1024,
		DOMExcerptChars:      6000,
	}
}

// Option configures a model-backed verifier.
type Option func(*settings)

type settings struct {
	tracer trace.Tracer
}

// WithTracer sets the tracer used for model call spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

func applyOptions(opts []Option) settings {
	s := settings{tracer: otel.Tracer(tracerName)}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func namedLogger(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.Named(name)
}
