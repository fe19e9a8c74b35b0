// Package chain decides when several browser actions can be sent to the
// client as one batch, builds those batches, and chooses how to continue when
// a batch stops part way through.
package chain

import "fmt"

const (
	// MinChainSize is the smallest batch ever produced. A single action is
	// never wrapped in a chain.
	MinChainSize = 2
	// MaxChainSize caps every generated chain.
	MaxChainSize = 10
	// ConfidenceThreshold is the minimum analyzer confidence for chaining.
	ConfidenceThreshold = 0.7
	// MinRemainingForChain is the smallest remainder kept as a chain after a
	// skipped action.
	MinRemainingForChain = 2
	// AlternativeRadius bounds the id distance of a retry candidate.
	AlternativeRadius = 10
)

// Options tunes the analyzer, generator and recovery. The zero value is not
// usable; start from DefaultOptions.
type Options struct {
	MinChainSize         int
	MaxChainSize         int
	ConfidenceThreshold  float64
	MinRemainingForChain int
	AlternativeRadius    int
	// AllowTrailingClick accepts a final click (usually the submit button)
	// after a run of input actions.
	AllowTrailingClick bool
}

// DefaultOptions returns the built-in thresholds.
func DefaultOptions() Options {
	return Options{
		MinChainSize:         MinChainSize,
		MaxChainSize:         MaxChainSize,
		ConfidenceThreshold:  ConfidenceThreshold,
		MinRemainingForChain: MinRemainingForChain,
		AlternativeRadius:    AlternativeRadius,
	}
}

// Validate checks the options for internal consistency.
func (o Options) Validate() error {
	if o.MinChainSize < 2 {
		return fmt.Errorf("chain: min chain size must be at least 2, got %d", o.MinChainSize)
	}
	if o.MaxChainSize < o.MinChainSize {
		return fmt.Errorf("chain: max chain size (%d) is below min chain size (%d)", o.MaxChainSize, o.MinChainSize)
	}
	if o.ConfidenceThreshold <= 0 || o.ConfidenceThreshold > 1 {
		return fmt.Errorf("chain: confidence threshold must be in (0, 1], got %v", o.ConfidenceThreshold)
	}
	if o.MinRemainingForChain < 2 {
		return fmt.Errorf("chain: min remaining for chain must be at least 2, got %d", o.MinRemainingForChain)
	}
	if o.AlternativeRadius < 0 {
		return fmt.Errorf("chain: alternative radius must not be negative, got %d", o.AlternativeRadius)
	}
	return nil
}
