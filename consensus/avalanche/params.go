package avalanche

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Default protocol parameters
const (
	DefaultSamples             = 4
	DefaultThreshold           = 0.75
	DefaultConvictionThreshold = 0.75
	DefaultMaxEpochs           = 4
	DefaultRoundTimeout        = 2 * time.Second
)

// epsilon absorbs floating point error when a fraction of the sample size
// should land exactly on an integer (e.g. 0.7 * 10)
const epsilon = 1e-9

// Parameters are the tunable constants of the protocol. They are fixed for the
// lifetime of a network and should be the same for every node within it.
type Parameters struct {
	// Samples is the amount of peers queried in every round
	Samples int `mapstructure:"samples"`

	// Threshold is the fraction of Samples that must agree on a color within a
	// round for that round to count as a quorum
	Threshold float64 `mapstructure:"threshold"`

	// ConvictionThreshold is the fraction of Samples that a streak of consecutive
	// same colored quorums must exceed before the node advances its epoch
	ConvictionThreshold float64 `mapstructure:"conviction-threshold"`

	// MaxEpochs is the number of epoch advances after which a transaction is final
	MaxEpochs uint32 `mapstructure:"max-epochs"`

	// RoundTimeout is how long a query round may go without a follow up query
	// before the dispatcher samples additional peers on its behalf. Zero disables
	// round deadlines.
	RoundTimeout time.Duration `mapstructure:"round-timeout"`
}

// DefaultParameters returns the parameters used by the reference network
func DefaultParameters() Parameters {
	return Parameters{
		Samples:             DefaultSamples,
		Threshold:           DefaultThreshold,
		ConvictionThreshold: DefaultConvictionThreshold,
		MaxEpochs:           DefaultMaxEpochs,
		RoundTimeout:        DefaultRoundTimeout,
	}
}

// Quorum is the minimum number of same colored responses, ⌈Threshold × Samples⌉
func (p Parameters) Quorum() int {
	return int(math.Ceil(p.Threshold*float64(p.Samples) - epsilon))
}

// ConvictionLimit is the streak length that conviction must exceed to advance
// an epoch, ⌈ConvictionThreshold × Samples⌉
func (p Parameters) ConvictionLimit() uint32 {
	return uint32(math.Ceil(p.ConvictionThreshold*float64(p.Samples) - epsilon))
}

// Validate returns an error if the parameters can never lead to a decision
func (p Parameters) Validate() error {
	if p.Samples <= 0 {
		return fmt.Errorf("samples must be positive, got %d", p.Samples)
	}
	if p.Threshold <= 0 || p.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %v", p.Threshold)
	}
	if p.ConvictionThreshold <= 0 {
		return fmt.Errorf("conviction threshold must be positive, got %v", p.ConvictionThreshold)
	}
	if p.MaxEpochs == 0 {
		return errors.New("max epochs must be at least 1")
	}
	if p.RoundTimeout < 0 {
		return fmt.Errorf("round timeout can not be negative, got %v", p.RoundTimeout)
	}
	return nil
}
