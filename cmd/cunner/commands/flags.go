package commands

import (
	"github.com/cmwaters/cunner/consensus/avalanche"
	"github.com/spf13/pflag"
)

// addAvalancheFlags registers the protocol parameters under the avalanche.
// prefix so that they decode into the nested Parameters struct
func addAvalancheFlags(fs *pflag.FlagSet, params avalanche.Parameters) {
	fs.Int("avalanche.samples", params.Samples, "Peers queried in every round")
	fs.Float64("avalanche.threshold", params.Threshold, "Fraction of samples that form a quorum")
	fs.Float64("avalanche.conviction-threshold", params.ConvictionThreshold, "Fraction of samples a quorum streak must exceed to advance an epoch")
	fs.Uint32("avalanche.max-epochs", params.MaxEpochs, "Epochs after which a transaction is final")
	fs.Duration("avalanche.round-timeout", params.RoundTimeout, "Time before an unanswered round samples more peers (0 disables)")
}
