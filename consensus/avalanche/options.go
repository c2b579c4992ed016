package avalanche

import (
	"math/rand"
	"time"

	"github.com/cmwaters/cunner/consensus"
	"github.com/cmwaters/cunner/tx"
	"github.com/rs/zerolog"
)

// Option is a set of configurable parameters shared by the Network and the
// Engine. If left empty, defaults will be used
type Option func(o *options)

type options struct {
	rand    Rand
	verify  tx.VerifyFunc
	decide  consensus.DecideFn
	clock   func() time.Time
	logger  zerolog.Logger
	metrics *Metrics
}

func defaultOptions() *options {
	return &options{
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		verify: tx.Verify,
		decide: func(consensus.Decision) {},
		clock:  time.Now,
		logger: zerolog.Nop(),
	}
}

// WithRand sets the source of randomness used for peer sampling. Supplying a
// seeded source makes a run reproducible.
func WithRand(r Rand) Option {
	return func(o *options) {
		o.rand = r
	}
}

// WithVerifyFunc replaces the predicate nodes use on transactions they are the
// first to see
func WithVerifyFunc(f tx.VerifyFunc) Option {
	return func(o *options) {
		o.verify = f
	}
}

// WithDecideFn sets the hook that is called each time a node finalizes a transaction
func WithDecideFn(f consensus.DecideFn) Option {
	return func(o *options) {
		o.decide = f
	}
}

// WithClock replaces time.Now for round deadlines
func WithClock(f func() time.Time) Option {
	return func(o *options) {
		o.clock = f
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records protocol activity to the provided collectors
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
