// Package solo implements the simplest possible engine: a single node that
// accepts every transaction it sees and periodically batches the pending ones
// into a block. It performs no validation and exists as an example of how an
// engine plugs into a node.
package solo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmwaters/cunner/consensus"
	"github.com/cmwaters/cunner/tx"
	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
)

const (
	DefaultBlockInterval = 15 * time.Second

	// DefaultSeenCacheSize bounds how many transaction hashes are remembered
	// for ignoring duplicates
	DefaultSeenCacheSize = 10000
)

var _ consensus.Engine = &Engine{}

// Operational phases
const (
	Off = false
	On  = true
)

type Engine struct {
	interval time.Duration
	relay    consensus.RelayFn

	mtx     sync.Mutex
	pending []tx.Transaction
	seen    *lru.Cache
	height  uint32
	rand    *rand.Rand

	// status tracks if the engine is running or not.
	status atomic.Bool

	logger zerolog.Logger
}

// Option is a set of configurable parameters. If left empty, defaults
// will be used
type Option func(e *Engine)

func WithBlockInterval(interval time.Duration) Option {
	return func(e *Engine) {
		e.interval = interval
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSeed makes block nonces reproducible
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.rand = rand.New(rand.NewSource(seed))
	}
}

// New creates a solo engine that hands every block it produces to relay
func New(relay consensus.RelayFn, opts ...Option) (*Engine, error) {
	seen, err := lru.New(DefaultSeenCacheSize)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		interval: DefaultBlockInterval,
		relay:    relay,
		seen:     seen,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.interval <= 0 {
		return nil, fmt.Errorf("block interval must be positive, got %v", e.interval)
	}
	return e, nil
}

// AddTransaction implements consensus.Engine. There is no validation, every
// transaction not seen before is included in the next block.
func (e *Engine) AddTransaction(t tx.Transaction) {
	hash := t.Hash()
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if ok, _ := e.seen.ContainsOrAdd(hash, struct{}{}); ok {
		return
	}
	e.pending = append(e.pending, t)
	e.logger.Debug().Str("hash", hash.Short()).Int("pending", len(e.pending)).Msg("added transaction")
}

// Run implements consensus.Engine. Every block interval the pending
// transactions are proposed as a block and relayed.
func (e *Engine) Run(ctx context.Context) error {
	if !e.status.CompareAndSwap(Off, On) {
		return consensus.ErrAlreadyRunning
	}
	defer e.status.CompareAndSwap(On, Off)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	e.logger.Info().Dur("interval", e.interval).Msg("starting solo engine")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			block := e.Propose()
			if block == nil {
				continue
			}
			e.logger.Info().
				Uint32("index", block.Index).
				Int("txs", len(block.Transactions)).
				Msg("proposed block")
			if e.relay == nil {
				continue
			}
			if err := e.relay(ctx, block); err != nil {
				return fmt.Errorf("relaying block %d: %w", block.Index, err)
			}
		}
	}
}

// Propose drains the pending transactions into a new block. It returns nil
// when nothing is pending.
func (e *Engine) Propose() *tx.Block {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if len(e.pending) == 0 {
		return nil
	}
	block := tx.NewBlock(e.height, e.rand, e.pending)
	e.height = block.Index
	e.pending = nil
	return block
}

// Height returns the index of the last proposed block
func (e *Engine) Height() uint32 {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.height
}

func (e *Engine) IsRunning() bool {
	return e.status.Load()
}
