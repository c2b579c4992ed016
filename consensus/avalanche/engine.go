package avalanche

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/cmwaters/cunner/consensus"
	"github.com/cmwaters/cunner/tx"
	"github.com/rs/zerolog"
)

var _ consensus.Engine = &Engine{}

// Operational phases
const (
	Off = false
	On  = true
)

// Engine runs an in process network of avalanche voting nodes behind the
// consensus.Engine interface. Transactions observed by the host are handed to
// one of the local nodes and from there spread through the network by
// queries. Every node's decision is reported through the DecideFn option.
type Engine struct {
	network *Network

	// status tracks if the engine is running or not.
	status atomic.Bool

	// The following are used for managing the lifecycle of the engine
	mtx    sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	logger zerolog.Logger
}

// New creates an engine with the given number of local nodes
func New(nodes int, params Parameters, opts ...Option) (*Engine, error) {
	network, err := NewNetwork(nodes, params, opts...)
	if err != nil {
		return nil, err
	}
	return &Engine{
		network: network,
		logger:  network.logger,
	}, nil
}

// AddTransaction implements consensus.Engine. The entry node is derived from
// the hash so that repeated calls for the same transaction land on the same
// node and are ignored there.
func (e *Engine) AddTransaction(t tx.Transaction) {
	hash := t.Hash()
	id := NodeID(binary.LittleEndian.Uint64(hash[:8]) % uint64(e.network.Size()))
	if err := e.network.Submit(id, t); err != nil {
		e.logger.Error().Err(err).Msg("adding transaction")
		return
	}
	e.logger.Debug().
		Str("hash", hash.Short()).
		Uint64("node", uint64(id)).
		Msg("added transaction")
}

// Run implements consensus.Engine. It blocks until the context is cancelled,
// Stop is called or a node hits an unrecoverable error.
func (e *Engine) Run(ctx context.Context) error {
	e.mtx.Lock()
	if !e.status.CompareAndSwap(Off, On) {
		e.mtx.Unlock()
		return consensus.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel, e.done = cancel, done
	e.mtx.Unlock()
	defer func() {
		cancel()
		e.status.Store(Off)
		close(done)
	}()

	e.logger.Info().
		Int("nodes", e.network.Size()).
		Int("samples", e.network.params.Samples).
		Msg("starting avalanche engine")
	err := e.network.Run(ctx)
	if consensus.IsUnrecoverable(err) {
		e.logger.Error().Err(err).Msg("shutting down avalanche engine")
	}
	return err
}

// Stop cancels a running engine and waits for it to exit
func (e *Engine) Stop() error {
	e.mtx.Lock()
	if !e.status.Load() {
		e.mtx.Unlock()
		return consensus.ErrNotRunning
	}
	cancel, done := e.cancel, e.done
	e.mtx.Unlock()
	cancel()
	<-done
	return nil
}

func (e *Engine) IsRunning() bool {
	return e.status.Load()
}

// Network exposes the underlying dispatcher, mostly for inspection
func (e *Engine) Network() *Network {
	return e.network
}
