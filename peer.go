package cunner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cmwaters/cunner/consensus"
	"github.com/cmwaters/cunner/consensus/avalanche"
	"github.com/cmwaters/cunner/network"
	"github.com/cmwaters/cunner/store"
	"github.com/cmwaters/cunner/tx"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// incomingBuffer is how many gossiped transactions may wait for the engine
const incomingBuffer = 32

// Operational phases
const (
	Off = false
	On  = true
)

var (
	_ network.Notifiee = (*Peer)(nil)

	ErrPeerRunning = errors.New("peer already running")
)

// Peer joins a gossip network and feeds everything it hears into a consensus
// engine. While it has peers it periodically creates transactions of its
// own. Blocks produced by the engine are gossiped and together with
// decisions persisted in the store.
type Peer struct {
	cfg    Config
	engine consensus.Engine
	gossip network.Gossip
	ledger *store.Ledger

	// incoming decouples receiving transactions from the engine
	incoming chan tx.Transaction
	rand     *rand.Rand

	status atomic.Bool

	metrics *avalanche.Metrics
	logger  zerolog.Logger
}

// Option is a set of configurable parameters. If left empty, defaults
// will be used
type Option func(p *Peer)

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Peer) {
		p.logger = logger
	}
}

// WithSeed makes the transactions the peer emits reproducible
func WithSeed(seed int64) Option {
	return func(p *Peer) {
		p.rand = rand.New(rand.NewSource(seed))
	}
}

// WithMetrics records avalanche activity
func WithMetrics(m *avalanche.Metrics) Option {
	return func(p *Peer) {
		p.metrics = m
	}
}

// NewPeer creates the engine described by cfg and registers with the gossip.
// The peer takes ownership of both the gossip and the store.
func NewPeer(cfg Config, gossip network.Gossip, st store.Store, opts ...Option) (*Peer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Peer{
		cfg:      cfg,
		gossip:   gossip,
		ledger:   store.NewLedger(st),
		incoming: make(chan tx.Transaction, incomingBuffer),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	engine, err := NewEngine(cfg, Hooks{
		Relay:   p.relay,
		Decide:  p.decide,
		Metrics: p.metrics,
	}, p.logger)
	if err != nil {
		return nil, err
	}
	p.engine = engine
	gossip.Notify(p)
	return p, nil
}

// Run starts the engine and the peer's own loops. It blocks until the
// context is cancelled, in which case it returns nil, or until one of them
// fails.
func (p *Peer) Run(ctx context.Context) error {
	if !p.status.CompareAndSwap(Off, On) {
		return ErrPeerRunning
	}
	defer p.status.Store(Off)

	p.logger.Info().
		Str("engine", p.cfg.Engine).
		Str("namespace", p.cfg.Namespace).
		Msg("starting peer")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.engine.Run(gctx)
	})
	g.Go(func() error {
		return p.forward(gctx)
	})
	if p.cfg.EmitInterval > 0 {
		g.Go(func() error {
			return p.emit(gctx)
		})
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// forward hands received transactions to the engine
func (p *Peer) forward(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-p.incoming:
			p.engine.AddTransaction(t)
		}
	}
}

func (p *Peer) emit(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.EmitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if p.gossip.Peers() == 0 {
				p.logger.Debug().Msg("no peers, skipping transaction emission")
				continue
			}
			t := tx.Random(p.rand)
			if err := p.gossip.BroadcastTransaction(ctx, &t); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Error().Err(err).Stringer("tx", t).Msg("broadcasting transaction")
				continue
			}
			p.logger.Debug().Str("hash", t.Hash().Short()).Msg("emitted transaction")
		}
	}
}

// OnTransaction implements network.Notifiee. Transactions are never rejected
// here, deciding on them is the engine's job.
func (p *Peer) OnTransaction(ctx context.Context, t *tx.Transaction) error {
	select {
	case p.incoming <- *t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnBlock implements network.Notifiee
func (p *Peer) OnBlock(_ context.Context, b *tx.Block) error {
	p.logger.Info().
		Uint32("index", b.Index).
		Int("txs", len(b.Transactions)).
		Msg("received block")
	return nil
}

// relay persists a block produced by the engine and gossips it
func (p *Peer) relay(ctx context.Context, b *tx.Block) error {
	if err := p.ledger.SaveBlock(b); err != nil {
		return fmt.Errorf("saving block: %w", err)
	}
	if p.gossip.Peers() == 0 {
		return nil
	}
	if err := p.gossip.BroadcastBlock(ctx, b); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Error().Err(err).Uint32("index", b.Index).Msg("broadcasting block")
	}
	return nil
}

func (p *Peer) decide(d consensus.Decision) {
	if err := p.ledger.SaveDecision(d); err != nil {
		p.logger.Error().Err(err).Stringer("decision", d).Msg("saving decision")
		return
	}
	p.logger.Debug().
		Uint64("node", d.Node).
		Str("hash", d.Hash.Short()).
		Stringer("status", d.Status).
		Msg("decided")
}

func (p *Peer) Engine() consensus.Engine { return p.engine }

func (p *Peer) Ledger() *store.Ledger { return p.ledger }

func (p *Peer) IsRunning() bool { return p.status.Load() }

// Close releases the gossip and the store. The peer must not be running.
func (p *Peer) Close() error {
	return errors.Join(p.gossip.Close(), p.ledger.Store().Close())
}
