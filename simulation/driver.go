// Package simulation drives an in process avalanche network with generated
// transactions and reports what every node decided.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/cmwaters/cunner/consensus"
	"github.com/cmwaters/cunner/consensus/avalanche"
	"github.com/cmwaters/cunner/tx"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config describes a simulation run
type Config struct {
	// Nodes is the size of the network
	Nodes int `mapstructure:"nodes"`

	// Transactions is how many transactions are injected. Zero keeps
	// injecting until the context is cancelled.
	Transactions int `mapstructure:"transactions"`

	// Interval is the pause between injections in Run
	Interval time.Duration `mapstructure:"interval"`

	// Seed makes transaction generation and peer sampling reproducible
	Seed int64 `mapstructure:"seed"`

	Params avalanche.Parameters `mapstructure:"avalanche"`
}

func DefaultConfig() Config {
	return Config{
		Nodes:        10,
		Transactions: 10,
		Interval:     100 * time.Millisecond,
		Seed:         time.Now().UnixNano(),
		Params:       avalanche.DefaultParameters(),
	}
}

func (c Config) Validate() error {
	if c.Nodes < 2 {
		return fmt.Errorf("simulation needs at least two nodes, got %d", c.Nodes)
	}
	if c.Transactions < 0 {
		return fmt.Errorf("transactions can not be negative, got %d", c.Transactions)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Interval)
	}
	return c.Params.Validate()
}

// Driver manufactures transactions, injects them into random nodes and
// collects the decisions.
type Driver struct {
	cfg     Config
	network *avalanche.Network
	rand    *rand.Rand
	logger  zerolog.Logger

	mtx       sync.Mutex
	injected  []tx.Transaction
	decisions map[tx.Hash]map[avalanche.NodeID]tx.Status
	decided   int
	signal    chan struct{}
}

// New creates a driver and its network. Additional options are passed to the network.
func New(cfg Config, logger zerolog.Logger, opts ...avalanche.Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		cfg:       cfg,
		rand:      rand.New(rand.NewSource(cfg.Seed)),
		logger:    logger,
		decisions: make(map[tx.Hash]map[avalanche.NodeID]tx.Status),
		signal:    make(chan struct{}, 1),
	}
	opts = append([]avalanche.Option{
		avalanche.WithRand(rand.New(rand.NewSource(cfg.Seed + 1))),
		avalanche.WithLogger(logger),
	}, opts...)
	// the driver always collects decisions
	opts = append(opts, avalanche.WithDecideFn(d.record))
	network, err := avalanche.NewNetwork(cfg.Nodes, cfg.Params, opts...)
	if err != nil {
		return nil, err
	}
	d.network = network
	return d, nil
}

func (d *Driver) Network() *avalanche.Network { return d.network }

// Run injects a transaction every interval while the network runs
// concurrently. It returns once every node decided on every injected
// transaction. If Transactions is zero it runs until the context is
// cancelled and returns without error.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return d.network.Run(gctx)
	})
	g.Go(func() error {
		return d.inject(gctx)
	})
	g.Go(func() error {
		if d.await(gctx) {
			cancel()
		}
		return nil
	})
	err := g.Wait()

	report := d.report(time.Since(start))
	switch {
	case d.cfg.Transactions > 0 && report.Complete():
		return report, nil
	case ctx.Err() != nil:
		if d.cfg.Transactions == 0 {
			return report, nil
		}
		return report, ctx.Err()
	default:
		return report, err
	}
}

// Settle injects every transaction at once and then drains the network
// synchronously. For a given seed the result is always the same.
func (d *Driver) Settle() (*Report, error) {
	if d.cfg.Transactions == 0 {
		return nil, errors.New("settle needs a fixed number of transactions")
	}
	start := time.Now()
	for i := 0; i < d.cfg.Transactions; i++ {
		if err := d.injectOne(); err != nil {
			return nil, err
		}
	}
	err := d.network.Drain()
	return d.report(time.Since(start)), err
}

func (d *Driver) inject(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for i := 0; d.cfg.Transactions == 0 || i < d.cfg.Transactions; i++ {
		if err := d.injectOne(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func (d *Driver) injectOne() error {
	d.mtx.Lock()
	t := tx.Random(d.rand)
	id := avalanche.NodeID(d.rand.Intn(d.cfg.Nodes))
	d.injected = append(d.injected, t)
	d.mtx.Unlock()

	d.logger.Debug().
		Str("hash", t.Hash().Short()).
		Int32("payload", t.Payload).
		Uint64("node", uint64(id)).
		Msg("injecting transaction")
	return d.network.Submit(id, t)
}

// await blocks until every node decided on every transaction. It returns false
// if the context ended first.
func (d *Driver) await(ctx context.Context) bool {
	if d.cfg.Transactions == 0 {
		<-ctx.Done()
		return false
	}
	target := d.cfg.Transactions * d.cfg.Nodes
	for {
		d.mtx.Lock()
		decided := d.decided
		d.mtx.Unlock()
		if decided >= target {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-d.signal:
		}
	}
}

func (d *Driver) record(decision consensus.Decision) {
	d.mtx.Lock()
	nodes, ok := d.decisions[decision.Hash]
	if !ok {
		nodes = make(map[avalanche.NodeID]tx.Status)
		d.decisions[decision.Hash] = nodes
	}
	nodes[avalanche.NodeID(decision.Node)] = decision.Status
	d.decided++
	d.mtx.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *Driver) report(elapsed time.Duration) *Report {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	r := &Report{
		Nodes:     d.cfg.Nodes,
		Elapsed:   elapsed,
		Injected:  make([]tx.Transaction, len(d.injected)),
		Decisions: make(map[tx.Hash]map[avalanche.NodeID]tx.Status, len(d.decisions)),
	}
	copy(r.Injected, d.injected)
	for hash, nodes := range d.decisions {
		copied := make(map[avalanche.NodeID]tx.Status, len(nodes))
		for id, status := range nodes {
			copied[id] = status
		}
		r.Decisions[hash] = copied
	}
	return r
}

// Report summarises the decisions made during a simulation
type Report struct {
	Nodes     int
	Elapsed   time.Duration
	Injected  []tx.Transaction
	Decisions map[tx.Hash]map[avalanche.NodeID]tx.Status
}

// Outcome returns the color every node decided for the transaction. ok is
// false if some node has not decided yet or nodes disagree.
func (r *Report) Outcome(hash tx.Hash) (status tx.Status, ok bool) {
	nodes := r.Decisions[hash]
	if len(nodes) != r.Nodes {
		return tx.Invalid, false
	}
	first := true
	for _, s := range nodes {
		if first {
			status, first = s, false
			continue
		}
		if s != status {
			return tx.Invalid, false
		}
	}
	return status, true
}

// Complete reports whether every node agreed on every injected transaction
func (r *Report) Complete() bool {
	for _, t := range r.Injected {
		if _, ok := r.Outcome(t.Hash()); !ok {
			return false
		}
	}
	return len(r.Injected) > 0
}

// Log writes one line per injected transaction
func (r *Report) Log(logger zerolog.Logger) {
	injected := make([]tx.Transaction, len(r.Injected))
	copy(injected, r.Injected)
	sort.Slice(injected, func(i, j int) bool { return injected[i].Nonce < injected[j].Nonce })
	for _, t := range injected {
		hash := t.Hash()
		status, agreed := r.Outcome(hash)
		logger.Info().
			Str("hash", hash.Short()).
			Int32("payload", t.Payload).
			Int("decided", len(r.Decisions[hash])).
			Bool("agreed", agreed).
			Stringer("status", status).
			Msg("transaction")
	}
	logger.Info().
		Int("nodes", r.Nodes).
		Int("transactions", len(r.Injected)).
		Bool("complete", r.Complete()).
		Dur("elapsed", r.Elapsed).
		Msg("simulation finished")
}
