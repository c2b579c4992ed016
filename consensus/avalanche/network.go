package avalanche

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cmwaters/cunner/consensus"
	"github.com/cmwaters/cunner/tx"
	"github.com/rs/zerolog"
)

var ErrUnknownNode = errors.New("unknown node")

// Network is the dispatcher connecting a fixed set of nodes. Every message a
// node emits lands on a single shared queue which is drained one message at a
// time. Queries are fanned out to a random sample of peers, responses are
// routed back to the node that asked, and transactions are handed to the node
// that received them.
//
// Each query issuance opens a round with a deadline. If the node has not
// queried again for that transaction by the time the deadline passes, the
// dispatcher delivers the same query to peers that were not yet sampled until
// every peer has been asked.
type Network struct {
	params Parameters
	nodes  map[NodeID]*Node
	ids    []NodeID
	inbox  *queue

	// dispatchMtx serializes message handling with round expiry. It guards rounds.
	dispatchMtx sync.Mutex
	rounds      *rounds

	randMtx sync.Mutex
	rand    Rand

	reachMtx    sync.RWMutex
	unreachable map[NodeID]struct{}

	decide  consensus.DecideFn
	clock   func() time.Time
	logger  zerolog.Logger
	metrics *Metrics
}

// NewNetwork creates a network of size nodes with ids 0 through size-1
func NewNetwork(size int, params Parameters, opts ...Option) (*Network, error) {
	if size <= 0 {
		return nil, fmt.Errorf("network must have at least one node, got %d", size)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	n := &Network{
		params:      params,
		nodes:       make(map[NodeID]*Node, size),
		ids:         make([]NodeID, size),
		inbox:       newQueue(),
		rounds:      newRounds(params.RoundTimeout),
		rand:        o.rand,
		unreachable: make(map[NodeID]struct{}),
		decide:      o.decide,
		clock:       o.clock,
		logger:      o.logger,
		metrics:     o.metrics,
	}
	for i := 0; i < size; i++ {
		id := NodeID(i)
		n.ids[i] = id
		n.nodes[id] = NewNode(id, params, o.verify, n.sendFrom(id))
	}
	return n, nil
}

func (n *Network) sendFrom(id NodeID) SendFn {
	return func(m Message) {
		n.inbox.push(envelope{origin: id, msg: m})
	}
}

func (n *Network) Size() int { return len(n.ids) }

// IDs returns the ids of every node in ascending order
func (n *Network) IDs() []NodeID {
	ids := make([]NodeID, len(n.ids))
	copy(ids, n.ids)
	return ids
}

func (n *Network) Node(id NodeID) (*Node, bool) {
	node, ok := n.nodes[id]
	return node, ok
}

func (n *Network) Params() Parameters { return n.params }

// Submit queues a transaction for delivery to the given node
func (n *Network) Submit(id NodeID, t tx.Transaction) error {
	if _, ok := n.nodes[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	n.inbox.push(envelope{origin: id, msg: TransactionMessage(t)})
	return nil
}

// Send queues an arbitrary message as if it had been emitted by origin
func (n *Network) Send(origin NodeID, m Message) error {
	if _, ok := n.nodes[origin]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, origin)
	}
	n.inbox.push(envelope{origin: origin, msg: m})
	return nil
}

// Pending returns the number of undelivered messages
func (n *Network) Pending() int {
	return n.inbox.len()
}

// Disconnect takes a node offline. Messages addressed to it are dropped and
// the first failed delivery excludes it from future samples.
func (n *Network) Disconnect(id NodeID) error {
	node, ok := n.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	node.offline.Store(true)
	return nil
}

// Reconnect brings a node back online and makes it eligible for sampling again
func (n *Network) Reconnect(id NodeID) error {
	node, ok := n.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	node.offline.Store(false)
	n.reachMtx.Lock()
	delete(n.unreachable, id)
	n.reachMtx.Unlock()
	return nil
}

// Unreachable returns the nodes currently excluded from sampling
func (n *Network) Unreachable() []NodeID {
	n.reachMtx.RLock()
	defer n.reachMtx.RUnlock()
	ids := make([]NodeID, 0, len(n.unreachable))
	for id := range n.unreachable {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SamplePeers returns up to k distinct nodes chosen uniformly at random, never
// including exclude or a node known to be unreachable. If fewer than k nodes
// are eligible all of them are returned.
func (n *Network) SamplePeers(exclude NodeID, k int) []NodeID {
	return n.sampleExcluding(k, func(id NodeID) bool { return id == exclude })
}

func (n *Network) sampleExcluding(k int, skip func(NodeID) bool) []NodeID {
	n.reachMtx.RLock()
	candidates := make([]NodeID, 0, len(n.ids))
	for _, id := range n.ids {
		if skip(id) {
			continue
		}
		if _, ok := n.unreachable[id]; ok {
			continue
		}
		candidates = append(candidates, id)
	}
	n.reachMtx.RUnlock()

	n.randMtx.Lock()
	defer n.randMtx.Unlock()
	return sample(n.rand, candidates, k)
}

// Run drains the queue until the context is cancelled or a node reports an
// unrecoverable error. It also expires rounds as their deadlines pass.
func (n *Network) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if n.rounds.enabled() {
		interval := n.params.RoundTimeout / 4
		if interval <= 0 {
			interval = n.params.RoundTimeout
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			n.ExpireRounds(n.clock())
		default:
		}

		ok, err := n.Step()
		if err != nil {
			return err
		}
		if ok {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.inbox.signal:
		case <-tick:
			n.ExpireRounds(n.clock())
		}
	}
}

// Drain handles messages until the queue is empty
func (n *Network) Drain() error {
	for {
		ok, err := n.Step()
		if err != nil || !ok {
			return err
		}
	}
}

// Step handles the next message in the queue. It returns false if the queue was empty.
func (n *Network) Step() (bool, error) {
	n.dispatchMtx.Lock()
	defer n.dispatchMtx.Unlock()
	e, ok := n.inbox.pop()
	if !ok {
		return false, nil
	}
	if err := n.dispatch(e); err != nil {
		return true, consensus.Unrecoverable(fmt.Errorf("dispatching %s from node %d: %w", e.msg, e.origin, err))
	}
	n.metrics.pending(n.inbox.len())
	return true, nil
}

func (n *Network) dispatch(e envelope) error {
	msg := e.msg
	switch {
	case msg.transaction != nil:
		if node := n.deliverable(e.origin); node != nil {
			node.Submit(*msg.transaction)
		}

	case msg.query != nil:
		q := *msg.query
		peers := n.SamplePeers(e.origin, n.params.Samples)
		if origin := n.nodes[e.origin]; !origin.IsFinal(q.Tx.Hash()) {
			n.rounds.start(e.origin, q, peers, n.clock())
		}
		n.deliverQuery(e.origin, q, peers)

	case msg.response != nil:
		r := *msg.response
		node := n.deliverable(r.To)
		if node == nil {
			return nil
		}
		n.metrics.response()
		decision, err := node.OnQueryResponse(r)
		if err != nil {
			return err
		}
		if decision != nil {
			n.rounds.remove(roundKey{origin: r.To, hash: r.Hash})
			n.metrics.decision(decision.Status)
			n.logger.Debug().
				Uint64("node", decision.Node).
				Str("hash", decision.Hash.Short()).
				Stringer("status", decision.Status).
				Msg("transaction finalized")
			n.decide(*decision)
		}

	default:
		return errors.New("empty message")
	}
	return nil
}

func (n *Network) deliverQuery(origin NodeID, q Query, peers []NodeID) {
	delivered := 0
	for _, id := range peers {
		if peer := n.deliverable(id); peer != nil {
			peer.OnQuery(origin, q)
			delivered++
		}
	}
	n.metrics.query(delivered)
}

// deliverable returns the node if a message can be delivered to it. An
// offline node is marked unreachable and nil is returned.
func (n *Network) deliverable(id NodeID) *Node {
	node, ok := n.nodes[id]
	if !ok {
		return nil
	}
	if node.Online() {
		return node
	}
	n.reachMtx.Lock()
	_, known := n.unreachable[id]
	n.unreachable[id] = struct{}{}
	n.reachMtx.Unlock()
	n.metrics.dropped()
	if !known {
		n.logger.Debug().Uint64("node", uint64(id)).Msg("peer unreachable, excluding from samples")
	}
	return nil
}

// ExpireRounds resamples every round whose deadline is at or before now. The
// query is delivered to up to Samples peers that were not sampled before.
// A round with no peers left to ask is abandoned. Expiry never changes a
// node's voting state directly.
func (n *Network) ExpireRounds(now time.Time) {
	n.dispatchMtx.Lock()
	defer n.dispatchMtx.Unlock()

	for _, key := range n.rounds.expired(now) {
		rd, ok := n.rounds.get(key)
		if !ok {
			continue
		}
		origin := n.nodes[key.origin]
		if !origin.Online() || origin.IsFinal(key.hash) {
			n.rounds.remove(key)
			continue
		}
		peers := n.sampleExcluding(n.params.Samples, func(id NodeID) bool {
			if id == key.origin {
				return true
			}
			_, sampled := rd.sampled[id]
			return sampled
		})
		if len(peers) == 0 {
			n.rounds.remove(key)
			n.metrics.abandoned()
			n.logger.Warn().
				Uint64("node", uint64(key.origin)).
				Str("hash", key.hash.Short()).
				Msg("round abandoned, every peer has been sampled")
			continue
		}
		n.rounds.extend(key, peers, now)
		n.metrics.resampled()
		n.logger.Debug().
			Uint64("node", uint64(key.origin)).
			Str("hash", key.hash.Short()).
			Int("peers", len(peers)).
			Msg("round expired, resampling")
		n.deliverQuery(key.origin, rd.query, peers)
	}
}

// OpenRounds returns the number of rounds awaiting a follow up query
func (n *Network) OpenRounds() int {
	n.dispatchMtx.Lock()
	defer n.dispatchMtx.Unlock()
	return n.rounds.len()
}
