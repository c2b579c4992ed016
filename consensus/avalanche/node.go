package avalanche

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cmwaters/cunner/consensus"
	"github.com/cmwaters/cunner/tx"
)

// ErrUnknownTransaction is returned when a node receives a response for a
// transaction it never queried. Every response answers a query the node
// itself sent so this can only happen if messages are misrouted.
var ErrUnknownTransaction = errors.New("response for unknown transaction")

// SendFn hands an outbound message to the dispatcher. It must not block.
type SendFn func(Message)

// Node is a single voting participant. It holds an independent mempool of
// voting state and never reads the state of other nodes. All handlers run to
// completion under the node's lock and communicate only by sending messages.
type Node struct {
	id     NodeID
	params Parameters
	verify tx.VerifyFunc
	send   SendFn

	mtx     sync.Mutex
	mempool map[tx.Hash]*TxState

	// offline nodes can not be delivered to
	offline atomic.Bool
}

// NewNode creates a node. A nil verify uses tx.Verify.
func NewNode(id NodeID, params Parameters, verify tx.VerifyFunc, send SendFn) *Node {
	if verify == nil {
		verify = tx.Verify
	}
	if send == nil {
		send = func(Message) {}
	}
	return &Node{
		id:      id,
		params:  params,
		verify:  verify,
		send:    send,
		mempool: make(map[tx.Hash]*TxState),
	}
}

func (n *Node) ID() NodeID { return n.id }

// Submit introduces a transaction at this node. The node forms its own opinion
// using its verify function and starts querying peers. Returns false if the
// transaction was already known, in which case nothing changes.
func (n *Node) Submit(t tx.Transaction) bool {
	hash := t.Hash()
	n.mtx.Lock()
	if _, ok := n.mempool[hash]; ok {
		n.mtx.Unlock()
		return false
	}
	status := n.verify(t)
	n.mempool[hash] = newTxState(t, hash, status)
	n.mtx.Unlock()

	n.send(QueryMessage(t, status))
	return true
}

// OnQuery handles a query from a peer. A node seeing the transaction for the
// first time adopts the color of the querying peer and begins querying on its
// own. In all cases the node responds with its current color.
func (n *Node) OnQuery(origin NodeID, q Query) {
	hash := q.Tx.Hash()
	n.mtx.Lock()
	state, seen := n.mempool[hash]
	if !seen {
		state = newTxState(q.Tx, hash, q.Status)
		n.mempool[hash] = state
	}
	status := state.status
	n.mtx.Unlock()

	if !seen {
		n.send(QueryMessage(q.Tx, status))
	}
	n.send(ResponseMessage(origin, hash, status))
}

// OnQueryResponse records a peer's color. If the response finalizes the
// transaction the decision is returned. Otherwise the node queries again.
func (n *Node) OnQueryResponse(r QueryResponse) (*consensus.Decision, error) {
	n.mtx.Lock()
	state, ok := n.mempool[r.Hash]
	if !ok {
		n.mtx.Unlock()
		return nil, fmt.Errorf("node %d: %w %s", n.id, ErrUnknownTransaction, r.Hash)
	}
	if state.final {
		n.mtx.Unlock()
		return nil, nil
	}
	out := state.record(r.Status, n.params)
	t, status := state.tx, state.status
	n.mtx.Unlock()

	if out.final {
		return &consensus.Decision{
			Node:   uint64(n.id),
			Hash:   r.Hash,
			Status: status,
		}, nil
	}
	n.send(QueryMessage(t, status))
	return nil, nil
}

// State returns a snapshot of the node's voting state for a transaction
func (n *Node) State(hash tx.Hash) (Snapshot, bool) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	state, ok := n.mempool[hash]
	if !ok {
		return Snapshot{}, false
	}
	return state.Snapshot(), true
}

// IsFinal reports whether the node has decided on the transaction
func (n *Node) IsFinal(hash tx.Hash) bool {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	state, ok := n.mempool[hash]
	return ok && state.final
}

// Len returns the number of transactions in the node's mempool
func (n *Node) Len() int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return len(n.mempool)
}

// Online reports whether messages can currently be delivered to the node
func (n *Node) Online() bool {
	return !n.offline.Load()
}
