package network

import (
	"context"
	"errors"
	"sync"

	"github.com/cmwaters/cunner/tx"
)

var ErrClosed = errors.New("gossip closed")

var _ Network = (*LocalNetwork)(nil)

// LocalNetwork is an in memory Network connecting every Gossip created from
// it. Messages go through the same codec as on the wire and are delivered
// synchronously to every gossip on the same namespace, including the sender.
type LocalNetwork struct {
	mtx    sync.RWMutex
	topics map[string]map[*LocalGossip]struct{}
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{
		topics: make(map[string]map[*LocalGossip]struct{}),
	}
}

func (n *LocalNetwork) Gossip(namespace []byte) (Gossip, error) {
	g := &LocalGossip{
		network:   n,
		namespace: string(namespace),
	}
	n.mtx.Lock()
	defer n.mtx.Unlock()
	members, ok := n.topics[g.namespace]
	if !ok {
		members = make(map[*LocalGossip]struct{})
		n.topics[g.namespace] = members
	}
	members[g] = struct{}{}
	return g, nil
}

func (n *LocalNetwork) members(namespace string) []*LocalGossip {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	members := make([]*LocalGossip, 0, len(n.topics[namespace]))
	for g := range n.topics[namespace] {
		members = append(members, g)
	}
	return members
}

func (n *LocalNetwork) leave(g *LocalGossip) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	delete(n.topics[g.namespace], g)
	if len(n.topics[g.namespace]) == 0 {
		delete(n.topics, g.namespace)
	}
}

type LocalGossip struct {
	network   *LocalNetwork
	namespace string

	mtx       sync.RWMutex
	notifiees []Notifiee
	closed    bool
}

func (l *LocalGossip) BroadcastTransaction(ctx context.Context, t *tx.Transaction) error {
	return l.broadcast(ctx, TransactionMessage(t))
}

func (l *LocalGossip) BroadcastBlock(ctx context.Context, b *tx.Block) error {
	return l.broadcast(ctx, BlockMessage(b))
}

// broadcast validates the message locally first, like a pubsub validator would,
// and only then delivers it to the other members. Errors from other members
// only mean they rejected the message.
func (l *LocalGossip) broadcast(ctx context.Context, msg *Message) error {
	if l.isClosed() {
		return ErrClosed
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	if err := l.receive(ctx, data); err != nil {
		return err
	}
	for _, member := range l.network.members(l.namespace) {
		if member == l {
			continue
		}
		_ = member.receive(ctx, data)
	}
	return nil
}

func (l *LocalGossip) receive(ctx context.Context, data []byte) error {
	l.mtx.RLock()
	notifiees := make([]Notifiee, len(l.notifiees))
	copy(notifiees, l.notifiees)
	l.mtx.RUnlock()

	for _, n := range notifiees {
		msg, err := Decode(data)
		if err != nil {
			return err
		}
		if err := msg.Deliver(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (l *LocalGossip) Peers() int {
	return len(l.network.members(l.namespace)) - 1
}

func (l *LocalGossip) Notify(notifiee Notifiee) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.notifiees = append(l.notifiees, notifiee)
}

func (l *LocalGossip) Close() error {
	l.mtx.Lock()
	if l.closed {
		l.mtx.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.notifiees = nil
	l.mtx.Unlock()
	l.network.leave(l)
	return nil
}

func (l *LocalGossip) isClosed() bool {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	return l.closed
}
