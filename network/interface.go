package network

import (
	"context"
	"io"

	"github.com/cmwaters/cunner/tx"
)

// Network hands out gossip channels, one per namespace
type Network interface {
	Gossip(namespace []byte) (Gossip, error)
}

// Gossip is an interface which allows a node to both broadcast and receive
// transactions and blocks to and from other nodes in the network. It must
// eventually propagate messages to all non-faulty nodes within the network.
// The algorithm for how this is done i.e. simply flooding the network or using
// some form of content addressing protocol is left to the implementer.
type Gossip interface {
	io.Closer
	Broadcaster
	Notifier

	// Peers returns how many other nodes share the namespace
	Peers() int
}

type Broadcaster interface {
	BroadcastTransaction(context.Context, *tx.Transaction) error
	BroadcastBlock(context.Context, *tx.Block) error
}

type Notifier interface {
	// Notify registers Notifiee wishing to receive notifications about new messages.
	// Any non-nil error returned from On... handlers rejects the message as invalid.
	Notify(Notifiee)
}

// Notifiee is implemented by anything that wants to hear about gossiped
// messages. Messages broadcast by the node itself are delivered too.
type Notifiee interface {
	OnTransaction(context.Context, *tx.Transaction) error
	OnBlock(context.Context, *tx.Block) error
}
