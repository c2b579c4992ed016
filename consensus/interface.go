package consensus

import (
	"context"
	"fmt"

	"github.com/cmwaters/cunner/tx"
)

type (
	// Engine is the capability any consensus algorithm implements to be plugged into
	// a cunner node. The transport layer feeds it transactions and runs it. Engines
	// never perform network I/O themselves, anything they produce (decisions, blocks)
	// is handed back to the host through hooks supplied at construction.
	Engine interface {
		// AddTransaction is called each time the transport layer observes a transaction,
		// either from a peer or from a local origin. It must be safe to call concurrently
		// with Run and must ignore transactions the engine already knows about.
		AddTransaction(tx.Transaction)

		// Run drives the protocol until the context is cancelled or the engine encounters
		// an unrecoverable error.
		Run(context.Context) error
	}

	// DecideFn is called by an engine whenever a node reaches a final decision on a
	// transaction. It is called from the engine's own goroutine and must not block.
	DecideFn func(Decision)

	// RelayFn is called by block producing engines with each new block.
	RelayFn func(context.Context, *tx.Block) error
)

// Kind enumerates the closed set of engines a node can run.
type Kind string

const (
	Solo      Kind = "solo"
	Avalanche Kind = "avalanche"
)

// ParseKind converts a user supplied engine name into a Kind
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Solo, Avalanche:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown engine %q (expected %q or %q)", s, Solo, Avalanche)
	}
}

// Decision is the final color a node settled on for a transaction.
type Decision struct {
	Node   uint64
	Hash   tx.Hash
	Status tx.Status
}

func (d Decision) String() string {
	return fmt.Sprintf("Decision{node %d: %s is %s}", d.Node, d.Hash.Short(), d.Status)
}
