// Package store persists what a node learns: the decisions reached by its
// consensus engine and the blocks it produced or received.
package store

import (
	"errors"
	"io"
)

// ErrNotFound is returned by Get when a key has no value
var ErrNotFound = errors.New("key not found")

// Store is a minimal key value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Has(key []byte) (bool, error)
	Len() (int, error)
	io.Closer
}
