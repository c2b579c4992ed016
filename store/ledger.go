package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cmwaters/cunner/consensus"
	"github.com/cmwaters/cunner/tx"
	"github.com/ugorji/go/codec"
)

var (
	decisionPrefix = []byte("decision/")
	blockPrefix    = []byte("block/")
	heightKey      = []byte("height")
)

// Ledger records decisions and blocks on top of a Store
type Ledger struct {
	store Store

	// mtx serializes block writes so the height only moves forward
	mtx sync.Mutex
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) Store() Store { return l.store }

func decisionKey(node uint64, hash tx.Hash) []byte {
	key := make([]byte, 0, len(decisionPrefix)+8+tx.HashSize)
	key = append(key, decisionPrefix...)
	key = binary.BigEndian.AppendUint64(key, node)
	return append(key, hash[:]...)
}

func blockKey(index uint32) []byte {
	key := make([]byte, 0, len(blockPrefix)+4)
	key = append(key, blockPrefix...)
	return binary.BigEndian.AppendUint32(key, index)
}

// SaveDecision records the color a node decided on
func (l *Ledger) SaveDecision(d consensus.Decision) error {
	return l.store.Put(decisionKey(d.Node, d.Hash), []byte{byte(d.Status)})
}

// Decision returns the color a node decided on. ErrNotFound is returned if
// the node has not decided.
func (l *Ledger) Decision(node uint64, hash tx.Hash) (tx.Status, error) {
	value, err := l.store.Get(decisionKey(node, hash))
	if err != nil {
		return tx.Invalid, err
	}
	if len(value) != 1 {
		return tx.Invalid, fmt.Errorf("corrupt decision for %s at node %d", hash, node)
	}
	return tx.Status(value[0]), nil
}

// SaveBlock stores the block and advances the height if the block is the
// highest seen so far
func (l *Ledger) SaveBlock(b *tx.Block) error {
	data, err := encodeBlock(b)
	if err != nil {
		return err
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.store.Put(blockKey(b.Index), data); err != nil {
		return err
	}
	height, err := l.height()
	if err != nil {
		return err
	}
	if b.Index <= height {
		return nil
	}
	return l.store.Put(heightKey, binary.BigEndian.AppendUint32(nil, b.Index))
}

func (l *Ledger) Block(index uint32) (*tx.Block, error) {
	data, err := l.store.Get(blockKey(index))
	if err != nil {
		return nil, err
	}
	return decodeBlock(data)
}

// Height returns the highest block index saved, zero if there are none
func (l *Ledger) Height() (uint32, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.height()
}

func (l *Ledger) height() (uint32, error) {
	value, err := l.store.Get(heightKey)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(value) != 4 {
		return 0, errors.New("corrupt height")
	}
	return binary.BigEndian.Uint32(value), nil
}

func encodeBlock(b *tx.Block) ([]byte, error) {
	buf := new(bytes.Buffer)
	mh := new(codec.MsgpackHandle)
	mh.Canonical = true
	enc := codec.NewEncoder(buf, mh)
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeBlock(data []byte) (*tx.Block, error) {
	var b tx.Block
	dec := codec.NewDecoder(bytes.NewReader(data), new(codec.MsgpackHandle))
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("decoding block: %w", err)
	}
	return &b, nil
}
