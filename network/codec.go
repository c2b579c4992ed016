package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cmwaters/cunner/tx"
	"github.com/ugorji/go/codec"
)

type MessageType uint8

const (
	TransactionType MessageType = iota + 1
	BlockType
)

func (t MessageType) String() string {
	switch t {
	case TransactionType:
		return "transaction"
	case BlockType:
		return "block"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Message is the envelope every gossiped payload travels in
type Message struct {
	Type        MessageType     `codec:"type"`
	Transaction *tx.Transaction `codec:"tx,omitempty"`
	Block       *tx.Block       `codec:"block,omitempty"`
}

var ErrMalformedMessage = errors.New("malformed message")

func TransactionMessage(t *tx.Transaction) *Message {
	return &Message{Type: TransactionType, Transaction: t}
}

func BlockMessage(b *tx.Block) *Message {
	return &Message{Type: BlockType, Block: b}
}

func newHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.Canonical = true
	return mh
}

// Encode serializes a message using msgpack
func Encode(m *Message) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, newHandle())
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Decode deserializes a message and checks that the payload matches its type
func Decode(data []byte) (*Message, error) {
	var m Message
	dec := codec.NewDecoder(bytes.NewReader(data), newHandle())
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Message) validate() error {
	switch m.Type {
	case TransactionType:
		if m.Transaction == nil || m.Block != nil {
			return fmt.Errorf("%w: transaction message without a single transaction", ErrMalformedMessage)
		}
	case BlockType:
		if m.Block == nil || m.Transaction != nil {
			return fmt.Errorf("%w: block message without a single block", ErrMalformedMessage)
		}
	default:
		return fmt.Errorf("%w: unknown %s", ErrMalformedMessage, m.Type)
	}
	return nil
}

// Deliver hands the payload to the matching Notifiee handler
func (m *Message) Deliver(ctx context.Context, n Notifiee) error {
	switch m.Type {
	case TransactionType:
		return n.OnTransaction(ctx, m.Transaction)
	case BlockType:
		return n.OnBlock(ctx, m.Block)
	default:
		return fmt.Errorf("%w: unknown %s", ErrMalformedMessage, m.Type)
	}
}
