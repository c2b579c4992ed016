package avalanche

import (
	"fmt"

	"github.com/cmwaters/cunner/tx"
)

// NodeID identifies a node within a Network
type NodeID uint64

type (
	// Query asks a peer for its color on a transaction. It carries the full
	// transaction so that peers who have never seen it can adopt it.
	Query struct {
		Tx     tx.Transaction
		Status tx.Status
	}

	// QueryResponse carries a peer's current color back to the querying node
	QueryResponse struct {
		To     NodeID
		Hash   tx.Hash
		Status tx.Status
	}

	// Message is the tagged union of everything the dispatcher routes. Exactly
	// one of the fields is set.
	Message struct {
		query       *Query
		response    *QueryResponse
		transaction *tx.Transaction
	}
)

// envelope pairs a message with the node that emitted it
type envelope struct {
	origin NodeID
	msg    Message
}

func QueryMessage(t tx.Transaction, status tx.Status) Message {
	return Message{query: &Query{Tx: t, Status: status}}
}

func ResponseMessage(to NodeID, hash tx.Hash, status tx.Status) Message {
	return Message{response: &QueryResponse{To: to, Hash: hash, Status: status}}
}

func TransactionMessage(t tx.Transaction) Message {
	return Message{transaction: &t}
}

// Query returns the query if the message is one
func (m Message) Query() (Query, bool) {
	if m.query == nil {
		return Query{}, false
	}
	return *m.query, true
}

// Response returns the query response if the message is one
func (m Message) Response() (QueryResponse, bool) {
	if m.response == nil {
		return QueryResponse{}, false
	}
	return *m.response, true
}

// Transaction returns the transaction if the message is one
func (m Message) Transaction() (tx.Transaction, bool) {
	if m.transaction == nil {
		return tx.Transaction{}, false
	}
	return *m.transaction, true
}

func (m Message) String() string {
	switch {
	case m.query != nil:
		return fmt.Sprintf("query{%s, %s}", m.query.Tx.Hash().Short(), m.query.Status)
	case m.response != nil:
		return fmt.Sprintf("response{to %d, %s, %s}", m.response.To, m.response.Hash.Short(), m.response.Status)
	case m.transaction != nil:
		return fmt.Sprintf("transaction{%s}", m.transaction.Hash().Short())
	default:
		return "none"
	}
}
