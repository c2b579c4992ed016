package tx

import (
	"fmt"
	"math/rand"
)

// Block bundles the transactions an engine has accepted over an interval.
type Block struct {
	Index        uint32
	Nonce        uint64
	Transactions []Transaction
}

// NewBlock creates the block that follows prevIndex. The transactions are copied.
func NewBlock(prevIndex uint32, r *rand.Rand, txs []Transaction) *Block {
	transactions := make([]Transaction, len(txs))
	copy(transactions, txs)
	return &Block{
		Index:        prevIndex + 1,
		Nonce:        r.Uint64(),
		Transactions: transactions,
	}
}

func (b *Block) String() string {
	if b == nil {
		return "nil"
	}
	return fmt.Sprintf("Block{%d/%d with %d txs}", b.Index, b.Nonce, len(b.Transactions))
}
