package tx_test

import (
	"math/rand"
	"testing"

	"github.com/cmwaters/cunner/tx"
	"github.com/stretchr/testify/require"
)

func TestHashIsDeterministic(t *testing.T) {
	a := tx.New(1, 3)
	require.Equal(t, a.Hash(), a.Hash())
	require.Equal(t, a.Hash(), tx.New(1, 3).Hash())
	require.Equal(t, tx.Verify(a), tx.Verify(a))
}

func TestHashDiffersByNonce(t *testing.T) {
	seen := make(map[tx.Hash]struct{})
	for nonce := uint64(0); nonce < 1000; nonce++ {
		h := tx.New(nonce, 5).Hash()
		_, ok := seen[h]
		require.False(t, ok, "collision at nonce %d", nonce)
		seen[h] = struct{}{}
	}
}

func TestHashCoversPayload(t *testing.T) {
	require.NotEqual(t, tx.New(1, 3).Hash(), tx.New(1, 4).Hash())
}

func TestVerify(t *testing.T) {
	testCases := []struct {
		payload int32
		status  tx.Status
	}{
		{-1, tx.Valid},
		{0, tx.Valid},
		{6, tx.Valid},
		{7, tx.Invalid},
		{9, tx.Invalid},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.status, tx.Verify(tx.New(42, tc.payload)), "payload %d", tc.payload)
	}
}

func TestHashFromBytes(t *testing.T) {
	h := tx.New(7, 1).Hash()
	out, err := tx.HashFromBytes(h.Bytes())
	require.NoError(t, err)
	require.Equal(t, h, out)

	_, err = tx.HashFromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestStatus(t *testing.T) {
	require.Equal(t, tx.Invalid, tx.Status(0))
	require.Equal(t, tx.Valid, tx.Invalid.Other())
	require.Equal(t, tx.Invalid, tx.Valid.Other())
	require.Equal(t, "valid", tx.Valid.String())
}

func TestRandomAndBlock(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	txs := make([]tx.Transaction, 5)
	for i := range txs {
		txs[i] = tx.Random(r)
		require.True(t, txs[i].Payload >= 0 && txs[i].Payload < 10)
	}
	block := tx.NewBlock(3, r, txs)
	require.EqualValues(t, 4, block.Index)
	require.Equal(t, txs, block.Transactions)
	// the block holds its own copy
	txs[0].Nonce++
	require.NotEqual(t, txs[0], block.Transactions[0])
}
