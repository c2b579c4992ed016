package solo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cmwaters/cunner/consensus"
	"github.com/cmwaters/cunner/consensus/solo"
	"github.com/cmwaters/cunner/tx"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testCtx = context.Background()

func TestPropose(t *testing.T) {
	engine, err := solo.New(nil, solo.WithSeed(1))
	require.NoError(t, err)

	require.Nil(t, engine.Propose())

	txs := []tx.Transaction{tx.New(1, 1), tx.New(2, 9), tx.New(3, 4)}
	for _, transaction := range txs {
		engine.AddTransaction(transaction)
	}
	// duplicates are ignored
	engine.AddTransaction(txs[1])

	block := engine.Propose()
	require.NotNil(t, block)
	require.EqualValues(t, 1, block.Index)
	require.Equal(t, txs, block.Transactions)
	require.EqualValues(t, 1, engine.Height())

	// the buffer is drained
	require.Nil(t, engine.Propose())

	// an already included transaction is not included again
	engine.AddTransaction(txs[0])
	require.Nil(t, engine.Propose())

	engine.AddTransaction(tx.New(4, 4))
	block = engine.Propose()
	require.EqualValues(t, 2, block.Index)
	require.Len(t, block.Transactions, 1)
}

func TestRunRelaysBlocks(t *testing.T) {
	ctx, cancel := context.WithTimeout(testCtx, 10*time.Second)
	defer cancel()

	blocks := make(chan *tx.Block, 10)
	relay := func(_ context.Context, b *tx.Block) error {
		blocks <- b
		return nil
	}
	engine, err := solo.New(relay, solo.WithBlockInterval(10*time.Millisecond))
	require.NoError(t, err)

	engine.AddTransaction(tx.New(1, 1))
	engine.AddTransaction(tx.New(2, 2))

	errCh := make(chan error, 1)
	go func() {
		errCh <- engine.Run(ctx)
	}()
	require.Eventually(t, engine.IsRunning, time.Second, time.Millisecond)
	require.ErrorIs(t, engine.Run(ctx), consensus.ErrAlreadyRunning)

	select {
	case block := <-blocks:
		require.EqualValues(t, 1, block.Index)
		require.Len(t, block.Transactions, 2)
	case <-ctx.Done():
		t.Fatal("no block relayed")
	}

	// empty intervals produce no blocks
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, blocks)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
	require.False(t, engine.IsRunning())
}

func TestRunStopsOnRelayError(t *testing.T) {
	ctx, cancel := context.WithTimeout(testCtx, 10*time.Second)
	defer cancel()

	relayErr := errors.New("no route")
	engine, err := solo.New(func(context.Context, *tx.Block) error { return relayErr },
		solo.WithBlockInterval(10*time.Millisecond))
	require.NoError(t, err)
	engine.AddTransaction(tx.New(1, 1))
	require.ErrorIs(t, engine.Run(ctx), relayErr)
}

func TestInvalidBlockInterval(t *testing.T) {
	_, err := solo.New(nil, solo.WithBlockInterval(0))
	require.Error(t, err)
}
