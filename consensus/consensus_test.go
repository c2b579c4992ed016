package consensus_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cmwaters/cunner/consensus"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	kind, err := consensus.ParseKind("avalanche")
	require.NoError(t, err)
	require.Equal(t, consensus.Avalanche, kind)

	kind, err = consensus.ParseKind("solo")
	require.NoError(t, err)
	require.Equal(t, consensus.Solo, kind)

	_, err = consensus.ParseKind("tendermint")
	require.Error(t, err)
}

func TestUnrecoverable(t *testing.T) {
	base := errors.New("boom")
	err := consensus.Unrecoverable(base)
	require.True(t, consensus.IsUnrecoverable(err))
	require.ErrorIs(t, err, base)

	wrapped := fmt.Errorf("dispatching: %w", err)
	require.True(t, consensus.IsUnrecoverable(wrapped))
	require.ErrorIs(t, wrapped, base)

	require.False(t, consensus.IsUnrecoverable(base))
	require.NoError(t, consensus.Unrecoverable(nil))
}
