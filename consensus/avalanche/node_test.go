package avalanche_test

import (
	"math/rand"
	"testing"

	"github.com/cmwaters/cunner/consensus/avalanche"
	"github.com/cmwaters/cunner/tx"
	"github.com/stretchr/testify/require"
)

// outbox captures everything a node sends
type outbox struct {
	msgs []avalanche.Message
}

func (o *outbox) send(m avalanche.Message) { o.msgs = append(o.msgs, m) }

func (o *outbox) queries() []avalanche.Query {
	var out []avalanche.Query
	for _, m := range o.msgs {
		if q, ok := m.Query(); ok {
			out = append(out, q)
		}
	}
	return out
}

func (o *outbox) responses() []avalanche.QueryResponse {
	var out []avalanche.QueryResponse
	for _, m := range o.msgs {
		if r, ok := m.Response(); ok {
			out = append(out, r)
		}
	}
	return out
}

func newNode(t *testing.T, params avalanche.Parameters) (*avalanche.Node, *outbox) {
	t.Helper()
	box := &outbox{}
	return avalanche.NewNode(0, params, nil, box.send), box
}

func respond(t *testing.T, node *avalanche.Node, hash tx.Hash, status tx.Status) bool {
	t.Helper()
	decision, err := node.OnQueryResponse(avalanche.QueryResponse{To: node.ID(), Hash: hash, Status: status})
	require.NoError(t, err)
	if decision != nil {
		require.Equal(t, hash, decision.Hash)
		require.EqualValues(t, node.ID(), decision.Node)
	}
	return decision != nil
}

func TestParameters(t *testing.T) {
	params := avalanche.DefaultParameters()
	require.NoError(t, params.Validate())
	require.Equal(t, 3, params.Quorum())
	require.EqualValues(t, 3, params.ConvictionLimit())

	testCases := []struct {
		samples    int
		threshold  float64
		quorum     int
		conviction uint32
	}{
		{samples: 10, threshold: 0.7, quorum: 7, conviction: 7},
		{samples: 5, threshold: 0.8, quorum: 4, conviction: 4},
		{samples: 3, threshold: 0.5, quorum: 2, conviction: 2},
		{samples: 1, threshold: 1, quorum: 1, conviction: 1},
	}
	for _, tc := range testCases {
		p := avalanche.Parameters{
			Samples:             tc.samples,
			Threshold:           tc.threshold,
			ConvictionThreshold: tc.threshold,
			MaxEpochs:           1,
		}
		require.NoError(t, p.Validate())
		require.Equal(t, tc.quorum, p.Quorum(), "samples %d threshold %v", tc.samples, tc.threshold)
		require.Equal(t, tc.conviction, p.ConvictionLimit(), "samples %d threshold %v", tc.samples, tc.threshold)
	}

	invalid := []avalanche.Parameters{
		{Samples: 0, Threshold: 0.75, ConvictionThreshold: 0.75, MaxEpochs: 4},
		{Samples: 4, Threshold: 0, ConvictionThreshold: 0.75, MaxEpochs: 4},
		{Samples: 4, Threshold: 1.5, ConvictionThreshold: 0.75, MaxEpochs: 4},
		{Samples: 4, Threshold: 0.75, ConvictionThreshold: 0, MaxEpochs: 4},
		{Samples: 4, Threshold: 0.75, ConvictionThreshold: 0.75, MaxEpochs: 0},
		{Samples: 4, Threshold: 0.75, ConvictionThreshold: 0.75, MaxEpochs: 4, RoundTimeout: -1},
	}
	for _, p := range invalid {
		require.Error(t, p.Validate(), "%+v", p)
	}
}

func TestSubmit(t *testing.T) {
	node, box := newNode(t, avalanche.DefaultParameters())
	transaction := tx.New(1, 3)

	require.True(t, node.Submit(transaction))
	state, ok := node.State(transaction.Hash())
	require.True(t, ok)
	require.Equal(t, tx.Valid, state.Status)
	require.Equal(t, tx.Invalid, state.LastStatus)
	require.Zero(t, state.Epoch)
	require.Zero(t, state.Conviction)
	require.Zero(t, state.Confidence(tx.Valid))
	require.Zero(t, state.Confidence(tx.Invalid))
	require.False(t, state.Final)

	require.Equal(t, []avalanche.Query{{Tx: transaction, Status: tx.Valid}}, box.queries())
	require.Empty(t, box.responses())

	invalid := tx.New(2, 8)
	require.True(t, node.Submit(invalid))
	state, ok = node.State(invalid.Hash())
	require.True(t, ok)
	require.Equal(t, tx.Invalid, state.Status)
}

func TestSubmitIsIdempotent(t *testing.T) {
	transaction := tx.New(1, 3)

	once, _ := newNode(t, avalanche.DefaultParameters())
	require.True(t, once.Submit(transaction))

	twice, box := newNode(t, avalanche.DefaultParameters())
	require.True(t, twice.Submit(transaction))
	require.False(t, twice.Submit(transaction))

	a, _ := once.State(transaction.Hash())
	b, _ := twice.State(transaction.Hash())
	require.Equal(t, a, b)
	require.Len(t, box.msgs, 1)
	require.Equal(t, 1, twice.Len())

	// a submission after responses have been collected also leaves the state untouched
	respond(t, twice, transaction.Hash(), tx.Valid)
	before, _ := twice.State(transaction.Hash())
	require.False(t, twice.Submit(transaction))
	after, _ := twice.State(transaction.Hash())
	require.Equal(t, before, after)
}

func TestCustomVerifyFunc(t *testing.T) {
	box := &outbox{}
	rejectAll := func(tx.Transaction) tx.Status { return tx.Invalid }
	node := avalanche.NewNode(0, avalanche.DefaultParameters(), rejectAll, box.send)
	transaction := tx.New(1, 3)
	node.Submit(transaction)
	state, _ := node.State(transaction.Hash())
	require.Equal(t, tx.Invalid, state.Status)
}

func TestOnQueryAdoptsProposerColor(t *testing.T) {
	node, box := newNode(t, avalanche.DefaultParameters())
	// the node would verify this transaction as valid on its own
	transaction := tx.New(1, 3)
	require.Equal(t, tx.Valid, tx.Verify(transaction))

	node.OnQuery(2, avalanche.Query{Tx: transaction, Status: tx.Invalid})

	state, ok := node.State(transaction.Hash())
	require.True(t, ok)
	require.Equal(t, tx.Invalid, state.Status)
	require.Zero(t, state.Epoch)

	// the node starts its own round and answers the querying peer
	require.Len(t, box.msgs, 2)
	require.Equal(t, []avalanche.Query{{Tx: transaction, Status: tx.Invalid}}, box.queries())
	require.Equal(t, []avalanche.QueryResponse{{To: 2, Hash: transaction.Hash(), Status: tx.Invalid}}, box.responses())
}

func TestOnQueryRespondsWithCurrentColor(t *testing.T) {
	node, box := newNode(t, avalanche.DefaultParameters())
	transaction := tx.New(1, 3)
	node.Submit(transaction)

	node.OnQuery(3, avalanche.Query{Tx: transaction, Status: tx.Invalid})

	state, _ := node.State(transaction.Hash())
	require.Equal(t, tx.Valid, state.Status)
	// only the query from Submit, no cascading query for a known transaction
	require.Len(t, box.queries(), 1)
	require.Equal(t, []avalanche.QueryResponse{{To: 3, Hash: transaction.Hash(), Status: tx.Valid}}, box.responses())
}

func TestOnQueryResponseForUnknownTransaction(t *testing.T) {
	node, box := newNode(t, avalanche.DefaultParameters())
	decision, err := node.OnQueryResponse(avalanche.QueryResponse{To: 0, Hash: tx.New(1, 1).Hash(), Status: tx.Valid})
	require.ErrorIs(t, err, avalanche.ErrUnknownTransaction)
	require.Nil(t, decision)
	require.Empty(t, box.msgs)
}

// TestFinalizationTrace follows a single node receiving nothing but valid
// responses, one response at a time.
func TestFinalizationTrace(t *testing.T) {
	node, box := newNode(t, avalanche.DefaultParameters())
	transaction := tx.New(1, 3)
	hash := transaction.Hash()
	node.Submit(transaction)

	state := func() avalanche.Snapshot {
		s, ok := node.State(hash)
		require.True(t, ok)
		return s
	}

	// two responses are not enough for a quorum
	require.False(t, respond(t, node, hash, tx.Valid))
	require.False(t, respond(t, node, hash, tx.Valid))
	require.Zero(t, state().Confidence(tx.Valid))
	require.Len(t, state().Responses, 2)

	// the third is a quorum. last status moves away from its initial
	// invalid color so the streak starts at zero
	require.False(t, respond(t, node, hash, tx.Valid))
	s := state()
	require.EqualValues(t, 1, s.Confidence(tx.Valid))
	require.Equal(t, tx.Valid, s.LastStatus)
	require.Zero(t, s.Conviction)
	require.Zero(t, s.Epoch)

	// every further response in the epoch is a quorum and extends the streak
	for i := uint32(1); i <= 3; i++ {
		require.False(t, respond(t, node, hash, tx.Valid))
		require.Equal(t, i, state().Conviction)
		require.Zero(t, state().Epoch)
	}

	// the streak exceeds three and the epoch advances, clearing the buffer
	require.False(t, respond(t, node, hash, tx.Valid))
	s = state()
	require.EqualValues(t, 1, s.Epoch)
	require.Empty(t, s.Responses)
	require.EqualValues(t, 4, s.Conviction)
	require.EqualValues(t, 5, s.Confidence(tx.Valid))

	// later epochs advance on their first quorum
	for epoch := uint32(2); epoch <= 3; epoch++ {
		require.False(t, respond(t, node, hash, tx.Valid))
		require.False(t, respond(t, node, hash, tx.Valid))
		require.False(t, respond(t, node, hash, tx.Valid))
		require.Equal(t, epoch, state().Epoch)
	}
	require.False(t, respond(t, node, hash, tx.Valid))
	require.False(t, respond(t, node, hash, tx.Valid))
	require.True(t, respond(t, node, hash, tx.Valid))

	final := state()
	require.True(t, final.Final)
	require.EqualValues(t, 4, final.Epoch)
	require.Equal(t, tx.Valid, final.Status)
	require.True(t, node.IsFinal(hash))

	// one query from submit and one for each of the 15 non final responses
	require.Len(t, box.queries(), 16)

	// final is absorbing
	require.False(t, respond(t, node, hash, tx.Invalid))
	require.False(t, respond(t, node, hash, tx.Valid))
	require.Equal(t, final, state())
	require.Len(t, box.queries(), 16)
}

func TestConvictionResetsOnColorChange(t *testing.T) {
	node, _ := newNode(t, avalanche.DefaultParameters())
	transaction := tx.New(1, 3)
	hash := transaction.Hash()
	node.Submit(transaction)

	// complete the first epoch with valid responses
	for i := 0; i < 7; i++ {
		respond(t, node, hash, tx.Valid)
	}
	s, _ := node.State(hash)
	require.EqualValues(t, 1, s.Epoch)
	require.EqualValues(t, 4, s.Conviction)

	// an invalid quorum resets the streak but is not enough to flip the color
	for i := 0; i < 3; i++ {
		respond(t, node, hash, tx.Invalid)
	}
	s, _ = node.State(hash)
	require.Zero(t, s.Conviction)
	require.Equal(t, tx.Invalid, s.LastStatus)
	require.Equal(t, tx.Valid, s.Status)
	require.EqualValues(t, 1, s.Confidence(tx.Invalid))
	require.EqualValues(t, 5, s.Confidence(tx.Valid))

	respond(t, node, hash, tx.Invalid)
	s, _ = node.State(hash)
	require.EqualValues(t, 1, s.Conviction)
	require.EqualValues(t, 1, s.Epoch)
}

func TestInvalidTransactionStartsStreakImmediately(t *testing.T) {
	node, _ := newNode(t, avalanche.DefaultParameters())
	transaction := tx.New(1, 9)
	hash := transaction.Hash()
	node.Submit(transaction)

	for i := 0; i < 3; i++ {
		respond(t, node, hash, tx.Invalid)
	}
	s, _ := node.State(hash)
	require.Equal(t, tx.Invalid, s.Status)
	require.EqualValues(t, 1, s.Conviction)

	decided := false
	for i := 0; i < 100 && !decided; i++ {
		decided = respond(t, node, hash, tx.Invalid)
	}
	require.True(t, decided)
	s, _ = node.State(hash)
	require.Equal(t, tx.Invalid, s.Status)
}

func TestQuorumUsesModeOfBuffer(t *testing.T) {
	params := avalanche.Parameters{Samples: 2, Threshold: 0.5, ConvictionThreshold: 1, MaxEpochs: 4}
	node, _ := newNode(t, params)
	transaction := tx.New(1, 3)
	hash := transaction.Hash()
	node.Submit(transaction)

	respond(t, node, hash, tx.Valid)
	s, _ := node.State(hash)
	require.EqualValues(t, 1, s.Confidence(tx.Valid))

	// one of each color is a tie which goes to the color that just arrived
	respond(t, node, hash, tx.Invalid)
	s, _ = node.State(hash)
	require.EqualValues(t, 1, s.Confidence(tx.Invalid))
	require.Equal(t, tx.Invalid, s.LastStatus)

	respond(t, node, hash, tx.Valid)
	respond(t, node, hash, tx.Valid)
	// three valid against two invalid: valid is the mode even though invalid
	// just arrived and on its own reaches the quorum of one
	respond(t, node, hash, tx.Invalid)
	s, _ = node.State(hash)
	require.EqualValues(t, 4, s.Confidence(tx.Valid))
	require.EqualValues(t, 1, s.Confidence(tx.Invalid))
	require.Equal(t, tx.Valid, s.LastStatus)
	require.Zero(t, s.Epoch)
}

func TestColorFlipsOnHigherConfidence(t *testing.T) {
	node, _ := newNode(t, avalanche.DefaultParameters())
	transaction := tx.New(1, 3)
	hash := transaction.Hash()
	node.Submit(transaction)

	for i := 0; i < 3; i++ {
		respond(t, node, hash, tx.Invalid)
	}
	s, _ := node.State(hash)
	require.Equal(t, tx.Invalid, s.Status)
	require.EqualValues(t, 1, s.Confidence(tx.Invalid))
	require.Zero(t, s.Confidence(tx.Valid))
}

func TestMonotonicity(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		node, _ := newNode(t, avalanche.DefaultParameters())
		transaction := tx.Random(r)
		hash := transaction.Hash()
		node.Submit(transaction)

		prev, _ := node.State(hash)
		for j := 0; j < 500; j++ {
			status := tx.Valid
			// bias towards valid so that some transactions finalize
			if r.Intn(10) < 3 {
				status = tx.Invalid
			}
			respond(t, node, hash, status)
			next, _ := node.State(hash)

			require.GreaterOrEqual(t, next.Confidence(tx.Valid), prev.Confidence(tx.Valid))
			require.GreaterOrEqual(t, next.Confidence(tx.Invalid), prev.Confidence(tx.Invalid))
			require.GreaterOrEqual(t, next.Epoch, prev.Epoch)
			if prev.Final {
				require.Equal(t, prev, next)
			}
			if next.LastStatus != prev.LastStatus {
				require.Zero(t, next.Conviction)
			}
			prev = next
		}
	}
}
