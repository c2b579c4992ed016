package avalanche

import (
	"github.com/cmwaters/cunner/tx"
)

// TxState is a single node's voting state for a single transaction. It is
// owned by exactly one Node and only ever mutated while that node's lock is held.
type TxState struct {
	tx   tx.Transaction
	hash tx.Hash

	epoch  uint32
	status tx.Status

	// responses collected during the current epoch
	responses []tx.Status

	// confidence counts the quorums observed for each color. It is indexed by tx.Status.
	confidence [2]uint32

	// conviction is the streak of consecutive quorums that matched lastStatus
	conviction uint32
	lastStatus tx.Status

	final bool
}

func newTxState(t tx.Transaction, hash tx.Hash, status tx.Status) *TxState {
	return &TxState{
		tx:         t,
		hash:       hash,
		status:     status,
		lastStatus: tx.Invalid,
	}
}

// outcome summarises what a single response did to the state
type outcome struct {
	quorum   bool
	color    tx.Status
	flipped  bool
	advanced bool
	final    bool
}

// record applies a single response to the state. It is the only place that
// mutates the counters.
func (s *TxState) record(status tx.Status, params Parameters) outcome {
	if s.final || status > tx.Valid {
		return outcome{}
	}
	s.responses = append(s.responses, status)

	color, count := s.mode(status)
	if count < params.Quorum() {
		return outcome{}
	}
	out := outcome{quorum: true, color: color}

	s.confidence[color]++
	if s.confidence[color] > s.confidence[s.status] {
		s.status = color
		out.flipped = true
	}

	if color != s.lastStatus {
		s.lastStatus = color
		s.conviction = 0
		return out
	}

	s.conviction++
	if s.conviction > params.ConvictionLimit() {
		s.epoch++
		s.responses = s.responses[:0]
		out.advanced = true
		if s.epoch == params.MaxEpochs {
			s.final = true
			out.final = true
		}
	}
	return out
}

// mode returns the most common color in the response buffer along with its
// count. Ties go to the color that just arrived.
func (s *TxState) mode(latest tx.Status) (tx.Status, int) {
	var counts [2]int
	for _, r := range s.responses {
		counts[r]++
	}
	other := latest.Other()
	if counts[other] > counts[latest] {
		return other, counts[other]
	}
	return latest, counts[latest]
}

// Snapshot returns an immutable copy of the state
func (s *TxState) Snapshot() Snapshot {
	responses := make([]tx.Status, len(s.responses))
	copy(responses, s.responses)
	return Snapshot{
		Tx:         s.tx,
		Hash:       s.hash,
		Epoch:      s.epoch,
		Status:     s.status,
		Responses:  responses,
		confidence: s.confidence,
		Conviction: s.conviction,
		LastStatus: s.lastStatus,
		Final:      s.final,
	}
}

// Snapshot is a point in time copy of a TxState, safe to read from any goroutine.
type Snapshot struct {
	Tx         tx.Transaction
	Hash       tx.Hash
	Epoch      uint32
	Status     tx.Status
	Responses  []tx.Status
	Conviction uint32
	LastStatus tx.Status
	Final      bool

	confidence [2]uint32
}

// Confidence returns the number of quorums observed for the given color
func (s Snapshot) Confidence(status tx.Status) uint32 {
	if int(status) >= len(s.confidence) {
		return 0
	}
	return s.confidence[status]
}
