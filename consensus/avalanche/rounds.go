package avalanche

import (
	"sort"
	"time"

	"github.com/cmwaters/cunner/tx"
)

type roundKey struct {
	origin NodeID
	hash   tx.Hash
}

// round is the most recent query a node issued for a transaction
type round struct {
	query    Query
	sampled  map[NodeID]struct{}
	deadline time.Time
}

// rounds tracks a deadline for every outstanding query. It is only accessed
// by the dispatcher goroutine.
type rounds struct {
	timeout time.Duration
	active  map[roundKey]*round
}

func newRounds(timeout time.Duration) *rounds {
	return &rounds{
		timeout: timeout,
		active:  make(map[roundKey]*round),
	}
}

func (r *rounds) enabled() bool { return r.timeout > 0 }

// start records a new round, replacing any previous round for the same key
func (r *rounds) start(origin NodeID, q Query, peers []NodeID, now time.Time) {
	if !r.enabled() {
		return
	}
	sampled := make(map[NodeID]struct{}, len(peers))
	for _, p := range peers {
		sampled[p] = struct{}{}
	}
	r.active[roundKey{origin: origin, hash: q.Tx.Hash()}] = &round{
		query:    q,
		sampled:  sampled,
		deadline: now.Add(r.timeout),
	}
}

// extend adds peers to a round's sampled set and pushes back its deadline
func (r *rounds) extend(key roundKey, peers []NodeID, now time.Time) {
	rd, ok := r.active[key]
	if !ok {
		return
	}
	for _, p := range peers {
		rd.sampled[p] = struct{}{}
	}
	rd.deadline = now.Add(r.timeout)
}

func (r *rounds) get(key roundKey) (*round, bool) {
	rd, ok := r.active[key]
	return rd, ok
}

func (r *rounds) remove(key roundKey) {
	delete(r.active, key)
}

// expired returns the keys of every round whose deadline has passed. The keys
// are ordered by deadline so that runs with a fixed clock are reproducible.
func (r *rounds) expired(now time.Time) []roundKey {
	var keys []roundKey
	for key, rd := range r.active {
		if !rd.deadline.After(now) {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		di, dj := r.active[keys[i]].deadline, r.active[keys[j]].deadline
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if keys[i].origin != keys[j].origin {
			return keys[i].origin < keys[j].origin
		}
		return string(keys[i].hash[:]) < string(keys[j].hash[:])
	})
	return keys
}

func (r *rounds) len() int { return len(r.active) }
