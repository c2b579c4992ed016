package avalanche

// Rand is the source of randomness used for peer sampling. It is satisfied
// by *math/rand.Rand.
type Rand interface {
	Intn(n int) int
}

// sample picks up to k distinct ids uniformly at random from candidates using
// a partial Fisher-Yates shuffle. candidates is reordered in place. If there
// are k or fewer candidates, all are returned.
func sample(r Rand, candidates []NodeID, k int) []NodeID {
	if k <= 0 {
		return nil
	}
	if k >= len(candidates) {
		return candidates
	}
	for i := 0; i < k; i++ {
		j := i + r.Intn(len(candidates)-i)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	return candidates[:k]
}
