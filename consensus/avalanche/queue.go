package avalanche

import "sync"

// queue is the unbounded FIFO inbox shared by every node in a network. Node
// handlers push onto it while the dispatcher is draining it, so it can never
// block a producer.
type queue struct {
	mtx   sync.Mutex
	items []envelope

	// signal has a buffer of one and is written to on every push so that a
	// waiting consumer wakes up
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{
		signal: make(chan struct{}, 1),
	}
}

func (q *queue) push(e envelope) {
	q.mtx.Lock()
	q.items = append(q.items, e)
	q.mtx.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) pop() (envelope, bool) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	if len(q.items) == 0 {
		return envelope{}, false
	}
	e := q.items[0]
	q.items[0] = envelope{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return e, true
}

func (q *queue) len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.items)
}
