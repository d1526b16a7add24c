package containers

import (
	"errors"

	"golang.org/x/exp/constraints"
)

var ErrQueueEmpty = errors.New("queue is empty")

type pqEntry[K constraints.Ordered, V any] struct {
	key   K
	seq   uint64
	value V
}

/**
 * @brief Max-heap keyed by K. Entries with equal keys come out in insertion
 * order. Not safe for concurrent use.
 */
type PriorityQueue[K constraints.Ordered, V any] struct {
	data []pqEntry[K, V]
	seq  uint64
}

// Create a new PriorityQueue with room for capacity entries
func NewPriorityQueue[K constraints.Ordered, V any](capacity int) *PriorityQueue[K, V] {
	return &PriorityQueue[K, V]{
		data: make([]pqEntry[K, V], 0, capacity),
	}
}

// Push adds an element to the queue
func (pq *PriorityQueue[K, V]) Push(key K, value V) {
	pq.data = append(pq.data, pqEntry[K, V]{key: key, seq: pq.seq, value: value})
	pq.seq++
	pq.up(len(pq.data) - 1)
}

// Pop removes and returns the element with the highest key
func (pq *PriorityQueue[K, V]) Pop() (V, error) {
	var zero V
	if pq.IsEmpty() {
		return zero, ErrQueueEmpty
	}
	top := pq.data[0]
	last := len(pq.data) - 1
	pq.data[0] = pq.data[last]
	pq.data[last] = pqEntry[K, V]{}
	pq.data = pq.data[:last]
	if last > 0 {
		pq.down(0)
	}
	return top.value, nil
}

// Peek returns the element with the highest key without removing it
func (pq *PriorityQueue[K, V]) Peek() (V, error) {
	var zero V
	if pq.IsEmpty() {
		return zero, ErrQueueEmpty
	}
	return pq.data[0].value, nil
}

func (pq *PriorityQueue[K, V]) Len() int {
	return len(pq.data)
}

// IsEmpty checks if the queue is empty
func (pq *PriorityQueue[K, V]) IsEmpty() bool {
	return len(pq.data) == 0
}

// Clear drops every entry but keeps the allocated storage
func (pq *PriorityQueue[K, V]) Clear() {
	clear(pq.data)
	pq.data = pq.data[:0]
}

// before reports whether entry i must be popped before entry j.
func (pq *PriorityQueue[K, V]) before(i, j int) bool {
	a, b := pq.data[i], pq.data[j]
	if a.key != b.key {
		return a.key > b.key
	}
	return a.seq < b.seq
}

func (pq *PriorityQueue[K, V]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !pq.before(i, parent) {
			return
		}
		pq.data[i], pq.data[parent] = pq.data[parent], pq.data[i]
		i = parent
	}
}

func (pq *PriorityQueue[K, V]) down(i int) {
	n := len(pq.data)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		best := left
		if right := left + 1; right < n && pq.before(right, left) {
			best = right
		}
		if !pq.before(best, i) {
			return
		}
		pq.data[i], pq.data[best] = pq.data[best], pq.data[i]
		i = best
	}
}
