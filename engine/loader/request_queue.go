package loader

import (
	"sync"

	"github.com/spaghettifunk/anima-loader/engine/containers"
)

/**
 * @brief Thread-safe priority queue of load requests. Workers block in Pop
 * until a request is available and the queue is not held, or until Close.
 */
type RequestQueue struct {
	mutex  sync.Mutex
	cond   *sync.Cond
	items  *containers.PriorityQueue[Priority, LoadRequest]
	held   bool
	closed bool
}

func NewRequestQueue() *RequestQueue {
	rq := &RequestQueue{
		items: containers.NewPriorityQueue[Priority, LoadRequest](64),
	}
	rq.cond = sync.NewCond(&rq.mutex)
	return rq
}

// Push inserts the request in priority order and wakes one waiting worker.
// Returns false once the queue is closed.
func (rq *RequestQueue) Push(req LoadRequest) bool {
	rq.mutex.Lock()
	defer rq.mutex.Unlock()
	if rq.closed {
		return false
	}
	rq.items.Push(req.Priority, req)
	rq.cond.Signal()
	return true
}

/**
 * @brief Blocks until the highest-priority request can be handed out.
 * @param claim Optional, runs with the queue lock held right after the pop so
 * the caller can publish that it owns the request before anyone else observes
 * the queue again.
 * @returns false when the queue was closed.
 */
func (rq *RequestQueue) Pop(claim func(LoadRequest)) (LoadRequest, bool) {
	rq.mutex.Lock()
	defer rq.mutex.Unlock()

	for !rq.closed && (rq.held || rq.items.IsEmpty()) {
		rq.cond.Wait()
	}
	if rq.closed {
		return LoadRequest{}, false
	}
	req, err := rq.items.Pop()
	if err != nil {
		return LoadRequest{}, false
	}
	if claim != nil {
		claim(req)
	}
	return req, true
}

// PopHighestPriority is Pop without a claim hook.
func (rq *RequestQueue) PopHighestPriority() (LoadRequest, bool) {
	return rq.Pop(nil)
}

// Hold stops Pop from handing out requests. Waiting workers are woken so they
// re-check and go back to sleep on the held queue.
func (rq *RequestQueue) Hold() {
	rq.mutex.Lock()
	defer rq.mutex.Unlock()
	rq.held = true
	rq.cond.Broadcast()
}

func (rq *RequestQueue) Release() {
	rq.mutex.Lock()
	defer rq.mutex.Unlock()
	rq.held = false
	rq.cond.Broadcast()
}

func (rq *RequestQueue) IsHeld() bool {
	rq.mutex.Lock()
	defer rq.mutex.Unlock()
	return rq.held
}

// Close wakes every waiter; all subsequent Pop calls return false.
func (rq *RequestQueue) Close() {
	rq.mutex.Lock()
	defer rq.mutex.Unlock()
	rq.closed = true
	rq.cond.Broadcast()
}

// Clear drops every queued request and returns how many were dropped.
func (rq *RequestQueue) Clear() int {
	rq.mutex.Lock()
	defer rq.mutex.Unlock()
	n := rq.items.Len()
	rq.items.Clear()
	return n
}

func (rq *RequestQueue) Len() int {
	rq.mutex.Lock()
	defer rq.mutex.Unlock()
	return rq.items.Len()
}

func (rq *RequestQueue) IsEmpty() bool {
	return rq.Len() == 0
}
