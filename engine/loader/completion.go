package loader

import (
	"sync"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

/**
 * @brief Outcome of one physical load. Owns Resource until the drain step
 * installs it. Exactly one of Resource and Err is set.
 */
type CompletionResult struct {
	Path     string
	Kind     resources.ResourceType
	Resource *resources.Resource
	Err      error
	/** @brief Callbacks sealed off the handle when the result is drained. */
	Callbacks []Callback

	handle *Handle
}

func (cr *CompletionResult) Success() bool {
	return cr.Err == nil && cr.Resource != nil
}

/**
 * @brief Buffer of finished results. Producers never wait for the consumer:
 * DrainAll swaps the buffer out in one step.
 */
type CompletionQueue struct {
	mutex   sync.Mutex
	results []*CompletionResult
}

func NewCompletionQueue() *CompletionQueue {
	return &CompletionQueue{}
}

func (cq *CompletionQueue) Push(result *CompletionResult) {
	cq.mutex.Lock()
	defer cq.mutex.Unlock()
	cq.results = append(cq.results, result)
}

// DrainAll returns everything buffered so far and leaves the queue empty.
func (cq *CompletionQueue) DrainAll() []*CompletionResult {
	cq.mutex.Lock()
	defer cq.mutex.Unlock()
	out := cq.results
	cq.results = nil
	return out
}

func (cq *CompletionQueue) Len() int {
	cq.mutex.Lock()
	defer cq.mutex.Unlock()
	return len(cq.results)
}

// Clear discards buffered results without running their callbacks.
func (cq *CompletionQueue) Clear() int {
	cq.mutex.Lock()
	defer cq.mutex.Unlock()
	n := len(cq.results)
	cq.results = nil
	return n
}
