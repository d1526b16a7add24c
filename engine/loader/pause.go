package loader

import (
	"sync"

	"golang.org/x/exp/slices"
)

/**
 * @brief Lets the owner stop all file access by workers without shutting the
 * pool down. Pause returns only once no worker is inside a load, and no new
 * load starts until Resume.
 */
type PauseBarrier struct {
	gate *RequestQueue

	mutex  sync.Mutex
	idle   *sync.Cond
	paused bool
	busy   int
	// one slot per worker, empty when the worker is idle
	slots []string
}

func NewPauseBarrier(gate *RequestQueue, workers int) *PauseBarrier {
	pb := &PauseBarrier{
		gate:  gate,
		slots: make([]string, workers),
	}
	pb.idle = sync.NewCond(&pb.mutex)
	return pb
}

// Pause holds the request queue and waits for every in-flight load to finish.
// Loads are never aborted.
func (pb *PauseBarrier) Pause() {
	pb.mutex.Lock()
	pb.paused = true
	pb.mutex.Unlock()

	// After Hold returns every pop that got past the gate has already
	// registered itself through enter.
	pb.gate.Hold()

	pb.mutex.Lock()
	defer pb.mutex.Unlock()
	for pb.busy > 0 {
		pb.idle.Wait()
	}
}

func (pb *PauseBarrier) Resume() {
	pb.mutex.Lock()
	pb.paused = false
	pb.mutex.Unlock()

	pb.gate.Release()
}

func (pb *PauseBarrier) IsPaused() bool {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()
	return pb.paused
}

// enter marks worker as busy with path. Called with the queue lock held.
func (pb *PauseBarrier) enter(worker int, path string) {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()
	pb.slots[worker] = path
	pb.busy++
}

// leave marks worker as idle and wakes anyone waiting in Pause.
func (pb *PauseBarrier) leave(worker int) {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()
	pb.slots[worker] = ""
	pb.busy--
	pb.idle.Broadcast()
}

func (pb *PauseBarrier) BusyWorkers() int {
	pb.mutex.Lock()
	defer pb.mutex.Unlock()
	return pb.busy
}

// CurrentlyLoading returns the paths workers are constructing right now, sorted.
func (pb *PauseBarrier) CurrentlyLoading() []string {
	pb.mutex.Lock()
	out := make([]string, 0, pb.busy)
	for _, p := range pb.slots {
		if p != "" {
			out = append(out, p)
		}
	}
	pb.mutex.Unlock()

	slices.Sort(out)
	return out
}
