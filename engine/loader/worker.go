package loader

import (
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/resources"
)

/**
 * @brief Fixed set of long-lived worker goroutines. Each one pops the most
 * important request, constructs it through the factory and publishes the
 * outcome on the completion queue.
 */
type WorkerPool struct {
	numWorkers  int
	factory     Factory
	requests    *RequestQueue
	completions *CompletionQueue
	barrier     *PauseBarrier
	metrics     *core.LoadMetrics
	// called after a result is published, before the worker reports idle
	onFinished func(result *CompletionResult)

	wg sync.WaitGroup
}

func NewWorkerPool(numWorkers int, factory Factory, requests *RequestQueue, completions *CompletionQueue, barrier *PauseBarrier) (*WorkerPool, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if factory == nil {
		return nil, ErrNilFactory
	}
	return &WorkerPool{
		numWorkers:  numWorkers,
		factory:     factory,
		requests:    requests,
		completions: completions,
		barrier:     barrier,
	}, nil
}

func (wp *WorkerPool) NumWorkers() int {
	return wp.numWorkers
}

func (wp *WorkerPool) start() {
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go func(id int) {
			defer wp.wg.Done()
			wp.run(id)
		}(i)
	}
}

func (wp *WorkerPool) run(id int) {
	claim := func(req LoadRequest) {
		wp.barrier.enter(id, req.Path)
	}
	for {
		req, ok := wp.requests.Pop(claim)
		if !ok {
			return
		}
		wp.process(id, req)
	}
}

func (wp *WorkerPool) process(id int, req LoadRequest) {
	h := req.Handle
	if !h.transition(LoadStateQueued, LoadStateLoading) {
		core.LogWarn("worker %d: handle %s for '%s' was not queued (state %s)", id, h.ID, h.Path, h.State())
	}
	if wp.metrics != nil {
		wp.metrics.SetBusyWorkers(wp.barrier.BusyWorkers())
	}
	core.LogDebug("worker %d: loading %s '%s' (priority %s, handle %s)", id, req.Kind, req.Path, req.Priority, h.ID)

	start := time.Now()
	res, err := wp.construct(req.Path, req.Kind)
	elapsed := time.Since(start)

	result := &CompletionResult{
		Path:     req.Path,
		Kind:     req.Kind,
		Resource: res,
		Err:      err,
		handle:   h,
	}
	wp.completions.Push(result)
	state := h.complete(res, err)

	if err != nil {
		core.LogError("worker %d: failed to load %s '%s': %s", id, req.Kind, req.Path, err)
	} else {
		core.LogDebug("worker %d: %s '%s' %s in %s", id, req.Kind, req.Path, state, elapsed)
	}
	if wp.metrics != nil {
		wp.metrics.ObserveLoad(req.Kind.String(), elapsed, err == nil)
	}
	if wp.onFinished != nil {
		wp.onFinished(result)
	}

	wp.barrier.leave(id)
	if wp.metrics != nil {
		wp.metrics.SetBusyWorkers(wp.barrier.BusyWorkers())
	}
}

// construct calls the factory and reports panics and nil resources as errors.
func (wp *WorkerPool) construct(path string, kind resources.ResourceType) (res *resources.Resource, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("%w: %s '%s': %v", ErrConstructPanic, kind, path, r)
		}
	}()

	res, err = wp.factory.Construct(path, kind)
	if err != nil {
		return nil, fmt.Errorf("construct %s '%s': %w", kind, path, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %s '%s'", ErrNilResource, kind, path)
	}
	if res.Type == resources.ResourceTypeNone {
		res.Type = kind
	}
	if res.FullPath == "" {
		res.FullPath = path
	}
	res.LoadedAt = time.Now()
	return res, nil
}

/**
 * @brief Shuts the worker pool down. Workers finish the item they are on,
 * nothing else is started.
 */
func (wp *WorkerPool) Shutdown() error {
	wp.requests.Close()
	wp.wg.Wait()
	return nil
}
