package loader

import (
	"errors"
	"fmt"
	"path"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/resources"
)

var (
	ErrNoWorkers      = fmt.Errorf("attempting to create worker pool with less than 1 worker")
	ErrNilFactory     = errors.New("loader requires a resource factory")
	ErrNilRegistry    = errors.New("loader requires a resource registry")
	ErrShutdown       = errors.New("loader is shut down")
	ErrEmptyPath      = errors.New("empty resource path")
	ErrUnknownKind    = errors.New("unknown resource type")
	ErrNilResource    = errors.New("factory returned no resource")
	ErrConstructPanic = errors.New("factory panicked")
)

/** @brief The configuration for the loader */
type Config struct {
	/** @brief Number of worker goroutines. 0 picks DefaultWorkerCount. */
	WorkerCount int
	/** @brief Optional load metrics. */
	Metrics *core.LoadMetrics
	/** @brief Optional bus receiving loaded/failed/paused/resumed events. */
	Events *core.EventBus
}

// DefaultWorkerCount leaves one CPU to the owning goroutine.
func DefaultWorkerCount() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

/** @brief Counters describing the current loading session. */
type Stats struct {
	Requested int
	Completed int
	Failed    int
	Pending   int
	Queued    int
	Buffered  int
	Busy      int
	Workers   int
}

/**
 * @brief Asynchronous resource loader. Requests may come from any goroutine;
 * ProcessCompleted, Pause and Resume belong to the single owning goroutine,
 * which is also the only one that ever touches the registry or runs callbacks.
 */
type Loader struct {
	factory  Factory
	registry Registry
	metrics  *core.LoadMetrics
	events   *core.EventBus

	requests    *RequestQueue
	handles     *HandleTable
	completions *CompletionQueue
	barrier     *PauseBarrier
	pool        *WorkerPool

	statsMutex sync.Mutex
	requested  int
	completed  int
	failed     int
	pending    int

	shutdown     atomic.Bool
	shutdownOnce sync.Once
}

func New(factory Factory, registry Registry, config Config) (*Loader, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	workers := config.WorkerCount
	if workers == 0 {
		workers = DefaultWorkerCount()
	}
	if workers < 0 {
		return nil, ErrNoWorkers
	}

	l := &Loader{
		factory:     factory,
		registry:    registry,
		metrics:     config.Metrics,
		events:      config.Events,
		requests:    NewRequestQueue(),
		handles:     NewHandleTable(),
		completions: NewCompletionQueue(),
	}
	l.barrier = NewPauseBarrier(l.requests, workers)

	pool, err := NewWorkerPool(workers, factory, l.requests, l.completions, l.barrier)
	if err != nil {
		return nil, err
	}
	pool.metrics = l.metrics
	pool.onFinished = l.onFinished
	l.pool = pool
	pool.start()

	core.LogInfo("Loader initialized with %d workers.", workers)
	return l, nil
}

// NormalizePath makes equivalent spellings of a path share one handle.
// Separators become forward slashes, the path is cleaned and a leading "./"
// dropped. Case is preserved.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	if p == "." {
		return ""
	}
	return strings.TrimPrefix(p, "./")
}

/**
 * @brief Requests an asynchronous load.
 * @param p The resource path, normalized before use.
 * @param kind The resource type passed to the factory.
 * @param callback Invoked once from ProcessCompleted. Can be nil.
 * @param priority Scheduling priority.
 * @returns The handle tracking the load. Concurrent requests for the same path
 * share one handle and one physical load.
 */
func (l *Loader) RequestLoad(p string, kind resources.ResourceType, callback Callback, priority Priority) (*Handle, error) {
	if l.shutdown.Load() {
		return nil, ErrShutdown
	}
	normalized := NormalizePath(p)
	if normalized == "" {
		return nil, ErrEmptyPath
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}

	h, isNew := l.handles.FindOrCreate(normalized, kind, callback)
	if !isNew {
		if h.Kind != kind {
			core.LogWarn("'%s' requested as %s while already loading as %s", normalized, kind, h.Kind)
		}
		core.LogDebug("joined in-flight load of '%s' (handle %s)", normalized, h.ID)
		return h, nil
	}

	l.statsMutex.Lock()
	l.pending++
	l.requested++
	l.publishPendingLocked()
	l.statsMutex.Unlock()

	if !l.requests.Push(LoadRequest{Path: normalized, Kind: kind, Priority: priority, Handle: h}) {
		l.statsMutex.Lock()
		l.pending--
		l.requested--
		l.publishPendingLocked()
		l.statsMutex.Unlock()
		l.handles.detach(h)
		return nil, ErrShutdown
	}
	return h, nil
}

func (l *Loader) onFinished(result *CompletionResult) {
	l.statsMutex.Lock()
	l.pending--
	l.completed++
	if !result.Success() {
		l.failed++
	}
	l.publishPendingLocked()
	l.statsMutex.Unlock()
}

// publishPendingLocked mirrors pending into the gauge. statsMutex must be held
// so gauge writes land in counter order.
func (l *Loader) publishPendingLocked() {
	if l.metrics != nil {
		l.metrics.SetPending(l.pending)
	}
}

/**
 * @brief Installs finished resources and fires their callbacks. Must be called
 * periodically from the owning goroutine. Never blocks on the workers.
 * @returns The number of results processed.
 */
func (l *Loader) ProcessCompleted() int {
	if l.shutdown.Load() {
		return 0
	}
	results := l.completions.DrainAll()
	if len(results) == 0 {
		return 0
	}

	for _, r := range results {
		if r.Success() {
			if !l.registry.Install(r.Kind, r.Path, r.Resource) {
				core.LogWarn("%s '%s' already registered, skipping install", r.Kind, r.Path)
			}
		}

		// From here on a new request for the path starts a fresh load, and
		// nothing can attach to this handle anymore.
		l.handles.detach(r.handle)
		r.Callbacks = r.handle.seal()

		for _, cb := range r.Callbacks {
			l.invoke(cb, r)
		}
		l.fire(r)
	}

	l.statsMutex.Lock()
	if l.pending == 0 && l.completions.Len() == 0 {
		l.resetLocked()
	}
	l.statsMutex.Unlock()

	return len(results)
}

func (l *Loader) invoke(cb Callback, r *CompletionResult) {
	defer func() {
		if rec := recover(); rec != nil {
			core.LogError("callback for '%s' panicked: %v", r.Path, rec)
		}
	}()
	cb(r.Resource, r.Err)
}

func (l *Loader) fire(r *CompletionResult) {
	if l.events == nil {
		return
	}
	ctx := core.EventContext{
		Path: r.Path,
		Kind: int(r.Kind),
		Err:  r.Err,
		Data: r.Resource,
	}
	if r.Success() {
		l.events.Fire(core.EVENT_CODE_RESOURCE_LOADED, l, ctx)
	} else {
		l.events.Fire(core.EVENT_CODE_RESOURCE_FAILED, l, ctx)
	}
}

// Pause blocks until no worker is inside a load. No load starts until Resume.
func (l *Loader) Pause() {
	if l.shutdown.Load() {
		return
	}
	l.barrier.Pause()
	core.LogDebug("Loader paused.")
	if l.events != nil {
		l.events.Fire(core.EVENT_CODE_LOADER_PAUSED, l, core.EventContext{})
	}
}

func (l *Loader) Resume() {
	if l.shutdown.Load() {
		return
	}
	l.barrier.Resume()
	core.LogDebug("Loader resumed.")
	if l.events != nil {
		l.events.Fire(core.EVENT_CODE_LOADER_RESUMED, l, core.EventContext{})
	}
}

func (l *Loader) IsPaused() bool {
	return l.barrier.IsPaused()
}

// GetLoadState reports NotLoaded for unknown paths. Drained paths report
// Loaded when the registry can answer lookups.
func (l *Loader) GetLoadState(p string) LoadState {
	normalized := NormalizePath(p)
	if h, ok := l.handles.Get(normalized); ok {
		return h.State()
	}
	if lookup, ok := l.registry.(registryLookup); ok && lookup.Contains(normalized) {
		return LoadStateLoaded
	}
	return LoadStateNotLoaded
}

// IsInFlight reports whether p has a live handle, from request until drain.
func (l *Loader) IsInFlight(p string) bool {
	_, ok := l.handles.Get(NormalizePath(p))
	return ok
}

// IsLoading is true while anything is queued, in flight or waiting to be drained.
func (l *Loader) IsLoading() bool {
	l.statsMutex.Lock()
	pending := l.pending
	l.statsMutex.Unlock()
	return pending > 0 || l.completions.Len() > 0
}

// GetLoadProgress is completed/requested for the current session, 1.0 when
// nothing was requested.
func (l *Loader) GetLoadProgress() float32 {
	l.statsMutex.Lock()
	defer l.statsMutex.Unlock()
	if l.requested == 0 {
		return 1.0
	}
	return float32(l.completed) / float32(l.requested)
}

func (l *Loader) GetCurrentlyLoadingPaths() []string {
	return l.barrier.CurrentlyLoading()
}

// ResetProgress starts a new session. Work still pending carries over.
func (l *Loader) ResetProgress() {
	l.statsMutex.Lock()
	defer l.statsMutex.Unlock()
	l.resetLocked()
}

func (l *Loader) resetLocked() {
	l.requested = l.pending
	l.completed = 0
	l.failed = 0
}

func (l *Loader) Stats() Stats {
	l.statsMutex.Lock()
	s := Stats{
		Requested: l.requested,
		Completed: l.completed,
		Failed:    l.failed,
		Pending:   l.pending,
	}
	l.statsMutex.Unlock()

	s.Queued = l.requests.Len()
	s.Buffered = l.completions.Len()
	s.Busy = l.barrier.BusyWorkers()
	s.Workers = l.pool.NumWorkers()
	return s
}

func (l *Loader) WorkerCount() int {
	return l.pool.NumWorkers()
}

/**
 * @brief Stops the workers and discards all outstanding work. Queued requests
 * and undrained results are dropped without invoking their callbacks; any
 * later ProcessCompleted call is a no-op.
 */
func (l *Loader) Shutdown() error {
	l.shutdownOnce.Do(func() {
		l.shutdown.Store(true)
		// The queue is closed before the gate is released, so held workers
		// wake to a closed queue and never pop queued work.
		if err := l.pool.Shutdown(); err != nil {
			core.LogError("failed to stop loader workers: %s", err)
		}
		l.barrier.Resume()
		dropped := l.requests.Clear()
		discarded := l.completions.Clear()
		l.handles.Clear()

		l.statsMutex.Lock()
		l.pending = 0
		l.publishPendingLocked()
		l.statsMutex.Unlock()

		core.LogInfo("Loader shut down (%d queued requests dropped, %d results discarded).", dropped, discarded)
	})
	return nil
}
