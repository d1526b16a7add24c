package loader

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

/**
 * @brief Shared state of one physical load. Created by the first request for
 * a path, advanced by exactly one worker and retired by the drain step once
 * every attached callback has fired.
 */
type Handle struct {
	/** @brief Unique per physical load, used to correlate log lines. */
	ID   uuid.UUID
	Path string
	Kind resources.ResourceType

	state atomic.Int32

	// guards everything below
	mutex     sync.Mutex
	callbacks []Callback
	sealed    bool
	resource  *resources.Resource
	err       error
}

func newHandle(path string, kind resources.ResourceType) *Handle {
	h := &Handle{
		ID:   uuid.New(),
		Path: path,
		Kind: kind,
	}
	h.state.Store(int32(LoadStateQueued))
	return h
}

func (h *Handle) State() LoadState {
	return LoadState(h.state.Load())
}

// transition moves the handle from one state to the next. Anything other
// than a single forward step out of the expected state is rejected.
func (h *Handle) transition(from, to LoadState) bool {
	if !validTransition(from, to) {
		return false
	}
	return h.state.CompareAndSwap(int32(from), int32(to))
}

func validTransition(from, to LoadState) bool {
	switch from {
	case LoadStateNotLoaded:
		return to == LoadStateQueued
	case LoadStateQueued:
		return to == LoadStateLoading
	case LoadStateLoading:
		return to == LoadStateLoaded || to == LoadStateFailed
	default:
		return false
	}
}

// Result returns what the worker produced. Both values are nil until the
// handle reaches a terminal state.
func (h *Handle) Result() (*resources.Resource, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.resource, h.err
}

// CallbackCount is the number of callbacks waiting for the drain step.
func (h *Handle) CallbackCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.callbacks)
}

// attach appends cb unless the handle was already sealed by the drain step.
// A nil cb still counts as a successful attach.
func (h *Handle) attach(cb Callback) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.sealed {
		return false
	}
	if cb != nil {
		h.callbacks = append(h.callbacks, cb)
	}
	return true
}

// complete stores the outcome, publishes the terminal state and returns the
// state the handle actually holds.
func (h *Handle) complete(res *resources.Resource, err error) LoadState {
	to := LoadStateLoaded
	if err != nil {
		to = LoadStateFailed
		res = nil
	}
	h.mutex.Lock()
	h.resource = res
	h.err = err
	h.mutex.Unlock()

	h.transition(LoadStateLoading, to)
	return h.State()
}

// seal closes the callback list and returns it. Later attach calls fail.
func (h *Handle) seal() []Callback {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.sealed = true
	cbs := h.callbacks
	h.callbacks = nil
	return cbs
}

/**
 * @brief Map from normalized path to the live Handle for that path. Lookup and
 * insert happen in one critical section, which is what guarantees at most one
 * physical load per path.
 */
type HandleTable struct {
	mutex   sync.Mutex
	handles map[string]*Handle
}

func NewHandleTable() *HandleTable {
	return &HandleTable{
		handles: make(map[string]*Handle),
	}
}

/**
 * @brief Joins an existing queued, loading or loaded handle, or creates a new
 * queued one.
 * @param path Normalized path.
 * @param kind Resource type used when a new handle is created.
 * @param cb Callback to attach. Can be nil.
 * @returns The handle and true when the caller must enqueue a physical load.
 */
func (ht *HandleTable) FindOrCreate(path string, kind resources.ResourceType, cb Callback) (*Handle, bool) {
	ht.mutex.Lock()
	defer ht.mutex.Unlock()

	if h, ok := ht.handles[path]; ok {
		switch h.State() {
		case LoadStateQueued, LoadStateLoading, LoadStateLoaded:
			if h.attach(cb) {
				return h, false
			}
		}
	}

	h := newHandle(path, kind)
	h.attach(cb)
	ht.handles[path] = h
	return h, true
}

func (ht *HandleTable) Get(path string) (*Handle, bool) {
	ht.mutex.Lock()
	defer ht.mutex.Unlock()
	h, ok := ht.handles[path]
	return h, ok
}

func (ht *HandleTable) Remove(path string) {
	ht.mutex.Lock()
	defer ht.mutex.Unlock()
	delete(ht.handles, path)
}

// detach removes h only if it is still the live handle for its path. A failed
// handle can be replaced by a retry before it is drained.
func (ht *HandleTable) detach(h *Handle) bool {
	ht.mutex.Lock()
	defer ht.mutex.Unlock()
	if cur, ok := ht.handles[h.Path]; ok && cur == h {
		delete(ht.handles, h.Path)
		return true
	}
	return false
}

func (ht *HandleTable) Len() int {
	ht.mutex.Lock()
	defer ht.mutex.Unlock()
	return len(ht.handles)
}

func (ht *HandleTable) Clear() {
	ht.mutex.Lock()
	defer ht.mutex.Unlock()
	clear(ht.handles)
}
