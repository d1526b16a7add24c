package loader

import (
	"fmt"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

/**
 * @brief Determines the order in which queued requests are handed to workers.
 * Higher priorities always pop first; order among equal priorities is best-effort FIFO.
 */
type Priority int

const (
	/** @brief Things that can wait, such as preloading the next level. */
	PriorityLow Priority = iota
	/** @brief The default for gameplay assets. */
	PriorityNormal
	/** @brief Assets needed in the next few frames. */
	PriorityHigh
	/** @brief Assets blocking the current frame. Use sparingly. */
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

/** @brief Lifecycle of a single path. Transitions only move forward. */
type LoadState int32

const (
	LoadStateNotLoaded LoadState = iota
	LoadStateQueued
	LoadStateLoading
	LoadStateLoaded
	LoadStateFailed
)

func (s LoadState) String() string {
	switch s {
	case LoadStateNotLoaded:
		return "not_loaded"
	case LoadStateQueued:
		return "queued"
	case LoadStateLoading:
		return "loading"
	case LoadStateLoaded:
		return "loaded"
	case LoadStateFailed:
		return "failed"
	default:
		return fmt.Sprintf("load_state(%d)", int32(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s LoadState) Terminal() bool {
	return s == LoadStateLoaded || s == LoadStateFailed
}

/**
 * @brief Invoked on the goroutine calling ProcessCompleted. On failure res is
 * nil and err carries the reason.
 */
type Callback func(res *resources.Resource, err error)

/**
 * @brief Builds a resource from a path. Called concurrently from worker
 * goroutines, so implementations must be safe for concurrent use on
 * different paths.
 */
type Factory interface {
	Construct(path string, kind resources.ResourceType) (*resources.Resource, error)
}

/**
 * @brief Receives finished resources. Only ever called from the goroutine
 * calling ProcessCompleted. Returns false when the path is already present.
 */
type Registry interface {
	Install(kind resources.ResourceType, path string, res *resources.Resource) bool
}

// Registries that can answer lookups let GetLoadState report drained paths as loaded.
type registryLookup interface {
	Contains(path string) bool
}

/** @brief A queued unit of work. Only lives inside the RequestQueue. */
type LoadRequest struct {
	Path     string
	Kind     resources.ResourceType
	Priority Priority
	Handle   *Handle
}
