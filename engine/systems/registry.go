package systems

import (
	"sort"
	"sync"
	"time"

	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/resources"
)

/** @brief Hands a resource back to whoever created it. */
type Unloader interface {
	Unload(res *resources.Resource) error
}

/** @brief The configuration for the resource registry */
type ResourceRegistryConfig struct {
	/** @brief Optional. Receives every removed resource. */
	Unloader Unloader
	/** @brief Remove a resource once its last reference is released. */
	AutoRelease bool
}

/** @brief Bookkeeping for an installed resource. */
type ResourceReference struct {
	Resource       *resources.Resource
	Kind           resources.ResourceType
	ReferenceCount uint64
	InstalledAt    time.Time
}

/**
 * @brief Holds every installed resource by normalized path. Installs and
 * removals happen on the owning goroutine; lookups may come from anywhere.
 */
type ResourceRegistry struct {
	config  ResourceRegistryConfig
	mutex   sync.RWMutex
	entries map[string]*ResourceReference
}

func NewResourceRegistry(config ResourceRegistryConfig) *ResourceRegistry {
	return &ResourceRegistry{
		config:  config,
		entries: make(map[string]*ResourceReference),
	}
}

/**
 * @brief Installs a loaded resource.
 * @returns False if the path already holds a resource, which is left untouched.
 */
func (rr *ResourceRegistry) Install(kind resources.ResourceType, path string, res *resources.Resource) bool {
	if res == nil {
		return false
	}
	rr.mutex.Lock()
	defer rr.mutex.Unlock()
	if _, ok := rr.entries[path]; ok {
		return false
	}
	rr.entries[path] = &ResourceReference{
		Resource:    res,
		Kind:        kind,
		InstalledAt: time.Now(),
	}
	core.LogDebug("Installed %s '%s'.", kind, path)
	return true
}

func (rr *ResourceRegistry) Get(path string) (*resources.Resource, bool) {
	rr.mutex.RLock()
	defer rr.mutex.RUnlock()
	ref, ok := rr.entries[path]
	if !ok {
		return nil, false
	}
	return ref.Resource, true
}

func (rr *ResourceRegistry) Contains(path string) bool {
	rr.mutex.RLock()
	defer rr.mutex.RUnlock()
	_, ok := rr.entries[path]
	return ok
}

// Reference returns a copy of the bookkeeping for path.
func (rr *ResourceRegistry) Reference(path string) (ResourceReference, bool) {
	rr.mutex.RLock()
	defer rr.mutex.RUnlock()
	ref, ok := rr.entries[path]
	if !ok {
		return ResourceReference{}, false
	}
	return *ref, true
}

/**
 * @brief Returns the resource at path and takes a reference to it.
 */
func (rr *ResourceRegistry) Acquire(path string) (*resources.Resource, bool) {
	rr.mutex.Lock()
	defer rr.mutex.Unlock()
	ref, ok := rr.entries[path]
	if !ok {
		return nil, false
	}
	ref.ReferenceCount++
	return ref.Resource, true
}

/**
 * @brief Drops a reference taken with Acquire. With AutoRelease the resource
 * is removed when no references remain.
 * @returns False if path is not installed or holds no references.
 */
func (rr *ResourceRegistry) Release(path string) bool {
	rr.mutex.Lock()
	ref, ok := rr.entries[path]
	if !ok || ref.ReferenceCount == 0 {
		rr.mutex.Unlock()
		if ok {
			core.LogWarn("Release called on '%s' with no outstanding references.", path)
		}
		return false
	}
	ref.ReferenceCount--
	drop := ref.ReferenceCount == 0 && rr.config.AutoRelease
	if drop {
		delete(rr.entries, path)
	}
	rr.mutex.Unlock()

	if drop {
		rr.unload(path, ref.Resource)
	}
	return true
}

/**
 * @brief Removes the resource at path regardless of references and hands it
 * to the unloader.
 * @returns False if nothing was installed at path.
 */
func (rr *ResourceRegistry) Remove(path string) bool {
	rr.mutex.Lock()
	ref, ok := rr.entries[path]
	if ok {
		delete(rr.entries, path)
	}
	rr.mutex.Unlock()

	if !ok {
		return false
	}
	if ref.ReferenceCount > 0 {
		core.LogDebug("Removing '%s' with %d outstanding references.", path, ref.ReferenceCount)
	}
	rr.unload(path, ref.Resource)
	return true
}

func (rr *ResourceRegistry) Count() int {
	rr.mutex.RLock()
	defer rr.mutex.RUnlock()
	return len(rr.entries)
}

func (rr *ResourceRegistry) CountByKind(kind resources.ResourceType) int {
	rr.mutex.RLock()
	defer rr.mutex.RUnlock()
	n := 0
	for _, ref := range rr.entries {
		if ref.Kind == kind {
			n++
		}
	}
	return n
}

// Paths returns the installed paths in sorted order.
func (rr *ResourceRegistry) Paths() []string {
	rr.mutex.RLock()
	out := make([]string, 0, len(rr.entries))
	for p := range rr.entries {
		out = append(out, p)
	}
	rr.mutex.RUnlock()
	sort.Strings(out)
	return out
}

/**
 * @brief Removes and unloads everything.
 */
func (rr *ResourceRegistry) Shutdown() error {
	rr.mutex.Lock()
	entries := rr.entries
	rr.entries = make(map[string]*ResourceReference)
	rr.mutex.Unlock()

	for p, ref := range entries {
		rr.unload(p, ref.Resource)
	}
	core.LogInfo("Resource registry released %d resources.", len(entries))
	return nil
}

func (rr *ResourceRegistry) unload(path string, res *resources.Resource) {
	if rr.config.Unloader == nil {
		return
	}
	if err := rr.config.Unloader.Unload(res); err != nil {
		core.LogWarn("failed to unload '%s': %s", path, err)
	}
}
