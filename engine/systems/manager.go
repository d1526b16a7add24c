package systems

import (
	"errors"

	"github.com/spaghettifunk/anima-loader/engine/assets"
	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/loader"
	"github.com/spaghettifunk/anima-loader/engine/resources"
)

type SystemManagerConfig struct {
	AssetBasePath string
	Workers       int
	Metrics       *core.LoadMetrics
	Events        *core.EventBus
}

/**
 * @brief Wires the asset factory, the registry and the loader together.
 * Owned by the engine goroutine.
 */
type SystemManager struct {
	AssetManager *assets.AssetManager
	Registry     *ResourceRegistry
	Loader       *loader.Loader

	events *core.EventBus
	// changed while loading, reloaded after the drain
	stale map[string]resources.ResourceType
}

func NewSystemManager(config SystemManagerConfig) (*SystemManager, error) {
	am, err := assets.NewAssetManager(config.AssetBasePath)
	if err != nil {
		return nil, err
	}
	registry := NewResourceRegistry(ResourceRegistryConfig{
		Unloader: am,
	})
	l, err := loader.New(am, registry, loader.Config{
		WorkerCount: config.Workers,
		Metrics:     config.Metrics,
		Events:      config.Events,
	})
	if err != nil {
		_ = am.Close()
		return nil, err
	}
	return &SystemManager{
		AssetManager: am,
		Registry:     registry,
		Loader:       l,
		events:       config.Events,
		stale:        make(map[string]resources.ResourceType),
	}, nil
}

/**
 * @brief Requests every asset found under the base path.
 * @param priorityOf Picks the priority per kind. Nil loads everything at normal priority.
 * @returns The number of requests issued.
 */
func (sm *SystemManager) RequestAll(priorityOf func(resources.ResourceType) loader.Priority, callback loader.Callback) (int, error) {
	found, err := sm.AssetManager.Scan()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range found {
		priority := loader.PriorityNormal
		if priorityOf != nil {
			priority = priorityOf(a.Type)
		}
		if _, err := sm.Loader.RequestLoad(a.Path, a.Type, callback, priority); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

/**
 * @brief Drops the installed copy of a changed asset and loads it again at
 * high priority. A load that already started may have read the old content,
 * so its path is reloaded again once that load is drained.
 */
func (sm *SystemManager) Reload(path string) error {
	kind := assets.DetermineAssetType(path)
	if kind == resources.ResourceTypeNone {
		return nil
	}
	normalized := loader.NormalizePath(path)
	if sm.events != nil {
		sm.events.Fire(core.EVENT_CODE_ASSET_CHANGED, sm, core.EventContext{
			Path: normalized,
			Kind: int(kind),
		})
	}
	if sm.Loader.IsInFlight(normalized) && sm.Loader.GetLoadState(normalized) != loader.LoadStateQueued {
		sm.stale[normalized] = kind
		return nil
	}
	return sm.reload(normalized, kind)
}

/**
 * @brief Reloads paths that changed while their previous load was running.
 * Call after ProcessCompleted.
 */
func (sm *SystemManager) ApplyStale() error {
	var errs []error
	for p, kind := range sm.stale {
		if sm.Loader.IsInFlight(p) {
			continue
		}
		delete(sm.stale, p)
		if err := sm.reload(p, kind); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (sm *SystemManager) reload(path string, kind resources.ResourceType) error {
	if sm.Registry.Remove(path) {
		core.LogInfo("Reloading '%s'.", path)
	}
	_, err := sm.Loader.RequestLoad(path, kind, nil, loader.PriorityHigh)
	return err
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.Loader.Shutdown(); err != nil {
		return err
	}
	if err := sm.Registry.Shutdown(); err != nil {
		return err
	}
	return sm.AssetManager.Close()
}
