package testbed

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-loader/engine"
	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/loader"
	"github.com/spaghettifunk/anima-loader/engine/resources"
)

const progressInterval = time.Second

type TestGame struct {
	*engine.Game
}

type gameState struct {
	requested int
	loaded    int
	failed    int
	done      bool

	sinceReport time.Duration
	started     time.Time
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg
}

// PriorityForKind loads what everything else depends on first.
func PriorityForKind(kind resources.ResourceType) loader.Priority {
	switch kind {
	case resources.ResourceTypeShader, resources.ResourceTypeMaterial:
		return loader.PriorityCritical
	case resources.ResourceTypeTexture, resources.ResourceTypeMesh:
		return loader.PriorityHigh
	case resources.ResourceTypeSound, resources.ResourceTypeAnimation:
		return loader.PriorityNormal
	default:
		return loader.PriorityLow
	}
}

func (g *TestGame) Boot() error {
	core.LogInfo("booting testbed...")
	return nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.SystemManager == nil {
		return fmt.Errorf("the engine is not yet initialized with all the system managers")
	}

	g.Events.Register(core.EVENT_CODE_RESOURCE_LOADED, g, g.gameOnEvent)
	g.Events.Register(core.EVENT_CODE_RESOURCE_FAILED, g, g.gameOnEvent)

	state := g.State.(*gameState)
	state.started = time.Now()

	n, err := g.SystemManager.RequestAll(PriorityForKind, nil)
	if err != nil {
		return err
	}
	state.requested = n
	core.LogInfo("Requested %d assets from '%s' on %d workers.", n, g.SystemManager.AssetManager.BasePath(), g.SystemManager.Loader.WorkerCount())
	return nil
}

func (g *TestGame) Update(deltaTime time.Duration) error {
	state := g.State.(*gameState)
	l := g.SystemManager.Loader

	state.sinceReport += deltaTime
	if state.sinceReport >= progressInterval && l.IsLoading() {
		state.sinceReport = 0
		s := l.Stats()
		core.LogInfo("progress %.0f%% (%d/%d, %d failed) loading: %v",
			l.GetLoadProgress()*100, s.Completed, s.Requested, s.Failed, l.GetCurrentlyLoadingPaths())
	}

	if !state.done && !l.IsLoading() {
		state.done = true
		g.report(state)
		if !g.ApplicationConfig.WatchAssets {
			g.Events.Fire(core.EVENT_CODE_APPLICATION_QUIT, g, core.EventContext{})
		}
	}
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("TestGame Shutdown fn....")
	if g.Events != nil {
		g.Events.Unregister(core.EVENT_CODE_RESOURCE_LOADED, g)
		g.Events.Unregister(core.EVENT_CODE_RESOURCE_FAILED, g)
	}
	return nil
}

func (g *TestGame) report(state *gameState) {
	registry := g.SystemManager.Registry
	core.LogInfo("Loaded %d of %d assets in %s (%d failed).", state.loaded, state.requested, time.Since(state.started).Round(time.Millisecond), state.failed)
	for _, kind := range resources.ResourceTypes() {
		if n := registry.CountByKind(kind); n > 0 {
			core.LogInfo("  %-12s %d", kind, n)
		}
	}
}

func (g *TestGame) gameOnEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	state := g.State.(*gameState)
	switch code {
	case core.EVENT_CODE_RESOURCE_LOADED:
		state.loaded++
		core.LogDebug("loaded '%s'", data.Path)
	case core.EVENT_CODE_RESOURCE_FAILED:
		state.failed++
		core.LogWarn("failed to load '%s': %s", data.Path, data.Err)
	}
	// Other listeners may care too.
	return false
}

// Loaded returns how many assets loaded and failed so far.
func (g *TestGame) Loaded() (loaded int, failed int) {
	state := g.State.(*gameState)
	return state.loaded, state.failed
}
