package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	config        *ApplicationConfig
	events        *core.EventBus
	metrics       *core.LoadMetrics
	systemManager *systems.SystemManager
	metricsServer *http.Server
	clock         *core.Clock
	lastTime      time.Duration

	quit         chan struct{}
	quitOnce     sync.Once
	shutdownOnce sync.Once
	shutdownErr  error
	teardownOnce sync.Once
	teardownErr  error
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("%w: game has no application config", core.ErrInvalidConfig)
	}
	if g.FnUpdate == nil {
		return nil, fmt.Errorf("%w: game has no update function", core.ErrInvalidConfig)
	}
	if err := g.ApplicationConfig.Validate(); err != nil {
		return nil, err
	}

	level, _ := core.ParseLogLevel(g.ApplicationConfig.LogLevel)
	core.SetLogLevel(level)

	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		config:       g.ApplicationConfig,
		clock:        core.NewClock(),
		quit:         make(chan struct{}),
	}

	if g.FnBoot != nil {
		if err := g.FnBoot(); err != nil {
			return nil, err
		}
	}
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return core.ErrAlreadyInitialized
	}
	e.currentStage = EngineStageInitializing

	e.events = core.NewEventBus()
	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.metrics = core.NewLoadMetrics()

	sm, err := systems.NewSystemManager(systems.SystemManagerConfig{
		AssetBasePath: e.config.AssetBasePath,
		Workers:       e.config.Loader.Workers,
		Metrics:       e.metrics,
		Events:        e.events,
	})
	if err != nil {
		return err
	}
	e.systemManager = sm

	if e.config.WatchAssets {
		if err := sm.AssetManager.Watch(); err != nil {
			return errors.Join(err, e.teardown())
		}
	}

	if e.config.Metrics.Enabled {
		e.startMetricsServer()
	}

	e.gameInstance.SystemManager = sm
	e.gameInstance.Events = e.events
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(); err != nil {
			return errors.Join(err, e.teardown())
		}
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("%s initialized.", e.config.Name)
	return nil
}

/**
 * @brief Runs the owning loop until Quit is called or the quit event fires.
 * Every tick applies asset changes, drains completed loads and updates the game.
 */
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return core.ErrNotInitialized
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	ticker := time.NewTicker(e.config.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return nil
		case <-ticker.C:
			if err := e.tick(); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				e.Quit()
				return err
			}
		}
	}
}

func (e *Engine) tick() error {
	e.clock.Update()
	currentTime := e.clock.Elapsed()
	delta := currentTime - e.lastTime
	e.lastTime = currentTime

	e.applyAssetChanges()
	e.systemManager.Loader.ProcessCompleted()
	if err := e.systemManager.ApplyStale(); err != nil {
		core.LogWarn("failed to reload changed assets: %s", err)
	}

	return e.gameInstance.FnUpdate(delta)
}

func (e *Engine) applyAssetChanges() {
	if !e.config.WatchAssets {
		return
	}
	changes := e.systemManager.AssetManager.Changes()
	for {
		select {
		case rel, ok := <-changes:
			if !ok {
				return
			}
			if err := e.systemManager.Reload(rel); err != nil {
				core.LogWarn("failed to reload '%s': %s", rel, err)
			}
		default:
			return
		}
	}
}

// Quit stops Run. Safe to call from any goroutine.
func (e *Engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quit)
	})
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) SystemManager() *systems.SystemManager {
	return e.systemManager
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) Metrics() *core.LoadMetrics {
	return e.metrics
}

/**
 * @brief Stops the loop, the game, the loader and the metrics endpoint. Call
 * after Run returned. Safe to call more than once.
 */
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.currentStage = EngineStageShuttingDown
		e.Quit()

		var errs []error
		if e.gameInstance.FnShutdown != nil {
			errs = append(errs, e.gameInstance.FnShutdown())
		}
		errs = append(errs, e.teardown())
		e.shutdownErr = errors.Join(errs...)
		core.LogInfo("%s shut down.", e.config.Name)
	})
	return e.shutdownErr
}

// teardown stops the loader, the metrics endpoint and the event bus, once.
func (e *Engine) teardown() error {
	e.teardownOnce.Do(func() {
		var errs []error
		if e.systemManager != nil {
			errs = append(errs, e.systemManager.Shutdown())
		}
		if e.metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			errs = append(errs, e.metricsServer.Shutdown(ctx))
			cancel()
		}
		if e.events != nil {
			errs = append(errs, e.events.Shutdown())
		}
		e.teardownErr = errors.Join(errs...)
	})
	return e.teardownErr
}

func (e *Engine) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.metrics.Handler())
	e.metricsServer = &http.Server{
		Addr:              e.config.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		core.LogInfo("Serving metrics on %s/metrics.", e.config.Metrics.Listen)
		if err := e.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			core.LogError("metrics server: %s", err)
		}
	}()
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.Quit()
		return true
	}
	return false
}
