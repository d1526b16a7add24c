package engine

import (
	"time"

	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/systems"
)

type Game struct {
	ApplicationConfig *ApplicationConfig
	// Set by the engine before FnInitialize.
	SystemManager *systems.SystemManager
	Events        *core.EventBus
	State         interface{}
	FnBoot        Boot
	FnInitialize  Initialize
	FnUpdate      Update
	FnShutdown    Shutdown
}

type Boot func() error
type Initialize func() error
type Update func(deltaTime time.Duration) error
type Shutdown func() error
