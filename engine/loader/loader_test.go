package loader

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/resources"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"textures/wall.png":          "textures/wall.png",
		"./textures/wall.png":        "textures/wall.png",
		"textures//wall.png":         "textures/wall.png",
		"textures\\wall.png":         "textures/wall.png",
		"textures/../textures/a.png": "textures/a.png",
		"  meshes/Car.OBJ ":          "meshes/Car.OBJ",
		"/abs/path.wav":              "/abs/path.wav",
		"":                           "",
		".":                          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePath(in), "input %q", in)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, newFakeRegistry(), Config{})
	assert.ErrorIs(t, err, ErrNilFactory)

	_, err = New(newFakeFactory(nil), nil, Config{})
	assert.ErrorIs(t, err, ErrNilRegistry)

	_, err = New(newFakeFactory(nil), newFakeRegistry(), Config{WorkerCount: -1})
	assert.ErrorIs(t, err, ErrNoWorkers)

	l, err := New(newFakeFactory(nil), newFakeRegistry(), Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkerCount(), l.WorkerCount())
	assert.GreaterOrEqual(t, l.WorkerCount(), 1)
	require.NoError(t, l.Shutdown())
}

func TestRequestLoadValidation(t *testing.T) {
	l := newTestLoader(t, 1, newFakeFactory(nil), newFakeRegistry())

	_, err := l.RequestLoad("", resources.ResourceTypeTexture, nil, PriorityNormal)
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = l.RequestLoad("a.png", resources.ResourceTypeNone, nil, PriorityNormal)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRequestLoadInstallsAndCallsBack(t *testing.T) {
	registry := newFakeRegistry()
	l := newTestLoader(t, 2, newFakeFactory(nil), registry)

	var got *resources.Resource
	var gotErr error
	fired := 0
	h, err := l.RequestLoad("./textures/wall.png", resources.ResourceTypeTexture, func(res *resources.Resource, err error) {
		got, gotErr = res, err
		fired++
	}, PriorityNormal)
	require.NoError(t, err)
	assert.Equal(t, "textures/wall.png", h.Path)

	drainUntil(t, l, func() bool { return fired == 1 })
	require.NoError(t, gotErr)
	require.NotNil(t, got)
	assert.Equal(t, "textures/wall.png", got.FullPath)
	assert.Equal(t, resources.ResourceTypeTexture, got.Type)
	assert.False(t, got.LoadedAt.IsZero())
	assert.Same(t, got, registry.installed["textures/wall.png"])

	_, ok := l.handles.Get("textures/wall.png")
	assert.False(t, ok, "handle is removed after the drain")
	assert.Equal(t, LoadStateLoaded, l.GetLoadState("textures/wall.png"), "registry lookup")
	assert.Equal(t, LoadStateNotLoaded, l.GetLoadState("textures/other.png"))
}

func TestConcurrentRequestsShareOnePhysicalLoad(t *testing.T) {
	release := newGate()
	factory := newFakeFactory(func(path string, kind resources.ResourceType) (*resources.Resource, error) {
		release.wait()
		return okResource(path, kind)
	})
	registry := newFakeRegistry()
	l := newTestLoader(t, 4, factory, registry)

	const n = 32
	var mutex sync.Mutex
	var results []*resources.Resource
	var handles sync.Map

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := l.RequestLoad("meshes/car.obj", resources.ResourceTypeMesh, func(res *resources.Resource, err error) {
				mutex.Lock()
				results = append(results, res)
				mutex.Unlock()
			}, Priority(i%4))
			if assert.NoError(t, err) {
				handles.Store(h, true)
			}
		}(i)
	}
	wg.Wait()
	release.open()

	drainUntil(t, l, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(results) == n
	})

	assert.Equal(t, 1, factory.CallCount("meshes/car.obj"))
	assert.Equal(t, 1, registry.installs)
	distinct := 0
	handles.Range(func(_, _ any) bool { distinct++; return true })
	assert.Equal(t, 1, distinct)
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

// Low, Critical and Normal requests queued before the single worker runs:
// Critical is constructed first.
func TestPriorityOrderWithSingleWorker(t *testing.T) {
	factory := newFakeFactory(nil)
	l := newTestLoader(t, 1, factory, newFakeRegistry())

	l.Pause()
	_, err := l.RequestLoad("low.wav", resources.ResourceTypeSound, nil, PriorityLow)
	require.NoError(t, err)
	_, err = l.RequestLoad("critical.wav", resources.ResourceTypeSound, nil, PriorityCritical)
	require.NoError(t, err)
	_, err = l.RequestLoad("normal.wav", resources.ResourceTypeSound, nil, PriorityNormal)
	require.NoError(t, err)
	l.Resume()

	drainUntil(t, l, func() bool { return !l.IsLoading() })
	assert.Equal(t, []string{"critical.wav", "normal.wav", "low.wav"}, factory.Calls())
}

// The same path requested twice with different callbacks: one drain fires
// both exactly once and retires the handle.
func TestSamePathTwoCallbacksSingleDrain(t *testing.T) {
	release := newGate()
	factory := newFakeFactory(func(path string, kind resources.ResourceType) (*resources.Resource, error) {
		release.wait()
		return okResource(path, kind)
	})
	l := newTestLoader(t, 2, factory, newFakeRegistry())

	first, second := 0, 0
	h1, err := l.RequestLoad("anims/run.anim", resources.ResourceTypeAnimation, func(*resources.Resource, error) { first++ }, PriorityNormal)
	require.NoError(t, err)
	h2, err := l.RequestLoad("anims/run.anim", resources.ResourceTypeAnimation, func(*resources.Resource, error) { second++ }, PriorityHigh)
	require.NoError(t, err)
	assert.Same(t, h1, h2)

	release.open()
	waitFor(t, func() bool { return l.completions.Len() == 1 })

	assert.Equal(t, 1, l.ProcessCompleted())
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
	_, ok := l.handles.Get("anims/run.anim")
	assert.False(t, ok)

	assert.Equal(t, 0, l.ProcessCompleted())
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
}

func TestCallbackAttachedAfterLoadBeforeDrain(t *testing.T) {
	l := newTestLoader(t, 1, newFakeFactory(nil), newFakeRegistry())

	h, err := l.RequestLoad("a.txt", resources.ResourceTypeText, nil, PriorityNormal)
	require.NoError(t, err)
	waitFor(t, func() bool { return h.State() == LoadStateLoaded })

	late := 0
	h2, err := l.RequestLoad("a.txt", resources.ResourceTypeText, func(*resources.Resource, error) { late++ }, PriorityNormal)
	require.NoError(t, err)
	assert.Same(t, h, h2)

	drainUntil(t, l, func() bool { return late == 1 })
}

func TestShutdownDiscardsQueuedWork(t *testing.T) {
	release := newGate()
	var started atomic.Int32
	factory := newFakeFactory(func(path string, kind resources.ResourceType) (*resources.Resource, error) {
		started.Add(1)
		release.wait()
		return okResource(path, kind)
	})
	l := newTestLoader(t, 1, factory, newFakeRegistry())

	fired := atomic.Int32{}
	cb := func(*resources.Resource, error) { fired.Add(1) }
	for i := 0; i < 5; i++ {
		_, err := l.RequestLoad(fmt.Sprintf("queued/%d.bin", i), resources.ResourceTypeBinary, cb, PriorityNormal)
		require.NoError(t, err)
	}
	waitFor(t, func() bool { return started.Load() == 1 })

	go func() {
		time.Sleep(20 * time.Millisecond)
		release.open()
	}()
	require.NoError(t, l.Shutdown())

	assert.Equal(t, int32(1), started.Load(), "queued requests never start")
	assert.Equal(t, 0, l.ProcessCompleted())
	assert.Equal(t, int32(0), fired.Load())
	assert.False(t, l.IsLoading())
	assert.Empty(t, l.GetCurrentlyLoadingPaths())
	assert.Equal(t, 0, l.handles.Len())

	_, err := l.RequestLoad("after.bin", resources.ResourceTypeBinary, cb, PriorityNormal)
	assert.ErrorIs(t, err, ErrShutdown)
	require.NoError(t, l.Shutdown(), "shutdown is idempotent")

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(0), fired.Load())
}

func TestFailuresAreReportedAndRetryable(t *testing.T) {
	var attempts atomic.Int32
	missing := errors.New("file not found")
	factory := newFakeFactory(func(path string, kind resources.ResourceType) (*resources.Resource, error) {
		switch path {
		case "err.png":
			if attempts.Add(1) == 1 {
				return nil, missing
			}
			return okResource(path, kind)
		case "nil.png":
			return nil, nil
		case "panic.png":
			panic("decoder exploded")
		}
		return okResource(path, kind)
	})
	registry := newFakeRegistry()
	l := newTestLoader(t, 2, factory, registry)

	errs := map[string]error{}
	record := func(path string) Callback {
		return func(res *resources.Resource, err error) {
			assert.Nil(t, res)
			errs[path] = err
		}
	}
	for _, p := range []string{"err.png", "nil.png", "panic.png"} {
		_, err := l.RequestLoad(p, resources.ResourceTypeTexture, record(p), PriorityNormal)
		require.NoError(t, err)
	}
	waitFor(t, func() bool {
		return l.GetLoadState("err.png") == LoadStateFailed &&
			l.GetLoadState("nil.png") == LoadStateFailed &&
			l.GetLoadState("panic.png") == LoadStateFailed
	})
	waitFor(t, func() bool { return l.Stats().Failed == 3 })
	drainUntil(t, l, func() bool { return len(errs) == 3 })

	assert.ErrorIs(t, errs["err.png"], missing)
	assert.ErrorIs(t, errs["nil.png"], ErrNilResource)
	assert.ErrorIs(t, errs["panic.png"], ErrConstructPanic)
	assert.Equal(t, 0, registry.installs)
	assert.Equal(t, 0, l.Stats().Failed, "a full drain ends the session")

	// workers survived, and a fresh request retries
	var retried *resources.Resource
	_, err := l.RequestLoad("err.png", resources.ResourceTypeTexture, func(res *resources.Resource, err error) {
		retried = res
	}, PriorityNormal)
	require.NoError(t, err)
	drainUntil(t, l, func() bool { return retried != nil })
	assert.Equal(t, 2, factory.CallCount("err.png"))
}

func TestProcessCompletedOnEmptyQueueIsNoop(t *testing.T) {
	registry := newFakeRegistry()
	l := newTestLoader(t, 1, newFakeFactory(nil), registry)

	assert.Equal(t, 0, l.ProcessCompleted())
	assert.Equal(t, 0, l.ProcessCompleted())
	assert.Equal(t, 0, registry.installs)
}

func TestDuplicateInstallIsSkipped(t *testing.T) {
	registry := newFakeRegistry()
	existing := &resources.Resource{Name: "existing"}
	registry.installed["dup.png"] = existing
	l := newTestLoader(t, 1, newFakeFactory(nil), registry)

	var got *resources.Resource
	_, err := l.RequestLoad("dup.png", resources.ResourceTypeTexture, func(res *resources.Resource, err error) {
		require.NoError(t, err)
		got = res
	}, PriorityNormal)
	require.NoError(t, err)

	drainUntil(t, l, func() bool { return got != nil })
	assert.Same(t, existing, registry.installed["dup.png"])
	assert.Equal(t, 1, registry.installs)
}

func TestCallbackPanicDoesNotStopDrain(t *testing.T) {
	l := newTestLoader(t, 1, newFakeFactory(nil), newFakeRegistry())

	ok := false
	_, err := l.RequestLoad("a.bin", resources.ResourceTypeBinary, func(*resources.Resource, error) { panic("bad callback") }, PriorityNormal)
	require.NoError(t, err)
	_, err = l.RequestLoad("a.bin", resources.ResourceTypeBinary, func(*resources.Resource, error) { ok = true }, PriorityNormal)
	require.NoError(t, err)

	drainUntil(t, l, func() bool { return ok })
}

func TestProgressIsMonotonicWithinSession(t *testing.T) {
	l := newTestLoader(t, 2, newFakeFactory(func(path string, kind resources.ResourceType) (*resources.Resource, error) {
		time.Sleep(2 * time.Millisecond)
		return okResource(path, kind)
	}), newFakeRegistry())

	assert.Equal(t, float32(1.0), l.GetLoadProgress(), "nothing requested")

	l.Pause()
	for i := 0; i < 10; i++ {
		_, err := l.RequestLoad(fmt.Sprintf("p/%d.txt", i), resources.ResourceTypeText, nil, PriorityNormal)
		require.NoError(t, err)
	}
	assert.Equal(t, float32(0), l.GetLoadProgress())
	assert.Equal(t, 10, l.Stats().Requested)
	assert.True(t, l.IsLoading())
	l.Resume()

	last := float32(0)
	waitFor(t, func() bool {
		p := l.GetLoadProgress()
		assert.GreaterOrEqual(t, p, last)
		last = p
		return p == 1.0
	})

	// finished but not drained: still loading
	assert.True(t, l.IsLoading())
	l.ProcessCompleted()
	assert.False(t, l.IsLoading())
	assert.Equal(t, float32(1.0), l.GetLoadProgress())
	assert.Equal(t, 0, l.Stats().Requested, "a full drain ends the session")
}

func TestHandleStatesAreObservedInOrder(t *testing.T) {
	release := newGate()
	l := newTestLoader(t, 1, newFakeFactory(func(path string, kind resources.ResourceType) (*resources.Resource, error) {
		release.wait()
		return okResource(path, kind)
	}), newFakeRegistry())

	l.Pause()
	h, err := l.RequestLoad("watched.obj", resources.ResourceTypeMesh, nil, PriorityNormal)
	require.NoError(t, err)

	var observed []LoadState
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			s := h.State()
			if len(observed) == 0 || observed[len(observed)-1] != s {
				observed = append(observed, s)
			}
			if s.Terminal() {
				return
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()

	time.Sleep(5 * time.Millisecond)
	l.Resume()
	waitFor(t, func() bool { return h.State() == LoadStateLoading })
	time.Sleep(5 * time.Millisecond)
	release.open()
	<-done

	for i := 1; i < len(observed); i++ {
		assert.Greater(t, observed[i], observed[i-1], "states %v", observed)
	}
	assert.Equal(t, LoadStateLoaded, observed[len(observed)-1])
}

func TestEventsAreFiredOnDrain(t *testing.T) {
	bus := core.NewEventBus()
	factory := newFakeFactory(func(path string, kind resources.ResourceType) (*resources.Resource, error) {
		if path == "bad.png" {
			return nil, errors.New("corrupt")
		}
		return okResource(path, kind)
	})
	l, err := New(factory, newFakeRegistry(), Config{WorkerCount: 2, Events: bus, Metrics: core.NewLoadMetrics()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Shutdown() })

	var loaded, failed []string
	paused, resumed := 0, 0
	bus.Register(core.EVENT_CODE_RESOURCE_LOADED, nil, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		loaded = append(loaded, data.Path)
		return false
	})
	bus.Register(core.EVENT_CODE_RESOURCE_FAILED, nil, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		failed = append(failed, data.Path)
		assert.Error(t, data.Err)
		return false
	})
	bus.Register(core.EVENT_CODE_LOADER_PAUSED, nil, func(core.SystemEventCode, interface{}, interface{}, core.EventContext) bool {
		paused++
		return true
	})
	bus.Register(core.EVENT_CODE_LOADER_RESUMED, nil, func(core.SystemEventCode, interface{}, interface{}, core.EventContext) bool {
		resumed++
		return true
	})

	_, err = l.RequestLoad("good.png", resources.ResourceTypeTexture, nil, PriorityNormal)
	require.NoError(t, err)
	_, err = l.RequestLoad("bad.png", resources.ResourceTypeTexture, nil, PriorityNormal)
	require.NoError(t, err)
	drainUntil(t, l, func() bool { return len(loaded)+len(failed) == 2 })

	assert.Equal(t, []string{"good.png"}, loaded)
	assert.Equal(t, []string{"bad.png"}, failed)

	l.Pause()
	l.Resume()
	assert.Equal(t, 1, paused)
	assert.Equal(t, 1, resumed)
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "critical", PriorityCritical.String())
	assert.Equal(t, "priority(9)", Priority(9).String())
	assert.Equal(t, "loading", LoadStateLoading.String())
	assert.True(t, LoadStateFailed.Terminal())
	assert.False(t, LoadStateQueued.Terminal())
}
