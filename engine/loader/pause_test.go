package loader

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/resources"
)

func TestPauseBarrierWaitsForBusyWorkers(t *testing.T) {
	rq := NewRequestQueue()
	pb := NewPauseBarrier(rq, 2)
	pb.enter(0, "a.png")
	pb.enter(1, "b.png")
	assert.Equal(t, []string{"a.png", "b.png"}, pb.CurrentlyLoading())

	paused := make(chan struct{})
	go func() {
		pb.Pause()
		close(paused)
	}()

	pb.leave(0)
	select {
	case <-paused:
		t.Fatal("pause returned with a worker still busy")
	case <-time.After(20 * time.Millisecond):
	}

	pb.leave(1)
	select {
	case <-paused:
	case <-time.After(time.Second):
		t.Fatal("pause did not return once idle")
	}
	assert.True(t, pb.IsPaused())
	assert.True(t, rq.IsHeld())
	assert.Empty(t, pb.CurrentlyLoading())

	pb.Resume()
	assert.False(t, pb.IsPaused())
	assert.False(t, rq.IsHeld())
}

// Two of four workers are mid-load when Pause is called: Pause waits for both
// to finish, and both results stay buffered until drained.
func TestLoaderPauseWaitsForInFlightLoads(t *testing.T) {
	slow := newGate()
	factory := newFakeFactory(func(path string, kind resources.ResourceType) (*resources.Resource, error) {
		if path == "slow/a.obj" || path == "slow/b.obj" {
			slow.wait()
		}
		return okResource(path, kind)
	})
	l := newTestLoader(t, 4, factory, newFakeRegistry())

	_, err := l.RequestLoad("slow/a.obj", resources.ResourceTypeMesh, nil, PriorityNormal)
	require.NoError(t, err)
	_, err = l.RequestLoad("slow/b.obj", resources.ResourceTypeMesh, nil, PriorityNormal)
	require.NoError(t, err)
	waitFor(t, func() bool { return len(l.GetCurrentlyLoadingPaths()) == 2 })

	paused := make(chan struct{})
	go func() {
		l.Pause()
		close(paused)
	}()

	select {
	case <-paused:
		t.Fatal("pause returned while loads were in flight")
	case <-time.After(30 * time.Millisecond):
	}

	slow.open()
	select {
	case <-paused:
	case <-time.After(5 * time.Second):
		t.Fatal("pause never returned")
	}

	assert.Empty(t, l.GetCurrentlyLoadingPaths())
	assert.Equal(t, 2, l.completions.Len())
	assert.Equal(t, LoadStateLoaded, l.GetLoadState("slow/a.obj"))

	// nothing starts while paused
	h, err := l.RequestLoad("later.obj", resources.ResourceTypeMesh, nil, PriorityCritical)
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, LoadStateQueued, h.State())
	assert.Empty(t, l.GetCurrentlyLoadingPaths())
	assert.Equal(t, 0, factory.CallCount("later.obj"))

	l.Resume()
	drainUntil(t, l, func() bool { return !l.IsLoading() })
	assert.Equal(t, 1, factory.CallCount("later.obj"))
}

func TestLoaderPauseWhenIdleReturnsImmediately(t *testing.T) {
	l := newTestLoader(t, 2, newFakeFactory(nil), newFakeRegistry())

	done := make(chan struct{})
	go func() {
		l.Pause()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pause blocked with idle workers")
	}
	assert.True(t, l.IsPaused())
	l.Resume()
	assert.False(t, l.IsPaused())
}

// pendingGauge reads the pending_requests gauge from the metrics registry.
func pendingGauge(t *testing.T, m *core.LoadMetrics) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "anima_loader_pending_requests" {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("pending_requests gauge not registered")
	return 0
}

func TestShutdownWhilePausedStartsNothing(t *testing.T) {
	factory := newFakeFactory(nil)
	metrics := core.NewLoadMetrics()
	l, err := New(factory, newFakeRegistry(), Config{WorkerCount: 4, Metrics: metrics})
	require.NoError(t, err)

	l.Pause()
	for i := 0; i < 16; i++ {
		_, err := l.RequestLoad(fmt.Sprintf("held/%d.bin", i), resources.ResourceTypeBinary, nil, PriorityNormal)
		require.NoError(t, err)
	}
	assert.Equal(t, 16.0, pendingGauge(t, metrics))

	require.NoError(t, l.Shutdown())
	assert.Empty(t, factory.Calls())
	assert.False(t, l.IsPaused())
	assert.Equal(t, 0.0, pendingGauge(t, metrics))
	assert.Equal(t, 0, l.ProcessCompleted())
}
