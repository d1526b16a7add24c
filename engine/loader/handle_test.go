package loader

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-loader/engine/resources"
)

func TestHandleTransitionsOnlyMoveForward(t *testing.T) {
	h := newHandle("a.png", resources.ResourceTypeTexture)
	assert.Equal(t, LoadStateQueued, h.State())

	assert.False(t, h.transition(LoadStateQueued, LoadStateLoaded), "cannot skip loading")
	assert.False(t, h.transition(LoadStateLoading, LoadStateLoaded), "wrong source state")
	require.True(t, h.transition(LoadStateQueued, LoadStateLoading))
	assert.False(t, h.transition(LoadStateQueued, LoadStateLoading), "cannot repeat")

	res := &resources.Resource{Name: "a"}
	assert.Equal(t, LoadStateLoaded, h.complete(res, nil))
	assert.Equal(t, LoadStateLoaded, h.State())
	assert.False(t, h.transition(LoadStateLoaded, LoadStateFailed), "terminal")

	got, err := h.Result()
	assert.NoError(t, err)
	assert.Same(t, res, got)
}

func TestHandleCompleteWithError(t *testing.T) {
	h := newHandle("a.png", resources.ResourceTypeTexture)
	require.True(t, h.transition(LoadStateQueued, LoadStateLoading))

	boom := errors.New("boom")
	assert.Equal(t, LoadStateFailed, h.complete(&resources.Resource{}, boom))

	res, err := h.Result()
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

func TestHandleCompleteReportsRejectedTransition(t *testing.T) {
	h := newHandle("a.png", resources.ResourceTypeTexture)

	// never moved to loading, so the terminal state is refused
	assert.Equal(t, LoadStateQueued, h.complete(&resources.Resource{}, nil))
	assert.Equal(t, LoadStateQueued, h.State())
}

func TestHandleSealRejectsLateCallbacks(t *testing.T) {
	h := newHandle("a.png", resources.ResourceTypeTexture)
	assert.True(t, h.attach(func(*resources.Resource, error) {}))
	assert.True(t, h.attach(nil))
	assert.Equal(t, 1, h.CallbackCount())

	cbs := h.seal()
	assert.Len(t, cbs, 1)
	assert.False(t, h.attach(func(*resources.Resource, error) {}))
	assert.Equal(t, 0, h.CallbackCount())
}

func TestHandleTableFindOrCreateDedupes(t *testing.T) {
	ht := NewHandleTable()
	h1, isNew := ht.FindOrCreate("a.png", resources.ResourceTypeTexture, nil)
	require.True(t, isNew)

	h2, isNew := ht.FindOrCreate("a.png", resources.ResourceTypeTexture, func(*resources.Resource, error) {})
	assert.False(t, isNew)
	assert.Same(t, h1, h2)
	assert.Equal(t, 1, h1.CallbackCount())

	require.True(t, h1.transition(LoadStateQueued, LoadStateLoading))
	_, isNew = ht.FindOrCreate("a.png", resources.ResourceTypeTexture, nil)
	assert.False(t, isNew, "loading handles are joined")

	h1.complete(&resources.Resource{}, nil)
	_, isNew = ht.FindOrCreate("a.png", resources.ResourceTypeTexture, nil)
	assert.False(t, isNew, "loaded but undrained handles are joined")
}

func TestHandleTableFailedHandleIsReplaced(t *testing.T) {
	ht := NewHandleTable()
	h1, _ := ht.FindOrCreate("a.png", resources.ResourceTypeTexture, nil)
	require.True(t, h1.transition(LoadStateQueued, LoadStateLoading))
	h1.complete(nil, errors.New("missing"))

	h2, isNew := ht.FindOrCreate("a.png", resources.ResourceTypeTexture, nil)
	require.True(t, isNew)
	assert.NotSame(t, h1, h2)
	assert.NotEqual(t, h1.ID, h2.ID)

	// draining the old handle must not drop the retry
	assert.False(t, ht.detach(h1))
	got, ok := ht.Get("a.png")
	require.True(t, ok)
	assert.Same(t, h2, got)

	assert.True(t, ht.detach(h2))
	assert.Equal(t, 0, ht.Len())
}

func TestHandleTableConcurrentFindOrCreate(t *testing.T) {
	ht := NewHandleTable()
	var wg sync.WaitGroup
	var mutex sync.Mutex
	created := 0

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, isNew := ht.FindOrCreate("shared.obj", resources.ResourceTypeMesh, func(*resources.Resource, error) {}); isNew {
				mutex.Lock()
				created++
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	h, ok := ht.Get("shared.obj")
	require.True(t, ok)
	assert.Equal(t, 64, h.CallbackCount())

	ht.Remove("shared.obj")
	_, ok = ht.Get("shared.obj")
	assert.False(t, ok)
}
