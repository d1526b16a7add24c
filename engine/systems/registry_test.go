package systems

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/engine/resources"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type recordingUnloader struct {
	unloaded []*resources.Resource
	err      error
}

func (r *recordingUnloader) Unload(res *resources.Resource) error {
	r.unloaded = append(r.unloaded, res)
	return r.err
}

func res(name string) *resources.Resource {
	return &resources.Resource{Name: name}
}

func TestRegistryInstallAndLookup(t *testing.T) {
	rr := NewResourceRegistry(ResourceRegistryConfig{})

	a := res("a")
	assert.True(t, rr.Install(resources.ResourceTypeTexture, "textures/a.png", a))
	assert.False(t, rr.Install(resources.ResourceTypeTexture, "textures/a.png", res("other")))
	assert.False(t, rr.Install(resources.ResourceTypeTexture, "textures/nil.png", nil))

	got, ok := rr.Get("textures/a.png")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.True(t, rr.Contains("textures/a.png"))
	assert.False(t, rr.Contains("textures/b.png"))

	ref, ok := rr.Reference("textures/a.png")
	require.True(t, ok)
	assert.Equal(t, resources.ResourceTypeTexture, ref.Kind)
	assert.False(t, ref.InstalledAt.IsZero())
}

func TestRegistryCounts(t *testing.T) {
	rr := NewResourceRegistry(ResourceRegistryConfig{})
	rr.Install(resources.ResourceTypeTexture, "t/b.png", res("b"))
	rr.Install(resources.ResourceTypeTexture, "t/a.png", res("a"))
	rr.Install(resources.ResourceTypeMesh, "m/cube.obj", res("cube"))

	assert.Equal(t, 3, rr.Count())
	assert.Equal(t, 2, rr.CountByKind(resources.ResourceTypeTexture))
	assert.Equal(t, 1, rr.CountByKind(resources.ResourceTypeMesh))
	assert.Zero(t, rr.CountByKind(resources.ResourceTypeSound))
	assert.Equal(t, []string{"m/cube.obj", "t/a.png", "t/b.png"}, rr.Paths())
}

func TestRegistryRemoveUnloads(t *testing.T) {
	un := &recordingUnloader{}
	rr := NewResourceRegistry(ResourceRegistryConfig{Unloader: un})
	a := res("a")
	rr.Install(resources.ResourceTypeText, "a.txt", a)

	assert.True(t, rr.Remove("a.txt"))
	assert.False(t, rr.Remove("a.txt"))
	assert.False(t, rr.Contains("a.txt"))
	require.Len(t, un.unloaded, 1)
	assert.Same(t, a, un.unloaded[0])

	// path is free again
	assert.True(t, rr.Install(resources.ResourceTypeText, "a.txt", res("a2")))
}

func TestRegistryUnloadErrorsAreNotFatal(t *testing.T) {
	un := &recordingUnloader{err: errors.New("busy")}
	rr := NewResourceRegistry(ResourceRegistryConfig{Unloader: un})
	rr.Install(resources.ResourceTypeText, "a.txt", res("a"))
	assert.True(t, rr.Remove("a.txt"))
	assert.Zero(t, rr.Count())
}

func TestRegistryReferenceCounting(t *testing.T) {
	un := &recordingUnloader{}
	rr := NewResourceRegistry(ResourceRegistryConfig{Unloader: un, AutoRelease: true})
	rr.Install(resources.ResourceTypeMaterial, "m.amt", res("m"))

	_, ok := rr.Acquire("missing")
	assert.False(t, ok)
	assert.False(t, rr.Release("m.amt"), "no references taken yet")

	_, ok = rr.Acquire("m.amt")
	require.True(t, ok)
	_, ok = rr.Acquire("m.amt")
	require.True(t, ok)
	ref, _ := rr.Reference("m.amt")
	assert.EqualValues(t, 2, ref.ReferenceCount)

	assert.True(t, rr.Release("m.amt"))
	assert.True(t, rr.Contains("m.amt"))
	assert.True(t, rr.Release("m.amt"))
	assert.False(t, rr.Contains("m.amt"))
	assert.Len(t, un.unloaded, 1)
}

func TestRegistryWithoutAutoReleaseKeepsResource(t *testing.T) {
	rr := NewResourceRegistry(ResourceRegistryConfig{})
	rr.Install(resources.ResourceTypeMaterial, "m.amt", res("m"))
	rr.Acquire("m.amt")
	assert.True(t, rr.Release("m.amt"))
	assert.True(t, rr.Contains("m.amt"))
}

func TestRegistryShutdown(t *testing.T) {
	un := &recordingUnloader{}
	rr := NewResourceRegistry(ResourceRegistryConfig{Unloader: un})
	rr.Install(resources.ResourceTypeText, "a.txt", res("a"))
	rr.Install(resources.ResourceTypeText, "b.txt", res("b"))

	require.NoError(t, rr.Shutdown())
	assert.Zero(t, rr.Count())
	assert.Len(t, un.unloaded, 2)
}
