package vkt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderedResource records the order Process visits resources in.
type orderedResource struct {
	reloadFlag
	name  string
	order *[]string
	fail  error
}

func (o *orderedResource) Reload() error {
	o.clearReload()
	*o.order = append(*o.order, o.name)
	return o.fail
}

func TestReloaderProcessesInRegistrationOrder(t *testing.T) {
	var order []string
	first := &orderedResource{name: "first", order: &order}
	second := &orderedResource{name: "second", order: &order}

	r := &Reloader{}
	r.Add(second)
	r.Add(first)

	first.TriggerReload()
	second.TriggerReload()
	r.Process()

	assert.Equal(t, []string{"second", "first"}, order)
}

func TestReloaderSkipsCleanResources(t *testing.T) {
	var order []string
	clean := &orderedResource{name: "clean", order: &order}
	dirty := &orderedResource{name: "dirty", order: &order}

	r := &Reloader{}
	r.Add(clean)
	r.Add(dirty)

	dirty.TriggerReload()
	r.Process()

	assert.Equal(t, []string{"dirty"}, order)
}

func TestReloaderAddIsIdempotent(t *testing.T) {
	var order []string
	res := &orderedResource{name: "res", order: &order}

	r := &Reloader{}
	r.Add(res)
	r.Add(res)

	res.TriggerReload()
	r.Process()

	assert.Equal(t, []string{"res"}, order)
}

func TestReloaderRemove(t *testing.T) {
	var order []string
	res := &orderedResource{name: "res", order: &order}

	r := &Reloader{}
	r.Add(res)
	r.Remove(res)

	res.TriggerReload()
	r.Process()

	assert.Empty(t, order)
	assert.True(t, res.WantsReload(), "removed resource keeps its pending flag")
}

func TestReloaderFailureDoesNotRearm(t *testing.T) {
	var order []string
	res := &orderedResource{name: "broken", order: &order, fail: errors.New("compile error")}

	r := &Reloader{}
	r.Add(res)

	res.TriggerReload()
	r.Process()
	assert.Equal(t, []string{"broken"}, order)
	assert.False(t, res.WantsReload(), "failed reload must not retry every frame")

	// Nothing pending, so the next frame does no work.
	r.Process()
	assert.Equal(t, []string{"broken"}, order)
}

// failingCompiler fails every compilation without touching the GPU.
type failingCompiler struct {
	calls int
}

func (f *failingCompiler) CompileShader(device *Device, filename string) (*ShaderModule, error) {
	f.calls++
	return nil, errors.New("syntax error at line 1")
}

func TestPipelineReloadKeepsOldHandleOnFailure(t *testing.T) {
	compiler := &failingCompiler{}
	p := &Pipeline{
		initialCreateInfo: &PipelineCreateInfo{
			Shaders:         []string{"scene.vert.hlsl", "scene.frag.hlsl"},
			Compiler:        compiler,
			EnableHotReload: true,
		},
	}
	before := p.VKPipeline

	p.TriggerReload()
	err := p.Reload()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
	assert.Equal(t, before, p.VKPipeline, "failed rebuild must leave the live handle untouched")
	assert.False(t, p.WantsReload(), "flag is cleared even when the rebuild fails")
	assert.Equal(t, 1, compiler.calls, "compilation stops at the first failing shader")
}

func TestPipelineReloadWithoutSnapshot(t *testing.T) {
	p := &Pipeline{}
	p.TriggerReload()

	err := p.Reload()
	require.Error(t, err)
	assert.False(t, p.HotReloadable())
}

func TestPipelineShaderFiles(t *testing.T) {
	p := &Pipeline{
		initialCreateInfo: &PipelineCreateInfo{
			Shaders: []string{"a.vert.hlsl", "a.frag.hlsl"},
		},
	}
	assert.True(t, p.HotReloadable())
	assert.Equal(t, []string{"a.vert.hlsl", "a.frag.hlsl"}, p.ShaderFiles())

	bare := &Pipeline{}
	assert.Nil(t, bare.ShaderFiles())
}

func TestReloaderProcessesPipelineFailureQuietly(t *testing.T) {
	compiler := &failingCompiler{}
	p := &Pipeline{
		initialCreateInfo: &PipelineCreateInfo{
			Shaders:  []string{"sky.frag.hlsl"},
			Compiler: compiler,
		},
	}

	r := &Reloader{}
	r.Add(p)

	p.TriggerReload()
	r.Process()

	assert.Equal(t, 1, compiler.calls)
	assert.False(t, p.WantsReload())
}
