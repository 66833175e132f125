package vkt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeSlot(path string, model *Model) *ModelSlot {
	return &ModelSlot{
		name:       path,
		createInfo: ModelCreateInfo{Path: path},
		model:      model,
	}
}

func TestModelSlotReloadSwapsModel(t *testing.T) {
	original := &Model{}
	replacement := &Model{}

	slot := newFakeSlot("suzanne.gltf", original)
	slot.load = func(info ModelCreateInfo) (*Model, error) {
		return replacement, nil
	}

	slot.TriggerReload()
	require.NoError(t, slot.Reload())

	assert.Same(t, replacement, slot.Model())
	assert.False(t, slot.WantsReload())
}

func TestModelSlotReloadKeepsOldModelOnFailure(t *testing.T) {
	original := &Model{}

	slot := newFakeSlot("suzanne.gltf", original)
	slot.load = func(info ModelCreateInfo) (*Model, error) {
		return nil, errors.New("truncated file")
	}

	slot.TriggerReload()
	err := slot.Reload()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated file")
	assert.Same(t, original, slot.Model(), "failed load must leave the current model in place")
	assert.False(t, slot.WantsReload())
}

func TestModelSlotIsStableAcrossReload(t *testing.T) {
	original := &Model{}
	replacement := &Model{}

	slot := newFakeSlot("shared.gltf", original)
	slot.load = func(info ModelCreateInfo) (*Model, error) {
		return replacement, nil
	}

	// Two actors hold the same slot. Neither is touched by the reload, yet
	// both observe the new model afterwards.
	a := NewActor("a", slot)
	b := NewActor("b", slot)

	slot.TriggerReload()
	require.NoError(t, slot.Reload())

	assert.Same(t, replacement, a.Model.Model())
	assert.Same(t, replacement, b.Model.Model())
}

func TestAssetManagerReturnsExistingSlot(t *testing.T) {
	m := NewAssetManager(nil)
	slot := newFakeSlot("cached.gltf", &Model{})
	m.slots["cached"] = slot

	got, err := m.AddModel("cached", "ignored.gltf", 1)
	require.NoError(t, err)
	assert.Same(t, slot, got, "a name registered twice resolves to the same slot")
}

func TestAssetManagerLookup(t *testing.T) {
	m := NewAssetManager(nil)
	slot := newFakeSlot("env.gltf", &Model{})
	m.slots["env"] = slot

	assert.Same(t, slot, m.Model("env"))
	assert.Nil(t, m.Model("absent"))

	m.Remove("env")
	assert.Nil(t, m.Model("env"))
}

func TestActorMatrixAppliesScale(t *testing.T) {
	a := NewActor("probe", nil)
	a.Scale[0] = 2

	m := a.Matrix()
	assert.InDelta(t, 2.0, float64(m.At(0, 0)), 1e-6)
	assert.InDelta(t, 1.0, float64(m.At(1, 1)), 1e-6)
}

func TestActorConstantVelocity(t *testing.T) {
	a := NewActor("mover", nil)
	a.ConstantVelocity[2] = 4

	a.Update(0.5)
	assert.InDelta(t, 2.0, float64(a.Position.Z()), 1e-6)

	a.Update(0.5)
	assert.InDelta(t, 4.0, float64(a.Position.Z()), 1e-6)
}

func TestActorManagerByTag(t *testing.T) {
	m := &ActorManager{}
	tagged := NewActor("x", nil)
	tagged.Tag = "enemy"
	other := NewActor("y", nil)

	m.Add(tagged)
	m.Add(other)

	byTag := m.ByTag("enemy")
	require.Len(t, byTag, 1)
	assert.Same(t, tagged, byTag[0])

	m.Remove(tagged)
	assert.Empty(t, m.ByTag("enemy"))
}
