package vkt

import (
	"fmt"
	"log"
	"sync"
)

// ModelSlot is a stable handle to a loaded model. Actors reference the slot
// rather than the model itself, so a hot reload can swap the model behind
// the slot without touching anything that points at it.
type ModelSlot struct {
	reloadFlag

	name       string
	createInfo ModelCreateInfo

	mu    sync.Mutex
	model *Model

	// load builds a model from createInfo. Defaults to LoadModel.
	load func(ModelCreateInfo) (*Model, error)
}

// Name returns the asset name the slot was registered under.
func (s *ModelSlot) Name() string {
	return s.name
}

// Path returns the source file backing this slot.
func (s *ModelSlot) Path() string {
	return s.createInfo.Path
}

// Model returns the currently loaded model.
func (s *ModelSlot) Model() *Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Reload builds a replacement model from the slot's source file and swaps it
// in. The previous model stays in place when loading fails.
func (s *ModelSlot) Reload() error {
	s.clearReload()

	next, err := s.load(s.createInfo)
	if err != nil {
		return fmt.Errorf("unable to reload model %s: %w", s.createInfo.Path, err)
	}

	s.createInfo.Device.WaitIdle()

	s.mu.Lock()
	old := s.model
	s.model = next
	s.mu.Unlock()

	if old != nil {
		old.Destroy()
	}
	log.Printf("model %s reloaded", s.createInfo.Path)
	return nil
}

// AssetManager owns every loaded model and hands out slots by name.
type AssetManager struct {
	device *Device

	mu    sync.Mutex
	slots map[string]*ModelSlot
}

func NewAssetManager(device *Device) *AssetManager {
	return &AssetManager{
		device: device,
		slots:  make(map[string]*ModelSlot),
	}
}

// AddModel loads a model and registers it under name. Loading the same name
// twice returns the existing slot.
func (m *AssetManager) AddModel(name, path string, scale float32) (*ModelSlot, error) {
	m.mu.Lock()
	if slot, ok := m.slots[name]; ok {
		m.mu.Unlock()
		return slot, nil
	}
	m.mu.Unlock()

	slot := &ModelSlot{
		name:       name,
		createInfo: ModelCreateInfo{Device: m.device, Path: path, Scale: scale},
		load:       LoadModel,
	}

	model, err := slot.load(slot.createInfo)
	if err != nil {
		return nil, fmt.Errorf("unable to load model %s: %w", path, err)
	}
	slot.model = model

	m.mu.Lock()
	m.slots[name] = slot
	m.mu.Unlock()
	return slot, nil
}

// Model returns the slot registered under name, or nil.
func (m *AssetManager) Model(name string) *ModelSlot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[name]
}

// Remove drops a slot and destroys its model.
func (m *AssetManager) Remove(name string) {
	m.mu.Lock()
	slot, ok := m.slots[name]
	delete(m.slots, name)
	m.mu.Unlock()

	if ok && slot.model != nil {
		slot.model.Destroy()
	}
}

func (m *AssetManager) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slot := range m.slots {
		if slot.model != nil {
			slot.model.Destroy()
			slot.model = nil
		}
	}
	m.slots = make(map[string]*ModelSlot)
}
