package vkt

import (
	vk "github.com/vulkan-go/vulkan"
)

// DescriptorSetLayout describes the bindings of a descriptor set.
type DescriptorSetLayout struct {
	Device                *Device
	VKDescriptorSetLayout vk.DescriptorSetLayout

	bindings []vk.DescriptorSetLayoutBinding
}

func (d *Device) NewDescriptorSetLayout() *DescriptorSetLayout {
	return &DescriptorSetLayout{Device: d}
}

// AddBinding appends a binding. Call before Create.
func (l *DescriptorSetLayout) AddBinding(binding int, dtype vk.DescriptorType, stages vk.ShaderStageFlags) *DescriptorSetLayout {
	l.bindings = append(l.bindings, vk.DescriptorSetLayoutBinding{
		Binding:         uint32(binding),
		DescriptorType:  dtype,
		DescriptorCount: 1,
		StageFlags:      stages,
	})
	return l
}

func (l *DescriptorSetLayout) Create() (*DescriptorSetLayout, error) {
	createInfo := &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(l.bindings)),
		PBindings:    l.bindings,
	}

	var layout vk.DescriptorSetLayout
	err := vk.Error(vk.CreateDescriptorSetLayout(l.Device.VKDevice, createInfo, nil, &layout))
	if err != nil {
		return nil, err
	}
	l.VKDescriptorSetLayout = layout
	return l, nil
}

func (l *DescriptorSetLayout) Destroy() {
	vk.DestroyDescriptorSetLayout(l.Device.VKDevice, l.VKDescriptorSetLayout, nil)
}

// DescriptorPool allocates descriptor sets.
type DescriptorPool struct {
	Device           *Device
	VKDescriptorPool vk.DescriptorPool

	poolSizes []vk.DescriptorPoolSize
}

func (d *Device) NewDescriptorPool() *DescriptorPool {
	return &DescriptorPool{Device: d}
}

// AddPoolSize declares how many descriptors of a type the pool will hold.
func (p *DescriptorPool) AddPoolSize(dtype vk.DescriptorType, count int) *DescriptorPool {
	p.poolSizes = append(p.poolSizes, vk.DescriptorPoolSize{
		Type:            dtype,
		DescriptorCount: uint32(count),
	})
	return p
}

func (p *DescriptorPool) Create(maxSets int) (*DescriptorPool, error) {
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(maxSets),
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		PoolSizeCount: uint32(len(p.poolSizes)),
		PPoolSizes:    p.poolSizes,
	}

	var pool vk.DescriptorPool
	err := vk.Error(vk.CreateDescriptorPool(p.Device.VKDevice, &createInfo, nil, &pool))
	if err != nil {
		return nil, err
	}
	p.VKDescriptorPool = pool
	return p, nil
}

// Allocate allocates one descriptor set with the given layout.
func (p *DescriptorPool) Allocate(layout *DescriptorSetLayout) (*DescriptorSet, error) {
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.VKDescriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.VKDescriptorSetLayout},
	}

	var set vk.DescriptorSet
	err := vk.Error(vk.AllocateDescriptorSets(p.Device.VKDevice, &allocateInfo, &set))
	if err != nil {
		return nil, err
	}

	return &DescriptorSet{Device: p.Device, DescriptorPool: p, VKDescriptorSet: set}, nil
}

func (p *DescriptorPool) Free(ds *DescriptorSet) error {
	set := ds.VKDescriptorSet
	return vk.Error(vk.FreeDescriptorSets(p.Device.VKDevice, p.VKDescriptorPool, 1, &set))
}

func (p *DescriptorPool) Reset() error {
	return vk.Error(vk.ResetDescriptorPool(p.Device.VKDevice, p.VKDescriptorPool, 0))
}

func (p *DescriptorPool) Destroy() {
	vk.DestroyDescriptorPool(p.Device.VKDevice, p.VKDescriptorPool, nil)
}

// DescriptorSet binds concrete resources to a layout's bindings. Queue up
// writes with AddBuffer/AddCombinedImageSampler and apply them with Write.
type DescriptorSet struct {
	Device          *Device
	DescriptorPool  *DescriptorPool
	VKDescriptorSet vk.DescriptorSet

	writes []vk.WriteDescriptorSet
}

func (s *DescriptorSet) AddBuffer(binding int, dtype vk.DescriptorType, b *Buffer) {
	s.writes = append(s.writes, vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      uint32(binding),
		DescriptorCount: 1,
		DescriptorType:  dtype,
		PBufferInfo:     []vk.DescriptorBufferInfo{b.DSInfo()},
	})
}

func (s *DescriptorSet) AddCombinedImageSampler(binding int, layout vk.ImageLayout, view *ImageView, sampler vk.Sampler) {
	s.writes = append(s.writes, vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      uint32(binding),
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageView:   view.VKImageView,
			ImageLayout: layout,
			Sampler:     sampler,
		}},
	})
}

// Write applies all queued descriptor writes.
func (s *DescriptorSet) Write() {
	for i := range s.writes {
		s.writes[i].DstSet = s.VKDescriptorSet
	}
	vk.UpdateDescriptorSets(s.Device.VKDevice, uint32(len(s.writes)), s.writes, 0, nil)
	s.writes = nil
}
