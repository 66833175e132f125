package vkt

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// DeviceMemory is a block of memory on the host or the device. Resources do
// not own memory directly, they bind into a block at an offset.
type DeviceMemory struct {
	Device         *Device
	VKDeviceMemory vk.DeviceMemory
	Size           uint64
}

func (d *DeviceMemory) Destroy() {
	vk.FreeMemory(d.Device.VKDevice, d.VKDeviceMemory, nil)
}

// Map maps size bytes starting at offset and returns the host pointer.
func (d *DeviceMemory) Map(offset, size uint64) (unsafe.Pointer, error) {
	var ptr unsafe.Pointer
	err := vk.Error(vk.MapMemory(d.Device.VKDevice, d.VKDeviceMemory, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &ptr))
	if err != nil {
		return nil, err
	}
	return ptr, nil
}

func (d *DeviceMemory) Unmap() {
	vk.UnmapMemory(d.Device.VKDevice, d.VKDeviceMemory)
}

// MapCopyUnmap maps the block at offset, copies data into it and unmaps.
func (d *DeviceMemory) MapCopyUnmap(data []byte, offset uint64) error {
	ptr, err := d.Map(offset, uint64(len(data)))
	if err != nil {
		return err
	}

	const m = 0x7fffffff
	dst := (*[m]byte)(ptr)[:len(data)]
	copy(dst, data)

	d.Unmap()
	return nil
}

// Buffer wraps a Vulkan buffer. It must be bound to device memory before use.
type Buffer struct {
	Device   *Device
	VKBuffer vk.Buffer
	Size     uint64

	memory *DeviceMemory
	offset uint64
	alloc  *Allocation
	pool   *BufferPool
}

func (d *Device) CreateBuffer(sizeInBytes uint64, usage vk.BufferUsageFlags) (*Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(sizeInBytes),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	err := vk.Error(vk.CreateBuffer(d.VKDevice, &createInfo, nil, &buffer))
	if err != nil {
		return nil, err
	}

	return &Buffer{Device: d, VKBuffer: buffer, Size: sizeInBytes}, nil
}

// CreateHostBuffer creates a buffer with its own host-visible, host-coherent
// memory block, bound and ready for mapping.
func (d *Device) CreateHostBuffer(sizeInBytes uint64, usage vk.BufferUsageFlags) (*Buffer, error) {
	buffer, err := d.CreateBuffer(sizeInBytes, usage)
	if err != nil {
		return nil, err
	}

	req := buffer.MemoryRequirements()
	memory, err := d.Allocate(uint64(req.Size), req.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		buffer.Destroy()
		return nil, err
	}

	if err := buffer.Bind(memory, 0); err != nil {
		memory.Destroy()
		buffer.Destroy()
		return nil, err
	}
	buffer.memory = memory
	return buffer, nil
}

func (b *Buffer) MemoryRequirements() vk.MemoryRequirements {
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.Device.VKDevice, b.VKBuffer, &req)
	req.Deref()
	return req
}

func (b *Buffer) Bind(memory *DeviceMemory, offset uint64) error {
	err := vk.Error(vk.BindBufferMemory(b.Device.VKDevice, b.VKBuffer, memory.VKDeviceMemory, vk.DeviceSize(offset)))
	if err != nil {
		return err
	}
	b.memory = memory
	b.offset = offset
	return nil
}

// CopyFrom writes data into the buffer's memory through a map/copy/unmap
// cycle. The backing memory must be host visible.
func (b *Buffer) CopyFrom(data []byte) error {
	if b.memory == nil {
		return fmt.Errorf("buffer is not bound to memory")
	}
	if uint64(len(data)) > b.Size {
		return fmt.Errorf("data of %d bytes exceeds buffer size %d", len(data), b.Size)
	}
	return b.memory.MapCopyUnmap(data, b.offset)
}

// DSInfo describes the whole buffer for a descriptor write.
func (b *Buffer) DSInfo() vk.DescriptorBufferInfo {
	return vk.DescriptorBufferInfo{
		Buffer: b.VKBuffer,
		Offset: 0,
		Range:  vk.DeviceSize(b.Size),
	}
}

func (b *Buffer) Destroy() {
	vk.DestroyBuffer(b.Device.VKDevice, b.VKBuffer, nil)
	if b.pool != nil && b.alloc != nil {
		b.pool.allocator.Free(b.alloc)
		b.alloc = nil
		b.pool = nil
		return
	}
	if b.memory != nil {
		b.memory.Destroy()
		b.memory = nil
	}
}

// BufferPool suballocates many small buffers, e.g. per-frame uniform
// buffers, out of a single host-visible memory block.
type BufferPool struct {
	Device    *Device
	Memory    *DeviceMemory
	allocator *LinearAllocator
}

func (d *Device) CreateBufferPool(sizeInBytes uint64, memoryProperties vk.MemoryPropertyFlags) (*BufferPool, error) {
	// A throwaway buffer resolves which memory types can back buffers on
	// this device and the required alignment.
	probe, err := d.CreateBuffer(sizeInBytes, vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit))
	if err != nil {
		return nil, err
	}
	req := probe.MemoryRequirements()
	probe.Destroy()

	memory, err := d.Allocate(sizeInBytes, req.MemoryTypeBits, memoryProperties)
	if err != nil {
		return nil, err
	}

	return &BufferPool{
		Device:    d,
		Memory:    memory,
		allocator: &LinearAllocator{Size: sizeInBytes, Align: uint64(req.Alignment)},
	}, nil
}

// AllocateBuffer creates a buffer bound into the pool's memory block.
func (p *BufferPool) AllocateBuffer(sizeInBytes uint64, usage vk.BufferUsageFlags) (*Buffer, error) {
	buffer, err := p.Device.CreateBuffer(sizeInBytes, usage)
	if err != nil {
		return nil, err
	}

	req := buffer.MemoryRequirements()
	alloc := p.allocator.Allocate(uint64(req.Size))
	if alloc == nil {
		buffer.Destroy()
		return nil, fmt.Errorf("buffer pool exhausted, %d bytes requested", req.Size)
	}

	if err := buffer.Bind(p.Memory, alloc.Offset); err != nil {
		p.allocator.Free(alloc)
		buffer.Destroy()
		return nil, err
	}
	buffer.alloc = alloc
	buffer.pool = p
	return buffer, nil
}

func (p *BufferPool) Destroy() {
	p.Memory.Destroy()
}
