package vkt

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Device wraps a Vulkan logical device.
type Device struct {
	PhysicalDevice *PhysicalDevice
	VKDevice       vk.Device
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s }", d.PhysicalDevice)
}

func (d *Device) Destroy() {
	vk.DestroyDevice(d.VKDevice, nil)
}

// WaitIdle blocks until the device has finished all submitted work. Reload
// operations call this before destroying a resource that submitted frames may
// still reference. A device that was never created has nothing to wait on.
func (d *Device) WaitIdle() {
	if d == nil || d.VKDevice == nil {
		return
	}
	vk.DeviceWaitIdle(d.VKDevice)
}

func (d *Device) GetQueue(qf *QueueFamily) *Queue {
	var vkq vk.Queue
	vk.GetDeviceQueue(d.VKDevice, uint32(qf.Index), 0, &vkq)
	return &Queue{Device: d, QueueFamily: qf, VKQueue: vkq}
}

// Allocate allocates device memory suitable for the given requirements.
func (d *Device) Allocate(sizeInBytes uint64, memoryTypeBits uint32, memoryProperties vk.MemoryPropertyFlags) (*DeviceMemory, error) {
	allocateInfo := vk.MemoryAllocateInfo{
		SType:          vk.StructureTypeMemoryAllocateInfo,
		AllocationSize: vk.DeviceSize(sizeInBytes),
	}

	var err error
	allocateInfo.MemoryTypeIndex, err = d.PhysicalDevice.FindMemoryType(memoryTypeBits, memoryProperties)
	if err != nil {
		return nil, err
	}

	var deviceMemory vk.DeviceMemory
	err = vk.Error(vk.AllocateMemory(d.VKDevice, &allocateInfo, nil, &deviceMemory))
	if err != nil {
		return nil, err
	}

	return &DeviceMemory{
		Device:         d,
		VKDeviceMemory: deviceMemory,
		Size:           uint64(sizeInBytes),
	}, nil
}
