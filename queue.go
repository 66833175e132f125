package vkt

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// QueueFamily describes one queue family of a physical device.
type QueueFamily struct {
	Index                   int
	PhysicalDevice          *PhysicalDevice
	VKQueueFamilyProperties vk.QueueFamilyProperties
}

func (q *QueueFamily) IsGraphics() bool {
	return q.VKQueueFamilyProperties.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
}

func (q *QueueFamily) IsTransfer() bool {
	return q.VKQueueFamilyProperties.QueueFlags&vk.QueueFlags(vk.QueueTransferBit) != 0
}

func (q *QueueFamily) SupportsPresent(surface vk.Surface) bool {
	var supported vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(q.PhysicalDevice.VKPhysicalDevice, uint32(q.Index), surface, &supported)
	return supported == vk.True
}

func (q *QueueFamily) String() string {
	return fmt.Sprintf("{ Index: %d Graphics: %v Transfer: %v }", q.Index, q.IsGraphics(), q.IsTransfer())
}

type QueueFamilySlice []*QueueFamily

func (ql QueueFamilySlice) Filter(f func(q *QueueFamily) bool) QueueFamilySlice {
	ret := make(QueueFamilySlice, 0)
	for _, q := range ql {
		if f(q) {
			ret = append(ret, q)
		}
	}
	return ret
}

func (ql QueueFamilySlice) FilterGraphics() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool { return q.IsGraphics() })
}

func (ql QueueFamilySlice) FilterPresent(surface vk.Surface) QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool { return q.SupportsPresent(surface) })
}

func (ql QueueFamilySlice) FilterGraphicsAndPresent(surface vk.Surface) QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool { return q.IsGraphics() && q.SupportsPresent(surface) })
}

// Queue wraps a device queue obtained from a queue family.
type Queue struct {
	Device      *Device
	QueueFamily *QueueFamily
	VKQueue     vk.Queue
}

func (q *Queue) WaitIdle() error {
	return vk.Error(vk.QueueWaitIdle(q.VKQueue))
}

// SubmitWaitIdle submits the command buffers and blocks until the queue has
// drained. Used for one-off uploads, not the frame loop.
func (q *Queue) SubmitWaitIdle(buffers ...*CommandBuffer) error {
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    vkCommandBuffers(buffers),
	}
	err := vk.Error(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, nil))
	if err != nil {
		return err
	}
	return q.WaitIdle()
}

// SubmitWithFence submits the command buffers, signaling fence on completion.
func (q *Queue) SubmitWithFence(fence *Fence, buffers ...*CommandBuffer) error {
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    vkCommandBuffers(buffers),
	}
	return vk.Error(vk.QueueSubmit(q.VKQueue, 1, []vk.SubmitInfo{submitInfo}, fence.VKFence))
}

func vkCommandBuffers(buffers []*CommandBuffer) []vk.CommandBuffer {
	b := make([]vk.CommandBuffer, len(buffers))
	for i := range buffers {
		b[i] = buffers[i].VKCommandBuffer
	}
	return b
}
