package vkt

import (
	"time"

	vk "github.com/vulkan-go/vulkan"
)

// Fence gates CPU access to GPU work, one per in-flight frame.
type Fence struct {
	Device  *Device
	VKFence vk.Fence
}

func (d *Device) CreateFence(signaled bool) (*Fence, error) {
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	err := vk.Error(vk.CreateFence(d.VKDevice, &createInfo, nil, &fence))
	if err != nil {
		return nil, err
	}
	return &Fence{Device: d, VKFence: fence}, nil
}

func (d *Device) WaitForFences(waitForAll bool, timeout time.Duration, fences ...*Fence) error {
	f := make([]vk.Fence, len(fences))
	for i := range fences {
		f[i] = fences[i].VKFence
	}
	return vk.Error(vk.WaitForFences(d.VKDevice, uint32(len(f)), f, vkBool(waitForAll), uint64(timeout.Nanoseconds())))
}

func (d *Device) ResetFences(fences ...*Fence) error {
	f := make([]vk.Fence, len(fences))
	for i := range fences {
		f[i] = fences[i].VKFence
	}
	return vk.Error(vk.ResetFences(d.VKDevice, uint32(len(f)), f))
}

func (f *Fence) Destroy() {
	vk.DestroyFence(f.Device.VKDevice, f.VKFence, nil)
}

// Semaphore orders GPU work across queue submissions.
type Semaphore struct {
	Device      *Device
	VKSemaphore vk.Semaphore
}

func (d *Device) CreateSemaphore() (*Semaphore, error) {
	createInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sema vk.Semaphore
	err := vk.Error(vk.CreateSemaphore(d.VKDevice, &createInfo, nil, &sema))
	if err != nil {
		return nil, err
	}
	return &Semaphore{Device: d, VKSemaphore: sema}, nil
}

func (s *Semaphore) Destroy() {
	vk.DestroySemaphore(s.Device.VKDevice, s.VKSemaphore, nil)
}
