package vkt

import (
	vk "github.com/vulkan-go/vulkan"
)

// CommandPool allocates command buffers for one queue family.
type CommandPool struct {
	Device        *Device
	QueueFamily   *QueueFamily
	VKCommandPool vk.CommandPool
}

func (d *Device) CreateCommandPool(q *QueueFamily) (*CommandPool, error) {
	createInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: uint32(q.Index),
	}
	var pool vk.CommandPool
	err := vk.Error(vk.CreateCommandPool(d.VKDevice, &createInfo, nil, &pool))
	if err != nil {
		return nil, err
	}
	return &CommandPool{Device: d, QueueFamily: q, VKCommandPool: pool}, nil
}

func (c *CommandPool) AllocateBuffers(count int) ([]*CommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.VKCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}

	buffers := make([]vk.CommandBuffer, count)
	err := vk.Error(vk.AllocateCommandBuffers(c.Device.VKDevice, &allocateInfo, buffers))
	if err != nil {
		return nil, err
	}

	ret := make([]*CommandBuffer, count)
	for i := range ret {
		ret[i] = &CommandBuffer{VKCommandBuffer: buffers[i]}
	}
	return ret, nil
}

func (c *CommandPool) AllocateBuffer() (*CommandBuffer, error) {
	ret, err := c.AllocateBuffers(1)
	if err != nil {
		return nil, err
	}
	return ret[0], nil
}

func (c *CommandPool) FreeBuffer(b *CommandBuffer) {
	vk.FreeCommandBuffers(c.Device.VKDevice, c.VKCommandPool, 1, []vk.CommandBuffer{b.VKCommandBuffer})
}

func (c *CommandPool) Destroy() {
	vk.DestroyCommandPool(c.Device.VKDevice, c.VKCommandPool, nil)
}

// CommandBuffer records a sequence of commands for submission to a queue.
// Only the commands the template needs are wrapped; anything else can go
// through the native handle.
type CommandBuffer struct {
	VKCommandBuffer vk.CommandBuffer
}

func (c *CommandBuffer) Begin() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	return vk.Error(vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

// BeginOneTime begins recording for a buffer that is submitted once and then
// freed, e.g. staging copies.
func (c *CommandBuffer) BeginOneTime() error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return vk.Error(vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

func (c *CommandBuffer) End() error {
	return vk.Error(vk.EndCommandBuffer(c.VKCommandBuffer))
}

func (c *CommandBuffer) Reset() error {
	return vk.Error(vk.ResetCommandBuffer(c.VKCommandBuffer, 0))
}

func (c *CommandBuffer) BindPipeline(p *Pipeline) {
	vk.CmdBindPipeline(c.VKCommandBuffer, vk.PipelineBindPointGraphics, p.VKPipeline)
}

func (c *CommandBuffer) BindDescriptorSets(layout *PipelineLayout, firstSet int, sets ...*DescriptorSet) {
	vksets := make([]vk.DescriptorSet, len(sets))
	for i := range sets {
		vksets[i] = sets[i].VKDescriptorSet
	}
	vk.CmdBindDescriptorSets(c.VKCommandBuffer, vk.PipelineBindPointGraphics,
		layout.VKPipelineLayout, uint32(firstSet), uint32(len(sets)), vksets, 0, nil)
}

func (c *CommandBuffer) SetViewport(width, height float32) {
	viewport := vk.Viewport{Width: width, Height: height, MinDepth: 0.0, MaxDepth: 1.0}
	vk.CmdSetViewport(c.VKCommandBuffer, 0, 1, []vk.Viewport{viewport})
}

func (c *CommandBuffer) SetScissor(width, height uint32) {
	scissor := vk.Rect2D{Extent: vk.Extent2D{Width: width, Height: height}}
	vk.CmdSetScissor(c.VKCommandBuffer, 0, 1, []vk.Rect2D{scissor})
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance int) {
	vk.CmdDraw(c.VKCommandBuffer, uint32(vertexCount), uint32(instanceCount), uint32(firstVertex), uint32(firstInstance))
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex, vertexOffset, firstInstance int) {
	vk.CmdDrawIndexed(c.VKCommandBuffer, uint32(indexCount), uint32(instanceCount), uint32(firstIndex), int32(vertexOffset), uint32(firstInstance))
}
