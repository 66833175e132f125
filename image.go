package vkt

import (
	vk "github.com/vulkan-go/vulkan"
)

// Image wraps a Vulkan image together with its backing memory when the image
// owns one. Swapchain images are marked external and never freed here.
type Image struct {
	Device   *Device
	VKImage  vk.Image
	VKFormat vk.Format

	memory   *DeviceMemory
	external bool
}

func (d *Device) CreateImage(extent vk.Extent2D, format vk.Format, tiling vk.ImageTiling, usage vk.ImageUsageFlags) (*Image, error) {
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        tiling,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}

	var image vk.Image
	err := vk.Error(vk.CreateImage(d.VKDevice, &createInfo, nil, &image))
	if err != nil {
		return nil, err
	}

	return &Image{Device: d, VKImage: image, VKFormat: format}, nil
}

// CreateBoundImage creates an image with its own device memory allocation.
func (d *Device) CreateBoundImage(extent vk.Extent2D, format vk.Format, tiling vk.ImageTiling, usage vk.ImageUsageFlags, properties vk.MemoryPropertyFlags) (*Image, error) {
	image, err := d.CreateImage(extent, format, tiling, usage)
	if err != nil {
		return nil, err
	}

	req := image.MemoryRequirements()
	memory, err := d.Allocate(uint64(req.Size), req.MemoryTypeBits, properties)
	if err != nil {
		image.Destroy()
		return nil, err
	}

	err = vk.Error(vk.BindImageMemory(d.VKDevice, image.VKImage, memory.VKDeviceMemory, 0))
	if err != nil {
		memory.Destroy()
		image.Destroy()
		return nil, err
	}
	image.memory = memory
	return image, nil
}

// CreateDepthImage creates a device-local depth attachment for the given
// framebuffer extent.
func (d *Device) CreateDepthImage(extent vk.Extent2D, format vk.Format) (*Image, error) {
	return d.CreateBoundImage(extent, format, vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
}

func (i *Image) MemoryRequirements() vk.MemoryRequirements {
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(i.Device.VKDevice, i.VKImage, &req)
	req.Deref()
	return req
}

func (i *Image) Destroy() {
	if i.external {
		return
	}
	vk.DestroyImage(i.Device.VKDevice, i.VKImage, nil)
	if i.memory != nil {
		i.memory.Destroy()
		i.memory = nil
	}
}

type ImageView struct {
	Device      *Device
	VKImageView vk.ImageView
}

func (i *Image) CreateImageView() (*ImageView, error) {
	return i.CreateImageViewWithAspectMask(vk.ImageAspectFlags(vk.ImageAspectColorBit))
}

func (i *Image) CreateImageViewWithAspectMask(mask vk.ImageAspectFlags) (*ImageView, error) {
	createInfo := &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    i.VKImage,
		ViewType: vk.ImageViewType2d,
		Format:   i.VKFormat,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleR,
			G: vk.ComponentSwizzleG,
			B: vk.ComponentSwizzleB,
			A: vk.ComponentSwizzleA,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: mask,
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var view vk.ImageView
	err := vk.Error(vk.CreateImageView(i.Device.VKDevice, createInfo, nil, &view))
	if err != nil {
		return nil, err
	}
	return &ImageView{Device: i.Device, VKImageView: view}, nil
}

func (i *ImageView) Destroy() {
	vk.DestroyImageView(i.Device.VKDevice, i.VKImageView, nil)
}

// TransitionImageLayout records a layout transition barrier for the image.
// Only the transitions needed for texture upload are supported.
func (c *CommandBuffer) TransitionImageLayout(img *Image, oldLayout, newLayout vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.VKImage,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	var sourceStage, destStage vk.PipelineStageFlags

	switch {
	case oldLayout == vk.ImageLayoutUndefined && newLayout == vk.ImageLayoutTransferDstOptimal:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		sourceStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		destStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case oldLayout == vk.ImageLayoutTransferDstOptimal && newLayout == vk.ImageLayoutShaderReadOnlyOptimal:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		sourceStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		destStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	}

	vk.CmdPipelineBarrier(c.VKCommandBuffer, sourceStage, destStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// CopyBufferToImage records a full-extent copy from a staging buffer into an
// image that is in the transfer-dst layout.
func (c *CommandBuffer) CopyBufferToImage(src *Buffer, dst *Image, width, height uint32) {
	vk.CmdCopyBufferToImage(c.VKCommandBuffer, src.VKBuffer, dst.VKImage, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{
		{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: 1},
		},
	})
}
