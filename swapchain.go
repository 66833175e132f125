package vkt

import (
	vk "github.com/vulkan-go/vulkan"
)

type Swapchain struct {
	Extent      vk.Extent2D
	Format      vk.Format
	Device      *Device
	VKSwapchain vk.Swapchain
}

func (s *Swapchain) Destroy() {
	vk.DestroySwapchain(s.Device.VKDevice, s.VKSwapchain, nil)
}

func (s *Swapchain) GetImages() ([]*Image, error) {
	var imageCount uint32
	err := vk.Error(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, nil))
	if err != nil {
		return nil, err
	}

	swapchainImages := make([]vk.Image, imageCount)
	err = vk.Error(vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &imageCount, swapchainImages))
	if err != nil {
		return nil, err
	}

	ret := make([]*Image, imageCount)
	for i := range swapchainImages {
		ret[i] = &Image{
			Device:   s.Device,
			VKImage:  swapchainImages[i],
			VKFormat: s.Format,
			// Swapchain images are owned by the swapchain.
			external: true,
		}
	}
	return ret, nil
}

type CreateSwapchainOptions struct {
	OldSwapchain              *Swapchain
	ActualSize                vk.Extent2D
	DesiredNumSwapchainImages int
}

func (d *Device) DefaultNumSwapchainImages(surface vk.Surface) (int, error) {
	caps, err := d.PhysicalDevice.GetSurfaceCapabilities(surface)
	if err != nil {
		return 0, err
	}
	caps.Deref()

	return int(caps.MinImageCount) + 1, nil
}

func (d *Device) CreateSwapchain(surface vk.Surface, graphicsQueue, presentQueue *Queue, options *CreateSwapchainOptions) (*Swapchain, error) {

	modes, err := d.PhysicalDevice.GetSurfacePresentModes(surface)
	if err != nil {
		return nil, err
	}

	// Mailbox when available, FIFO is always supported.
	presentMode := vk.PresentModeFifo
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			presentMode = m
			break
		}
	}

	formats, err := d.PhysicalDevice.GetSurfaceFormats(surface)
	if err != nil {
		return nil, err
	}

	var format vk.SurfaceFormat
	for _, f := range formats {
		f.Deref()
		if f.Format == vk.FormatB8g8r8a8Unorm {
			format = f
			break
		}
	}

	caps, err := d.PhysicalDevice.GetSurfaceCapabilities(surface)
	if err != nil {
		return nil, err
	}
	caps.Deref()

	var swapchainSize vk.Extent2D

	caps.CurrentExtent.Deref()
	if caps.CurrentExtent.Width == vk.MaxUint32 {
		if options != nil {
			swapchainSize = options.ActualSize
		} else {
			swapchainSize = caps.MinImageExtent
		}
	} else {
		swapchainSize = caps.CurrentExtent
	}

	desiredSwapChainImages := 0
	if options != nil {
		desiredSwapChainImages = options.DesiredNumSwapchainImages
	}
	if desiredSwapChainImages == 0 {
		desiredSwapChainImages, err = d.DefaultNumSwapchainImages(surface)
		if err != nil {
			return nil, err
		}
	}

	var swapchain vk.Swapchain

	createInfo := &vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         surface,
		MinImageCount:   uint32(desiredSwapChainImages),
		ImageFormat:     format.Format,
		ImageColorSpace: format.ColorSpace,
		ImageExtent: vk.Extent2D{
			Width:  swapchainSize.Width,
			Height: swapchainSize.Height,
		},
		PresentMode:      presentMode,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageArrayLayers: 1,
		Clipped:          vk.True,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		OldSwapchain:     vk.NullSwapchain,
	}

	if options != nil && options.OldSwapchain != nil {
		createInfo.OldSwapchain = options.OldSwapchain.VKSwapchain
	}

	if graphicsQueue.QueueFamily.Index != presentQueue.QueueFamily.Index {
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{uint32(graphicsQueue.QueueFamily.Index), uint32(presentQueue.QueueFamily.Index)}
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	err = vk.Error(vk.CreateSwapchain(d.VKDevice, createInfo, nil, &swapchain))
	if err != nil {
		return nil, err
	}

	return &Swapchain{
		Device:      d,
		VKSwapchain: swapchain,
		Extent: vk.Extent2D{
			Width:  swapchainSize.Width,
			Height: swapchainSize.Height,
		},
		Format: format.Format,
	}, nil
}
