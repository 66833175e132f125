package vkt

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"time"
	"unsafe"

	_ "image/jpeg"
	_ "image/png"

	vk "github.com/vulkan-go/vulkan"
)

// Texture is a sampled image with its view and sampler.
type Texture struct {
	Device    *Device
	Image     *Image
	View      *ImageView
	VKSampler vk.Sampler
	Width     int
	Height    int
}

// CreateTextureFromFile decodes an image file and uploads it as a sampled
// texture. The copy is submitted on the given queue and waited on.
func (d *Device) CreateTextureFromFile(filename string, pool *CommandPool, queue *Queue) (*Texture, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	src, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("unable to decode texture %s: %w", filename, err)
	}

	bounds := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)

	return d.CreateTextureFromRGBA(rgba, pool, queue)
}

// CreateTextureFromRGBA uploads pixel data that is already in RGBA form.
func (d *Device) CreateTextureFromRGBA(rgba *image.RGBA, pool *CommandPool, queue *Queue) (*Texture, error) {
	bounds := rgba.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	staging, err := d.CreateHostBuffer(uint64(len(rgba.Pix)), vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	pixels := ToBytes(unsafe.Pointer(&rgba.Pix[0]), len(rgba.Pix))
	if err := staging.CopyFrom(pixels); err != nil {
		return nil, err
	}

	img, err := d.CreateBoundImage(
		vk.Extent2D{Width: uint32(width), Height: uint32(height)},
		vk.FormatR8g8b8a8Unorm,
		vk.ImageTilingOptimal,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}

	cmd, err := pool.AllocateBuffer()
	if err != nil {
		img.Destroy()
		return nil, err
	}
	defer pool.FreeBuffer(cmd)

	if err := cmd.BeginOneTime(); err != nil {
		img.Destroy()
		return nil, err
	}
	cmd.TransitionImageLayout(img, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
	cmd.CopyBufferToImage(staging, img, uint32(width), uint32(height))
	cmd.TransitionImageLayout(img, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	if err := cmd.End(); err != nil {
		img.Destroy()
		return nil, err
	}

	fence, err := d.CreateFence(false)
	if err != nil {
		img.Destroy()
		return nil, err
	}
	defer fence.Destroy()

	if err := queue.SubmitWithFence(fence, cmd); err != nil {
		img.Destroy()
		return nil, err
	}
	if err := d.WaitForFences(true, 100*time.Second, fence); err != nil {
		img.Destroy()
		return nil, err
	}

	view, err := img.CreateImageView()
	if err != nil {
		img.Destroy()
		return nil, err
	}

	sampler, err := d.createDefaultSampler()
	if err != nil {
		view.Destroy()
		img.Destroy()
		return nil, err
	}

	return &Texture{
		Device:    d,
		Image:     img,
		View:      view,
		VKSampler: sampler,
		Width:     width,
		Height:    height,
	}, nil
}

func (d *Device) createDefaultSampler() (vk.Sampler, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		AddressModeU: vk.SamplerAddressModeRepeat,
		AddressModeV: vk.SamplerAddressModeRepeat,
		AddressModeW: vk.SamplerAddressModeRepeat,
		MaxLod:       1,
		BorderColor:  vk.BorderColorIntOpaqueBlack,
	}

	var sampler vk.Sampler
	err := vk.Error(vk.CreateSampler(d.VKDevice, &createInfo, nil, &sampler))
	if err != nil {
		return vk.NullSampler, err
	}
	return sampler, nil
}

func (t *Texture) Destroy() {
	vk.DestroySampler(t.Device.VKDevice, t.VKSampler, nil)
	t.View.Destroy()
	t.Image.Destroy()
}
