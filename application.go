package vkt

import (
	"fmt"
	"log"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// FrameLag is the number of frames that may be in flight at once.
var FrameLag = 3

// Settings are the command line options understood by every application
// built on this package.
type Settings struct {
	Width      int    `long:"width" description:"window width" default:"1280"`
	Height     int    `long:"height" description:"window height" default:"720"`
	Fullscreen bool   `long:"fullscreen" description:"render in fullscreen"`
	Validation bool   `long:"validation" description:"enable the Vulkan validation layer"`
	AssetPath  string `long:"assets" description:"base directory for shaders and models" default:"assets"`
}

// ParseSettings parses os.Args into Settings.
func ParseSettings() (*Settings, error) {
	settings := &Settings{}
	if _, err := flags.Parse(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Application owns the Vulkan boilerplate a rendered scene needs: instance,
// device, swapchain, render pass, per-frame sync objects, and the file
// watcher plus reloader pair that drives shader and model hot reloading.
type Application struct {
	App      *App
	Instance *Instance

	Settings *Settings

	Window    *glfw.Window
	VKSurface vk.Surface

	Device         *Device
	PhysicalDevice *PhysicalDevice

	GraphicsQueue *Queue
	PresentQueue  *Queue

	CommandPool    *CommandPool
	CommandBuffers []*CommandBuffer

	PipelineCache *PipelineCache

	Swapchain           *Swapchain
	SwapchainImages     []*Image
	SwapchainImageViews []*ImageView
	DepthImage          *Image
	DepthImageView      *ImageView
	Framebuffers        []vk.Framebuffer

	VKRenderPass vk.RenderPass

	Watcher  *FileWatcher
	Reloader *Reloader

	Assets *AssetManager
	Actors *ActorManager
	Camera *Camera

	// MakeCommandBuffer records the commands for one framebuffer. It is
	// invoked every frame, after any pending reloads have been applied.
	MakeCommandBuffer func(command *CommandBuffer, framebuffer int)

	// OnUpdate runs once per frame before command recording.
	OnUpdate func(delta float64)

	// ConfigureRenderPass can override the default render pass setup.
	ConfigureRenderPass func(renderPass *vk.RenderPassCreateInfo)

	presentComplete []*Semaphore
	renderComplete  []*Semaphore
	waitFences      []*Fence

	frameIndex   int
	screenExtent vk.Extent2D
	resized      bool
	lastFrame    time.Time
}

// NewApplication creates an application shell with the given name. Call
// SetWindow and Init before drawing.
func NewApplication(name string, version Version, settings *Settings) *Application {
	if settings == nil {
		settings = &Settings{Width: 1280, Height: 720, AssetPath: "assets"}
	}
	return &Application{
		App:      &App{Name: name, Version: version, APIVersion: Version{Major: 1}},
		Settings: settings,
		Reloader: &Reloader{},
		Watcher:  NewFileWatcher(),
	}
}

// SetWindow attaches the GLFW window. It must be called before Init so the
// required surface extensions can be enabled.
func (a *Application) SetWindow(window *glfw.Window) error {
	if a.Instance != nil {
		return fmt.Errorf("window must be set before Init")
	}
	a.Window = window

	supported, err := SupportedExtensions()
	if err != nil {
		return err
	}
	for _, ext := range window.GetRequiredInstanceExtensions() {
		found := false
		for _, s := range supported {
			if s == ext {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required window extension '%s' is not supported", ext)
		}
		a.App.EnableExtension(ext)
	}

	a.refreshScreenExtent()
	return nil
}

// Init creates the instance, picks a device, sets up queues and the command
// pool, and starts the file watcher.
func (a *Application) Init() error {
	var err error

	debugging := false
	if a.Settings.Validation {
		if err := a.App.EnableDebugging(); err != nil {
			log.Printf("validation requested but not available: %v", err)
		} else {
			debugging = true
		}
	}

	a.Instance, err = a.App.CreateInstance()
	if err != nil {
		return fmt.Errorf("unable to create instance: %w", err)
	}

	if debugging {
		if err := a.Instance.UseDefaultDebugCallback(); err != nil {
			return fmt.Errorf("unable to install debug callback: %w", err)
		}
	}

	if a.Window != nil && a.VKSurface == vk.NullSurface {
		surface, err := a.Window.CreateWindowSurface(a.Instance.VKInstance, nil)
		if err != nil {
			return err
		}
		a.VKSurface = vk.SurfaceFromPointer(surface)
	}

	physicalDevices, err := a.Instance.PhysicalDevices()
	if err != nil {
		return fmt.Errorf("error enumerating devices: %w", err)
	}
	if len(physicalDevices) == 0 {
		return fmt.Errorf("no Vulkan capable devices found")
	}

	pdevice := physicalDevices[0]

	queues, err := pdevice.QueueFamilies()
	if err != nil {
		return fmt.Errorf("unable to load device queue families: %w", err)
	}

	gqueues := queues.FilterGraphicsAndPresent(a.VKSurface)
	if len(gqueues) == 0 {
		return fmt.Errorf("no graphics capable queues found on device: %v", pdevice)
	}

	device, err := pdevice.CreateLogicalDevice(gqueues[:1], &CreateDeviceOptions{
		EnabledExtensions: []string{"VK_KHR_swapchain"},
	})
	if err != nil {
		return fmt.Errorf("unable to create device: %w", err)
	}

	a.Device = device
	a.PhysicalDevice = pdevice

	queue := device.GetQueue(gqueues[0])
	a.GraphicsQueue = queue
	a.PresentQueue = queue

	a.CommandPool, err = device.CreateCommandPool(a.GraphicsQueue.QueueFamily)
	if err != nil {
		return err
	}

	a.Assets = NewAssetManager(device)
	a.Actors = &ActorManager{}
	a.Camera = NewCamera()
	a.lastFrame = time.Now()

	a.Watcher.Start()

	return nil
}

// WatchPipeline registers a hot-reloadable pipeline with both the watcher
// and the per-frame reloader.
func (a *Application) WatchPipeline(p *Pipeline) error {
	if !p.HotReloadable() {
		return fmt.Errorf("pipeline was not created with EnableHotReload")
	}
	if err := a.Watcher.AddPipeline(p); err != nil {
		return err
	}
	a.Reloader.Add(p)
	return nil
}

// WatchModel registers a model slot for reload when its source file changes.
func (a *Application) WatchModel(slot *ModelSlot) error {
	if err := a.Watcher.AddFile(slot.Path(), slot); err != nil {
		return err
	}
	a.Reloader.Add(slot)
	return nil
}

// AssetPath resolves a path relative to the configured asset directory.
func (a *Application) AssetPath(parts ...string) string {
	path := a.Settings.AssetPath
	for _, p := range parts {
		path += "/" + p
	}
	return path
}

// PrepareToDraw builds the swapchain dependent state. MakeCommandBuffer must
// be set before calling it.
func (a *Application) PrepareToDraw() error {
	if a.MakeCommandBuffer == nil {
		return fmt.Errorf("no command buffer recording function configured")
	}

	if err := a.createSwapchainAndImages(); err != nil {
		return err
	}
	if err := a.createRenderPass(); err != nil {
		return err
	}

	var err error
	if a.PipelineCache == nil {
		a.PipelineCache, err = a.Device.CreatePipelineCache()
		if err != nil {
			return err
		}
	}

	if err := a.createDepthImage(); err != nil {
		return err
	}
	if err := a.createFramebuffers(); err != nil {
		return err
	}
	if err := a.createCommandBuffers(); err != nil {
		return err
	}
	if err := a.createSyncObjects(); err != nil {
		return err
	}

	a.frameIndex = 0
	return nil
}

// Resize flags that the swapchain must be rebuilt before the next frame.
func (a *Application) Resize() {
	a.refreshScreenExtent()
	a.resized = true
}

func (a *Application) refreshScreenExtent() {
	if a.Window == nil {
		return
	}
	width, height := a.Window.GetFramebufferSize()
	a.screenExtent = vk.Extent2D{Width: uint32(width), Height: uint32(height)}
}

// ScreenExtent returns the current framebuffer extent.
func (a *Application) ScreenExtent() vk.Extent2D {
	return a.screenExtent
}

// DrawFrame acquires an image, records and submits its command buffer, and
// presents. Pending hot reloads are applied after submission, when the
// device can safely be idled.
func (a *Application) DrawFrame() error {
	var imageIndex uint32

	res := vk.AcquireNextImage(a.Device.VKDevice, a.Swapchain.VKSwapchain, vk.MaxUint64,
		a.presentComplete[a.frameIndex].VKSemaphore, vk.NullFence, &imageIndex)
	if res == vk.ErrorOutOfDate || a.resized {
		return a.recreateSwapchain()
	}
	if err := vk.Error(res); err != nil {
		return err
	}

	if err := a.Device.WaitForFences(true, time.Duration(vk.MaxUint64), a.waitFences[a.frameIndex]); err != nil {
		return err
	}
	if err := a.Device.ResetFences(a.waitFences[a.frameIndex]); err != nil {
		return err
	}

	now := time.Now()
	delta := now.Sub(a.lastFrame).Seconds()
	a.lastFrame = now

	if a.Camera != nil {
		a.Camera.Update(delta)
	}
	if a.Actors != nil {
		a.Actors.Update(delta)
	}
	if a.OnUpdate != nil {
		a.OnUpdate(delta)
	}

	cmd := a.CommandBuffers[imageIndex]
	if err := cmd.Reset(); err != nil {
		return err
	}
	a.MakeCommandBuffer(cmd, int(imageIndex))

	waitStages := []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	submitInfo := []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{a.presentComplete[a.frameIndex].VKSemaphore},
		PWaitDstStageMask:    waitStages,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{a.renderComplete[a.frameIndex].VKSemaphore},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cmd.VKCommandBuffer},
	}}

	err := vk.Error(vk.QueueSubmit(a.GraphicsQueue.VKQueue, 1, submitInfo, a.waitFences[a.frameIndex].VKFence))
	if err != nil {
		return err
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{a.Swapchain.VKSwapchain},
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{a.renderComplete[a.frameIndex].VKSemaphore},
		PImageIndices:      []uint32{imageIndex},
	}

	res = vk.QueuePresent(a.PresentQueue.VKQueue, &presentInfo)
	if res == vk.ErrorOutOfDate || res == vk.Suboptimal || a.resized {
		return a.recreateSwapchain()
	}
	if err := vk.Error(res); err != nil {
		return err
	}

	a.frameIndex = (a.frameIndex + 1) % FrameLag

	// The frame has been handed to the GPU. Resources flagged by the
	// watcher can now be rebuilt between frames.
	a.Reloader.Process()

	return nil
}

// RenderLoop pumps window events and draws frames until the window is
// closed.
func (a *Application) RenderLoop() error {
	for !a.Window.ShouldClose() {
		glfw.PollEvents()
		if err := a.DrawFrame(); err != nil {
			return err
		}
	}
	a.Device.WaitIdle()
	return nil
}

func (a *Application) recreateSwapchain() error {
	a.PresentQueue.WaitIdle()
	a.GraphicsQueue.WaitIdle()
	a.Device.WaitIdle()

	a.destroyFramebuffers()
	a.destroyDepthImage()

	for _, c := range a.CommandBuffers {
		a.CommandPool.FreeBuffer(c)
	}
	a.CommandBuffers = nil

	vk.DestroyRenderPass(a.Device.VKDevice, a.VKRenderPass, nil)
	a.VKRenderPass = vk.NullRenderPass

	for _, view := range a.SwapchainImageViews {
		view.Destroy()
	}
	a.SwapchainImageViews = nil
	a.Swapchain.Destroy()

	a.refreshScreenExtent()

	if err := a.createSwapchainAndImages(); err != nil {
		return err
	}
	if err := a.createRenderPass(); err != nil {
		return err
	}
	if err := a.createDepthImage(); err != nil {
		return err
	}
	if err := a.createFramebuffers(); err != nil {
		return err
	}
	if err := a.createCommandBuffers(); err != nil {
		return err
	}

	a.resized = false
	a.frameIndex = 0
	return nil
}

// Destroy tears the application down. The watcher is stopped first so no
// reload can fire while resources are being destroyed.
func (a *Application) Destroy() {
	a.Watcher.Stop()

	a.Device.WaitIdle()

	if a.Assets != nil {
		a.Assets.Destroy()
	}

	if a.PipelineCache != nil {
		a.PipelineCache.Destroy()
		a.PipelineCache = nil
	}

	a.destroySyncObjects()

	for _, c := range a.CommandBuffers {
		a.CommandPool.FreeBuffer(c)
	}
	a.CommandBuffers = nil

	a.destroyFramebuffers()
	a.destroyDepthImage()

	vk.DestroyRenderPass(a.Device.VKDevice, a.VKRenderPass, nil)
	a.VKRenderPass = vk.NullRenderPass

	for _, view := range a.SwapchainImageViews {
		view.Destroy()
	}
	a.Swapchain.Destroy()

	a.CommandPool.Destroy()

	vk.DestroySurface(a.Instance.VKInstance, a.VKSurface, nil)

	a.Device.Destroy()
	a.Instance.Destroy()
}

// VKRenderPassCreateInfo builds the default render pass: one color
// attachment in swapchain format plus a D32 depth attachment.
func (a *Application) VKRenderPassCreateInfo() vk.RenderPassCreateInfo {
	attachments := []vk.AttachmentDescription{
		{
			Format:         a.Swapchain.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         vk.FormatD32Sfloat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	colorAttachments := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	depthAttachment := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	subpasses := []vk.SubpassDescription{{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       colorAttachments,
		PDepthStencilAttachment: &depthAttachment,
	}}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	return vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      subpasses,
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
}

func (a *Application) createRenderPass() error {
	createInfo := a.VKRenderPassCreateInfo()
	if a.ConfigureRenderPass != nil {
		a.ConfigureRenderPass(&createInfo)
	}

	var renderPass vk.RenderPass
	err := vk.Error(vk.CreateRenderPass(a.Device.VKDevice, &createInfo, nil, &renderPass))
	if err != nil {
		return err
	}
	a.VKRenderPass = renderPass
	return nil
}

func (a *Application) createSwapchainAndImages() error {
	options := &CreateSwapchainOptions{
		ActualSize: a.ScreenExtent(),
	}

	swapchain, err := a.Device.CreateSwapchain(a.VKSurface, a.GraphicsQueue, a.PresentQueue, options)
	if err != nil {
		return err
	}
	a.Swapchain = swapchain

	images, err := swapchain.GetImages()
	if err != nil {
		return err
	}
	a.SwapchainImages = images

	a.SwapchainImageViews = make([]*ImageView, len(images))
	for i, image := range images {
		view, err := image.CreateImageView()
		if err != nil {
			return err
		}
		a.SwapchainImageViews[i] = view
	}
	return nil
}

func (a *Application) createDepthImage() error {
	var err error
	a.DepthImage, err = a.Device.CreateDepthImage(a.Swapchain.Extent, vk.FormatD32Sfloat)
	if err != nil {
		return err
	}
	a.DepthImageView, err = a.DepthImage.CreateImageViewWithAspectMask(vk.ImageAspectFlags(vk.ImageAspectDepthBit))
	return err
}

func (a *Application) destroyDepthImage() {
	if a.DepthImageView != nil {
		a.DepthImageView.Destroy()
		a.DepthImageView = nil
	}
	if a.DepthImage != nil {
		a.DepthImage.Destroy()
		a.DepthImage = nil
	}
}

func (a *Application) createFramebuffers() error {
	a.Framebuffers = make([]vk.Framebuffer, len(a.SwapchainImageViews))
	for i, view := range a.SwapchainImageViews {
		attachments := []vk.ImageView{
			view.VKImageView,
			a.DepthImageView.VKImageView,
		}
		createInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      a.VKRenderPass,
			Layers:          1,
			AttachmentCount: uint32(len(attachments)),
			PAttachments:    attachments,
			Width:           a.Swapchain.Extent.Width,
			Height:          a.Swapchain.Extent.Height,
		}
		err := vk.Error(vk.CreateFramebuffer(a.Device.VKDevice, &createInfo, nil, &a.Framebuffers[i]))
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *Application) destroyFramebuffers() {
	for i := range a.Framebuffers {
		vk.DestroyFramebuffer(a.Device.VKDevice, a.Framebuffers[i], nil)
	}
	a.Framebuffers = nil
}

func (a *Application) createCommandBuffers() error {
	buffers, err := a.CommandPool.AllocateBuffers(len(a.SwapchainImageViews))
	if err != nil {
		return err
	}
	a.CommandBuffers = buffers
	return nil
}

func (a *Application) createSyncObjects() error {
	a.presentComplete = make([]*Semaphore, FrameLag)
	a.renderComplete = make([]*Semaphore, FrameLag)
	a.waitFences = make([]*Fence, FrameLag)

	for i := 0; i < FrameLag; i++ {
		var err error
		if a.presentComplete[i], err = a.Device.CreateSemaphore(); err != nil {
			return err
		}
		if a.renderComplete[i], err = a.Device.CreateSemaphore(); err != nil {
			return err
		}
		if a.waitFences[i], err = a.Device.CreateFence(true); err != nil {
			return err
		}
	}
	return nil
}

func (a *Application) destroySyncObjects() {
	for _, s := range a.presentComplete {
		s.Destroy()
	}
	for _, s := range a.renderComplete {
		s.Destroy()
	}
	for _, f := range a.waitFences {
		f.Destroy()
	}
	a.presentComplete = nil
	a.renderComplete = nil
	a.waitFences = nil
}
