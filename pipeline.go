package vkt

import (
	"fmt"
	"log"

	vk "github.com/vulkan-go/vulkan"
)

type PipelineCache struct {
	Device          *Device
	VKPipelineCache vk.PipelineCache
}

func (d *Device) CreatePipelineCache() (*PipelineCache, error) {
	createInfo := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	var cache vk.PipelineCache
	err := vk.Error(vk.CreatePipelineCache(d.VKDevice, &createInfo, nil, &cache))
	if err != nil {
		return nil, err
	}
	return &PipelineCache{Device: d, VKPipelineCache: cache}, nil
}

func (p *PipelineCache) Destroy() {
	vk.DestroyPipelineCache(p.Device.VKDevice, p.VKPipelineCache, nil)
}

// PipelineCreateInfo holds everything needed to (re)build a graphics
// pipeline. Shaders are named by source file; the stage of each is derived
// from its extension and the compiler turns it into a module at build time.
// When EnableHotReload is set the pipeline keeps an immutable copy of this
// struct so it can rebuild itself after a shader source changes on disk.
type PipelineCreateInfo struct {
	Layout     *PipelineLayout
	Cache      *PipelineCache
	RenderPass vk.RenderPass
	Shaders    []string

	// Compiler used for the shader sources. Nil means DefaultShaderCompiler.
	Compiler ShaderCompiler

	VertexBindings   []vk.VertexInputBindingDescription
	VertexAttributes []vk.VertexInputAttributeDescription

	Topology         vk.PrimitiveTopology
	PolygonMode      vk.PolygonMode
	CullMode         vk.CullModeFlagBits
	FrontFace        vk.FrontFace
	LineWidth        float32
	SampleCount      vk.SampleCountFlagBits
	DepthTest        bool
	DepthWrite       bool
	BlendAttachments []vk.PipelineColorBlendAttachmentState
	DynamicState     []vk.DynamicState

	EnableHotReload bool
}

// Pipeline is a graphics pipeline that can optionally rebuild itself in place
// from its original creation parameters. At most one live handle exists at a
// time from the renderer's point of view: during a reload the new handle is
// built in full while the old one stays valid, and only a successful build
// replaces it.
type Pipeline struct {
	reloadFlag
	Device     *Device
	VKPipeline vk.Pipeline

	// Copy of the create info, retained only when hot reload is enabled.
	initialCreateInfo *PipelineCreateInfo
}

// CreatePipeline compiles the named shaders and builds a graphics pipeline.
func (d *Device) CreatePipeline(createInfo PipelineCreateInfo) (*Pipeline, error) {
	p := &Pipeline{Device: d}
	handle, err := p.createPipelineObject(createInfo)
	if err != nil {
		return nil, err
	}
	p.VKPipeline = handle
	if createInfo.EnableHotReload {
		snapshot := createInfo
		p.initialCreateInfo = &snapshot
	}
	return p, nil
}

// createPipelineObject builds a brand-new pipeline handle from createInfo.
// On any failure every shader module and handle allocated for the attempt is
// destroyed and the receiver is left untouched.
func (p *Pipeline) createPipelineObject(createInfo PipelineCreateInfo) (vk.Pipeline, error) {
	compiler := createInfo.Compiler
	if compiler == nil {
		compiler = DefaultShaderCompiler
	}

	modules := make([]*ShaderModule, 0, len(createInfo.Shaders))
	stages := make([]vk.PipelineShaderStageCreateInfo, 0, len(createInfo.Shaders))
	destroyModules := func() {
		for _, m := range modules {
			m.Destroy()
		}
	}

	for _, filename := range createInfo.Shaders {
		stage, err := ShaderStageFromFile(filename)
		if err != nil {
			destroyModules()
			return vk.NullPipeline, err
		}
		module, err := compiler.CompileShader(p.Device, filename)
		if err != nil {
			destroyModules()
			return vk.NullPipeline, err
		}
		modules = append(modules, module)
		stages = append(stages, module.VKPipelineShaderStageCreateInfo(stage, "main"))
	}

	vertexInputState := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(createInfo.VertexBindings)),
		PVertexBindingDescriptions:      createInfo.VertexBindings,
		VertexAttributeDescriptionCount: uint32(len(createInfo.VertexAttributes)),
		PVertexAttributeDescriptions:    createInfo.VertexAttributes,
	}

	topology := createInfo.Topology
	if topology == 0 {
		topology = vk.PrimitiveTopologyTriangleList
	}
	inputAssemblyState := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: topology,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	lineWidth := createInfo.LineWidth
	if lineWidth == 0 {
		lineWidth = 1.0
	}
	rasterizationState := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: createInfo.PolygonMode,
		CullMode:    vk.CullModeFlags(createInfo.CullMode),
		FrontFace:   createInfo.FrontFace,
		LineWidth:   lineWidth,
	}

	sampleCount := createInfo.SampleCount
	if sampleCount == 0 {
		sampleCount = vk.SampleCount1Bit
	}
	multisampleState := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: sampleCount,
	}

	depthStencilState := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vkBool(createInfo.DepthTest),
		DepthWriteEnable: vkBool(createInfo.DepthWrite),
		DepthCompareOp:   vk.CompareOpLessOrEqual,
	}

	blendAttachments := createInfo.BlendAttachments
	if blendAttachments == nil {
		blendAttachments = []vk.PipelineColorBlendAttachmentState{{
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		}}
	}
	colorBlendState := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := createInfo.DynamicState
	if dynamicStates == nil {
		dynamicStates = []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	var layout vk.PipelineLayout
	if createInfo.Layout != nil {
		layout = createInfo.Layout.VKPipelineLayout
	}
	var cache vk.PipelineCache
	if createInfo.Cache != nil {
		cache = createInfo.Cache.VKPipelineCache
	}

	pipelineCI := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputState,
		PInputAssemblyState: &inputAssemblyState,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizationState,
		PMultisampleState:   &multisampleState,
		PDepthStencilState:  &depthStencilState,
		PColorBlendState:    &colorBlendState,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          createInfo.RenderPass,
	}

	pipelines := make([]vk.Pipeline, 1)
	err := vk.Error(vk.CreateGraphicsPipelines(p.Device.VKDevice, cache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCI}, nil, pipelines))

	// Shader modules can be destroyed once the pipeline object exists, and
	// must be destroyed if it could not be built.
	destroyModules()

	if err != nil {
		return vk.NullPipeline, err
	}
	return pipelines[0], nil
}

// HotReloadable reports whether the pipeline retained its creation
// parameters and can be rebuilt.
func (p *Pipeline) HotReloadable() bool {
	return p.initialCreateInfo != nil
}

// ShaderFiles returns the shader source paths the pipeline was built from,
// or nil if hot reload was not enabled.
func (p *Pipeline) ShaderFiles() []string {
	if p.initialCreateInfo == nil {
		return nil
	}
	return p.initialCreateInfo.Shaders
}

// Reload rebuilds the pipeline from its retained creation parameters. The
// old handle stays live and in use until the replacement has been fully
// constructed; on failure it is kept and the error returned. The device is
// waited idle first, so no in-flight command buffer can still reference the
// handle being replaced.
func (p *Pipeline) Reload() error {
	p.clearReload()
	if p.initialCreateInfo == nil {
		return fmt.Errorf("pipeline was not created with hot reload enabled")
	}

	p.Device.WaitIdle()

	handle, err := p.createPipelineObject(*p.initialCreateInfo)
	if err != nil {
		return fmt.Errorf("pipeline reload: %w", err)
	}

	vk.DestroyPipeline(p.Device.VKDevice, p.VKPipeline, nil)
	p.VKPipeline = handle
	log.Printf("pipeline recreated")
	return nil
}

func (p *Pipeline) Destroy() {
	vk.DestroyPipeline(p.Device.VKDevice, p.VKPipeline, nil)
	p.VKPipeline = vk.NullPipeline
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}
