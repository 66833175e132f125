package vkt

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// ShaderModule wraps a Vulkan shader module. Modules are transient: a
// pipeline destroys them as soon as the pipeline object has been created.
type ShaderModule struct {
	Device         *Device
	VKShaderModule vk.ShaderModule
}

// CreateShaderModule creates a shader module from SPIR-V byte code.
func (d *Device) CreateShaderModule(code []byte) (*ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("invalid SPIR-V code size %d", len(code))
	}
	var module vk.ShaderModule
	err := vk.Error(vk.CreateShaderModule(d.VKDevice, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}, nil, &module))
	if err != nil {
		return nil, err
	}
	return &ShaderModule{Device: d, VKShaderModule: module}, nil
}

func (s *ShaderModule) VKPipelineShaderStageCreateInfo(stage vk.ShaderStageFlagBits, entryPoint string) vk.PipelineShaderStageCreateInfo {
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  stage,
		Module: s.VKShaderModule,
		PName:  safeString(entryPoint),
	}
}

func (s *ShaderModule) Destroy() {
	if s.VKShaderModule == vk.NullShaderModule {
		return
	}
	vk.DestroyShaderModule(s.Device.VKDevice, s.VKShaderModule, nil)
	s.VKShaderModule = vk.NullShaderModule
}

// shaderExtension returns the stage extension of a shader source file name.
// Shader sources are named like fullscreen.vert.hlsl or sky.frag; the stage
// is the first extension after the base name.
func shaderExtension(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, ".hlsl")
	idx := strings.Index(name, ".")
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}

// ShaderStageFromFile derives the pipeline stage from the shader file name.
func ShaderStageFromFile(filename string) (vk.ShaderStageFlagBits, error) {
	switch shaderExtension(filename) {
	case "vert":
		return vk.ShaderStageVertexBit, nil
	case "frag":
		return vk.ShaderStageFragmentBit, nil
	case "comp":
		return vk.ShaderStageComputeBit, nil
	}
	return 0, fmt.Errorf("cannot determine shader stage of %s", filename)
}

// ShaderCompiler turns a shader source file into a live shader module.
// Pipelines use DefaultShaderCompiler unless their create info names one.
type ShaderCompiler interface {
	CompileShader(device *Device, filename string) (*ShaderModule, error)
}

// DefaultShaderCompiler is used by pipelines whose create info leaves the
// compiler unset.
var DefaultShaderCompiler ShaderCompiler = &Dxc{}

// Dxc compiles HLSL shader sources to SPIR-V by invoking the dxc compiler,
// which must be on the PATH (or named explicitly via Path). Compile errors
// carry dxc's diagnostics so a broken shader edit is reported verbatim.
type Dxc struct {
	// Path of the dxc binary. Empty means "dxc".
	Path string
}

// target profiles per stage extension, dxc naming
var dxcTargetProfiles = map[string]string{
	"vert": "vs_6_1",
	"frag": "ps_6_1",
	"comp": "cs_6_1",
}

func (c *Dxc) CompileShader(device *Device, filename string) (*ShaderModule, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	profile, ok := dxcTargetProfiles[shaderExtension(filename)]
	if !ok {
		return nil, fmt.Errorf("compile shader: no target profile for %s", filename)
	}

	out, err := os.CreateTemp("", "vkt-*.spv")
	if err != nil {
		return nil, err
	}
	out.Close()
	defer os.Remove(out.Name())

	bin := c.Path
	if bin == "" {
		bin = "dxc"
	}
	cmd := exec.Command(bin, "-spirv", "-T", profile, "-E", "main", "-Fo", out.Name(), filename)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("shader compilation of %s failed: %v\n%s", filename, err, output)
	}

	code, err := os.ReadFile(out.Name())
	if err != nil {
		return nil, err
	}
	return device.CreateShaderModule(code)
}

func sliceUint32(data []byte) []uint32 {
	const m = 0x7fffffff
	return (*[m / 4]uint32)(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&data)).Data))[:len(data)/4]
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}
