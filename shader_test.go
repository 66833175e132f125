package vkt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
)

func TestShaderStageFromFile(t *testing.T) {
	cases := []struct {
		file  string
		stage vk.ShaderStageFlagBits
	}{
		{"fullscreen.vert.hlsl", vk.ShaderStageVertexBit},
		{"fullscreen.frag.hlsl", vk.ShaderStageFragmentBit},
		{"particles.comp.hlsl", vk.ShaderStageComputeBit},
		{"sky.frag", vk.ShaderStageFragmentBit},
		{filepath.Join("assets", "shaders", "scene.vert.hlsl"), vk.ShaderStageVertexBit},
	}

	for _, c := range cases {
		stage, err := ShaderStageFromFile(c.file)
		require.NoError(t, err, c.file)
		assert.Equal(t, c.stage, stage, c.file)
	}
}

func TestShaderStageFromFileUnknown(t *testing.T) {
	_, err := ShaderStageFromFile("readme.txt")
	assert.Error(t, err)

	_, err = ShaderStageFromFile("noextension")
	assert.Error(t, err)
}

func TestShaderModuleRejectsBadCodeSize(t *testing.T) {
	d := &Device{}

	_, err := d.CreateShaderModule(nil)
	assert.Error(t, err)

	_, err = d.CreateShaderModule([]byte{0x03, 0x02, 0x23})
	assert.Error(t, err, "SPIR-V is a stream of 32 bit words")
}

func TestDxcMissingSourceFile(t *testing.T) {
	c := &Dxc{}
	_, err := c.CompileShader(nil, filepath.Join(t.TempDir(), "gone.vert.hlsl"))
	require.Error(t, err)
}

func TestDxcUnknownProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mystery.geom.hlsl")
	require.NoError(t, os.WriteFile(path, []byte("float4 main() : SV_Target { return 0; }"), 0644))

	c := &Dxc{}
	_, err := c.CompileShader(nil, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no target profile")
}
