package vkt

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A single triangle with an embedded buffer: three positions and three
// uint16 indices.
const triangleGLTF = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0]}],
  "nodes": [{"name": "triangle", "mesh": 0}],
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}, "indices": 1}]}],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3",
     "min": [-1, -1, 0], "max": [1, 1, 0]},
    {"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
  ],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 36, "target": 34962},
    {"buffer": 0, "byteOffset": 36, "byteLength": 6, "target": 34963}
  ],
  "buffers": [{"byteLength": 42,
    "uri": "data:application/octet-stream;base64,AAAAAAAAgD8AAAAAAACAvwAAgL8AAAAAAACAPwAAgL8AAAAAAAABAAIA"}]
}`

func writeGLTF(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.gltf")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path
}

func TestParseModelTriangle(t *testing.T) {
	path := writeGLTF(t, triangleGLTF)

	data, err := ParseModel(path, 2)
	require.NoError(t, err)

	require.Len(t, data.Vertices, 3)
	require.Len(t, data.Indices, 3)
	require.Len(t, data.Nodes, 1)
	assert.Equal(t, "triangle", data.Nodes[0].Name)

	// Scale is applied at parse time.
	assert.InDelta(t, 2.0, float64(data.Vertices[0].Pos.Y()), 1e-6)
	assert.InDelta(t, -2.0, float64(data.Dimensions.Min.X()), 1e-6)
	assert.InDelta(t, 2.0, float64(data.Dimensions.Max.X()), 1e-6)
}

func TestParseModelNoScene(t *testing.T) {
	path := writeGLTF(t, `{"asset": {"version": "2.0"}}`)

	_, err := ParseModel(path, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contains no scene")
}

func TestParseModelMissingFile(t *testing.T) {
	_, err := ParseModel(filepath.Join(t.TempDir(), "absent.gltf"), 1)
	require.Error(t, err)
}

func TestModelPoolSizeCoversGeometry(t *testing.T) {
	data := &ModelData{
		Vertices: make([]Vertex, 100),
		Indices:  make([]uint32, 300),
	}

	size := modelPoolSize(data)
	geometry := uint64(100)*uint64(unsafe.Sizeof(Vertex{})) + 300*4
	assert.Greater(t, size, geometry, "pool must leave slack for suballocation alignment")

	// The slack must cover rounding both buffers up to a common buffer
	// alignment.
	assert.GreaterOrEqual(t, size-geometry, uint64(512))
}
