package vkt

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	vk "github.com/vulkan-go/vulkan"
)

// Vertex is the interleaved vertex layout shared by all models.
type Vertex struct {
	Pos    mgl32.Vec3
	Normal mgl32.Vec3
	UV     mgl32.Vec2
	Color  mgl32.Vec3
}

// VertexBindings returns the binding description for the Vertex layout.
func VertexBindings() []vk.VertexInputBindingDescription {
	return []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    uint32(unsafe.Sizeof(Vertex{})),
		InputRate: vk.VertexInputRateVertex,
	}}
}

// VertexAttributes returns the attribute descriptions for the Vertex layout.
func VertexAttributes() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.Pos))},
		{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.Normal))},
		{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.UV))},
		{Location: 3, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(Vertex{}.Color))},
	}
}

// Material carries the subset of glTF material state the template shades
// with.
type Material struct {
	Name      string
	BaseColor mgl32.Vec4
}

// Primitive is a draw range into the model's shared index buffer.
type Primitive struct {
	FirstIndex int
	IndexCount int
	Material   int
}

// Node is a flattened scene node with its world transform baked in.
type Node struct {
	Name       string
	Matrix     mgl32.Mat4
	Primitives []Primitive
}

// Dimensions is the axis aligned bounding box of all vertices.
type Dimensions struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Radius returns the bounding sphere radius around the box center.
func (d Dimensions) Radius() float32 {
	return d.Max.Sub(d.Min).Len() / 2
}

// ModelData is the CPU side of a loaded model, before any GPU resources are
// created.
type ModelData struct {
	Vertices   []Vertex
	Indices    []uint32
	Nodes      []Node
	Materials  []Material
	Dimensions Dimensions
}

// ModelCreateInfo describes how to load a model.
type ModelCreateInfo struct {
	Device *Device
	Path   string
	Scale  float32
}

// Model owns the GPU buffers for one loaded glTF asset. Vertex and index
// buffers suballocate from a single memory pool sized for the model.
type Model struct {
	Device *Device
	Data   *ModelData

	VertexBuffer *Buffer
	IndexBuffer  *Buffer

	pool *BufferPool
}

func nodeMatrix(n *gltf.Node) mgl32.Mat4 {
	if n.Matrix != gltf.DefaultMatrix {
		var m mgl32.Mat4
		for i, v := range n.Matrix {
			m[i] = float32(v)
		}
		return m
	}

	t := mgl32.Translate3D(float32(n.Translation[0]), float32(n.Translation[1]), float32(n.Translation[2]))
	q := mgl32.Quat{
		W: float32(n.Rotation[3]),
		V: mgl32.Vec3{float32(n.Rotation[0]), float32(n.Rotation[1]), float32(n.Rotation[2])},
	}
	s := mgl32.Scale3D(float32(n.Scale[0]), float32(n.Scale[1]), float32(n.Scale[2]))
	return t.Mul4(q.Mat4()).Mul4(s)
}

// ParseModel reads a glTF file into ModelData. No GPU resources are touched,
// so parsing can run off the render thread.
func ParseModel(path string, scale float32) (*ModelData, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open model %s: %w", path, err)
	}

	if scale == 0 {
		scale = 1
	}

	data := &ModelData{
		Dimensions: Dimensions{
			Min: mgl32.Vec3{mgl32.MaxValue, mgl32.MaxValue, mgl32.MaxValue},
			Max: mgl32.Vec3{-mgl32.MaxValue, -mgl32.MaxValue, -mgl32.MaxValue},
		},
	}

	for _, m := range doc.Materials {
		material := Material{Name: m.Name, BaseColor: mgl32.Vec4{1, 1, 1, 1}}
		if m.PBRMetallicRoughness != nil {
			c := m.PBRMetallicRoughness.BaseColorFactorOrDefault()
			material.BaseColor = mgl32.Vec4{float32(c[0]), float32(c[1]), float32(c[2]), float32(c[3])}
		}
		data.Materials = append(data.Materials, material)
	}

	var loadNode func(n *gltf.Node, parent mgl32.Mat4) error
	loadNode = func(n *gltf.Node, parent mgl32.Mat4) error {
		world := parent.Mul4(nodeMatrix(n))

		node := Node{Name: n.Name, Matrix: world}

		if n.Mesh != nil {
			mesh := doc.Meshes[*n.Mesh]
			for _, p := range mesh.Primitives {
				posIndex, ok := p.Attributes[gltf.POSITION]
				if !ok {
					continue
				}

				positions, err := modeler.ReadPosition(doc, doc.Accessors[posIndex], nil)
				if err != nil {
					return err
				}

				var normals [][3]float32
				if ni, ok := p.Attributes[gltf.NORMAL]; ok {
					normals, err = modeler.ReadNormal(doc, doc.Accessors[ni], nil)
					if err != nil {
						return err
					}
				}

				var uvs [][2]float32
				if ti, ok := p.Attributes[gltf.TEXCOORD_0]; ok {
					uvs, err = modeler.ReadTextureCoord(doc, doc.Accessors[ti], nil)
					if err != nil {
						return err
					}
				}

				color := mgl32.Vec3{1, 1, 1}
				materialIndex := 0
				if p.Material != nil {
					materialIndex = int(*p.Material)
					bc := data.Materials[materialIndex].BaseColor
					color = mgl32.Vec3{bc[0], bc[1], bc[2]}
				}

				vertexOffset := uint32(len(data.Vertices))
				for i, pos := range positions {
					v := Vertex{
						Pos:   mgl32.Vec3{pos[0] * scale, pos[1] * scale, pos[2] * scale},
						Color: color,
					}
					if normals != nil {
						v.Normal = mgl32.Vec3{normals[i][0], normals[i][1], normals[i][2]}
					}
					if uvs != nil {
						v.UV = mgl32.Vec2{uvs[i][0], uvs[i][1]}
					}
					data.Vertices = append(data.Vertices, v)

					for c := 0; c < 3; c++ {
						if v.Pos[c] < data.Dimensions.Min[c] {
							data.Dimensions.Min[c] = v.Pos[c]
						}
						if v.Pos[c] > data.Dimensions.Max[c] {
							data.Dimensions.Max[c] = v.Pos[c]
						}
					}
				}

				if p.Indices == nil {
					continue
				}
				indices, err := modeler.ReadIndices(doc, doc.Accessors[*p.Indices], nil)
				if err != nil {
					return err
				}

				firstIndex := len(data.Indices)
				for _, idx := range indices {
					data.Indices = append(data.Indices, idx+vertexOffset)
				}

				node.Primitives = append(node.Primitives, Primitive{
					FirstIndex: firstIndex,
					IndexCount: len(indices),
					Material:   materialIndex,
				})
			}
		}

		if len(node.Primitives) > 0 {
			data.Nodes = append(data.Nodes, node)
		}

		for _, child := range n.Children {
			if err := loadNode(doc.Nodes[child], world); err != nil {
				return err
			}
		}
		return nil
	}

	// The scenes array is optional in glTF; a document without one has no
	// renderable content.
	if len(doc.Scenes) == 0 {
		return nil, fmt.Errorf("model %s contains no scene", path)
	}
	scene := doc.Scenes[0]
	if doc.Scene != nil {
		scene = doc.Scenes[*doc.Scene]
	}
	for _, nodeIndex := range scene.Nodes {
		if err := loadNode(doc.Nodes[nodeIndex], mgl32.Ident4()); err != nil {
			return nil, err
		}
	}

	if len(data.Vertices) == 0 {
		return nil, fmt.Errorf("model %s contains no vertices", path)
	}

	return data, nil
}

// LoadModel parses a glTF file and uploads its geometry.
func LoadModel(info ModelCreateInfo) (*Model, error) {
	data, err := ParseModel(info.Path, info.Scale)
	if err != nil {
		return nil, err
	}
	return NewModel(info.Device, data)
}

// modelPoolSize returns the memory pool size for a model's geometry: vertex
// plus index bytes, with slack for the alignment rounding of each
// suballocation.
func modelPoolSize(data *ModelData) uint64 {
	size := uint64(len(data.Vertices)) * uint64(unsafe.Sizeof(Vertex{}))
	size += uint64(len(data.Indices)) * 4
	return size + 2*256
}

// NewModel creates the GPU buffers for already parsed model data. All
// geometry lives in one host-visible pool allocation per model.
func NewModel(device *Device, data *ModelData) (*Model, error) {
	pool, err := device.CreateBufferPool(modelPoolSize(data),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	model := &Model{Device: device, Data: data, pool: pool}

	vertexBytes := ToBytes(unsafe.Pointer(&data.Vertices[0]), len(data.Vertices)*int(unsafe.Sizeof(Vertex{})))
	vertexBuffer, err := pool.AllocateBuffer(uint64(len(vertexBytes)), vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	if err != nil {
		pool.Destroy()
		return nil, err
	}
	if err := vertexBuffer.CopyFrom(vertexBytes); err != nil {
		vertexBuffer.Destroy()
		pool.Destroy()
		return nil, err
	}
	model.VertexBuffer = vertexBuffer

	if len(data.Indices) > 0 {
		indexBytes := ToBytes(unsafe.Pointer(&data.Indices[0]), len(data.Indices)*4)
		indexBuffer, err := pool.AllocateBuffer(uint64(len(indexBytes)), vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
		if err != nil {
			vertexBuffer.Destroy()
			pool.Destroy()
			return nil, err
		}
		if err := indexBuffer.CopyFrom(indexBytes); err != nil {
			indexBuffer.Destroy()
			vertexBuffer.Destroy()
			pool.Destroy()
			return nil, err
		}
		model.IndexBuffer = indexBuffer
	}

	return model, nil
}

// Radius returns the model's bounding sphere radius.
func (m *Model) Radius() float32 {
	return m.Data.Dimensions.Radius()
}

// Draw records bind and draw commands for every node of the model.
func (m *Model) Draw(cmd *CommandBuffer) {
	vk.CmdBindVertexBuffers(cmd.VKCommandBuffer, 0, 1, []vk.Buffer{m.VertexBuffer.VKBuffer}, []vk.DeviceSize{0})
	if m.IndexBuffer != nil {
		vk.CmdBindIndexBuffer(cmd.VKCommandBuffer, m.IndexBuffer.VKBuffer, 0, vk.IndexTypeUint32)
	}
	for _, node := range m.Data.Nodes {
		for _, prim := range node.Primitives {
			if m.IndexBuffer != nil {
				cmd.DrawIndexed(prim.IndexCount, 1, prim.FirstIndex, 0, 0)
			} else {
				cmd.Draw(len(m.Data.Vertices), 1, 0, 0)
			}
		}
	}
}

func (m *Model) Destroy() {
	if m.VertexBuffer != nil {
		m.VertexBuffer.Destroy()
		m.VertexBuffer = nil
	}
	if m.IndexBuffer != nil {
		m.IndexBuffer.Destroy()
		m.IndexBuffer = nil
	}
	if m.pool != nil {
		m.pool.Destroy()
		m.pool = nil
	}
}
