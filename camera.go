package vkt

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraType selects how view matrices are derived.
type CameraType int

const (
	CameraLookAt CameraType = iota
	CameraFirstPerson
)

// CameraKeys is the movement input state for a first person camera.
type CameraKeys struct {
	Up    bool
	Down  bool
	Left  bool
	Right bool
}

// Camera produces view and perspective matrices for the scene.
type Camera struct {
	Type CameraType

	Position mgl32.Vec3
	Rotation mgl32.Vec3

	MovementSpeed float32
	RotationSpeed float32

	Keys CameraKeys

	fov   float32
	znear float32
	zfar  float32

	perspective mgl32.Mat4
	view        mgl32.Mat4
}

func NewCamera() *Camera {
	return &Camera{
		Type:          CameraLookAt,
		MovementSpeed: 1.0,
		RotationSpeed: 1.0,
		fov:           60,
		znear:         0.1,
		zfar:          512,
	}
}

// SetPerspective sets the projection. The Y axis is flipped for Vulkan clip
// space.
func (c *Camera) SetPerspective(fov, aspect, znear, zfar float32) {
	c.fov = fov
	c.znear = znear
	c.zfar = zfar
	c.perspective = mgl32.Perspective(mgl32.DegToRad(fov), aspect, znear, zfar)
	c.perspective[5] *= -1
}

// UpdateAspect recomputes the projection for a new aspect ratio, e.g. after
// a window resize.
func (c *Camera) UpdateAspect(aspect float32) {
	c.SetPerspective(c.fov, aspect, c.znear, c.zfar)
}

func (c *Camera) Perspective() mgl32.Mat4 {
	return c.perspective
}

func (c *Camera) View() mgl32.Mat4 {
	return c.view
}

// Moving reports whether any movement key is held.
func (c *Camera) Moving() bool {
	return c.Keys.Up || c.Keys.Down || c.Keys.Left || c.Keys.Right
}

// Update recomputes the view matrix and applies first person movement.
func (c *Camera) Update(delta float64) {
	if c.Type == CameraFirstPerson && c.Moving() {
		yaw := float64(mgl32.DegToRad(c.Rotation.Y()))
		pitch := float64(mgl32.DegToRad(c.Rotation.X()))

		front := mgl32.Vec3{
			float32(-math.Cos(pitch) * math.Sin(yaw)),
			float32(math.Sin(pitch)),
			float32(math.Cos(pitch) * math.Cos(yaw)),
		}.Normalize()

		speed := float32(delta) * c.MovementSpeed

		if c.Keys.Up {
			c.Position = c.Position.Add(front.Mul(speed))
		}
		if c.Keys.Down {
			c.Position = c.Position.Sub(front.Mul(speed))
		}
		if c.Keys.Left {
			c.Position = c.Position.Sub(front.Cross(mgl32.Vec3{0, 1, 0}).Normalize().Mul(speed))
		}
		if c.Keys.Right {
			c.Position = c.Position.Add(front.Cross(mgl32.Vec3{0, 1, 0}).Normalize().Mul(speed))
		}
	}

	rot := mgl32.HomogRotate3DX(mgl32.DegToRad(c.Rotation.X())).
		Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(c.Rotation.Y()))).
		Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(c.Rotation.Z())))

	trans := mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z())

	if c.Type == CameraFirstPerson {
		c.view = rot.Mul4(trans)
	} else {
		c.view = trans.Mul4(rot)
	}
}
