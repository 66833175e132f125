package vkt

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Actor is a placed instance of a model in the scene.
type Actor struct {
	Name     string
	Tag      string
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	Scale    mgl32.Vec3
	Model    *ModelSlot

	// ConstantVelocity moves the actor every frame without explicit Move
	// calls.
	ConstantVelocity mgl32.Vec3
}

func NewActor(name string, model *ModelSlot) *Actor {
	return &Actor{
		Name:  name,
		Model: model,
		Scale: mgl32.Vec3{1, 1, 1},
	}
}

// Matrix returns the actor's world transform.
func (a *Actor) Matrix() mgl32.Mat4 {
	m := mgl32.Translate3D(a.Position[0], a.Position[1], a.Position[2])
	m = m.Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(a.Rotation[0])))
	m = m.Mul4(mgl32.HomogRotate3DY(mgl32.DegToRad(a.Rotation[1])))
	m = m.Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(a.Rotation[2])))
	m = m.Mul4(mgl32.Scale3D(a.Scale[0], a.Scale[1], a.Scale[2]))
	return m
}

// Radius returns the scaled bounding sphere radius of the actor's model.
func (a *Actor) Radius() float32 {
	if a.Model == nil {
		return 0
	}
	model := a.Model.Model()
	if model == nil {
		return 0
	}
	scale := a.Scale[0]
	if a.Scale[1] > scale {
		scale = a.Scale[1]
	}
	if a.Scale[2] > scale {
		scale = a.Scale[2]
	}
	return model.Radius() * scale
}

// Move translates the actor.
func (a *Actor) Move(delta mgl32.Vec3) {
	a.Position = a.Position.Add(delta)
}

// Rotate adds euler angles in degrees to the actor's rotation.
func (a *Actor) Rotate(delta mgl32.Vec3) {
	a.Rotation = a.Rotation.Add(delta)
}

// Update advances per-frame actor state.
func (a *Actor) Update(delta float64) {
	if a.ConstantVelocity.Len() > 0 {
		a.Move(a.ConstantVelocity.Mul(float32(delta)))
	}
}

// Draw records the actor's model draw commands.
func (a *Actor) Draw(cmd *CommandBuffer) {
	if a.Model == nil {
		return
	}
	if model := a.Model.Model(); model != nil {
		model.Draw(cmd)
	}
}

// ActorManager tracks all actors in the scene.
type ActorManager struct {
	actors []*Actor
}

func (m *ActorManager) Add(a *Actor) {
	m.actors = append(m.actors, a)
}

func (m *ActorManager) Remove(a *Actor) {
	for i, actor := range m.actors {
		if actor == a {
			m.actors = append(m.actors[:i], m.actors[i+1:]...)
			return
		}
	}
}

// Actors returns the current actor list.
func (m *ActorManager) Actors() []*Actor {
	return m.actors
}

// ByTag returns all actors with the given tag.
func (m *ActorManager) ByTag(tag string) []*Actor {
	var out []*Actor
	for _, a := range m.actors {
		if a.Tag == tag {
			out = append(out, a)
		}
	}
	return out
}

// Update advances every actor.
func (m *ActorManager) Update(delta float64) {
	for _, a := range m.actors {
		a.Update(delta)
	}
}
