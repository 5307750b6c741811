package components

import (
	"testing"

	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/stretchr/testify/assert"
)

func vec3Near(t *testing.T, want, got math.Vec3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-4)
	assert.InDelta(t, want.Y, got.Y, 1e-4)
	assert.InDelta(t, want.Z, got.Z, 1e-4)
}

func TestOrbitCameraHome(t *testing.T) {
	c := NewOrbitCamera(math.NewVec3(0, 0, -4))
	vec3Near(t, math.NewVec3Zero(), c.GetPosition())

	eye, center, up := c.GetLookAt()
	vec3Near(t, math.NewVec3Zero(), eye)
	vec3Near(t, math.NewVec3(0, 0, -4), center)
	vec3Near(t, math.NewVec3Up(), up)

	// the target sits straight ahead of the camera
	vec3Near(t, math.NewVec3(0, 0, -4), center.Transform(c.GetView()))
	assert.False(t, c.IsDirty)
}

func TestOrbitCameraDragKeepsDistance(t *testing.T) {
	target := math.NewVec3(0, 0, -4)
	c := NewOrbitCamera(target)

	c.GrabUpdate(100, 0)
	vec3Near(t, math.NewVec3Zero(), c.GetPosition())

	c.GrabBegin(10, 10)
	c.GrabUpdate(60, 10)
	c.GrabUpdate(60, 40)
	c.GrabEnd()
	assert.False(t, c.IsGrabbing())
	assert.InDelta(t, -0.5, c.Yaw, 1e-6)
	assert.InDelta(t, 0.3, c.Pitch, 1e-6)
	assert.InDelta(t, 4, c.GetPosition().Distance(target), 1e-4)

	// pitch never flips over the pole
	c.GrabBegin(0, 0)
	c.GrabUpdate(0, 10000)
	assert.InDelta(t, pitchLimit, c.Pitch, 1e-6)

	c.Reset()
	vec3Near(t, math.NewVec3Zero(), c.GetPosition())
}

func TestOrbitCameraScroll(t *testing.T) {
	c := NewOrbitCamera(math.NewVec3(0, 0, -4))
	c.Scroll(1)
	assert.InDelta(t, 3.6, c.Distance, 1e-5)
	c.Scroll(-1)
	assert.InDelta(t, 3.96, c.Distance, 1e-5)

	for i := 0; i < 200; i++ {
		c.Scroll(5)
	}
	assert.InDelta(t, minDistance, c.Distance, 1e-6)
}
