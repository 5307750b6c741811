package components

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/anima-samples/engine/math"
)

const (
	// radians per pixel of drag
	orbitSpeed = 0.01
	// fraction of the distance covered by one wheel notch
	zoomSpeed = 0.1
	// 89 degrees, keeps the up vector meaningful
	pitchLimit   = 1.55334306
	minDistance  = 0.05
	homeDistance = 4
)

/**
 * @brief OrbitCamera turns mouse input into a camera placement orbiting a
 * target point. Dragging rotates around the target, the wheel moves the
 * eye towards or away from it.
 */
type OrbitCamera struct {
	/** @brief The point looked at. */
	Target math.Vec3
	/** @brief Distance from the eye to the target. */
	Distance float32
	/** @brief Rotation around the world Y axis, in radians. */
	Yaw float32
	/** @brief Rotation above the XZ plane, in radians. */
	Pitch float32

	grabbing     bool
	grabX, grabY int32

	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty    bool
	ViewMatrix math.Mat4
}

// NewOrbitCamera creates a manipulator whose home position is the origin,
// looking down -Z at target.
func NewOrbitCamera(target math.Vec3) *OrbitCamera {
	c := &OrbitCamera{Target: target}
	c.Reset()
	return c
}

// Reset moves the eye back to its home position.
func (c *OrbitCamera) Reset() {
	c.Distance = homeDistance
	if d := c.Target.Length(); d > 0 {
		c.Distance = d
	}
	c.Yaw = 0
	c.Pitch = 0
	c.grabbing = false
	c.IsDirty = true
}

func (c *OrbitCamera) GrabBegin(x, y int32) {
	c.grabbing = true
	c.grabX, c.grabY = x, y
}

// GrabUpdate orbits by the distance the cursor moved since the last call.
func (c *OrbitCamera) GrabUpdate(x, y int32) {
	if !c.grabbing {
		return
	}
	dx := float32(x - c.grabX)
	dy := float32(y - c.grabY)
	c.grabX, c.grabY = x, y

	c.Yaw -= dx * orbitSpeed
	c.Pitch = math.Clamp(c.Pitch+dy*orbitSpeed, -pitchLimit, pitchLimit)
	c.IsDirty = true
}

func (c *OrbitCamera) GrabEnd() {
	c.grabbing = false
}

func (c *OrbitCamera) IsGrabbing() bool {
	return c.grabbing
}

// Scroll zooms in for positive deltas and out for negative ones.
func (c *OrbitCamera) Scroll(delta float32) {
	c.Distance = math32.Max(c.Distance*(1-delta*zoomSpeed), minDistance)
	c.IsDirty = true
}

// GetPosition returns the eye position.
func (c *OrbitCamera) GetPosition() math.Vec3 {
	cp, sp := math32.Cos(c.Pitch), math32.Sin(c.Pitch)
	cy, sy := math32.Cos(c.Yaw), math32.Sin(c.Yaw)
	// at rest the eye sits on +Z of the target
	offset := math.NewVec3(sy*cp, sp, cy*cp).MulScalar(c.Distance)
	return c.Target.Add(offset)
}

// GetLookAt returns the eye, the target and the up vector.
func (c *OrbitCamera) GetLookAt() (eye, center, up math.Vec3) {
	return c.GetPosition(), c.Target, math.NewVec3Up()
}

// GetView returns the world-to-camera transform.
func (c *OrbitCamera) GetView() math.Mat4 {
	if c.IsDirty {
		eye, center, up := c.GetLookAt()
		c.ViewMatrix = math.NewMat4LookAt(eye, center, up)
		c.IsDirty = false
	}
	return c.ViewMatrix
}
