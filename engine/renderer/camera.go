package renderer

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/anima-samples/engine/math"
)

// Fov selects which axis a field of view is measured along.
type Fov uint8

const (
	FovVertical Fov = iota
	FovHorizontal
)

/**
 * @brief Camera holds a projection, a placement in the world and the
 * physical exposure settings used to convert scene luminance to pixels.
 */
type Camera struct {
	entity     Entity
	projection math.Mat4
	model      math.Mat4
	near       float32
	far        float32
	ortho      bool

	aperture     float32
	shutterSpeed float32
	sensitivity  float32
}

func newCamera(e Entity) *Camera {
	c := &Camera{
		entity: e,
		model:  math.NewMat4Identity(),
	}
	c.SetProjection(45, 1, 0.1, 100, FovVertical)
	// sunny 16 rule
	c.SetExposure(16, 1.0/125.0, 100)
	return c
}

func (c *Camera) GetEntity() Entity {
	return c.entity
}

// SetProjection sets a perspective projection; fov is in degrees.
func (c *Camera) SetProjection(fovDegrees, aspect, near, far float32, direction Fov) {
	fov := math.DegToRad(fovDegrees)
	if direction == FovHorizontal && aspect > 0 {
		fov = 2 * math32.Atan(math32.Tan(fov*0.5)/aspect)
	}
	c.projection = math.NewMat4Perspective(fov, aspect, near, far)
	c.near, c.far = near, far
	c.ortho = false
}

func (c *Camera) SetProjectionOrtho(left, right, bottom, top, near, far float32) {
	c.projection = math.NewMat4Orthographic(left, right, bottom, top, near, far)
	c.near, c.far = near, far
	c.ortho = true
}

func (c *Camera) IsOrthographic() bool {
	return c.ortho
}

// LookAt places the camera at eye, looking at center.
func (c *Camera) LookAt(eye, center, up math.Vec3) {
	c.model = math.NewMat4LookAt(eye, center, up).Inverse()
}

// SetModelMatrix sets the camera-to-world transform.
func (c *Camera) SetModelMatrix(m math.Mat4) {
	c.model = m
}

func (c *Camera) GetModelMatrix() math.Mat4 {
	return c.model
}

// GetViewMatrix returns the world-to-camera transform.
func (c *Camera) GetViewMatrix() math.Mat4 {
	return c.model.Inverse()
}

func (c *Camera) GetProjectionMatrix() math.Mat4 {
	return c.projection
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.model.Translation()
}

// GetForwardVector returns the direction the camera looks along, in world space.
func (c *Camera) GetForwardVector() math.Vec3 {
	return math.NewVec3(0, 0, -1).TransformDirection(c.model).Normalized()
}

func (c *Camera) GetNear() float32 {
	return c.near
}

func (c *Camera) GetCullingFar() float32 {
	return c.far
}

/**
 * @brief SetExposure sets the physical exposure settings.
 * @param aperture f-stop
 * @param shutterSpeed in seconds
 * @param sensitivity ISO
 */
func (c *Camera) SetExposure(aperture, shutterSpeed, sensitivity float32) {
	c.aperture = aperture
	c.shutterSpeed = shutterSpeed
	c.sensitivity = sensitivity
}

func (c *Camera) GetAperture() float32 {
	return c.aperture
}

func (c *Camera) GetShutterSpeed() float32 {
	return c.shutterSpeed
}

func (c *Camera) GetSensitivity() float32 {
	return c.sensitivity
}

// EV100 returns the exposure value at ISO 100 for the current settings.
func (c *Camera) EV100() float32 {
	return math32.Log2((c.aperture * c.aperture) / c.shutterSpeed * 100 / c.sensitivity)
}

// Exposure returns the factor that maps luminance to the [0, 1] range of the
// sensor, without saturation.
func (c *Camera) Exposure() float32 {
	return 1 / (1.2 * math32.Pow(2, c.EV100()))
}
