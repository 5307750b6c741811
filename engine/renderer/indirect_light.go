package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-samples/engine/math"
)

// DefaultIBLIntensity matches the brightness cmgen environments are authored for.
const DefaultIBLIntensity float32 = 30000

type IndirectLightBuilder struct {
	sh        []math.Vec3
	intensity float32
}

func NewIndirectLightBuilder() *IndirectLightBuilder {
	return &IndirectLightBuilder{intensity: DefaultIBLIntensity}
}

// Irradiance sets the spherical harmonics of the irradiance, bands 1 to 3
// (1, 4 or 9 coefficients), pre-scaled for a Lambertian BRDF.
func (b *IndirectLightBuilder) Irradiance(bands int, sh []math.Vec3) *IndirectLightBuilder {
	n := bands * bands
	if n > len(sh) {
		n = len(sh)
	}
	b.sh = append([]math.Vec3(nil), sh[:n]...)
	return b
}

func (b *IndirectLightBuilder) Intensity(intensity float32) *IndirectLightBuilder {
	b.intensity = intensity
	return b
}

func (b *IndirectLightBuilder) Build(engine *Engine) (*IndirectLight, error) {
	switch len(b.sh) {
	case 1, 4, 9:
	default:
		return nil, fmt.Errorf("indirect light: %d spherical harmonics coefficients, need 1, 4 or 9", len(b.sh))
	}
	il := &IndirectLight{intensity: b.intensity}
	copy(il.sh[:], b.sh)
	engine.track(il)
	return il, nil
}

/**
 * @brief IndirectLight is the image based lighting of a scene, reduced to its
 * diffuse irradiance.
 */
type IndirectLight struct {
	sh        [9]math.Vec3
	intensity float32
}

func (il *IndirectLight) GetIntensity() float32 {
	return il.intensity
}

func (il *IndirectLight) SetIntensity(intensity float32) {
	il.intensity = intensity
}

// Irradiance evaluates the irradiance around the unit normal n, before the
// intensity is applied.
func (il *IndirectLight) Irradiance(n math.Vec3) math.Vec3 {
	sh := &il.sh
	r := sh[0].
		Add(sh[1].MulScalar(n.Y)).
		Add(sh[2].MulScalar(n.Z)).
		Add(sh[3].MulScalar(n.X)).
		Add(sh[4].MulScalar(n.Y * n.X)).
		Add(sh[5].MulScalar(n.Y * n.Z)).
		Add(sh[6].MulScalar(3*n.Z*n.Z - 1)).
		Add(sh[7].MulScalar(n.Z * n.X)).
		Add(sh[8].MulScalar(n.X*n.X - n.Y*n.Y))
	return math.NewVec3(max(r.X, 0), max(r.Y, 0), max(r.Z, 0))
}

type SkyboxBuilder struct {
	color       math.Vec4
	environment *IndirectLight
}

func NewSkyboxBuilder() *SkyboxBuilder {
	return &SkyboxBuilder{color: math.NewVec4(0, 0, 0, 1)}
}

// Color sets a uniform linear sky color.
func (b *SkyboxBuilder) Color(c math.Vec4) *SkyboxBuilder {
	b.color = c
	return b
}

// Environment draws the sky from the irradiance of il instead of a flat color.
func (b *SkyboxBuilder) Environment(il *IndirectLight) *SkyboxBuilder {
	b.environment = il
	return b
}

func (b *SkyboxBuilder) Build(engine *Engine) (*Skybox, error) {
	s := &Skybox{color: b.color, environment: b.environment}
	engine.track(s)
	return s, nil
}

// Skybox is what is drawn where no geometry covers the viewport.
type Skybox struct {
	color       math.Vec4
	environment *IndirectLight
}

// radiance returns the pre-exposure sky color looking along dir.
func (s *Skybox) radiance(dir math.Vec3) (math.Vec3, bool) {
	if s.environment != nil {
		return s.environment.Irradiance(dir).MulScalar(s.environment.intensity), true
	}
	return s.color.ToVec3(), false
}
