package shader

import (
	"sync"

	"github.com/spaghettifunk/anima-samples/engine/math"
)

// Value is a float vector of 1 to 4 components, the only type of the material language.
type Value struct {
	V [4]float32
	N int
}

func scalar(f float32) Value {
	return Value{V: [4]float32{f, f, f, f}, N: 1}
}

/**
 * @brief MaterialInputs is the output of a material body: the surface
 * description fed to the lighting model.
 */
type MaterialInputs struct {
	BaseColor        math.Vec4
	Metallic         float32
	Roughness        float32
	Reflectance      float32
	AmbientOcclusion float32
	Emissive         math.Vec4
}

// Fragment carries the interpolated per-pixel data a material body can read.
type Fragment struct {
	UV0 math.Vec2
	// UV0 derivatives along the screen axes, used to pick mip levels.
	DUV0dx math.Vec2
	DUV0dy math.Vec2
	Color  math.Vec4
}

// Bindings resolves the sampler and uniform slots of a Program.
type Bindings interface {
	Sample(slot int, uv math.Vec2, frag *Fragment) math.Vec4
	Uniform(slot int) math.Vec4
}

type exprFn func(s *state) Value
type stmtFn func(s *state)

type state struct {
	b      Bindings
	frag   Fragment
	props  [PropertyEmissive + 1][4]float32
	locals []Value
}

func (s *state) reset(b Bindings, frag Fragment) {
	s.b = b
	s.frag = frag
	s.props = defaultProps
	for i := range s.locals {
		s.locals[i] = Value{}
	}
}

// Filament defaults for a lit surface.
var defaultProps = [PropertyEmissive + 1][4]float32{
	PropertyBaseColor:        {1, 1, 1, 1},
	PropertyMetallic:         {0},
	PropertyRoughness:        {1},
	PropertyReflectance:      {0.5},
	PropertyAmbientOcclusion: {1},
	PropertyEmissive:         {0, 0, 0, 0},
}

// Program is a compiled material body.
type Program struct {
	name     string
	samplers []string
	uniforms []string
	locals   int
	body     []stmtFn

	pool sync.Pool
}

func (p *Program) Name() string {
	return p.name
}

// Samplers returns the sampler parameter names, indexed by slot.
func (p *Program) Samplers() []string {
	return p.samplers
}

// Uniforms returns the uniform parameter names, indexed by slot.
func (p *Program) Uniforms() []string {
	return p.uniforms
}

// Evaluate runs the material body for one fragment. It is safe for concurrent use.
func (p *Program) Evaluate(b Bindings, frag Fragment) MaterialInputs {
	s, _ := p.pool.Get().(*state)
	if s == nil {
		s = &state{locals: make([]Value, p.locals)}
	}
	s.reset(b, frag)
	for _, stmt := range p.body {
		stmt(s)
	}
	out := MaterialInputs{
		BaseColor:        vec4(s.props[PropertyBaseColor]),
		Metallic:         s.props[PropertyMetallic][0],
		Roughness:        s.props[PropertyRoughness][0],
		Reflectance:      s.props[PropertyReflectance][0],
		AmbientOcclusion: s.props[PropertyAmbientOcclusion][0],
		Emissive:         vec4(s.props[PropertyEmissive]),
	}
	s.b = nil
	p.pool.Put(s)
	return out
}

func vec4(v [4]float32) math.Vec4 {
	return math.Vec4{X: v[0], Y: v[1], Z: v[2], W: v[3]}
}
