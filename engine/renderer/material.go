package renderer

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/renderer/shader"
)

type MaterialBuilder struct {
	data []byte
}

func NewMaterialBuilder() *MaterialBuilder {
	return &MaterialBuilder{}
}

// Package sets the compiled material package, as produced by shader.MaterialBuilder.
func (b *MaterialBuilder) Package(data []byte, size int) *MaterialBuilder {
	if size >= 0 && size <= len(data) {
		data = data[:size]
	}
	b.data = data
	return b
}

func (b *MaterialBuilder) Build(engine *Engine) (*Material, error) {
	if len(b.data) == 0 {
		return nil, fmt.Errorf("%w: empty package", core.ErrInvalidMaterial)
	}
	def, prog, err := shader.ParsePackage(b.data)
	if err != nil {
		return nil, err
	}
	m := &Material{
		engine:  engine,
		def:     def,
		program: prog,
	}
	m.defaultInstance = m.newInstance(def.Name)
	engine.track(m)
	return m, nil
}

/**
 * @brief Material is a compiled material package. Every surface drawn with it
 * goes through one of its MaterialInstances, which hold parameter values.
 */
type Material struct {
	engine          *Engine
	def             *shader.Definition
	program         *shader.Program
	defaultInstance *MaterialInstance
}

func (m *Material) GetName() string {
	return m.def.Name
}

func (m *Material) GetShading() shader.Shading {
	return m.def.Shading
}

func (m *Material) HasParameter(name string) bool {
	_, ok := m.def.Parameter(name)
	return ok
}

// RequiresAttribute reports whether geometry drawn with m must provide a.
func (m *Material) RequiresAttribute(a shader.VertexAttribute) bool {
	return m.def.RequiresAttribute(a)
}

// GetDefaultInstance returns the instance owned by the material itself; it is
// released together with the material.
func (m *Material) GetDefaultInstance() *MaterialInstance {
	return m.defaultInstance
}

// CreateInstance creates a new instance with the material's default parameters.
// The instance must be destroyed with Engine.DestroyMaterialInstance.
func (m *Material) CreateInstance(name ...string) *MaterialInstance {
	n := m.def.Name
	if len(name) > 0 {
		n = name[0]
	}
	mi := m.newInstance(n)
	mi.samplers = append(mi.samplers[:0], m.defaultInstance.samplers...)
	mi.uniforms = append(mi.uniforms[:0], m.defaultInstance.uniforms...)
	m.engine.track(mi)
	return mi
}

func (m *Material) newInstance(name string) *MaterialInstance {
	return &MaterialInstance{
		material: m,
		name:     name,
		samplers: make([]samplerBinding, len(m.program.Samplers())),
		uniforms: make([]math.Vec4, len(m.program.Uniforms())),
	}
}

type samplerBinding struct {
	texture *Texture
	sampler TextureSampler
}

/**
 * @brief MaterialInstance binds values to the parameters of a Material.
 */
type MaterialInstance struct {
	material *Material
	name     string
	samplers []samplerBinding
	uniforms []math.Vec4

	warnOnce sync.Once
}

func (mi *MaterialInstance) GetMaterial() *Material {
	return mi.material
}

func (mi *MaterialInstance) GetName() string {
	return mi.name
}

func (mi *MaterialInstance) slot(name string, sampler bool) (int, error) {
	param, ok := mi.material.def.Parameter(name)
	if !ok {
		return 0, fmt.Errorf("%w: `%s` on material `%s`", core.ErrUnknownParameter, name, mi.material.GetName())
	}
	if param.Type.IsSampler() != sampler {
		return 0, fmt.Errorf("%w: `%s` is a %s", core.ErrUnknownParameter, name, param.Type)
	}
	names := mi.material.program.Uniforms()
	if sampler {
		names = mi.material.program.Samplers()
	}
	for i, n := range names {
		if n == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: `%s`", core.ErrUnknownParameter, name)
}

// SetParameter binds a texture and its sampler to a sampler parameter.
func (mi *MaterialInstance) SetParameter(name string, texture *Texture, sampler TextureSampler) error {
	i, err := mi.slot(name, true)
	if err != nil {
		return err
	}
	mi.samplers[i] = samplerBinding{texture: texture, sampler: sampler}
	return nil
}

func (mi *MaterialInstance) SetParameterFloat(name string, v float32) error {
	return mi.setUniform(name, math.Vec4{X: v}, shader.FLOAT)
}

func (mi *MaterialInstance) SetParameterFloat3(name string, v math.Vec3) error {
	return mi.setUniform(name, v.ToVec4(0), shader.FLOAT3)
}

func (mi *MaterialInstance) SetParameterFloat4(name string, v math.Vec4) error {
	return mi.setUniform(name, v, shader.FLOAT4)
}

func (mi *MaterialInstance) setUniform(name string, v math.Vec4, t shader.ParameterType) error {
	i, err := mi.slot(name, false)
	if err != nil {
		return err
	}
	if param, _ := mi.material.def.Parameter(name); param.Type != t {
		return fmt.Errorf("%w: `%s` is a %s, not a %s", core.ErrUnknownParameter, name, param.Type, t)
	}
	mi.uniforms[i] = v
	return nil
}

// unbound returns the sampler parameters that have no texture.
func (mi *MaterialInstance) unbound() []string {
	var out []string
	for i, b := range mi.samplers {
		if b.texture == nil {
			out = append(out, mi.material.program.Samplers()[i])
		}
	}
	return out
}

// Sample implements shader.Bindings. Unbound samplers read as opaque black.
func (mi *MaterialInstance) Sample(slot int, uv math.Vec2, frag *shader.Fragment) math.Vec4 {
	b := mi.samplers[slot]
	if b.texture == nil {
		return math.Vec4{W: 1}
	}
	return b.texture.Sample(b.sampler, uv, frag.DUV0dx, frag.DUV0dy)
}

// Uniform implements shader.Bindings.
func (mi *MaterialInstance) Uniform(slot int) math.Vec4 {
	return mi.uniforms[slot]
}

// Evaluate runs the material body for one fragment.
func (mi *MaterialInstance) Evaluate(frag shader.Fragment) shader.MaterialInputs {
	return mi.material.program.Evaluate(mi, frag)
}
