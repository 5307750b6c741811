package shader

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type fakeBindings struct {
	samples  []math.Vec4
	uniforms []math.Vec4
	lastUV   math.Vec2
}

func (f *fakeBindings) Sample(slot int, uv math.Vec2, frag *Fragment) math.Vec4 {
	f.lastUV = uv
	return f.samples[slot]
}

func (f *fakeBindings) Uniform(slot int) math.Vec4 {
	return f.uniforms[slot]
}

const texturedBody = `
void material(inout MaterialInputs material) {
    prepareMaterial(material);
    material.baseColor.rgb = texture(materialParams_baseColorMap, getUV0()).rgb;
    vec2 metallicRoughness = texture(materialParams_metallicRoughnessMap, getUV0()).rg;
    material.metallic = metallicRoughness.x;
    material.roughness = metallicRoughness.y;
}
`

func texturedBuilder() *MaterialBuilder {
	return NewMaterialBuilder().
		Name("DefaultMaterial").
		Set(PropertyBaseColor).
		Set(PropertyMetallic).
		Set(PropertyRoughness).
		Material(texturedBody).
		Shading(ShadingLit).
		Require(AttributeUV0).
		Parameter(SAMPLER_2D, "baseColorMap").
		Require(AttributeUV0).
		Parameter(SAMPLER_2D, "metallicRoughnessMap")
}

func TestBuildAndParsePackage(t *testing.T) {
	pkg, err := texturedBuilder().Build()
	require.NoError(t, err)
	require.Greater(t, pkg.Size(), 0)
	assert.Equal(t, len(pkg.Data()), pkg.Size())

	def, prog, err := ParsePackage(pkg.Data())
	require.NoError(t, err)
	assert.Equal(t, "DefaultMaterial", def.Name)
	assert.Equal(t, ShadingLit, def.Shading)
	assert.Equal(t, []Property{PropertyBaseColor, PropertyMetallic, PropertyRoughness}, def.Properties)
	// requiring UV0 twice keeps a single entry
	assert.Equal(t, []VertexAttribute{AttributeUV0}, def.Requires)
	assert.Equal(t, []string{"baseColorMap", "metallicRoughnessMap"}, prog.Samplers())

	b := &fakeBindings{samples: []math.Vec4{
		{X: 0.2, Y: 0.4, Z: 0.6, W: 1},
		{X: 0.9, Y: 0.3, Z: 0.7, W: 1},
	}}
	in := prog.Evaluate(b, Fragment{UV0: math.NewVec2(0.25, 0.75)})
	assert.Equal(t, math.NewVec4(0.2, 0.4, 0.6, 1), in.BaseColor)
	assert.Equal(t, float32(0.9), in.Metallic)
	assert.Equal(t, float32(0.3), in.Roughness)
	assert.Equal(t, math.NewVec2(0.25, 0.75), b.lastUV)
	// untouched inputs keep their defaults
	assert.Equal(t, float32(0.5), in.Reflectance)
	assert.Equal(t, float32(1), in.AmbientOcclusion)
}

func TestFixedValues(t *testing.T) {
	src := `void material(inout MaterialInputs material) {
        prepareMaterial(material);
        material.baseColor.rgb = float3(1.0, 0.75, 0.94);
        material.metallic = 0.0;
        material.roughness = 0.1;
    }
`
	pkg, err := NewMaterialBuilder().Name("DefaultMaterial").
		Set(PropertyBaseColor).Set(PropertyMetallic).Set(PropertyRoughness).
		Material(src).Shading(ShadingLit).Build()
	require.NoError(t, err)

	_, prog, err := ParsePackage(pkg.Data())
	require.NoError(t, err)
	assert.Empty(t, prog.Samplers())

	in := prog.Evaluate(&fakeBindings{}, Fragment{})
	assert.Equal(t, math.NewVec4(1, 0.75, 0.94, 1), in.BaseColor)
	assert.Equal(t, float32(0), in.Metallic)
	assert.Equal(t, float32(0.1), in.Roughness)
}

func TestUniformsAndExpressions(t *testing.T) {
	src := `void material(inout MaterialInputs material) {
        prepareMaterial(material);
        // tint, then darken
        vec3 c = materialParams.baseColor * 0.5 + vec3(0.1);
        material.baseColor = vec4(c, 1.0);
        material.metallic = saturate(materialParams.metallic * 2.0);
        material.roughness = mix(0.2, 0.8, 0.5);
    }`
	pkg, err := NewMaterialBuilder().Name("mtl").
		Set(PropertyMetallic).Set(PropertyRoughness).
		Parameter(FLOAT3, "baseColor").Parameter(FLOAT, "metallic").
		Material(src).Build()
	require.NoError(t, err)

	_, prog, err := ParsePackage(pkg.Data())
	require.NoError(t, err)
	assert.Equal(t, []string{"baseColor", "metallic"}, prog.Uniforms())

	in := prog.Evaluate(&fakeBindings{uniforms: []math.Vec4{{X: 1, Y: 0.5, Z: 0}, {X: 0.75}}}, Fragment{})
	assert.InDelta(t, 0.6, in.BaseColor.X, 1e-6)
	assert.InDelta(t, 0.35, in.BaseColor.Y, 1e-6)
	assert.InDelta(t, 0.1, in.BaseColor.Z, 1e-6)
	assert.InDelta(t, 1.0, in.BaseColor.W, 1e-6)
	assert.Equal(t, float32(1), in.Metallic)
	assert.InDelta(t, 0.5, in.Roughness, 1e-6)
}

func TestCompileErrors(t *testing.T) {
	header := "void material(inout MaterialInputs material) {\n    prepareMaterial(material);\n"
	tests := []struct {
		name    string
		builder *MaterialBuilder
		want    error
		line    string
	}{
		{
			name: "unknown sampler",
			builder: NewMaterialBuilder().Require(AttributeUV0).
				Material(header + "    material.baseColor = texture(materialParams_missing, getUV0());\n}"),
			want: ErrUnknownSampler,
			line: "line 3",
		},
		{
			name: "uv0 not required",
			builder: NewMaterialBuilder().Parameter(SAMPLER_2D, "baseColorMap").
				Material(header + "    material.baseColor = texture(materialParams_baseColorMap, getUV0());\n}"),
			want: ErrMissingAttribute,
		},
		{
			name:    "unknown identifier",
			builder: NewMaterialBuilder().Material(header + "    material.baseColor.rgb = tint;\n}"),
			want:    ErrUnknownIdentifier,
		},
		{
			name:    "missing semicolon",
			builder: NewMaterialBuilder().Material(header + "    material.baseColor.rgb = float3(1.0)\n}"),
			want:    ErrSyntax,
			line:    "line 4",
		},
		{
			name:    "property not set",
			builder: NewMaterialBuilder().Material(header + "    material.metallic = 1.0;\n}"),
			want:    ErrUndeclaredProperty,
		},
		{
			name:    "size mismatch",
			builder: NewMaterialBuilder().Material(header + "    material.baseColor.rgb = vec2(1.0, 0.0);\n}"),
			want:    ErrTypeMismatch,
		},
		{
			name:    "prepareMaterial missing",
			builder: NewMaterialBuilder().Material("void material(inout MaterialInputs material) {\n}\n"),
			want:    ErrMissingPrepare,
		},
		{
			name: "duplicate parameter",
			builder: NewMaterialBuilder().Material(header + "}").
				Parameter(SAMPLER_2D, "a").Parameter(FLOAT, "a"),
			want: core.ErrInvalidMaterial,
		},
		{
			name:    "metallic on unlit",
			builder: NewMaterialBuilder().Shading(ShadingUnlit).Set(PropertyMetallic).Material(header + "}"),
			want:    core.ErrInvalidMaterial,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg, err := tt.builder.Build()
			require.Error(t, err)
			assert.Nil(t, pkg)
			assert.True(t, errors.Is(err, tt.want), "%v", err)
			assert.True(t, errors.Is(err, core.ErrInvalidMaterial))
			if tt.line != "" {
				assert.Contains(t, err.Error(), tt.line)
			}
		})
	}
}

func TestParsePackageRejectsGarbage(t *testing.T) {
	_, _, err := ParsePackage([]byte("this is = = not toml"))
	assert.ErrorIs(t, err, core.ErrInvalidMaterial)

	_, _, err = ParsePackage([]byte("version = 99\nname = \"x\"\n"))
	assert.ErrorIs(t, err, core.ErrInvalidMaterial)
}

func TestSwizzleAndComments(t *testing.T) {
	src := `void material(inout MaterialInputs material) {
        prepareMaterial(material); /* block
        comment */
        vec4 c = vec4(0.1, 0.2, 0.3, 0.4);
        material.baseColor = c.wzyx;
        material.baseColor.g = -c.x;
    }`
	pkg, err := NewMaterialBuilder().Material(src).Build()
	require.NoError(t, err)
	_, prog, err := ParsePackage(pkg.Data())
	require.NoError(t, err)

	in := prog.Evaluate(&fakeBindings{}, Fragment{})
	assert.Equal(t, math.NewVec4(0.4, -0.1, 0.2, 0.1), in.BaseColor)
}
