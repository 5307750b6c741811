package renderer

import (
	"context"
	"image"
	"image/color"
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(2)
	require.NoError(t, err)
	return e
}

func TestTextureLevelsAndMipmaps(t *testing.T) {
	e := newTestEngine(t)
	tex, err := NewTextureBuilder().Width(4).Height(2).Levels(0xff).Format(TextureFormatSRGB8).Build(e)
	require.NoError(t, err)
	require.Equal(t, 3, tex.GetLevels())
	assert.Equal(t, uint32(2), tex.GetWidth(1))
	assert.Equal(t, uint32(1), tex.GetHeight(1))
	assert.Equal(t, uint32(1), tex.GetWidth(2))

	data := make([]byte, 4*2*3)
	for i := 0; i < len(data); i += 3 {
		data[i], data[i+1], data[i+2] = 200, 100, 50
	}
	released := false
	buf := NewPixelBufferDescriptor(data, PixelDataFormatRGB, PixelDataTypeUByte, func([]byte) { released = true })
	require.NoError(t, tex.SetImage(e, 0, buf))
	assert.True(t, released)
	require.NoError(t, tex.GenerateMipmaps(e))

	c := tex.Level(2).NRGBAAt(0, 0)
	assert.InDelta(t, 200, int(c.R), 1)
	assert.InDelta(t, 100, int(c.G), 1)
	assert.InDelta(t, 50, int(c.B), 1)
	assert.Equal(t, uint8(255), c.A)
}

func TestTextureRejectsBadInput(t *testing.T) {
	e := newTestEngine(t)
	_, err := NewTextureBuilder().Width(0).Height(4).Build(e)
	assert.ErrorIs(t, err, core.ErrInvalidSize)

	tex, err := NewTextureBuilder().Width(2).Height(2).Build(e)
	require.NoError(t, err)
	assert.Equal(t, 1, tex.GetLevels())
	err = tex.SetImage(e, 0, NewPixelBufferDescriptor(make([]byte, 5), PixelDataFormatRGBA, PixelDataTypeUByte, nil))
	assert.ErrorIs(t, err, core.ErrInvalidSize)
	err = tex.SetImage(e, 1, NewPixelBufferDescriptor(make([]byte, 16), PixelDataFormatRGBA, PixelDataTypeUByte, nil))
	assert.ErrorIs(t, err, core.ErrInvalidSize)
}

func TestTextureSampleWrapModes(t *testing.T) {
	e := newTestEngine(t)
	tex, err := NewTextureBuilder().Width(2).Height(1).Format(TextureFormatRGBA8).Build(e)
	require.NoError(t, err)
	require.NoError(t, tex.SetImage(e, 0, NewPixelBufferDescriptor(
		[]byte{255, 0, 0, 255, 0, 255, 0, 255}, PixelDataFormatRGBA, PixelDataTypeUByte, nil)))

	var zero math.Vec2
	repeat := NewTextureSampler(MinFilterNearest, MagFilterNearest, WrapModeRepeat)
	assert.Equal(t, float32(1), tex.Sample(repeat, math.NewVec2(0.25, 0.5), zero, zero).X)
	assert.Equal(t, float32(1), tex.Sample(repeat, math.NewVec2(1.25, 0.5), zero, zero).X)
	assert.Equal(t, float32(1), tex.Sample(repeat, math.NewVec2(0.75, 0.5), zero, zero).Y)

	clamp := NewTextureSampler(MinFilterNearest, MagFilterNearest, WrapModeClampToEdge)
	assert.Equal(t, float32(1), tex.Sample(clamp, math.NewVec2(1.5, 0.5), zero, zero).Y)

	mirror := NewTextureSampler(MinFilterNearest, MagFilterNearest, WrapModeMirroredRepeat)
	assert.Equal(t, float32(1), tex.Sample(mirror, math.NewVec2(1.25, 0.5), zero, zero).Y)

	linear := NewTextureSampler(MinFilterLinear, MagFilterLinear, WrapModeClampToEdge)
	mid := tex.Sample(linear, math.NewVec2(0.5, 0.5), zero, zero)
	assert.InDelta(t, 0.5, mid.X, 1e-5)
	assert.InDelta(t, 0.5, mid.Y, 1e-5)

	s := NewTextureSampler(MinFilterLinearMipmapLinear, MagFilterLinear, WrapModeRepeat)
	s.SetAnisotropy(64)
	assert.Equal(t, float32(16), s.Anisotropy)

	require.NoError(t, e.DestroyTexture(tex))
	assert.Equal(t, math.Vec4{W: 1}, tex.Sample(repeat, zero, zero, zero))
}

const tintSource = `
void material(inout MaterialInputs material) {
    prepareMaterial(material);
    material.baseColor.rgb = materialParams.tint;
    material.roughness = materialParams.roughness;
}
`

func buildTintMaterial(t *testing.T, e *Engine) *Material {
	t.Helper()
	pkg, err := shader.NewMaterialBuilder().
		Name("Tint").
		Set(shader.PropertyBaseColor).
		Set(shader.PropertyRoughness).
		Parameter(shader.FLOAT3, "tint").
		Parameter(shader.FLOAT, "roughness").
		Parameter(shader.SAMPLER_2D, "unused").
		Material(tintSource).
		Build()
	require.NoError(t, err)
	m, err := NewMaterialBuilder().Package(pkg.Data(), pkg.Size()).Build(e)
	require.NoError(t, err)
	return m
}

func TestMaterialInstanceParameters(t *testing.T) {
	e := newTestEngine(t)
	m := buildTintMaterial(t, e)
	assert.Equal(t, "Tint", m.GetName())
	assert.True(t, m.HasParameter("tint"))
	assert.False(t, m.HasParameter("baseColorMap"))

	mi := m.CreateInstance("red")
	require.NoError(t, mi.SetParameterFloat3("tint", math.NewVec3(1, 0, 0)))
	require.NoError(t, mi.SetParameterFloat("roughness", 0.25))

	in := mi.Evaluate(shader.Fragment{})
	assert.Equal(t, math.NewVec4(1, 0, 0, 1), in.BaseColor)
	assert.Equal(t, float32(0.25), in.Roughness)
	assert.Equal(t, []string{"unused"}, mi.unbound())

	assert.ErrorIs(t, mi.SetParameterFloat("tint", 1), core.ErrUnknownParameter)
	assert.ErrorIs(t, mi.SetParameterFloat("missing", 1), core.ErrUnknownParameter)
	assert.ErrorIs(t, mi.SetParameter("tint", nil, TextureSampler{}), core.ErrUnknownParameter)

	_, err := NewMaterialBuilder().Package(nil, 0).Build(e)
	assert.ErrorIs(t, err, core.ErrInvalidMaterial)
}

func TestTransformHierarchy(t *testing.T) {
	e := newTestEngine(t)
	tm := e.GetTransformManager()
	em := e.GetEntityManager()
	parent, child := em.Create(), em.Create()

	pi := tm.Create(parent, 0, math.NewMat4Translation(math.NewVec3(1, 0, 0)))
	ci := tm.Create(child, pi, math.NewMat4Translation(math.NewVec3(0, 2, 0)))
	assert.True(t, tm.HasComponent(child))
	assert.Equal(t, parent, tm.GetParent(ci))
	assert.Equal(t, []Entity{child}, tm.GetChildren(pi))
	assert.Equal(t, math.NewVec3(1, 2, 0), tm.GetWorldTransform(ci).Translation())

	tm.SetTransform(pi, math.NewMat4Translation(math.NewVec3(0, 0, 5)))
	assert.Equal(t, math.NewVec3(0, 2, 5), tm.GetWorldTransform(ci).Translation())

	// a node can not become its own ancestor
	tm.SetParent(pi, ci)
	assert.Equal(t, NullEntity, tm.GetParent(pi))

	tm.Destroy(parent)
	assert.False(t, tm.HasComponent(parent))
	assert.Equal(t, NullEntity, tm.GetParent(ci))
	assert.Equal(t, math.NewVec3(0, 2, 0), tm.GetWorldTransform(ci).Translation())
	assert.Equal(t, 1, tm.Count())
}

func TestEngineDestroyAndLeaks(t *testing.T) {
	e := newTestEngine(t)
	tex, err := NewTextureBuilder().Width(1).Height(1).Build(e)
	require.NoError(t, err)
	m := buildTintMaterial(t, e)
	mi := m.CreateInstance()
	scene := e.CreateScene()

	assert.Equal(t, map[string]int{"texture": 1, "material": 1, "material instance": 1, "scene": 1}, e.Leaks())

	require.Error(t, e.DestroyMaterial(m))
	require.NoError(t, e.DestroyMaterialInstance(mi))
	require.NoError(t, e.DestroyMaterial(m))
	require.NoError(t, e.DestroyTexture(tex))
	assert.ErrorIs(t, e.DestroyTexture(tex), core.ErrDestroyed)
	assert.NoError(t, e.DestroyTexture(nil))

	assert.Equal(t, 1, e.Shutdown())
	assert.Equal(t, 0, e.Shutdown())
	_ = scene
}

func quad(z float32) ([]math.Vertex3D, []uint32) {
	n := math.NewVec3(0, 0, 1)
	return []math.Vertex3D{
		{Position: math.NewVec3(-1, -1, z), Normal: n, Texcoord: math.NewVec2(0, 0)},
		{Position: math.NewVec3(1, -1, z), Normal: n, Texcoord: math.NewVec2(1, 0)},
		{Position: math.NewVec3(1, 1, z), Normal: n, Texcoord: math.NewVec2(1, 1)},
		{Position: math.NewVec3(-1, 1, z), Normal: n, Texcoord: math.NewVec2(0, 1)},
	}, []uint32{0, 1, 2, 0, 2, 3}
}

type testScene struct {
	engine   *Engine
	scene    *Scene
	view     *View
	camera   *Camera
	renderer *Renderer
	mesh     Entity
}

func newTestScene(t *testing.T, size int) *testScene {
	t.Helper()
	e := newTestEngine(t)
	ts := &testScene{engine: e, scene: e.CreateScene(), view: e.CreateView(), renderer: e.CreateRenderer()}
	em := e.GetEntityManager()

	ts.camera = e.CreateCamera(em.Create())
	ts.camera.SetProjection(45, 1, 0.1, 100, FovVertical)
	ts.camera.LookAt(math.NewVec3(0, 0, 3), math.NewVec3Zero(), math.NewVec3Up())

	ts.mesh = em.Create()
	vertices, indices := quad(0)
	require.NoError(t, NewRenderableBuilder(1).Geometry(0, vertices, indices).Build(e, ts.mesh))
	e.GetTransformManager().Create(ts.mesh, 0, math.NewMat4Identity())

	sun := em.Create()
	require.NoError(t, NewLightBuilder(LightTypeDirectional).
		Color(math.ToLinear(math.NewVec3(0.98, 0.92, 0.89))).
		Intensity(110000).
		Direction(math.NewVec3(0, 0, -1)).
		Build(e, sun))

	ts.scene.AddEntity(ts.mesh)
	ts.scene.AddEntity(sun)
	ts.view.SetScene(ts.scene)
	ts.view.SetCamera(ts.camera)
	ts.view.SetViewport(Viewport{Width: uint32(size), Height: uint32(size)})
	return ts
}

func (ts *testScene) render(t *testing.T, target *image.RGBA) {
	t.Helper()
	require.True(t, ts.renderer.BeginFrame(target))
	require.NoError(t, ts.renderer.Render(context.Background(), ts.view))
	ts.renderer.EndFrame()
}

func TestRenderLitQuad(t *testing.T) {
	ts := newTestScene(t, 64)
	target := image.NewRGBA(image.Rect(0, 0, 64, 64))
	ts.render(t, target)

	center := target.RGBAAt(32, 32)
	assert.Greater(t, center.R, uint8(64))
	assert.Equal(t, uint8(255), center.A)
	assert.Equal(t, color.RGBA{A: 255}, target.RGBAAt(0, 0))

	stats := ts.renderer.GetStats()
	assert.Equal(t, 1, stats.Renderables)
	assert.Equal(t, 0, stats.Culled)
	assert.Equal(t, 2, stats.Triangles)
	assert.Equal(t, uint64(1), ts.renderer.GetFrameCount())
}

func TestRenderCullsAndClears(t *testing.T) {
	ts := newTestScene(t, 32)
	tm := ts.engine.GetTransformManager()
	tm.SetTransform(tm.GetInstance(ts.mesh), math.NewMat4Translation(math.NewVec3(0, 0, 10)))

	sky, err := NewSkyboxBuilder().Color(math.NewVec4(1, 0, 0, 1)).Build(ts.engine)
	require.NoError(t, err)
	ts.scene.SetSkybox(sky)

	target := image.NewRGBA(image.Rect(0, 0, 32, 32))
	ts.render(t, target)
	assert.Equal(t, 1, ts.renderer.GetStats().Culled)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, target.RGBAAt(16, 16))
}

func TestRenderViewportOriginIsBottomLeft(t *testing.T) {
	ts := newTestScene(t, 32)
	ts.view.SetViewport(Viewport{Left: 0, Bottom: 0, Width: 32, Height: 16})
	ts.view.SetClearColor(math.NewVec4(0, 0, 1, 1))

	target := image.NewRGBA(image.Rect(0, 0, 32, 32))
	ts.render(t, target)
	assert.Equal(t, color.RGBA{}, target.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, target.RGBAAt(0, 31))
}

func TestRenderErrors(t *testing.T) {
	ts := newTestScene(t, 8)
	assert.ErrorIs(t, ts.renderer.Render(context.Background(), ts.view), core.ErrNoFrame)
	assert.False(t, ts.renderer.BeginFrame(image.NewRGBA(image.Rect(0, 0, 0, 0))))

	require.True(t, ts.renderer.BeginFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))))
	empty := ts.engine.CreateView()
	assert.ErrorIs(t, ts.renderer.Render(context.Background(), empty), core.ErrIncompleteView)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ts.renderer.Render(ctx, ts.view), context.Canceled)
	ts.renderer.EndFrame()
}

func TestClipNear(t *testing.T) {
	in := []vertexOut{
		{clip: math.NewVec4(0, 0, 0, 1)},
		{clip: math.NewVec4(1, 0, 0, 1)},
		{clip: math.NewVec4(0, 0, -3, 1)},
	}
	out := clipNear(in)
	require.Len(t, out, 4)
	for _, v := range out {
		assert.GreaterOrEqual(t, v.clip.Z+v.clip.W, float32(-1e-6))
	}
}

func TestToneMapping(t *testing.T) {
	assert.Equal(t, uint8(0), encode(0, ToneMappingACES))
	assert.Equal(t, uint8(255), encode(100, ToneMappingACES))
	assert.Equal(t, uint8(255), encode(1, ToneMappingLinear))
	assert.Less(t, encode(0.2, ToneMappingACES), encode(0.4, ToneMappingACES))
}

func TestDrawHUD(t *testing.T) {
	target := image.NewRGBA(image.Rect(0, 0, 200, 50))
	DrawHUD(target, []string{"fps 60", "views 4"})
	lit := 0
	for y := 0; y < 30; y++ {
		for x := 0; x < 60; x++ {
			if target.RGBAAt(x, y).R > 128 {
				lit++
			}
		}
	}
	assert.Greater(t, lit, 0)
	assert.Equal(t, color.RGBA{}, target.RGBAAt(199, 49))
}
