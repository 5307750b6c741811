package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spaghettifunk/anima-samples/engine"
	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

const triangleOBJ = `o tri
v -1 -1 0
v 1 -1 0
v 0 1 0
vt 0 0
vt 1 0
vt 0.5 1
vn 0 0 1
f 1/1/1 2/2/1 3/3/1
`

func writeOBJ(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tri.obj")
	require.NoError(t, os.WriteFile(path, []byte(triangleOBJ), 0o644))
	return path
}

func writePNG(t *testing.T, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(t.TempDir(), "map.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func neverLaunch(t *testing.T) launcher {
	return func(engine.ApplicationConfig, *pbrSample) error {
		t.Fatal("the application must not start")
		return nil
	}
}

func TestNoArgumentsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"/usr/local/bin/pbr"}, &stdout, &stderr, neverLaunch(t))
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "Usage:\n    pbr [options] <OBJ/FBX/COLLADA>\n")
	assert.True(t, strings.HasPrefix(stdout.String(), "pbr is an example"))
	assert.NotContains(t, stdout.String(), usageName)
}

func TestHelpAndUnknownOptions(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"-h"}, {"--bogus", "mesh.obj"}, {"-x"}} {
		var stdout, stderr bytes.Buffer
		code := run(append([]string{"pbr"}, args...), &stdout, &stderr, neverLaunch(t))
		assert.Equal(t, 0, code, args)
		assert.Contains(t, stdout.String(), "Options:", args)
	}
}

func TestUnknownOptionIsLogged(t *testing.T) {
	var logs bytes.Buffer
	core.SetLogOutput(&logs)
	core.SetLogLevel(core.LogLevelDebug)
	defer func() {
		core.SetLogOutput(io.Discard)
		core.SetLogLevel(core.LogLevelInfo)
	}()

	var stdout, stderr bytes.Buffer
	code := run([]string{"pbr", "--scael=2", "mesh.obj"}, &stdout, &stderr, neverLaunch(t))
	assert.Equal(t, 0, code)
	assert.Contains(t, logs.String(), "scael")
}

func TestScaleParsing(t *testing.T) {
	mesh := writeOBJ(t)
	cases := []struct {
		args  []string
		scale float32
	}{
		{[]string{"--scale=abc"}, 1},
		{[]string{"-s", "2.5"}, 2.5},
		{[]string{"--scale=1e99"}, 1},
		{[]string{"--scale", "0.25"}, 0.25},
		{nil, 1},
	}
	for _, c := range cases {
		args := append(append([]string{"pbr"}, c.args...), mesh)
		opts, err := parseArgs(args, io.Discard)
		require.NoError(t, err, c.args)
		assert.Equal(t, c.scale, opts.config.Scale, c.args)
	}
}

func TestParseArgs(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pbr.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("width = 320\nheight = 200\nsplit_view = true\nscale = 3.0\n"), 0o644))

	opts, err := parseArgs([]string{"pbr",
		"--config", cfgPath,
		"-i", "envs/pillars",
		"-c", "albedo.png",
		"--packed-map=orm.png",
		"--scale=2",
		"--headless", "--frames=3", "--snapshot", "out.png",
		"a.obj", "b.dae",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.obj", "b.dae"}, opts.files)
	assert.Equal(t, "albedo.png", opts.pbr.baseColorMap)
	assert.Equal(t, "orm.png", opts.pbr.metallicRoughnessMap)
	assert.Equal(t, "envs/pillars", opts.config.IBLDirectory)
	assert.Equal(t, uint32(320), opts.config.Width)
	assert.Equal(t, uint32(200), opts.config.Height)
	assert.True(t, opts.config.SplitView)
	// the command line wins over the file
	assert.Equal(t, float32(2), opts.config.Scale)
	assert.True(t, opts.config.Headless)
	assert.Equal(t, uint32(3), opts.config.Frames)
	assert.Equal(t, "out.png", opts.config.Snapshot)

	_, err = parseArgs([]string{"pbr", "--config", filepath.Join(dir, "missing.toml"), "a.obj"}, io.Discard)
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.Code)
	assert.NotEmpty(t, exit.Message)
}

func TestBuildShader(t *testing.T) {
	const baseColorSample = "material.baseColor.rgb = texture(materialParams_baseColorMap, getUV0()).rgb;"
	const packedSample = "vec2 metallicRoughness = texture(materialParams_metallicRoughnessMap, getUV0()).rg;"
	const fixedColor = "material.baseColor.rgb = float3(1.0, 0.75, 0.94);"
	const fixedMetallic = "material.metallic = 0.0;"
	const fixedRoughness = "material.roughness = 0.1;"

	onlyBaseColor := buildShader(true, false)
	assert.Contains(t, onlyBaseColor, baseColorSample)
	assert.NotContains(t, onlyBaseColor, packedSample)
	assert.Contains(t, onlyBaseColor, fixedMetallic)

	onlyPacked := buildShader(false, true)
	assert.NotContains(t, onlyPacked, baseColorSample)
	assert.Contains(t, onlyPacked, packedSample)
	assert.Contains(t, onlyPacked, fixedColor)

	neither := buildShader(false, false)
	assert.Contains(t, neither, fixedColor)
	assert.Contains(t, neither, fixedMetallic)
	assert.Contains(t, neither, fixedRoughness)
	assert.NotContains(t, neither, "texture(")

	for _, s := range []string{onlyBaseColor, onlyPacked, neither, buildShader(true, true)} {
		assert.True(t, strings.HasPrefix(s, shaderPrologue))
		assert.True(t, strings.HasSuffix(s, "}\n"))
	}
}

func TestMissingMeshDoesNotLaunch(t *testing.T) {
	var stdout, stderr bytes.Buffer
	missing := filepath.Join(t.TempDir(), "missing.obj")
	code := run([]string{"pbr", "-c", writePNG(t, color.NRGBA{255, 0, 0, 255}), writeOBJ(t), missing}, &stdout, &stderr, neverLaunch(t))
	assert.Equal(t, 1, code)
	assert.Equal(t, "file "+missing+" not found!\n", stderr.String())
	assert.Empty(t, stdout.String())
}

type sampleFixture struct {
	engine *renderer.Engine
	scene  *renderer.Scene
	view   *renderer.View
}

func newSampleFixture(t *testing.T) *sampleFixture {
	t.Helper()
	e, err := renderer.NewEngine(1)
	require.NoError(t, err)
	return &sampleFixture{engine: e, scene: e.CreateScene(), view: e.CreateView()}
}

func (f *sampleFixture) shutdown(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.DestroyView(f.view))
	require.NoError(t, f.engine.DestroyScene(f.scene))
	assert.Equal(t, 0, f.engine.Shutdown())
}

func TestSetupAndCleanup(t *testing.T) {
	f := newSampleFixture(t)
	var stdout bytes.Buffer
	missing := filepath.Join(t.TempDir(), "orm.png")
	config := pbrConfig{
		baseColorMap:         writePNG(t, color.NRGBA{255, 128, 0, 255}),
		metallicRoughnessMap: missing,
	}
	s := newPBRSample(config, []string{writeOBJ(t)}, 2, &stdout)
	require.NoError(t, s.setup(f.engine, f.view, f.scene))

	assert.Equal(t, "The texture "+missing+" does not exist\n", stdout.String())
	require.NotNil(t, s.baseColorMap)
	assert.Nil(t, s.metallicRoughnessMap)
	assert.Equal(t, renderer.TextureFormatSRGB8, s.baseColorMap.GetFormat())
	assert.Equal(t, 3, s.baseColorMap.GetLevels())

	require.Len(t, s.materialInstances, 1)
	mi := s.materialInstances[materialName]
	require.NotNil(t, mi)
	assert.Equal(t, materialName, s.material.GetName())
	assert.True(t, s.material.HasParameter("baseColorMap"))
	assert.False(t, s.material.HasParameter("metallicRoughnessMap"))

	// one renderable and the sun
	rm := f.engine.GetRenderableManager()
	tm := f.engine.GetTransformManager()
	require.Equal(t, 2, f.scene.GetEntityCount())
	renderable := s.meshSet.Renderables()[1]
	assert.True(t, f.scene.HasEntity(renderable))
	assert.Same(t, mi, rm.GetMaterialInstanceAt(renderable, 0))
	world := tm.GetWorldTransform(tm.GetInstance(renderable))
	assert.Equal(t, math.NewVec3(0, 0, -4), world.Translation())
	assert.InDelta(t, 2, world.At(0, 0), 1e-6)

	lm := f.engine.GetLightManager()
	require.True(t, f.scene.HasEntity(s.light))
	assert.Equal(t, renderer.LightTypeDirectional, lm.GetType(s.light))
	assert.Equal(t, float32(110000), lm.GetIntensity(s.light))
	assert.InDelta(t, math.ToLinear(sunColor).X, lm.GetColor(s.light).X, 1e-6)

	s.cleanup(f.engine, f.view, f.scene)
	assert.Empty(t, s.materialInstances)
	// only the fixture's own scene and view are left
	assert.Equal(t, map[string]int{"scene": 1, "view": 1}, f.engine.Leaks())
	f.shutdown(t)
}

func TestSetupWithUnreadableMaps(t *testing.T) {
	f := newSampleFixture(t)
	var stdout bytes.Buffer
	bogus := filepath.Join(t.TempDir(), "bogus.png")
	require.NoError(t, os.WriteFile(bogus, []byte("not an image"), 0o644))

	fbx := filepath.Join(t.TempDir(), "model.fbx")
	require.NoError(t, os.WriteFile(fbx, []byte("Kaydara FBX Binary"), 0o644))

	s := newPBRSample(pbrConfig{baseColorMap: bogus}, []string{fbx, writeOBJ(t)}, 1, &stdout)
	require.NoError(t, s.setup(f.engine, f.view, f.scene))
	assert.Equal(t, "The texture "+bogus+" could not be loaded\n", stdout.String())
	assert.Nil(t, s.baseColorMap)
	assert.False(t, s.material.HasParameter("baseColorMap"))
	// the unsupported file is skipped, the OBJ still loads
	assert.Len(t, s.meshSet.Renderables(), 2)

	s.cleanup(f.engine, f.view, f.scene)
	f.shutdown(t)
}

// fakeWatcher records the callbacks instead of watching the file system.
type fakeWatcher map[string]func(string)

func (w fakeWatcher) Watch(path string, fn func(string)) error {
	w[path] = fn
	return nil
}

func TestWatchReloadsMaps(t *testing.T) {
	f := newSampleFixture(t)
	var stdout bytes.Buffer
	baseColor := writePNG(t, color.NRGBA{255, 0, 0, 255})
	watch := fakeWatcher{}

	s := newPBRSample(pbrConfig{baseColorMap: baseColor}, []string{writeOBJ(t)}, 1, &stdout)
	s.watch = watch
	require.NoError(t, s.setup(f.engine, f.view, f.scene))
	require.Contains(t, watch, baseColor)
	assert.NotContains(t, watch, "")

	original := s.baseColorMap
	require.NotNil(t, original)
	watch[baseColor](baseColor)
	reloaded := s.baseColorMap
	require.NotNil(t, reloaded)
	assert.NotSame(t, original, reloaded)
	assert.Empty(t, stdout.String())

	// a broken file keeps the current texture
	require.NoError(t, os.WriteFile(baseColor, []byte("not an image"), 0o644))
	watch[baseColor](baseColor)
	assert.Same(t, reloaded, s.baseColorMap)
	assert.Equal(t, "The texture "+baseColor+" could not be loaded\n", stdout.String())

	s.cleanup(f.engine, f.view, f.scene)
	// the replaced texture was destroyed along the way
	assert.Equal(t, map[string]int{"scene": 1, "view": 1}, f.engine.Leaks())
	f.shutdown(t)
}

func TestHeadlessRun(t *testing.T) {
	snapshot := filepath.Join(t.TempDir(), "pbr.png")
	var stdout, stderr bytes.Buffer
	code := run([]string{"pbr",
		"--headless", "--frames=1", "--snapshot", snapshot, "--log-level=error",
		"--packed-map", writePNG(t, color.NRGBA{0, 128, 0, 255}),
		writeOBJ(t),
	}, &stdout, &stderr, launchApplication)
	require.Equal(t, 0, code, stderr.String())

	f, err := os.Open(snapshot)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	def := engine.DefaultApplicationConfig()
	assert.Equal(t, int(def.Width), img.Bounds().Dx())
	assert.Equal(t, int(def.Height), img.Bounds().Dy())
}
