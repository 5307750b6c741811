package mesh

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/renderer"
	"github.com/spaghettifunk/anima-samples/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

const twoMaterialsOBJ = `mtllib scene.mtl
o pair
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
usemtl red
f 1/1 2/2 3/3
usemtl painted
f 1/1 3/3 4/4
`

const twoMaterialsMTL = `newmtl red
Kd 1 0 0
Pr 0.4

newmtl painted
Kd 1 0 0
map_Kd white.png
`

func writeScene(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.mtl"), []byte(twoMaterialsMTL), 0o644))
	path := filepath.Join(dir, "scene.obj")
	require.NoError(t, os.WriteFile(path, []byte(twoMaterialsOBJ), 0o644))

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, "white.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func newEngine(t *testing.T) *renderer.Engine {
	t.Helper()
	e, err := renderer.NewEngine(1)
	require.NoError(t, err)
	return e
}

func TestAddFromFileOverride(t *testing.T) {
	e := newEngine(t)
	path := writeScene(t)

	mi := e.GetDefaultMaterial().CreateInstance(DefaultMaterialName)
	instances := map[string]*renderer.MaterialInstance{DefaultMaterialName: mi}

	set := NewMeshSet(e)
	require.NoError(t, set.AddFromFile(path, instances, true))

	entities := set.Renderables()
	require.Len(t, entities, 3)
	rm := e.GetRenderableManager()
	tm := e.GetTransformManager()
	root := entities[0]
	assert.False(t, rm.HasComponent(root))
	assert.True(t, tm.HasComponent(root))
	for _, child := range entities[1:] {
		require.True(t, rm.HasComponent(child))
		assert.Same(t, mi, rm.GetMaterialInstanceAt(child, 0))
		assert.Equal(t, root, tm.GetParent(tm.GetInstance(child)))
	}
	// no instance was added for the file materials
	assert.Len(t, instances, 1)

	require.NoError(t, e.DestroyMaterialInstance(mi))
	require.NoError(t, set.Destroy())
	assert.Empty(t, set.Renderables())
	assert.Equal(t, 0, e.Shutdown())
}

func TestAddFromFileMaterials(t *testing.T) {
	e := newEngine(t)
	path := writeScene(t)

	instances := map[string]*renderer.MaterialInstance{}
	set := NewMeshSet(e)
	require.NoError(t, set.AddFromFile(path, instances, false))
	require.Len(t, instances, 2)

	red := instances["red"]
	require.NotNil(t, red)
	assert.Equal(t, "MeshColor", red.GetMaterial().GetName())
	in := red.Evaluate(shader.Fragment{})
	assert.InDelta(t, 1.0, in.BaseColor.X, 1e-5)
	assert.InDelta(t, 0.0, in.BaseColor.Y, 1e-5)
	assert.InDelta(t, 0.4, in.Roughness, 1e-5)

	painted := instances["painted"]
	require.NotNil(t, painted)
	assert.Equal(t, "MeshTextured", painted.GetMaterial().GetName())
	in = painted.Evaluate(shader.Fragment{})
	assert.InDelta(t, 1.0, in.BaseColor.X, 1e-3)
	assert.InDelta(t, 0.0, in.BaseColor.Z, 1e-3)

	// a second file reuses the instances already in the map
	require.NoError(t, set.AddFromFile(path, instances, false))
	assert.Len(t, instances, 2)
	assert.Len(t, set.Renderables(), 6)
	assert.Equal(t, map[string]int{"material": 2, "material instance": 2, "texture": 1, "renderable": 4}, e.Leaks())

	for _, mi := range instances {
		require.NoError(t, e.DestroyMaterialInstance(mi))
	}
	require.NoError(t, set.Destroy())
	assert.Equal(t, 0, e.Shutdown())
}

func TestAddFromFileErrors(t *testing.T) {
	e := newEngine(t)
	set := NewMeshSet(e)
	dir := t.TempDir()

	fbx := filepath.Join(dir, "model.fbx")
	require.NoError(t, os.WriteFile(fbx, []byte("Kaydara FBX Binary"), 0o644))
	assert.ErrorIs(t, set.AddFromFile(fbx, nil, true), core.ErrUnsupportedFormat)

	assert.Error(t, set.AddFromFile(filepath.Join(dir, "missing.obj"), nil, true))
	assert.Error(t, set.AddFromFile(writeScene(t), nil, false))
	assert.Empty(t, set.Renderables())
	require.NoError(t, set.Destroy())
}
