package loaders

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func vec3Near(t *testing.T, want, got math.Vec3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-5)
	assert.InDelta(t, want.Y, got.Y, 1e-5)
	assert.InDelta(t, want.Z, got.Z, 1e-5)
}

const quadMTL = `# two materials
newmtl red
Kd 1 0 0
Pr 0.3
Pm 1

newmtl shiny
Kd 0.5 0.5 0.5
Ks 1 1 1
Ns 198
`

const quadOBJ = `mtllib quad.mtl
o quad
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl red
f 1/1/1 2/2/1 3/3/1 4/4/1
usemtl missing
f -4 -3 -2
`

func TestOBJWithMaterialLibrary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "quad.mtl", quadMTL)
	path := writeFile(t, dir, "quad.obj", quadOBJ)

	res, err := (&ModelLoader{}).Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, resources.ResourceTypeMesh, res.Type)
	assert.Equal(t, "quad", res.Name)

	mesh := res.Data.(*resources.MeshResourceData)
	require.Len(t, mesh.Groups, 2)

	quad := mesh.Groups[0]
	assert.Equal(t, "red", quad.Material)
	assert.Len(t, quad.Vertices, 4)
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, quad.Indices)
	assert.Equal(t, math.NewVec2(1, 1), quad.Vertices[2].Texcoord)
	vec3Near(t, math.NewVec3(-1, -1, 0), quad.Extents.Min)
	vec3Near(t, math.NewVec3(1, 1, 0), quad.Extents.Max)

	red := mesh.Materials["red"]
	require.NotNil(t, red)
	vec3Near(t, math.NewVec3(1, 0, 0), red.BaseColor)
	assert.InDelta(t, 0.3, red.Roughness, 1e-6)
	assert.InDelta(t, 1.0, red.Metallic, 1e-6)

	// the triangle names an unknown material and has no normals
	tri := mesh.Groups[1]
	assert.Equal(t, "missing", tri.Material)
	require.Len(t, tri.Vertices, 3)
	for _, v := range tri.Vertices {
		vec3Near(t, math.NewVec3(0, 0, 1), v.Normal)
	}
	fallback := mesh.Materials["missing"]
	require.NotNil(t, fallback)
	assert.Equal(t, resources.DefaultMaterialData.BaseColor, fallback.BaseColor)
	require.NotEmpty(t, mesh.Warnings)
	assert.Contains(t, strings.Join(mesh.Warnings, "\n"), "missing")

	vec3Near(t, math.NewVec3(0, 0, 0), mesh.Extents().Center())
}

func TestOBJErrors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"zero.obj":   "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n",
		"range.obj":  "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n",
		"short.obj":  "v 0 0 0\nv 1 0 0\nf 1 2\n",
		"empty.obj":  "v 0 0 0\n",
		"badnum.obj": "v 0 zero 0\n",
	}
	for name, content := range cases {
		_, err := decodeOBJ(writeFile(t, dir, name, content))
		assert.Error(t, err, name)
	}
}

func TestMTLShininessMapping(t *testing.T) {
	materials, err := parseMTL(strings.NewReader(quadMTL + "\nnewmtl rough\nNs 0\n"))
	require.NoError(t, err)
	require.Len(t, materials, 3)

	shiny := materials["shiny"]
	assert.InDelta(t, 0.1, shiny.Roughness, 1e-6)
	assert.InDelta(t, 1.0, shiny.Metallic, 1e-6)

	rough := materials["rough"]
	assert.InDelta(t, 1.0, rough.Roughness, 1e-6)
	assert.InDelta(t, 0.0, rough.Metallic, 1e-6)

	_, err = parseMTL(strings.NewReader("newmtl bad\nKd 2 0 0\n"))
	assert.Error(t, err)
}

const triangleDAE = `<?xml version="1.0" encoding="utf-8"?>
<COLLADA xmlns="http://www.collada.org/2005/11/COLLADASchema" version="1.4.1">
  <asset><up_axis>Z_UP</up_axis></asset>
  <library_effects>
    <effect id="blue-fx">
      <profile_COMMON>
        <technique sid="common">
          <phong>
            <diffuse><color>0 0 1 1</color></diffuse>
            <shininess><float>32</float></shininess>
          </phong>
        </technique>
      </profile_COMMON>
    </effect>
  </library_effects>
  <library_materials>
    <material id="blue" name="blue"><instance_effect url="#blue-fx"/></material>
  </library_materials>
  <library_geometries>
    <geometry id="tri">
      <mesh>
        <source id="tri-pos">
          <float_array id="tri-pos-array" count="9">0 0 1 1 0 1 0 1 1</float_array>
          <technique_common><accessor source="#tri-pos-array" count="3" stride="3"/></technique_common>
        </source>
        <vertices id="tri-verts"><input semantic="POSITION" source="#tri-pos"/></vertices>
        <triangles material="mat" count="1">
          <input semantic="VERTEX" source="#tri-verts" offset="0"/>
          <p>0 1 2</p>
        </triangles>
      </mesh>
    </geometry>
  </library_geometries>
  <library_visual_scenes>
    <visual_scene id="scene">
      <node id="moved">
        <matrix>1 0 0 5 0 1 0 0 0 0 1 0 0 0 0 1</matrix>
        <instance_geometry url="#tri">
          <bind_material><technique_common>
            <instance_material symbol="mat" target="#blue"/>
          </technique_common></bind_material>
        </instance_geometry>
      </node>
    </visual_scene>
  </library_visual_scenes>
</COLLADA>
`

func TestColladaNodesAndMaterials(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tri.dae", triangleDAE)

	res, err := (&ModelLoader{}).Load(path, nil)
	require.NoError(t, err)
	mesh := res.Data.(*resources.MeshResourceData)
	require.Len(t, mesh.Groups, 1)

	g := mesh.Groups[0]
	assert.Equal(t, "blue", g.Material)
	require.Len(t, g.Vertices, 3)
	// translated by the node, then rotated from Z up to Y up
	vec3Near(t, math.NewVec3(5, 1, 0), g.Vertices[0].Position)
	vec3Near(t, math.NewVec3(6, 1, 0), g.Vertices[1].Position)
	vec3Near(t, math.NewVec3(5, 1, -1), g.Vertices[2].Position)

	blue := mesh.Materials["blue"]
	require.NotNil(t, blue)
	vec3Near(t, math.NewVec3(0, 0, 1), blue.BaseColor)
	assert.InDelta(t, 0.5, blue.Roughness, 1e-6)
}

func TestModelLoaderRejectsUnknownFormats(t *testing.T) {
	path := writeFile(t, t.TempDir(), "model.fbx", "Kaydara FBX Binary")
	_, err := (&ModelLoader{}).Load(path, nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestIBLLoader(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for i := 0; i < 9; i++ {
		sb.WriteString("( 0.5, 0.25, 0.125 ); // L\n")
	}
	writeFile(t, dir, SHFileName, sb.String())

	res, err := (&IBLLoader{}).Load(dir, nil)
	require.NoError(t, err)
	ibl := res.Data.(*resources.IBLResourceData)
	assert.Equal(t, 3, ibl.Bands)
	require.Len(t, ibl.SH, 9)
	vec3Near(t, math.NewVec3(0.5, 0.25, 0.125), ibl.SH[8])

	empty := t.TempDir()
	writeFile(t, empty, SHFileName, "no coefficients here\n")
	_, err = (&IBLLoader{}).Load(empty, nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}

func TestImageLoader(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{255, 0, 0, 255})
	img.Set(1, 0, color.NRGBA{0, 255, 0, 255})
	img.Set(0, 1, color.NRGBA{0, 0, 255, 255})
	img.Set(1, 1, color.NRGBA{10, 20, 30, 128})

	path := filepath.Join(t.TempDir(), "check.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	res, err := (&ImageLoader{}).Load(path, &resources.ImageResourceParams{ChannelCount: 3, FlipY: true})
	require.NoError(t, err)
	data := res.Data.(*resources.ImageResourceData)
	assert.Equal(t, uint32(2), data.Width)
	assert.Equal(t, uint32(2), data.Height)
	// the bottom row comes first
	assert.Equal(t, []uint8{0, 0, 255, 10, 20, 30, 255, 0, 0, 0, 255, 0}, data.Pixels)

	res, err = (&ImageLoader{}).Load(path, nil)
	require.NoError(t, err)
	data = res.Data.(*resources.ImageResourceData)
	assert.Equal(t, uint8(4), data.ChannelCount)
	assert.Equal(t, []uint8{10, 20, 30, 128}, data.Pixels[12:16])

	_, err = (&ImageLoader{}).Load(path, resources.ImageResourceParams{ChannelCount: 2})
	assert.Error(t, err)

	bogus := writeFile(t, t.TempDir(), "bogus.png", "not an image")
	_, err = (&TextureLoader{}).Load(bogus, nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}
