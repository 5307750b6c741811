package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spaghettifunk/anima-samples/engine/assets/loaders"
	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/mesh"
	"github.com/spaghettifunk/anima-samples/engine/renderer"
	"github.com/spaghettifunk/anima-samples/engine/renderer/shader"
	"github.com/spaghettifunk/anima-samples/engine/resources"
)

const materialName = "DefaultMaterial"

const (
	shaderPrologue = `
        void material(inout MaterialInputs material) {
            prepareMaterial(material);
    `
	baseColorMapClause = `
            material.baseColor.rgb = texture(materialParams_baseColorMap, getUV0()).rgb;
        `
	baseColorFixedClause = `
            material.baseColor.rgb = float3(1.0, 0.75, 0.94);
        `
	metallicRoughnessMapClause = `
            vec2 metallicRoughness = texture(materialParams_metallicRoughnessMap, getUV0()).rg;
            material.metallic = metallicRoughness.x;
            material.roughness = metallicRoughness.y;
        `
	metallicRoughnessFixedClause = `
            material.metallic = 0.0;
            material.roughness = 0.1;
        `
	shaderEpilogue = "}\n"
)

var (
	sunColor     = math.NewVec3(0.98, 0.92, 0.89)
	sunDirection = math.NewVec3(0.6, -1, -0.8)
	meshOffset   = math.NewVec3(0, 0, -4)
)

const sunIlluminance float32 = 110000

// watcher is the part of the application the sample needs to reload maps.
type watcher interface {
	Watch(path string, fn func(path string)) error
}

/**
 * @brief pbrSample loads meshes with a single material whose base color and
 * metallic/roughness come from optional texture maps. setup creates every
 * object and cleanup destroys exactly those.
 */
type pbrSample struct {
	config pbrConfig
	files  []string
	scale  float32
	stdout io.Writer
	watch  watcher

	materialInstances    map[string]*renderer.MaterialInstance
	meshSet              *mesh.MeshSet
	material             *renderer.Material
	metallicRoughnessMap *renderer.Texture
	baseColorMap         *renderer.Texture
	light                renderer.Entity
	sampler              renderer.TextureSampler
}

func newPBRSample(config pbrConfig, files []string, scale float32, stdout io.Writer) *pbrSample {
	return &pbrSample{
		config:            config,
		files:             files,
		scale:             scale,
		stdout:            stdout,
		materialInstances: make(map[string]*renderer.MaterialInstance),
	}
}

// buildShader returns the material body for the maps that are present.
func buildShader(hasBaseColorMap, hasMetallicRoughnessMap bool) string {
	var sb strings.Builder
	sb.WriteString(shaderPrologue)
	if hasBaseColorMap {
		sb.WriteString(baseColorMapClause)
	} else {
		sb.WriteString(baseColorFixedClause)
	}
	if hasMetallicRoughnessMap {
		sb.WriteString(metallicRoughnessMapClause)
	} else {
		sb.WriteString(metallicRoughnessFixedClause)
	}
	sb.WriteString(shaderEpilogue)
	return sb.String()
}

/**
 * @brief loadTexture creates a texture from the image at path, with a full
 * mip chain. An empty path loads nothing. A missing or unreadable file is
 * reported on stdout and yields a nil texture.
 */
func (s *pbrSample) loadTexture(engine *renderer.Engine, path string, sRGB bool) *renderer.Texture {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(s.stdout, "The texture %s does not exist\n", path)
		return nil
	}
	loader := &loaders.ImageLoader{}
	res, err := loader.Load(path, &resources.ImageResourceParams{ChannelCount: 3, FlipY: true})
	if err != nil {
		core.LogDebug("texture %s: %v", path, err)
		fmt.Fprintf(s.stdout, "The texture %s could not be loaded\n", path)
		return nil
	}
	defer loader.Unload(res)
	img := res.Data.(*resources.ImageResourceData)

	format := renderer.TextureFormatRGB8
	if sRGB {
		format = renderer.TextureFormatSRGB8
	}
	t, err := renderer.NewTextureBuilder().
		Width(img.Width).
		Height(img.Height).
		Levels(0xff).
		Format(format).
		Build(engine)
	if err != nil {
		fmt.Fprintf(s.stdout, "The texture %s could not be loaded\n", path)
		return nil
	}
	buffer := renderer.NewPixelBufferDescriptor(img.Pixels, renderer.PixelDataFormatRGB, renderer.PixelDataTypeUByte, nil)
	if err := errors.Join(t.SetImage(engine, 0, buffer), t.GenerateMipmaps(engine)); err != nil {
		core.LogWarn("texture %s: %v", path, err)
		engine.DestroyTexture(t)
		fmt.Fprintf(s.stdout, "The texture %s could not be loaded\n", path)
		return nil
	}
	return t
}

func (s *pbrSample) setup(engine *renderer.Engine, view *renderer.View, scene *renderer.Scene) error {
	s.baseColorMap = s.loadTexture(engine, s.config.baseColorMap, true)
	s.metallicRoughnessMap = s.loadTexture(engine, s.config.metallicRoughnessMap, false)

	hasBaseColorMap := s.baseColorMap != nil
	hasMetallicRoughnessMap := s.metallicRoughnessMap != nil

	builder := shader.NewMaterialBuilder().
		Name(materialName).
		Set(shader.PropertyBaseColor).
		Set(shader.PropertyMetallic).
		Set(shader.PropertyRoughness).
		Material(buildShader(hasBaseColorMap, hasMetallicRoughnessMap)).
		Shading(shader.ShadingLit)
	if hasBaseColorMap {
		builder.
			Require(shader.AttributeUV0).
			Parameter(shader.SAMPLER_2D, "baseColorMap")
	}
	if hasMetallicRoughnessMap {
		builder.
			Require(shader.AttributeUV0).
			Parameter(shader.SAMPLER_2D, "metallicRoughnessMap")
	}
	pkg, err := builder.Build()
	if err != nil {
		return err
	}

	s.material, err = renderer.NewMaterialBuilder().Package(pkg.Data(), pkg.Size()).Build(engine)
	if err != nil {
		return err
	}
	mi := s.material.CreateInstance()
	s.materialInstances[materialName] = mi

	s.sampler = renderer.NewTextureSampler(renderer.MinFilterLinearMipmapLinear, renderer.MagFilterLinear, renderer.WrapModeRepeat)
	s.sampler.SetAnisotropy(8)
	if hasBaseColorMap {
		if err := mi.SetParameter("baseColorMap", s.baseColorMap, s.sampler); err != nil {
			return err
		}
		s.watchMap(engine, s.config.baseColorMap, true, &s.baseColorMap, "baseColorMap")
	}
	if hasMetallicRoughnessMap {
		if err := mi.SetParameter("metallicRoughnessMap", s.metallicRoughnessMap, s.sampler); err != nil {
			return err
		}
		s.watchMap(engine, s.config.metallicRoughnessMap, false, &s.metallicRoughnessMap, "metallicRoughnessMap")
	}

	s.meshSet = mesh.NewMeshSet(engine)
	for _, filename := range s.files {
		if err := s.meshSet.AddFromFile(filename, s.materialInstances, true); err != nil {
			core.LogError("skipping %s: %v", filename, err)
		}
	}

	rm := engine.GetRenderableManager()
	tm := engine.GetTransformManager()
	placement := math.TransformFromPositionRotationScale(
		meshOffset, math.NewQuatIdentity(), math.NewVec3(s.scale, s.scale, s.scale),
	).GetLocal()
	for _, renderable := range s.meshSet.Renderables() {
		if rm.HasComponent(renderable) {
			ti := tm.GetInstance(renderable)
			tm.SetTransform(ti, tm.GetWorldTransform(ti).Mul(placement))
			scene.AddEntity(renderable)
		}
	}

	s.light = engine.GetEntityManager().Create()
	err = renderer.NewLightBuilder(renderer.LightTypeDirectional).
		Color(math.ToLinear(sunColor)).
		Intensity(sunIlluminance).
		Direction(sunDirection).
		Build(engine, s.light)
	if err != nil {
		return err
	}
	scene.AddEntity(s.light)
	return nil
}

// watchMap reloads the map at path into *slot whenever the file changes.
func (s *pbrSample) watchMap(engine *renderer.Engine, path string, sRGB bool, slot **renderer.Texture, parameter string) {
	if s.watch == nil {
		return
	}
	err := s.watch.Watch(path, func(string) {
		t := s.loadTexture(engine, path, sRGB)
		if t == nil {
			return
		}
		if err := s.materialInstances[materialName].SetParameter(parameter, t, s.sampler); err != nil {
			core.LogWarn("reloading %s: %v", path, err)
			engine.DestroyTexture(t)
			return
		}
		engine.DestroyTexture(*slot)
		*slot = t
		core.LogInfo("reloaded %s", path)
	})
	if err != nil {
		core.LogWarn("cannot watch %s: %v", path, err)
	}
}

func (s *pbrSample) cleanup(engine *renderer.Engine, view *renderer.View, scene *renderer.Scene) {
	for name, mi := range s.materialInstances {
		engine.DestroyMaterialInstance(mi)
		delete(s.materialInstances, name)
	}
	if s.meshSet != nil {
		if err := s.meshSet.Destroy(); err != nil {
			core.LogWarn("destroying meshes: %v", err)
		}
		s.meshSet = nil
	}
	engine.DestroyMaterial(s.material)
	engine.DestroyTexture(s.metallicRoughnessMap)
	engine.DestroyTexture(s.baseColorMap)
	s.material, s.metallicRoughnessMap, s.baseColorMap = nil, nil, nil

	if !s.light.IsNull() {
		engine.DestroyEntity(s.light)
		engine.GetEntityManager().Destroy(s.light)
		s.light = renderer.NullEntity
	}
}
