package mesh

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spaghettifunk/anima-samples/engine/assets"
	"github.com/spaghettifunk/anima-samples/engine/assets/loaders"
	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/renderer"
	"github.com/spaghettifunk/anima-samples/engine/renderer/shader"
	"github.com/spaghettifunk/anima-samples/engine/resources"
)

// DefaultMaterialName is the instance every primitive uses when materials are overridden.
const DefaultMaterialName = "DefaultMaterial"

const colorBody = `
void material(inout MaterialInputs material) {
    prepareMaterial(material);
    material.baseColor.rgb = materialParams.baseColor;
    material.metallic = materialParams.metallic;
    material.roughness = materialParams.roughness;
}
`

const texturedBody = `
void material(inout MaterialInputs material) {
    prepareMaterial(material);
    material.baseColor.rgb = texture(materialParams_baseColorMap, getUV0()).rgb * materialParams.baseColor;
    material.metallic = materialParams.metallic;
    material.roughness = materialParams.roughness;
}
`

/**
 * @brief MeshSet imports mesh files into an engine. Every file becomes a root
 * entity with a transform, and one renderable child per material group.
 *
 * The set owns the entities, the materials it compiles for file materials and
 * the textures those reference. Material instances it creates are stored in
 * the instances map given to AddFromFile and belong to the caller.
 */
type MeshSet struct {
	engine *renderer.Engine
	models assets.Loader
	images assets.Loader

	renderables []renderer.Entity
	color       *renderer.Material
	textured    *renderer.Material
	textures    map[string]*renderer.Texture
}

func NewMeshSet(engine *renderer.Engine) *MeshSet {
	return &MeshSet{
		engine:   engine,
		models:   &loaders.ModelLoader{},
		images:   &loaders.ImageLoader{},
		textures: make(map[string]*renderer.Texture),
	}
}

/**
 * @brief AddFromFile imports the mesh at path.
 * @param instances material instances by name. With override set every
 * primitive uses instances[DefaultMaterialName]; otherwise the materials of
 * the file are looked up by name and created in the map when missing.
 */
func (ms *MeshSet) AddFromFile(path string, instances map[string]*renderer.MaterialInstance, override bool) error {
	if !override && instances == nil {
		return fmt.Errorf("mesh %s: a material instance map is required", path)
	}
	res, err := ms.models.Load(path, nil)
	if err != nil {
		return err
	}
	defer ms.models.Unload(res)
	data := res.Data.(*resources.MeshResourceData)

	em := ms.engine.GetEntityManager()
	tm := ms.engine.GetTransformManager()

	root := em.Create()
	rootInstance := tm.Create(root, 0, math.NewMat4Identity())
	ms.renderables = append(ms.renderables, root)

	var fallback *renderer.MaterialInstance
	if override {
		fallback = instances[DefaultMaterialName]
		if fallback == nil {
			core.LogWarn("mesh %s: no `%s` instance, using the engine default material", path, DefaultMaterialName)
		}
	}

	for _, g := range data.Groups {
		mi := fallback
		if !override {
			if mi, err = ms.instanceFor(filepath.Dir(path), g.Material, data.Materials, instances); err != nil {
				return err
			}
		}

		child := em.Create()
		tm.Create(child, rootInstance, math.NewMat4Identity())
		err = renderer.NewRenderableBuilder(1).
			BoundingBox(g.Extents).
			Geometry(0, g.Vertices, g.Indices).
			Material(0, mi).
			Build(ms.engine, child)
		if err != nil {
			tm.Destroy(child)
			em.Destroy(child)
			return fmt.Errorf("mesh %s group %s: %w", path, g.Name, err)
		}
		ms.renderables = append(ms.renderables, child)
	}

	core.LogInfo("loaded mesh %s: %d group(s), %d material(s)", path, len(data.Groups), len(data.Materials))
	return nil
}

// Renderables returns every entity of the set, roots included, in creation order.
func (ms *MeshSet) Renderables() []renderer.Entity {
	return ms.renderables
}

// instanceFor returns the instance named after a file material, creating it
// from the set's materials the first time.
func (ms *MeshSet) instanceFor(dir, name string, materials map[string]*resources.MaterialResourceData, instances map[string]*renderer.MaterialInstance) (*renderer.MaterialInstance, error) {
	if mi, ok := instances[name]; ok {
		return mi, nil
	}
	data, ok := materials[name]
	if !ok {
		d := resources.DefaultMaterialData
		data = &d
	}

	var texture *renderer.Texture
	if data.BaseColorMap != "" {
		texture = ms.texture(dir, data.BaseColorMap)
	}

	var material *renderer.Material
	var err error
	if texture != nil {
		material, err = ms.material(&ms.textured, "MeshTextured", texturedBody, true)
	} else {
		material, err = ms.material(&ms.color, "MeshColor", colorBody, false)
	}
	if err != nil {
		return nil, err
	}

	mi := material.CreateInstance(name)
	err = errors.Join(
		mi.SetParameterFloat3("baseColor", math.ToLinear(data.BaseColor)),
		mi.SetParameterFloat("metallic", data.Metallic),
		mi.SetParameterFloat("roughness", data.Roughness),
	)
	if texture != nil {
		sampler := renderer.NewTextureSampler(renderer.MinFilterLinearMipmapLinear, renderer.MagFilterLinear, renderer.WrapModeRepeat)
		err = errors.Join(err, mi.SetParameter("baseColorMap", texture, sampler))
	}
	if err != nil {
		ms.engine.DestroyMaterialInstance(mi)
		return nil, err
	}
	instances[name] = mi
	return mi, nil
}

// material compiles a mesh material once and caches it in *slot.
func (ms *MeshSet) material(slot **renderer.Material, name, body string, textured bool) (*renderer.Material, error) {
	if *slot != nil {
		return *slot, nil
	}
	b := shader.NewMaterialBuilder().
		Name(name).
		Set(shader.PropertyBaseColor).
		Set(shader.PropertyMetallic).
		Set(shader.PropertyRoughness).
		Shading(shader.ShadingLit).
		Parameter(shader.FLOAT3, "baseColor").
		Parameter(shader.FLOAT, "metallic").
		Parameter(shader.FLOAT, "roughness").
		Material(body)
	if textured {
		b.Require(shader.AttributeUV0).Parameter(shader.SAMPLER_2D, "baseColorMap")
	}
	pkg, err := b.Build()
	if err != nil {
		return nil, err
	}
	m, err := renderer.NewMaterialBuilder().Package(pkg.Data(), pkg.Size()).Build(ms.engine)
	if err != nil {
		return nil, err
	}
	*slot = m
	return m, nil
}

// texture loads a base color map once per file. Maps that fail to load are
// logged and the material falls back to its flat color.
func (ms *MeshSet) texture(dir, file string) *renderer.Texture {
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, filepath.FromSlash(file))
	}
	if t, ok := ms.textures[path]; ok {
		return t
	}
	ms.textures[path] = nil

	res, err := ms.images.Load(path, &resources.ImageResourceParams{ChannelCount: 3, FlipY: true})
	if err != nil {
		core.LogWarn("mesh texture %s: %v", path, err)
		return nil
	}
	defer ms.images.Unload(res)
	img := res.Data.(*resources.ImageResourceData)

	t, err := renderer.NewTextureBuilder().
		Width(img.Width).
		Height(img.Height).
		Levels(0xff).
		Format(renderer.TextureFormatSRGB8).
		Build(ms.engine)
	if err != nil {
		core.LogWarn("mesh texture %s: %v", path, err)
		return nil
	}
	buffer := renderer.NewPixelBufferDescriptor(img.Pixels, renderer.PixelDataFormatRGB, renderer.PixelDataTypeUByte, nil)
	if err := errors.Join(t.SetImage(ms.engine, 0, buffer), t.GenerateMipmaps(ms.engine)); err != nil {
		core.LogWarn("mesh texture %s: %v", path, err)
		ms.engine.DestroyTexture(t)
		return nil
	}
	ms.textures[path] = t
	return t
}

// Destroy releases the entities, materials and textures of the set. Instances
// created from the set's materials must have been destroyed before.
func (ms *MeshSet) Destroy() error {
	em := ms.engine.GetEntityManager()
	tm := ms.engine.GetTransformManager()
	for _, e := range ms.renderables {
		ms.engine.DestroyEntity(e)
		tm.Destroy(e)
		em.Destroy(e)
	}
	ms.renderables = nil

	var errs []error
	for _, m := range []*renderer.Material{ms.color, ms.textured} {
		if m != nil {
			errs = append(errs, ms.engine.DestroyMaterial(m))
		}
	}
	ms.color, ms.textured = nil, nil
	for path, t := range ms.textures {
		if t != nil {
			errs = append(errs, ms.engine.DestroyTexture(t))
		}
		delete(ms.textures, path)
	}
	return errors.Join(errs...)
}
