package renderer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/renderer/shader"
	"github.com/spaghettifunk/anima-samples/engine/systems"
)

const defaultMaterialSource = `
void material(inout MaterialInputs material) {
    prepareMaterial(material);
    material.baseColor.rgb = float3(0.8);
    material.metallic = 0.0;
    material.roughness = 0.6;
}
`

/**
 * @brief Engine owns the component managers and every object created through
 * it. Objects are released with the matching Destroy method; whatever is
 * still alive at Shutdown is reported as a leak.
 */
type Engine struct {
	entities    *EntityManager
	transforms  *TransformManager
	renderables *RenderableManager
	lights      *LightManager
	jobs        *systems.JobSystem

	defaultMaterial *Material

	mu      sync.Mutex
	objects map[interface{}]struct{}
	scenes  map[*Scene]struct{}
	isDown  bool
}

// NewEngine creates an engine whose job system uses the given number of
// workers, 0 meaning one per CPU.
func NewEngine(workers int) (*Engine, error) {
	jobs, err := systems.NewJobSystem(workers)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		entities:    newEntityManager(),
		transforms:  newTransformManager(),
		renderables: newRenderableManager(),
		lights:      newLightManager(),
		jobs:        jobs,
		objects:     make(map[interface{}]struct{}),
		scenes:      make(map[*Scene]struct{}),
	}

	pkg, err := shader.NewMaterialBuilder().
		Name("DefaultMaterial").
		Set(shader.PropertyBaseColor).
		Set(shader.PropertyMetallic).
		Set(shader.PropertyRoughness).
		Material(defaultMaterialSource).
		Shading(shader.ShadingLit).
		Build()
	if err != nil {
		return nil, fmt.Errorf("default material: %w", err)
	}
	if e.defaultMaterial, err = NewMaterialBuilder().Package(pkg.Data(), pkg.Size()).Build(e); err != nil {
		return nil, fmt.Errorf("default material: %w", err)
	}
	// owned by the engine, never reported
	e.untrack(e.defaultMaterial)

	core.LogDebug("engine created with %d job workers", jobs.WorkerCount())
	return e, nil
}

func (e *Engine) GetEntityManager() *EntityManager {
	return e.entities
}

func (e *Engine) GetTransformManager() *TransformManager {
	return e.transforms
}

func (e *Engine) GetRenderableManager() *RenderableManager {
	return e.renderables
}

func (e *Engine) GetLightManager() *LightManager {
	return e.lights
}

func (e *Engine) GetJobSystem() *systems.JobSystem {
	return e.jobs
}

// GetDefaultMaterial returns the material used by primitives built without one.
func (e *Engine) GetDefaultMaterial() *Material {
	return e.defaultMaterial
}

func (e *Engine) track(obj interface{}) {
	e.mu.Lock()
	e.objects[obj] = struct{}{}
	e.mu.Unlock()
}

func (e *Engine) untrack(obj interface{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.objects[obj]; !ok {
		return false
	}
	delete(e.objects, obj)
	return true
}

func (e *Engine) isAlive(obj interface{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.objects[obj]
	return ok
}

func (e *Engine) CreateScene() *Scene {
	s := newScene()
	e.track(s)
	e.mu.Lock()
	e.scenes[s] = struct{}{}
	e.mu.Unlock()
	return s
}

func (e *Engine) CreateView() *View {
	v := newView()
	e.track(v)
	return v
}

// CreateCamera attaches a camera to entity.
func (e *Engine) CreateCamera(entity Entity) *Camera {
	c := newCamera(entity)
	e.track(c)
	return c
}

func (e *Engine) CreateRenderer() *Renderer {
	r := newRenderer(e)
	e.track(r)
	return r
}

// destroy releases obj, nil being a no-op.
func (e *Engine) destroy(obj interface{}, isNil bool, kind string) error {
	if isNil {
		return nil
	}
	if !e.untrack(obj) {
		err := fmt.Errorf("%w: %s", core.ErrDestroyed, kind)
		core.LogWarn(err.Error())
		return err
	}
	return nil
}

func (e *Engine) DestroyTexture(t *Texture) error {
	if err := e.destroy(t, t == nil, "texture"); err != nil || t == nil {
		return err
	}
	t.levels = nil
	return nil
}

// DestroyMaterial releases m. All instances created from it must be destroyed first.
func (e *Engine) DestroyMaterial(m *Material) error {
	if m == nil {
		return nil
	}
	e.mu.Lock()
	alive := 0
	for obj := range e.objects {
		if mi, ok := obj.(*MaterialInstance); ok && mi.material == m {
			alive++
		}
	}
	e.mu.Unlock()
	if alive > 0 {
		err := fmt.Errorf("material `%s` still has %d live instances", m.GetName(), alive)
		core.LogError(err.Error())
		return err
	}
	return e.destroy(m, false, "material")
}

func (e *Engine) DestroyMaterialInstance(mi *MaterialInstance) error {
	if mi == nil {
		return nil
	}
	if e.renderables.usesMaterialInstance(mi) {
		core.LogWarn("material instance `%s` destroyed while a renderable still uses it", mi.GetName())
	}
	return e.destroy(mi, false, "material instance")
}

func (e *Engine) DestroyScene(s *Scene) error {
	if err := e.destroy(s, s == nil, "scene"); err != nil || s == nil {
		return err
	}
	e.mu.Lock()
	delete(e.scenes, s)
	e.mu.Unlock()
	return nil
}

func (e *Engine) DestroyView(v *View) error {
	return e.destroy(v, v == nil, "view")
}

func (e *Engine) DestroyCamera(c *Camera) error {
	return e.destroy(c, c == nil, "camera")
}

func (e *Engine) DestroyRenderer(r *Renderer) error {
	return e.destroy(r, r == nil, "renderer")
}

func (e *Engine) DestroyIndirectLight(il *IndirectLight) error {
	if err := e.destroy(il, il == nil, "indirect light"); err != nil || il == nil {
		return err
	}
	e.forgetInScenes(il)
	return nil
}

func (e *Engine) DestroySkybox(s *Skybox) error {
	if err := e.destroy(s, s == nil, "skybox"); err != nil || s == nil {
		return err
	}
	e.forgetInScenes(s)
	return nil
}

func (e *Engine) forgetInScenes(obj interface{}) {
	e.mu.Lock()
	scenes := make([]*Scene, 0, len(e.scenes))
	for s := range e.scenes {
		scenes = append(scenes, s)
	}
	e.mu.Unlock()
	for _, s := range scenes {
		s.removeReferences(obj)
	}
}

// DestroyEntity removes the renderable and light components of entity. The
// entity itself and its transform are left to their managers.
func (e *Engine) DestroyEntity(entity Entity) {
	e.renderables.Destroy(entity)
	e.lights.Destroy(entity)
}

// Leaks returns the number of live objects per kind.
func (e *Engine) Leaks() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int)
	for obj := range e.objects {
		out[kindOf(obj)]++
	}
	if n := e.renderables.Count(); n > 0 {
		out["renderable"] = n
	}
	if n := e.lights.Count(); n > 0 {
		out["light"] = n
	}
	return out
}

func kindOf(obj interface{}) string {
	switch obj.(type) {
	case *Texture:
		return "texture"
	case *Material:
		return "material"
	case *MaterialInstance:
		return "material instance"
	case *Scene:
		return "scene"
	case *View:
		return "view"
	case *Camera:
		return "camera"
	case *Renderer:
		return "renderer"
	case *IndirectLight:
		return "indirect light"
	case *Skybox:
		return "skybox"
	}
	return fmt.Sprintf("%T", obj)
}

// Shutdown reports leaked objects and releases everything. It returns the
// number of leaked objects.
func (e *Engine) Shutdown() int {
	if e.isDown {
		return 0
	}
	leaks := e.Leaks()
	kinds := make([]string, 0, len(leaks))
	total := 0
	for k, n := range leaks {
		kinds = append(kinds, k)
		total += n
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		core.LogWarn("engine shutdown: %d %s(s) leaked", leaks[k], k)
	}

	e.mu.Lock()
	e.objects = make(map[interface{}]struct{})
	e.scenes = make(map[*Scene]struct{})
	e.isDown = true
	e.mu.Unlock()
	return total
}
