package renderer

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
)

// Primitive is one draw call: an indexed triangle list and its material.
type Primitive struct {
	Vertices []math.Vertex3D
	Indices  []uint32
	Material *MaterialInstance
}

type RenderableBuilder struct {
	primitives []Primitive
	box        math.Extents3D
	hasBox     bool
	culling    bool
}

// NewRenderableBuilder prepares a renderable made of count primitives.
func NewRenderableBuilder(count int) *RenderableBuilder {
	return &RenderableBuilder{
		primitives: make([]Primitive, count),
		culling:    true,
	}
}

func (b *RenderableBuilder) BoundingBox(box math.Extents3D) *RenderableBuilder {
	b.box = box
	b.hasBox = true
	return b
}

func (b *RenderableBuilder) Geometry(index int, vertices []math.Vertex3D, indices []uint32) *RenderableBuilder {
	if index >= 0 && index < len(b.primitives) {
		b.primitives[index].Vertices = vertices
		b.primitives[index].Indices = indices
	}
	return b
}

func (b *RenderableBuilder) Material(index int, mi *MaterialInstance) *RenderableBuilder {
	if index >= 0 && index < len(b.primitives) {
		b.primitives[index].Material = mi
	}
	return b
}

// Culling enables frustum culling against the bounding box, on by default.
func (b *RenderableBuilder) Culling(enabled bool) *RenderableBuilder {
	b.culling = enabled
	return b
}

// Build attaches the renderable component to entity. Primitives without a
// material use the engine's default material.
func (b *RenderableBuilder) Build(engine *Engine, entity Entity) error {
	if entity.IsNull() {
		return fmt.Errorf("renderable: null entity")
	}
	r := &renderable{
		primitives: make([]Primitive, len(b.primitives)),
		culling:    b.culling,
	}
	copy(r.primitives, b.primitives)
	for i, p := range r.primitives {
		if len(p.Indices)%3 != 0 {
			return fmt.Errorf("%w: primitive %d has %d indices", core.ErrInvalidSize, i, len(p.Indices))
		}
		for _, idx := range p.Indices {
			if int(idx) >= len(p.Vertices) {
				return fmt.Errorf("%w: primitive %d indexes vertex %d of %d", core.ErrInvalidSize, i, idx, len(p.Vertices))
			}
		}
		if p.Material == nil {
			r.primitives[i].Material = engine.GetDefaultMaterial().GetDefaultInstance()
		}
	}
	if b.hasBox {
		r.box = b.box
	} else {
		first := true
		for _, p := range r.primitives {
			if len(p.Vertices) == 0 {
				continue
			}
			e := math.GeometryComputeExtents(p.Vertices)
			if first {
				r.box = e
				first = false
				continue
			}
			r.box = r.box.Expand(e.Min).Expand(e.Max)
		}
	}
	engine.GetRenderableManager().add(entity, r)
	return nil
}

type renderable struct {
	primitives []Primitive
	box        math.Extents3D
	culling    bool
}

// RenderableInstance identifies a renderable component; 0 is invalid.
type RenderableInstance uint32

func (i RenderableInstance) IsValid() bool {
	return i != 0
}

/**
 * @brief RenderableManager owns the renderable components: the geometry and
 * materials drawn for an entity.
 */
type RenderableManager struct {
	mu        sync.RWMutex
	items     map[Entity]*renderable
	instances map[Entity]RenderableInstance
	next      RenderableInstance
}

func newRenderableManager() *RenderableManager {
	return &RenderableManager{
		items:     make(map[Entity]*renderable),
		instances: make(map[Entity]RenderableInstance),
	}
}

func (rm *RenderableManager) add(e Entity, r *renderable) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.instances[e]; !ok {
		rm.next++
		rm.instances[e] = rm.next
	}
	rm.items[e] = r
}

func (rm *RenderableManager) HasComponent(e Entity) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.items[e]
	return ok
}

func (rm *RenderableManager) GetInstance(e Entity) RenderableInstance {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.instances[e]
}

func (rm *RenderableManager) get(e Entity) *renderable {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.items[e]
}

func (rm *RenderableManager) GetPrimitiveCount(e Entity) int {
	if r := rm.get(e); r != nil {
		return len(r.primitives)
	}
	return 0
}

func (rm *RenderableManager) GetMaterialInstanceAt(e Entity, primitive int) *MaterialInstance {
	r := rm.get(e)
	if r == nil || primitive < 0 || primitive >= len(r.primitives) {
		return nil
	}
	return r.primitives[primitive].Material
}

func (rm *RenderableManager) SetMaterialInstanceAt(e Entity, primitive int, mi *MaterialInstance) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	r := rm.items[e]
	if r == nil || primitive < 0 || primitive >= len(r.primitives) || mi == nil {
		return
	}
	r.primitives[primitive].Material = mi
}

// GetAxisAlignedBoundingBox returns the object-space bounds of the renderable.
func (rm *RenderableManager) GetAxisAlignedBoundingBox(e Entity) math.Extents3D {
	if r := rm.get(e); r != nil {
		return r.box
	}
	return math.Extents3D{}
}

func (rm *RenderableManager) SetCulling(e Entity, enabled bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if r := rm.items[e]; r != nil {
		r.culling = enabled
	}
}

func (rm *RenderableManager) Destroy(e Entity) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.items, e)
	delete(rm.instances, e)
}

func (rm *RenderableManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.items)
}

// usesMaterialInstance reports whether any renderable still draws with mi.
func (rm *RenderableManager) usesMaterialInstance(mi *MaterialInstance) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, r := range rm.items {
		for _, p := range r.primitives {
			if p.Material == mi {
				return true
			}
		}
	}
	return false
}
