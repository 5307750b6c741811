package renderer

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-samples/engine/math"
)

type LightType uint8

const (
	// LightTypeSun lights the scene like LightTypeDirectional.
	LightTypeSun LightType = iota
	LightTypeDirectional
	LightTypePoint
)

func (t LightType) String() string {
	switch t {
	case LightTypeSun:
		return "sun"
	case LightTypeDirectional:
		return "directional"
	case LightTypePoint:
		return "point"
	}
	return fmt.Sprintf("LightType(%d)", uint8(t))
}

type light struct {
	kind      LightType
	color     math.Vec3
	intensity float32
	direction math.Vec3
	position  math.Vec3
	falloff   float32
}

// LightBuilder describes a light. Directional intensities are in lux, point
// light intensities in lumens.
type LightBuilder struct {
	l light
}

func NewLightBuilder(kind LightType) *LightBuilder {
	return &LightBuilder{l: light{
		kind:      kind,
		color:     math.NewVec3One(),
		intensity: 100000,
		direction: math.NewVec3(0, -1, 0),
		falloff:   1,
	}}
}

// Color sets the linear color of the light.
func (b *LightBuilder) Color(c math.Vec3) *LightBuilder {
	b.l.color = c
	return b
}

func (b *LightBuilder) Intensity(intensity float32) *LightBuilder {
	b.l.intensity = intensity
	return b
}

// Direction sets the direction the light travels in.
func (b *LightBuilder) Direction(d math.Vec3) *LightBuilder {
	b.l.direction = d
	return b
}

func (b *LightBuilder) Position(p math.Vec3) *LightBuilder {
	b.l.position = p
	return b
}

// Falloff sets the radius past which a point light has no influence.
func (b *LightBuilder) Falloff(radius float32) *LightBuilder {
	b.l.falloff = radius
	return b
}

func (b *LightBuilder) Build(engine *Engine, entity Entity) error {
	if entity.IsNull() {
		return fmt.Errorf("light: null entity")
	}
	l := b.l
	if l.direction.LengthSquared() == 0 {
		return fmt.Errorf("light: zero direction")
	}
	l.direction = l.direction.Normalized()
	if l.falloff <= 0 {
		return fmt.Errorf("light: falloff must be positive, got %f", l.falloff)
	}
	engine.GetLightManager().add(entity, &l)
	return nil
}

/**
 * @brief LightManager owns the light components.
 */
type LightManager struct {
	mu     sync.RWMutex
	lights map[Entity]*light
}

func newLightManager() *LightManager {
	return &LightManager{lights: make(map[Entity]*light)}
}

func (lm *LightManager) add(e Entity, l *light) {
	lm.mu.Lock()
	lm.lights[e] = l
	lm.mu.Unlock()
}

func (lm *LightManager) get(e Entity) *light {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return lm.lights[e]
}

func (lm *LightManager) HasComponent(e Entity) bool {
	return lm.get(e) != nil
}

func (lm *LightManager) GetType(e Entity) LightType {
	if l := lm.get(e); l != nil {
		return l.kind
	}
	return LightTypeDirectional
}

func (lm *LightManager) GetColor(e Entity) math.Vec3 {
	if l := lm.get(e); l != nil {
		return l.color
	}
	return math.Vec3{}
}

func (lm *LightManager) GetIntensity(e Entity) float32 {
	if l := lm.get(e); l != nil {
		return l.intensity
	}
	return 0
}

func (lm *LightManager) GetDirection(e Entity) math.Vec3 {
	if l := lm.get(e); l != nil {
		return l.direction
	}
	return math.Vec3{}
}

func (lm *LightManager) SetDirection(e Entity, d math.Vec3) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if l := lm.lights[e]; l != nil && d.LengthSquared() > 0 {
		l.direction = d.Normalized()
	}
}

func (lm *LightManager) SetIntensity(e Entity, intensity float32) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if l := lm.lights[e]; l != nil {
		l.intensity = intensity
	}
}

func (lm *LightManager) Destroy(e Entity) {
	lm.mu.Lock()
	delete(lm.lights, e)
	lm.mu.Unlock()
}

func (lm *LightManager) Count() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.lights)
}
