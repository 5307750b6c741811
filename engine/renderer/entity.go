package renderer

import (
	"sync"

	"github.com/google/uuid"
)

// Entity is an opaque handle components are attached to.
type Entity struct {
	id uuid.UUID
}

// NullEntity is the zero Entity; it is never alive.
var NullEntity = Entity{}

func (e Entity) IsNull() bool {
	return e.id == uuid.Nil
}

func (e Entity) String() string {
	if e.IsNull() {
		return "entity(null)"
	}
	return "entity(" + e.id.String()[:8] + ")"
}

/**
 * @brief EntityManager hands out entities. An entity carries no data of its
 * own: transforms, renderables and lights are attached by their managers.
 */
type EntityManager struct {
	mu    sync.RWMutex
	alive map[Entity]struct{}
}

func newEntityManager() *EntityManager {
	return &EntityManager{alive: make(map[Entity]struct{})}
}

func (em *EntityManager) Create() Entity {
	e := Entity{id: uuid.New()}
	em.mu.Lock()
	em.alive[e] = struct{}{}
	em.mu.Unlock()
	return e
}

// CreateN fills out with freshly created entities.
func (em *EntityManager) CreateN(out []Entity) {
	em.mu.Lock()
	defer em.mu.Unlock()
	for i := range out {
		out[i] = Entity{id: uuid.New()}
		em.alive[out[i]] = struct{}{}
	}
}

// Destroy releases the entity. Components must be destroyed through their
// managers (or Engine.DestroyEntity) beforehand.
func (em *EntityManager) Destroy(e Entity) {
	em.mu.Lock()
	delete(em.alive, e)
	em.mu.Unlock()
}

func (em *EntityManager) IsAlive(e Entity) bool {
	em.mu.RLock()
	defer em.mu.RUnlock()
	_, ok := em.alive[e]
	return ok
}

func (em *EntityManager) Count() int {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return len(em.alive)
}
