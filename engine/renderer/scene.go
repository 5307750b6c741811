package renderer

import "sync"

/**
 * @brief Scene is a flat list of the entities to draw and light, plus the
 * scene's environment (indirect light and skybox). Entities keep the order
 * they were added in.
 */
type Scene struct {
	mu            sync.RWMutex
	entities      []Entity
	index         map[Entity]int
	indirectLight *IndirectLight
	skybox        *Skybox
}

func newScene() *Scene {
	return &Scene{index: make(map[Entity]int)}
}

// AddEntity adds e to the scene. Adding an entity twice is a no-op.
func (s *Scene) AddEntity(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[e]; ok || e.IsNull() {
		return
	}
	s.index[e] = len(s.entities)
	s.entities = append(s.entities, e)
}

func (s *Scene) AddEntities(entities []Entity) {
	for _, e := range entities {
		s.AddEntity(e)
	}
}

func (s *Scene) Remove(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[e]
	if !ok {
		return
	}
	s.entities = append(s.entities[:i], s.entities[i+1:]...)
	delete(s.index, e)
	for k := i; k < len(s.entities); k++ {
		s.index[s.entities[k]] = k
	}
}

func (s *Scene) HasEntity(e Entity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[e]
	return ok
}

// Entities returns a snapshot of the scene's entities.
func (s *Scene) Entities() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entity(nil), s.entities...)
}

func (s *Scene) GetEntityCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

func (s *Scene) SetIndirectLight(il *IndirectLight) {
	s.mu.Lock()
	s.indirectLight = il
	s.mu.Unlock()
}

func (s *Scene) GetIndirectLight() *IndirectLight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indirectLight
}

func (s *Scene) SetSkybox(sky *Skybox) {
	s.mu.Lock()
	s.skybox = sky
	s.mu.Unlock()
}

func (s *Scene) GetSkybox() *Skybox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.skybox
}

// removeReferences forgets environment objects that are being destroyed.
func (s *Scene) removeReferences(obj interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if il, ok := obj.(*IndirectLight); ok && s.indirectLight == il {
		s.indirectLight = nil
	}
	if sky, ok := obj.(*Skybox); ok && s.skybox == sky {
		s.skybox = nil
	}
}
