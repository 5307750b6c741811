package renderer

import (
	"sync"

	"github.com/spaghettifunk/anima-samples/engine/math"
)

// TransformInstance identifies a transform component; 0 is invalid.
type TransformInstance uint32

func (i TransformInstance) IsValid() bool {
	return i != 0
}

type transformNode struct {
	entity   Entity
	local    math.Mat4
	world    math.Mat4
	parent   TransformInstance
	children []TransformInstance
	alive    bool
}

/**
 * @brief TransformManager stores a local transform per entity and keeps the
 * world transforms of the whole hierarchy up to date. A node's world transform
 * is its local transform followed by its parent's world transform.
 */
type TransformManager struct {
	mu    sync.RWMutex
	nodes []transformNode
	free  []TransformInstance
	index map[Entity]TransformInstance
}

func newTransformManager() *TransformManager {
	return &TransformManager{
		// slot 0 is the invalid instance
		nodes: make([]transformNode, 1),
		index: make(map[Entity]TransformInstance),
	}
}

// Create attaches a transform to e. A parent of 0 makes it a root.
func (tm *TransformManager) Create(e Entity, parent TransformInstance, local math.Mat4) TransformInstance {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if i, ok := tm.index[e]; ok {
		tm.nodes[i].local = local
		tm.setParentLocked(i, parent)
		tm.updateLocked(i)
		return i
	}

	var i TransformInstance
	if n := len(tm.free); n > 0 {
		i = tm.free[n-1]
		tm.free = tm.free[:n-1]
	} else {
		tm.nodes = append(tm.nodes, transformNode{})
		i = TransformInstance(len(tm.nodes) - 1)
	}
	tm.nodes[i] = transformNode{entity: e, local: local, alive: true}
	tm.index[e] = i
	tm.setParentLocked(i, parent)
	tm.updateLocked(i)
	return i
}

func (tm *TransformManager) HasComponent(e Entity) bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	_, ok := tm.index[e]
	return ok
}

func (tm *TransformManager) GetInstance(e Entity) TransformInstance {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.index[e]
}

func (tm *TransformManager) valid(i TransformInstance) bool {
	return i > 0 && int(i) < len(tm.nodes) && tm.nodes[i].alive
}

// SetTransform replaces the local transform of i and updates the world
// transforms of i and its descendants.
func (tm *TransformManager) SetTransform(i TransformInstance, local math.Mat4) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if !tm.valid(i) {
		return
	}
	tm.nodes[i].local = local
	tm.updateLocked(i)
}

func (tm *TransformManager) GetTransform(i TransformInstance) math.Mat4 {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if !tm.valid(i) {
		return math.NewMat4Identity()
	}
	return tm.nodes[i].local
}

func (tm *TransformManager) GetWorldTransform(i TransformInstance) math.Mat4 {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if !tm.valid(i) {
		return math.NewMat4Identity()
	}
	return tm.nodes[i].world
}

func (tm *TransformManager) SetParent(i, parent TransformInstance) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if !tm.valid(i) {
		return
	}
	tm.setParentLocked(i, parent)
	tm.updateLocked(i)
}

func (tm *TransformManager) GetParent(i TransformInstance) Entity {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if !tm.valid(i) || !tm.valid(tm.nodes[i].parent) {
		return NullEntity
	}
	return tm.nodes[tm.nodes[i].parent].entity
}

func (tm *TransformManager) GetChildren(i TransformInstance) []Entity {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if !tm.valid(i) {
		return nil
	}
	out := make([]Entity, 0, len(tm.nodes[i].children))
	for _, c := range tm.nodes[i].children {
		out = append(out, tm.nodes[c].entity)
	}
	return out
}

// Destroy removes the transform of e. Its children become roots.
func (tm *TransformManager) Destroy(e Entity) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	i, ok := tm.index[e]
	if !ok {
		return
	}
	for _, c := range append([]TransformInstance(nil), tm.nodes[i].children...) {
		tm.setParentLocked(c, 0)
		tm.updateLocked(c)
	}
	tm.setParentLocked(i, 0)
	tm.nodes[i] = transformNode{}
	delete(tm.index, e)
	tm.free = append(tm.free, i)
}

func (tm *TransformManager) Count() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return len(tm.index)
}

func (tm *TransformManager) setParentLocked(i, parent TransformInstance) {
	node := &tm.nodes[i]
	if old := node.parent; tm.valid(old) {
		siblings := tm.nodes[old].children
		for k, c := range siblings {
			if c == i {
				tm.nodes[old].children = append(siblings[:k], siblings[k+1:]...)
				break
			}
		}
	}
	// a node cannot be parented to itself or to one of its descendants
	for p := parent; tm.valid(p); p = tm.nodes[p].parent {
		if p == i {
			parent = 0
			break
		}
	}
	if !tm.valid(parent) {
		parent = 0
	}
	node.parent = parent
	if parent != 0 {
		tm.nodes[parent].children = append(tm.nodes[parent].children, i)
	}
}

func (tm *TransformManager) updateLocked(i TransformInstance) {
	node := &tm.nodes[i]
	if tm.valid(node.parent) {
		node.world = node.local.Mul(tm.nodes[node.parent].world)
	} else {
		node.world = node.local
	}
	for _, c := range node.children {
		tm.updateLocked(c)
	}
}
