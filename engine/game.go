package engine

import "github.com/spaghettifunk/anima-samples/engine/renderer"

// Setup is called once, before the first frame, to populate the scene.
type Setup func(engine *renderer.Engine, view *renderer.View, scene *renderer.Scene) error

// Cleanup is called once after the last frame. It must destroy everything
// Setup created.
type Cleanup func(engine *renderer.Engine, view *renderer.View, scene *renderer.Scene)

// Animate is called before each frame with the seconds since the first one.
type Animate func(engine *renderer.Engine, view *renderer.View, now float64)
