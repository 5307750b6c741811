package renderer

import "github.com/spaghettifunk/anima-samples/engine/math"

// Viewport is a rectangle of the render target, its origin at the bottom left.
type Viewport struct {
	Left   int32
	Bottom int32
	Width  uint32
	Height uint32
}

type ToneMapping uint8

const (
	ToneMappingACES ToneMapping = iota
	ToneMappingLinear
)

/**
 * @brief View renders a Scene as seen from a Camera into a viewport of the
 * render target.
 */
type View struct {
	name        string
	scene       *Scene
	camera      *Camera
	viewport    Viewport
	clearColor  math.Vec4
	toneMapping ToneMapping
	culling     bool
}

func newView() *View {
	return &View{
		clearColor: math.NewVec4(0, 0, 0, 1),
		culling:    true,
	}
}

func (v *View) SetName(name string) {
	v.name = name
}

func (v *View) GetName() string {
	return v.name
}

func (v *View) SetScene(s *Scene) {
	v.scene = s
}

func (v *View) GetScene() *Scene {
	return v.scene
}

func (v *View) SetCamera(c *Camera) {
	v.camera = c
}

func (v *View) GetCamera() *Camera {
	return v.camera
}

func (v *View) SetViewport(vp Viewport) {
	v.viewport = vp
}

func (v *View) GetViewport() Viewport {
	return v.viewport
}

// SetClearColor sets the linear color used where there is no skybox.
func (v *View) SetClearColor(c math.Vec4) {
	v.clearColor = c
}

func (v *View) SetToneMapping(t ToneMapping) {
	v.toneMapping = t
}

// SetFrustumCullingEnabled toggles the bounding box test done before
// rasterizing a renderable.
func (v *View) SetFrustumCullingEnabled(enabled bool) {
	v.culling = enabled
}
