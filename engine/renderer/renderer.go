package renderer

import (
	"context"
	"fmt"
	"image"

	"github.com/chewxy/math32"
	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/renderer/shader"
)

// rows of pixels rasterized by one job
const stripeHeight = 8

// RenderStats describes the work done by the last Render call.
type RenderStats struct {
	Renderables int
	Culled      int
	Triangles   int
}

/**
 * @brief Renderer draws views into an RGBA target. Frames are bracketed by
 * BeginFrame and EndFrame; any number of views can be rendered in between.
 * Rasterization is split in horizontal stripes dispatched on the engine's
 * job system.
 */
type Renderer struct {
	engine *Engine
	target *image.RGBA
	depth  []float32
	frames uint64
	stats  RenderStats
}

func newRenderer(e *Engine) *Renderer {
	return &Renderer{engine: e}
}

// BeginFrame starts a frame drawn into target. It returns false, and the
// frame should be skipped, when there is nothing to draw into.
func (r *Renderer) BeginFrame(target *image.RGBA) bool {
	if target == nil || target.Rect.Empty() {
		return false
	}
	r.target = target
	if n := target.Rect.Dx() * target.Rect.Dy(); cap(r.depth) < n {
		r.depth = make([]float32, n)
	}
	return true
}

func (r *Renderer) EndFrame() {
	if r.target == nil {
		return
	}
	r.target = nil
	r.frames++
}

// GetFrameCount returns the number of frames ended so far.
func (r *Renderer) GetFrameCount() uint64 {
	return r.frames
}

func (r *Renderer) GetStats() RenderStats {
	return r.stats
}

// frameData is everything shading needs that is constant over a view.
type frameData struct {
	lights        []lightData
	indirectLight *IndirectLight
	skybox        *Skybox
	clearColor    math.Vec4
	toneMapping   ToneMapping

	cameraPos   math.Vec3
	forward     math.Vec3
	ortho       bool
	clipToWorld math.Mat4
	exposure    float32
	ev100       float32

	// viewport in target pixels, y down
	rect image.Rectangle
}

type vertexOut struct {
	clip   math.Vec4
	world  math.Vec3
	normal math.Vec3
	uv     math.Vec2
}

type triangle struct {
	x, y     [3]float32
	z        [3]float32
	invW     [3]float32
	area     float32
	world    [3]math.Vec3
	normal   [3]math.Vec3
	uv       [3]math.Vec2
	material *MaterialInstance
	bounds   image.Rectangle
}

// Render draws v into the target of the current frame.
func (r *Renderer) Render(ctx context.Context, v *View) error {
	if r.target == nil {
		return core.ErrNoFrame
	}
	if v.scene == nil || v.camera == nil {
		return fmt.Errorf("%w: `%s`", core.ErrIncompleteView, v.name)
	}

	f := r.prepare(v)
	r.stats = RenderStats{}
	if f.rect.Empty() {
		return nil
	}

	worldToClip := v.camera.GetViewMatrix().Mul(v.camera.GetProjectionMatrix())
	tris, err := r.setup(ctx, v, worldToClip, &f)
	if err != nil {
		return err
	}
	r.stats.Triangles = len(tris)

	stripes := (f.rect.Dy() + stripeHeight - 1) / stripeHeight
	bins := make([][]int, stripes)
	for i := range tris {
		b := tris[i].bounds
		first := (b.Min.Y - f.rect.Min.Y) / stripeHeight
		last := (b.Max.Y - 1 - f.rect.Min.Y) / stripeHeight
		for s := first; s <= last; s++ {
			bins[s] = append(bins[s], i)
		}
	}

	return r.engine.jobs.Dispatch(ctx, stripes, func(ctx context.Context, s int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows := image.Rect(f.rect.Min.X, f.rect.Min.Y+s*stripeHeight, f.rect.Max.X, f.rect.Min.Y+(s+1)*stripeHeight).Intersect(f.rect)
		r.background(&f, rows)
		for _, t := range bins[s] {
			r.rasterize(&f, &tris[t], rows)
		}
		return nil
	})
}

func (r *Renderer) prepare(v *View) frameData {
	cam := v.camera
	vp := v.viewport
	th := r.target.Rect.Dy()
	// viewports have their origin at the bottom left
	rect := image.Rect(int(vp.Left), th-int(vp.Bottom)-int(vp.Height), int(vp.Left)+int(vp.Width), th-int(vp.Bottom))
	rect = rect.Add(r.target.Rect.Min).Intersect(r.target.Rect)

	f := frameData{
		indirectLight: v.scene.GetIndirectLight(),
		skybox:        v.scene.GetSkybox(),
		clearColor:    v.clearColor,
		toneMapping:   v.toneMapping,
		cameraPos:     cam.GetPosition(),
		forward:       cam.GetForwardVector(),
		ortho:         cam.IsOrthographic(),
		clipToWorld:   cam.GetViewMatrix().Mul(cam.GetProjectionMatrix()).Inverse(),
		exposure:      cam.Exposure(),
		ev100:         cam.EV100(),
		rect:          rect,
	}

	lm := r.engine.lights
	for _, e := range v.scene.Entities() {
		l := lm.get(e)
		if l == nil {
			continue
		}
		ld := lightData{
			kind:      l.kind,
			color:     l.color.MulScalar(l.intensity),
			direction: l.direction.Negate(),
		}
		if l.kind == LightTypePoint {
			world := r.engine.transforms.GetWorldTransform(r.engine.transforms.GetInstance(e))
			ld.position = l.position.Transform(world)
			ld.color = ld.color.MulScalar(math.K_ONE_OVER_PI / 4)
			ld.falloffInv = 1 / l.falloff
		}
		f.lights = append(f.lights, ld)
	}
	return f
}

// setup transforms, culls and clips the geometry of the scene into screen space triangles.
func (r *Renderer) setup(ctx context.Context, v *View, worldToClip math.Mat4, f *frameData) ([]triangle, error) {
	type work struct {
		world     math.Mat4
		primitive Primitive
	}
	var items []work

	tm := r.engine.transforms
	for _, e := range v.scene.Entities() {
		rd := r.engine.renderables.get(e)
		if rd == nil {
			continue
		}
		r.stats.Renderables++
		world := math.NewMat4Identity()
		if i := tm.GetInstance(e); i.IsValid() {
			world = tm.GetWorldTransform(i)
		}
		if v.culling && rd.culling && outsideFrustum(rd.box.Transform(world), worldToClip) {
			r.stats.Culled++
			continue
		}
		for _, p := range rd.primitives {
			items = append(items, work{world: world, primitive: p})
		}
	}

	out := make([][]triangle, len(items))
	err := r.engine.jobs.Dispatch(ctx, len(items), func(ctx context.Context, i int) error {
		it := items[i]
		normalMatrix := math.NormalMatrix(it.world)
		verts := make([]vertexOut, len(it.primitive.Vertices))
		for k, vx := range it.primitive.Vertices {
			w := vx.Position.Transform(it.world)
			verts[k] = vertexOut{
				clip:   worldToClip.MulVec4(w.ToVec4(1)),
				world:  w,
				normal: normalMatrix.MulVec3(vx.Normal).Normalized(),
				uv:     vx.Texcoord,
			}
		}
		var tris []triangle
		idx := it.primitive.Indices
		for k := 0; k+2 < len(idx); k += 3 {
			in := [3]vertexOut{verts[idx[k]], verts[idx[k+1]], verts[idx[k+2]]}
			poly := clipNear(in[:])
			for j := 1; j+1 < len(poly); j++ {
				if t, ok := project(poly[0], poly[j], poly[j+1], f.rect); ok {
					t.material = it.primitive.Material
					tris = append(tris, t)
				}
			}
		}
		out[i] = tris
		return nil
	})
	if err != nil {
		return nil, err
	}

	var tris []triangle
	for _, t := range out {
		tris = append(tris, t...)
	}
	return tris, nil
}

// outsideFrustum reports whether box lies entirely outside one of the clip planes.
func outsideFrustum(box math.Extents3D, worldToClip math.Mat4) bool {
	var corners [8]math.Vec4
	for i := range corners {
		p := box.Min
		if i&1 != 0 {
			p.X = box.Max.X
		}
		if i&2 != 0 {
			p.Y = box.Max.Y
		}
		if i&4 != 0 {
			p.Z = box.Max.Z
		}
		corners[i] = worldToClip.MulVec4(p.ToVec4(1))
	}
	planes := [6]func(c math.Vec4) bool{
		func(c math.Vec4) bool { return c.X < -c.W },
		func(c math.Vec4) bool { return c.X > c.W },
		func(c math.Vec4) bool { return c.Y < -c.W },
		func(c math.Vec4) bool { return c.Y > c.W },
		func(c math.Vec4) bool { return c.Z < -c.W },
		func(c math.Vec4) bool { return c.Z > c.W },
	}
	for _, outside := range planes {
		all := true
		for _, c := range corners {
			if !outside(c) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func lerpVertex(a, b vertexOut, t float32) vertexOut {
	return vertexOut{
		clip:   a.clip.Lerp(b.clip, t),
		world:  a.world.Lerp(b.world, t),
		normal: a.normal.Lerp(b.normal, t),
		uv:     a.uv.Add(b.uv.Sub(a.uv).MulScalar(t)),
	}
}

// clipNear clips a polygon against the near plane z = -w.
func clipNear(in []vertexOut) []vertexOut {
	inside := func(v vertexOut) bool { return v.clip.Z >= -v.clip.W }
	if inside(in[0]) && inside(in[1]) && inside(in[2]) {
		return in
	}
	out := make([]vertexOut, 0, 4)
	for i := range in {
		a, b := in[i], in[(i+1)%len(in)]
		da, db := a.clip.Z+a.clip.W, b.clip.Z+b.clip.W
		if da >= 0 {
			out = append(out, a)
		}
		if (da >= 0) != (db >= 0) {
			out = append(out, lerpVertex(a, b, da/(da-db)))
		}
	}
	return out
}

// project maps a clipped triangle to the pixels of rect. Back faces and
// triangles covering no pixel are rejected.
func project(a, b, c vertexOut, rect image.Rectangle) (triangle, bool) {
	var t triangle
	w, h := float32(rect.Dx()), float32(rect.Dy())
	for i, v := range [3]vertexOut{a, b, c} {
		if v.clip.W <= 0 {
			return t, false
		}
		invW := 1 / v.clip.W
		t.x[i] = float32(rect.Min.X) + (v.clip.X*invW*0.5+0.5)*w
		t.y[i] = float32(rect.Min.Y) + (0.5-v.clip.Y*invW*0.5)*h
		t.z[i] = v.clip.Z * invW
		t.invW[i] = invW
		t.world[i] = v.world
		t.normal[i] = v.normal
		t.uv[i] = v.uv
	}
	t.area = (t.x[1]-t.x[0])*(t.y[2]-t.y[0]) - (t.x[2]-t.x[0])*(t.y[1]-t.y[0])
	// counter clockwise in NDC is clockwise once y points down
	if t.area >= 0 {
		return t, false
	}
	minX := math32.Min(t.x[0], math32.Min(t.x[1], t.x[2]))
	maxX := math32.Max(t.x[0], math32.Max(t.x[1], t.x[2]))
	minY := math32.Min(t.y[0], math32.Min(t.y[1], t.y[2]))
	maxY := math32.Max(t.y[0], math32.Max(t.y[1], t.y[2]))
	t.bounds = image.Rect(
		int(math32.Floor(minX)), int(math32.Floor(minY)),
		int(math32.Ceil(maxX))+1, int(math32.Ceil(maxY))+1,
	).Intersect(rect)
	return t, !t.bounds.Empty()
}

// barycentric returns the screen space barycentric coordinates of (px, py).
func (t *triangle) barycentric(px, py float32) (l0, l1, l2 float32) {
	l0 = ((t.x[1]-px)*(t.y[2]-py) - (t.x[2]-px)*(t.y[1]-py)) / t.area
	l1 = ((t.x[2]-px)*(t.y[0]-py) - (t.x[0]-px)*(t.y[2]-py)) / t.area
	return l0, l1, 1 - l0 - l1
}

// perspective corrects screen space barycentrics for the projection.
func (t *triangle) perspective(l0, l1, l2 float32) (float32, float32, float32) {
	w0, w1, w2 := l0*t.invW[0], l1*t.invW[1], l2*t.invW[2]
	s := w0 + w1 + w2
	if s == 0 {
		return l0, l1, l2
	}
	return w0 / s, w1 / s, w2 / s
}

func (t *triangle) uvAt(px, py float32) math.Vec2 {
	l0, l1, l2 := t.perspective(t.barycentric(px, py))
	return t.uv[0].MulScalar(l0).Add(t.uv[1].MulScalar(l1)).Add(t.uv[2].MulScalar(l2))
}

func (r *Renderer) rasterize(f *frameData, t *triangle, rows image.Rectangle) {
	area := t.bounds.Intersect(rows)
	if area.Empty() {
		return
	}
	target := r.target
	stride := target.Rect.Dx()
	mi := t.material
	unlit := mi.material.GetShading() == shader.ShadingUnlit

	for y := area.Min.Y; y < area.Max.Y; y++ {
		py := float32(y) + 0.5
		for x := area.Min.X; x < area.Max.X; x++ {
			px := float32(x) + 0.5
			l0, l1, l2 := t.barycentric(px, py)
			if l0 < 0 || l1 < 0 || l2 < 0 {
				continue
			}
			z := l0*t.z[0] + l1*t.z[1] + l2*t.z[2]
			depth := z*0.5 + 0.5
			if depth < 0 || depth > 1 {
				continue
			}
			d := (y-target.Rect.Min.Y)*stride + (x - target.Rect.Min.X)
			if depth >= r.depth[d] {
				continue
			}
			r.depth[d] = depth

			p0, p1, p2 := t.perspective(l0, l1, l2)
			uv := t.uv[0].MulScalar(p0).Add(t.uv[1].MulScalar(p1)).Add(t.uv[2].MulScalar(p2))
			frag := shader.Fragment{
				UV0:    uv,
				DUV0dx: t.uvAt(px+1, py).Sub(uv),
				DUV0dy: t.uvAt(px, py+1).Sub(uv),
				Color:  math.NewVec4(1, 1, 1, 1),
			}
			in := mi.Evaluate(frag)

			var color math.Vec3
			if unlit {
				color = shadeUnlit(&in, f)
			} else {
				pos := t.world[0].MulScalar(p0).Add(t.world[1].MulScalar(p1)).Add(t.world[2].MulScalar(p2))
				n := t.normal[0].MulScalar(p0).Add(t.normal[1].MulScalar(p1)).Add(t.normal[2].MulScalar(p2)).Normalized()
				v := f.forward.Negate()
				if !f.ortho {
					v = f.cameraPos.Sub(pos).Normalized()
				}
				if n.Dot(v) < 0 {
					n = n.Negate()
				}
				color = shadeLit(&in, pos, n, v, f)
			}
			color = color.MulScalar(f.exposure)
			r.write(x, y, color, f.toneMapping)
		}
	}
}

func (r *Renderer) write(x, y int, c math.Vec3, tm ToneMapping) {
	o := r.target.PixOffset(x, y)
	p := r.target.Pix[o : o+4 : o+4]
	p[0] = encode(c.X, tm)
	p[1] = encode(c.Y, tm)
	p[2] = encode(c.Z, tm)
	p[3] = 255
}

// background clears the depth of rows and fills them with the sky.
func (r *Renderer) background(f *frameData, rows image.Rectangle) {
	target := r.target
	stride := target.Rect.Dx()
	w, h := float32(f.rect.Dx()), float32(f.rect.Dy())

	for y := rows.Min.Y; y < rows.Max.Y; y++ {
		row := (y - target.Rect.Min.Y) * stride
		for x := rows.Min.X; x < rows.Max.X; x++ {
			r.depth[row+x-target.Rect.Min.X] = 1
		}
	}

	if f.skybox == nil {
		c := f.clearColor.ToVec3()
		for y := rows.Min.Y; y < rows.Max.Y; y++ {
			for x := rows.Min.X; x < rows.Max.X; x++ {
				r.write(x, y, c, ToneMappingLinear)
			}
		}
		return
	}

	for y := rows.Min.Y; y < rows.Max.Y; y++ {
		ny := 1 - 2*(float32(y-f.rect.Min.Y)+0.5)/h
		for x := rows.Min.X; x < rows.Max.X; x++ {
			nx := 2*(float32(x-f.rect.Min.X)+0.5)/w - 1
			dir := f.forward
			if !f.ortho {
				p := f.clipToWorld.MulVec4(math.NewVec4(nx, ny, 1, 1))
				dir = math.NewVec3(p.X/p.W, p.Y/p.W, p.Z/p.W).Sub(f.cameraPos).Normalized()
			}
			c, env := f.skybox.radiance(dir)
			if env {
				r.write(x, y, c.MulScalar(f.exposure), f.toneMapping)
			} else {
				r.write(x, y, c, ToneMappingLinear)
			}
		}
	}
}
