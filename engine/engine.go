package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spaghettifunk/anima-samples/engine/assets"
	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/platform"
	"github.com/spaghettifunk/anima-samples/engine/renderer"
	"github.com/spaghettifunk/anima-samples/engine/renderer/components"
	"github.com/spaghettifunk/anima-samples/engine/renderer/vulkan"
	"github.com/spaghettifunk/anima-samples/engine/resources"
)

type Stage uint8

const (
	// Application is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Window, presenter and views are being created
	EngineStageInitializing
	// The caller's setup has run
	EngineStageInitialized
	// Frames are being produced
	EngineStageRunning
	// The caller's cleanup and the teardown are running
	EngineStageShuttingDown
)

const (
	cameraFov  float32 = 45
	cameraNear float32 = 0.1
	cameraFar  float32 = 100
	// how often the window title shows the frame rate, in seconds
	titleInterval = 1.0
)

// pane is a view with the camera it owns.
type pane struct {
	view   *renderer.View
	camera *renderer.Camera
}

/**
 * @brief Application owns the window, the engine and the views of a sample.
 * The main view looks at the scene through an orbit camera driven by the
 * mouse; the split view adds three fixed cameras around it.
 */
type Application struct {
	config       ApplicationConfig
	currentStage Stage
	isRunning    bool
	isSuspended  bool

	platform     *platform.Platform
	presenter    renderer.Presenter
	assetManager *assets.AssetManager
	clock        *core.Clock
	metrics      *core.Metrics
	lastTime     float64
	titleTime    float64

	engine   *renderer.Engine
	renderer *renderer.Renderer
	scene    *renderer.Scene
	panes    []pane
	orbit    *components.OrbitCamera

	indirectLight *renderer.IndirectLight
	skybox        *renderer.Skybox

	width  uint32
	height uint32
	frame  *image.RGBA

	animate Animate
	leaks   int
}

// New validates config and creates the engine of an application.
func New(config ApplicationConfig) (*Application, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	level, _ := core.ParseLogLevel(config.LogLevel)
	core.SetLogLevel(level)

	am, err := assets.NewAssetManager()
	if err != nil {
		return nil, err
	}
	e, err := renderer.NewEngine(0)
	if err != nil {
		am.Close()
		return nil, err
	}

	return &Application{
		config:       config,
		currentStage: EngineStageUninitialized,
		assetManager: am,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		engine:       e,
		orbit:        components.NewOrbitCamera(math.NewVec3(0, 0, -4)),
		width:        config.Width,
		height:       config.Height,
	}, nil
}

// Run creates an application for config and runs it.
func Run(config ApplicationConfig, setup Setup, cleanup Cleanup) error {
	app, err := New(config)
	if err != nil {
		return err
	}
	return app.Run(setup, cleanup)
}

func (a *Application) Config() ApplicationConfig {
	return a.config
}

// SetAnimate installs a callback invoked before every frame.
func (a *Application) SetAnimate(fn Animate) {
	a.animate = fn
}

// Watch calls fn before a frame whenever the file at path changes. It does
// nothing unless the configuration enables watching.
func (a *Application) Watch(path string, fn func(path string)) error {
	if !a.config.Watch {
		return nil
	}
	return a.assetManager.Watch(path, fn)
}

// Leaks returns the number of engine objects left alive by the last Run.
func (a *Application) Leaks() int {
	return a.leaks
}

/**
 * @brief Run opens the window (or the offscreen frame when headless), calls
 * setup once, renders until the window is closed, Esc is pressed or the
 * process is interrupted, then calls cleanup once and tears everything down.
 */
func (a *Application) Run(setup Setup, cleanup Cleanup) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.currentStage = EngineStageInitializing
	if err := core.InputInitialize(); err != nil {
		return err
	}
	if !core.EventInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	defer func() {
		err = errors.Join(err, a.shutdown())
	}()

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, a, a.onEvent)
	core.EventRegister(core.EVENT_CODE_KEY_PRESSED, a, a.onKey)
	core.EventRegister(core.EVENT_CODE_RESIZED, a, a.onResized)
	core.EventRegister(core.EVENT_CODE_BUTTON_PRESSED, a, a.onButton)
	core.EventRegister(core.EVENT_CODE_BUTTON_RELEASED, a, a.onButton)
	core.EventRegister(core.EVENT_CODE_MOUSE_MOVED, a, a.onMouseMoved)
	core.EventRegister(core.EVENT_CODE_MOUSE_WHEEL, a, a.onMouseWheel)

	if !a.config.Headless {
		if err := a.startWindow(); err != nil {
			return err
		}
	}

	a.renderer = a.engine.CreateRenderer()
	a.scene = a.engine.CreateScene()
	a.createPanes()
	a.layout(a.width, a.height)
	if err := a.loadIBL(); err != nil {
		return err
	}

	if err := setup(a.engine, a.mainView(), a.scene); err != nil {
		core.LogError("setup failed: %v", err)
		cleanup(a.engine, a.mainView(), a.scene)
		return err
	}
	a.currentStage = EngineStageInitialized

	a.isRunning = true
	a.currentStage = EngineStageRunning
	if a.config.Headless {
		err = a.runHeadless(ctx)
	} else {
		err = a.runWindowed(ctx)
	}

	a.currentStage = EngineStageShuttingDown
	cleanup(a.engine, a.mainView(), a.scene)
	return err
}

func (a *Application) startWindow() error {
	a.platform = platform.New()
	if err := a.platform.Startup(a.config.Title, a.config.StartPosX, a.config.StartPosY, a.config.Width, a.config.Height); err != nil {
		return err
	}
	// the framebuffer can be larger than the window on high density displays
	if w, h := a.platform.FramebufferSize(); w > 0 && h > 0 {
		a.width, a.height = w, h
	}
	a.presenter = vulkan.New(a.platform, a.config.VSync, a.config.Debug)
	return a.presenter.Initialize(a.config.Title, a.width, a.height)
}

func (a *Application) runHeadless(ctx context.Context) error {
	for i := uint32(0); i < a.config.Frames && a.isRunning; i++ {
		if ctx.Err() != nil {
			core.LogInfo("interrupted after %d frame(s)", i)
			break
		}
		a.assetManager.Poll()
		if err := a.renderFrame(ctx, float64(i)/60.0); err != nil {
			return err
		}
	}
	if a.config.Snapshot == "" {
		return nil
	}
	if err := writeSnapshot(a.config.Snapshot, a.frame); err != nil {
		return err
	}
	core.LogInfo("wrote %s", a.config.Snapshot)
	return nil
}

func (a *Application) runWindowed(ctx context.Context) error {
	a.clock.Start()
	a.clock.Update()
	a.lastTime = a.clock.Elapsed()

	for a.isRunning {
		if ctx.Err() != nil || !a.platform.PumpMessages() {
			break
		}
		if a.isSuspended {
			a.platform.Sleep(10)
			continue
		}

		// Update clock and get delta time.
		a.clock.Update()
		currentTime := a.clock.Elapsed()
		delta := currentTime - a.lastTime
		frameStartTime := platform.GetAbsoluteTime()

		a.assetManager.Poll()
		if err := a.renderFrame(ctx, currentTime); err != nil {
			return err
		}
		stats := a.renderer.GetStats()
		renderer.DrawHUD(a.frame, []string{
			a.config.Title,
			fmt.Sprintf("%.1f fps  %.2f ms", a.metrics.FPS(), a.metrics.FrameTime()),
			fmt.Sprintf("%d renderables  %d culled  %d triangles", stats.Renderables, stats.Culled, stats.Triangles),
		})
		if err := a.presenter.Present(a.frame); err != nil {
			return err
		}

		a.metrics.Update(platform.GetAbsoluteTime() - frameStartTime)
		if currentTime-a.titleTime >= titleInterval {
			a.platform.SetTitle(fmt.Sprintf("%s - %.0f fps", a.config.Title, a.metrics.FPS()))
			a.titleTime = currentTime
		}

		// Input state is copied last, after everything that reads it.
		core.InputUpdate(delta)
		a.lastTime = currentTime
	}
	return nil
}

// renderFrame draws every pane into the frame.
func (a *Application) renderFrame(ctx context.Context, now float64) error {
	if a.animate != nil {
		a.animate(a.engine, a.mainView(), now)
	}
	if a.orbit.IsDirty {
		a.panes[0].camera.SetModelMatrix(a.orbit.GetView().Inverse())
	}

	if !a.renderer.BeginFrame(a.frame) {
		return nil
	}
	defer a.renderer.EndFrame()
	for _, p := range a.panes {
		if err := a.renderer.Render(ctx, p.view); err != nil {
			return err
		}
	}
	return nil
}

func (a *Application) mainView() *renderer.View {
	return a.panes[0].view
}

func (a *Application) createPanes() {
	names := []string{"main"}
	if a.config.SplitView {
		names = append(names, "god", "side", "front")
	}
	em := a.engine.GetEntityManager()
	for _, name := range names {
		v := a.engine.CreateView()
		v.SetName(name)
		v.SetScene(a.scene)
		c := a.engine.CreateCamera(em.Create())
		v.SetCamera(c)
		a.panes = append(a.panes, pane{view: v, camera: c})
	}

	a.panes[0].camera.SetModelMatrix(a.orbit.GetView().Inverse())
	if a.config.SplitView {
		target := math.NewVec3(0, 0, -4)
		a.panes[1].camera.LookAt(math.NewVec3(0, 12, -4), target, math.NewVec3(0, 0, -1))
		a.panes[2].camera.LookAt(math.NewVec3(8, 0, -4), target, math.NewVec3(0, 1, 0))
		a.panes[3].camera.LookAt(math.NewVec3(0, 0, 4), target, math.NewVec3(0, 1, 0))
	}
}

/**
 * @brief layout sizes the frame and the viewports for a width x height
 * target. The split view puts the main view top left, the god view top right,
 * the side view bottom left and the front view bottom right.
 */
func (a *Application) layout(width, height uint32) {
	a.width, a.height = width, height
	a.frame = image.NewRGBA(image.Rect(0, 0, int(width), int(height)))

	if !a.config.SplitView {
		a.setViewport(a.panes[0], renderer.Viewport{Width: width, Height: height})
		return
	}
	w, h := width/2, height/2
	a.setViewport(a.panes[0], renderer.Viewport{Left: 0, Bottom: int32(h), Width: w, Height: height - h})
	a.setViewport(a.panes[1], renderer.Viewport{Left: int32(w), Bottom: int32(h), Width: width - w, Height: height - h})
	a.setViewport(a.panes[2], renderer.Viewport{Left: 0, Bottom: 0, Width: w, Height: h})
	a.setViewport(a.panes[3], renderer.Viewport{Left: int32(w), Bottom: 0, Width: width - w, Height: h})
}

func (a *Application) setViewport(p pane, vp renderer.Viewport) {
	p.view.SetViewport(vp)
	aspect := float32(1)
	if vp.Height > 0 {
		aspect = float32(vp.Width) / float32(vp.Height)
	}
	p.camera.SetProjection(cameraFov, aspect, cameraNear, cameraFar, renderer.FovVertical)
}

// loadIBL installs the environment of the configured directory, if any.
func (a *Application) loadIBL() error {
	if a.config.IBLDirectory == "" {
		return nil
	}
	res, err := a.assetManager.LoadAsset(a.config.IBLDirectory, nil)
	if err != nil {
		return fmt.Errorf("ibl %s: %w", a.config.IBLDirectory, err)
	}
	defer a.assetManager.UnloadAsset(res)
	data := res.Data.(*resources.IBLResourceData)

	il, err := renderer.NewIndirectLightBuilder().
		Irradiance(data.Bands, data.SH).
		Intensity(renderer.DefaultIBLIntensity).
		Build(a.engine)
	if err != nil {
		return err
	}
	sky, err := renderer.NewSkyboxBuilder().Environment(il).Build(a.engine)
	if err != nil {
		a.engine.DestroyIndirectLight(il)
		return err
	}
	a.swapIBL(il, sky)

	return a.Watch(filepath.Join(a.config.IBLDirectory, "sh.txt"), func(string) {
		if err := a.reloadIBL(); err != nil {
			core.LogWarn("keeping the previous environment: %v", err)
		}
	})
}

func (a *Application) reloadIBL() error {
	res, err := a.assetManager.LoadAsset(a.config.IBLDirectory, nil)
	if err != nil {
		return err
	}
	defer a.assetManager.UnloadAsset(res)
	data := res.Data.(*resources.IBLResourceData)

	il, err := renderer.NewIndirectLightBuilder().
		Irradiance(data.Bands, data.SH).
		Intensity(a.indirectLight.GetIntensity()).
		Build(a.engine)
	if err != nil {
		return err
	}
	sky, err := renderer.NewSkyboxBuilder().Environment(il).Build(a.engine)
	if err != nil {
		a.engine.DestroyIndirectLight(il)
		return err
	}
	a.swapIBL(il, sky)
	return nil
}

// swapIBL makes il and sky the environment of the scene and destroys the
// previous ones.
func (a *Application) swapIBL(il *renderer.IndirectLight, sky *renderer.Skybox) {
	oldIL, oldSky := a.indirectLight, a.skybox
	a.indirectLight, a.skybox = il, sky
	a.scene.SetIndirectLight(il)
	a.scene.SetSkybox(sky)
	if oldSky != nil {
		a.engine.DestroySkybox(oldSky)
	}
	if oldIL != nil {
		a.engine.DestroyIndirectLight(oldIL)
	}
}

func (a *Application) shutdown() error {
	var errs []error
	if a.skybox != nil {
		errs = append(errs, a.engine.DestroySkybox(a.skybox))
		a.skybox = nil
	}
	if a.indirectLight != nil {
		errs = append(errs, a.engine.DestroyIndirectLight(a.indirectLight))
		a.indirectLight = nil
	}
	em := a.engine.GetEntityManager()
	for _, p := range a.panes {
		errs = append(errs, a.engine.DestroyView(p.view), a.engine.DestroyCamera(p.camera))
		em.Destroy(p.camera.GetEntity())
	}
	a.panes = nil
	if a.scene != nil {
		errs = append(errs, a.engine.DestroyScene(a.scene))
		a.scene = nil
	}
	if a.renderer != nil {
		errs = append(errs, a.engine.DestroyRenderer(a.renderer))
		a.renderer = nil
	}

	for kind, n := range a.engine.Leaks() {
		core.LogWarn("%d %s(s) were not destroyed", n, kind)
	}
	a.leaks = a.engine.Shutdown()

	if a.presenter != nil {
		errs = append(errs, a.presenter.Shutdown())
		a.presenter = nil
	}
	if a.platform != nil {
		errs = append(errs, a.platform.Shutdown())
		a.platform = nil
	}
	if err := a.assetManager.Close(); err != nil && !errors.Is(err, assets.ErrClosed) {
		errs = append(errs, err)
	}
	errs = append(errs, core.EventShutdown(), core.InputShutdown())
	a.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

func (a *Application) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		a.isRunning = false
		return true
	}
	return false
}

func (a *Application) onKey(context core.EventContext) bool {
	ke := context.Data.(*core.KeyEvent)
	if ke.KeyCode == core.KEY_ESCAPE {
		// NOTE: Technically firing an event to itself, but there may be other listeners.
		core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
		return true
	}
	return false
}

func (a *Application) onResized(context core.EventContext) bool {
	se := context.Data.(*core.SystemEvent)
	width, height := se.WindowWidth, se.WindowHeight
	if width == a.width && height == a.height && !a.isSuspended {
		return false
	}

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		a.isSuspended = true
		return true
	}
	if a.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		a.isSuspended = false
	}
	a.layout(width, height)
	if a.presenter != nil {
		a.presenter.Resized(width, height)
	}
	return false
}

func (a *Application) onButton(context core.EventContext) bool {
	me := context.Data.(*core.MouseEvent)
	if me.Button != core.BUTTON_LEFT {
		return false
	}
	if context.Type == core.EVENT_CODE_BUTTON_PRESSED {
		a.orbit.GrabBegin(me.PosX, me.PosY)
	} else {
		a.orbit.GrabEnd()
	}
	return true
}

func (a *Application) onMouseMoved(context core.EventContext) bool {
	if !a.orbit.IsGrabbing() {
		return false
	}
	me := context.Data.(*core.MouseEvent)
	a.orbit.GrabUpdate(me.PosX, me.PosY)
	return true
}

func (a *Application) onMouseWheel(context core.EventContext) bool {
	me := context.Data.(*core.MouseEvent)
	a.orbit.Scroll(float32(me.Scroll))
	return true
}

func writeSnapshot(path string, img image.Image) error {
	if img == nil {
		return core.ErrNoFrame
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
