package engine

import (
	"errors"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func headlessConfig(t *testing.T) ApplicationConfig {
	cfg := DefaultApplicationConfig()
	cfg.Headless = true
	cfg.Width = 48
	cfg.Height = 32
	cfg.Frames = 2
	cfg.LogLevel = "error"
	cfg.Snapshot = filepath.Join(t.TempDir(), "frame.png")
	return cfg
}

// quadScene adds a lit quad facing the camera and removes it again.
type quadScene struct {
	light    renderer.Entity
	quad     renderer.Entity
	setups   int
	cleanups int
}

func (qs *quadScene) setup(e *renderer.Engine, view *renderer.View, scene *renderer.Scene) error {
	qs.setups++
	em := e.GetEntityManager()
	qs.light = em.Create()
	err := renderer.NewLightBuilder(renderer.LightTypeDirectional).
		Color(math.NewVec3(1, 1, 1)).
		Intensity(110000).
		Direction(math.NewVec3(0, 0, -1)).
		Build(e, qs.light)
	if err != nil {
		return err
	}
	scene.AddEntity(qs.light)

	vertices := []math.Vertex3D{
		{Position: math.NewVec3(-1, -1, -4), Normal: math.NewVec3(0, 0, 1)},
		{Position: math.NewVec3(1, -1, -4), Normal: math.NewVec3(0, 0, 1)},
		{Position: math.NewVec3(1, 1, -4), Normal: math.NewVec3(0, 0, 1)},
		{Position: math.NewVec3(-1, 1, -4), Normal: math.NewVec3(0, 0, 1)},
	}
	qs.quad = em.Create()
	err = renderer.NewRenderableBuilder(1).
		BoundingBox(math.Extents3D{Min: math.NewVec3(-1, -1, -4), Max: math.NewVec3(1, 1, -4)}).
		Geometry(0, vertices, []uint32{0, 1, 2, 0, 2, 3}).
		Material(0, e.GetDefaultMaterial().GetDefaultInstance()).
		Build(e, qs.quad)
	if err != nil {
		return err
	}
	scene.AddEntity(qs.quad)
	return nil
}

func (qs *quadScene) cleanup(e *renderer.Engine, view *renderer.View, scene *renderer.Scene) {
	qs.cleanups++
	em := e.GetEntityManager()
	for _, entity := range []renderer.Entity{qs.quad, qs.light} {
		if entity.IsNull() {
			continue
		}
		scene.Remove(entity)
		e.DestroyEntity(entity)
		em.Destroy(entity)
	}
}

func TestHeadlessRunWritesSnapshot(t *testing.T) {
	cfg := headlessConfig(t)
	app, err := New(cfg)
	require.NoError(t, err)

	qs := &quadScene{}
	var frames []float64
	app.SetAnimate(func(e *renderer.Engine, view *renderer.View, now float64) {
		frames = append(frames, now)
	})
	require.NoError(t, app.Run(qs.setup, qs.cleanup))

	assert.Equal(t, 1, qs.setups)
	assert.Equal(t, 1, qs.cleanups)
	assert.Len(t, frames, 2)
	assert.Equal(t, 0, app.Leaks())

	f, err := os.Open(cfg.Snapshot)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 48, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())

	// the quad covers the center of the frame, the corners see the clear color
	_, _, _, a := img.At(24, 16).RGBA()
	assert.NotZero(t, a)
	r, g, b, _ := img.At(24, 16).RGBA()
	assert.NotZero(t, r+g+b)
	r, g, b, _ = img.At(0, 0).RGBA()
	assert.Zero(t, r+g+b)
}

func TestHeadlessSplitViewAndIBL(t *testing.T) {
	cfg := headlessConfig(t)
	cfg.SplitView = true
	cfg.Frames = 1
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sh.txt"), []byte("( 0.2, 0.2, 0.2 );\n"), 0o644))
	cfg.IBLDirectory = dir

	app, err := New(cfg)
	require.NoError(t, err)
	var seen *renderer.Scene
	setup := func(e *renderer.Engine, view *renderer.View, scene *renderer.Scene) error {
		seen = scene
		assert.Equal(t, "main", view.GetName())
		assert.Equal(t, renderer.Viewport{Left: 0, Bottom: 16, Width: 24, Height: 16}, view.GetViewport())
		assert.NotNil(t, scene.GetIndirectLight())
		assert.NotNil(t, scene.GetSkybox())
		return nil
	}
	require.NoError(t, app.Run(setup, func(*renderer.Engine, *renderer.View, *renderer.Scene) {}))
	require.NotNil(t, seen)
	assert.Equal(t, 0, app.Leaks())
	assert.Len(t, app.panes, 0)
}

func TestSetupErrorStillCleansUp(t *testing.T) {
	cfg := headlessConfig(t)
	app, err := New(cfg)
	require.NoError(t, err)

	boom := errors.New("boom")
	cleanups := 0
	err = app.Run(
		func(*renderer.Engine, *renderer.View, *renderer.Scene) error { return boom },
		func(*renderer.Engine, *renderer.View, *renderer.Scene) { cleanups++ },
	)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, cleanups)
	assert.NoFileExists(t, cfg.Snapshot)
}

func TestMissingIBLFails(t *testing.T) {
	cfg := headlessConfig(t)
	cfg.IBLDirectory = filepath.Join(t.TempDir(), "nowhere")
	setups := 0
	err := Run(cfg, func(*renderer.Engine, *renderer.View, *renderer.Scene) error {
		setups++
		return nil
	}, func(*renderer.Engine, *renderer.View, *renderer.Scene) {})
	assert.Error(t, err)
	assert.Zero(t, setups)
}

func TestLoadApplicationConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
title = "pbr"
width = 800
split_view = true
scale = 2.5
log_level = "debug"
`), 0o644))

	cfg := DefaultApplicationConfig()
	require.NoError(t, LoadApplicationConfig(path, &cfg))
	assert.Equal(t, "pbr", cfg.Title)
	assert.Equal(t, uint32(800), cfg.Width)
	// untouched keys keep their default
	assert.Equal(t, uint32(640), cfg.Height)
	assert.True(t, cfg.SplitView)
	assert.True(t, cfg.VSync)
	assert.InDelta(t, 2.5, cfg.Scale, 1e-6)
	require.NoError(t, cfg.Validate())

	require.NoError(t, os.WriteFile(path, []byte("colour = \"red\"\n"), 0o644))
	assert.Error(t, LoadApplicationConfig(path, &cfg))
	assert.Error(t, LoadApplicationConfig(filepath.Join(t.TempDir(), "missing.toml"), &cfg))
}

func TestValidateApplicationConfig(t *testing.T) {
	cfg := DefaultApplicationConfig()
	cfg.Frames = 0
	cfg.Scale = -1
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint32(1), cfg.Frames)
	assert.Equal(t, float32(1), cfg.Scale)

	cfg.LogLevel = "chatty"
	assert.Error(t, cfg.Validate())

	cfg = DefaultApplicationConfig()
	cfg.Height = 0
	assert.Error(t, cfg.Validate())
}
