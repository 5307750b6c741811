package assets

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestDetermineAssetType(t *testing.T) {
	cases := map[string]resources.ResourceType{
		"albedo.PNG":     resources.ResourceTypeImage,
		"normal.jpeg":    resources.ResourceTypeImage,
		"scene.mtl":      resources.ResourceTypeMaterial,
		"monkey.obj":     resources.ResourceTypeMesh,
		"monkey.dae":     resources.ResourceTypeMesh,
		"pillars/sh.txt": resources.ResourceTypeIBL,
		"readme.md":      resources.ResourceTypeNone,
		"no_extension":   resources.ResourceTypeNone,
	}
	for path, want := range cases {
		assert.Equal(t, want, determineAssetType(path), path)
	}
}

func TestLoadAsset(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	defer am.Close()

	dir := t.TempDir()
	obj := filepath.Join(dir, "tri.obj")
	require.NoError(t, os.WriteFile(obj, []byte("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sh.txt"), []byte("( 1, 1, 1 );\n"), 0o644))

	res, err := am.LoadAsset(obj, nil)
	require.NoError(t, err)
	assert.Equal(t, resources.ResourceTypeMesh, res.Type)
	info, ok := am.Info(obj)
	require.True(t, ok)
	assert.Equal(t, resources.ResourceTypeMesh, info.Type)

	// a directory is an IBL
	res, err = am.LoadAsset(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Data.(*resources.IBLResourceData).Bands)

	_, err = am.LoadAsset(filepath.Join(dir, "notes.md"), nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	require.NoError(t, am.UnloadAsset(res))
	assert.Nil(t, res.Data)
}

func TestWatchAndPoll(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "sh.txt")
	require.NoError(t, os.WriteFile(path, []byte("( 0, 0, 0 );\n"), 0o644))

	var changed []string
	require.NoError(t, am.Watch(path, func(p string) { changed = append(changed, p) }))
	assert.Equal(t, 0, am.Poll())

	// writes to files nobody watches are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("( 1, 1, 1 );\n"), 0o644))

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		am.Poll()
		return len(changed) > 0
	}, 5*time.Second, 20*time.Millisecond)
	for _, p := range changed {
		assert.Equal(t, abs, p)
	}

	require.NoError(t, am.Unwatch(path))
	require.NoError(t, am.Close())
	assert.ErrorIs(t, am.Close(), ErrClosed)
	assert.ErrorIs(t, am.Watch(path, func(string) {}), ErrClosed)
}

func TestPollRunsEveryCallbackOnce(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	defer am.Close()

	path := filepath.Join(t.TempDir(), "albedo.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	abs, err := filepath.Abs(path)
	require.NoError(t, err)

	var first, second []string
	require.NoError(t, am.Watch(path, func(p string) { first = append(first, p) }))
	require.NoError(t, am.Watch(path, func(p string) {
		second = append(second, p)
		// registering from a callback must not change the batch being run
		assert.NoError(t, am.Watch(path, func(string) { t.Error("callback added during Poll ran in the same Poll") }))
	}))

	// repeated events for one file are coalesced
	am.handleFileEvent(path)
	am.handleFileEvent(path)
	assert.Equal(t, 1, am.Poll())
	assert.Equal(t, []string{abs}, first)
	assert.Equal(t, []string{abs}, second)
	assert.Equal(t, 0, am.Poll())

	require.NoError(t, am.Unwatch(path))
	am.handleFileEvent(path)
	assert.Equal(t, 0, am.Poll())
}
