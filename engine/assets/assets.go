package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-samples/engine/assets/loaders"
	"github.com/spaghettifunk/anima-samples/engine/containers"
	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/resources"
)

// maximum number of distinct changed files waiting for Poll
const pendingCapacity = 64

var ErrClosed = errors.New("asset manager already closed")

type AssetInfo struct {
	Path       string
	Type       resources.ResourceType
	LastLoaded time.Time
}

/**
 * @brief AssetManager loads assets through the loader registered for their
 * type and watches files for changes. Change notifications are queued by a
 * background goroutine and delivered by Poll, on the caller's goroutine.
 */
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[resources.ResourceType]Loader

	mutex    sync.Mutex
	watchers map[string][]func(path string)
	dirs     map[string]int
	pending  *containers.RingQueue[string]
	queued   map[string]bool

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[resources.ResourceType]Loader),
		watchers: make(map[string][]func(string)),
		dirs:     make(map[string]int),
		pending:  containers.NewRingQueue[string](pendingCapacity),
		queued:   make(map[string]bool),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	// Register loaders
	am.registerLoader(resources.ResourceTypeImage, &loaders.ImageLoader{})
	am.registerLoader(resources.ResourceTypeMaterial, &loaders.MaterialLoader{})
	am.registerLoader(resources.ResourceTypeMesh, &loaders.ModelLoader{})
	am.registerLoader(resources.ResourceTypeIBL, &loaders.IBLLoader{})

	go am.start()
	return am, nil
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType resources.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadAsset loads path with the loader matching its extension. Directories
// are loaded as IBLs.
func (am *AssetManager) LoadAsset(path string, params interface{}) (*resources.Resource, error) {
	assetType := determineAssetType(path)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		assetType = resources.ResourceTypeIBL
	}
	return am.Load(path, assetType, params)
}

// Load an asset using the loader of the given type
func (am *AssetManager) Load(path string, assetType resources.ResourceType, params interface{}) (*resources.Resource, error) {
	loader, loaderExists := am.loaders[assetType]
	if !loaderExists {
		return nil, fmt.Errorf("%w: no loader registered for %s (%s)", core.ErrUnsupportedFormat, path, assetType)
	}
	res, err := loader.Load(path, params)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	am.assets[path] = AssetInfo{Path: path, Type: assetType, LastLoaded: time.Now()}
	am.mutex.Unlock()
	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *resources.Resource) error {
	if asset == nil {
		return nil
	}
	am.mutex.Lock()
	delete(am.assets, asset.FullPath)
	am.mutex.Unlock()
	if loader, ok := am.loaders[asset.Type]; ok {
		return loader.Unload(asset)
	}
	return nil
}

// Info returns what is known about a loaded asset.
func (am *AssetManager) Info(path string) (AssetInfo, bool) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	info, ok := am.assets[path]
	return info, ok
}

/**
 * @brief Watch calls fn from Poll whenever the file at path is created or
 * written. The parent directory is watched, so files replaced by editors
 * keep being tracked.
 */
func (am *AssetManager) Watch(path string, fn func(path string)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return ErrClosed
	}
	if am.dirs[dir] == 0 {
		if err := am.fsnotify.Add(dir); err != nil {
			return err
		}
	}
	am.dirs[dir]++
	am.watchers[abs] = append(am.watchers[abs], fn)
	core.LogDebug("watching %s", abs)
	return nil
}

// Unwatch drops every callback registered for path.
func (am *AssetManager) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	am.mutex.Lock()
	defer am.mutex.Unlock()
	n := len(am.watchers[abs])
	if n == 0 {
		return nil
	}
	delete(am.watchers, abs)
	am.dirs[dir] -= n
	if am.dirs[dir] <= 0 {
		delete(am.dirs, dir)
		if !am.isClosed {
			return am.fsnotify.Remove(dir)
		}
	}
	return nil
}

// Poll runs the callbacks of every watched file changed since the last call
// and returns how many files changed.
func (am *AssetManager) Poll() int {
	type call struct {
		path string
		fns  []func(string)
	}
	var calls []call

	am.mutex.Lock()
	for !am.pending.IsEmpty() {
		path, _ := am.pending.Dequeue()
		delete(am.queued, path)
		calls = append(calls, call{path: path, fns: slices.Clone(am.watchers[path])})
	}
	am.mutex.Unlock()

	for _, c := range calls {
		core.LogInfo("asset changed: %s", c.path)
		for _, fn := range c.fns {
			fn(c.path)
		}
	}
	return len(calls)
}

func (am *AssetManager) Close() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return ErrClosed
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	<-am.stopped
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	if len(am.watchers[abs]) == 0 || am.queued[abs] {
		return
	}
	if err := am.pending.Enqueue(abs); err != nil {
		core.LogWarn("dropping change of %s: %v", abs, err)
		return
	}
	am.queued[abs] = true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}

func determineAssetType(path string) resources.ResourceType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return resources.ResourceTypeImage
	case ".mtl":
		return resources.ResourceTypeMaterial
	case ".obj", ".dae", ".fbx":
		return resources.ResourceTypeMesh
	case ".txt":
		return resources.ResourceTypeIBL
	default:
		return resources.ResourceTypeNone
	}
}
