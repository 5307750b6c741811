package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/resources"
)

// ModelLoader imports a mesh file, picking the importer from the extension.
type ModelLoader struct{}

func (ml *ModelLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var mesh *resources.MeshResourceData
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".obj":
		mesh, err = decodeOBJ(path)
	case ".dae":
		mesh, err = decodeCollada(path)
	default:
		return nil, fmt.Errorf("%w: mesh %s (%s)", core.ErrUnsupportedFormat, path, ext)
	}
	if err != nil {
		return nil, err
	}
	for _, w := range mesh.Warnings {
		core.LogDebug("%s: %s", path, w)
	}
	return &resources.Resource{
		Type:     resources.ResourceTypeMesh,
		Name:     strings.TrimSuffix(info.Name(), filepath.Ext(path)),
		FullPath: path,
		DataSize: uint64(info.Size()),
		Data:     mesh,
	}, nil
}

func (ml *ModelLoader) Unload(r *resources.Resource) error {
	r.Data = nil
	return nil
}
