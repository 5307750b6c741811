package resources

import "github.com/spaghettifunk/anima-samples/engine/math"

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Unknown resource type; nothing can load it. */
	ResourceTypeNone ResourceType = iota
	/** @brief Image resource type. */
	ResourceTypeImage
	/** @brief Material library resource type (.mtl). */
	ResourceTypeMaterial
	/** @brief Mesh resource type (collection of geometry groups). */
	ResourceTypeMesh
	/** @brief Image based lighting resource type (a directory with sh.txt). */
	ResourceTypeIBL
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeImage:
		return "image"
	case ResourceTypeMaterial:
		return "material"
	case ResourceTypeMesh:
		return "mesh"
	case ResourceTypeIBL:
		return "ibl"
	}
	return "none"
}

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The resource type. */
	Type ResourceType
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource on disk, in bytes. */
	DataSize uint64
	/** @brief The resource data, one of the *ResourceData types below. */
	Data interface{}
}

/**
 * @brief A structure to hold image resource data.
 */
type ImageResourceData struct {
	/** @brief The number of channels. */
	ChannelCount uint8
	/** @brief The width of the image. */
	Width uint32
	/** @brief The height of the image. */
	Height uint32
	/** @brief The pixel data of the image, tightly packed rows. */
	Pixels []uint8
}

/** @brief Parameters used when loading an image. */
type ImageResourceParams struct {
	/** @brief Indicates if the image should be flipped on the y-axis when loaded. */
	FlipY bool
	/** @brief Number of channels to expand or reduce the pixels to, 3 or 4. */
	ChannelCount uint8
}

/**
 * @brief A material as described by a mesh file, already mapped to the
 * metallic/roughness model.
 */
type MaterialResourceData struct {
	Name      string
	BaseColor math.Vec3
	Metallic  float32
	Roughness float32
	/** @brief Base color texture, relative to the mesh file. */
	BaseColorMap string
}

// DefaultMaterialData is used by geometry that names no known material.
var DefaultMaterialData = MaterialResourceData{
	Name:      "default",
	BaseColor: math.NewVec3(0.63, 0.63, 0.63),
	Metallic:  0,
	Roughness: 0.7,
}

/**
 * @brief One material group of a mesh: the triangles drawn with one material.
 */
type GeometryGroup struct {
	Name     string
	Material string
	Vertices []math.Vertex3D
	Indices  []uint32
	Extents  math.Extents3D
}

/**
 * @brief MeshResourceData is what the mesh importers produce: geometry split
 * by material, with node transforms already applied to the vertices.
 */
type MeshResourceData struct {
	Groups    []GeometryGroup
	Materials map[string]*MaterialResourceData
	/** @brief Non fatal problems met while importing. */
	Warnings []string
}

// Extents returns the bounds of every group of the mesh.
func (m *MeshResourceData) Extents() math.Extents3D {
	var out math.Extents3D
	for i, g := range m.Groups {
		if i == 0 {
			out = g.Extents
			continue
		}
		out = out.Expand(g.Extents.Min).Expand(g.Extents.Max)
	}
	return out
}

/**
 * @brief Image based lighting: the irradiance spherical harmonics produced
 * by cmgen, 9 coefficients for 3 bands.
 */
type IBLResourceData struct {
	Bands int
	SH    []math.Vec3
}
