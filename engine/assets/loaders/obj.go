package loaders

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/resources"
)

const (
	blanks   = "\r\n\t "
	noIndex  = -1
	objType  = "obj"
	defaultM = "default"
)

type objFace struct {
	vertices []int
	uvs      []int
	normals  []int
	material string
}

type objObject struct {
	name  string
	faces []objFace
}

// objDecoder holds the state of one .obj file being parsed.
type objDecoder struct {
	dir        string
	matlib     string
	objects    []objObject
	positions  []math.Vec3
	normals    []math.Vec3
	uvs        []math.Vec2
	warnings   []string
	line       uint
	objCurrent *objObject
	matCurrent string
}

// decodeOBJ reads a Wavefront OBJ file and the material library it names.
func decodeOBJ(path string) (*resources.MeshResourceData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := &objDecoder{dir: filepath.Dir(path), matCurrent: defaultM}
	if err := dec.parse(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dec.mesh()
}

// parse reads the lines from the specified reader and dispatches them.
func (dec *objDecoder) parse(reader io.Reader) error {
	bufin := bufio.NewReader(reader)
	dec.line = 1
	for {
		// Reads next line and abort on errors (not EOF)
		line, err := bufin.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if perr := dec.parseLine(strings.Trim(line, blanks)); perr != nil {
			return perr
		}
		if err == io.EOF {
			break
		}
		dec.line++
	}
	return nil
}

func (dec *objDecoder) parseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	switch fields[0] {
	case "mtllib":
		if len(fields) < 2 {
			return dec.formatError("mtllib with no fields")
		}
		dec.matlib = strings.Join(fields[1:], " ")
	// groups are treated as objects
	case "o", "g":
		name := fmt.Sprintf("unnamed%d", dec.line)
		if len(fields) > 1 {
			name = fields[1]
		}
		dec.objects = append(dec.objects, objObject{name: name})
		dec.objCurrent = &dec.objects[len(dec.objects)-1]
	case "v":
		v, err := dec.floats(fields[1:], 3)
		if err != nil {
			return err
		}
		dec.positions = append(dec.positions, math.NewVec3(v[0], v[1], v[2]))
	case "vn":
		v, err := dec.floats(fields[1:], 3)
		if err != nil {
			return err
		}
		dec.normals = append(dec.normals, math.NewVec3(v[0], v[1], v[2]))
	case "vt":
		v, err := dec.floats(fields[1:], 2)
		if err != nil {
			return err
		}
		dec.uvs = append(dec.uvs, math.NewVec2(v[0], v[1]))
	case "f":
		return dec.parseFace(fields[1:])
	case "usemtl":
		if len(fields) < 2 {
			return dec.formatError("usemtl with no fields")
		}
		dec.matCurrent = fields[1]
	case "s", "l", "p":
		// smoothing groups come from the normals; lines and points are not drawn
	default:
		dec.appendWarn("field not supported: " + fields[0])
	}
	return nil
}

func (dec *objDecoder) floats(fields []string, n int) ([]float32, error) {
	v, err := parseFloats(fields, n)
	if err != nil {
		return nil, dec.formatError(err.Error())
	}
	return v, nil
}

// resolve turns a 1-based or negative (relative) OBJ index into a 0-based one.
func (dec *objDecoder) resolve(field string, count int) (int, error) {
	val, err := strconv.Atoi(field)
	if err != nil {
		return 0, dec.formatError(err.Error())
	}
	var i int
	switch {
	case val > 0:
		i = val - 1
	case val < 0:
		i = count + val
	default:
		return 0, dec.formatError("face index equal to 0")
	}
	if i < 0 || i >= count {
		return 0, dec.formatError(fmt.Sprintf("face index %d out of range", val))
	}
	return i, nil
}

// parseFace parses a face description line:
// f v1[/vt1][/vn1] v2[/vt2][/vn2] v3[/vt3][/vn3] ...
func (dec *objDecoder) parseFace(fields []string) error {
	if dec.objCurrent == nil {
		dec.objects = append(dec.objects, objObject{name: fmt.Sprintf("unnamed%d", dec.line)})
		dec.objCurrent = &dec.objects[len(dec.objects)-1]
	}
	if len(fields) < 3 {
		return dec.formatError("face line with less than 3 fields")
	}

	face := objFace{
		vertices: make([]int, len(fields)),
		uvs:      make([]int, len(fields)),
		normals:  make([]int, len(fields)),
		material: dec.matCurrent,
	}
	for pos, f := range fields {
		parts := strings.Split(f, "/")
		var err error
		if face.vertices[pos], err = dec.resolve(parts[0], len(dec.positions)); err != nil {
			return err
		}
		face.uvs[pos], face.normals[pos] = noIndex, noIndex
		if len(parts) > 1 && parts[1] != "" {
			if face.uvs[pos], err = dec.resolve(parts[1], len(dec.uvs)); err != nil {
				return err
			}
		}
		if len(parts) > 2 && parts[2] != "" {
			if face.normals[pos], err = dec.resolve(parts[2], len(dec.normals)); err != nil {
				return err
			}
		}
	}
	dec.objCurrent.faces = append(dec.objCurrent.faces, face)
	return nil
}

type objVertexKey struct {
	v, vt, vn int
}

// mesh splits the decoded objects into one geometry group per run of faces
// sharing a material.
func (dec *objDecoder) mesh() (*resources.MeshResourceData, error) {
	out := &resources.MeshResourceData{Materials: make(map[string]*resources.MaterialResourceData)}
	if dec.matlib != "" {
		lib := dec.matlib
		if !filepath.IsAbs(lib) {
			lib = filepath.Join(dec.dir, lib)
		}
		res, err := (&MaterialLoader{}).Load(lib, nil)
		if err != nil {
			dec.appendWarn(fmt.Sprintf("material library %s: %v", dec.matlib, err))
		} else {
			for k, v := range res.Data.(map[string]*resources.MaterialResourceData) {
				out.Materials[k] = v
			}
		}
	}

	for oi := range dec.objects {
		obj := &dec.objects[oi]
		var group *resources.GeometryGroup
		var index map[objVertexKey]uint32
		missingNormals := false

		flush := func() {
			if group == nil || len(group.Indices) == 0 {
				return
			}
			if missingNormals {
				math.GeometryGenerateNormals(group.Vertices, group.Indices)
			}
			group.Extents = math.GeometryComputeExtents(group.Vertices)
			out.Groups = append(out.Groups, *group)
		}

		for fi := range obj.faces {
			face := &obj.faces[fi]
			if group == nil || face.material != group.Material {
				flush()
				group = &resources.GeometryGroup{
					Name:     fmt.Sprintf("%s_%d", obj.name, len(out.Groups)),
					Material: face.material,
				}
				index = make(map[objVertexKey]uint32)
				missingNormals = false
			}

			corner := func(k int) uint32 {
				key := objVertexKey{face.vertices[k], face.uvs[k], face.normals[k]}
				if i, ok := index[key]; ok {
					return i
				}
				vx := math.Vertex3D{Position: dec.positions[key.v]}
				if key.vn != noIndex {
					vx.Normal = dec.normals[key.vn]
				} else {
					missingNormals = true
				}
				if key.vt != noIndex {
					vx.Texcoord = dec.uvs[key.vt]
				}
				i := uint32(len(group.Vertices))
				group.Vertices = append(group.Vertices, vx)
				index[key] = i
				return i
			}
			// triangle fan: 0, i-1, i
			first := corner(0)
			for k := 2; k < len(face.vertices); k++ {
				group.Indices = append(group.Indices, first, corner(k-1), corner(k))
			}
		}
		flush()
	}

	for _, g := range out.Groups {
		if _, ok := out.Materials[g.Material]; ok {
			continue
		}
		if g.Material != defaultM {
			dec.appendWarn(fmt.Sprintf("could not find material %s, using the default material", g.Material))
		}
		d := resources.DefaultMaterialData
		d.Name = g.Material
		out.Materials[g.Material] = &d
	}
	out.Warnings = dec.warnings
	if len(out.Groups) == 0 {
		return nil, errors.New("obj: no faces")
	}
	return out, nil
}

func (dec *objDecoder) formatError(msg string) error {
	return fmt.Errorf("%s in line:%d", msg, dec.line)
}

func (dec *objDecoder) appendWarn(msg string) {
	dec.warnings = append(dec.warnings, fmt.Sprintf("%s(%d): %s", objType, dec.line, msg))
}
