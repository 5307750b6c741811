package loaders

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/resources"
)

type daeDocument struct {
	Asset struct {
		UpAxis string `xml:"up_axis"`
	} `xml:"asset"`
	Effects      []daeEffect      `xml:"library_effects>effect"`
	Materials    []daeMaterial    `xml:"library_materials>material"`
	Geometries   []daeGeometry    `xml:"library_geometries>geometry"`
	VisualScenes []daeVisualScene `xml:"library_visual_scenes>visual_scene"`
}

type daeColorOrTexture struct {
	Color   string `xml:"color"`
	Texture *struct {
		Texture string `xml:"texture,attr"`
	} `xml:"texture"`
}

type daeShading struct {
	Diffuse   *daeColorOrTexture `xml:"diffuse"`
	Specular  *daeColorOrTexture `xml:"specular"`
	Shininess *struct {
		Float string `xml:"float"`
	} `xml:"shininess"`
}

type daeEffect struct {
	ID      string `xml:"id,attr"`
	Profile struct {
		NewParams []struct {
			SID     string `xml:"sid,attr"`
			Surface *struct {
				InitFrom string `xml:"init_from"`
			} `xml:"surface"`
			Sampler2D *struct {
				Source string `xml:"source"`
			} `xml:"sampler2D"`
		} `xml:"newparam"`
		Technique struct {
			Phong   *daeShading `xml:"phong"`
			Blinn   *daeShading `xml:"blinn"`
			Lambert *daeShading `xml:"lambert"`
		} `xml:"technique"`
	} `xml:"profile_COMMON"`
}

type daeMaterial struct {
	ID             string `xml:"id,attr"`
	Name           string `xml:"name,attr"`
	InstanceEffect struct {
		URL string `xml:"url,attr"`
	} `xml:"instance_effect"`
}

type daeSource struct {
	ID         string `xml:"id,attr"`
	FloatArray string `xml:"float_array"`
	Accessor   struct {
		Stride int `xml:"stride,attr"`
	} `xml:"technique_common>accessor"`
}

type daeInput struct {
	Semantic string `xml:"semantic,attr"`
	Source   string `xml:"source,attr"`
	Offset   int    `xml:"offset,attr"`
	Set      int    `xml:"set,attr"`
}

type daePrimitives struct {
	Material string     `xml:"material,attr"`
	Inputs   []daeInput `xml:"input"`
	VCount   string     `xml:"vcount"`
	P        string     `xml:"p"`
}

type daeGeometry struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
	Mesh struct {
		Sources  []daeSource `xml:"source"`
		Vertices struct {
			ID     string     `xml:"id,attr"`
			Inputs []daeInput `xml:"input"`
		} `xml:"vertices"`
		Triangles []daePrimitives `xml:"triangles"`
		Polylists []daePrimitives `xml:"polylist"`
	} `xml:"mesh"`
}

type daeNode struct {
	ID        string    `xml:"id,attr"`
	Matrix    string    `xml:"matrix"`
	Nodes     []daeNode `xml:"node"`
	Instances []struct {
		URL       string `xml:"url,attr"`
		Materials []struct {
			Symbol string `xml:"symbol,attr"`
			Target string `xml:"target,attr"`
		} `xml:"bind_material>technique_common>instance_material"`
	} `xml:"instance_geometry"`
}

type daeVisualScene struct {
	Nodes []daeNode `xml:"node"`
}

func splitFloats(s string) ([]float32, error) {
	fields := strings.Fields(s)
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(v)
	}
	return out, nil
}

func splitInts(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// decodeCollada reads the triangle and polylist geometry of a COLLADA
// document, placing every instanced geometry with its node transforms.
func decodeCollada(path string) (*resources.MeshResourceData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var doc daeDocument
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := &resources.MeshResourceData{Materials: make(map[string]*resources.MaterialResourceData)}
	materials := colladaMaterials(&doc)

	geometries := make(map[string]*daeGeometry, len(doc.Geometries))
	for i := range doc.Geometries {
		geometries[doc.Geometries[i].ID] = &doc.Geometries[i]
	}

	root := math.NewMat4Identity()
	if strings.EqualFold(doc.Asset.UpAxis, "Z_UP") {
		// (x, y, z) -> (x, z, -y)
		root = math.Mat4{Data: [16]float32{1, 0, 0, 0, 0, 0, -1, 0, 0, 1, 0, 0, 0, 0, 0, 1}}
	}

	var visit func(n *daeNode, parent math.Mat4) error
	visit = func(n *daeNode, parent math.Mat4) error {
		world := parent
		if n.Matrix != "" {
			m, err := splitFloats(n.Matrix)
			if err != nil || len(m) != 16 {
				return fmt.Errorf("node %s: invalid matrix", n.ID)
			}
			var local math.Mat4
			// COLLADA matrices are written row by row
			for r := 0; r < 4; r++ {
				for c := 0; c < 4; c++ {
					local.Data[c*4+r] = m[r*4+c]
				}
			}
			world = local.Mul(parent)
		}
		for _, inst := range n.Instances {
			g := geometries[strings.TrimPrefix(inst.URL, "#")]
			if g == nil {
				out.Warnings = append(out.Warnings, fmt.Sprintf("dae: node %s references unknown geometry %s", n.ID, inst.URL))
				continue
			}
			bound := make(map[string]string, len(inst.Materials))
			for _, m := range inst.Materials {
				bound[m.Symbol] = strings.TrimPrefix(m.Target, "#")
			}
			if err := addColladaGeometry(out, g, world, bound, materials); err != nil {
				return err
			}
		}
		for i := range n.Nodes {
			if err := visit(&n.Nodes[i], world); err != nil {
				return err
			}
		}
		return nil
	}

	if len(doc.VisualScenes) > 0 {
		for i := range doc.VisualScenes[0].Nodes {
			if err := visit(&doc.VisualScenes[0].Nodes[i], root); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	} else {
		for _, g := range geometries {
			if err := addColladaGeometry(out, g, root, nil, materials); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	if len(out.Groups) == 0 {
		return nil, fmt.Errorf("%s: dae: no triangles", path)
	}
	for _, g := range out.Groups {
		if m, ok := materials[g.Material]; ok {
			out.Materials[g.Material] = m
			continue
		}
		d := resources.DefaultMaterialData
		d.Name = g.Material
		out.Materials[g.Material] = &d
	}
	return out, nil
}

func colladaMaterials(doc *daeDocument) map[string]*resources.MaterialResourceData {
	effects := make(map[string]*daeEffect, len(doc.Effects))
	for i := range doc.Effects {
		effects[doc.Effects[i].ID] = &doc.Effects[i]
	}
	out := make(map[string]*resources.MaterialResourceData, len(doc.Materials))
	for _, m := range doc.Materials {
		d := resources.DefaultMaterialData
		d.Name = m.ID
		if e := effects[strings.TrimPrefix(m.InstanceEffect.URL, "#")]; e != nil {
			applyColladaEffect(&d, e)
		}
		out[m.ID] = &d
	}
	return out
}

func applyColladaEffect(d *resources.MaterialResourceData, e *daeEffect) {
	t := e.Profile.Technique
	shading := t.Phong
	if shading == nil {
		shading = t.Blinn
	}
	if shading == nil {
		shading = t.Lambert
	}
	if shading == nil {
		return
	}
	if diffuse := shading.Diffuse; diffuse != nil {
		if c, err := splitFloats(diffuse.Color); err == nil && len(c) >= 3 {
			d.BaseColor = math.NewVec3(math.Saturate(c[0]), math.Saturate(c[1]), math.Saturate(c[2]))
		}
		if diffuse.Texture != nil {
			// texture -> sampler2D -> surface -> image
			sampler := diffuse.Texture.Texture
			for _, p := range e.Profile.NewParams {
				if p.SID == sampler && p.Sampler2D != nil {
					sampler = p.Sampler2D.Source
				}
			}
			for _, p := range e.Profile.NewParams {
				if p.SID == sampler && p.Surface != nil {
					sampler = p.Surface.InitFrom
				}
			}
			d.BaseColorMap = sampler
		}
	}
	if shading.Shininess != nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(shading.Shininess.Float), 32); err == nil && v >= 0 {
			d.Roughness = float32(1 / (1 + v/32))
		}
	}
}

func addColladaGeometry(out *resources.MeshResourceData, g *daeGeometry, world math.Mat4, bound map[string]string, materials map[string]*resources.MaterialResourceData) error {
	sources := make(map[string]*daeSource, len(g.Mesh.Sources))
	values := make(map[string][]float32, len(g.Mesh.Sources))
	for i := range g.Mesh.Sources {
		s := &g.Mesh.Sources[i]
		v, err := splitFloats(s.FloatArray)
		if err != nil {
			return fmt.Errorf("geometry %s source %s: %w", g.ID, s.ID, err)
		}
		if s.Accessor.Stride == 0 {
			s.Accessor.Stride = 1
		}
		sources[s.ID] = s
		values[s.ID] = v
	}

	var positionSource string
	var vertexNormals string
	for _, in := range g.Mesh.Vertices.Inputs {
		switch in.Semantic {
		case "POSITION":
			positionSource = strings.TrimPrefix(in.Source, "#")
		case "NORMAL":
			vertexNormals = strings.TrimPrefix(in.Source, "#")
		}
	}

	normalMatrix := math.NormalMatrix(world)
	prims := append(append([]daePrimitives(nil), g.Mesh.Triangles...), g.Mesh.Polylists...)
	for pi, prim := range prims {
		p, err := splitInts(prim.P)
		if err != nil {
			return fmt.Errorf("geometry %s: %w", g.ID, err)
		}
		stride := 0
		vertexOffset, normalOffset, uvOffset := -1, -1, -1
		var normalSource, uvSource string
		for _, in := range prim.Inputs {
			stride = max(stride, in.Offset+1)
			src := strings.TrimPrefix(in.Source, "#")
			switch in.Semantic {
			case "VERTEX":
				vertexOffset = in.Offset
			case "NORMAL":
				normalOffset, normalSource = in.Offset, src
			case "TEXCOORD":
				if uvOffset < 0 || in.Set == 0 {
					uvOffset, uvSource = in.Offset, src
				}
			}
		}
		if vertexOffset < 0 || stride == 0 || sources[positionSource] == nil {
			return fmt.Errorf("geometry %s: primitive without positions", g.ID)
		}
		if normalOffset < 0 && vertexNormals != "" {
			normalOffset, normalSource = vertexOffset, vertexNormals
		}

		// polygon sizes; triangles are polygons of 3
		counts, err := splitInts(prim.VCount)
		if err != nil {
			return fmt.Errorf("geometry %s: %w", g.ID, err)
		}
		if len(counts) == 0 {
			for i := 0; i < len(p)/(3*stride); i++ {
				counts = append(counts, 3)
			}
		}

		fetch := func(source string, index, n int) []float32 {
			s := sources[source]
			if s == nil || index < 0 {
				return make([]float32, n)
			}
			v := values[source]
			o := index * s.Accessor.Stride
			if o+n > len(v) {
				return make([]float32, n)
			}
			return v[o : o+n]
		}

		material := prim.Material
		if target, ok := bound[material]; ok {
			material = target
		}
		if material == "" {
			material = defaultM
		}
		group := resources.GeometryGroup{Name: fmt.Sprintf("%s_%d", g.ID, pi), Material: material}
		cursor := 0
		for _, n := range counts {
			if (cursor+n)*stride > len(p) {
				return fmt.Errorf("geometry %s: index list too short", g.ID)
			}
			base := uint32(len(group.Vertices))
			for k := 0; k < n; k++ {
				idx := p[(cursor+k)*stride : (cursor+k+1)*stride]
				pos := fetch(positionSource, idx[vertexOffset], 3)
				vx := math.Vertex3D{Position: math.NewVec3(pos[0], pos[1], pos[2]).Transform(world)}
				if normalOffset >= 0 {
					nv := fetch(normalSource, idx[normalOffset], 3)
					vx.Normal = normalMatrix.MulVec3(math.NewVec3(nv[0], nv[1], nv[2])).Normalized()
				}
				if uvOffset >= 0 {
					uv := fetch(uvSource, idx[uvOffset], 2)
					vx.Texcoord = math.NewVec2(uv[0], uv[1])
				}
				group.Vertices = append(group.Vertices, vx)
			}
			for k := 2; k < n; k++ {
				group.Indices = append(group.Indices, base, base+uint32(k-1), base+uint32(k))
			}
			cursor += n
		}
		if len(group.Indices) == 0 {
			continue
		}
		if normalOffset < 0 {
			math.GeometryGenerateNormals(group.Vertices, group.Indices)
		}
		group.Extents = math.GeometryComputeExtents(group.Vertices)
		out.Groups = append(out.Groups, group)
	}
	return nil
}
