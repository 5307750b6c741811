package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
	"github.com/spaghettifunk/anima-samples/engine/resources"
)

// MaterialLoader reads a Wavefront material library (.mtl). The Data of the
// resource is a map from material name to *resources.MaterialResourceData.
type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string, params interface{}) (*resources.Resource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	materials, err := parseMTL(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	info, _ := file.Stat()
	res := &resources.Resource{
		Type:     resources.ResourceTypeMaterial,
		Name:     "material",
		FullPath: path,
		Data:     materials,
	}
	if info != nil {
		res.DataSize = uint64(info.Size())
	}
	return res, nil
}

type mtlEntry struct {
	data         *resources.MaterialResourceData
	hasPBR       bool
	specular     float32
	hasShininess bool
}

func parseMTL(r io.Reader) (map[string]*resources.MaterialResourceData, error) {
	scanner := bufio.NewScanner(r)
	var entries []*mtlEntry
	var current *mtlEntry
	line := 0

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if strings.HasPrefix(text, "#") || text == "" {
			continue
		}
		fields := strings.Fields(text)
		key, args := fields[0], fields[1:]

		if key == "newmtl" {
			if len(args) < 1 {
				return nil, fmt.Errorf("line %d: newmtl with no name", line)
			}
			d := resources.DefaultMaterialData
			d.Name = strings.Join(args, " ")
			current = &mtlEntry{data: &d}
			entries = append(entries, current)
			continue
		}
		if current == nil {
			core.LogWarn("mtl line %d: `%s` before any newmtl, skipping", line, key)
			continue
		}

		switch key {
		case "Kd":
			c, err := parseFloats(args, 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid Kd: %w", line, err)
			}
			current.data.BaseColor = math.NewVec3(c[0], c[1], c[2])
		case "Ks":
			c, err := parseFloats(args, 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid Ks: %w", line, err)
			}
			current.specular = math32.Max(c[0], math32.Max(c[1], c[2]))
		case "Ns":
			c, err := parseFloats(args, 1)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid Ns: %w", line, err)
			}
			if !current.hasPBR {
				// Blinn-Phong exponent to perceptual roughness
				current.data.Roughness = math32.Sqrt(2 / (math32.Max(c[0], 0) + 2))
			}
			current.hasShininess = true
		case "Pr":
			c, err := parseFloats(args, 1)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid Pr: %w", line, err)
			}
			current.data.Roughness = c[0]
			current.hasPBR = true
		case "Pm":
			c, err := parseFloats(args, 1)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid Pm: %w", line, err)
			}
			current.data.Metallic = c[0]
			current.hasPBR = true
		case "map_Kd":
			if len(args) == 0 {
				return nil, fmt.Errorf("line %d: map_Kd with no file", line)
			}
			// options come first, the file name is last
			current.data.BaseColorMap = args[len(args)-1]
		case "Ka", "Ke", "Ni", "d", "Tr", "Tf", "illum", "map_Ks", "map_Ns", "map_d", "map_Bump", "bump", "norm":
			// not mapped to the metallic/roughness model
		default:
			core.LogDebug("mtl line %d: unknown key `%s`, skipping", line, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]*resources.MaterialResourceData, len(entries))
	for _, e := range entries {
		// a strong white specular with no PBR data reads as a metal
		if !e.hasPBR && e.hasShininess && e.specular > 0.9 {
			e.data.Metallic = 1
		}
		if err := validateMaterial(e.data); err != nil {
			return nil, err
		}
		out[e.data.Name] = e.data
	}
	return out, nil
}

func parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(f)
	}
	return out, nil
}

func validateMaterial(material *resources.MaterialResourceData) error {
	if material.Name == "" {
		return fmt.Errorf("material name is required")
	}
	// Check that BaseColor values are within [0.0, 1.0] range
	if !isValidVec3(material.BaseColor) {
		return fmt.Errorf("material `%s`: Kd values must be between 0.0 and 1.0", material.Name)
	}
	if !inRange(material.Metallic) || !inRange(material.Roughness) {
		return fmt.Errorf("material `%s`: metallic and roughness must be between 0.0 and 1.0", material.Name)
	}
	return nil
}

// Helper function to validate Vec3 fields (must be between 0.0 and 1.0)
func isValidVec3(v math.Vec3) bool {
	return inRange(v.X) && inRange(v.Y) && inRange(v.Z)
}

// Check if a float32 value is within [0.0, 1.0]
func inRange(value float32) bool {
	return value >= 0.0 && value <= 1.0
}

func (ml *MaterialLoader) Unload(r *resources.Resource) error {
	r.Data = nil
	return nil
}
