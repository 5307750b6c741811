package shader

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-samples/engine/core"
)

// PackageVersion is bumped whenever the layout of Definition changes.
const PackageVersion = 1

/**
 * @brief Definition is everything needed to recreate a compiled material. It is
 * what a Package carries, encoded as TOML.
 */
type Definition struct {
	Version    int               `toml:"version"`
	Name       string            `toml:"name"`
	Shading    Shading           `toml:"shading"`
	Properties []Property        `toml:"properties"`
	Requires   []VertexAttribute `toml:"requires"`
	Parameters []Parameter       `toml:"parameters"`
	Source     string            `toml:"source"`
}

// HasProperty reports whether p was declared with Set.
func (d *Definition) HasProperty(p Property) bool {
	for _, x := range d.Properties {
		if x == p {
			return true
		}
	}
	return false
}

// RequiresAttribute reports whether the vertex attribute a is required.
func (d *Definition) RequiresAttribute(a VertexAttribute) bool {
	for _, x := range d.Requires {
		if x == a {
			return true
		}
	}
	return false
}

// Parameter looks a parameter up by name.
func (d *Definition) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Package is the compiled, serialized form of a material.
type Package struct {
	data []byte
}

// Data returns the encoded package.
func (p *Package) Data() []byte {
	return p.data
}

// Size returns the size in bytes of the encoded package.
func (p *Package) Size() int {
	return len(p.data)
}

// ParsePackage decodes and recompiles a package produced by MaterialBuilder.Build.
func ParsePackage(data []byte) (*Definition, *Program, error) {
	def := &Definition{}
	if err := toml.Unmarshal(data, def); err != nil {
		return nil, nil, fmt.Errorf("%w: cannot decode package: %s", core.ErrInvalidMaterial, err)
	}
	if def.Version != PackageVersion {
		return nil, nil, fmt.Errorf("%w: package version %d, expected %d", core.ErrInvalidMaterial, def.Version, PackageVersion)
	}
	prog, err := Compile(def)
	if err != nil {
		return nil, nil, err
	}
	return def, prog, nil
}

/**
 * @brief MaterialBuilder collects the description of a material and compiles it
 * into a Package. Calls chain; errors are reported by Build.
 */
type MaterialBuilder struct {
	def Definition
}

func NewMaterialBuilder() *MaterialBuilder {
	return &MaterialBuilder{
		def: Definition{
			Version: PackageVersion,
			Name:    "Unnamed",
			Shading: ShadingLit,
		},
	}
}

func (b *MaterialBuilder) Name(name string) *MaterialBuilder {
	b.def.Name = name
	return b
}

// Set declares a property written by the material body.
func (b *MaterialBuilder) Set(p Property) *MaterialBuilder {
	if !b.def.HasProperty(p) {
		b.def.Properties = append(b.def.Properties, p)
	}
	return b
}

// Material sets the source of the material body.
func (b *MaterialBuilder) Material(source string) *MaterialBuilder {
	b.def.Source = source
	return b
}

func (b *MaterialBuilder) Shading(s Shading) *MaterialBuilder {
	b.def.Shading = s
	return b
}

// Require declares a vertex attribute. Requiring the same attribute twice is harmless.
func (b *MaterialBuilder) Require(a VertexAttribute) *MaterialBuilder {
	if !b.def.RequiresAttribute(a) {
		b.def.Requires = append(b.def.Requires, a)
	}
	return b
}

// Parameter declares a user parameter. Redeclaring a name is reported by Build.
func (b *MaterialBuilder) Parameter(t ParameterType, name string) *MaterialBuilder {
	b.def.Parameters = append(b.def.Parameters, Parameter{Name: name, Type: t})
	return b
}

// Build validates and compiles the material, then encodes it.
func (b *MaterialBuilder) Build() (*Package, error) {
	def := b.def
	if def.Name == "" {
		return nil, fmt.Errorf("%w: material has no name", core.ErrInvalidMaterial)
	}
	seen := make(map[string]struct{}, len(def.Parameters))
	for _, p := range def.Parameters {
		if p.Name == "" {
			return nil, fmt.Errorf("%w: parameter without a name", core.ErrInvalidMaterial)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("%w: parameter %q declared twice", core.ErrInvalidMaterial, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	if def.Shading == ShadingUnlit {
		for _, p := range def.Properties {
			if p == PropertyMetallic || p == PropertyRoughness || p == PropertyReflectance {
				return nil, fmt.Errorf("%w: property %s is not available on unlit materials", core.ErrInvalidMaterial, p)
			}
		}
	}
	if _, err := Compile(&def); err != nil {
		return nil, err
	}

	data, err := toml.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode package: %s", core.ErrInvalidMaterial, err)
	}
	core.LogDebug("material `%s` compiled: %d parameters, %d bytes", def.Name, len(def.Parameters), len(data))
	return &Package{data: data}, nil
}
