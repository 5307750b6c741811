package shader

import (
	"fmt"
	"strings"
)

// Property is a material input the shader body is allowed to write.
type Property uint8

const (
	PropertyBaseColor Property = iota
	PropertyMetallic
	PropertyRoughness
	PropertyReflectance
	PropertyAmbientOcclusion
	PropertyEmissive
)

var propertyNames = map[Property]string{
	PropertyBaseColor:        "baseColor",
	PropertyMetallic:         "metallic",
	PropertyRoughness:        "roughness",
	PropertyReflectance:      "reflectance",
	PropertyAmbientOcclusion: "ambientOcclusion",
	PropertyEmissive:         "emissive",
}

func (p Property) String() string {
	if n, ok := propertyNames[p]; ok {
		return n
	}
	return fmt.Sprintf("Property(%d)", uint8(p))
}

func (p Property) MarshalText() ([]byte, error) {
	n, ok := propertyNames[p]
	if !ok {
		return nil, fmt.Errorf("unknown property %d", uint8(p))
	}
	return []byte(n), nil
}

func (p *Property) UnmarshalText(text []byte) error {
	for k, v := range propertyNames {
		if v == string(text) {
			*p = k
			return nil
		}
	}
	return fmt.Errorf("unknown property %q", string(text))
}

// size returns the number of float components of the property.
func (p Property) size() int {
	switch p {
	case PropertyBaseColor, PropertyEmissive:
		return 4
	default:
		return 1
	}
}

// Shading selects the lighting model of a material.
type Shading uint8

const (
	ShadingLit Shading = iota
	ShadingUnlit
)

func (s Shading) String() string {
	switch s {
	case ShadingLit:
		return "lit"
	case ShadingUnlit:
		return "unlit"
	}
	return fmt.Sprintf("Shading(%d)", uint8(s))
}

func (s Shading) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Shading) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "lit":
		*s = ShadingLit
	case "unlit":
		*s = ShadingUnlit
	default:
		return fmt.Errorf("unknown shading model %q", string(text))
	}
	return nil
}

// VertexAttribute is a per-vertex input a material may require.
type VertexAttribute uint8

const (
	AttributeUV0 VertexAttribute = iota
	AttributeColor
)

func (a VertexAttribute) String() string {
	switch a {
	case AttributeUV0:
		return "uv0"
	case AttributeColor:
		return "color"
	}
	return fmt.Sprintf("VertexAttribute(%d)", uint8(a))
}

func (a VertexAttribute) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *VertexAttribute) UnmarshalText(text []byte) error {
	switch string(text) {
	case "uv0":
		*a = AttributeUV0
	case "color":
		*a = AttributeColor
	default:
		return fmt.Errorf("unknown vertex attribute %q", string(text))
	}
	return nil
}

// ParameterType is the type of a user parameter declared on a material.
type ParameterType uint8

const (
	SAMPLER_2D ParameterType = iota
	FLOAT
	FLOAT3
	FLOAT4
)

var parameterTypeNames = map[ParameterType]string{
	SAMPLER_2D: "sampler2d",
	FLOAT:      "float",
	FLOAT3:     "float3",
	FLOAT4:     "float4",
}

func (t ParameterType) String() string {
	if n, ok := parameterTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("ParameterType(%d)", uint8(t))
}

func (t ParameterType) MarshalText() ([]byte, error) {
	n, ok := parameterTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown parameter type %d", uint8(t))
	}
	return []byte(n), nil
}

func (t *ParameterType) UnmarshalText(text []byte) error {
	for k, v := range parameterTypeNames {
		if v == string(text) {
			*t = k
			return nil
		}
	}
	return fmt.Errorf("unknown parameter type %q", string(text))
}

// IsSampler reports whether the parameter binds a texture.
func (t ParameterType) IsSampler() bool {
	return t == SAMPLER_2D
}

// Components returns the number of floats held by a uniform parameter.
func (t ParameterType) Components() int {
	switch t {
	case FLOAT:
		return 1
	case FLOAT3:
		return 3
	case FLOAT4:
		return 4
	}
	return 0
}

// Parameter is a named user parameter of a material.
type Parameter struct {
	Name string        `toml:"name"`
	Type ParameterType `toml:"type"`
}
