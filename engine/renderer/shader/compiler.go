package shader

import (
	"fmt"
	"strings"

	"github.com/chewxy/math32"
	"github.com/spaghettifunk/anima-samples/engine/core"
	"github.com/spaghettifunk/anima-samples/engine/math"
)

var (
	ErrSyntax             = fmt.Errorf("%w: syntax error", core.ErrInvalidMaterial)
	ErrUnknownIdentifier  = fmt.Errorf("%w: unknown identifier", core.ErrInvalidMaterial)
	ErrUnknownSampler     = fmt.Errorf("%w: unknown sampler", core.ErrInvalidMaterial)
	ErrMissingAttribute   = fmt.Errorf("%w: vertex attribute not required", core.ErrInvalidMaterial)
	ErrTypeMismatch       = fmt.Errorf("%w: type mismatch", core.ErrInvalidMaterial)
	ErrUndeclaredProperty = fmt.Errorf("%w: property not declared", core.ErrInvalidMaterial)
	ErrMissingPrepare     = fmt.Errorf("%w: prepareMaterial(material) is never called", core.ErrInvalidMaterial)
)

const samplerPrefix = "materialParams_"

var typeSizes = map[string]int{
	"float":  1,
	"vec2":   2,
	"vec3":   3,
	"vec4":   4,
	"float2": 2,
	"float3": 3,
	"float4": 4,
}

type local struct {
	slot int
	size int
}

type parser struct {
	toks []token
	pos  int

	def      *Definition
	locals   map[string]local
	samplers map[string]int
	uniforms map[string]int
	nlocals  int
	prepared bool
}

/**
 * @brief Compile checks a material body against its definition and turns it
 * into an executable Program.
 *
 * The body has the shape `void material(inout MaterialInputs material) { ... }`.
 * Supported statements are `prepareMaterial(material);`, local declarations of
 * float/vecN/floatN, and assignments to locals or to the declared properties of
 * `material`, optionally through a swizzle. Expressions support literals,
 * vector constructors, `texture(materialParams_<sampler>, uv)`, `getUV0()`,
 * `getColor()`, `materialParams.<uniform>`, swizzles, arithmetic and a handful
 * of built-in functions.
 */
func Compile(def *Definition) (*Program, error) {
	toks, err := tokenize(def.Source)
	if err != nil {
		return nil, err
	}
	p := &parser{
		toks:     toks,
		def:      def,
		locals:   make(map[string]local),
		samplers: make(map[string]int),
		uniforms: make(map[string]int),
	}
	prog := &Program{name: def.Name}
	for _, param := range def.Parameters {
		if param.Type.IsSampler() {
			p.samplers[param.Name] = len(prog.samplers)
			prog.samplers = append(prog.samplers, param.Name)
		} else {
			p.uniforms[param.Name] = len(prog.uniforms)
			prog.uniforms = append(prog.uniforms, param.Name)
		}
	}

	for _, word := range []string{"void", "material", "(", "inout", "MaterialInputs", "material", ")", "{"} {
		if err := p.expect(word); err != nil {
			return nil, err
		}
	}
	for !p.at("}") {
		if p.peek().kind == tokenEOF {
			return nil, p.errorf(ErrSyntax, "missing closing `}`")
		}
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			prog.body = append(prog.body, stmt)
		}
	}
	p.next()
	if t := p.peek(); t.kind != tokenEOF {
		return nil, p.errorf(ErrSyntax, "unexpected %s after the material body", t)
	}
	if !p.prepared {
		return nil, ErrMissingPrepare
	}
	prog.locals = p.nlocals
	return prog, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) at(text string) bool {
	t := p.peek()
	return t.kind != tokenEOF && t.kind != tokenNumber && t.text == text
}

func (p *parser) expect(text string) error {
	if !p.at(text) {
		return p.errorf(ErrSyntax, "expected `%s`, found %s", text, p.peek())
	}
	p.next()
	return nil
}

func (p *parser) ident() (string, error) {
	t := p.peek()
	if t.kind != tokenIdent {
		return "", p.errorf(ErrSyntax, "expected an identifier, found %s", t)
	}
	p.next()
	return t.text, nil
}

func (p *parser) errorf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", kind, p.peek().line, fmt.Sprintf(format, args...))
}

func (p *parser) statement() (stmtFn, error) {
	t := p.peek()
	if t.kind != tokenIdent {
		return nil, p.errorf(ErrSyntax, "unexpected %s", t)
	}
	switch {
	case t.text == "prepareMaterial":
		p.next()
		for _, word := range []string{"(", "material", ")", ";"} {
			if err := p.expect(word); err != nil {
				return nil, err
			}
		}
		p.prepared = true
		return nil, nil
	case typeSizes[t.text] > 0:
		return p.declaration()
	default:
		return p.assignment()
	}
}

func (p *parser) declaration() (stmtFn, error) {
	size := typeSizes[p.next().text]
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	if _, dup := p.locals[name]; dup {
		return nil, p.errorf(ErrSyntax, "`%s` redeclared", name)
	}
	if typeSizes[name] > 0 || name == "material" {
		return nil, p.errorf(ErrSyntax, "`%s` is reserved", name)
	}
	var init exprFn
	if p.at("=") {
		p.next()
		e, n, err := p.expression()
		if err != nil {
			return nil, err
		}
		if n != size {
			return nil, p.errorf(ErrTypeMismatch, "cannot initialize a %d component `%s` with %d components", size, name, n)
		}
		init = e
	}
	if err := p.expect(";"); err != nil {
		return nil, err
	}

	l := local{slot: p.nlocals, size: size}
	p.locals[name] = l
	p.nlocals++
	if init == nil {
		return func(s *state) { s.locals[l.slot] = Value{N: l.size} }, nil
	}
	return func(s *state) { s.locals[l.slot] = init(s) }, nil
}

func (p *parser) assignment() (stmtFn, error) {
	name, err := p.ident()
	if err != nil {
		return nil, err
	}

	var target func(s *state) *[4]float32
	var size int
	if name == "material" {
		if err := p.expect("."); err != nil {
			return nil, err
		}
		field, err := p.ident()
		if err != nil {
			return nil, err
		}
		prop, err := p.property(field)
		if err != nil {
			return nil, err
		}
		if prop != PropertyBaseColor && !p.def.HasProperty(prop) {
			return nil, p.errorf(ErrUndeclaredProperty, "`material.%s` is written but %s was never set", field, prop)
		}
		size = prop.size()
		target = func(s *state) *[4]float32 { return &s.props[prop] }
	} else {
		l, ok := p.locals[name]
		if !ok {
			return nil, p.errorf(ErrUnknownIdentifier, "`%s`", name)
		}
		size = l.size
		target = func(s *state) *[4]float32 { return &s.locals[l.slot].V }
	}

	mask := []int{0, 1, 2, 3}[:size]
	if p.at(".") {
		p.next()
		swz, err := p.ident()
		if err != nil {
			return nil, err
		}
		if mask, err = p.swizzle(swz, size, true); err != nil {
			return nil, err
		}
	}

	if err := p.expect("="); err != nil {
		return nil, err
	}
	e, n, err := p.expression()
	if err != nil {
		return nil, err
	}
	if err := p.expect(";"); err != nil {
		return nil, err
	}
	if n != len(mask) && n != 1 {
		return nil, p.errorf(ErrTypeMismatch, "cannot assign %d components to %d", n, len(mask))
	}

	return func(s *state) {
		v := e(s)
		dst := target(s)
		for i, c := range mask {
			dst[c] = v.V[i]
		}
	}, nil
}

func (p *parser) property(field string) (Property, error) {
	var prop Property
	if err := prop.UnmarshalText([]byte(field)); err != nil {
		return 0, p.errorf(ErrUnknownIdentifier, "`material.%s`", field)
	}
	return prop, nil
}

// swizzle maps a swizzle like `rgb` or `xy` to component indices.
func (p *parser) swizzle(s string, size int, write bool) ([]int, error) {
	if len(s) == 0 || len(s) > 4 {
		return nil, p.errorf(ErrSyntax, "bad swizzle `%s`", s)
	}
	sets := []string{"xyzw", "rgba", "stpq"}
	set := ""
	for _, candidate := range sets {
		if strings.ContainsRune(candidate, rune(s[0])) {
			set = candidate
			break
		}
	}
	if set == "" {
		return nil, p.errorf(ErrSyntax, "bad swizzle `%s`", s)
	}
	mask := make([]int, len(s))
	used := 0
	for i := 0; i < len(s); i++ {
		c := strings.IndexByte(set, s[i])
		if c < 0 || c >= size {
			return nil, p.errorf(ErrSyntax, "swizzle `%s` out of range for %d components", s, size)
		}
		if write && used&(1<<c) != 0 {
			return nil, p.errorf(ErrSyntax, "swizzle `%s` writes a component twice", s)
		}
		used |= 1 << c
		mask[i] = c
	}
	return mask, nil
}

func (p *parser) expression() (exprFn, int, error) {
	lhs, ln, err := p.term()
	if err != nil {
		return nil, 0, err
	}
	for p.at("+") || p.at("-") {
		op := p.next().text
		rhs, rn, err := p.term()
		if err != nil {
			return nil, 0, err
		}
		if lhs, ln, err = p.binary(op, lhs, ln, rhs, rn); err != nil {
			return nil, 0, err
		}
	}
	return lhs, ln, nil
}

func (p *parser) term() (exprFn, int, error) {
	lhs, ln, err := p.unary()
	if err != nil {
		return nil, 0, err
	}
	for p.at("*") || p.at("/") {
		op := p.next().text
		rhs, rn, err := p.unary()
		if err != nil {
			return nil, 0, err
		}
		if lhs, ln, err = p.binary(op, lhs, ln, rhs, rn); err != nil {
			return nil, 0, err
		}
	}
	return lhs, ln, nil
}

func (p *parser) binary(op string, a exprFn, an int, b exprFn, bn int) (exprFn, int, error) {
	n, err := p.combine(an, bn)
	if err != nil {
		return nil, 0, err
	}
	var f func(x, y float32) float32
	switch op {
	case "+":
		f = func(x, y float32) float32 { return x + y }
	case "-":
		f = func(x, y float32) float32 { return x - y }
	case "*":
		f = func(x, y float32) float32 { return x * y }
	default:
		f = func(x, y float32) float32 {
			if y == 0 {
				return 0
			}
			return x / y
		}
	}
	return func(s *state) Value {
		x, y := a(s), b(s)
		out := Value{N: n}
		for i := 0; i < 4; i++ {
			out.V[i] = f(x.V[i], y.V[i])
		}
		return out
	}, n, nil
}

// combine returns the size of a component-wise operation; scalars broadcast.
func (p *parser) combine(sizes ...int) (int, error) {
	n := 1
	for _, s := range sizes {
		if s == 1 {
			continue
		}
		if n != 1 && n != s {
			return 0, p.errorf(ErrTypeMismatch, "cannot combine %d and %d components", n, s)
		}
		n = s
	}
	return n, nil
}

func (p *parser) unary() (exprFn, int, error) {
	if p.at("-") {
		p.next()
		e, n, err := p.unary()
		if err != nil {
			return nil, 0, err
		}
		return func(s *state) Value {
			v := e(s)
			for i := range v.V {
				v.V[i] = -v.V[i]
			}
			return v
		}, n, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (exprFn, int, error) {
	e, n, err := p.primary()
	if err != nil {
		return nil, 0, err
	}
	for p.at(".") {
		p.next()
		swz, err := p.ident()
		if err != nil {
			return nil, 0, err
		}
		mask, err := p.swizzle(swz, n, false)
		if err != nil {
			return nil, 0, err
		}
		inner := e
		e = func(s *state) Value {
			v := inner(s)
			if len(mask) == 1 {
				return scalar(v.V[mask[0]])
			}
			out := Value{N: len(mask)}
			for i, c := range mask {
				out.V[i] = v.V[c]
			}
			return out
		}
		n = len(mask)
	}
	return e, n, nil
}

func (p *parser) primary() (exprFn, int, error) {
	t := p.peek()
	switch {
	case t.kind == tokenNumber:
		p.next()
		v := scalar(t.num)
		return func(*state) Value { return v }, 1, nil
	case p.at("("):
		p.next()
		e, n, err := p.expression()
		if err != nil {
			return nil, 0, err
		}
		if err := p.expect(")"); err != nil {
			return nil, 0, err
		}
		return e, n, nil
	case t.kind != tokenIdent:
		return nil, 0, p.errorf(ErrSyntax, "unexpected %s", t)
	}

	p.next()
	name := t.text
	if size := typeSizes[name]; size > 0 {
		return p.constructor(size)
	}
	switch name {
	case "texture":
		return p.texture()
	case "getUV0":
		if err := p.call0(); err != nil {
			return nil, 0, err
		}
		if !p.def.RequiresAttribute(AttributeUV0) {
			return nil, 0, p.errorf(ErrMissingAttribute, "getUV0() needs require(UV0)")
		}
		return func(s *state) Value {
			return Value{V: [4]float32{s.frag.UV0.X, s.frag.UV0.Y}, N: 2}
		}, 2, nil
	case "getColor":
		if err := p.call0(); err != nil {
			return nil, 0, err
		}
		if !p.def.RequiresAttribute(AttributeColor) {
			return nil, 0, p.errorf(ErrMissingAttribute, "getColor() needs require(COLOR)")
		}
		return func(s *state) Value {
			c := s.frag.Color
			return Value{V: [4]float32{c.X, c.Y, c.Z, c.W}, N: 4}
		}, 4, nil
	case "materialParams":
		return p.uniform()
	case "material":
		if err := p.expect("."); err != nil {
			return nil, 0, err
		}
		field, err := p.ident()
		if err != nil {
			return nil, 0, err
		}
		prop, err := p.property(field)
		if err != nil {
			return nil, 0, err
		}
		if prop.size() == 1 {
			return func(s *state) Value { return scalar(s.props[prop][0]) }, 1, nil
		}
		return func(s *state) Value { return Value{V: s.props[prop], N: 4} }, 4, nil
	}
	if b, ok := builtins[name]; ok {
		return p.builtin(name, b)
	}
	if l, ok := p.locals[name]; ok {
		if l.size == 1 {
			return func(s *state) Value { return scalar(s.locals[l.slot].V[0]) }, 1, nil
		}
		return func(s *state) Value { return s.locals[l.slot] }, l.size, nil
	}
	if strings.HasPrefix(name, samplerPrefix) {
		return nil, 0, p.errorf(ErrSyntax, "sampler `%s` can only be used with texture()", name)
	}
	return nil, 0, p.errorf(ErrUnknownIdentifier, "`%s`", name)
}

func (p *parser) call0() error {
	if err := p.expect("("); err != nil {
		return err
	}
	return p.expect(")")
}

func (p *parser) arguments() ([]exprFn, []int, error) {
	if err := p.expect("("); err != nil {
		return nil, nil, err
	}
	var args []exprFn
	var sizes []int
	for !p.at(")") {
		if len(args) > 0 {
			if err := p.expect(","); err != nil {
				return nil, nil, err
			}
		}
		e, n, err := p.expression()
		if err != nil {
			return nil, nil, err
		}
		args = append(args, e)
		sizes = append(sizes, n)
	}
	p.next()
	return args, sizes, nil
}

func (p *parser) constructor(size int) (exprFn, int, error) {
	args, sizes, err := p.arguments()
	if err != nil {
		return nil, 0, err
	}
	if len(args) == 0 {
		return nil, 0, p.errorf(ErrSyntax, "constructor without arguments")
	}
	if len(args) == 1 && (sizes[0] == 1 || sizes[0] >= size) {
		// broadcast a scalar, or truncate a larger vector
		a := args[0]
		return func(s *state) Value {
			v := a(s)
			if size == 1 {
				return scalar(v.V[0])
			}
			v.N = size
			return v
		}, size, nil
	}
	total := 0
	for _, n := range sizes {
		if total >= size {
			return nil, 0, p.errorf(ErrTypeMismatch, "too many arguments for a %d component constructor", size)
		}
		total += n
	}
	if total < size {
		return nil, 0, p.errorf(ErrTypeMismatch, "not enough components for a %d component constructor", size)
	}
	return func(s *state) Value {
		out := Value{N: size}
		c := 0
		for i, a := range args {
			v := a(s)
			for j := 0; j < sizes[i] && c < size; j++ {
				out.V[c] = v.V[j]
				c++
			}
		}
		if size == 1 {
			return scalar(out.V[0])
		}
		return out
	}, size, nil
}

func (p *parser) texture() (exprFn, int, error) {
	if err := p.expect("("); err != nil {
		return nil, 0, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, 0, err
	}
	slot, ok := p.samplers[strings.TrimPrefix(name, samplerPrefix)]
	if !strings.HasPrefix(name, samplerPrefix) || !ok {
		return nil, 0, p.errorf(ErrUnknownSampler, "`%s`", name)
	}
	if err := p.expect(","); err != nil {
		return nil, 0, err
	}
	uv, n, err := p.expression()
	if err != nil {
		return nil, 0, err
	}
	if n != 2 {
		return nil, 0, p.errorf(ErrTypeMismatch, "texture coordinates need 2 components, got %d", n)
	}
	if err := p.expect(")"); err != nil {
		return nil, 0, err
	}
	return func(s *state) Value {
		c := uv(s)
		t := s.b.Sample(slot, math.Vec2{X: c.V[0], Y: c.V[1]}, &s.frag)
		return Value{V: [4]float32{t.X, t.Y, t.Z, t.W}, N: 4}
	}, 4, nil
}

func (p *parser) uniform() (exprFn, int, error) {
	if err := p.expect("."); err != nil {
		return nil, 0, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, 0, err
	}
	slot, ok := p.uniforms[name]
	if !ok {
		if _, isSampler := p.samplers[name]; isSampler {
			return nil, 0, p.errorf(ErrSyntax, "sampler `%s` must be read with texture(%s%s, uv)", name, samplerPrefix, name)
		}
		return nil, 0, p.errorf(ErrUnknownIdentifier, "`materialParams.%s`", name)
	}
	param, _ := p.def.Parameter(name)
	n := param.Type.Components()
	return func(s *state) Value {
		u := s.b.Uniform(slot)
		if n == 1 {
			return scalar(u.X)
		}
		return Value{V: [4]float32{u.X, u.Y, u.Z, u.W}, N: n}
	}, n, nil
}

type builtin struct {
	arity int
	// reduce functions return a scalar instead of working per component
	reduce func(args []Value, n int) float32
	each   func(args []float32) float32
}

var builtins = map[string]builtin{
	"saturate": {arity: 1, each: func(a []float32) float32 { return math.Saturate(a[0]) }},
	"abs":      {arity: 1, each: func(a []float32) float32 { return math32.Abs(a[0]) }},
	"sqrt":     {arity: 1, each: func(a []float32) float32 { return math32.Sqrt(math32.Max(a[0], 0)) }},
	"min":      {arity: 2, each: func(a []float32) float32 { return math32.Min(a[0], a[1]) }},
	"max":      {arity: 2, each: func(a []float32) float32 { return math32.Max(a[0], a[1]) }},
	"pow":      {arity: 2, each: func(a []float32) float32 { return math32.Pow(math32.Max(a[0], 0), a[1]) }},
	"clamp":    {arity: 3, each: func(a []float32) float32 { return math.Clamp(a[0], a[1], a[2]) }},
	"mix":      {arity: 3, each: func(a []float32) float32 { return a[0] + (a[1]-a[0])*a[2] }},
	"dot": {arity: 2, reduce: func(a []Value, n int) float32 {
		var d float32
		for i := 0; i < n; i++ {
			d += a[0].V[i] * a[1].V[i]
		}
		return d
	}},
	"length": {arity: 1, reduce: func(a []Value, n int) float32 {
		var d float32
		for i := 0; i < n; i++ {
			d += a[0].V[i] * a[0].V[i]
		}
		return math32.Sqrt(d)
	}},
}

func (p *parser) builtin(name string, b builtin) (exprFn, int, error) {
	args, sizes, err := p.arguments()
	if err != nil {
		return nil, 0, err
	}
	if len(args) != b.arity {
		return nil, 0, p.errorf(ErrSyntax, "%s() takes %d arguments, got %d", name, b.arity, len(args))
	}
	n, err := p.combine(sizes...)
	if err != nil {
		return nil, 0, err
	}
	eval := func(s *state) []Value {
		vals := make([]Value, len(args))
		for i, a := range args {
			vals[i] = a(s)
		}
		return vals
	}
	if b.reduce != nil {
		return func(s *state) Value { return scalar(b.reduce(eval(s), n)) }, 1, nil
	}
	return func(s *state) Value {
		vals := eval(s)
		out := Value{N: n}
		var lane [3]float32
		for c := 0; c < 4; c++ {
			for i := range vals {
				lane[i] = vals[i].V[c]
			}
			out.V[c] = b.each(lane[:len(vals)])
		}
		return out
	}, n, nil
}
