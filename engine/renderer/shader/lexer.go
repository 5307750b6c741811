package shader

import (
	"fmt"
	"strconv"
	"unicode"
)

type tokenKind uint8

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenPunct
)

type token struct {
	kind tokenKind
	text string
	num  float32
	line int
}

func (t token) String() string {
	switch t.kind {
	case tokenEOF:
		return "end of input"
	case tokenNumber:
		return fmt.Sprintf("number %s", t.text)
	}
	return fmt.Sprintf("`%s`", t.text)
}

// tokenize splits a material body into tokens. Line and block comments are skipped.
func tokenize(src string) ([]token, error) {
	var tokens []token
	line := 1
	r := []rune(src)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case c == '\n':
			line++
			i++
		case unicode.IsSpace(c):
			i++
		case c == '/' && i+1 < len(r) && r[i+1] == '/':
			for i < len(r) && r[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(r) && r[i+1] == '*':
			i += 2
			for i+1 < len(r) && !(r[i] == '*' && r[i+1] == '/') {
				if r[i] == '\n' {
					line++
				}
				i++
			}
			if i+1 >= len(r) {
				return nil, fmt.Errorf("%w: line %d: unterminated comment", ErrSyntax, line)
			}
			i += 2
		case c == '_' || unicode.IsLetter(c):
			start := i
			for i < len(r) && (r[i] == '_' || unicode.IsLetter(r[i]) || unicode.IsDigit(r[i])) {
				i++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: string(r[start:i]), line: line})
		case unicode.IsDigit(c) || (c == '.' && i+1 < len(r) && unicode.IsDigit(r[i+1])):
			start := i
			for i < len(r) && (unicode.IsDigit(r[i]) || r[i] == '.') {
				i++
			}
			if i < len(r) && (r[i] == 'e' || r[i] == 'E') {
				i++
				if i < len(r) && (r[i] == '+' || r[i] == '-') {
					i++
				}
				for i < len(r) && unicode.IsDigit(r[i]) {
					i++
				}
			}
			text := string(r[start:i])
			// GLSL float suffix
			if i < len(r) && (r[i] == 'f' || r[i] == 'F') {
				i++
			}
			v, err := strconv.ParseFloat(text, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: bad number `%s`", ErrSyntax, line, text)
			}
			tokens = append(tokens, token{kind: tokenNumber, text: text, num: float32(v), line: line})
		default:
			switch c {
			case '(', ')', '{', '}', ';', ',', '.', '=', '+', '-', '*', '/':
				tokens = append(tokens, token{kind: tokenPunct, text: string(c), line: line})
				i++
			default:
				return nil, fmt.Errorf("%w: line %d: unexpected character %q", ErrSyntax, line, c)
			}
		}
	}
	tokens = append(tokens, token{kind: tokenEOF, line: line})
	return tokens, nil
}
