// Package jsonpath evaluates a deliberately small JSONPath subset over
// canonical trees. Supported tokens: $ (root), .name (member), [n]
// (index), [*] (wildcard). That is all the declarative mappings need;
// anything fancier belongs in a transform.
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/c360studio/registrygraph/canonical"
)

type tokenKind int

const (
	tokenRoot tokenKind = iota
	tokenKey
	tokenIndex
	tokenWildcard
)

type token struct {
	kind  tokenKind
	key   string
	index int
}

// Path is a compiled path expression. Compile once at schema load and
// reuse across documents; evaluation never errors.
type Path struct {
	source string
	tokens []token
}

// Source returns the original path expression.
func (p *Path) Source() string { return p.source }

// Compile parses a path expression. Unknown token syntax is an error
// here, never at evaluation time.
func Compile(expr string) (*Path, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, fmt.Errorf("empty path expression")
	}
	var tokens []token
	rest := trimmed
	if strings.HasPrefix(rest, "$") {
		tokens = append(tokens, token{kind: tokenRoot})
		rest = rest[1:]
	}
	for rest != "" {
		switch {
		case strings.HasPrefix(rest, "."):
			rest = rest[1:]
			end := keyEnd(rest)
			if end == 0 {
				return nil, fmt.Errorf("path %q: empty member name", expr)
			}
			tokens = append(tokens, token{kind: tokenKey, key: rest[:end]})
			rest = rest[end:]
		case strings.HasPrefix(rest, "[*]"):
			tokens = append(tokens, token{kind: tokenWildcard})
			rest = rest[3:]
		case strings.HasPrefix(rest, "["):
			close := strings.IndexByte(rest, ']')
			if close < 0 {
				return nil, fmt.Errorf("path %q: unterminated index", expr)
			}
			n, err := strconv.Atoi(rest[1:close])
			if err != nil || n < 0 {
				return nil, fmt.Errorf("path %q: invalid index %q", expr, rest[1:close])
			}
			tokens = append(tokens, token{kind: tokenIndex, index: n})
			rest = rest[close+1:]
		default:
			// Bare leading member name without a dot, e.g. "meta.registry_code".
			end := keyEnd(rest)
			if end == 0 {
				return nil, fmt.Errorf("path %q: unexpected token at %q", expr, rest)
			}
			tokens = append(tokens, token{kind: tokenKey, key: rest[:end]})
			rest = rest[end:]
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("path %q: no tokens", expr)
	}
	return &Path{source: trimmed, tokens: tokens}, nil
}

// MustCompile is Compile that panics on error, for static paths.
func MustCompile(expr string) *Path {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func keyEnd(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' || s[i] == '[' {
			return i
		}
	}
	return len(s)
}

// Values evaluates the path and returns every matching value, in
// document order. Missing keys, out-of-range indexes, and type
// mismatches all yield an empty result, never an error. Null leaves are
// dropped.
func (p *Path) Values(root *canonical.Value) []*canonical.Value {
	current := []*canonical.Value{root}
	for _, tok := range p.tokens {
		if len(current) == 0 {
			return nil
		}
		var next []*canonical.Value
		switch tok.kind {
		case tokenRoot:
			next = current
		case tokenKey:
			for _, v := range current {
				if child, ok := v.Field(tok.key); ok {
					next = append(next, child)
				}
			}
		case tokenIndex:
			for _, v := range current {
				items := v.Items()
				if tok.index < len(items) {
					next = append(next, items[tok.index])
				}
			}
		case tokenWildcard:
			for _, v := range current {
				switch v.Kind() {
				case canonical.KindSequence:
					next = append(next, v.Items()...)
				case canonical.KindNull:
					// absent stays absent
				default:
					// XML collapses single-element lists into the element
					// itself; treat any non-sequence as a list of one so
					// paths written against repeats still resolve.
					next = append(next, v)
				}
			}
		}
		current = next
	}
	out := current[:0:0]
	for _, v := range current {
		if !v.IsNull() {
			out = append(out, v)
		}
	}
	return out
}

// First returns the first matching value, or nil when the path matches
// nothing.
func (p *Path) First(root *canonical.Value) *canonical.Value {
	values := p.Values(root)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// Exists reports whether the path matches at least one non-null value.
func (p *Path) Exists(root *canonical.Value) bool {
	return p.First(root) != nil
}

// Values compiles and evaluates expr in one call. Invalid expressions
// return an error; evaluation itself cannot fail.
func Values(root *canonical.Value, expr string) ([]*canonical.Value, error) {
	p, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	return p.Values(root), nil
}

// First compiles expr and returns the first match, or nil.
func First(root *canonical.Value, expr string) (*canonical.Value, error) {
	p, err := Compile(expr)
	if err != nil {
		return nil, err
	}
	return p.First(root), nil
}
