package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/c360studio/registrygraph/canonical"
)

// TransformSpec is the declarative form of a value transform.
type TransformSpec struct {
	Kind      string            `json:"kind"`
	Value     any               `json:"value,omitempty"`
	Delimiter string            `json:"delimiter,omitempty"`
	Index     int               `json:"index,omitempty"`
	Pattern   string            `json:"pattern,omitempty"`
	Group     int               `json:"group,omitempty"`
	Mapping   map[string]string `json:"mapping,omitempty"`
	Default   *string           `json:"default,omitempty"`
}

// TransformFunc is a compiled transform: a pure value-to-value
// function. Transforms never fail; incompatible input yields null.
type TransformFunc func(*canonical.Value) *canonical.Value

// transformCompilers is the dispatch table, keyed by transform kind and
// populated once; unknown kinds are rejected at schema load.
var transformCompilers = map[string]func(TransformSpec) (TransformFunc, error){
	"constant":        compileConstant,
	"trim":            compileStringFunc(strings.TrimSpace),
	"collapse_spaces": compileStringFunc(collapseWhitespace),
	"upper":           compileStringFunc(strings.ToUpper),
	"lower":           compileStringFunc(strings.ToLower),
	"clean":           compileStringFunc(cleanString),
	"to_int":          compileToInt,
	"split":           compileSplit,
	"regex":           compileRegex,
	"map":             compileMap,
}

// CompileTransform builds a TransformFunc from its spec. Unknown kinds
// and invalid parameters are load-time errors.
func CompileTransform(spec TransformSpec) (TransformFunc, error) {
	compiler, ok := transformCompilers[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown transform kind %q", spec.Kind)
	}
	return compiler(spec)
}

func compileConstant(spec TransformSpec) (TransformFunc, error) {
	value, err := canonical.FromAny(spec.Value)
	if err != nil {
		return nil, fmt.Errorf("constant: %w", err)
	}
	return func(*canonical.Value) *canonical.Value { return value }, nil
}

// compileStringFunc lifts a string function into a transform: strings
// map through, null stays null, anything else becomes null.
func compileStringFunc(fn func(string) string) func(TransformSpec) (TransformFunc, error) {
	return func(TransformSpec) (TransformFunc, error) {
		return func(v *canonical.Value) *canonical.Value {
			if v.IsNull() {
				return canonical.Null()
			}
			s, ok := v.Text()
			if !ok {
				return canonical.Null()
			}
			return canonical.String(fn(s))
		}, nil
	}
}

func compileToInt(TransformSpec) (TransformFunc, error) {
	return func(v *canonical.Value) *canonical.Value {
		if i, ok := v.IntValue(); ok {
			return canonical.Int(i)
		}
		s, ok := v.Text()
		if !ok {
			return canonical.Null()
		}
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return canonical.Null()
		}
		return canonical.Int(i)
	}, nil
}

func compileSplit(spec TransformSpec) (TransformFunc, error) {
	delimiter := spec.Delimiter
	if delimiter == "" {
		delimiter = ","
	}
	index := spec.Index
	return func(v *canonical.Value) *canonical.Value {
		s, ok := v.Text()
		if !ok {
			return canonical.Null()
		}
		parts := strings.Split(s, delimiter)
		if index < 0 || index >= len(parts) {
			return canonical.Null()
		}
		return canonical.String(strings.TrimSpace(parts[index]))
	}, nil
}

func compileRegex(spec TransformSpec) (TransformFunc, error) {
	re, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return nil, fmt.Errorf("regex: invalid pattern: %w", err)
	}
	group := spec.Group
	if group == 0 {
		group = 1
	}
	if group >= re.NumSubexp()+1 {
		return nil, fmt.Errorf("regex: pattern has no capture group %d", group)
	}
	return func(v *canonical.Value) *canonical.Value {
		s, ok := v.Text()
		if !ok {
			return canonical.Null()
		}
		match := re.FindStringSubmatch(s)
		if match == nil {
			return canonical.Null()
		}
		return canonical.String(match[group])
	}, nil
}

func compileMap(spec TransformSpec) (TransformFunc, error) {
	lookup := spec.Mapping
	fallback := spec.Default
	return func(v *canonical.Value) *canonical.Value {
		key, ok := v.Scalar()
		if !ok {
			return canonical.Null()
		}
		if mapped, ok := lookup[key]; ok {
			return canonical.String(mapped)
		}
		if fallback != nil {
			return canonical.String(*fallback)
		}
		return canonical.Null()
	}, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanString(s string) string {
	return collapseWhitespace(strings.TrimSpace(s))
}
