// Package canonical normalizes raw registry documents (XML, JSON,
// query-string logs) into a uniform tree of scalars, sequences, and
// mappings. The tree is the sole input shape for path and predicate
// evaluation downstream.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind discriminates the variants of a canonical tree value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindSequence
	KindMapping
)

// String returns the kind name for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is one node of a canonical tree: a scalar, an ordered sequence,
// or a string-keyed mapping. The zero value is null.
type Value struct {
	kind Kind
	str  string
	i    int64
	f    float64
	b    bool
	seq  []*Value
	obj  map[string]*Value
}

// Null returns the null value.
func Null() *Value { return &Value{kind: KindNull} }

// String returns a string scalar.
func String(s string) *Value { return &Value{kind: KindString, str: s} }

// Int returns an integer scalar.
func Int(i int64) *Value { return &Value{kind: KindInt, i: i} }

// Float returns a floating-point scalar.
func Float(f float64) *Value { return &Value{kind: KindFloat, f: f} }

// Bool returns a boolean scalar.
func Bool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// Sequence returns an ordered sequence of the given items.
func Sequence(items ...*Value) *Value {
	return &Value{kind: KindSequence, seq: items}
}

// Mapping returns an empty mapping.
func Mapping() *Value {
	return &Value{kind: KindMapping, obj: make(map[string]*Value)}
}

// Kind reports which variant this value holds.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether the value is null (or a nil pointer).
func (v *Value) IsNull() bool { return v.Kind() == KindNull }

// IsScalar reports whether the value is a scalar (including null).
func (v *Value) IsScalar() bool {
	k := v.Kind()
	return k != KindSequence && k != KindMapping
}

// Text returns the string payload of a string scalar.
func (v *Value) Text() (string, bool) {
	if v.Kind() != KindString {
		return "", false
	}
	return v.str, true
}

// IntValue returns the integer payload of an int scalar.
func (v *Value) IntValue() (int64, bool) {
	if v.Kind() != KindInt {
		return 0, false
	}
	return v.i, true
}

// FloatValue returns the float payload of a float scalar.
func (v *Value) FloatValue() (float64, bool) {
	if v.Kind() != KindFloat {
		return 0, false
	}
	return v.f, true
}

// BoolValue returns the boolean payload of a bool scalar.
func (v *Value) BoolValue() (bool, bool) {
	if v.Kind() != KindBool {
		return false, false
	}
	return v.b, true
}

// Scalar renders any scalar as a string. Sequences and mappings
// report ok=false.
func (v *Value) Scalar() (string, bool) {
	switch v.Kind() {
	case KindString:
		return v.str, true
	case KindInt:
		return strconv.FormatInt(v.i, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64), true
	case KindBool:
		return strconv.FormatBool(v.b), true
	case KindNull:
		return "", true
	default:
		return "", false
	}
}

// Items returns the elements of a sequence, or nil for other kinds.
func (v *Value) Items() []*Value {
	if v.Kind() != KindSequence {
		return nil
	}
	return v.seq
}

// Append adds an item to a sequence.
func (v *Value) Append(item *Value) {
	if v.Kind() == KindSequence {
		v.seq = append(v.seq, item)
	}
}

// Field looks up a mapping entry by key.
func (v *Value) Field(key string) (*Value, bool) {
	if v.Kind() != KindMapping {
		return nil, false
	}
	child, ok := v.obj[key]
	return child, ok
}

// Set assigns a mapping entry.
func (v *Value) Set(key string, child *Value) {
	if v.Kind() == KindMapping {
		v.obj[key] = child
	}
}

// Keys returns the mapping keys in sorted order.
func (v *Value) Keys() []string {
	if v.Kind() != KindMapping {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of sequence items or mapping entries.
func (v *Value) Len() int {
	switch v.Kind() {
	case KindSequence:
		return len(v.seq)
	case KindMapping:
		return len(v.obj)
	default:
		return 0
	}
}

// Equal reports deep structural equality of two trees.
func (v *Value) Equal(other *Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBool:
		return v.b == other.b
	case KindSequence:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.obj) != len(other.obj) {
			return false
		}
		for k, child := range v.obj {
			oc, ok := other.obj[k]
			if !ok || !child.Equal(oc) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalCanonical renders the tree as deterministic JSON: mapping keys
// sorted, no insignificant whitespace. Byte-equal trees always produce
// byte-equal output, which keeps the canonical hash stable.
func (v *Value) MarshalCanonical() []byte {
	var buf bytes.Buffer
	v.writeCanonical(&buf)
	return buf.Bytes()
}

func (v *Value) writeCanonical(buf *bytes.Buffer) {
	switch v.Kind() {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		b, _ := json.Marshal(v.str)
		buf.Write(b)
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		buf.WriteString(strconv.FormatFloat(v.f, 'g', -1, 64))
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.writeCanonical(buf)
		}
		buf.WriteByte(']')
	case KindMapping:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			v.obj[k].writeCanonical(buf)
		}
		buf.WriteByte('}')
	}
}

// Native converts the tree to plain Go values (nil, string, int64,
// float64, bool, []any, map[string]any), the shape database drivers
// accept as parameters.
func (v *Value) Native() any {
	switch v.Kind() {
	case KindString:
		return v.str
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Native()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.obj))
		for k, child := range v.obj {
			out[k] = child.Native()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler using the canonical rendering.
func (v *Value) MarshalJSON() ([]byte, error) {
	return v.MarshalCanonical(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = *parsed
	return nil
}

// ParseJSON decodes JSON bytes into a canonical tree. Numbers without a
// fraction or exponent become int scalars; everything else numeric
// becomes a float.
func ParseJSON(data []byte) (*Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	// Reject trailing garbage after the first JSON value.
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return FromAny(raw)
}

// FromAny converts decoded JSON (maps, slices, json.Number, scalars)
// into a canonical tree.
func FromAny(raw any) (*Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil && !numberLooksFloat(t.String()) {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Float(f), nil
	case float64:
		return Float(t), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case []any:
		seq := Sequence()
		for _, item := range t {
			child, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			seq.Append(child)
		}
		return seq, nil
	case map[string]any:
		m := Mapping()
		for k, item := range t {
			child, err := FromAny(item)
			if err != nil {
				return nil, err
			}
			m.Set(k, child)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
}

func numberLooksFloat(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', 'e', 'E':
			return true
		}
	}
	return false
}
