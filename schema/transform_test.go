package schema

import (
	"testing"

	"github.com/c360studio/registrygraph/canonical"
)

func TestCompileTransform(t *testing.T) {
	fallback := "OTHER"

	tests := []struct {
		name  string
		spec  TransformSpec
		input *canonical.Value
		want  *canonical.Value
	}{
		{
			name:  "constant ignores input",
			spec:  TransformSpec{Kind: "constant", Value: "birth"},
			input: canonical.Null(),
			want:  canonical.String("birth"),
		},
		{
			name:  "trim",
			spec:  TransformSpec{Kind: "trim"},
			input: canonical.String("  x  "),
			want:  canonical.String("x"),
		},
		{
			name:  "upper",
			spec:  TransformSpec{Kind: "upper"},
			input: canonical.String("vin123"),
			want:  canonical.String("VIN123"),
		},
		{
			name:  "lower",
			spec:  TransformSpec{Kind: "lower"},
			input: canonical.String("ABC"),
			want:  canonical.String("abc"),
		},
		{
			name:  "collapse_spaces",
			spec:  TransformSpec{Kind: "collapse_spaces"},
			input: canonical.String("a  b\t c"),
			want:  canonical.String("a b c"),
		},
		{
			name:  "clean",
			spec:  TransformSpec{Kind: "clean"},
			input: canonical.String("  a   b  "),
			want:  canonical.String("a b"),
		},
		{
			name:  "string func on non-string yields null",
			spec:  TransformSpec{Kind: "trim"},
			input: canonical.Sequence(canonical.Int(1)),
			want:  canonical.Null(),
		},
		{
			name:  "to_int from string",
			spec:  TransformSpec{Kind: "to_int"},
			input: canonical.String(" 42 "),
			want:  canonical.Int(42),
		},
		{
			name:  "to_int passes ints through",
			spec:  TransformSpec{Kind: "to_int"},
			input: canonical.Int(7),
			want:  canonical.Int(7),
		},
		{
			name:  "to_int garbage yields null",
			spec:  TransformSpec{Kind: "to_int"},
			input: canonical.String("n/a"),
			want:  canonical.Null(),
		},
		{
			name:  "split default delimiter",
			spec:  TransformSpec{Kind: "split", Index: 1},
			input: canonical.String("a, b, c"),
			want:  canonical.String("b"),
		},
		{
			name:  "split out of range yields null",
			spec:  TransformSpec{Kind: "split", Index: 9},
			input: canonical.String("a,b"),
			want:  canonical.Null(),
		},
		{
			name:  "regex capture group",
			spec:  TransformSpec{Kind: "regex", Pattern: `№\s*(\d+)`},
			input: canonical.String("запис № 123 від"),
			want:  canonical.String("123"),
		},
		{
			name:  "regex no match yields null",
			spec:  TransformSpec{Kind: "regex", Pattern: `(\d+)`},
			input: canonical.String("none"),
			want:  canonical.Null(),
		},
		{
			name:  "map hit",
			spec:  TransformSpec{Kind: "map", Mapping: map[string]string{"1": "male", "2": "female"}},
			input: canonical.String("1"),
			want:  canonical.String("male"),
		},
		{
			name:  "map miss without default yields null",
			spec:  TransformSpec{Kind: "map", Mapping: map[string]string{"1": "male"}},
			input: canonical.String("9"),
			want:  canonical.Null(),
		},
		{
			name:  "map miss with default",
			spec:  TransformSpec{Kind: "map", Mapping: map[string]string{"1": "male"}, Default: &fallback},
			input: canonical.String("9"),
			want:  canonical.String("OTHER"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := CompileTransform(tt.spec)
			if err != nil {
				t.Fatalf("CompileTransform() error = %v", err)
			}
			got := fn(tt.input)
			if !got.Equal(tt.want) {
				t.Errorf("transform = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompileTransformErrors(t *testing.T) {
	tests := []struct {
		name string
		spec TransformSpec
	}{
		{"unknown kind", TransformSpec{Kind: "reverse"}},
		{"bad regex", TransformSpec{Kind: "regex", Pattern: "("}},
		{"regex without capture group", TransformSpec{Kind: "regex", Pattern: `\d+`}},
		{"regex group out of range", TransformSpec{Kind: "regex", Pattern: `(\d+)`, Group: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompileTransform(tt.spec); err == nil {
				t.Error("CompileTransform() succeeded, want error")
			}
		})
	}
}
