package jsonpath

import (
	"testing"

	"github.com/c360studio/registrygraph/canonical"
)

func tree(t *testing.T, src string) *canonical.Value {
	t.Helper()
	v, err := canonical.ParseJSON([]byte(src))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return v
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"empty member", "$.a..b"},
		{"trailing dot", "$.a."},
		{"unterminated index", "$.a[1"},
		{"bad index", "$.a[x]"},
		{"negative index", "$.a[-1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.expr); err == nil {
				t.Errorf("Compile(%q) succeeded, want error", tt.expr)
			}
		})
	}
}

func TestValues(t *testing.T) {
	root := tree(t, `{
		"a": {"b": [{"v": 1}, {"v": 2}, {"v": null}]},
		"single": {"v": "only"},
		"empty": null
	}`)

	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"nested member", "$.a.b[0].v", []string{"1"}},
		{"index", "$.a.b[1].v", []string{"2"}},
		{"wildcard over sequence", "$.a.b[*].v", []string{"1", "2"}},
		{"wildcard over mapping collapses to one", "$.single[*].v", []string{"only"}},
		{"missing path", "$.a.missing", nil},
		{"null leaf dropped", "$.empty", nil},
		{"out of range index", "$.a.b[9].v", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := MustCompile(tt.expr)
			values := path.Values(root)
			if len(values) != len(tt.want) {
				t.Fatalf("Values(%q) returned %d matches, want %d", tt.expr, len(values), len(tt.want))
			}
			for i, v := range values {
				s, _ := v.Scalar()
				if s != tt.want[i] {
					t.Errorf("match %d = %q, want %q", i, s, tt.want[i])
				}
			}
		})
	}
}

func TestBareLeadingMember(t *testing.T) {
	root := tree(t, `{"name": "x"}`)
	path, err := Compile("name")
	if err != nil {
		t.Fatalf("Compile(name) error = %v", err)
	}
	if !path.Exists(root) {
		t.Error("bare member path should resolve against the root mapping")
	}
}

func TestFirstAndExists(t *testing.T) {
	root := tree(t, `{"list": ["a", "b"]}`)
	if v := MustCompile("$.list[*]").First(root); v == nil {
		t.Fatal("First() = nil")
	} else if s, _ := v.Text(); s != "a" {
		t.Errorf("First() = %q, want a", s)
	}
	if MustCompile("$.nope").Exists(root) {
		t.Error("Exists() true for missing path")
	}
}
