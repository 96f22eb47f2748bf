package canonical

import (
	"bytes"
	"testing"
)

func TestMarshalCanonicalDeterministic(t *testing.T) {
	build := func(order []string) *Value {
		m := Mapping()
		for _, k := range order {
			switch k {
			case "b":
				m.Set("b", Int(2))
			case "a":
				m.Set("a", String("x"))
			case "c":
				seq := Sequence(String("one"), Null(), Bool(true))
				m.Set("c", seq)
			}
		}
		return m
	}

	first := build([]string{"a", "b", "c"}).MarshalCanonical()
	second := build([]string{"c", "b", "a"}).MarshalCanonical()
	if !bytes.Equal(first, second) {
		t.Errorf("insertion order changed canonical output:\n%s\n%s", first, second)
	}
	want := `{"a":"x","b":2,"c":["one",null,true]}`
	if string(first) != want {
		t.Errorf("canonical output = %s, want %s", first, want)
	}
}

func TestParseJSONNumbers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  Kind
	}{
		{"plain int", `{"v": 42}`, KindInt},
		{"negative int", `{"v": -7}`, KindInt},
		{"fraction", `{"v": 3.14}`, KindFloat},
		{"exponent", `{"v": 1e3}`, KindFloat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := ParseJSON([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseJSON() error = %v", err)
			}
			v, ok := tree.Field("v")
			if !ok {
				t.Fatal("missing field v")
			}
			if v.Kind() != tt.kind {
				t.Errorf("kind = %v, want %v", v.Kind(), tt.kind)
			}
		})
	}
}

func TestParseJSONRejectsTrailingData(t *testing.T) {
	if _, err := ParseJSON([]byte(`{"a":1} {"b":2}`)); err == nil {
		t.Error("expected error for trailing data")
	}
}

func TestValueEqual(t *testing.T) {
	a := Mapping()
	a.Set("x", Sequence(Int(1), Int(2)))
	b := Mapping()
	b.Set("x", Sequence(Int(1), Int(2)))
	if !a.Equal(b) {
		t.Error("structurally equal trees reported unequal")
	}
	b.Set("x", Sequence(Int(2), Int(1)))
	if a.Equal(b) {
		t.Error("sequence order should matter")
	}
}

func TestNativeRoundTrip(t *testing.T) {
	tree, err := ParseJSON([]byte(`{"s":"v","n":5,"f":1.5,"b":true,"z":null,"l":[1,"two"]}`))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	native, ok := tree.Native().(map[string]any)
	if !ok {
		t.Fatalf("Native() = %T, want map", tree.Native())
	}
	if native["s"] != "v" || native["n"] != int64(5) || native["f"] != 1.5 || native["b"] != true {
		t.Errorf("unexpected native scalars: %+v", native)
	}
	if native["z"] != nil {
		t.Errorf("null should convert to nil, got %v", native["z"])
	}
	list, ok := native["l"].([]any)
	if !ok || len(list) != 2 {
		t.Errorf("unexpected native list: %v", native["l"])
	}
}
