package mapper

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/c360studio/registrygraph/canonical"
	"github.com/c360studio/registrygraph/schema"
)

func parseTree(t *testing.T, src string) *canonical.Value {
	t.Helper()
	v, err := canonical.ParseJSON([]byte(src))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return v
}

func builtinRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r, err := schema.NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("NewBuiltinRegistry() error = %v", err)
	}
	return r
}

func identityHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func findInstance(instances []*Instance, ref string) *Instance {
	for _, inst := range instances {
		if inst.EntityRef == ref {
			return inst
		}
	}
	return nil
}

func TestMapPersonWithDocuments(t *testing.T) {
	registry := builtinRegistry(t)
	tree := parseTree(t, `{
		"data": {"root": {"result": {
			"unzr": "U1",
			"last_name": "Ivanov",
			"first_name": "Ivan",
			"documents": [
				{"series": "ab", "number": "123456", "date_issue": "2019-01-15"},
				{"number": "999999"}
			]
		}}}
	}`)

	res, err := registry.Resolve(tree)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Variant.VariantID != "eis_person_v1" {
		t.Fatalf("resolved %s, want eis_person_v1", res.Variant.VariantID)
	}

	instances, err := NewMapper(nil).Map(tree, res.Variant)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	AssignIdentities(instances, registry, "doc-1")

	subject := findInstance(instances, "Subject")
	if subject == nil {
		t.Fatal("no Subject instance")
	}
	if subject.ScopeRoot != "$" {
		t.Errorf("subject scope = %s, want document root", subject.ScopeRoot)
	}
	// No rnokpp, so identity falls through to the unzr key.
	if want := identityHash("Person", "U1"); subject.NodeID != want {
		t.Errorf("subject node id = %s, want %s", subject.NodeID, want)
	}
	if subject.DocScoped {
		t.Error("subject should carry a stable identity, not a doc-scoped one")
	}

	var docs []*Instance
	for _, inst := range instances {
		if inst.EntityRef == "IdentityDocument" {
			docs = append(docs, inst)
		}
	}
	if len(docs) != 2 {
		t.Fatalf("document instances = %d, want 2", len(docs))
	}
	// Series normalizes trim+upper before hashing.
	if want := identityHash("Document", "AB", "123456"); docs[0].NodeID != want {
		t.Errorf("first document node id = %s, want %s", docs[0].NodeID, want)
	}
	// Second document has no series; the number-only key applies.
	if want := identityHash("Document", "999999"); docs[1].NodeID != want {
		t.Errorf("second document node id = %s, want %s", docs[1].NodeID, want)
	}

	edges := BuildRelationships(registry.Relationships(), instances, nil)
	var hasDoc int
	for _, e := range edges {
		if e.Type == "HAS_DOCUMENT" {
			hasDoc++
			if e.FromID != subject.NodeID {
				t.Errorf("edge from %s, want subject id", e.FromID)
			}
		}
	}
	if hasDoc != 2 {
		t.Errorf("HAS_DOCUMENT edges = %d, want 2 (root subject pairs with every document)", hasDoc)
	}
}

func TestMapVehicleOwnersScopedPairing(t *testing.T) {
	registry := builtinRegistry(t)
	tree := parseTree(t, `{
		"data": {"root": {"CARS": [
			{"VIN": " abc12345 ", "BRAND": "VW", "OWNER": {"CODE": "1234567890", "LNAME": "Petrenko"}},
			{"VIN": "XYZ99999", "BRAND": "Skoda", "OWNER": {"CODE": "0987654321", "LNAME": "Shevchenko"}}
		]}}
	}`)

	res, err := registry.Resolve(tree)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Variant.VariantID != "vehicle_owner_v1" {
		t.Fatalf("resolved %s, want vehicle_owner_v1", res.Variant.VariantID)
	}

	instances, err := NewMapper(nil).Map(tree, res.Variant)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	AssignIdentities(instances, registry, "doc-2")

	edges := BuildRelationships(registry.Relationships(), instances, nil)
	var owns []*Edge
	for _, e := range edges {
		if e.Type == "OWNS_VEHICLE" {
			owns = append(owns, e)
		}
	}
	// Owners and cars share a scope item, so owner 1 must not pair with
	// car 2.
	if len(owns) != 2 {
		t.Fatalf("OWNS_VEHICLE edges = %d, want 2", len(owns))
	}
	firstOwner := identityHash("Person", "1234567890")
	firstCar := identityHash("Vehicle", "ABC12345")
	found := false
	for _, e := range owns {
		if e.FromID == firstOwner {
			found = true
			if e.ToID != firstCar {
				t.Errorf("owner 1 linked to %s, want their own car %s", e.ToID, firstCar)
			}
			role := e.Properties["role"]
			if role == nil {
				t.Error("edge missing role property")
			} else if s, _ := role.Text(); s != "owner" {
				t.Errorf("role = %q, want owner", s)
			}
		}
	}
	if !found {
		t.Error("no edge from the first owner")
	}
}

func TestDocScopedFallbackIsPerDocument(t *testing.T) {
	registry := builtinRegistry(t)
	// A person with only a first name satisfies no identity key.
	tree := parseTree(t, `{
		"data": {"root": {"result": {"last_name": "X", "first_name": "Anon"}}}
	}`)

	res, err := registry.Resolve(tree)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	run := func(docID string) *Instance {
		instances, err := NewMapper(nil).Map(tree, res.Variant)
		if err != nil {
			t.Fatalf("Map() error = %v", err)
		}
		AssignIdentities(instances, registry, docID)
		return findInstance(instances, "Subject")
	}

	a := run("doc-a")
	b := run("doc-b")
	if a == nil || b == nil {
		t.Fatal("missing Subject instance")
	}
	if a.NodeID == "" {
		t.Fatal("subject should fall back to a doc-scoped id, not drop")
	}

	// The last_name identity key exists for Person via full_name only;
	// last_name alone must not produce a stable id.
	if !a.DocScoped || !b.DocScoped {
		t.Error("instances without identity properties must be doc-scoped")
	}
	if a.NodeID == b.NodeID {
		t.Error("doc-scoped ids must differ across documents")
	}
	if !strings.HasPrefix(a.NodeID, "DOCSCOPED:doc-a:") {
		t.Errorf("unexpected fallback id %s", a.NodeID)
	}
}

func TestMapRequiredMissing(t *testing.T) {
	v := &schema.Variant{
		VariantID: "v1",
		Mappings: []*schema.Mapping{{
			MappingID: "must",
			Source:    schema.MappingSource{JSONPath: "$.data.nope"},
			Targets:   []schema.Target{{Entity: "Person", Property: "rnokpp"}},
			Required:  true,
		}},
	}
	reg := &schema.RegisterSchema{RegistryCode: "T", Variants: []*schema.Variant{v}}
	set := schema.SchemaSet{Registers: []*schema.RegisterSchema{reg}}
	if _, err := schema.NewRegistry(set); err != nil {
		t.Fatalf("compile: %v", err)
	}

	tree := parseTree(t, `{"data": {"x": 1}}`)
	_, err := NewMapper(nil).Map(tree, v)
	if !errors.Is(err, ErrRequiredMissing) {
		t.Errorf("Map() error = %v, want ErrRequiredMissing", err)
	}
}

func TestMapFirstWriteWins(t *testing.T) {
	v := &schema.Variant{
		VariantID: "v1",
		Mappings: []*schema.Mapping{
			{
				MappingID: "first",
				Source:    schema.MappingSource{JSONPath: "$.data.a"},
				Targets:   []schema.Target{{Entity: "Person", Property: "last_name"}},
			},
			{
				MappingID: "second",
				Source:    schema.MappingSource{JSONPath: "$.data.b"},
				Targets:   []schema.Target{{Entity: "Person", Property: "last_name"}},
			},
		},
	}
	reg := &schema.RegisterSchema{RegistryCode: "T", Variants: []*schema.Variant{v}}
	if _, err := schema.NewRegistry(schema.SchemaSet{Registers: []*schema.RegisterSchema{reg}}); err != nil {
		t.Fatalf("compile: %v", err)
	}

	tree := parseTree(t, `{"data": {"a": "keep", "b": "drop"}}`)
	instances, err := NewMapper(nil).Map(tree, v)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("instances = %d, want 1", len(instances))
	}
	if s, _ := instances[0].Property("last_name").Text(); s != "keep" {
		t.Errorf("last_name = %q, want the first write to win", s)
	}
}
