package schema

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteSetToDirRoundTrip(t *testing.T) {
	dir := t.TempDir()
	set := BuiltinSet()

	if err := WriteSetToDir(set, dir); err != nil {
		t.Fatalf("WriteSetToDir() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	r, err := LoadFromDir(dir, logger)
	if err != nil {
		t.Fatalf("LoadFromDir() error = %v", err)
	}

	if got, want := len(r.Entities()), len(set.Entities); got != want {
		t.Errorf("entities = %d, want %d", got, want)
	}
	if got, want := len(r.Registers()), len(set.Registers); got != want {
		t.Errorf("registers = %d, want %d", got, want)
	}
	if got, want := len(r.Relationships()), len(set.Relationships); got != want {
		t.Errorf("relationships = %d, want %d", got, want)
	}

	person, err := r.Entity("Person")
	if err != nil {
		t.Fatalf("Entity(Person) error = %v", err)
	}
	if len(person.IdentityKeys) == 0 {
		t.Error("Person lost its identity keys in the round trip")
	}
	if person.ChangeTypeOf("rnokpp") != ChangeImmutable {
		t.Errorf("Person.rnokpp change type = %s, want immutable", person.ChangeTypeOf("rnokpp"))
	}
}

func TestLoadFromDirArrayFile(t *testing.T) {
	dir := t.TempDir()
	content := `[
		{"entity_name": "Widget", "identity_keys": [{"when": {"exists": ["sku"]}, "properties": ["sku"]}],
		 "properties": [{"name": "sku", "type": "string"}]},
		{"entity_name": "Gadget", "identity_keys": [{"when": {"exists": ["id"]}, "properties": ["id"]}],
		 "properties": [{"name": "id", "type": "string"}]}
	]`
	if err := os.WriteFile(filepath.Join(dir, "entities.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadFromDir(dir, nil)
	if err != nil {
		t.Fatalf("LoadFromDir() error = %v", err)
	}
	if len(r.Entities()) != 2 {
		t.Errorf("entities = %d, want 2", len(r.Entities()))
	}
}

func TestLoadFromDirRejectsUnknownDocument(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "junk.json"), []byte(`{"foo": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromDir(dir, nil); err == nil {
		t.Error("expected error for a JSON file with no schema discriminator")
	}
}
