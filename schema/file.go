package schema

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LoadFromDir walks a directory tree of JSON schema files and compiles
// them into a registry. A file's kind is decided by which discriminator
// field it carries: entity_name, registry_code, or relationship_name.
func LoadFromDir(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var set SchemaSet

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", path, err)
		}
		if err := addToSet(&set, data); err != nil {
			return fmt.Errorf("schema %s: %w", path, err)
		}
		logger.Debug("loaded schema file", "path", path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("schemas loaded from directory",
		"dir", dir,
		"entities", len(set.Entities),
		"registers", len(set.Registers),
		"relationships", len(set.Relationships))
	return NewRegistry(set)
}

// WriteSetToDir writes a schema set as JSON files, one per schema,
// laid out the way LoadFromDir reads them back.
func WriteSetToDir(set SchemaSet, dir string) error {
	write := func(subdir, name string, v any) error {
		target := filepath.Join(dir, subdir)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", target, err)
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		path := filepath.Join(target, name+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	}

	for _, e := range set.Entities {
		if err := write("entities", e.EntityName, e); err != nil {
			return err
		}
	}
	for _, r := range set.Registers {
		name := r.RegistryCode
		if r.ServiceCode != "" {
			name += "_" + r.ServiceCode
		}
		if err := write("registers", name, r); err != nil {
			return err
		}
	}
	for _, r := range set.Relationships {
		if err := write("relationships", r.RelationshipName, r); err != nil {
			return err
		}
	}
	return nil
}

// addToSet decodes one schema document into the matching slot of the
// set. Top-level JSON arrays hold several schemas of one kind.
func addToSet(set *SchemaSet, data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		for i, item := range raw {
			if err := addToSet(set, item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	}

	var probe struct {
		EntityName       string `json:"entity_name"`
		RegistryCode     string `json:"registry_code"`
		RelationshipName string `json:"relationship_name"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch {
	case probe.EntityName != "":
		var e EntitySchema
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		set.Entities = append(set.Entities, &e)
	case probe.RelationshipName != "":
		var rel RelationshipSchema
		if err := json.Unmarshal(data, &rel); err != nil {
			return err
		}
		set.Relationships = append(set.Relationships, &rel)
	case probe.RegistryCode != "":
		var reg RegisterSchema
		if err := json.Unmarshal(data, &reg); err != nil {
			return err
		}
		set.Registers = append(set.Registers, &reg)
	default:
		return fmt.Errorf("not a schema document (no entity_name, registry_code, or relationship_name)")
	}
	return nil
}
