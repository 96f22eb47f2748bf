package mapper

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/c360studio/registrygraph/schema"
)

const identitySeparator = "|"

// AssignIdentity walks the entity schema's identity keys in declared
// order and sets the instance node id from the first key whose
// when.exists properties are all present. The id is the SHA-256 of the
// label joined with the normalized key values, so equal identities
// collide across documents, processes, and platforms.
//
// When no key matches, the instance gets a doc-scoped id that can never
// merge with another document's nodes; ambiguous records stay traceable
// instead of silently merging.
func AssignIdentity(inst *Instance, es *schema.EntitySchema, documentID string) {
	for _, key := range es.IdentityKeys {
		if !hasAll(inst, key.When.Exists) {
			continue
		}
		parts := make([]string, 0, len(key.Properties))
		for _, name := range key.Properties {
			parts = append(parts, normalizedValue(inst, es, name))
		}
		identity := inst.Label + identitySeparator + strings.Join(parts, identitySeparator)
		sum := sha256.Sum256([]byte(identity))
		inst.NodeID = hex.EncodeToString(sum[:])
		inst.DocScoped = false
		return
	}
	inst.NodeID = fmt.Sprintf("DOCSCOPED:%s:%s", documentID, inst.InstanceKey())
	inst.DocScoped = true
}

// AssignIdentities resolves node ids for a whole instance list against
// the schema registry. Instances whose label has no entity schema fall
// back to doc-scoped ids.
func AssignIdentities(instances []*Instance, registry *schema.Registry, documentID string) {
	for _, inst := range instances {
		es, err := registry.Entity(inst.Label)
		if err != nil {
			inst.NodeID = fmt.Sprintf("DOCSCOPED:%s:%s", documentID, inst.InstanceKey())
			inst.DocScoped = true
			continue
		}
		AssignIdentity(inst, es, documentID)
	}
}

func hasAll(inst *Instance, names []string) bool {
	for _, name := range names {
		v := inst.Property(name)
		if v == nil || v.IsNull() {
			return false
		}
		if s, ok := v.Text(); ok && strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

// normalizedValue renders a property scalar and applies the property
// schema's normalize steps, so identity is insensitive to the surface
// noise registries produce (stray spaces, case drift).
func normalizedValue(inst *Instance, es *schema.EntitySchema, name string) string {
	v := inst.Property(name)
	if v == nil || v.IsNull() {
		return ""
	}
	s, ok := v.Scalar()
	if !ok {
		return ""
	}
	if p, declared := es.Property(name); declared {
		s = applyNormalize(s, p.Normalize)
	}
	return s
}

func applyNormalize(s string, steps []string) string {
	for _, step := range steps {
		switch step {
		case "trim":
			s = strings.TrimSpace(s)
		case "upper":
			s = strings.ToUpper(s)
		case "lower":
			s = strings.ToLower(s)
		case "collapse_spaces", "clean":
			s = strings.Join(strings.Fields(s), " ")
		}
	}
	return s
}
