package schema

import (
	"fmt"
	"sort"

	"github.com/c360studio/registrygraph/canonical"
)

// Registry is the compiled, read-only schema set the pipeline runs
// against. Build one with NewRegistry (or a loader) at startup and
// share it across workers.
type Registry struct {
	entities      map[string]*EntitySchema
	registers     []*RegisterSchema
	relationships map[string]*RelationshipSchema
}

// SchemaSet is the raw, uncompiled input to NewRegistry. Loaders fill
// one from files, MongoDB, or the builtin seed.
type SchemaSet struct {
	Entities      []*EntitySchema
	Registers     []*RegisterSchema
	Relationships []*RelationshipSchema
}

// NewRegistry compiles a schema set. Any invalid schema fails the whole
// load; a half-compiled registry never reaches the pipeline.
func NewRegistry(set SchemaSet) (*Registry, error) {
	r := &Registry{
		entities:      make(map[string]*EntitySchema, len(set.Entities)),
		relationships: make(map[string]*RelationshipSchema, len(set.Relationships)),
	}
	for _, e := range set.Entities {
		if err := e.compile(); err != nil {
			return nil, err
		}
		if _, dup := r.entities[e.EntityName]; dup {
			return nil, fmt.Errorf("duplicate entity schema %s", e.EntityName)
		}
		r.entities[e.EntityName] = e
	}
	for _, reg := range set.Registers {
		if err := reg.compile(); err != nil {
			return nil, err
		}
		r.registers = append(r.registers, reg)
	}
	for _, rel := range set.Relationships {
		if err := rel.compile(); err != nil {
			return nil, err
		}
		if _, dup := r.relationships[rel.RelationshipName]; dup {
			return nil, fmt.Errorf("duplicate relationship schema %s", rel.RelationshipName)
		}
		r.relationships[rel.RelationshipName] = rel
	}
	// Deterministic register order keeps resolution and logs stable
	// regardless of load source.
	sort.SliceStable(r.registers, func(i, j int) bool {
		a, b := r.registers[i], r.registers[j]
		if a.RegistryCode != b.RegistryCode {
			return a.RegistryCode < b.RegistryCode
		}
		return a.ServiceCode < b.ServiceCode
	})
	return r, nil
}

// Entity returns the entity schema for a label.
func (r *Registry) Entity(name string) (*EntitySchema, error) {
	e, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", name, ErrNotFound)
	}
	return e, nil
}

// Entities returns all entity schemas in name order.
func (r *Registry) Entities() []*EntitySchema {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*EntitySchema, 0, len(names))
	for _, name := range names {
		out = append(out, r.entities[name])
	}
	return out
}

// Registers returns all register schemas.
func (r *Registry) Registers() []*RegisterSchema { return r.registers }

// Relationship returns a relationship schema by name.
func (r *Registry) Relationship(name string) (*RelationshipSchema, error) {
	rel, ok := r.relationships[name]
	if !ok {
		return nil, fmt.Errorf("relationship %s: %w", name, ErrNotFound)
	}
	return rel, nil
}

// Relationships returns all relationship schemas in name order.
func (r *Registry) Relationships() []*RelationshipSchema {
	names := make([]string, 0, len(r.relationships))
	for name := range r.relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*RelationshipSchema, 0, len(names))
	for _, name := range names {
		out = append(out, r.relationships[name])
	}
	return out
}

// Resolve evaluates every variant of every register schema against the
// document and picks the best match globally. Registry metadata on the
// document never pre-filters candidates; content decides. Candidates
// rank by score, then declared priority; a tie on both at the top is
// an ambiguity.
func (r *Registry) Resolve(doc *canonical.Value) (*Resolution, error) {
	if len(r.registers) == 0 {
		return nil, fmt.Errorf("no register schemas loaded: %w", ErrNotFound)
	}

	type candidate struct {
		register *RegisterSchema
		variant  *Variant
		score    int
	}
	res := &Resolution{}
	var candidates []candidate

	for _, register := range r.registers {
		for _, v := range register.Variants {
			result := v.Predicate().Evaluate(doc)
			res.Attempts = append(res.Attempts, Attempt{
				VariantID: v.VariantID,
				Matched:   result.Matched,
				Score:     result.Score,
				Priority:  v.Priority,
				Reasons:   result.Reasons,
			})
			if result.Matched {
				candidates = append(candidates, candidate{register: register, variant: v, score: result.Score})
			}
		}
	}

	if len(candidates) == 0 {
		return res, ErrNoVariant
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].variant.Priority > candidates[j].variant.Priority
	})
	if len(candidates) > 1 {
		top, next := candidates[0], candidates[1]
		if top.score == next.score && top.variant.Priority == next.variant.Priority {
			return res, fmt.Errorf("variants %s and %s tie at score %d: %w",
				top.variant.VariantID, next.variant.VariantID, top.score, ErrAmbiguousVariant)
		}
	}
	res.Register = candidates[0].register
	res.Variant = candidates[0].variant
	return res, nil
}
