// Package schema holds the declarative schemas that drive ingestion:
// entity schemas (identity and merge rules), relationship schemas
// (edge creation rules), and register schemas (per-registry variants
// with match predicates and mappings). Schemas load from JSON files or
// MongoDB, compile once, and are then shared read-only.
package schema

import (
	"fmt"

	"github.com/c360studio/registrygraph/jsonpath"
	"github.com/c360studio/registrygraph/predicate"
)

// ChangeType classifies how a property is expected to evolve across
// documents; the merge policy keys off it.
type ChangeType string

const (
	ChangeImmutable     ChangeType = "immutable"
	ChangeRarelyChanged ChangeType = "rarely_changed"
	ChangeDynamic       ChangeType = "dynamic"
)

// IdentityWhen gates an identity key on property presence.
type IdentityWhen struct {
	Exists []string `json:"exists"`
}

// IdentityKey is one candidate identity for an entity. Keys are tried
// in declaration order; the first whose When is satisfied wins.
type IdentityKey struct {
	Priority   int          `json:"priority,omitempty"`
	When       IdentityWhen `json:"when"`
	Properties []string     `json:"properties"`
}

// PropertySchema declares one entity property.
type PropertySchema struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Required   bool       `json:"is_required,omitempty"`
	ChangeType ChangeType `json:"change_type,omitempty"`
	Normalize  []string   `json:"normalize,omitempty"`
}

// MergePolicy names the conflict resolutions per change type. The
// values are informational; behavior is fixed by change type.
type MergePolicy struct {
	Default               string `json:"default,omitempty"`
	ImmutableConflict     string `json:"immutable_conflict,omitempty"`
	RarelyChangedConflict string `json:"rarely_changed_conflict,omitempty"`
	DynamicConflict       string `json:"dynamic_conflict,omitempty"`
}

// GraphEntityConfig carries the graph-side configuration of an entity.
type GraphEntityConfig struct {
	Labels     []string `json:"labels,omitempty"`
	PrimaryKey string   `json:"primary_key,omitempty"`
}

// EntitySchema declares an entity label, its identity keys, its
// properties, and its merge policy.
type EntitySchema struct {
	EntityName   string            `json:"entity_name"`
	Graph        GraphEntityConfig `json:"graph,omitempty"`
	IdentityKeys []IdentityKey     `json:"identity_keys"`
	Properties   []PropertySchema  `json:"properties"`
	MergePolicy  MergePolicy       `json:"merge_policy,omitempty"`
	Version      int               `json:"version,omitempty"`
	Status       string            `json:"status,omitempty"`

	byName map[string]*PropertySchema
}

// Property looks up a property schema by name.
func (e *EntitySchema) Property(name string) (*PropertySchema, bool) {
	p, ok := e.byName[name]
	return p, ok
}

// ChangeTypeOf returns the change type of a property, defaulting to
// rarely_changed for undeclared properties.
func (e *EntitySchema) ChangeTypeOf(name string) ChangeType {
	if p, ok := e.byName[name]; ok && p.ChangeType != "" {
		return p.ChangeType
	}
	return ChangeRarelyChanged
}

func (e *EntitySchema) compile() error {
	if e.EntityName == "" {
		return fmt.Errorf("entity schema: entity_name is required")
	}
	e.byName = make(map[string]*PropertySchema, len(e.Properties))
	for i := range e.Properties {
		p := &e.Properties[i]
		if p.Name == "" {
			return fmt.Errorf("entity %s: property %d has no name", e.EntityName, i)
		}
		switch p.ChangeType {
		case "", ChangeImmutable, ChangeRarelyChanged, ChangeDynamic:
		default:
			return fmt.Errorf("entity %s: property %s: unknown change_type %q", e.EntityName, p.Name, p.ChangeType)
		}
		e.byName[p.Name] = p
	}
	for _, key := range e.IdentityKeys {
		if len(key.Properties) == 0 {
			return fmt.Errorf("entity %s: identity key with no properties", e.EntityName)
		}
	}
	return nil
}

// RelGraphConfig declares the directed typed edge a relationship
// schema produces.
type RelGraphConfig struct {
	Type      string `json:"type"`
	Direction string `json:"direction,omitempty"`
	FromLabel string `json:"from_label"`
	ToLabel   string `json:"to_label"`
}

// RelBindRef names the mapper entity reference an endpoint binds to.
type RelBindRef struct {
	EntityRef string `json:"entity_ref"`
}

// RelBind binds both endpoints of a creation rule.
type RelBind struct {
	From RelBindRef `json:"from"`
	To   RelBindRef `json:"to"`
}

// RelProperty is one edge property: a constant value or a path
// evaluated against the scope item.
type RelProperty struct {
	Name      string `json:"name"`
	Value     any    `json:"value,omitempty"`
	ValueFrom string `json:"value_from,omitempty"`

	valueFromPath *jsonpath.Path
}

// ValueFromPath returns the compiled value_from path, or nil.
func (p *RelProperty) ValueFromPath() *jsonpath.Path { return p.valueFromPath }

// CreationRule binds relationship endpoints to entity references
// emitted by the mapper, with optional rule-level properties.
type CreationRule struct {
	RuleID     string        `json:"rule_id,omitempty"`
	Bind       RelBind       `json:"bind"`
	Properties []RelProperty `json:"properties,omitempty"`
}

// RelationshipSchema declares a directed typed edge and its creation
// rules. Edge uniqueness is (from_id, type, to_id).
type RelationshipSchema struct {
	RelationshipName string         `json:"relationship_name"`
	Graph            RelGraphConfig `json:"graph"`
	CreationRules    []CreationRule `json:"creation_rules"`
	Version          int            `json:"version,omitempty"`
	Status           string         `json:"status,omitempty"`
}

func (r *RelationshipSchema) compile() error {
	if r.RelationshipName == "" {
		return fmt.Errorf("relationship schema: relationship_name is required")
	}
	if r.Graph.Type == "" {
		return fmt.Errorf("relationship %s: graph.type is required", r.RelationshipName)
	}
	for i := range r.CreationRules {
		rule := &r.CreationRules[i]
		if rule.Bind.From.EntityRef == "" || rule.Bind.To.EntityRef == "" {
			return fmt.Errorf("relationship %s: rule %d: bind.from and bind.to are required", r.RelationshipName, i)
		}
		for j := range rule.Properties {
			prop := &rule.Properties[j]
			if prop.ValueFrom == "" {
				continue
			}
			path, err := jsonpath.Compile(prop.ValueFrom)
			if err != nil {
				return fmt.Errorf("relationship %s: rule %d: property %s: %w", r.RelationshipName, i, prop.Name, err)
			}
			prop.valueFromPath = path
		}
	}
	return nil
}

// MappingScope selects the items a mapping iterates over. An empty
// Foreach means a single scope item: the whole document.
type MappingScope struct {
	Foreach string `json:"foreach,omitempty"`
}

// MappingSource selects the value extracted per scope item.
// UseRootContext re-anchors the path at the document root instead of
// the scope item.
type MappingSource struct {
	JSONPath       string `json:"json_path"`
	UseRootContext bool   `json:"use_root_context,omitempty"`
}

// Target routes an extracted value to one entity property.
type Target struct {
	Entity    string `json:"entity"`
	Property  string `json:"property"`
	EntityRef string `json:"entity_ref,omitempty"`
}

// Ref returns the entity reference, defaulting to the entity label.
func (t Target) Ref() string {
	if t.EntityRef != "" {
		return t.EntityRef
	}
	return t.Entity
}

// Mapping is one extraction step of a variant.
type Mapping struct {
	MappingID string          `json:"mapping_id,omitempty"`
	Scope     MappingScope    `json:"scope,omitempty"`
	Source    MappingSource   `json:"source"`
	Filter    *predicate.Spec `json:"filter,omitempty"`
	Transform *TransformSpec  `json:"transform,omitempty"`
	Targets   []Target        `json:"targets"`
	Required  bool            `json:"required,omitempty"`

	foreachPath *jsonpath.Path
	sourcePath  *jsonpath.Path
	filter      *predicate.Predicate
	transform   TransformFunc
}

// ID returns the mapping id, defaulting to "map".
func (m *Mapping) ID() string {
	if m.MappingID != "" {
		return m.MappingID
	}
	return "map"
}

// ForeachPath returns the compiled scope path, or nil for document
// scope.
func (m *Mapping) ForeachPath() *jsonpath.Path { return m.foreachPath }

// SourcePath returns the compiled source path, or nil when the mapping
// has no source (constant transforms need none).
func (m *Mapping) SourcePath() *jsonpath.Path { return m.sourcePath }

// CompiledFilter returns the compiled filter predicate, or nil.
func (m *Mapping) CompiledFilter() *predicate.Predicate { return m.filter }

// TransformFunc returns the compiled transform, or nil.
func (m *Mapping) TransformFunc() TransformFunc { return m.transform }

func (m *Mapping) compile(variantID string, index int) error {
	where := fmt.Sprintf("variant %s: mapping %s[%d]", variantID, m.ID(), index)
	if m.Scope.Foreach != "" {
		path, err := jsonpath.Compile(m.Scope.Foreach)
		if err != nil {
			return fmt.Errorf("%s: scope: %w", where, err)
		}
		m.foreachPath = path
	}
	if m.Source.JSONPath != "" {
		path, err := jsonpath.Compile(m.Source.JSONPath)
		if err != nil {
			return fmt.Errorf("%s: source: %w", where, err)
		}
		m.sourcePath = path
	}
	if m.Filter != nil {
		compiled, err := predicate.Compile(*m.Filter)
		if err != nil {
			return fmt.Errorf("%s: filter: %w", where, err)
		}
		m.filter = compiled
	}
	if m.Transform != nil {
		fn, err := CompileTransform(*m.Transform)
		if err != nil {
			return fmt.Errorf("%s: transform: %w", where, err)
		}
		m.transform = fn
	}
	if len(m.Targets) == 0 {
		return fmt.Errorf("%s: no targets", where)
	}
	for i, t := range m.Targets {
		if t.Entity == "" || t.Property == "" {
			return fmt.Errorf("%s: target %d: entity and property are required", where, i)
		}
	}
	return nil
}

// Variant is one selectable mapping configuration within a register
// schema, chosen by its match predicate.
type Variant struct {
	VariantID      string         `json:"variant_id"`
	Priority       int            `json:"priority,omitempty"`
	MatchPredicate predicate.Spec `json:"match_predicate"`
	Mappings       []*Mapping     `json:"mappings"`

	compiled *predicate.Predicate
}

// Predicate returns the compiled match predicate.
func (v *Variant) Predicate() *predicate.Predicate { return v.compiled }

func (v *Variant) compile() error {
	if v.VariantID == "" {
		return fmt.Errorf("variant: variant_id is required")
	}
	compiled, err := predicate.Compile(v.MatchPredicate)
	if err != nil {
		return fmt.Errorf("variant %s: match_predicate: %w", v.VariantID, err)
	}
	v.compiled = compiled
	for i, m := range v.Mappings {
		if err := m.compile(v.VariantID, i); err != nil {
			return err
		}
	}
	return nil
}

// RegisterSchema groups the variants of one registry source. The codes
// are informational; resolution is predicate-driven.
type RegisterSchema struct {
	RegistryCode string     `json:"registry_code"`
	ServiceCode  string     `json:"service_code,omitempty"`
	MethodCode   string     `json:"method_code,omitempty"`
	Status       string     `json:"status,omitempty"`
	Version      int        `json:"version,omitempty"`
	Variants     []*Variant `json:"variants"`
}

func (r *RegisterSchema) compile() error {
	if r.RegistryCode == "" {
		return fmt.Errorf("register schema: registry_code is required")
	}
	seen := make(map[string]bool)
	for _, v := range r.Variants {
		if err := v.compile(); err != nil {
			return fmt.Errorf("register %s: %w", r.RegistryCode, err)
		}
		if seen[v.VariantID] {
			return fmt.Errorf("register %s: duplicate variant_id %s", r.RegistryCode, v.VariantID)
		}
		seen[v.VariantID] = true
	}
	return nil
}
