// Package mapper turns a canonical document and a resolved schema
// variant into entity instances and relationship candidates. It is the
// middle of the pipeline: pure in-memory work, no I/O.
package mapper

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/registrygraph/canonical"
	"github.com/c360studio/registrygraph/schema"
)

// ErrRequiredMissing marks a required mapping that extracted no value
// for any scope item. The pipeline quarantines such documents.
var ErrRequiredMissing = errors.New("required mapping produced no value")

// Instance is one staged entity occurrence within a single document,
// keyed by (scope root, scope index, entity ref). Identity assignment
// fills NodeID after mapping completes.
type Instance struct {
	Label      string
	EntityRef  string
	ScopeRoot  string
	ScopeIndex int
	Properties map[string]*canonical.Value

	NodeID    string
	DocScoped bool

	scopeItem *canonical.Value
}

// ScopeKey identifies the scope occurrence an instance belongs to.
func (in *Instance) ScopeKey() string {
	return fmt.Sprintf("%s[%d]", in.ScopeRoot, in.ScopeIndex)
}

// InstanceKey uniquely names the instance within its document; the
// doc-scoped identity fallback embeds it.
func (in *Instance) InstanceKey() string {
	return fmt.Sprintf("%s:%s", in.ScopeKey(), in.EntityRef)
}

// Property returns a property value, or nil when absent.
func (in *Instance) Property(name string) *canonical.Value {
	return in.Properties[name]
}

const rootScope = "$"

// Mapper executes variant mappings over canonical trees.
type Mapper struct {
	logger *slog.Logger
}

// NewMapper builds a mapper. A nil logger falls back to slog.Default.
func NewMapper(logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{logger: logger}
}

// Map runs every mapping of the variant over the document tree and
// returns the staged instances in first-seen order. Within a scope
// occurrence the first write of a property wins; a later conflicting
// write logs a warning and is dropped.
func (m *Mapper) Map(tree *canonical.Value, variant *schema.Variant) ([]*Instance, error) {
	byKey := make(map[string]*Instance)
	var ordered []*Instance

	for _, mapping := range variant.Mappings {
		scopeRoot, items := m.scopeItems(tree, mapping)
		extracted := 0

		for i, item := range items {
			if filter := mapping.CompiledFilter(); filter != nil {
				if !filter.Evaluate(item).Matched {
					continue
				}
			}

			value := m.extract(tree, item, mapping)
			if value == nil || value.IsNull() {
				continue
			}
			extracted++

			for _, t := range mapping.Targets {
				key := fmt.Sprintf("%s[%d]:%s", scopeRoot, i, t.Ref())
				inst, ok := byKey[key]
				if !ok {
					inst = &Instance{
						Label:      t.Entity,
						EntityRef:  t.Ref(),
						ScopeRoot:  scopeRoot,
						ScopeIndex: i,
						Properties: make(map[string]*canonical.Value),
						scopeItem:  item,
					}
					byKey[key] = inst
					ordered = append(ordered, inst)
				}
				if existing, dup := inst.Properties[t.Property]; dup {
					if !existing.Equal(value) {
						m.logger.Warn("conflicting property write dropped",
							"mapping", mapping.ID(),
							"entity_ref", t.Ref(),
							"property", t.Property)
					}
					continue
				}
				inst.Properties[t.Property] = value
			}
		}

		if mapping.Required && extracted == 0 {
			return nil, fmt.Errorf("mapping %s: %w", mapping.ID(), ErrRequiredMissing)
		}
	}

	return ordered, nil
}

// scopeItems resolves the mapping scope: the document root as a single
// item, or the foreach path's matches.
func (m *Mapper) scopeItems(tree *canonical.Value, mapping *schema.Mapping) (string, []*canonical.Value) {
	foreach := mapping.ForeachPath()
	if foreach == nil {
		return rootScope, []*canonical.Value{tree}
	}
	return foreach.Source(), foreach.Values(tree)
}

// extract pulls the source value for one scope item and applies the
// mapping transform. A mapping with no source path starts from null, so
// constant transforms still fire.
func (m *Mapper) extract(tree, item *canonical.Value, mapping *schema.Mapping) *canonical.Value {
	value := canonical.Null()
	if path := mapping.SourcePath(); path != nil {
		anchor := item
		if mapping.Source.UseRootContext {
			anchor = tree
		}
		if v := path.First(anchor); v != nil {
			value = v
		}
	}
	if fn := mapping.TransformFunc(); fn != nil {
		value = fn(value)
	}
	return value
}
