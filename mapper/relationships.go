package mapper

import (
	"fmt"
	"log/slog"

	"github.com/c360studio/registrygraph/canonical"
	"github.com/c360studio/registrygraph/schema"
)

// Edge is a staged relationship between two identified instances.
type Edge struct {
	Type       string
	FromLabel  string
	FromID     string
	ToLabel    string
	ToID       string
	Properties map[string]*canonical.Value
	ScopeRoot  string
	RuleID     string
}

// Key returns the uniqueness key of the edge. Two edges with the same
// key are the same relationship regardless of which document produced
// them.
func (e *Edge) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", e.FromLabel, e.FromID, e.Type, e.ToLabel, e.ToID)
}

// BuildRelationships applies every relationship schema's creation rules
// to the identified instances of one document. Endpoints pair when they
// share a scope occurrence, or when one side sits at document scope (a
// subject at the root relates to every item of a repeated scope).
// Duplicate edges collapse; instances without node ids are skipped.
func BuildRelationships(rels []*schema.RelationshipSchema, instances []*Instance, logger *slog.Logger) []*Edge {
	if logger == nil {
		logger = slog.Default()
	}

	byRef := make(map[string][]*Instance)
	for _, inst := range instances {
		if inst.NodeID == "" {
			continue
		}
		byRef[inst.EntityRef] = append(byRef[inst.EntityRef], inst)
	}

	seen := make(map[string]bool)
	var edges []*Edge

	for _, rel := range rels {
		for _, rule := range rel.CreationRules {
			froms := byRef[rule.Bind.From.EntityRef]
			tos := byRef[rule.Bind.To.EntityRef]
			if len(froms) == 0 || len(tos) == 0 {
				continue
			}
			for _, from := range froms {
				for _, to := range tos {
					if !scopesPair(from, to) {
						continue
					}
					edge := &Edge{
						Type:       rel.Graph.Type,
						FromLabel:  from.Label,
						FromID:     from.NodeID,
						ToLabel:    to.Label,
						ToID:       to.NodeID,
						Properties: ruleProperties(rule, from, to, logger),
						ScopeRoot:  narrowerScope(from, to),
						RuleID:     rule.RuleID,
					}
					if seen[edge.Key()] {
						continue
					}
					seen[edge.Key()] = true
					edges = append(edges, edge)
				}
			}
		}
	}
	return edges
}

// scopesPair reports whether two instances belong together: same scope
// occurrence, or one of them anchored at the document root.
func scopesPair(a, b *Instance) bool {
	if a.ScopeRoot == rootScope || b.ScopeRoot == rootScope {
		return true
	}
	return a.ScopeKey() == b.ScopeKey()
}

func narrowerScope(a, b *Instance) string {
	if a.ScopeRoot != rootScope {
		return a.ScopeRoot
	}
	return b.ScopeRoot
}

// ruleProperties materializes rule-level edge properties: constants, or
// values pulled from the narrower endpoint's scope item.
func ruleProperties(rule schema.CreationRule, from, to *Instance, logger *slog.Logger) map[string]*canonical.Value {
	if len(rule.Properties) == 0 {
		return nil
	}
	item := from.scopeItem
	if from.ScopeRoot == rootScope && to.scopeItem != nil {
		item = to.scopeItem
	}

	props := make(map[string]*canonical.Value, len(rule.Properties))
	for i := range rule.Properties {
		p := &rule.Properties[i]
		if path := p.ValueFromPath(); path != nil {
			if v := path.First(item); v != nil {
				props[p.Name] = v
			}
			continue
		}
		if p.Value == nil {
			continue
		}
		v, err := canonical.FromAny(p.Value)
		if err != nil {
			logger.Warn("unusable relationship property constant", "property", p.Name, "error", err)
			continue
		}
		props[p.Name] = v
	}
	if len(props) == 0 {
		return nil
	}
	return props
}
