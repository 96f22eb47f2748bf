package graph

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/c360studio/registrygraph/mapper"
	"github.com/c360studio/registrygraph/schema"
)

// ConflictError reports an immutable property that a document tried to
// change. The pipeline quarantines the offending document; the graph
// keeps the first-seen value.
type ConflictError struct {
	Label    string
	NodeID   string
	Property string
	Existing any
	Incoming any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("immutable conflict on %s(%s).%s: existing %v, incoming %v",
		e.Label, e.NodeID, e.Property, e.Existing, e.Incoming)
}

// Engine applies the merge policy and writes one document's staged
// instances and edges to the sink. Conflict detection runs before any
// write, so a quarantined document leaves no partial state behind.
type Engine struct {
	sink     Sink
	registry *schema.Registry
	logger   *slog.Logger
}

// NewEngine builds an upsert engine.
func NewEngine(sink Sink, registry *schema.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{sink: sink, registry: registry, logger: logger}
}

// Upsert merges the document's instances into node records, enforces
// the per-property merge policy against the sink's current state, and
// writes nodes then relationships. sourceTime is the document's source
// timestamp, used to arbitrate dynamic properties.
func (e *Engine) Upsert(ctx context.Context, instances []*mapper.Instance, edges []*mapper.Edge, docID string, sourceTime time.Time) (WriteSummary, error) {
	var summary WriteSummary

	nodes := e.collectNodes(instances, docID, sourceTime)
	if err := e.applyMergePolicy(ctx, nodes, sourceTime, &summary); err != nil {
		return summary, err
	}

	if len(nodes) > 0 {
		n, err := e.sink.UpsertNodes(ctx, nodes)
		if err != nil {
			return summary, fmt.Errorf("upsert nodes: %w", err)
		}
		summary.NodesUpserted = n
	}

	if len(edges) > 0 {
		rels := make([]*RelRecord, 0, len(edges))
		for _, edge := range edges {
			rec := &RelRecord{
				Type:        edge.Type,
				FromLabel:   edge.FromLabel,
				FromID:      edge.FromID,
				ToLabel:     edge.ToLabel,
				ToID:        edge.ToID,
				SourceDocID: docID,
				CreatedAt:   sourceTime,
			}
			if len(edge.Properties) > 0 {
				rec.Properties = make(map[string]any, len(edge.Properties))
				for name, v := range edge.Properties {
					rec.Properties[name] = v.Native()
				}
			}
			rels = append(rels, rec)
		}
		n, err := e.sink.CreateRelationships(ctx, rels)
		if err != nil {
			return summary, fmt.Errorf("create relationships: %w", err)
		}
		summary.RelationshipsCreated = n
	}

	return summary, nil
}

// collectNodes merges instances that resolved to the same node id. The
// first instance's value wins for each property; later differing values
// within one document only warn, cross-document arbitration happens in
// applyMergePolicy.
func (e *Engine) collectNodes(instances []*mapper.Instance, docID string, sourceTime time.Time) []*NodeRecord {
	byID := make(map[string]*NodeRecord)
	var ordered []*NodeRecord

	for _, inst := range instances {
		if inst.NodeID == "" || len(inst.Properties) == 0 {
			continue
		}
		rec, ok := byID[inst.NodeID]
		if !ok {
			rec = &NodeRecord{
				Label:       inst.Label,
				NodeID:      inst.NodeID,
				Properties:  make(map[string]any),
				SourceDocID: docID,
				ScopeRoot:   inst.ScopeRoot,
				DocScoped:   inst.DocScoped,
				UpdatedAt:   sourceTime,
			}
			byID[inst.NodeID] = rec
			ordered = append(ordered, rec)
		}
		for name, v := range inst.Properties {
			native := v.Native()
			if existing, dup := rec.Properties[name]; dup {
				if !reflect.DeepEqual(existing, native) {
					e.logger.Warn("instances disagree within document",
						"label", rec.Label, "node_id", rec.NodeID, "property", name)
				}
				continue
			}
			rec.Properties[name] = native
		}
	}
	return ordered
}

// applyMergePolicy compares incoming properties with the sink's current
// nodes and enforces change-type rules: immutable conflicts abort,
// rarely_changed keeps the existing value with a warning, dynamic keeps
// whichever side is newer.
func (e *Engine) applyMergePolicy(ctx context.Context, nodes []*NodeRecord, sourceTime time.Time, summary *WriteSummary) error {
	byLabel := make(map[string][]string)
	for _, rec := range nodes {
		byLabel[rec.Label] = append(byLabel[rec.Label], rec.NodeID)
	}

	existing := make(map[string]*NodeRecord)
	for label, ids := range byLabel {
		found, err := e.sink.FetchNodes(ctx, label, ids)
		if err != nil {
			return fmt.Errorf("fetch %s nodes: %w", label, err)
		}
		for id, rec := range found {
			existing[label+"|"+id] = rec
		}
	}

	for _, rec := range nodes {
		current, ok := existing[rec.Label+"|"+rec.NodeID]
		if !ok {
			continue
		}
		es, err := e.registry.Entity(rec.Label)
		if err != nil {
			// Unknown labels only appear for doc-scoped fallbacks, which
			// never collide with existing nodes.
			continue
		}
		for name, incoming := range rec.Properties {
			have, present := current.Properties[name]
			if !present || reflect.DeepEqual(have, incoming) {
				continue
			}
			switch es.ChangeTypeOf(name) {
			case schema.ChangeImmutable:
				return &ConflictError{
					Label:    rec.Label,
					NodeID:   rec.NodeID,
					Property: name,
					Existing: have,
					Incoming: incoming,
				}
			case schema.ChangeDynamic:
				if current.UpdatedAt.After(sourceTime) {
					rec.Properties[name] = have
				}
			default: // rarely_changed
				summary.Warnings = append(summary.Warnings,
					fmt.Sprintf("kept existing %s.%s on %s", rec.Label, name, rec.NodeID))
				rec.Properties[name] = have
			}
		}
	}
	return nil
}
