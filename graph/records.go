// Package graph stages identified entities and relationships into a
// graph sink with merge-policy enforcement and provenance stamping.
package graph

import (
	"fmt"
	"time"
)

// NodeRecord is one node write headed for the sink. Properties carry
// plain Go values; provenance fields record which document produced the
// write.
type NodeRecord struct {
	Label       string         `json:"label"`
	NodeID      string         `json:"node_id"`
	Properties  map[string]any `json:"properties"`
	SourceDocID string         `json:"source_doc_id"`
	ScopeRoot   string         `json:"scope_root,omitempty"`
	DocScoped   bool           `json:"doc_scoped,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// RelRecord is one relationship write. Uniqueness is the full endpoint
// tuple; re-sending an existing edge is a no-op at the sink.
type RelRecord struct {
	Type        string         `json:"type"`
	FromLabel   string         `json:"from_label"`
	FromID      string         `json:"from_id"`
	ToLabel     string         `json:"to_label"`
	ToID        string         `json:"to_id"`
	Properties  map[string]any `json:"properties,omitempty"`
	SourceDocID string         `json:"source_doc_id"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Key returns the uniqueness key of the relationship.
func (r *RelRecord) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", r.FromLabel, r.FromID, r.Type, r.ToLabel, r.ToID)
}

// WriteSummary totals what one upsert batch did.
type WriteSummary struct {
	NodesUpserted        int      `json:"nodes_upserted"`
	RelationshipsCreated int      `json:"relationships_created"`
	Warnings             []string `json:"warnings,omitempty"`
}

// Add accumulates another summary into this one.
func (s *WriteSummary) Add(other WriteSummary) {
	s.NodesUpserted += other.NodesUpserted
	s.RelationshipsCreated += other.RelationshipsCreated
	s.Warnings = append(s.Warnings, other.Warnings...)
}
