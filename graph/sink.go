package graph

import "context"

// Sink is the write side of the property graph. Implementations must be
// safe for concurrent use; the pipeline upserts from many workers at
// once and relies on the sink's merge-by-id for cross-document identity
// convergence.
type Sink interface {
	// FetchNodes returns the existing nodes with the given ids under a
	// label, keyed by node id. Missing ids are simply absent.
	FetchNodes(ctx context.Context, label string, ids []string) (map[string]*NodeRecord, error)

	// UpsertNodes merges the records by (label, node_id), creating
	// missing nodes and overlaying properties on existing ones. Returns
	// the number of nodes written.
	UpsertNodes(ctx context.Context, nodes []*NodeRecord) (int, error)

	// CreateRelationships merges the records by their endpoint tuple,
	// soft-creating missing endpoint nodes. Returns the number of
	// relationships written.
	CreateRelationships(ctx context.Context, rels []*RelRecord) (int, error)

	// Close flushes and releases the sink.
	Close(ctx context.Context) error
}
