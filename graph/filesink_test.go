package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileSinkUpsertAndFetch(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	ctx := context.Background()

	n, err := sink.UpsertNodes(ctx, []*NodeRecord{{
		Label:       "Person",
		NodeID:      "p1",
		Properties:  map[string]any{"last_name": "Ivanov"},
		SourceDocID: "doc-1",
		UpdatedAt:   time.Now(),
	}})
	if err != nil {
		t.Fatalf("UpsertNodes() error = %v", err)
	}
	if n != 1 {
		t.Errorf("upserted = %d, want 1", n)
	}

	found, err := sink.FetchNodes(ctx, "Person", []string{"p1", "missing"})
	if err != nil {
		t.Fatalf("FetchNodes() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found = %d, want 1", len(found))
	}
	if found["p1"].Properties["last_name"] != "Ivanov" {
		t.Errorf("unexpected fetched props: %v", found["p1"].Properties)
	}

	// Fetched records are copies; mutating them must not leak back.
	found["p1"].Properties["last_name"] = "Mutated"
	again, _ := sink.FetchNodes(ctx, "Person", []string{"p1"})
	if again["p1"].Properties["last_name"] != "Ivanov" {
		t.Error("FetchNodes returned a live reference to internal state")
	}

	if err := sink.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "graph_snapshot.json")); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}
}

func TestFileSinkRelationshipIdempotence(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	ctx := context.Background()
	defer sink.Close(ctx)

	rel := &RelRecord{
		Type: "OWNS_VEHICLE", FromLabel: "Person", FromID: "p1",
		ToLabel: "Vehicle", ToID: "v1", SourceDocID: "doc-1",
	}
	n, err := sink.CreateRelationships(ctx, []*RelRecord{rel})
	if err != nil {
		t.Fatalf("CreateRelationships() error = %v", err)
	}
	if n != 1 {
		t.Errorf("created = %d, want 1", n)
	}

	n, err = sink.CreateRelationships(ctx, []*RelRecord{rel})
	if err != nil {
		t.Fatalf("CreateRelationships() retry error = %v", err)
	}
	if n != 0 {
		t.Errorf("re-sent edge created = %d, want 0", n)
	}

	// Endpoints get soft-created so the snapshot never dangles.
	found, _ := sink.FetchNodes(ctx, "Vehicle", []string{"v1"})
	if len(found) != 1 {
		t.Error("relationship endpoint missing from node state")
	}
}

func TestFileSinkReloadsSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	if _, err := first.UpsertNodes(ctx, []*NodeRecord{{
		Label:      "Person",
		NodeID:     "p1",
		Properties: map[string]any{"rnokpp": "123"},
	}}); err != nil {
		t.Fatalf("UpsertNodes() error = %v", err)
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer second.Close(ctx)

	found, err := second.FetchNodes(ctx, "Person", []string{"p1"})
	if err != nil {
		t.Fatalf("FetchNodes() error = %v", err)
	}
	if len(found) != 1 || found["p1"].Properties["rnokpp"] != "123" {
		t.Errorf("snapshot state lost across reopen: %v", found)
	}
}
