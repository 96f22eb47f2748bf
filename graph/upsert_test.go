package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/c360studio/registrygraph/canonical"
	"github.com/c360studio/registrygraph/mapper"
	"github.com/c360studio/registrygraph/schema"
)

func personInstance(id string, props map[string]string) *mapper.Instance {
	inst := &mapper.Instance{
		Label:      "Person",
		EntityRef:  "Subject",
		ScopeRoot:  "$",
		Properties: make(map[string]*canonical.Value, len(props)),
		NodeID:     id,
	}
	for name, v := range props {
		inst.Properties[name] = canonical.String(v)
	}
	return inst
}

func newEngine(t *testing.T) (*Engine, *FileSink) {
	t.Helper()
	registry, err := schema.NewBuiltinRegistry()
	if err != nil {
		t.Fatalf("NewBuiltinRegistry() error = %v", err)
	}
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	return NewEngine(sink, registry, nil), sink
}

func TestUpsertImmutableConflictAbortsWholeDocument(t *testing.T) {
	engine, sink := newEngine(t)
	ctx := context.Background()
	now := time.Now()

	_, err := engine.Upsert(ctx, []*mapper.Instance{
		personInstance("p1", map[string]string{"rnokpp": "123", "birth_date": "1990-01-01"}),
	}, nil, "doc-1", now)
	if err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}

	// Second document disputes an immutable property and also carries a
	// new node; neither write may land.
	_, err = engine.Upsert(ctx, []*mapper.Instance{
		personInstance("p1", map[string]string{"birth_date": "1991-06-06"}),
		personInstance("p2", map[string]string{"rnokpp": "456"}),
	}, nil, "doc-2", now)

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Upsert() error = %v, want ConflictError", err)
	}
	if conflict.Property != "birth_date" || conflict.NodeID != "p1" {
		t.Errorf("unexpected conflict detail: %+v", conflict)
	}

	found, _ := sink.FetchNodes(ctx, "Person", []string{"p1", "p2"})
	if found["p1"].Properties["birth_date"] != "1990-01-01" {
		t.Error("graph lost the first-seen immutable value")
	}
	if _, ok := found["p2"]; ok {
		t.Error("conflicting document must leave no partial writes")
	}
}

func TestUpsertRarelyChangedKeepsExistingWithWarning(t *testing.T) {
	engine, sink := newEngine(t)
	ctx := context.Background()
	now := time.Now()

	if _, err := engine.Upsert(ctx, []*mapper.Instance{
		personInstance("p1", map[string]string{"last_name": "Ivanov"}),
	}, nil, "doc-1", now); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}

	summary, err := engine.Upsert(ctx, []*mapper.Instance{
		personInstance("p1", map[string]string{"last_name": "Ivanenko"}),
	}, nil, "doc-2", now)
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if len(summary.Warnings) != 1 {
		t.Errorf("warnings = %v, want one kept-existing warning", summary.Warnings)
	}

	found, _ := sink.FetchNodes(ctx, "Person", []string{"p1"})
	if found["p1"].Properties["last_name"] != "Ivanov" {
		t.Errorf("last_name = %v, want existing value kept", found["p1"].Properties["last_name"])
	}
}

func TestUpsertDynamicLatestWins(t *testing.T) {
	engine, sink := newEngine(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := engine.Upsert(ctx, []*mapper.Instance{
		personInstance("p1", map[string]string{"registry_source": "EIS"}),
	}, nil, "doc-1", base); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}

	// An older document must not win a dynamic property.
	if _, err := engine.Upsert(ctx, []*mapper.Instance{
		personInstance("p1", map[string]string{"registry_source": "STALE"}),
	}, nil, "doc-2", base.Add(-time.Hour)); err != nil {
		t.Fatalf("stale Upsert() error = %v", err)
	}
	found, _ := sink.FetchNodes(ctx, "Person", []string{"p1"})
	if found["p1"].Properties["registry_source"] != "EIS" {
		t.Errorf("stale document overwrote a dynamic property: %v", found["p1"].Properties)
	}

	// A newer document does.
	if _, err := engine.Upsert(ctx, []*mapper.Instance{
		personInstance("p1", map[string]string{"registry_source": "MVS"}),
	}, nil, "doc-3", base.Add(time.Hour)); err != nil {
		t.Fatalf("newer Upsert() error = %v", err)
	}
	found, _ = sink.FetchNodes(ctx, "Person", []string{"p1"})
	if found["p1"].Properties["registry_source"] != "MVS" {
		t.Errorf("newer document did not win a dynamic property: %v", found["p1"].Properties)
	}
}

func TestUpsertWritesEdges(t *testing.T) {
	engine, sink := newEngine(t)
	ctx := context.Background()

	summary, err := engine.Upsert(ctx,
		[]*mapper.Instance{personInstance("p1", map[string]string{"rnokpp": "123"})},
		[]*mapper.Edge{{
			Type: "OWNS_VEHICLE", FromLabel: "Person", FromID: "p1",
			ToLabel: "Vehicle", ToID: "v1",
			Properties: map[string]*canonical.Value{"role": canonical.String("owner")},
		}},
		"doc-1", time.Now())
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if summary.NodesUpserted != 1 || summary.RelationshipsCreated != 1 {
		t.Errorf("summary = %+v, want 1 node and 1 edge", summary)
	}

	found, _ := sink.FetchNodes(ctx, "Vehicle", []string{"v1"})
	if len(found) != 1 {
		t.Error("edge endpoint not materialized")
	}
}
