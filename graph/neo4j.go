package graph

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// identifierPattern limits labels and relationship types to what can be
// interpolated into Cypher safely; they come from schemas, not from
// documents, but schemas are operator input.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Neo4jSink writes the graph to Neo4j with MERGE semantics: nodes merge
// by node_id under their label, relationships merge by endpoint tuple,
// and endpoints are soft-created so edges never dangle.
type Neo4jSink struct {
	driver   neo4j.DriverWithContext
	database string
}

// Neo4jConfig carries the connection settings for a Neo4j sink.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// NewNeo4jSink connects and verifies the target is reachable.
func NewNeo4jSink(ctx context.Context, cfg Neo4jConfig) (*Neo4jSink, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Neo4jSink{driver: driver, database: cfg.Database}, nil
}

func (s *Neo4jSink) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// FetchNodes reads current node state for merge-policy checks.
func (s *Neo4jSink) FetchNodes(ctx context.Context, label string, ids []string) (map[string]*NodeRecord, error) {
	if err := checkIdentifier(label); err != nil {
		return nil, err
	}
	session := s.session(ctx)
	defer session.Close(ctx)

	query := fmt.Sprintf(
		"MATCH (n:`%s`) WHERE n.node_id IN $ids RETURN n.node_id AS node_id, properties(n) AS props",
		label)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}
		out := make(map[string]*NodeRecord)
		for res.Next(ctx) {
			record := res.Record()
			id, _ := record.Get("node_id")
			rawProps, _ := record.Get("props")
			props, _ := rawProps.(map[string]any)
			rec := &NodeRecord{
				Label:      label,
				NodeID:     fmt.Sprint(id),
				Properties: props,
			}
			if ts, ok := props["_updated_at"].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
					rec.UpdatedAt = t
				}
			}
			delete(props, "node_id")
			delete(props, "_updated_at")
			delete(props, "_source_doc_id")
			out[rec.NodeID] = rec
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s nodes: %w", label, err)
	}
	return result.(map[string]*NodeRecord), nil
}

// UpsertNodes merges nodes per label in one UNWIND batch each.
func (s *Neo4jSink) UpsertNodes(ctx context.Context, nodes []*NodeRecord) (int, error) {
	byLabel := make(map[string][]map[string]any)
	for _, rec := range nodes {
		if err := checkIdentifier(rec.Label); err != nil {
			return 0, err
		}
		byLabel[rec.Label] = append(byLabel[rec.Label], map[string]any{
			"node_id": rec.NodeID,
			"props":   rec.Properties,
			"meta": map[string]any{
				"_source_doc_id": rec.SourceDocID,
				"_updated_at":    rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
			},
		})
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	written := 0
	for label, rows := range byLabel {
		query := fmt.Sprintf(
			"UNWIND $rows AS row MERGE (n:`%s` {node_id: row.node_id}) SET n += row.props SET n += row.meta",
			label)
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, query, map[string]any{"rows": rows})
			if err != nil {
				return nil, err
			}
			_, err = res.Consume(ctx)
			return nil, err
		})
		if err != nil {
			return written, fmt.Errorf("upsert %s nodes: %w", label, err)
		}
		written += len(rows)
	}
	return written, nil
}

// CreateRelationships merges edges per (from_label, type, to_label)
// triple, soft-creating the endpoints with MERGE.
func (s *Neo4jSink) CreateRelationships(ctx context.Context, rels []*RelRecord) (int, error) {
	type shape struct{ fromLabel, relType, toLabel string }
	grouped := make(map[shape][]map[string]any)
	for _, rec := range rels {
		for _, ident := range []string{rec.FromLabel, rec.Type, rec.ToLabel} {
			if err := checkIdentifier(ident); err != nil {
				return 0, err
			}
		}
		key := shape{rec.FromLabel, rec.Type, rec.ToLabel}
		props := rec.Properties
		if props == nil {
			props = map[string]any{}
		}
		grouped[key] = append(grouped[key], map[string]any{
			"from_id": rec.FromID,
			"to_id":   rec.ToID,
			"props":   props,
		})
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	written := 0
	for key, rows := range grouped {
		query := fmt.Sprintf(
			"UNWIND $rows AS row "+
				"MERGE (a:`%s` {node_id: row.from_id}) "+
				"MERGE (b:`%s` {node_id: row.to_id}) "+
				"MERGE (a)-[r:`%s`]->(b) SET r += row.props",
			key.fromLabel, key.toLabel, key.relType)
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, query, map[string]any{"rows": rows})
			if err != nil {
				return nil, err
			}
			_, err = res.Consume(ctx)
			return nil, err
		})
		if err != nil {
			return written, fmt.Errorf("create %s relationships: %w", key.relType, err)
		}
		written += len(rows)
	}
	return written, nil
}

// Close shuts the driver down.
func (s *Neo4jSink) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func checkIdentifier(s string) error {
	if !identifierPattern.MatchString(s) {
		return fmt.Errorf("unsafe graph identifier %q", s)
	}
	return nil
}
