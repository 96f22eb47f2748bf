package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	nodesFile    = "nodes.jsonl"
	relsFile     = "relationships.jsonl"
	snapshotFile = "graph_snapshot.json"
)

// FileSink writes the graph as JSONL event logs plus a consolidated
// snapshot. Appends record every write in arrival order; the snapshot
// holds the merged end state and is rewritten on Close. An existing
// snapshot is loaded on open, so merge policy works across runs.
type FileSink struct {
	dir string

	mu    sync.Mutex
	nodes map[string]*NodeRecord // label|node_id
	rels  map[string]*RelRecord  // endpoint tuple

	nodeLog *os.File
	relLog  *os.File
}

// snapshot is the on-disk shape of the consolidated graph.
type snapshot struct {
	Nodes         []*NodeRecord `json:"nodes"`
	Relationships []*RelRecord  `json:"relationships"`
}

// NewFileSink opens (or creates) a file sink rooted at dir.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sink dir: %w", err)
	}
	s := &FileSink{
		dir:   dir,
		nodes: make(map[string]*NodeRecord),
		rels:  make(map[string]*RelRecord),
	}
	if err := s.loadSnapshot(); err != nil {
		return nil, err
	}

	var err error
	s.nodeLog, err = os.OpenFile(filepath.Join(dir, nodesFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open node log: %w", err)
	}
	s.relLog, err = os.OpenFile(filepath.Join(dir, relsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.nodeLog.Close()
		return nil, fmt.Errorf("open relationship log: %w", err)
	}
	return s, nil
}

func (s *FileSink) loadSnapshot() error {
	data, err := os.ReadFile(filepath.Join(s.dir, snapshotFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	for _, n := range snap.Nodes {
		s.nodes[n.Label+"|"+n.NodeID] = n
	}
	for _, r := range snap.Relationships {
		s.rels[r.Key()] = r
	}
	return nil
}

// FetchNodes serves lookups from the in-memory merged state.
func (s *FileSink) FetchNodes(_ context.Context, label string, ids []string) (map[string]*NodeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*NodeRecord)
	for _, id := range ids {
		if rec, ok := s.nodes[label+"|"+id]; ok {
			copied := *rec
			copied.Properties = cloneProps(rec.Properties)
			out[id] = &copied
		}
	}
	return out, nil
}

// UpsertNodes appends each record to the node log and overlays its
// properties onto the merged state.
func (s *FileSink) UpsertNodes(_ context.Context, nodes []*NodeRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.nodeLog)
	for _, rec := range nodes {
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("append node: %w", err)
		}
		key := rec.Label + "|" + rec.NodeID
		if current, ok := s.nodes[key]; ok {
			for name, v := range rec.Properties {
				current.Properties[name] = v
			}
			current.SourceDocID = rec.SourceDocID
			current.UpdatedAt = rec.UpdatedAt
			continue
		}
		copied := *rec
		copied.Properties = cloneProps(rec.Properties)
		s.nodes[key] = &copied
	}
	return len(nodes), nil
}

// CreateRelationships appends new edges to the relationship log.
// Re-sent edges are idempotent no-ops and do not count.
func (s *FileSink) CreateRelationships(_ context.Context, rels []*RelRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.relLog)
	created := 0
	for _, rec := range rels {
		key := rec.Key()
		if _, ok := s.rels[key]; ok {
			continue
		}
		if err := enc.Encode(rec); err != nil {
			return created, fmt.Errorf("append relationship: %w", err)
		}
		s.rels[key] = rec
		created++

		// Soft-create endpoints so the snapshot never dangles.
		s.ensureNode(rec.FromLabel, rec.FromID, rec.SourceDocID)
		s.ensureNode(rec.ToLabel, rec.ToID, rec.SourceDocID)
	}
	return created, nil
}

func (s *FileSink) ensureNode(label, id, docID string) {
	key := label + "|" + id
	if _, ok := s.nodes[key]; ok {
		return
	}
	s.nodes[key] = &NodeRecord{
		Label:       label,
		NodeID:      id,
		Properties:  map[string]any{},
		SourceDocID: docID,
	}
}

// Close rewrites the snapshot from the merged state and closes the
// append logs. Output order is stable: nodes by (label, id), edges by
// key.
func (s *FileSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		Nodes:         make([]*NodeRecord, 0, len(s.nodes)),
		Relationships: make([]*RelRecord, 0, len(s.rels)),
	}
	nodeKeys := sortedKeys(s.nodes)
	for _, k := range nodeKeys {
		snap.Nodes = append(snap.Nodes, s.nodes[k])
	}
	relKeys := sortedKeys(s.rels)
	for _, k := range relKeys {
		snap.Relationships = append(snap.Relationships, s.rels[k])
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, snapshotFile), data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	var firstErr error
	if err := s.nodeLog.Close(); err != nil {
		firstErr = err
	}
	if err := s.relLog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func cloneProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
