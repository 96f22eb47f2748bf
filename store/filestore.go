package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	documentsLog  = "documents.jsonl"
	quarantineLog = "quarantine.jsonl"
	eventsLog     = "logs.jsonl"
	runsLog       = "runs.jsonl"
)

// FileStore keeps provenance as append-only JSONL logs plus in-memory
// indexes. On open it replays the existing logs so raw-hash idempotence
// and quarantine supersession survive restarts. Latest append wins per
// key.
type FileStore struct {
	dir string

	mu         sync.Mutex
	byRawHash  map[string]*IngestedDocument
	openQuar   map[string]*QuarantinedDocument // file path -> open record
	docsFile   *os.File
	quarFile   *os.File
	eventsFile *os.File
	runsFile   *os.File
}

// NewFileStore opens (or creates) a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	s := &FileStore{
		dir:       dir,
		byRawHash: make(map[string]*IngestedDocument),
		openQuar:  make(map[string]*QuarantinedDocument),
	}
	if err := s.replay(); err != nil {
		return nil, err
	}

	var err error
	open := func(name string) *os.File {
		if err != nil {
			return nil
		}
		var f *os.File
		f, err = os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		return f
	}
	s.docsFile = open(documentsLog)
	s.quarFile = open(quarantineLog)
	s.eventsFile = open(eventsLog)
	s.runsFile = open(runsLog)
	if err != nil {
		s.closeFiles()
		return nil, fmt.Errorf("open store logs: %w", err)
	}
	return s, nil
}

func (s *FileStore) replay() error {
	if err := replayFile(filepath.Join(s.dir, documentsLog), func(line []byte) error {
		var doc IngestedDocument
		if err := json.Unmarshal(line, &doc); err != nil {
			return err
		}
		s.byRawHash[doc.RawHash] = &doc
		return nil
	}); err != nil {
		return fmt.Errorf("replay documents: %w", err)
	}
	if err := replayFile(filepath.Join(s.dir, quarantineLog), func(line []byte) error {
		var q QuarantinedDocument
		if err := json.Unmarshal(line, &q); err != nil {
			return err
		}
		if q.Status == "open" {
			s.openQuar[q.FilePath] = &q
		} else {
			delete(s.openQuar, q.FilePath)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("replay quarantine: %w", err)
	}
	return nil
}

func replayFile(path string, handle func([]byte) error) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := handle(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *FileStore) append(f *os.File, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// SaveDocument appends the record and refreshes the raw-hash index.
func (s *FileStore) SaveDocument(_ context.Context, doc *IngestedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.append(s.docsFile, doc); err != nil {
		return fmt.Errorf("append document record: %w", err)
	}
	copied := *doc
	s.byRawHash[doc.RawHash] = &copied
	return nil
}

// GetByRawHash serves from the replayed index.
func (s *FileStore) GetByRawHash(_ context.Context, rawHash string) (*IngestedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.byRawHash[rawHash]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

// Quarantine supersedes any open record for the same file path, then
// appends the new record as open.
func (s *FileStore) Quarantine(_ context.Context, q *QuarantinedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.openQuar[q.FilePath]; ok {
		superseded := *prev
		superseded.Status = "superseded"
		if err := s.append(s.quarFile, &superseded); err != nil {
			return fmt.Errorf("supersede quarantine: %w", err)
		}
	}
	record := *q
	record.Status = "open"
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if err := s.append(s.quarFile, &record); err != nil {
		return fmt.Errorf("append quarantine: %w", err)
	}
	s.openQuar[q.FilePath] = &record
	return nil
}

// AppendLog appends one pipeline event.
func (s *FileStore) AppendLog(_ context.Context, entry *IngestionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.append(s.eventsFile, entry); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// SaveRun appends the run record; the latest line per run id is the
// current state.
func (s *FileStore) SaveRun(_ context.Context, run *IngestionRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.append(s.runsFile, run); err != nil {
		return fmt.Errorf("append run record: %w", err)
	}
	return nil
}

// Close closes the append logs.
func (s *FileStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeFiles()
}

func (s *FileStore) closeFiles() error {
	var firstErr error
	for _, f := range []*os.File{s.docsFile, s.quarFile, s.eventsFile, s.runsFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
