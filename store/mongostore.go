package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	documentsCollection  = "ingested_documents"
	quarantineCollection = "quarantined_documents"
	logsCollection       = "ingestion_logs"
	runsCollection       = "ingestion_runs"
)

// MongoStore persists provenance in MongoDB, one collection per record
// kind. Documents and runs upsert by their natural id; quarantine
// supersession is a status flip on the open records for the same path.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore wraps an existing database handle and ensures the
// lookup indexes exist.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{db: db}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	docIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "raw_hash", Value: 1}}},
	}
	if _, err := s.db.Collection(documentsCollection).Indexes().CreateMany(ctx, docIndexes); err != nil {
		return fmt.Errorf("create document indexes: %w", err)
	}
	quarIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "file_path", Value: 1}, {Key: "status", Value: 1}}},
	}
	if _, err := s.db.Collection(quarantineCollection).Indexes().CreateMany(ctx, quarIndexes); err != nil {
		return fmt.Errorf("create quarantine indexes: %w", err)
	}
	return nil
}

// SaveDocument upserts by document id.
func (s *MongoStore) SaveDocument(ctx context.Context, doc *IngestedDocument) error {
	filter := bson.M{"document_id": doc.DocumentID}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(documentsCollection).ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("save document %s: %w", doc.DocumentID, err)
	}
	return nil
}

// GetByRawHash returns the most recently updated record for a hash.
func (s *MongoStore) GetByRawHash(ctx context.Context, rawHash string) (*IngestedDocument, error) {
	filter := bson.M{"raw_hash": rawHash}
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})

	var doc IngestedDocument
	err := s.db.Collection(documentsCollection).FindOne(ctx, filter, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup raw hash: %w", err)
	}
	return &doc, nil
}

// Quarantine marks open records for the file path superseded, then
// inserts the new record as open.
func (s *MongoStore) Quarantine(ctx context.Context, q *QuarantinedDocument) error {
	coll := s.db.Collection(quarantineCollection)

	filter := bson.M{"file_path": q.FilePath, "status": "open"}
	update := bson.M{"$set": bson.M{"status": "superseded"}}
	if _, err := coll.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("supersede quarantine for %s: %w", q.FilePath, err)
	}

	record := *q
	record.Status = "open"
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if _, err := coll.InsertOne(ctx, &record); err != nil {
		return fmt.Errorf("insert quarantine for %s: %w", q.FilePath, err)
	}
	return nil
}

// AppendLog inserts one event.
func (s *MongoStore) AppendLog(ctx context.Context, entry *IngestionLog) error {
	if _, err := s.db.Collection(logsCollection).InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// SaveRun upserts by run id.
func (s *MongoStore) SaveRun(ctx context.Context, run *IngestionRun) error {
	filter := bson.M{"run_id": run.RunID}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(runsCollection).ReplaceOne(ctx, filter, run, opts); err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	return nil
}

// Close is a no-op; the client that owns the database handle closes it.
func (s *MongoStore) Close(context.Context) error { return nil }
