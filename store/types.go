// Package store persists per-document provenance: ingestion records,
// runs, logs, and the quarantine. Backends are JSONL files or MongoDB.
package store

import (
	"time"

	"github.com/c360studio/registrygraph/graph"
	"github.com/c360studio/registrygraph/schema"
)

// Ingestion statuses. A document ends in exactly one terminal state.
const (
	StatusPending     = "pending"
	StatusProcessed   = "processed"
	StatusQuarantined = "quarantined"
	StatusFailed      = "failed"
	StatusSkipped     = "skipped"
)

// Quarantine categories, one per failure class the pipeline isolates.
const (
	CategoryParseError        = "parse_error"
	CategorySchemaNotFound    = "schema_not_found"
	CategoryVariantAmbiguous  = "variant_ambiguous"
	CategoryMappingError      = "mapping_error"
	CategoryImmutableConflict = "immutable_conflict"
	CategorySinkError         = "sink_error"
	CategoryTimeout           = "timeout"
)

// Run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunWarning = "warning"
	RunFailed  = "failed"
)

// Classification is what the pipeline learned about a document's
// origin: from envelope metadata, heuristics, or the matched register.
type Classification struct {
	RegistryCode string `json:"registry_code,omitempty" bson:"registry_code,omitempty"`
	ServiceCode  string `json:"service_code,omitempty" bson:"service_code,omitempty"`
	MethodCode   string `json:"method_code,omitempty" bson:"method_code,omitempty"`
}

// FailureInfo describes why a document did not process.
type FailureInfo struct {
	Category string `json:"category" bson:"category"`
	Stage    string `json:"stage" bson:"stage"`
	Message  string `json:"message" bson:"message"`
}

// IngestedDocument is the per-document provenance record. It is created
// when the document is read and updated at each stage; DocumentID is
// the upsert key.
type IngestedDocument struct {
	DocumentID      string             `json:"document_id" bson:"document_id"`
	RunID           string             `json:"run_id" bson:"run_id"`
	FilePath        string             `json:"file_path" bson:"file_path"`
	ContentType     string             `json:"content_type" bson:"content_type"`
	RawHash         string             `json:"raw_hash" bson:"raw_hash"`
	CanonicalHash   string             `json:"canonical_hash,omitempty" bson:"canonical_hash,omitempty"`
	Classification  Classification     `json:"classification" bson:"classification"`
	VariantID       string             `json:"variant_id,omitempty" bson:"variant_id,omitempty"`
	ParseStatus     string             `json:"parse_status" bson:"parse_status"`
	IngestionStatus string             `json:"ingestion_status" bson:"ingestion_status"`
	Failure         *FailureInfo       `json:"failure,omitempty" bson:"failure,omitempty"`
	WriteSummary    graph.WriteSummary `json:"write_summary" bson:"write_summary"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}

// QuarantinedDocument isolates one failed document with enough context
// to retry or fix it. A new quarantine for the same file path
// supersedes any open record for that path.
type QuarantinedDocument struct {
	QuarantineID string           `json:"quarantine_id" bson:"quarantine_id"`
	DocumentID   string           `json:"document_id" bson:"document_id"`
	RunID        string           `json:"run_id" bson:"run_id"`
	FilePath     string           `json:"file_path" bson:"file_path"`
	Category     string           `json:"category" bson:"category"`
	Stage        string           `json:"stage" bson:"stage"`
	Reason       string           `json:"reason" bson:"reason"`
	Attempts     []schema.Attempt `json:"attempts,omitempty" bson:"attempts,omitempty"`
	Status       string           `json:"status" bson:"status"` // open | superseded
	CreatedAt    time.Time        `json:"created_at" bson:"created_at"`
}

// IngestionLog is one structured pipeline event tied to a document.
type IngestionLog struct {
	RunID      string         `json:"run_id" bson:"run_id"`
	DocumentID string         `json:"document_id,omitempty" bson:"document_id,omitempty"`
	Stage      string         `json:"stage" bson:"stage"`
	Level      string         `json:"level" bson:"level"`
	Message    string         `json:"message" bson:"message"`
	Fields     map[string]any `json:"fields,omitempty" bson:"fields,omitempty"`
	At         time.Time      `json:"at" bson:"at"`
}

// RunMetrics totals one run.
type RunMetrics struct {
	DocumentsTotal       int `json:"documents_total" bson:"documents_total"`
	Processed            int `json:"processed" bson:"processed"`
	Quarantined          int `json:"quarantined" bson:"quarantined"`
	Failed               int `json:"failed" bson:"failed"`
	Skipped              int `json:"skipped" bson:"skipped"`
	NodesUpserted        int `json:"nodes_upserted" bson:"nodes_upserted"`
	RelationshipsCreated int `json:"relationships_created" bson:"relationships_created"`
}

// IngestionRun is the per-run record; RunID is the upsert key.
type IngestionRun struct {
	RunID      string     `json:"run_id" bson:"run_id"`
	Source     string     `json:"source,omitempty" bson:"source,omitempty"`
	Status     string     `json:"status" bson:"status"`
	Metrics    RunMetrics `json:"metrics" bson:"metrics"`
	NextAction string     `json:"next_action,omitempty" bson:"next_action,omitempty"`
	StartedAt  time.Time  `json:"started_at" bson:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
}
