// Package events publishes pipeline outcomes to NATS so downstream
// consumers can react to ingestion without polling the document store.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/registrygraph/store"
)

// Subjects for ingestion events.
const (
	DocumentSubject = "registrygraph.ingest.document"
	RunSubject      = "registrygraph.ingest.run"
)

// DocumentEvent is the wire format for one document outcome.
type DocumentEvent struct {
	DocumentID string    `json:"document_id"`
	RunID      string    `json:"run_id"`
	FilePath   string    `json:"file_path"`
	Status     string    `json:"status"`
	Category   string    `json:"category,omitempty"`
	VariantID  string    `json:"variant_id,omitempty"`
	At         time.Time `json:"at"`
}

// RunEvent is the wire format for a run state change.
type RunEvent struct {
	RunID   string           `json:"run_id"`
	Status  string           `json:"status"`
	Metrics store.RunMetrics `json:"metrics"`
	At      time.Time        `json:"at"`
}

// Publisher emits events over a NATS connection. A nil Publisher (or
// one built without a URL) is valid and publishes nothing; the pipeline
// works the same with or without a broker.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// Connect dials NATS. An empty URL returns a nil publisher, which every
// method tolerates.
func Connect(url string, logger *slog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("registrygraph"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{conn: conn, logger: logger}, nil
}

// PublishDocument emits a document outcome. Publish failures are logged
// and swallowed; eventing never fails ingestion.
func (p *Publisher) PublishDocument(doc *store.IngestedDocument) {
	if p == nil {
		return
	}
	event := DocumentEvent{
		DocumentID: doc.DocumentID,
		RunID:      doc.RunID,
		FilePath:   doc.FilePath,
		Status:     doc.IngestionStatus,
		VariantID:  doc.VariantID,
		At:         time.Now().UTC(),
	}
	if doc.Failure != nil {
		event.Category = doc.Failure.Category
	}
	p.publish(DocumentSubject, event)
}

// PublishRun emits a run state change.
func (p *Publisher) PublishRun(run *store.IngestionRun) {
	if p == nil {
		return
	}
	p.publish(RunSubject, RunEvent{
		RunID:   run.RunID,
		Status:  run.Status,
		Metrics: run.Metrics,
		At:      time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.Warn("encode event failed", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("publish event failed", "subject", subject, "error", err)
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("drain nats connection failed", "error", err)
	}
}
