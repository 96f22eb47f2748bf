// Package pipeline orchestrates ingestion: read, canonicalize, resolve
// a schema variant, map, identify, build relationships, upsert, and
// record the outcome. Failures are isolated per document; one bad file
// quarantines, the run continues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/registrygraph/canonical"
	"github.com/c360studio/registrygraph/events"
	"github.com/c360studio/registrygraph/graph"
	"github.com/c360studio/registrygraph/mapper"
	"github.com/c360studio/registrygraph/metrics"
	"github.com/c360studio/registrygraph/schema"
	"github.com/c360studio/registrygraph/store"
)

// Options wires a pipeline together. Registry, Sink, and Docs are
// required; the rest defaults.
type Options struct {
	Registry  *schema.Registry
	Sink      graph.Sink
	Docs      store.DocumentStore
	Publisher *events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	Workers         int
	DocumentTimeout time.Duration
	Retry           RetryConfig
}

// Pipeline processes raw documents into the graph and the document
// store. Safe for concurrent use; Run drives it from a worker pool.
type Pipeline struct {
	registry  *schema.Registry
	canon     *canonical.Canonicalizer
	mapper    *mapper.Mapper
	engine    *graph.Engine
	docs      store.DocumentStore
	publisher *events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	workers    int
	docTimeout time.Duration
	retry      RetryConfig
}

// New builds a pipeline from options.
func New(opts Options) (*Pipeline, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("pipeline needs a schema registry")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("pipeline needs a graph sink")
	}
	if opts.Docs == nil {
		return nil, fmt.Errorf("pipeline needs a document store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 8
	}
	timeout := opts.DocumentTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	return &Pipeline{
		registry:   opts.Registry,
		canon:      canonical.NewCanonicalizer(logger),
		mapper:     mapper.NewMapper(logger),
		engine:     graph.NewEngine(opts.Sink, opts.Registry, logger),
		docs:       opts.Docs,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		logger:     logger,
		workers:    workers,
		docTimeout: timeout,
		retry:      retry,
	}, nil
}

// ProcessDocument runs one raw document through every stage and returns
// its terminal ingestion record. The error return is reserved for
// store failures; pipeline failures land in the record itself.
func (p *Pipeline) ProcessDocument(ctx context.Context, runID string, raw *canonical.RawDocument) (*store.IngestedDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, p.docTimeout)
	defer cancel()

	now := time.Now().UTC()
	rec := &store.IngestedDocument{
		DocumentID:      documentID(runID, raw.FilePath),
		RunID:           runID,
		FilePath:        raw.FilePath,
		ContentType:     raw.ContentType,
		RawHash:         raw.ContentHash,
		ParseStatus:     store.StatusPending,
		IngestionStatus: store.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Idempotence: bytes we already processed are skipped, not redone.
	if prev, err := p.docs.GetByRawHash(ctx, raw.ContentHash); err == nil && prev.IngestionStatus == store.StatusProcessed {
		rec.IngestionStatus = store.StatusSkipped
		rec.CanonicalHash = prev.CanonicalHash
		rec.Classification = prev.Classification
		rec.VariantID = prev.VariantID
		p.logStage(ctx, rec, StageRead, "info", "document already processed, skipping", nil)
		return rec, p.saveRecord(ctx, rec)
	}

	if err := p.docs.SaveDocument(ctx, rec); err != nil {
		return rec, fmt.Errorf("persist pending record: %w", err)
	}
	p.logStage(ctx, rec, StageRead, "info", "read document", map[string]any{
		"content_type": raw.ContentType,
		"bytes":        len(raw.Bytes),
	})

	if err := p.process(ctx, rec, raw); err != nil {
		var stageErr *StageError
		if !errors.As(err, &stageErr) {
			stageErr = stageFailure(StageUpsert, err)
		}
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			stageErr.Category = store.CategoryTimeout
		}
		p.quarantine(rec, raw, stageErr)
	}

	rec.UpdatedAt = time.Now().UTC()
	if err := p.saveRecord(context.WithoutCancel(ctx), rec); err != nil {
		return rec, err
	}
	p.publisher.PublishDocument(rec)
	p.observeOutcome(rec)
	return rec, nil
}

// process runs the fallible middle of the pipeline; the caller turns
// any error into a quarantine.
func (p *Pipeline) process(ctx context.Context, rec *store.IngestedDocument, raw *canonical.RawDocument) error {
	// Canonicalize.
	started := time.Now()
	doc := p.canon.Canonicalize(raw)
	p.observeStage(StageCanonical, started)
	rec.CanonicalHash = doc.CanonicalHash
	rec.Classification = classificationFromMeta(doc)
	if doc.ParseError != "" {
		rec.ParseStatus = store.StatusFailed
		return &StageError{Stage: StageCanonical, Category: store.CategoryParseError, Err: errors.New(doc.ParseError)}
	}
	rec.ParseStatus = "parsed"
	p.logStage(ctx, rec, StageCanonical, "info", "canonicalized", map[string]any{
		"canonical_hash": doc.CanonicalHash,
	})

	// Resolve variant. Content decides; metadata never pre-filters.
	started = time.Now()
	tree := doc.Tree()
	resolution, err := p.registry.Resolve(tree)
	p.observeStage(StageResolve, started)
	if err != nil {
		stageErr := stageFailure(StageResolve, err)
		if resolution != nil {
			stageErr.Attempts = resolution.Attempts
			p.recordAttempts(ctx, rec, resolution)
		}
		return stageErr
	}
	rec.VariantID = resolution.Variant.VariantID
	fillClassification(&rec.Classification, resolution.Register)
	p.logStage(ctx, rec, StageResolve, "info", "variant resolved", map[string]any{
		"variant_id":    resolution.Variant.VariantID,
		"registry_code": resolution.Register.RegistryCode,
	})

	// Map.
	started = time.Now()
	instances, err := p.mapper.Map(tree, resolution.Variant)
	p.observeStage(StageMap, started)
	if err != nil {
		return stageFailure(StageMap, err)
	}

	// Identify.
	started = time.Now()
	mapper.AssignIdentities(instances, p.registry, rec.DocumentID)
	p.observeStage(StageIdentify, started)

	// Relationships.
	started = time.Now()
	edges := mapper.BuildRelationships(p.registry.Relationships(), instances, p.logger)
	p.observeStage(StageRelate, started)
	p.logStage(ctx, rec, StageRelate, "info", "mapped document", map[string]any{
		"instances":     len(instances),
		"relationships": len(edges),
	})

	// Upsert, with retry for transient sink failures. Merge conflicts
	// are permanent; retrying them cannot succeed.
	started = time.Now()
	var summary graph.WriteSummary
	err = withRetry(ctx, p.retry, isPermanent, func() error {
		var upsertErr error
		summary, upsertErr = p.engine.Upsert(ctx, instances, edges, rec.DocumentID, time.Now().UTC())
		return upsertErr
	})
	p.observeStage(StageUpsert, started)
	if err != nil {
		return stageFailure(StageUpsert, err)
	}

	rec.WriteSummary = summary
	rec.IngestionStatus = store.StatusProcessed
	for _, warning := range summary.Warnings {
		p.logStage(ctx, rec, StageUpsert, "warn", warning, nil)
	}
	p.logStage(ctx, rec, StageUpsert, "info", "document processed", map[string]any{
		"nodes_upserted":        summary.NodesUpserted,
		"relationships_created": summary.RelationshipsCreated,
	})
	return nil
}

func isPermanent(err error) bool {
	var conflict *graph.ConflictError
	return errors.As(err, &conflict)
}

// quarantine routes a failed document into the quarantine and stamps
// the record with its failure.
func (p *Pipeline) quarantine(rec *store.IngestedDocument, raw *canonical.RawDocument, stageErr *StageError) {
	rec.IngestionStatus = store.StatusQuarantined
	rec.Failure = &store.FailureInfo{
		Category: stageErr.Category,
		Stage:    stageErr.Stage,
		Message:  stageErr.Err.Error(),
	}

	q := &store.QuarantinedDocument{
		QuarantineID: uuid.NewString(),
		DocumentID:   rec.DocumentID,
		RunID:        rec.RunID,
		FilePath:     raw.FilePath,
		Category:     stageErr.Category,
		Stage:        stageErr.Stage,
		Reason:       stageErr.Err.Error(),
		Attempts:     stageErr.Attempts,
		CreatedAt:    time.Now().UTC(),
	}
	// Quarantine writes must survive the per-document deadline that may
	// have just fired.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.docs.Quarantine(ctx, q); err != nil {
		p.logger.Error("quarantine write failed",
			"document_id", rec.DocumentID, "path", raw.FilePath, "error", err)
	}
	p.logger.Warn("document quarantined",
		"document_id", rec.DocumentID,
		"path", raw.FilePath,
		"category", stageErr.Category,
		"stage", stageErr.Stage,
		"reason", stageErr.Err.Error())
}

// recordAttempts logs the full attempt trail of a failed resolution,
// misses included, so the log explains every variant that was tried.
func (p *Pipeline) recordAttempts(ctx context.Context, rec *store.IngestedDocument, res *schema.Resolution) {
	for _, attempt := range res.Attempts {
		fields := map[string]any{
			"variant_id": attempt.VariantID,
			"matched":    attempt.Matched,
			"score":      attempt.Score,
		}
		if len(attempt.Reasons) > 0 {
			fields["reasons"] = attempt.Reasons
		}
		p.logStage(ctx, rec, StageResolve, "info", "variant evaluated", fields)
	}
}

func (p *Pipeline) saveRecord(ctx context.Context, rec *store.IngestedDocument) error {
	if err := p.docs.SaveDocument(ctx, rec); err != nil {
		return fmt.Errorf("persist record %s: %w", rec.DocumentID, err)
	}
	return nil
}

func (p *Pipeline) logStage(ctx context.Context, rec *store.IngestedDocument, stage, level, message string, fields map[string]any) {
	entry := &store.IngestionLog{
		RunID:      rec.RunID,
		DocumentID: rec.DocumentID,
		Stage:      stage,
		Level:      level,
		Message:    message,
		Fields:     fields,
		At:         time.Now().UTC(),
	}
	if err := p.docs.AppendLog(ctx, entry); err != nil {
		p.logger.Warn("append ingestion log failed", "stage", stage, "error", err)
	}
}

func (p *Pipeline) observeStage(stage string, started time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveStage(stage, time.Since(started))
	}
}

func (p *Pipeline) observeOutcome(rec *store.IngestedDocument) {
	if p.metrics == nil {
		return
	}
	p.metrics.DocumentsProcessed.WithLabelValues(rec.IngestionStatus).Inc()
	if rec.Failure != nil {
		p.metrics.DocumentsQuarantined.WithLabelValues(rec.Failure.Category).Inc()
	}
	p.metrics.NodesUpserted.Add(float64(rec.WriteSummary.NodesUpserted))
	p.metrics.RelationshipsCreated.Add(float64(rec.WriteSummary.RelationshipsCreated))
}

// documentID derives a stable id from the run and the file path, so
// re-reading the same file within a run yields the same document and
// the same doc-scoped node identities.
func documentID(runID, filePath string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(filePath+"|"+runID)).String()
}

// classificationFromMeta lifts envelope/heuristic metadata into the
// record's classification.
func classificationFromMeta(doc *canonical.Document) store.Classification {
	return store.Classification{
		RegistryCode: doc.Meta["registry_code"],
		ServiceCode:  doc.Meta["service_code"],
		MethodCode:   doc.Meta["method_code"],
	}
}

// fillClassification completes missing codes from the register schema
// the document matched.
func fillClassification(c *store.Classification, register *schema.RegisterSchema) {
	if c.RegistryCode == "" {
		c.RegistryCode = register.RegistryCode
	}
	if c.ServiceCode == "" {
		c.ServiceCode = register.ServiceCode
	}
	if c.MethodCode == "" {
		c.MethodCode = register.MethodCode
	}
}
