package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/registrygraph/canonical"
	"github.com/c360studio/registrygraph/reader"
	"github.com/c360studio/registrygraph/store"
)

// Run walks the source and processes every document through a bounded
// worker pool: parallel across documents, single-threaded within one.
// The returned run record carries totals, the terminal status, and a
// next-action hint for the operator.
func (p *Pipeline) Run(ctx context.Context, source reader.Source, sourceName string) (*store.IngestionRun, error) {
	run := &store.IngestionRun{
		RunID:     uuid.NewString(),
		Source:    sourceName,
		Status:    store.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := p.docs.SaveRun(ctx, run); err != nil {
		return run, fmt.Errorf("persist run: %w", err)
	}
	p.logger.Info("ingestion run started", "run_id", run.RunID, "source", sourceName, "workers", p.workers)

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.workers)

	walkErr := source.Walk(groupCtx, func(raw *canonical.RawDocument) error {
		group.Go(func() error {
			rec, err := p.ProcessDocument(groupCtx, run.RunID, raw)
			mu.Lock()
			accumulate(&run.Metrics, rec)
			mu.Unlock()
			return err
		})
		return groupCtx.Err()
	})
	if err := group.Wait(); err != nil && walkErr == nil {
		walkErr = err
	}

	p.finishRun(run, walkErr)

	// Persist even when the walk was cancelled.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.docs.SaveRun(saveCtx, run); err != nil {
		return run, fmt.Errorf("persist run outcome: %w", err)
	}
	p.publisher.PublishRun(run)

	p.logger.Info("ingestion run finished",
		"run_id", run.RunID,
		"status", run.Status,
		"documents", run.Metrics.DocumentsTotal,
		"processed", run.Metrics.Processed,
		"quarantined", run.Metrics.Quarantined,
		"skipped", run.Metrics.Skipped,
		"nodes", run.Metrics.NodesUpserted,
		"relationships", run.Metrics.RelationshipsCreated)
	return run, walkErr
}

// ProcessOne handles a single raw document outside a batch walk; watch
// mode uses it per settled file.
func (p *Pipeline) ProcessOne(ctx context.Context, raw *canonical.RawDocument) error {
	run := &store.IngestionRun{
		RunID:     uuid.NewString(),
		Source:    raw.FilePath,
		Status:    store.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := p.docs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}
	rec, err := p.ProcessDocument(ctx, run.RunID, raw)
	accumulate(&run.Metrics, rec)
	p.finishRun(run, err)
	if saveErr := p.docs.SaveRun(ctx, run); saveErr != nil && err == nil {
		err = saveErr
	}
	p.publisher.PublishRun(run)
	return err
}

func accumulate(m *store.RunMetrics, rec *store.IngestedDocument) {
	if rec == nil {
		return
	}
	m.DocumentsTotal++
	switch rec.IngestionStatus {
	case store.StatusProcessed:
		m.Processed++
	case store.StatusQuarantined:
		m.Quarantined++
	case store.StatusSkipped:
		m.Skipped++
	default:
		m.Failed++
	}
	m.NodesUpserted += rec.WriteSummary.NodesUpserted
	m.RelationshipsCreated += rec.WriteSummary.RelationshipsCreated
}

// finishRun sets the terminal status and the operator hint. Quarantines
// degrade a run to warning; a run that produced nothing but failures,
// or died mid-walk, is failed.
func (p *Pipeline) finishRun(run *store.IngestionRun, walkErr error) {
	finished := time.Now().UTC()
	run.FinishedAt = &finished

	switch {
	case walkErr != nil:
		run.Status = store.RunFailed
		run.NextAction = "inspect the run error and re-run; processed documents will be skipped by raw hash"
	case run.Metrics.Failed > 0 ||
		(run.Metrics.DocumentsTotal > 0 && run.Metrics.Processed == 0 && run.Metrics.Skipped == 0):
		run.Status = store.RunFailed
		run.NextAction = "check sink connectivity and the quarantine, then re-run"
	case run.Metrics.Quarantined > 0:
		run.Status = store.RunWarning
		run.NextAction = fmt.Sprintf("review %d quarantined document(s) in the quarantine store", run.Metrics.Quarantined)
	default:
		run.Status = store.RunSuccess
	}
}
