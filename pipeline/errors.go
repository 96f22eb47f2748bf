package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/registrygraph/graph"
	"github.com/c360studio/registrygraph/mapper"
	"github.com/c360studio/registrygraph/schema"
	"github.com/c360studio/registrygraph/store"
)

// Stage names, in pipeline order.
const (
	StageRead      = "read"
	StageCanonical = "canonicalize"
	StageResolve   = "resolve_variant"
	StageMap       = "map"
	StageIdentify  = "identify"
	StageRelate    = "build_relationships"
	StageUpsert    = "upsert"
	StageRecord    = "record_outcome"
)

// StageError ties a failure to the stage that produced it and the
// quarantine category it belongs to. Resolve failures attach the
// variant attempt trail so the quarantine record explains itself.
type StageError struct {
	Stage    string
	Category string
	Err      error
	Attempts []schema.Attempt
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageFailure wraps err with its stage and classified category.
func stageFailure(stage string, err error) *StageError {
	return &StageError{Stage: stage, Category: classify(err), Err: err}
}

// classify maps an error to its quarantine category. Unrecognized
// errors land in sink_error only when they come from the upsert stage;
// callers pass explicit categories elsewhere.
func classify(err error) string {
	var conflict *graph.ConflictError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return store.CategoryTimeout
	case errors.Is(err, schema.ErrAmbiguousVariant):
		return store.CategoryVariantAmbiguous
	case errors.Is(err, schema.ErrNoVariant), errors.Is(err, schema.ErrNotFound):
		return store.CategorySchemaNotFound
	case errors.Is(err, mapper.ErrRequiredMissing):
		return store.CategoryMappingError
	case errors.As(err, &conflict):
		return store.CategoryImmutableConflict
	default:
		return store.CategorySinkError
	}
}
