package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/c360studio/registrygraph/graph"
	"github.com/c360studio/registrygraph/mapper"
	"github.com/c360studio/registrygraph/schema"
	"github.com/c360studio/registrygraph/store"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func TestWithRetryTransientThenSuccess(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetry(3), nil, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Errorf("withRetry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("still broken")
	err := withRetry(context.Background(), fastRetry(3), nil, func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("withRetry() error = %v, want the last failure", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryPermanentStopsImmediately(t *testing.T) {
	calls := 0
	conflict := &graph.ConflictError{Label: "Person", NodeID: "p1", Property: "birth_date"}
	err := withRetry(context.Background(), fastRetry(5), isPermanent, func() error {
		calls++
		return conflict
	})
	var got *graph.ConflictError
	if !errors.As(err, &got) {
		t.Errorf("withRetry() error = %v, want the conflict", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, permanent errors must not retry", calls)
	}
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, fastRetry(5), nil, func() error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("withRetry() error = %v, want context.Canceled", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", context.DeadlineExceeded, store.CategoryTimeout},
		{"ambiguous", schema.ErrAmbiguousVariant, store.CategoryVariantAmbiguous},
		{"no variant", schema.ErrNoVariant, store.CategorySchemaNotFound},
		{"required missing", mapper.ErrRequiredMissing, store.CategoryMappingError},
		{"conflict", &graph.ConflictError{}, store.CategoryImmutableConflict},
		{"other", errors.New("boom"), store.CategorySinkError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.want {
				t.Errorf("classify() = %s, want %s", got, tt.want)
			}
		})
	}
}
