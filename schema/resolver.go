package schema

import (
	"fmt"
	"sort"

	"github.com/c360studio/registrygraph/canonical"
)

// Attempt records one variant evaluation, matched or not. The pipeline
// logs attempts so a quarantined document explains itself.
type Attempt struct {
	VariantID string   `json:"variant_id" bson:"variant_id"`
	Matched   bool     `json:"matched" bson:"matched"`
	Score     int      `json:"score" bson:"score"`
	Priority  int      `json:"priority" bson:"priority"`
	Reasons   []string `json:"reasons,omitempty" bson:"reasons,omitempty"`
}

// Resolution is the outcome of variant resolution: the winning variant
// plus the full attempt trail.
type Resolution struct {
	Register *RegisterSchema
	Variant  *Variant
	Attempts []Attempt
}

// ResolveVariant evaluates every variant of a register schema against
// the canonical document and picks the best match. Candidates rank by
// score, then declared priority; a tie on both at the top is an
// ambiguity, not a pick.
func ResolveVariant(register *RegisterSchema, doc *canonical.Value) (*Resolution, error) {
	res := &Resolution{
		Register: register,
		Attempts: make([]Attempt, 0, len(register.Variants)),
	}

	type candidate struct {
		variant *Variant
		score   int
	}
	var candidates []candidate

	for _, v := range register.Variants {
		result := v.Predicate().Evaluate(doc)
		res.Attempts = append(res.Attempts, Attempt{
			VariantID: v.VariantID,
			Matched:   result.Matched,
			Score:     result.Score,
			Priority:  v.Priority,
			Reasons:   result.Reasons,
		})
		if result.Matched {
			candidates = append(candidates, candidate{variant: v, score: result.Score})
		}
	}

	if len(candidates) == 0 {
		return res, fmt.Errorf("register %s: %w", register.RegistryCode, ErrNoVariant)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].variant.Priority > candidates[j].variant.Priority
	})

	if len(candidates) > 1 {
		top, next := candidates[0], candidates[1]
		if top.score == next.score && top.variant.Priority == next.variant.Priority {
			return res, fmt.Errorf("register %s: variants %s and %s tie at score %d: %w",
				register.RegistryCode, top.variant.VariantID, next.variant.VariantID, top.score, ErrAmbiguousVariant)
		}
	}

	res.Variant = candidates[0].variant
	return res, nil
}
