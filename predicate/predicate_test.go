package predicate

import (
	"strings"
	"testing"

	"github.com/c360studio/registrygraph/canonical"
)

func doc(t *testing.T, src string) *canonical.Value {
	t.Helper()
	v, err := canonical.ParseJSON([]byte(src))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return v
}

func compile(t *testing.T, spec Spec) *Predicate {
	t.Helper()
	p, err := Compile(spec)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return p
}

func TestEvaluate(t *testing.T) {
	fixture := doc(t, `{
		"data": {
			"root": {"result": {"last_name": "Ivanov", "count": 10}},
			"status": "OK"
		}
	}`)

	tests := []struct {
		name      string
		spec      Spec
		matched   bool
		score     int
		reasonSub string
	}{
		{
			name: "all exists match",
			spec: Spec{All: []RuleSpec{
				{Type: KindExists, Path: "$.data.root.result"},
				{Type: KindExists, Path: "$.data.root.result.last_name"},
			}},
			matched: true,
			score:   2,
		},
		{
			name: "failed exists short-circuits",
			spec: Spec{All: []RuleSpec{
				{Type: KindExists, Path: "$.data.root.missing"},
				{Type: KindExists, Path: "$.data.root.result"},
			}},
			matched:   false,
			score:     0,
			reasonSub: "failed_json_exists:$.data.root.missing",
		},
		{
			name: "equals string",
			spec: Spec{All: []RuleSpec{
				{Type: KindEquals, Path: "$.data.status", Value: "OK"},
			}},
			matched: true,
			score:   1,
		},
		{
			name: "equals lenient numeric",
			spec: Spec{All: []RuleSpec{
				{Type: KindEquals, Path: "$.data.root.result.count", Value: 10.0},
			}},
			matched: true,
			score:   1,
		},
		{
			name: "in",
			spec: Spec{All: []RuleSpec{
				{Type: KindIn, Path: "$.data.status", Values: []any{"FAIL", "OK"}},
			}},
			matched: true,
			score:   1,
		},
		{
			name: "in miss",
			spec: Spec{All: []RuleSpec{
				{Type: KindIn, Path: "$.data.status", Values: []any{"FAIL"}},
			}},
			matched:   false,
			reasonSub: "failed_json_in:$.data.status",
		},
		{
			name: "regex",
			spec: Spec{All: []RuleSpec{
				{Type: KindRegex, Path: "$.data.root.result.last_name", Pattern: "^Iva"},
			}},
			matched: true,
			score:   1,
		},
		{
			name: "none blocks",
			spec: Spec{
				All:  []RuleSpec{{Type: KindExists, Path: "$.data.root.result"}},
				None: []RuleSpec{{Type: KindEquals, Path: "$.data.status", Value: "OK"}},
			},
			matched:   false,
			score:     1,
			reasonSub: "none_matched_json_equals:$.data.status",
		},
		{
			name: "unknown kind neither scores nor fails",
			spec: Spec{All: []RuleSpec{
				{Type: "json_magic", Path: "$.data.status"},
				{Type: KindExists, Path: "$.data.status"},
			}},
			matched:   true,
			score:     1,
			reasonSub: "unsupported_type:json_magic",
		},
		{
			name:    "empty predicate matches with zero score",
			spec:    Spec{},
			matched: true,
			score:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := compile(t, tt.spec).Evaluate(fixture)
			if res.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v (reasons %v)", res.Matched, tt.matched, res.Reasons)
			}
			if res.Score != tt.score {
				t.Errorf("Score = %d, want %d", res.Score, tt.score)
			}
			if tt.reasonSub != "" {
				found := false
				for _, r := range res.Reasons {
					if strings.Contains(r, tt.reasonSub) {
						found = true
					}
				}
				if !found {
					t.Errorf("reasons %v missing %q", res.Reasons, tt.reasonSub)
				}
			}
		})
	}
}

func TestFailingRuleNeverImprovesMatch(t *testing.T) {
	fixture := doc(t, `{
		"data": {
			"root": {"result": {"last_name": "Ivanov"}},
			"status": "OK"
		}
	}`)

	base := Spec{All: []RuleSpec{
		{Type: KindExists, Path: "$.data.root.result"},
		{Type: KindEquals, Path: "$.data.status", Value: "OK"},
	}}
	before := compile(t, base).Evaluate(fixture)
	if !before.Matched || before.Score != 2 {
		t.Fatalf("base predicate = %+v, want matched with score 2", before)
	}

	// Widening the conjunction with a failing rule can only hurt: the
	// match flips off and the score never rises.
	widened := Spec{All: append(append([]RuleSpec{}, base.All...),
		RuleSpec{Type: KindExists, Path: "$.data.root.missing"})}
	after := compile(t, widened).Evaluate(fixture)
	if after.Matched {
		t.Error("adding a failing rule must not leave the predicate matched")
	}
	if after.Score > before.Score {
		t.Errorf("score rose from %d to %d after adding a failing rule", before.Score, after.Score)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"missing path", Spec{All: []RuleSpec{{Type: KindExists}}}},
		{"bad path", Spec{All: []RuleSpec{{Type: KindExists, Path: "$.a["}}}},
		{"bad regex", Spec{All: []RuleSpec{{Type: KindRegex, Path: "$.a", Pattern: "("}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.spec); err == nil {
				t.Error("Compile() succeeded, want error")
			}
		})
	}
}

func TestRuleCount(t *testing.T) {
	p := compile(t, Spec{
		All:  []RuleSpec{{Type: KindExists, Path: "$.a"}, {Type: KindExists, Path: "$.b"}},
		None: []RuleSpec{{Type: KindExists, Path: "$.c"}},
	})
	if p.RuleCount() != 2 {
		t.Errorf("RuleCount() = %d, want 2", p.RuleCount())
	}
	if p.IsEmpty() {
		t.Error("IsEmpty() = true for non-empty predicate")
	}
}
