// Package predicate evaluates declarative match predicates against
// canonical documents. A predicate is an "all" clause (every rule must
// match) plus an optional "none" clause (no rule may match); the score
// counts satisfied "all" rules and drives variant selection.
package predicate

import (
	"fmt"
	"regexp"

	"github.com/c360studio/registrygraph/canonical"
	"github.com/c360studio/registrygraph/jsonpath"
)

// Rule kinds understood by the engine. Unknown kinds contribute a
// reason but neither score nor fail; the caller decides what to do.
const (
	KindExists = "json_exists"
	KindEquals = "json_equals"
	KindIn     = "json_in"
	KindRegex  = "json_regex"
)

// RuleSpec is the declarative form of one rule, as it appears in a
// register schema document.
type RuleSpec struct {
	Type    string `json:"type"`
	Path    string `json:"path"`
	Value   any    `json:"value,omitempty"`
	Values  []any  `json:"values,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

// Spec is the declarative form of a predicate.
type Spec struct {
	All  []RuleSpec `json:"all,omitempty"`
	None []RuleSpec `json:"none,omitempty"`
}

// Rule is a compiled rule: path and pattern are parsed once at schema
// load so evaluation is allocation-light and cannot fail.
type Rule struct {
	kind    string
	path    *jsonpath.Path
	value   *canonical.Value
	values  []*canonical.Value
	pattern *regexp.Regexp
}

// Predicate is a compiled predicate ready for evaluation.
type Predicate struct {
	all  []Rule
	none []Rule
}

// Result is the outcome of evaluating a predicate against a document.
type Result struct {
	Matched bool
	Score   int
	Reasons []string
}

// Compile validates and compiles a predicate spec. Path syntax and
// regex errors surface here, at schema load, never per document.
func Compile(spec Spec) (*Predicate, error) {
	p := &Predicate{}
	for i, rs := range spec.All {
		rule, err := compileRule(rs)
		if err != nil {
			return nil, fmt.Errorf("all[%d]: %w", i, err)
		}
		p.all = append(p.all, rule)
	}
	for i, rs := range spec.None {
		rule, err := compileRule(rs)
		if err != nil {
			return nil, fmt.Errorf("none[%d]: %w", i, err)
		}
		p.none = append(p.none, rule)
	}
	return p, nil
}

func compileRule(rs RuleSpec) (Rule, error) {
	if rs.Path == "" {
		return Rule{}, fmt.Errorf("rule %q: path is required", rs.Type)
	}
	path, err := jsonpath.Compile(rs.Path)
	if err != nil {
		return Rule{}, err
	}
	rule := Rule{kind: rs.Type, path: path}
	switch rs.Type {
	case KindEquals:
		v, err := canonical.FromAny(rs.Value)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: %w", rs.Type, err)
		}
		rule.value = v
	case KindIn:
		for _, raw := range rs.Values {
			v, err := canonical.FromAny(raw)
			if err != nil {
				return Rule{}, fmt.Errorf("rule %q: %w", rs.Type, err)
			}
			rule.values = append(rule.values, v)
		}
	case KindRegex:
		re, err := regexp.Compile(rs.Pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: invalid pattern: %w", rs.Type, err)
		}
		rule.pattern = re
	case KindExists:
		// path only
	default:
		// kept as-is; evaluation records an unsupported-kind reason
	}
	return rule, nil
}

// Evaluate runs the predicate against a document. Any failed "all" rule
// short-circuits; any matching "none" rule is an immediate non-match.
func (p *Predicate) Evaluate(doc *canonical.Value) Result {
	var res Result
	for _, rule := range p.all {
		ok, known := rule.match(doc)
		if !known {
			res.Reasons = append(res.Reasons, "unsupported_type:"+rule.kind)
			continue
		}
		if !ok {
			res.Reasons = append(res.Reasons, fmt.Sprintf("failed_%s:%s", rule.kind, rule.path.Source()))
			return res
		}
		res.Score++
	}
	for _, rule := range p.none {
		ok, known := rule.match(doc)
		if !known {
			res.Reasons = append(res.Reasons, "unsupported_type:"+rule.kind)
			continue
		}
		if ok {
			res.Reasons = append(res.Reasons, fmt.Sprintf("none_matched_%s:%s", rule.kind, rule.path.Source()))
			return res
		}
	}
	res.Matched = true
	return res
}

// RuleCount returns the number of "all" rules, the maximum attainable
// score.
func (p *Predicate) RuleCount() int { return len(p.all) }

// IsEmpty reports whether the predicate has no rules at all.
func (p *Predicate) IsEmpty() bool { return len(p.all) == 0 && len(p.none) == 0 }

func (r Rule) match(doc *canonical.Value) (matched, known bool) {
	val := r.path.First(doc)
	switch r.kind {
	case KindExists:
		return val != nil, true
	case KindEquals:
		return val != nil && scalarEqual(val, r.value), true
	case KindIn:
		if val == nil {
			return false, true
		}
		for _, candidate := range r.values {
			if scalarEqual(val, candidate) {
				return true, true
			}
		}
		return false, true
	case KindRegex:
		s, ok := val.Text()
		return ok && r.pattern.MatchString(s), true
	default:
		return false, false
	}
}

// scalarEqual compares two values leniently across numeric kinds: a
// JSON literal 10 must match a tree value parsed as int or float, and
// XML text "10" must match the literal "10".
func scalarEqual(a, b *canonical.Value) bool {
	if a.Kind() == b.Kind() {
		return a.Equal(b)
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	as, aok := a.Scalar()
	bs, bok := b.Scalar()
	return aok && bok && as == bs
}

func asFloat(v *canonical.Value) (float64, bool) {
	if i, ok := v.IntValue(); ok {
		return float64(i), true
	}
	if f, ok := v.FloatValue(); ok {
		return f, true
	}
	return 0, false
}
