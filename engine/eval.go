package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Eval evaluates a predicate against one record's field values. The
// values map carries "id" alongside the model fields. It backs the
// in-memory engine and context-overlay fetches; Raw predicates are only
// meaningful to a file-backed engine and fail here.
func Eval(p Predicate, values map[string]any) (bool, error) {
	switch pred := p.(type) {
	case nil:
		return true, nil
	case *Compare:
		return evalCompare(pred, values[pred.Field])
	case *Match:
		return evalMatch(pred, values[pred.Field])
	case *Membership:
		v := values[pred.Field]
		// A null field satisfies neither IN nor NOT IN, as in SQL.
		if v == nil && len(pred.Values) > 0 {
			return false, nil
		}
		for _, want := range pred.Values {
			if looseEqual(v, want, 0) {
				return !pred.Negated, nil
			}
		}
		return pred.Negated, nil
	case *ListMembership:
		return evalListMembership(pred, values[pred.Field])
	case *Exists:
		return (values[pred.Field] != nil) == pred.Exists, nil
	case *Compound:
		for _, sub := range pred.Preds {
			ok, err := Eval(sub, values)
			if err != nil {
				return false, err
			}
			if pred.Op == CompoundAnd && !ok {
				return false, nil
			}
			if pred.Op == CompoundOr && ok {
				return true, nil
			}
		}
		return pred.Op == CompoundAnd, nil
	case *Raw:
		return false, fmt.Errorf("raw predicates require a file-backed engine")
	default:
		return false, fmt.Errorf("unsupported predicate type %T", p)
	}
}

func evalCompare(p *Compare, v any) (bool, error) {
	switch p.Op {
	case OpEq:
		return looseEqual(v, p.Value, p.Flags), nil
	case OpNe:
		// A null field never compares not-equal to a value, as in SQL.
		if v == nil && p.Value != nil {
			return false, nil
		}
		return !looseEqual(v, p.Value, p.Flags), nil
	}
	if v == nil || p.Value == nil {
		return false, nil
	}
	c, err := orderValues(v, p.Value)
	if err != nil {
		return false, fmt.Errorf("field %q: %w", p.Field, err)
	}
	switch p.Op {
	case OpGt:
		return c > 0, nil
	case OpGe:
		return c >= 0, nil
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	}
	return false, fmt.Errorf("unknown comparison operator %q", p.Op)
}

func evalMatch(p *Match, v any) (bool, error) {
	s, ok := v.(string)
	if !ok {
		return false, nil
	}
	s = Fold(s, p.Flags)
	pattern := Fold(p.Pattern, p.Flags)
	switch p.Mode {
	case MatchContains:
		return strings.Contains(s, pattern), nil
	case MatchPrefix:
		return strings.HasPrefix(s, pattern), nil
	case MatchSuffix:
		return strings.HasSuffix(s, pattern), nil
	case MatchLike:
		re, err := likeRegexp(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	}
	return false, fmt.Errorf("unknown match mode %d", p.Mode)
}

// likeRegexp converts a *-and-? wildcard pattern to an anchored regexp.
func likeRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func evalListMembership(p *ListMembership, v any) (bool, error) {
	members := make(map[string]bool)
	switch list := v.(type) {
	case nil:
	case []string:
		for _, s := range list {
			members[s] = true
		}
	case []any:
		for _, e := range list {
			if s, ok := e.(string); ok {
				members[s] = true
			}
		}
	default:
		return false, fmt.Errorf("field %q is not multi-valued", p.Field)
	}

	hits := 0
	for _, want := range p.Values {
		if members[want] {
			hits++
		}
	}
	switch p.Quantifier {
	case QuantifierAll:
		return hits == len(p.Values), nil
	case QuantifierAny:
		return hits > 0, nil
	case QuantifierNone:
		return hits == 0, nil
	}
	return false, fmt.Errorf("unknown quantifier %d", p.Quantifier)
}

// looseEqual compares across the numeric types a row can carry and
// applies fold flags to strings.
func looseEqual(a, b any, flags MatchFlags) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return Fold(sa, flags) == Fold(sb, flags)
		}
		return false
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	return a == b
}

// orderValues returns -1, 0 or 1 for ordered value pairs.
func orderValues(a, b any) (int, error) {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			}
			return 0, nil
		}
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return strings.Compare(sa, sb), nil
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			switch {
			case ta.Before(tb):
				return -1, nil
			case ta.After(tb):
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, fmt.Errorf("cannot order %T against %T", a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// SortRows orders rows in place by the given keys. Nulls sort first;
// the "id" pseudo-field refers to the row identifier.
func SortRows(rows []Row, keys []SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			a := rowValue(rows[i], k.Field)
			b := rowValue(rows[j], k.Field)
			c := orderForSort(a, b)
			if c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func rowValue(r Row, field string) any {
	if field == "id" {
		return r.ID
	}
	return r.Values[field]
}

func orderForSort(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c, err := orderValues(a, b); err == nil {
		return c
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
