// Package query provides the fluent, typed query builder over a stack:
// composable predicates, execution options and result projections.
package query

import "github.com/othierry/facade/engine"

// MatchFlags re-exports the engine's string comparison modifiers.
type MatchFlags = engine.MatchFlags

const (
	CaseInsensitive      = engine.CaseInsensitive
	DiacriticInsensitive = engine.DiacriticInsensitive
)

// Builder accumulates predicates; every method returns the receiver so
// conditions chain. Accumulated predicates combine with AND; use Or to
// build disjunctive groups.
type Builder struct {
	preds []engine.Predicate
}

// NewBuilder returns an empty predicate builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) add(p engine.Predicate) *Builder {
	b.preds = append(b.preds, p)
	return b
}

func combineFlags(flags []MatchFlags) MatchFlags {
	var f MatchFlags
	for _, v := range flags {
		f |= v
	}
	return f
}

// ContainedIn matches records whose field value is one of values.
func (b *Builder) ContainedIn(key string, values ...any) *Builder {
	return b.add(&engine.Membership{Field: key, Values: values})
}

// NotContainedIn matches records whose field value is none of values.
func (b *Builder) NotContainedIn(key string, values ...any) *Builder {
	return b.add(&engine.Membership{Field: key, Values: values, Negated: true})
}

// Containing matches string fields containing the substring.
func (b *Builder) Containing(key, substring string, flags ...MatchFlags) *Builder {
	return b.add(&engine.Match{Field: key, Mode: engine.MatchContains, Pattern: substring, Flags: combineFlags(flags)})
}

// Like matches string fields against a pattern with * and ? wildcards.
func (b *Builder) Like(key, pattern string, flags ...MatchFlags) *Builder {
	return b.add(&engine.Match{Field: key, Mode: engine.MatchLike, Pattern: pattern, Flags: combineFlags(flags)})
}

// StartingWith matches string fields with the given prefix.
func (b *Builder) StartingWith(key, prefix string, flags ...MatchFlags) *Builder {
	return b.add(&engine.Match{Field: key, Mode: engine.MatchPrefix, Pattern: prefix, Flags: combineFlags(flags)})
}

// EndingWith matches string fields with the given suffix.
func (b *Builder) EndingWith(key, suffix string, flags ...MatchFlags) *Builder {
	return b.add(&engine.Match{Field: key, Mode: engine.MatchSuffix, Pattern: suffix, Flags: combineFlags(flags)})
}

// ContainingAll matches multi-valued fields containing every value.
func (b *Builder) ContainingAll(key string, values ...string) *Builder {
	return b.add(&engine.ListMembership{Field: key, Values: values, Quantifier: engine.QuantifierAll})
}

// ContainingAny matches multi-valued fields containing at least one value.
func (b *Builder) ContainingAny(key string, values ...string) *Builder {
	return b.add(&engine.ListMembership{Field: key, Values: values, Quantifier: engine.QuantifierAny})
}

// ContainingNone matches multi-valued fields containing none of the values.
func (b *Builder) ContainingNone(key string, values ...string) *Builder {
	return b.add(&engine.ListMembership{Field: key, Values: values, Quantifier: engine.QuantifierNone})
}

// Existing matches fields that are non-null (true) or null (false).
func (b *Builder) Existing(key string, exists bool) *Builder {
	return b.add(&engine.Exists{Field: key, Exists: exists})
}

// EqualTo matches fields equal to value. A nil value means "field is
// null" and becomes an existence check.
func (b *Builder) EqualTo(key string, value any, flags ...MatchFlags) *Builder {
	if value == nil {
		return b.Existing(key, false)
	}
	return b.add(&engine.Compare{Field: key, Op: engine.OpEq, Value: value, Flags: combineFlags(flags)})
}

// NotEqualTo matches fields different from value. A nil value becomes
// "field is non-null".
func (b *Builder) NotEqualTo(key string, value any, flags ...MatchFlags) *Builder {
	if value == nil {
		return b.Existing(key, true)
	}
	return b.add(&engine.Compare{Field: key, Op: engine.OpNe, Value: value, Flags: combineFlags(flags)})
}

// GreaterThan matches numeric fields strictly above value.
func (b *Builder) GreaterThan(key string, value any) *Builder {
	return b.add(&engine.Compare{Field: key, Op: engine.OpGt, Value: value})
}

// GreaterThanOrEqual matches numeric fields at or above value.
func (b *Builder) GreaterThanOrEqual(key string, value any) *Builder {
	return b.add(&engine.Compare{Field: key, Op: engine.OpGe, Value: value})
}

// LowerThan matches numeric fields strictly below value.
func (b *Builder) LowerThan(key string, value any) *Builder {
	return b.add(&engine.Compare{Field: key, Op: engine.OpLt, Value: value})
}

// LowerThanOrEqual matches numeric fields at or below value.
func (b *Builder) LowerThanOrEqual(key string, value any) *Builder {
	return b.add(&engine.Compare{Field: key, Op: engine.OpLe, Value: value})
}

// Raw appends a native filter fragment with ? placeholders, for the
// cases the builder does not cover. Only file-backed stores accept it.
func (b *Builder) Raw(expr string, args ...any) *Builder {
	return b.add(&engine.Raw{Expr: expr, Args: args})
}

// Empty reports whether no predicates were accumulated.
func (b *Builder) Empty() bool {
	return len(b.preds) == 0
}

// Predicate condenses the accumulated predicates into one conjunction;
// nil when empty.
func (b *Builder) Predicate() engine.Predicate {
	return engine.Conjoin(append([]engine.Predicate(nil), b.preds...))
}

// Or AND-condenses each builder's predicates into one group and
// OR-combines the groups: Or(b1, b2) expresses (b1...) OR (b2...). The
// result is itself a builder, usable as one predicate among further
// conditions.
func Or(builders ...*Builder) *Builder {
	groups := make([]engine.Predicate, 0, len(builders))
	for _, b := range builders {
		if p := b.Predicate(); p != nil {
			groups = append(groups, p)
		}
	}
	out := NewBuilder()
	switch len(groups) {
	case 0:
		return out
	case 1:
		return out.add(groups[0])
	}
	return out.add(&engine.Compound{Op: engine.CompoundOr, Preds: groups})
}
