// Package engine defines the storage engine contract: the predicate AST,
// fetch and save requests, and the shared in-memory predicate evaluator.
package engine

// MatchFlags control string comparison modifiers. Absent flags mean
// exact case and diacritic sensitivity.
type MatchFlags uint8

const (
	CaseInsensitive MatchFlags = 1 << iota
	DiacriticInsensitive
)

// CompareOp is a scalar comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
)

// MatchMode selects the string pattern semantics of a Match predicate.
type MatchMode int

const (
	MatchContains MatchMode = iota
	// MatchLike interprets the pattern with * (any run) and ? (any one
	// character) wildcards.
	MatchLike
	MatchPrefix
	MatchSuffix
)

// Quantifier applies to multi-valued field membership.
type Quantifier int

const (
	QuantifierAll Quantifier = iota
	QuantifierAny
	QuantifierNone
)

// CompoundOp combines sub-predicates.
type CompoundOp int

const (
	CompoundAnd CompoundOp = iota
	CompoundOr
)

// Predicate is a node in the filter AST. Predicates are compiled to the
// engine's native form by a translator, never by string concatenation.
type Predicate interface {
	isPredicate()
}

// Compare matches a scalar field against a value. Flags apply to string
// equality/inequality only.
type Compare struct {
	Field string
	Op    CompareOp
	Value any
	Flags MatchFlags
}

// Match matches a string field against a pattern.
type Match struct {
	Field   string
	Mode    MatchMode
	Pattern string
	Flags   MatchFlags
}

// Membership matches a scalar field against a value set.
type Membership struct {
	Field   string
	Values  []any
	Negated bool
}

// ListMembership quantifies over the elements of a multi-valued field.
type ListMembership struct {
	Field      string
	Values     []string
	Quantifier Quantifier
}

// Exists matches fields that are non-null (Exists true) or null.
type Exists struct {
	Field  string
	Exists bool
}

// Compound combines sub-predicates with AND or OR.
type Compound struct {
	Op    CompoundOp
	Preds []Predicate
}

// Raw is the escape hatch: a native filter fragment with ? placeholders
// and positional arguments. Only file-backed engines accept it.
type Raw struct {
	Expr string
	Args []any
}

func (*Compare) isPredicate()        {}
func (*Match) isPredicate()          {}
func (*Membership) isPredicate()     {}
func (*ListMembership) isPredicate() {}
func (*Exists) isPredicate()         {}
func (*Compound) isPredicate()       {}
func (*Raw) isPredicate()            {}

// Conjoin AND-combines predicates, flattening the common cases.
func Conjoin(preds []Predicate) Predicate {
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	}
	return &Compound{Op: CompoundAnd, Preds: preds}
}
