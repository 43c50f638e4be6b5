package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alice() map[string]any {
	return map[string]any{
		"id":    "u-1",
		"name":  "Alice",
		"city":  "São Paulo",
		"age":   int64(30),
		"score": 7.5,
		"tags":  []string{"admin", "staff"},
	}
}

func TestEval_Compare(t *testing.T) {
	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"eq string", &Compare{Field: "name", Op: OpEq, Value: "Alice"}, true},
		{"eq string miss", &Compare{Field: "name", Op: OpEq, Value: "alice"}, false},
		{"eq case fold", &Compare{Field: "name", Op: OpEq, Value: "ALICE", Flags: CaseInsensitive}, true},
		{"eq diacritic fold", &Compare{Field: "city", Op: OpEq, Value: "Sao Paulo", Flags: DiacriticInsensitive}, true},
		{"eq int vs int64", &Compare{Field: "age", Op: OpEq, Value: 30}, true},
		{"eq nil missing field", &Compare{Field: "email", Op: OpEq, Value: nil}, true},
		{"ne", &Compare{Field: "age", Op: OpNe, Value: 31}, true},
		{"ne null field", &Compare{Field: "email", Op: OpNe, Value: "x"}, false},
		{"ne null value", &Compare{Field: "email", Op: OpNe, Value: nil}, false},
		{"ne null value present field", &Compare{Field: "name", Op: OpNe, Value: nil}, true},
		{"gt", &Compare{Field: "age", Op: OpGt, Value: 29}, true},
		{"gt miss", &Compare{Field: "age", Op: OpGt, Value: 30}, false},
		{"ge", &Compare{Field: "age", Op: OpGe, Value: 30}, true},
		{"lt float", &Compare{Field: "score", Op: OpLt, Value: 8.0}, true},
		{"le", &Compare{Field: "score", Op: OpLe, Value: 7.5}, true},
		{"ordering with null is false", &Compare{Field: "email", Op: OpGt, Value: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.pred, alice())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_Match(t *testing.T) {
	tests := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"contains", &Match{Field: "name", Mode: MatchContains, Pattern: "lic"}, true},
		{"contains case", &Match{Field: "name", Mode: MatchContains, Pattern: "LIC"}, false},
		{"contains case fold", &Match{Field: "name", Mode: MatchContains, Pattern: "LIC", Flags: CaseInsensitive}, true},
		{"prefix", &Match{Field: "name", Mode: MatchPrefix, Pattern: "Al"}, true},
		{"suffix", &Match{Field: "name", Mode: MatchSuffix, Pattern: "ce"}, true},
		{"like", &Match{Field: "name", Mode: MatchLike, Pattern: "A*e"}, true},
		{"like single char", &Match{Field: "name", Mode: MatchLike, Pattern: "Alic?"}, true},
		{"like anchored", &Match{Field: "name", Mode: MatchLike, Pattern: "lic"}, false},
		{"diacritic fold", &Match{Field: "city", Mode: MatchPrefix, Pattern: "Sao", Flags: DiacriticInsensitive}, true},
		{"non-string field", &Match{Field: "age", Mode: MatchContains, Pattern: "3"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.pred, alice())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_Membership(t *testing.T) {
	in, err := Eval(&Membership{Field: "age", Values: []any{29, 30}}, alice())
	require.NoError(t, err)
	assert.True(t, in)

	out, err := Eval(&Membership{Field: "age", Values: []any{29, 30}, Negated: true}, alice())
	require.NoError(t, err)
	assert.False(t, out)

	miss, err := Eval(&Membership{Field: "name", Values: []any{"Bob"}}, alice())
	require.NoError(t, err)
	assert.False(t, miss)

	// A null field satisfies neither IN nor NOT IN, as in SQL.
	null, err := Eval(&Membership{Field: "email", Values: []any{"x"}}, alice())
	require.NoError(t, err)
	assert.False(t, null)

	null, err = Eval(&Membership{Field: "email", Values: []any{"x"}, Negated: true}, alice())
	require.NoError(t, err)
	assert.False(t, null)
}

func TestEval_ListMembership(t *testing.T) {
	tests := []struct {
		name string
		pred *ListMembership
		want bool
	}{
		{"all hit", &ListMembership{Field: "tags", Values: []string{"admin", "staff"}, Quantifier: QuantifierAll}, true},
		{"all miss", &ListMembership{Field: "tags", Values: []string{"admin", "guest"}, Quantifier: QuantifierAll}, false},
		{"any", &ListMembership{Field: "tags", Values: []string{"guest", "staff"}, Quantifier: QuantifierAny}, true},
		{"none", &ListMembership{Field: "tags", Values: []string{"guest"}, Quantifier: QuantifierNone}, true},
		{"none miss", &ListMembership{Field: "tags", Values: []string{"admin"}, Quantifier: QuantifierNone}, false},
		{"null field any", &ListMembership{Field: "aliases", Values: []string{"x"}, Quantifier: QuantifierAny}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.pred, alice())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_ExistsAndCompound(t *testing.T) {
	ok, err := Eval(&Exists{Field: "name", Exists: true}, alice())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Eval(&Exists{Field: "email", Exists: false}, alice())
	require.NoError(t, err)
	assert.True(t, ok)

	and := &Compound{Op: CompoundAnd, Preds: []Predicate{
		&Compare{Field: "name", Op: OpEq, Value: "Alice"},
		&Compare{Field: "age", Op: OpGt, Value: 40},
	}}
	ok, err = Eval(and, alice())
	require.NoError(t, err)
	assert.False(t, ok)

	or := &Compound{Op: CompoundOr, Preds: []Predicate{
		&Compare{Field: "age", Op: OpGt, Value: 40},
		&Compare{Field: "name", Op: OpEq, Value: "Alice"},
	}}
	ok, err = Eval(or, alice())
	require.NoError(t, err)
	assert.True(t, ok)

	// Empty compounds: AND is vacuously true, OR is vacuously false.
	ok, err = Eval(&Compound{Op: CompoundAnd}, alice())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = Eval(&Compound{Op: CompoundOr}, alice())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEval_RawUnsupported(t *testing.T) {
	_, err := Eval(&Raw{Expr: "age > ?", Args: []any{10}}, alice())
	assert.Error(t, err)
}

func TestFold(t *testing.T) {
	assert.Equal(t, "Crème Brûlée", Fold("Crème Brûlée", 0))
	assert.Equal(t, "crème brûlée", Fold("Crème Brûlée", CaseInsensitive))
	assert.Equal(t, "Creme Brulee", Fold("Crème Brûlée", DiacriticInsensitive))
	assert.Equal(t, "creme brulee", Fold("Crème Brûlée", CaseInsensitive|DiacriticInsensitive))
}

func TestSortRows(t *testing.T) {
	rows := []Row{
		{ID: "c", Values: map[string]any{"age": int64(25), "name": "Carol"}},
		{ID: "a", Values: map[string]any{"age": int64(30), "name": "Alice"}},
		{ID: "b", Values: map[string]any{"age": int64(25), "name": "Bob"}},
		{ID: "d", Values: map[string]any{"name": "Dan"}},
	}

	SortRows(rows, []SortKey{{Field: "age"}, {Field: "name"}})
	ids := []string{rows[0].ID, rows[1].ID, rows[2].ID, rows[3].ID}
	// Null age sorts first.
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids)

	SortRows(rows, []SortKey{{Field: "id", Descending: true}})
	assert.Equal(t, "d", rows[0].ID)
	assert.Equal(t, "a", rows[3].ID)
}

func TestConjoin(t *testing.T) {
	assert.Nil(t, Conjoin(nil))

	p := &Compare{Field: "a", Op: OpEq, Value: 1}
	assert.Equal(t, Predicate(p), Conjoin([]Predicate{p}))

	q := &Compare{Field: "b", Op: OpEq, Value: 2}
	c, ok := Conjoin([]Predicate{p, q}).(*Compound)
	require.True(t, ok)
	assert.Equal(t, CompoundAnd, c.Op)
	assert.Len(t, c.Preds, 2)
}

func TestOrderValues_Time(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	ok, err := Eval(&Compare{Field: "at", Op: OpLt, Value: t1}, map[string]any{"at": t0})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Eval(&Compare{Field: "at", Op: OpEq, Value: t0.In(time.FixedZone("X", 3600))}, map[string]any{"at": t0})
	require.NoError(t, err)
	assert.True(t, ok)
}
