package sqlite

import (
	"fmt"
	"strings"

	"github.com/othierry/facade/engine"
	"github.com/othierry/facade/schema"
)

// translator compiles the predicate AST and fetch options to
// parameterized SQL. Values are never interpolated; field names are
// validated against the entity description before they reach the SQL
// text.
type translator struct {
	entity *schema.Entity
}

func (t *translator) column(field string) (string, error) {
	if field == "id" {
		return `"id"`, nil
	}
	if _, ok := t.entity.Field(field); !ok {
		return "", fmt.Errorf("entity %q has no field %q", t.entity.Name, field)
	}
	return `"` + field + `"`, nil
}

// qualified returns the table-qualified column, needed where a
// correlated subquery (json_each) would shadow the bare name.
func (t *translator) qualified(field string) (string, error) {
	col, err := t.column(field)
	if err != nil {
		return "", err
	}
	return `"` + t.entity.Name + `".` + col, nil
}

// selectSQL builds the full SELECT statement for a fetch request.
func (t *translator) selectSQL(req *engine.FetchRequest) (string, []any, error) {
	cols, err := t.selectColumns(req)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if req.Distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(` FROM "` + t.entity.Name + `"`)

	var args []any
	if req.Filter != nil {
		where, whereArgs, err := t.predicate(req.Filter)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" WHERE " + where)
		args = whereArgs
	}

	if len(req.GroupBy) > 0 {
		groups := make([]string, len(req.GroupBy))
		for i, f := range req.GroupBy {
			if groups[i], err = t.column(f); err != nil {
				return "", nil, err
			}
		}
		b.WriteString(" GROUP BY " + strings.Join(groups, ", "))
	}

	if len(req.Sort) > 0 {
		orders := make([]string, len(req.Sort))
		for i, k := range req.Sort {
			col, err := t.column(k.Field)
			if err != nil {
				return "", nil, err
			}
			if k.Descending {
				orders[i] = col + " DESC"
			} else {
				orders[i] = col + " ASC"
			}
		}
		b.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}

	if req.Limit > 0 || req.Offset > 0 {
		limit := req.Limit
		if limit <= 0 {
			limit = -1
		}
		b.WriteString(fmt.Sprintf(" LIMIT %d", limit))
		if req.Offset > 0 {
			b.WriteString(fmt.Sprintf(" OFFSET %d", req.Offset))
		}
	}
	return b.String(), args, nil
}

// selectColumns resolves the projected column list. The first column is
// always id except for dict projections, which carry only the
// requested property fields.
func (t *translator) selectColumns(req *engine.FetchRequest) ([]string, error) {
	switch req.Projection {
	case engine.ProjectIDs:
		return []string{`"id"`}, nil
	case engine.ProjectDicts:
		if len(req.PropertyFields) == 0 {
			return nil, fmt.Errorf("dictionary fetch requires property fields")
		}
		cols := make([]string, len(req.PropertyFields))
		for i, f := range req.PropertyFields {
			col, err := t.column(f)
			if err != nil {
				return nil, err
			}
			cols[i] = col
		}
		return cols, nil
	}
	if !req.LoadsProperties {
		return []string{`"id"`}, nil
	}
	cols := make([]string, 0, len(t.entity.Fields)+1)
	cols = append(cols, `"id"`)
	for _, f := range t.entity.Fields {
		cols = append(cols, `"`+f.Name+`"`)
	}
	return cols, nil
}

// countSQL wraps the fetch as a count-only request.
func (t *translator) countSQL(req *engine.FetchRequest) (string, []any, error) {
	inner := *req
	inner.Sort = nil
	sel, args, err := t.selectSQL(&inner)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM (" + sel + ")", args, nil
}

// deleteSQL builds a bulk delete statement.
func (t *translator) deleteSQL(filter engine.Predicate) (string, []any, error) {
	sql := `DELETE FROM "` + t.entity.Name + `"`
	if filter == nil {
		return sql, nil, nil
	}
	where, args, err := t.predicate(filter)
	if err != nil {
		return "", nil, err
	}
	return sql + " WHERE " + where, args, nil
}

func (t *translator) predicate(p engine.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case *engine.Compare:
		return t.compare(pred)
	case *engine.Match:
		return t.match(pred)
	case *engine.Membership:
		return t.membership(pred)
	case *engine.ListMembership:
		return t.listMembership(pred)
	case *engine.Exists:
		col, err := t.column(pred.Field)
		if err != nil {
			return "", nil, err
		}
		if pred.Exists {
			return col + " IS NOT NULL", nil, nil
		}
		return col + " IS NULL", nil, nil
	case *engine.Compound:
		return t.compound(pred)
	case *engine.Raw:
		if strings.Count(pred.Expr, "?") != len(pred.Args) {
			return "", nil, fmt.Errorf("raw predicate %q wants %d arguments, got %d",
				pred.Expr, strings.Count(pred.Expr, "?"), len(pred.Args))
		}
		return "(" + pred.Expr + ")", pred.Args, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type %T", p)
	}
}

func (t *translator) compare(p *engine.Compare) (string, []any, error) {
	col, err := t.column(p.Field)
	if err != nil {
		return "", nil, err
	}
	if p.Value == nil {
		switch p.Op {
		case engine.OpEq:
			return col + " IS NULL", nil, nil
		case engine.OpNe:
			return col + " IS NOT NULL", nil, nil
		}
		return "", nil, fmt.Errorf("cannot order field %q against null", p.Field)
	}
	value, err := encodeValue(t.fieldKind(p.Field), p.Value)
	if err != nil {
		return "", nil, err
	}
	if p.Flags != 0 {
		if s, ok := value.(string); ok {
			return fmt.Sprintf("fold(%s, %d) %s ?", col, p.Flags, p.Op),
				[]any{engine.Fold(s, p.Flags)}, nil
		}
	}
	return fmt.Sprintf("%s %s ?", col, p.Op), []any{value}, nil
}

func (t *translator) match(p *engine.Match) (string, []any, error) {
	col, err := t.column(p.Field)
	if err != nil {
		return "", nil, err
	}
	if p.Flags != 0 {
		col = fmt.Sprintf("fold(%s, %d)", col, p.Flags)
	}
	folded := engine.Fold(p.Pattern, p.Flags)

	var like string
	switch p.Mode {
	case engine.MatchContains:
		like = "%" + escapeLike(folded) + "%"
	case engine.MatchPrefix:
		like = escapeLike(folded) + "%"
	case engine.MatchSuffix:
		like = "%" + escapeLike(folded)
	case engine.MatchLike:
		like = wildcardToLike(folded)
	default:
		return "", nil, fmt.Errorf("unknown match mode %d", p.Mode)
	}
	return col + ` LIKE ? ESCAPE '\'`, []any{like}, nil
}

func (t *translator) membership(p *engine.Membership) (string, []any, error) {
	col, err := t.column(p.Field)
	if err != nil {
		return "", nil, err
	}
	if len(p.Values) == 0 {
		// Nothing is a member of the empty set.
		if p.Negated {
			return "1 = 1", nil, nil
		}
		return "0 = 1", nil, nil
	}
	args := make([]any, len(p.Values))
	kind := t.fieldKind(p.Field)
	for i, v := range p.Values {
		if args[i], err = encodeValue(kind, v); err != nil {
			return "", nil, err
		}
	}
	op := " IN "
	if p.Negated {
		op = " NOT IN "
	}
	return col + op + placeholders(len(args)), args, nil
}

func (t *translator) listMembership(p *engine.ListMembership) (string, []any, error) {
	col, err := t.qualified(p.Field)
	if err != nil {
		return "", nil, err
	}
	if len(p.Values) == 0 {
		// Vacuous: all-of-nothing and none-of-nothing hold, any-of-nothing
		// does not.
		if p.Quantifier == engine.QuantifierAny {
			return "0 = 1", nil, nil
		}
		return "1 = 1", nil, nil
	}
	args := make([]any, len(p.Values))
	for i, v := range p.Values {
		args[i] = v
	}
	in := placeholders(len(args))
	switch p.Quantifier {
	case engine.QuantifierAll:
		return fmt.Sprintf("(SELECT COUNT(DISTINCT value) FROM json_each(%s) WHERE value IN %s) = %d",
			col, in, len(args)), args, nil
	case engine.QuantifierAny:
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE value IN %s)", col, in), args, nil
	case engine.QuantifierNone:
		return fmt.Sprintf("NOT EXISTS (SELECT 1 FROM json_each(%s) WHERE value IN %s)", col, in), args, nil
	}
	return "", nil, fmt.Errorf("unknown quantifier %d", p.Quantifier)
}

func (t *translator) compound(p *engine.Compound) (string, []any, error) {
	if len(p.Preds) == 0 {
		if p.Op == engine.CompoundAnd {
			return "1 = 1", nil, nil
		}
		return "0 = 1", nil, nil
	}
	sep := " AND "
	if p.Op == engine.CompoundOr {
		sep = " OR "
	}
	parts := make([]string, len(p.Preds))
	var args []any
	for i, sub := range p.Preds {
		part, subArgs, err := t.predicate(sub)
		if err != nil {
			return "", nil, err
		}
		parts[i] = part
		args = append(args, subArgs...)
	}
	return "(" + strings.Join(parts, sep) + ")", args, nil
}

func (t *translator) fieldKind(field string) schema.Kind {
	if f, ok := t.entity.Field(field); ok {
		return f.Kind
	}
	return schema.String
}

func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

// escapeLike escapes LIKE metacharacters in a literal fragment.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// wildcardToLike converts a *-and-? wildcard pattern to LIKE syntax.
func wildcardToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
