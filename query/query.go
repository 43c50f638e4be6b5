package query

import (
	"fmt"

	"github.com/othierry/facade"
	"github.com/othierry/facade/engine"
)

// Query is a fluent, typed fetch over one entity. A fresh query targets
// the stack's main context; chain InContext to retarget, predicate
// methods to filter, and a terminal to execute. Queries are not safe
// for concurrent mutation; terminals may be re-invoked after further
// chaining and each execution reflects the builder state at call time.
type Query[T any, P facade.ObjectPtr[T]] struct {
	stack   *facade.Stack
	ctx     *facade.Context
	builder *Builder
	entity  string

	sort      []engine.SortKey
	limit     int
	offset    int
	batchSize int

	distinct    bool
	fetchFields []string
	groupBy     []string
	prefetch    []string
	faults      bool
	refresh     bool
}

// New starts a query for the entity type T on the given stack. An
// entity type unknown to the stack's model panics with a MisuseError.
func New[T any, P facade.ObjectPtr[T]](s *facade.Stack) *Query[T, P] {
	probe := P(new(T))
	entity := probe.EntityName()
	if _, ok := s.Model().Entity(entity); !ok {
		panic(&facade.MisuseError{Reason: fmt.Sprintf("query on unknown entity %q", entity)})
	}
	return &Query[T, P]{
		stack:   s,
		ctx:     s.Main(),
		builder: NewBuilder(),
		entity:  entity,
	}
}

// InContext retargets the query at another context of the same stack.
func (q *Query[T, P]) InContext(c *facade.Context) *Query[T, P] {
	if c != nil {
		q.ctx = c
	}
	return q
}

// Matching merges a separately built predicate group into the query as
// one AND-ed condition.
func (q *Query[T, P]) Matching(b *Builder) *Query[T, P] {
	if p := b.Predicate(); p != nil {
		q.builder.add(p)
	}
	return q
}

// Sort replaces the sort order from a descriptor spec such as
// "age DESC, name". A malformed spec is a programmer error and panics
// with a MisuseError; parse untrusted specs with
// engine.ParseSortDescriptors first.
func (q *Query[T, P]) Sort(spec string) *Query[T, P] {
	keys, err := engine.ParseSortDescriptors(spec)
	if err != nil {
		panic(&facade.MisuseError{Reason: fmt.Sprintf("invalid sort descriptor %q: %v", spec, err)})
	}
	q.sort = keys
	return q
}

// Limit caps the number of results; zero means no cap.
func (q *Query[T, P]) Limit(n int) *Query[T, P] {
	q.limit = n
	return q
}

// Offset skips the first n results.
func (q *Query[T, P]) Offset(n int) *Query[T, P] {
	q.offset = n
	return q
}

// BatchSize hints the engine's fetch granularity.
func (q *Query[T, P]) BatchSize(n int) *Query[T, P] {
	q.batchSize = n
	return q
}

// Distinct deduplicates results. With a field argument the query also
// restricts its projection to that field, which makes Dicts meaningful.
func (q *Query[T, P]) Distinct(field ...string) *Query[T, P] {
	q.distinct = true
	if len(field) > 0 {
		q.fetchFields = field
	}
	return q
}

// Fetch restricts the loaded columns to the given fields.
func (q *Query[T, P]) Fetch(fields ...string) *Query[T, P] {
	q.fetchFields = fields
	return q
}

// GroupBy groups results by the given fields.
func (q *Query[T, P]) GroupBy(fields ...string) *Query[T, P] {
	q.groupBy = fields
	return q
}

// Prefetch eagerly loads the named related fields.
func (q *Query[T, P]) Prefetch(fields ...string) *Query[T, P] {
	q.prefetch = fields
	return q
}

// Faults makes the fetch return placeholder objects whose values load
// lazily on first access.
func (q *Query[T, P]) Faults(on bool) *Query[T, P] {
	q.faults = on
	return q
}

// Refresh forces refetched objects to drop cached values in favor of
// the store's.
func (q *Query[T, P]) Refresh(on bool) *Query[T, P] {
	q.refresh = on
	return q
}

// Predicate delegates, mirroring Builder so conditions read inline.

// ContainedIn matches records whose field value is one of values.
func (q *Query[T, P]) ContainedIn(key string, values ...any) *Query[T, P] {
	q.builder.ContainedIn(key, values...)
	return q
}

// NotContainedIn matches records whose field value is none of values.
func (q *Query[T, P]) NotContainedIn(key string, values ...any) *Query[T, P] {
	q.builder.NotContainedIn(key, values...)
	return q
}

// Containing matches string fields containing the substring.
func (q *Query[T, P]) Containing(key, substring string, flags ...MatchFlags) *Query[T, P] {
	q.builder.Containing(key, substring, flags...)
	return q
}

// Like matches string fields against a pattern with * and ? wildcards.
func (q *Query[T, P]) Like(key, pattern string, flags ...MatchFlags) *Query[T, P] {
	q.builder.Like(key, pattern, flags...)
	return q
}

// StartingWith matches string fields with the given prefix.
func (q *Query[T, P]) StartingWith(key, prefix string, flags ...MatchFlags) *Query[T, P] {
	q.builder.StartingWith(key, prefix, flags...)
	return q
}

// EndingWith matches string fields with the given suffix.
func (q *Query[T, P]) EndingWith(key, suffix string, flags ...MatchFlags) *Query[T, P] {
	q.builder.EndingWith(key, suffix, flags...)
	return q
}

// ContainingAll matches multi-valued fields containing every value.
func (q *Query[T, P]) ContainingAll(key string, values ...string) *Query[T, P] {
	q.builder.ContainingAll(key, values...)
	return q
}

// ContainingAny matches multi-valued fields containing at least one value.
func (q *Query[T, P]) ContainingAny(key string, values ...string) *Query[T, P] {
	q.builder.ContainingAny(key, values...)
	return q
}

// ContainingNone matches multi-valued fields containing none of the values.
func (q *Query[T, P]) ContainingNone(key string, values ...string) *Query[T, P] {
	q.builder.ContainingNone(key, values...)
	return q
}

// Existing matches fields that are non-null (true) or null (false).
func (q *Query[T, P]) Existing(key string, exists bool) *Query[T, P] {
	q.builder.Existing(key, exists)
	return q
}

// EqualTo matches fields equal to value; nil means "field is null".
func (q *Query[T, P]) EqualTo(key string, value any, flags ...MatchFlags) *Query[T, P] {
	q.builder.EqualTo(key, value, flags...)
	return q
}

// NotEqualTo matches fields different from value; nil means "field is
// non-null".
func (q *Query[T, P]) NotEqualTo(key string, value any, flags ...MatchFlags) *Query[T, P] {
	q.builder.NotEqualTo(key, value, flags...)
	return q
}

// GreaterThan matches numeric fields strictly above value.
func (q *Query[T, P]) GreaterThan(key string, value any) *Query[T, P] {
	q.builder.GreaterThan(key, value)
	return q
}

// GreaterThanOrEqual matches numeric fields at or above value.
func (q *Query[T, P]) GreaterThanOrEqual(key string, value any) *Query[T, P] {
	q.builder.GreaterThanOrEqual(key, value)
	return q
}

// LowerThan matches numeric fields strictly below value.
func (q *Query[T, P]) LowerThan(key string, value any) *Query[T, P] {
	q.builder.LowerThan(key, value)
	return q
}

// LowerThanOrEqual matches numeric fields at or below value.
func (q *Query[T, P]) LowerThanOrEqual(key string, value any) *Query[T, P] {
	q.builder.LowerThanOrEqual(key, value)
	return q
}

// Raw appends a native filter fragment with ? placeholders.
func (q *Query[T, P]) Raw(expr string, args ...any) *Query[T, P] {
	q.builder.Raw(expr, args...)
	return q
}

func (q *Query[T, P]) request(projection engine.Projection) *engine.FetchRequest {
	req := engine.NewFetchRequest(q.entity)
	req.Filter = q.builder.Predicate()
	req.Sort = append([]engine.SortKey(nil), q.sort...)
	req.Limit = q.limit
	req.Offset = q.offset
	req.BatchSize = q.batchSize
	req.Projection = projection
	req.PropertyFields = q.fetchFields
	req.GroupBy = q.groupBy
	req.Distinct = q.distinct
	req.PrefetchFields = q.prefetch
	req.ReturnsFaults = q.faults
	req.RefreshesRefetched = q.refresh
	return req
}

// fetch runs one read, absorbing errors: failed fetches log and yield
// no rows, so result-shaped terminals stay single-valued.
func (q *Query[T, P]) fetch(req *engine.FetchRequest) []engine.Row {
	rows, err := q.ctx.PerformFetch(req)
	if err != nil {
		q.stack.Logger().Error("fetch failed", "entity", q.entity, "context", q.ctx.ID(), "err", err)
		return nil
	}
	return rows
}

// Execute runs the query and materializes results in the target
// context. A failing fetch logs and returns no results.
func (q *Query[T, P]) Execute() []P {
	rows := q.fetch(q.request(engine.ProjectObjects))
	return facade.Materialize[T, P](q.ctx, rows)
}

// All is an alias for Execute.
func (q *Query[T, P]) All() []P {
	return q.Execute()
}

// First returns the first match, or nil. With a configured primary key
// and no explicit sort, results order by the primary key ascending;
// otherwise "first" is whichever record the store yields first.
func (q *Query[T, P]) First() P {
	return q.boundary(false)
}

// Last returns the last match, or nil, under the same ordering rules
// as First.
func (q *Query[T, P]) Last() P {
	return q.boundary(true)
}

func (q *Query[T, P]) boundary(last bool) P {
	req := q.request(engine.ProjectObjects)
	if len(req.Sort) == 0 {
		if pk := q.stack.PrimaryKey(); pk != "" {
			if ent, ok := q.stack.Model().Entity(q.entity); ok {
				if _, ok := ent.Field(pk); ok {
					req.Sort = []engine.SortKey{{Field: pk}}
				}
			}
		}
	}
	if last {
		flipped := make([]engine.SortKey, len(req.Sort))
		for i, k := range req.Sort {
			k.Descending = !k.Descending
			flipped[i] = k
		}
		req.Sort = flipped
	}
	req.Limit = 1
	req.Offset = q.offset
	rows := q.fetch(req)
	if len(rows) == 0 {
		var none P
		return none
	}
	return facade.Materialize[T, P](q.ctx, rows[:1])[0]
}

// Dicts runs the query as a dictionary projection over the restricted
// field set; combine with Fetch or Distinct(field). A failing fetch
// logs and returns no results.
func (q *Query[T, P]) Dicts() []map[string]any {
	rows := q.fetch(q.request(engine.ProjectDicts))
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Values)
	}
	return out
}

// IDs runs the query as an identifier-only projection. A failing fetch
// logs and returns no results.
func (q *Query[T, P]) IDs() []facade.ID {
	req := q.request(engine.ProjectIDs)
	req.LoadsProperties = false
	rows := q.fetch(req)
	out := make([]facade.ID, 0, len(rows))
	for _, row := range rows {
		out = append(out, facade.NewID(q.entity, row.ID))
	}
	return out
}

// Count returns the number of matching records without materializing
// them.
func (q *Query[T, P]) Count() (int64, error) {
	req := q.request(engine.ProjectObjects)
	req.IncludesSubentities = false
	return q.ctx.PerformCount(req)
}

// Delete fetches the matching records without loading their properties
// and stages each for deletion in the target context. The deletions
// become durable on the next commit. Returns the staged count.
func (q *Query[T, P]) Delete() (int64, error) {
	req := q.request(engine.ProjectObjects)
	req.LoadsProperties = false
	rows, err := q.ctx.PerformFetch(req)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		q.ctx.DeleteObject(facade.NewID(q.entity, row.ID))
	}
	return int64(len(rows)), nil
}

// BatchDelete removes the matching records directly from the store,
// bypassing context staging and change propagation. Contexts holding
// the records will not see the removal until they refresh.
func (q *Query[T, P]) BatchDelete() (int64, error) {
	return q.stack.BatchDelete(q.entity, q.builder.Predicate())
}
