package query

import "github.com/othierry/facade"

// PagedQuery wraps a query for incremental loading: the total count is
// taken once, then LoadMore pulls the next window of results until the
// accumulated set covers the total.
type PagedQuery[T any, P facade.ObjectPtr[T]] struct {
	q         *Query[T, P]
	batchSize int

	results []P
	total   int64
	counted bool
}

// Paged turns a query into an incrementally loaded one. A batch size
// of zero or less defaults to 20. The wrapped query's own limit and
// offset are overridden per window.
func Paged[T any, P facade.ObjectPtr[T]](q *Query[T, P], batchSize int) *PagedQuery[T, P] {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &PagedQuery[T, P]{q: q, batchSize: batchSize}
}

// TotalCount returns the total number of matching records. The count is
// taken once, on first use, and cached; a failing count logs and pins
// the total at the number of results loaded so far.
func (p *PagedQuery[T, P]) TotalCount() int64 {
	if !p.counted {
		n, err := p.q.Count()
		if err != nil {
			p.q.stack.Logger().Error("paged count failed", "entity", p.q.entity, "err", err)
			n = int64(len(p.results))
		}
		p.total = n
		p.counted = true
	}
	return p.total
}

// CanLoadMore reports whether further windows remain.
func (p *PagedQuery[T, P]) CanLoadMore() bool {
	return int64(len(p.results)) < p.TotalCount()
}

// LoadMore fetches the next window, appends it to the accumulated
// results and returns just the new batch. Nil once exhausted.
func (p *PagedQuery[T, P]) LoadMore() []P {
	if !p.CanLoadMore() {
		return nil
	}
	batch := p.q.Limit(p.batchSize).Offset(len(p.results)).Execute()
	p.results = append(p.results, batch...)
	if len(batch) == 0 {
		// The store shrank underneath us; stop advertising more.
		p.total = int64(len(p.results))
	}
	return batch
}

// Results returns every record loaded so far.
func (p *PagedQuery[T, P]) Results() []P {
	return p.results
}
