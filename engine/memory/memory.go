// Package memory implements the "memory" store type: a transient,
// mutex-guarded engine sharing the predicate evaluator with the rest of
// the system. It backs tests and throwaway stores.
package memory

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/othierry/facade/engine"
	"github.com/othierry/facade/schema"
)

var (
	_ engine.Engine       = (*Engine)(nil)
	_ engine.BatchDeleter = (*Engine)(nil)
)

// Engine is an in-memory storage engine.
type Engine struct {
	model *schema.Model

	mu     sync.RWMutex
	tables map[string]map[string]map[string]any
	open   bool
}

// New creates a memory engine over the given model.
func New(model *schema.Model) *Engine {
	return &Engine{
		model:  model,
		tables: make(map[string]map[string]map[string]any),
	}
}

// Open marks the engine usable. There is no disk state to verify.
func (e *Engine) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ent := range e.model.Entities {
		if e.tables[ent.Name] == nil {
			e.tables[ent.Name] = make(map[string]map[string]any)
		}
	}
	e.open = true
	return nil
}

// Close discards nothing; the tables survive until the engine is
// garbage collected so a reopened stack keeps its data within a test.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.open = false
	return nil
}

// Path returns "" because the engine is not file-backed.
func (e *Engine) Path() string { return "" }

// AllocateID returns a new permanent identifier.
func (e *Engine) AllocateID(entity string) string { return uuid.NewString() }

func (e *Engine) table(entity string) (map[string]map[string]any, error) {
	if _, ok := e.model.Entity(entity); !ok {
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
	t := e.tables[entity]
	if t == nil {
		t = make(map[string]map[string]any)
		e.tables[entity] = t
	}
	return t, nil
}

func (e *Engine) matching(req *engine.FetchRequest) ([]engine.Row, error) {
	t, err := e.table(req.Entity)
	if err != nil {
		return nil, err
	}
	var rows []engine.Row
	for id, values := range t {
		vals := make(map[string]any, len(values)+1)
		for k, v := range values {
			vals[k] = v
		}
		vals["id"] = id
		ok, err := engine.Eval(req.Filter, vals)
		if err != nil {
			return nil, err
		}
		if ok {
			delete(vals, "id")
			rows = append(rows, engine.Row{ID: id, Values: vals})
		}
	}
	// Deterministic default order keeps paging stable.
	if len(req.Sort) > 0 {
		engine.SortRows(rows, req.Sort)
	} else {
		engine.SortRows(rows, []engine.SortKey{{Field: "id"}})
	}
	return rows, nil
}

// Fetch executes a read. Sorting, paging and projection shaping all
// happen here; BatchSize has no effect for an in-memory store.
func (e *Engine) Fetch(req *engine.FetchRequest) ([]engine.Row, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rows, err := e.matching(req)
	if err != nil {
		return nil, err
	}
	rows = page(rows, req.Offset, req.Limit)

	switch req.Projection {
	case engine.ProjectIDs:
		for i := range rows {
			rows[i].Values = nil
		}
	case engine.ProjectDicts:
		rows = project(rows, req.PropertyFields)
		if req.Distinct {
			rows = dedupe(rows, req.PropertyFields)
		}
	default:
		if !req.LoadsProperties {
			for i := range rows {
				rows[i].Values = nil
			}
		}
	}
	return rows, nil
}

// Count executes a count-only request; no rows are materialized for the
// caller.
func (e *Engine) Count(req *engine.FetchRequest) (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rows, err := e.matching(req)
	if err != nil {
		return 0, err
	}
	return int64(len(page(rows, req.Offset, req.Limit))), nil
}

// Save applies one transactional write. Upserts merge field values into
// any existing record.
func (e *Engine) Save(req *engine.SaveRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, up := range req.Upserts {
		t, err := e.table(up.Entity)
		if err != nil {
			return err
		}
		existing := t[up.Row.ID]
		if existing == nil {
			existing = make(map[string]any, len(up.Row.Values))
			t[up.Row.ID] = existing
		}
		for k, v := range up.Row.Values {
			existing[k] = v
		}
	}
	for _, ref := range req.Deletes {
		t, err := e.table(ref.Entity)
		if err != nil {
			return err
		}
		delete(t, ref.ID)
	}
	return nil
}

// BatchDelete removes every matching record in one pass.
func (e *Engine) BatchDelete(entity string, filter engine.Predicate) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.table(entity)
	if err != nil {
		return 0, err
	}
	var doomed []string
	for id, values := range t {
		vals := make(map[string]any, len(values)+1)
		for k, v := range values {
			vals[k] = v
		}
		vals["id"] = id
		ok, err := engine.Eval(filter, vals)
		if err != nil {
			return 0, err
		}
		if ok {
			doomed = append(doomed, id)
		}
	}
	for _, id := range doomed {
		delete(t, id)
	}
	return int64(len(doomed)), nil
}

func page(rows []engine.Row, offset, limit int) []engine.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func project(rows []engine.Row, fields []string) []engine.Row {
	if len(fields) == 0 {
		return rows
	}
	for i := range rows {
		vals := make(map[string]any, len(fields))
		for _, f := range fields {
			vals[f] = rows[i].Values[f]
		}
		rows[i].Values = vals
	}
	return rows
}

func dedupe(rows []engine.Row, fields []string) []engine.Row {
	seen := make(map[string]bool)
	out := rows[:0]
	for _, r := range rows {
		key := ""
		for _, f := range fields {
			key += fmt.Sprintf("%v\x00", r.Values[f])
		}
		if !seen[key] {
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}
