package facade

import (
	"errors"
	"fmt"
	"sort"

	"github.com/othierry/facade/engine"
	"github.com/othierry/facade/internal/queue"
)

// Concurrency selects the domain a context is bound to.
type Concurrency int

const (
	// MainConcurrency binds the context to the shared UI-affine domain.
	MainConcurrency Concurrency = iota
	// BackgroundConcurrency gives the context a private worker domain.
	BackgroundConcurrency
)

// Context is a transactional in-memory working set over the store. Every
// context is bound to one serial domain; all reads and mutations are
// dispatched onto it. Contexts form a tree rooted at the store-backed
// root context.
type Context struct {
	id        string
	stack     *Stack
	parent    *Context
	q         *queue.Serial
	ownsQueue bool

	// State below is owned by q: only tasks running on the queue touch it.
	objects  map[ID]*objectState
	inserted map[ID]bool
	updated  map[ID]bool
	deleted  map[ID]bool
	dirty    bool

	// saveBuf accumulates the root context's write-through work.
	saveBuf engine.SaveRequest
}

// objectState is one materialized entity proxy. A faulted state holds
// only cached overrides; missing fields load from the engine on access.
type objectState struct {
	values    map[string]any
	dirtyKeys map[string]bool
	faulted   bool
	deleted   bool
}

func newObjectState() *objectState {
	return &objectState{values: make(map[string]any), dirtyKeys: make(map[string]bool)}
}

func newContext(stack *Stack, id string, parent *Context, q *queue.Serial, ownsQueue bool) *Context {
	return &Context{
		id:        id,
		stack:     stack,
		parent:    parent,
		q:         q,
		ownsQueue: ownsQueue,
		objects:   make(map[ID]*objectState),
		inserted:  make(map[ID]bool),
		updated:   make(map[ID]bool),
		deleted:   make(map[ID]bool),
	}
}

// ID returns the context's registry identifier ("root" and "main" are
// sentinels).
func (c *Context) ID() string { return c.id }

// Parent returns the owning context; nil for root.
func (c *Context) Parent() *Context { return c.parent }

// Stack returns the owning stack.
func (c *Context) Stack() *Stack { return c.stack }

func (c *Context) isRoot() bool { return c.parent == nil }

// topLevel reports whether the context's saves propagate directly to
// root: true for main and for independent contexts.
func (c *Context) topLevel() bool { return c.parent != nil && c.parent.isRoot() }

// HasChanges reports whether the context carries pending edits.
func (c *Context) HasChanges() bool {
	var dirty bool
	c.q.Sync(func() { dirty = c.dirty })
	return dirty
}

// Reset discards all pending in-memory state. It runs on the context's
// own domain, so it is safe while edits are in flight.
func (c *Context) Reset() {
	c.q.Sync(func() {
		c.objects = make(map[ID]*objectState)
		c.inserted = make(map[ID]bool)
		c.updated = make(map[ID]bool)
		c.deleted = make(map[ID]bool)
		c.dirty = false
		c.saveBuf = engine.SaveRequest{}
	})
}

// ---- queue-owned primitives ----

func (c *Context) state(id ID) *objectState {
	st := c.objects[id]
	if st == nil {
		st = newObjectState()
		st.faulted = true
		c.objects[id] = st
	}
	return st
}

func (c *Context) getValue(id ID, key string) any {
	st := c.state(id)
	if st.deleted {
		return nil
	}
	if v, ok := st.values[key]; ok {
		return v
	}
	if st.faulted {
		c.loadFault(id, st)
	}
	return st.values[key]
}

// loadFault fills a faulted state from the engine. Cached overrides and
// dirty values win over the loaded row.
func (c *Context) loadFault(id ID, st *objectState) {
	st.faulted = false
	eng := c.stack.eng
	if eng == nil {
		return
	}
	req := engine.NewFetchRequest(id.Entity())
	req.Filter = &engine.Compare{Field: "id", Op: engine.OpEq, Value: id.Key()}
	rows, err := eng.Fetch(req)
	if err != nil {
		c.stack.log.Error("failed to load object", "context", c.id, "id", id.String(), "err", err)
		return
	}
	if len(rows) == 0 {
		return
	}
	for k, v := range rows[0].Values {
		if _, ok := st.values[k]; !ok {
			st.values[k] = v
		}
	}
}

func (c *Context) setValue(id ID, key string, value any) {
	st := c.state(id)
	if st.deleted {
		return
	}
	st.values[key] = value
	st.dirtyKeys[key] = true
	if !c.inserted[id] {
		c.updated[id] = true
	}
	c.dirty = true
}

func (c *Context) insert(id ID) {
	st := newObjectState()
	c.objects[id] = st
	c.inserted[id] = true
	c.dirty = true
}

func (c *Context) stageDelete(id ID) {
	st := c.state(id)
	if st.deleted {
		return
	}
	st.deleted = true
	if c.inserted[id] {
		// Never persisted anywhere; it just evaporates.
		delete(c.inserted, id)
		delete(c.objects, id)
	} else {
		delete(c.updated, id)
		c.deleted[id] = true
	}
	c.dirty = true
}

// DeleteObject stages removal of the identified object and waits until
// the context has processed it. Safe entry point for bulk staged
// deletes that never materialized the objects.
func (c *Context) DeleteObject(id ID) {
	c.q.Sync(func() { c.stageDelete(id) })
}

func (c *Context) isDeleted(id ID) bool {
	if c.deleted[id] {
		return true
	}
	st := c.objects[id]
	return st != nil && st.deleted
}

// refreshObject releases an object's loaded values. With mergeChanges
// the pending local edits survive; without, the object becomes a plain
// fault and its pending update is dropped.
func (c *Context) refreshObject(id ID, mergeChanges bool) {
	st := c.objects[id]
	if st == nil || st.deleted {
		return
	}
	if mergeChanges {
		for k := range st.values {
			if !st.dirtyKeys[k] {
				delete(st.values, k)
			}
		}
	} else {
		st.values = make(map[string]any)
		st.dirtyKeys = make(map[string]bool)
		delete(c.updated, id)
	}
	st.faulted = true
}

// refreshAll turns every materialized object back into a fault, keeping
// dirty values. This is the post-save memory release step.
func (c *Context) refreshAll() {
	for id, st := range c.objects {
		if st.deleted {
			continue
		}
		c.refreshObject(id, true)
	}
}

// ---- change sets ----

// changeSet is the structured "saved(context, changes)" payload that
// flows through the propagation protocol.
type changeSet struct {
	contextID string
	inserts   []engine.Upsert // full rows
	updates   []engine.Upsert // dirty-field deltas
	deletes   []engine.Ref
}

func (cs *changeSet) empty() bool {
	return len(cs.inserts) == 0 && len(cs.updates) == 0 && len(cs.deletes) == 0
}

func sortedIDs(set map[ID]bool) []ID {
	ids := make([]ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// takeChanges snapshots and clears the pending change sets, then
// refreshes the working set to release retained memory.
func (c *Context) takeChanges() changeSet {
	cs := changeSet{contextID: c.id}
	for _, id := range sortedIDs(c.inserted) {
		st := c.objects[id]
		values := make(map[string]any, len(st.values))
		for k, v := range st.values {
			values[k] = v
		}
		cs.inserts = append(cs.inserts, engine.Upsert{
			Entity: id.Entity(), Row: engine.Row{ID: id.Key(), Values: values},
		})
	}
	for _, id := range sortedIDs(c.updated) {
		st := c.objects[id]
		delta := make(map[string]any, len(st.dirtyKeys))
		for k := range st.dirtyKeys {
			delta[k] = st.values[k]
		}
		cs.updates = append(cs.updates, engine.Upsert{
			Entity: id.Entity(), Row: engine.Row{ID: id.Key(), Values: delta},
		})
	}
	for _, id := range sortedIDs(c.deleted) {
		cs.deletes = append(cs.deletes, engine.Ref{Entity: id.Entity(), ID: id.Key()})
		delete(c.objects, id)
	}

	c.inserted = make(map[ID]bool)
	c.updated = make(map[ID]bool)
	c.deleted = make(map[ID]bool)
	c.dirty = false
	for _, st := range c.objects {
		st.dirtyKeys = make(map[string]bool)
	}
	c.refreshAll()
	return cs
}

// applyChangeSet lands a child's committed changes in this context as
// pending changes of its own. On root it feeds the write-through buffer
// instead.
func (c *Context) applyChangeSet(cs changeSet) {
	if cs.empty() {
		return
	}
	if c.isRoot() {
		c.saveBuf.Upserts = append(c.saveBuf.Upserts, cs.inserts...)
		c.saveBuf.Upserts = append(c.saveBuf.Upserts, cs.updates...)
		c.saveBuf.Deletes = append(c.saveBuf.Deletes, cs.deletes...)
		c.dirty = true
		return
	}

	for _, up := range cs.inserts {
		id := NewID(up.Entity, up.Row.ID)
		st := c.objects[id]
		known := st != nil
		if !known {
			st = newObjectState()
			c.objects[id] = st
		}
		for k, v := range up.Row.Values {
			st.values[k] = v
			st.dirtyKeys[k] = true
		}
		st.deleted = false
		if known && !c.inserted[id] {
			c.updated[id] = true
		} else {
			c.inserted[id] = true
		}
	}
	for _, up := range cs.updates {
		id := NewID(up.Entity, up.Row.ID)
		st := c.state(id)
		for k, v := range up.Row.Values {
			st.values[k] = v
			st.dirtyKeys[k] = true
		}
		if !c.inserted[id] {
			c.updated[id] = true
		}
	}
	for _, ref := range cs.deletes {
		id := NewID(ref.Entity, ref.ID)
		c.stageDelete(id)
	}
	c.dirty = true
}

// mergeChangeSet reconciles another top-level context's committed
// changes into this one. Updated entities are faulted in first, because
// the merge only touches materialized proxies; conflicts resolve as
// last write wins per property, from the committing side.
func (c *Context) mergeChangeSet(cs changeSet) {
	for _, up := range cs.updates {
		id := NewID(up.Entity, up.Row.ID)
		if c.objects[id] == nil {
			st := newObjectState()
			st.faulted = true
			c.objects[id] = st
		}
	}
	for _, up := range cs.inserts {
		id := NewID(up.Entity, up.Row.ID)
		st := c.state(id)
		st.deleted = false
		for k, v := range up.Row.Values {
			st.values[k] = v
			delete(st.dirtyKeys, k)
		}
	}
	for _, up := range cs.updates {
		id := NewID(up.Entity, up.Row.ID)
		st := c.objects[id]
		if st.deleted {
			continue
		}
		for k, v := range up.Row.Values {
			st.values[k] = v
			delete(st.dirtyKeys, k)
		}
		if len(st.dirtyKeys) == 0 {
			delete(c.updated, id)
		}
	}
	for _, ref := range cs.deletes {
		id := NewID(ref.Entity, ref.ID)
		// Merged deletes drop the state outright, the same way takeChanges
		// does on the saving side; no tombstones accumulate.
		delete(c.objects, id)
		delete(c.inserted, id)
		delete(c.updated, id)
		delete(c.deleted, id)
	}
	c.refreshAll()
	c.dirty = len(c.inserted) > 0 || len(c.updated) > 0 || len(c.deleted) > 0
}

// takeSaveRequest drains the root write-through buffer.
func (c *Context) takeSaveRequest() engine.SaveRequest {
	req := c.saveBuf
	c.saveBuf = engine.SaveRequest{}
	c.dirty = false
	return req
}

// ---- fetching ----

// entityOverlay is one context's pending changes for one entity,
// applied over engine rows during a fetch.
type entityOverlay struct {
	upserts []engine.Row
	deletes map[string]bool
}

func (o *entityOverlay) empty() bool {
	return len(o.upserts) == 0 && len(o.deletes) == 0
}

func (c *Context) overlayFor(entity string) entityOverlay {
	var ov entityOverlay
	c.q.Sync(func() {
		pending := make(map[ID]bool, len(c.inserted)+len(c.updated))
		for id := range c.inserted {
			pending[id] = true
		}
		for id := range c.updated {
			pending[id] = true
		}
		for _, id := range sortedIDs(pending) {
			if id.Entity() != entity {
				continue
			}
			st := c.objects[id]
			if st == nil || st.deleted {
				continue
			}
			if st.faulted && c.updated[id] {
				// A refreshed edit holds only its dirty values; the
				// overlay row has to carry the full row, or a fetch that
				// matches it would lose the stored fields.
				c.loadFault(id, st)
			}
			values := make(map[string]any, len(st.values))
			for k, v := range st.values {
				values[k] = v
			}
			ov.upserts = append(ov.upserts, engine.Row{ID: id.Key(), Values: values})
		}
		for id := range c.deleted {
			if id.Entity() != entity {
				continue
			}
			if ov.deletes == nil {
				ov.deletes = make(map[string]bool)
			}
			ov.deletes[id.Key()] = true
		}
	})
	return ov
}

func (c *Context) ancestry() []*Context {
	var chain []*Context
	for ctx := c; ctx != nil; ctx = ctx.parent {
		chain = append([]*Context{ctx}, chain...)
	}
	return chain
}

// PerformFetch executes a fetch in this context: engine rows overlaid
// with the pending changes of the context and its ancestors, so a
// context sees its own uncommitted edits and only its own. The caller
// blocks while the fetch runs on the context's domain.
func (c *Context) PerformFetch(req *engine.FetchRequest) ([]engine.Row, error) {
	var (
		rows []engine.Row
		err  error
	)
	c.q.Sync(func() { rows, err = c.performFetch(req) })
	return rows, err
}

func (c *Context) performFetch(req *engine.FetchRequest) ([]engine.Row, error) {
	eng := c.stack.eng
	if eng == nil {
		return nil, &FetchError{Entity: req.Entity, Err: errors.New("store is not connected")}
	}

	var overlays []entityOverlay
	for _, ctx := range c.ancestry() {
		if ctx.isRoot() {
			continue
		}
		if ov := ctx.overlayFor(req.Entity); !ov.empty() {
			overlays = append(overlays, ov)
		}
	}

	if len(overlays) == 0 {
		rows, err := eng.Fetch(req)
		if err != nil {
			return nil, &FetchError{Entity: req.Entity, Err: err}
		}
		return rows, nil
	}
	return c.overlayFetch(req, overlays)
}

// overlayFetch pulls the unpaged row set, reconciles it with pending
// changes, then sorts, pages and projects in memory.
func (c *Context) overlayFetch(req *engine.FetchRequest, overlays []entityOverlay) ([]engine.Row, error) {
	full := *req
	full.Limit = 0
	full.Offset = 0
	full.Sort = nil
	full.Projection = engine.ProjectObjects
	full.LoadsProperties = true
	full.PropertyFields = nil
	full.Distinct = false

	baseRows, err := c.stack.eng.Fetch(&full)
	if err != nil {
		return nil, &FetchError{Entity: req.Entity, Err: err}
	}

	byID := make(map[string]map[string]any, len(baseRows))
	order := make([]string, 0, len(baseRows))
	for _, r := range baseRows {
		byID[r.ID] = r.Values
		order = append(order, r.ID)
	}

	for _, ov := range overlays {
		for _, up := range ov.upserts {
			base := byID[up.ID]
			if base == nil {
				base = make(map[string]any, len(up.Values))
				order = append(order, up.ID)
			}
			for k, v := range up.Values {
				base[k] = v
			}

			vals := make(map[string]any, len(base)+1)
			for k, v := range base {
				vals[k] = v
			}
			vals["id"] = up.ID
			match, err := engine.Eval(req.Filter, vals)
			if err != nil {
				return nil, &FetchError{Entity: req.Entity, Err: err}
			}
			if match {
				byID[up.ID] = base
			} else {
				delete(byID, up.ID)
			}
		}
		for id := range ov.deletes {
			delete(byID, id)
		}
	}

	rows := make([]engine.Row, 0, len(byID))
	seen := make(map[string]bool, len(byID))
	for _, id := range order {
		if values, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			rows = append(rows, engine.Row{ID: id, Values: values})
		}
	}

	if len(req.Sort) > 0 {
		engine.SortRows(rows, req.Sort)
	} else {
		engine.SortRows(rows, []engine.SortKey{{Field: "id"}})
	}
	rows = pageRows(rows, req.Offset, req.Limit)
	return projectRows(rows, req), nil
}

// PerformCount counts matches in this context, honoring pending
// changes the same way PerformFetch does.
func (c *Context) PerformCount(req *engine.FetchRequest) (int64, error) {
	var (
		n   int64
		err error
	)
	c.q.Sync(func() { n, err = c.performCount(req) })
	return n, err
}

func (c *Context) performCount(req *engine.FetchRequest) (int64, error) {
	eng := c.stack.eng
	if eng == nil {
		return 0, &FetchError{Entity: req.Entity, Err: errors.New("store is not connected")}
	}

	overlayNeeded := false
	for _, ctx := range c.ancestry() {
		if !ctx.isRoot() && ctx.HasChanges() {
			overlayNeeded = true
			break
		}
	}
	if !overlayNeeded {
		n, err := eng.Count(req)
		if err != nil {
			return 0, &FetchError{Entity: req.Entity, Err: err}
		}
		return n, nil
	}

	idReq := *req
	idReq.Projection = engine.ProjectIDs
	rows, err := c.PerformFetch(&idReq)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func pageRows(rows []engine.Row, offset, limit int) []engine.Row {
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

func projectRows(rows []engine.Row, req *engine.FetchRequest) []engine.Row {
	switch {
	case req.Projection == engine.ProjectIDs,
		req.Projection == engine.ProjectObjects && !req.LoadsProperties:
		for i := range rows {
			rows[i].Values = nil
		}
	case req.Projection == engine.ProjectDicts:
		for i := range rows {
			vals := make(map[string]any, len(req.PropertyFields))
			for _, f := range req.PropertyFields {
				if v, ok := rows[i].Values[f]; ok {
					vals[f] = v
				}
			}
			rows[i].Values = vals
		}
		if req.Distinct {
			rows = dedupeRows(rows, req.PropertyFields)
		}
	}
	return rows
}

func dedupeRows(rows []engine.Row, fields []string) []engine.Row {
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for _, r := range rows {
		key := ""
		for _, f := range fields {
			key += keyPart(r.Values[f])
		}
		if !seen[key] {
			seen[key] = true
			out = append(out, r)
		}
	}
	return out
}

func keyPart(v any) string {
	if v == nil {
		return "\x00"
	}
	return "\x00" + fmt.Sprint(v)
}
