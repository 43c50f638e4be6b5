package facade

import "time"

// Object is implemented by entity types: embed Record and declare the
// model entity the type maps to.
type Object interface {
	// EntityName returns the model entity this type maps to.
	EntityName() string

	bind(c *Context, id ID)
	rec() *Record
}

// ObjectPtr constrains the generic entry points to pointer types whose
// element embeds Record.
type ObjectPtr[T any] interface {
	*T
	Object
}

// Record is the embeddable base of every entity type. It binds the
// object to its owning context and identifier; field access dispatches
// onto the owning context's domain.
type Record struct {
	ctx *Context
	id  ID
}

func (r *Record) bind(c *Context, id ID) {
	r.ctx = c
	r.id = id
}

func (r *Record) rec() *Record { return r }

// ID returns the object's identifier.
func (r *Record) ID() ID { return r.id }

// Context returns the owning context, nil when detached.
func (r *Record) Context() *Context { return r.ctx }

// HasOwner reports whether the object belongs to a context.
func (r *Record) HasOwner() bool { return r.ctx != nil }

// Get reads one field value; nil when the object is detached, deleted
// or the field is unset.
func (r *Record) Get(key string) any {
	if r.ctx == nil {
		return nil
	}
	var v any
	r.ctx.q.Sync(func() { v = r.ctx.getValue(r.id, key) })
	return v
}

// Set stages one field edit in the owning context. No-op when detached.
func (r *Record) Set(key string, value any) {
	if r.ctx == nil {
		return
	}
	r.ctx.q.Sync(func() { r.ctx.setValue(r.id, key, value) })
}

// GetString returns the field as a string, or "".
func (r *Record) GetString(key string) string {
	s, _ := r.Get(key).(string)
	return s
}

// GetInt returns the field as an int64, or 0.
func (r *Record) GetInt(key string) int64 {
	switch n := r.Get(key).(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	}
	return 0
}

// GetFloat returns the field as a float64, or 0.
func (r *Record) GetFloat(key string) float64 {
	switch n := r.Get(key).(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

// GetBool returns the field as a bool, or false.
func (r *Record) GetBool(key string) bool {
	b, _ := r.Get(key).(bool)
	return b
}

// GetTime returns the field as a time.Time, or the zero time.
func (r *Record) GetTime(key string) time.Time {
	t, _ := r.Get(key).(time.Time)
	return t
}

// GetStringList returns the field as a []string, or nil.
func (r *Record) GetStringList(key string) []string {
	switch list := r.Get(key).(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Delete stages removal of the object from its owning context and
// returns immediately. No-op when detached.
func (r *Record) Delete() {
	if r.ctx == nil {
		return
	}
	id := r.id
	ctx := r.ctx
	ctx.q.Async(func() { ctx.stageDelete(id) })
}

// DeleteSync stages removal and waits until the context has processed
// it. No-op when detached.
func (r *Record) DeleteSync() {
	if r.ctx == nil {
		return
	}
	r.ctx.q.Sync(func() { r.ctx.stageDelete(r.id) })
}

// Deleted reports whether the object is staged for deletion (or has
// been deleted) in its owning context.
func (r *Record) Deleted() bool {
	if r.ctx == nil {
		return false
	}
	var deleted bool
	r.ctx.q.Sync(func() { deleted = r.ctx.isDeleted(r.id) })
	return deleted
}

// Refresh discards the object's loaded field values so the next access
// re-loads from the store. With mergeChanges the pending local edits
// survive the refresh.
func (r *Record) Refresh(mergeChanges bool) {
	if r.ctx == nil {
		return
	}
	r.ctx.q.Sync(func() { r.ctx.refreshObject(r.id, mergeChanges) })
}

// Fault is Refresh without preserving pending local changes.
func (r *Record) Fault() {
	r.Refresh(false)
}
