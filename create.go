package facade

import (
	"errors"

	"github.com/othierry/facade/engine"
)

// Create allocates a new entity object, inserts it into the context and
// assigns its permanent identifier immediately, so the identifier stays
// stable across the save and merge protocol. The type's entity name
// must resolve in the model; an unknown entity is a MisuseError.
func Create[T any, P ObjectPtr[T]](c *Context) (P, error) {
	obj := P(new(T))
	entity := obj.EntityName()
	if _, ok := c.stack.model.Entity(entity); !ok {
		misuse("cannot create object of unknown entity %q", entity)
	}
	eng := c.stack.eng
	if eng == nil {
		return nil, errors.New("store is not connected")
	}

	id := NewID(entity, eng.AllocateID(entity))
	c.q.Sync(func() { c.insert(id) })
	obj.bind(c, id)
	return obj, nil
}

// Materialize binds fetched rows as objects of the caller's type,
// adopting each row's values into the context's working set. Rows for
// objects already materialized refresh their clean fields; pending
// local edits are preserved.
func Materialize[T any, P ObjectPtr[T]](c *Context, rows []engine.Row) []P {
	out := make([]P, 0, len(rows))
	for _, row := range rows {
		obj := P(new(T))
		id := NewID(obj.EntityName(), row.ID)
		values := row.Values
		c.q.Sync(func() { c.adopt(id, values) })
		obj.bind(c, id)
		out = append(out, obj)
	}
	return out
}

// adopt lands fetched values in the working set without marking them
// dirty. An already faulted state stays a fault, so fields the row does
// not carry still load on access. Must run on the context's queue.
func (c *Context) adopt(id ID, values map[string]any) {
	st := c.objects[id]
	if st == nil {
		st = newObjectState()
		st.faulted = values == nil
		c.objects[id] = st
	}
	for k, v := range values {
		if !st.dirtyKeys[k] {
			st.values[k] = v
		}
	}
}
