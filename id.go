package facade

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID is an entity identifier: the entity name plus a store-independent
// key. Identifiers created through the lifecycle helpers are permanent
// from the start, so they are safe to share across contexts before the
// owning context ever saves.
type ID struct {
	entity    string
	key       string
	temporary bool
}

// NewID builds a permanent identifier.
func NewID(entity, key string) ID {
	return ID{entity: entity, key: key}
}

// TemporaryID builds a throwaway identifier for an object that is not
// yet inserted anywhere. Temporary identifiers must not cross context
// boundaries.
func TemporaryID(entity string) ID {
	return ID{entity: entity, key: uuid.NewString(), temporary: true}
}

func (id ID) Entity() string    { return id.entity }
func (id ID) Key() string       { return id.key }
func (id ID) IsTemporary() bool { return id.temporary }
func (id ID) IsZero() bool      { return id.entity == "" && id.key == "" }

// String renders "Entity/key"; temporary identifiers carry a ~ prefix.
func (id ID) String() string {
	if id.temporary {
		return "~" + id.entity + "/" + id.key
	}
	return id.entity + "/" + id.key
}

// ParseID parses the String form back into an ID.
func ParseID(s string) (ID, error) {
	var id ID
	if strings.HasPrefix(s, "~") {
		id.temporary = true
		s = s[1:]
	}
	entity, key, ok := strings.Cut(s, "/")
	if !ok || entity == "" || key == "" {
		return ID{}, fmt.Errorf("malformed identifier %q", s)
	}
	id.entity = entity
	id.key = key
	return id, nil
}
