// Package schema describes the entities and fields a store manages.
// A Model must be resolvable before any query or create call.
package schema

import (
	"fmt"
	"regexp"
)

// Kind is the value type of a field.
type Kind string

const (
	String     Kind = "string"
	Int        Kind = "int"
	Float      Kind = "float"
	Bool       Kind = "bool"
	Time       Kind = "time"
	Bytes      Kind = "bytes"
	StringList Kind = "stringlist"
)

// Field describes one typed attribute of an entity.
type Field struct {
	Name     string `yaml:"name"`
	Kind     Kind   `yaml:"kind"`
	Indexed  bool   `yaml:"indexed,omitempty"`
	Optional bool   `yaml:"optional,omitempty"`
}

// Entity describes one record type.
type Entity struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// Field returns the named field definition, if present.
func (e *Entity) Field(name string) (*Field, bool) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// Model is the full set of entity descriptions for a store.
type Model struct {
	Entities []Entity `yaml:"entities"`
}

// Entity returns the named entity description, if present.
func (m *Model) Entity(name string) (*Entity, bool) {
	for i := range m.Entities {
		if m.Entities[i].Name == name {
			return &m.Entities[i], true
		}
	}
	return nil, false
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var validKinds = map[Kind]bool{
	String: true, Int: true, Float: true, Bool: true,
	Time: true, Bytes: true, StringList: true,
}

// Validate checks the model for duplicate or malformed names.
// "id" is reserved for the identifier column and may not be declared.
func (m *Model) Validate() error {
	if len(m.Entities) == 0 {
		return fmt.Errorf("model declares no entities")
	}
	seen := make(map[string]bool)
	for _, e := range m.Entities {
		if !identRe.MatchString(e.Name) {
			return fmt.Errorf("invalid entity name %q", e.Name)
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate entity %q", e.Name)
		}
		seen[e.Name] = true

		if len(e.Fields) == 0 {
			return fmt.Errorf("entity %q declares no fields", e.Name)
		}
		fields := make(map[string]bool)
		for _, f := range e.Fields {
			if !identRe.MatchString(f.Name) {
				return fmt.Errorf("entity %q: invalid field name %q", e.Name, f.Name)
			}
			if f.Name == "id" {
				return fmt.Errorf("entity %q: field name \"id\" is reserved", e.Name)
			}
			if fields[f.Name] {
				return fmt.Errorf("entity %q: duplicate field %q", e.Name, f.Name)
			}
			fields[f.Name] = true
			if !validKinds[f.Kind] {
				return fmt.Errorf("entity %q: field %q has unknown kind %q", e.Name, f.Name, f.Kind)
			}
		}
	}
	return nil
}
