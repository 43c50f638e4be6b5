package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validModel() *Model {
	return &Model{Entities: []Entity{
		{Name: "User", Fields: []Field{
			{Name: "name", Kind: String},
			{Name: "age", Kind: Int},
		}},
	}}
}

func TestModel_Validate(t *testing.T) {
	require.NoError(t, validModel().Validate())

	tests := []struct {
		name   string
		mutate func(*Model)
	}{
		{"no entities", func(m *Model) { m.Entities = nil }},
		{"bad entity name", func(m *Model) { m.Entities[0].Name = "User Profile" }},
		{"duplicate entity", func(m *Model) { m.Entities = append(m.Entities, m.Entities[0]) }},
		{"no fields", func(m *Model) { m.Entities[0].Fields = nil }},
		{"reserved id field", func(m *Model) {
			m.Entities[0].Fields = append(m.Entities[0].Fields, Field{Name: "id", Kind: String})
		}},
		{"duplicate field", func(m *Model) {
			m.Entities[0].Fields = append(m.Entities[0].Fields, Field{Name: "name", Kind: String})
		}},
		{"unknown kind", func(m *Model) { m.Entities[0].Fields[0].Kind = "decimal" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validModel()
			tt.mutate(m)
			assert.Error(t, m.Validate())
		})
	}
}

func TestModel_Lookup(t *testing.T) {
	m := validModel()

	e, ok := m.Entity("User")
	require.True(t, ok)
	assert.Equal(t, "User", e.Name)

	f, ok := e.Field("age")
	require.True(t, ok)
	assert.Equal(t, Int, f.Kind)

	_, ok = m.Entity("Order")
	assert.False(t, ok)
	_, ok = e.Field("email")
	assert.False(t, ok)
}

func TestLoadModel(t *testing.T) {
	src := `
entities:
  - name: User
    fields:
      - name: name
        kind: string
      - name: age
        kind: int
        indexed: true
      - name: tags
        kind: stringlist
        optional: true
`
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))

	m, err := LoadModel(path)
	require.NoError(t, err)
	require.Len(t, m.Entities, 1)

	e, ok := m.Entity("User")
	require.True(t, ok)
	assert.Len(t, e.Fields, 3)

	f, ok := e.Field("age")
	require.True(t, ok)
	assert.True(t, f.Indexed)

	f, ok = e.Field("tags")
	require.True(t, ok)
	assert.Equal(t, StringList, f.Kind)
	assert.True(t, f.Optional)
}

func TestLoadModel_Errors(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseModel([]byte("entities: ["))
	assert.Error(t, err)

	_, err = ParseModel([]byte("entities: []"))
	assert.Error(t, err)
}
