package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortDescriptors(t *testing.T) {
	tests := []struct {
		spec string
		want []SortKey
	}{
		{"age", []SortKey{{Field: "age"}}},
		{"age ASC", []SortKey{{Field: "age"}}},
		{"age asc", []SortKey{{Field: "age"}}},
		{"age DESC", []SortKey{{Field: "age", Descending: true}}},
		{"name, age DESC", []SortKey{{Field: "name"}, {Field: "age", Descending: true}}},
		{" name ,  age desc ", []SortKey{{Field: "name"}, {Field: "age", Descending: true}}},
		{"", nil},
	}
	for _, tt := range tests {
		keys, err := ParseSortDescriptors(tt.spec)
		require.NoError(t, err, tt.spec)
		assert.Equal(t, tt.want, keys, tt.spec)
	}
}

func TestParseSortDescriptors_Malformed(t *testing.T) {
	for _, spec := range []string{
		"age UP",
		"age DESC extra",
		"name, age ASC DESC",
	} {
		_, err := ParseSortDescriptors(spec)
		assert.Error(t, err, spec)
	}
}
