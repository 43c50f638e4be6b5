package facade_test

import (
	"path/filepath"
	"testing"

	"github.com/othierry/facade"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "facade.toml")
	opts := facade.Options{
		StoreName:       "library",
		StoreType:       facade.SQLiteStoreType,
		Location:        "/var/lib/library",
		ModelPath:       "model.yaml",
		PrimaryKey:      "title",
		SeedSource:      "seeds/library.sqlite.lz4",
		CompressBackups: true,
		EngineOptions:   map[string]string{"busy_timeout": "5000"},
	}
	require.NoError(t, opts.Save(path))

	loaded, err := facade.LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, opts, *loaded)
}

func TestLoadOptionsMissingFile(t *testing.T) {
	_, err := facade.LoadOptions(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
