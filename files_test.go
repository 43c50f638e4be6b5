package facade_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/othierry/facade"
	"github.com/othierry/facade/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileStack(t *testing.T, location string, compress bool) *facade.Stack {
	t.Helper()
	s, err := facade.New(facade.Options{
		StoreName:       "notes",
		StoreType:       facade.SQLiteStoreType,
		Location:        location,
		CompressBackups: compress,
		Model:           noteModel(),
		Logger:          log.New(io.Discard),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func commitNote(t *testing.T, s *facade.Stack, title string) {
	t.Helper()
	note, err := facade.Create[Note](s.Main())
	require.NoError(t, err)
	note.Set("title", title)
	require.NoError(t, s.CommitSync(s.Main()))
}

func TestNullFieldInvisibleToNegatedPredicates(t *testing.T) {
	s := newFileStack(t, t.TempDir(), false)
	require.NoError(t, s.Connect())

	note, err := facade.Create[Note](s.Main())
	require.NoError(t, err)
	note.Set("title", "untitled")

	ne := engine.NewFetchRequest("Note")
	ne.Filter = &engine.Compare{Field: "body", Op: engine.OpNe, Value: "draft"}
	notIn := engine.NewFetchRequest("Note")
	notIn.Filter = &engine.Membership{Field: "body", Values: []any{"draft"}, Negated: true}

	// While the insert is pending the overlay evaluator answers; after
	// the save the SQL translation does. Visibility must not flip.
	for _, req := range []*engine.FetchRequest{ne, notIn} {
		rows, err := s.Main().PerformFetch(req)
		require.NoError(t, err)
		assert.Empty(t, rows)
	}
	require.NoError(t, s.CommitSync(s.Main()))
	for _, req := range []*engine.FetchRequest{ne, notIn} {
		rows, err := s.Main().PerformFetch(req)
		require.NoError(t, err)
		assert.Empty(t, rows)
	}
}

func TestInstalledTracksStoreFile(t *testing.T) {
	dir := t.TempDir()
	s := newFileStack(t, dir, false)

	assert.False(t, s.Installed())
	require.NoError(t, s.Connect())
	assert.True(t, s.Installed())

	require.NoError(t, s.Drop())
	assert.False(t, s.Installed())
	assert.NoFileExists(t, filepath.Join(dir, "notes.sqlite"))
}

func TestInstalledFalseForMemoryStore(t *testing.T) {
	s := newMemoryStack(t)
	assert.False(t, s.Installed())
}

func TestBackupAndSeed(t *testing.T) {
	srcDir := t.TempDir()
	s := newFileStack(t, srcDir, false)
	require.NoError(t, s.Connect())
	commitNote(t, s, "kept")

	require.NoError(t, s.Backup())
	backup := filepath.Join(srcDir, "backups", "backup-notes.sqlite")
	require.FileExists(t, backup)

	dstDir := t.TempDir()
	restored := newFileStack(t, dstDir, false)
	require.NoError(t, restored.Seed(backup))
	require.NoError(t, restored.Connect())
	assert.Equal(t, []string{"kept"}, fetchTitles(t, restored.Main()))
}

func TestBackupCompressedAndSeedDecompresses(t *testing.T) {
	srcDir := t.TempDir()
	s := newFileStack(t, srcDir, true)
	require.NoError(t, s.Connect())
	commitNote(t, s, "squeezed")

	require.NoError(t, s.Backup())
	backup := filepath.Join(srcDir, "backups", "backup-notes.sqlite.lz4")
	require.FileExists(t, backup)

	// The compressed backup must not be a plain copy.
	raw, err := os.ReadFile(backup)
	require.NoError(t, err)
	original, err := os.ReadFile(filepath.Join(srcDir, "notes.sqlite"))
	require.NoError(t, err)
	assert.NotEqual(t, original, raw)

	dstDir := t.TempDir()
	restored := newFileStack(t, dstDir, false)
	require.NoError(t, restored.Seed(backup))
	require.NoError(t, restored.Connect())
	assert.Equal(t, []string{"squeezed"}, fetchTitles(t, restored.Main()))
}

func TestBackupRequiresFileBackedStore(t *testing.T) {
	s := newMemoryStack(t)
	var cfg *facade.ConfigurationError
	assert.ErrorAs(t, s.Backup(), &cfg)
}

func TestSeedRefusesConnectedStore(t *testing.T) {
	dir := t.TempDir()
	s := newFileStack(t, dir, false)
	require.NoError(t, s.Connect())
	assert.Error(t, s.Seed(filepath.Join(dir, "anything.sqlite")))
}

func TestSeedMissingSource(t *testing.T) {
	s := newFileStack(t, t.TempDir(), false)

	var cfg *facade.ConfigurationError
	assert.ErrorAs(t, s.Seed(""), &cfg)

	var nf *facade.NotFoundError
	assert.ErrorAs(t, s.Seed(filepath.Join(t.TempDir(), "absent.sqlite")), &nf)
}

func TestSeedSourceFallback(t *testing.T) {
	srcDir := t.TempDir()
	s := newFileStack(t, srcDir, false)
	require.NoError(t, s.Connect())
	commitNote(t, s, "fallback")
	require.NoError(t, s.Backup())
	backup := filepath.Join(srcDir, "backups", "backup-notes.sqlite")

	dstDir := t.TempDir()
	restored, err := facade.New(facade.Options{
		StoreName:  "notes",
		StoreType:  facade.SQLiteStoreType,
		Location:   dstDir,
		SeedSource: backup,
		Model:      noteModel(),
		Logger:     log.New(io.Discard),
	})
	require.NoError(t, err)
	t.Cleanup(func() { restored.Close() })

	require.NoError(t, restored.Seed(""))
	require.NoError(t, restored.Connect())
	assert.Equal(t, []string{"fallback"}, fetchTitles(t, restored.Main()))
}

func TestDropWithoutConnectIsSafe(t *testing.T) {
	s := newFileStack(t, t.TempDir(), false)
	require.NoError(t, s.Drop())
}
