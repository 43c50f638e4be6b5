package facade

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/othierry/facade/engine"
	"github.com/othierry/facade/engine/memory"
	"github.com/othierry/facade/engine/sqlite"
	"github.com/pierrec/lz4/v4"
)

const lz4Extension = ".lz4"

// sqlite WAL-mode side files.
var sideFileSuffixes = []string{"-wal", "-shm"}

// Connect opens or creates the store. Idempotent once connected.
func (s *Stack) Connect() error {
	if s.eng != nil {
		return nil
	}
	switch s.opts.storeType() {
	case MemoryStoreType:
		eng := memory.New(s.model)
		if err := eng.Open(); err != nil {
			return &StoreOpenError{Path: "(memory)", Err: err}
		}
		s.eng = eng
	case SQLiteStoreType:
		path, err := s.opts.storeFile()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(s.opts.location(), 0755); err != nil {
			return &StoreOpenError{Path: path, Err: err}
		}
		eng := sqlite.New(s.model, path, s.opts.EngineOptions)
		if err := eng.Open(); err != nil {
			return &StoreOpenError{Path: path, Err: err}
		}
		s.eng = eng
	}
	s.log.Debug("store connected", "type", s.opts.storeType())
	return nil
}

// Installed reports whether the store file already exists at the
// configured location, without opening it. Always false for stores
// that are not file-backed.
func (s *Stack) Installed() bool {
	if s.opts.storeType() != SQLiteStoreType {
		return false
	}
	path, err := s.opts.storeFile()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Backup checkpoints the store into a single consistent file and copies
// it to the backup directory as backup-<original filename>, optionally
// lz4-compressed.
func (s *Stack) Backup() error {
	if s.eng == nil || s.eng.Path() == "" {
		return &ConfigurationError{Option: "store_type", Reason: "only a connected file-backed store can be backed up"}
	}
	if cp, ok := s.eng.(engine.Checkpointer); ok {
		if err := cp.Checkpoint(); err != nil {
			return fmt.Errorf("backup checkpoint failed: %w", err)
		}
	}

	if err := os.MkdirAll(s.opts.backupDir(), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	src := s.eng.Path()
	dst := filepath.Join(s.opts.backupDir(), "backup-"+filepath.Base(src))
	if s.opts.CompressBackups {
		dst += lz4Extension
		if err := compressFile(src, dst); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
	} else if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	s.log.Info("store backed up", "to", dst)
	return nil
}

// Drop closes the engine and removes the store's primary file and its
// write-ahead/shared-memory side files. Full reset.
func (s *Stack) Drop() error {
	if s.eng != nil {
		if err := s.eng.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
		s.eng = nil
	}
	if s.opts.storeType() != SQLiteStoreType {
		return nil
	}
	path, err := s.opts.storeFile()
	if err != nil {
		return err
	}
	for _, p := range storeFiles(path) {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	s.log.Info("store dropped", "path", path)
	return nil
}

// Seed copies a pre-built store file into the configured location. An
// empty source falls back to the configured seed source. The store must
// not be connected.
func (s *Stack) Seed(src string) error {
	if s.eng != nil {
		return errors.New("cannot seed a connected store")
	}
	if src == "" {
		src = s.opts.SeedSource
	}
	if src == "" {
		return &ConfigurationError{Option: "seed_source", Reason: "no seed source configured"}
	}
	dst, err := s.opts.storeFile()
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); err != nil {
		return &NotFoundError{Path: src}
	}
	if err := os.MkdirAll(s.opts.location(), 0755); err != nil {
		return fmt.Errorf("failed to create store location: %w", err)
	}

	if strings.HasSuffix(src, lz4Extension) {
		err = decompressFile(src, dst)
	} else {
		err = copyFile(src, dst)
	}
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	// Stale side files from a previous store would corrupt the seeded one.
	for _, suffix := range sideFileSuffixes {
		os.Remove(dst + suffix)
	}
	s.log.Info("store seeded", "from", src)
	return nil
}

func storeFiles(path string) []string {
	files := []string{path}
	for _, suffix := range sideFileSuffixes {
		files = append(files, path+suffix)
	}
	return files
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	zw := lz4.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		out.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func decompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, lz4.NewReader(in)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
