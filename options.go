package facade

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/othierry/facade/schema"
	"github.com/pelletier/go-toml/v2"
)

// Store type identifiers.
const (
	SQLiteStoreType = "sqlite"
	MemoryStoreType = "memory"
)

const (
	storeExtension = ".sqlite"
	backupsDir     = "backups"
)

// Options configures a Stack.
type Options struct {
	// StoreName names the primary store file (without extension).
	// Required for file-backed store types.
	StoreName string `toml:"store_name"`

	// StoreType selects the engine: "sqlite" (default) or "memory".
	StoreType string `toml:"store_type"`

	// Location is the directory holding the store file. Defaults to the
	// working directory.
	Location string `toml:"location"`

	// ModelPath points at a YAML model description. Ignored when Model
	// is set directly.
	ModelPath string `toml:"model"`

	// PrimaryKey optionally names the field that makes First/Last
	// deterministic. Without it both return an arbitrary match.
	PrimaryKey string `toml:"primary_key"`

	// SeedSource is the default source file for Seed.
	SeedSource string `toml:"seed_source"`

	// CompressBackups writes lz4-compressed backup files.
	CompressBackups bool `toml:"compress_backups"`

	// EngineOptions is the engine-specific option bag; the sqlite
	// engine applies it as connection pragmas.
	EngineOptions map[string]string `toml:"engine_options"`

	// Model is the in-code model description, taking precedence over
	// ModelPath.
	Model *schema.Model `toml:"-"`

	// Logger receives diagnostics; defaults to log.Default().
	Logger *log.Logger `toml:"-"`
}

// LoadOptions reads options from a TOML file.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read options: %w", err)
	}
	var opts Options
	if err := toml.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("failed to parse options: %w", err)
	}
	return &opts, nil
}

// Save writes the options to a TOML file.
func (o *Options) Save(path string) error {
	data, err := toml.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (o *Options) storeType() string {
	if o.StoreType == "" {
		return SQLiteStoreType
	}
	return o.StoreType
}

func (o *Options) location() string {
	if o.Location == "" {
		return "."
	}
	return o.Location
}

// storeFile returns the primary store file path, or an error when the
// store name is unconfigured.
func (o *Options) storeFile() (string, error) {
	if o.StoreName == "" {
		return "", &ConfigurationError{Option: "store_name", Reason: "required for a file-backed store"}
	}
	return filepath.Join(o.location(), o.StoreName+storeExtension), nil
}

func (o *Options) backupDir() string {
	return filepath.Join(o.location(), backupsDir)
}
