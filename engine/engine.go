package engine

// Engine is the storage engine contract. Implementations are safe for
// concurrent use; transactional semantics apply per Save call.
type Engine interface {
	// Open opens or creates the store and verifies its schema.
	Open() error
	Close() error

	Fetch(req *FetchRequest) ([]Row, error)
	Count(req *FetchRequest) (int64, error)
	Save(req *SaveRequest) error

	// AllocateID returns a new permanent identifier for the entity.
	AllocateID(entity string) string

	// Path returns the primary store file path, or "" for engines that
	// are not file-backed.
	Path() string
}

// BatchDeleter is an optional capability: a single bulk delete command
// that bypasses per-object staging.
type BatchDeleter interface {
	BatchDelete(entity string, filter Predicate) (int64, error)
}

// Checkpointer is an optional capability: force the store file into a
// single consistent snapshot before a file copy.
type Checkpointer interface {
	Checkpoint() error
}
