package engine

// Projection selects the result shape of a fetch.
type Projection int

const (
	// ProjectObjects returns full records.
	ProjectObjects Projection = iota
	// ProjectDicts returns field-subset dictionaries; the field set comes
	// from PropertyFields.
	ProjectDicts
	// ProjectIDs returns identifiers only.
	ProjectIDs
)

// FetchRequest describes one read against the engine.
type FetchRequest struct {
	Entity     string
	Filter     Predicate
	Sort       []SortKey
	Limit      int
	Offset     int
	BatchSize  int
	Projection Projection

	// PropertyFields restricts the loaded columns (dict projection, or a
	// distinct-on-field query).
	PropertyFields []string
	GroupBy        []string
	Distinct       bool

	PrefetchFields     []string
	ReturnsFaults      bool
	RefreshesRefetched bool

	// LoadsProperties is false for fetches that only need identifiers,
	// such as the staged-delete path.
	LoadsProperties bool

	// IncludesSubentities is disabled for count requests.
	IncludesSubentities bool
}

// NewFetchRequest returns a request with the default load behavior.
func NewFetchRequest(entity string) *FetchRequest {
	return &FetchRequest{
		Entity:              entity,
		LoadsProperties:     true,
		IncludesSubentities: true,
	}
}

// Row is one fetched record. Values is keyed by field name and is nil
// for identifier-only projections.
type Row struct {
	ID     string
	Values map[string]any
}

// Ref identifies one record of one entity.
type Ref struct {
	Entity string
	ID     string
}

// Upsert is one inserted or updated record in a save.
type Upsert struct {
	Entity string
	Row    Row
}

// SaveRequest is one transactional write over a working set.
type SaveRequest struct {
	Upserts []Upsert
	Deletes []Ref
}

// Empty reports whether the save carries no work.
func (r *SaveRequest) Empty() bool {
	return len(r.Upserts) == 0 && len(r.Deletes) == 0
}
