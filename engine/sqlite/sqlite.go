// Package sqlite implements the file-backed storage engine on top of
// modernc.org/sqlite. Tables are derived from the model description;
// rows are addressed by a TEXT primary key.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/othierry/facade/engine"
	"github.com/othierry/facade/schema"

	_ "modernc.org/sqlite"
)

var (
	_ engine.Engine       = (*Engine)(nil)
	_ engine.BatchDeleter = (*Engine)(nil)
	_ engine.Checkpointer = (*Engine)(nil)
)

// Engine is the SQLite storage engine.
type Engine struct {
	model   *schema.Model
	path    string
	pragmas map[string]string
	db      *sql.DB
}

// New creates an engine for the store file at path. The options bag
// carries extra pragmas applied to every connection.
func New(model *schema.Model, path string, options map[string]string) *Engine {
	return &Engine{model: model, path: path, pragmas: options}
}

// Open opens or creates the store file and verifies that the on-disk
// schema can hold the model.
func (e *Engine) Open() error {
	db, err := sql.Open("sqlite", e.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to open database: %w", err)
	}
	e.db = db

	if err := e.initialize(); err != nil {
		db.Close()
		e.db = nil
		return err
	}
	return nil
}

func (e *Engine) dsn() string {
	dsn := e.path + "?_pragma=journal_mode(WAL)&_pragma=case_sensitive_like(1)"
	keys := make([]string, 0, len(e.pragmas))
	for k := range e.pragmas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dsn += fmt.Sprintf("&_pragma=%s(%s)", k, e.pragmas[k])
	}
	return dsn
}

// Close closes the database connection.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// Path returns the primary store file path.
func (e *Engine) Path() string { return e.path }

// AllocateID returns a new permanent identifier.
func (e *Engine) AllocateID(entity string) string { return uuid.NewString() }

// Checkpoint forces the WAL into the main store file so a plain file
// copy is a consistent snapshot.
func (e *Engine) Checkpoint() error {
	if e.db == nil {
		return fmt.Errorf("store is not open")
	}
	if _, err := e.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint: %w", err)
	}
	return nil
}

// initialize creates missing tables and rejects stores whose existing
// tables cannot hold the model. Schema migration is out of scope.
func (e *Engine) initialize() error {
	for i := range e.model.Entities {
		ent := &e.model.Entities[i]
		exists, err := e.tableExists(ent.Name)
		if err != nil {
			return err
		}
		if !exists {
			if _, err := e.db.Exec(createTableSQL(ent)); err != nil {
				return fmt.Errorf("failed to create table %q: %w", ent.Name, err)
			}
			continue
		}
		if err := e.verifyTable(ent); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) tableExists(name string) (bool, error) {
	var n int
	err := e.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return n > 0, nil
}

func (e *Engine) verifyTable(ent *schema.Entity) error {
	rows, err := e.db.Query(fmt.Sprintf(`PRAGMA table_info("%s")`, ent.Name))
	if err != nil {
		return fmt.Errorf("failed to inspect table %q: %w", ent.Name, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return fmt.Errorf("failed to inspect table %q: %w", ent.Name, err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to inspect table %q: %w", ent.Name, err)
	}

	if !cols["id"] {
		return fmt.Errorf("incompatible store: table %q has no id column", ent.Name)
	}
	for _, f := range ent.Fields {
		if !cols[f.Name] {
			return fmt.Errorf("incompatible store: table %q is missing column %q", ent.Name, f.Name)
		}
	}
	return nil
}

func createTableSQL(ent *schema.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS \"%s\" (\n", ent.Name)
	b.WriteString("\tid TEXT PRIMARY KEY")
	for _, f := range ent.Fields {
		fmt.Fprintf(&b, ",\n\t\"%s\" %s", f.Name, columnType(f.Kind))
	}
	b.WriteString("\n);")
	for _, f := range ent.Fields {
		if f.Indexed {
			fmt.Fprintf(&b, "\nCREATE INDEX IF NOT EXISTS \"idx_%s_%s\" ON \"%s\"(\"%s\");",
				ent.Name, f.Name, ent.Name, f.Name)
		}
	}
	return b.String()
}

func columnType(k schema.Kind) string {
	switch k {
	case schema.Int, schema.Bool:
		return "INTEGER"
	case schema.Float:
		return "REAL"
	case schema.Bytes:
		return "BLOB"
	default:
		// String, Time (RFC 3339) and StringList (JSON array) all store
		// as text.
		return "TEXT"
	}
}

func (e *Engine) entity(name string) (*schema.Entity, error) {
	ent, ok := e.model.Entity(name)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", name)
	}
	return ent, nil
}

// Fetch executes a read and decodes rows into canonical field values.
func (e *Engine) Fetch(req *engine.FetchRequest) ([]engine.Row, error) {
	ent, err := e.entity(req.Entity)
	if err != nil {
		return nil, err
	}
	tr := &translator{entity: ent}
	query, args, err := tr.selectSQL(req)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer rows.Close()

	var (
		idOnly = req.Projection == engine.ProjectIDs ||
			(req.Projection == engine.ProjectObjects && !req.LoadsProperties)
		fields []schema.Field
	)
	switch {
	case idOnly:
	case req.Projection == engine.ProjectDicts:
		for _, name := range req.PropertyFields {
			if f, ok := ent.Field(name); ok {
				fields = append(fields, *f)
			}
		}
	default:
		fields = ent.Fields
	}

	var out []engine.Row
	for rows.Next() {
		row, err := scanRow(rows, req.Projection == engine.ProjectDicts, fields, idOnly)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	return out, nil
}

func scanRow(rows *sql.Rows, dict bool, fields []schema.Field, idOnly bool) (engine.Row, error) {
	n := len(fields)
	if !dict {
		n++
	}
	raw := make([]any, n)
	for i := range raw {
		raw[i] = new(any)
	}
	if err := rows.Scan(raw...); err != nil {
		return engine.Row{}, fmt.Errorf("fetch failed: %w", err)
	}

	var row engine.Row
	i := 0
	if !dict {
		if s, ok := (*raw[0].(*any)).(string); ok {
			row.ID = s
		}
		i = 1
	}
	if idOnly {
		return row, nil
	}
	row.Values = make(map[string]any, len(fields))
	for j, f := range fields {
		v, err := decodeValue(f.Kind, *raw[i+j].(*any))
		if err != nil {
			return engine.Row{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if v != nil {
			row.Values[f.Name] = v
		}
	}
	return row, nil
}

// Count executes a count-only request.
func (e *Engine) Count(req *engine.FetchRequest) (int64, error) {
	ent, err := e.entity(req.Entity)
	if err != nil {
		return 0, err
	}
	tr := &translator{entity: ent}
	query, args, err := tr.countSQL(req)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := e.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return n, nil
}

// Save applies one transactional write over a working set.
func (e *Engine) Save(req *engine.SaveRequest) error {
	if req.Empty() {
		return nil
	}
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin save: %w", err)
	}
	defer tx.Rollback()

	for _, up := range req.Upserts {
		ent, err := e.entity(up.Entity)
		if err != nil {
			return err
		}
		query, args, err := upsertSQL(ent, up.Row)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to save %s/%s: %w", up.Entity, up.Row.ID, err)
		}
	}
	for _, ref := range req.Deletes {
		if _, err := e.entity(ref.Entity); err != nil {
			return err
		}
		query := fmt.Sprintf(`DELETE FROM "%s" WHERE id = ?`, ref.Entity)
		if _, err := tx.Exec(query, ref.ID); err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", ref.Entity, ref.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save: %w", err)
	}
	return nil
}

// upsertSQL builds a partial upsert carrying only the fields present in
// the row, so a merged delta never clobbers untouched columns.
func upsertSQL(ent *schema.Entity, row engine.Row) (string, []any, error) {
	cols := []string{`"id"`}
	args := []any{row.ID}
	var updates []string
	for _, f := range ent.Fields {
		v, ok := row.Values[f.Name]
		if !ok {
			continue
		}
		encoded, err := encodeValue(f.Kind, v)
		if err != nil {
			return "", nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		col := `"` + f.Name + `"`
		cols = append(cols, col)
		args = append(args, encoded)
		updates = append(updates, col+" = excluded."+col)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `INSERT INTO "%s" (%s) VALUES %s`,
		ent.Name, strings.Join(cols, ", "), placeholders(len(cols)))
	if len(updates) == 0 {
		b.WriteString(` ON CONFLICT("id") DO NOTHING`)
	} else {
		b.WriteString(` ON CONFLICT("id") DO UPDATE SET ` + strings.Join(updates, ", "))
	}
	return b.String(), args, nil
}

// BatchDelete issues one bulk delete, bypassing per-object staging.
func (e *Engine) BatchDelete(entity string, filter engine.Predicate) (int64, error) {
	ent, err := e.entity(entity)
	if err != nil {
		return 0, err
	}
	tr := &translator{entity: ent}
	query, args, err := tr.deleteSQL(filter)
	if err != nil {
		return 0, err
	}
	res, err := e.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("batch delete failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("batch delete failed: %w", err)
	}
	return n, nil
}

// encodeValue converts a canonical field value to its SQL parameter.
func encodeValue(kind schema.Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case schema.String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case schema.Int:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		}
	case schema.Float:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case schema.Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case schema.Time:
		switch ts := v.(type) {
		case time.Time:
			return ts.UTC().Format(time.RFC3339Nano), nil
		case string:
			return ts, nil
		}
	case schema.Bytes:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	case schema.StringList:
		switch list := v.(type) {
		case []string:
			data, err := json.Marshal(list)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		case []any:
			data, err := json.Marshal(list)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		}
	}
	return nil, fmt.Errorf("kind %s cannot hold %T", kind, v)
}

// decodeValue converts a scanned SQL value to its canonical field value.
func decodeValue(kind schema.Kind, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch kind {
	case schema.String:
		return asText(raw)
	case schema.Int:
		if n, ok := raw.(int64); ok {
			return n, nil
		}
	case schema.Float:
		switch n := raw.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
	case schema.Bool:
		switch n := raw.(type) {
		case int64:
			return n != 0, nil
		case bool:
			return n, nil
		}
	case schema.Time:
		s, err := asText(raw)
		if err == nil {
			return parseTimestamp(s)
		}
	case schema.Bytes:
		if b, ok := raw.([]byte); ok {
			out := make([]byte, len(b))
			copy(out, b)
			return out, nil
		}
	case schema.StringList:
		s, err := asText(raw)
		if err == nil {
			var list []string
			if err := json.Unmarshal([]byte(s), &list); err != nil {
				return nil, fmt.Errorf("malformed list value: %w", err)
			}
			return list, nil
		}
	}
	return nil, fmt.Errorf("kind %s cannot decode %T", kind, raw)
}

func asText(raw any) (string, error) {
	switch s := raw.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", fmt.Errorf("expected text, got %T", raw)
}

// parseTimestamp parses a timestamp string from SQLite in the formats
// earlier writers may have used.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if ts, err := time.Parse(f, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
