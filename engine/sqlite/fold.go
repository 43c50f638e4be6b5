package sqlite

import (
	"database/sql/driver"
	"fmt"

	"github.com/othierry/facade/engine"
	sqlite3 "modernc.org/sqlite"
)

// fold(text, flags) mirrors engine.Fold so case- and
// diacritic-insensitive predicates evaluate identically in SQL and in
// the in-memory evaluator.
func init() {
	sqlite3.MustRegisterDeterministicScalarFunction("fold", 2,
		func(ctx *sqlite3.FunctionContext, args []driver.Value) (driver.Value, error) {
			if args[0] == nil {
				return nil, nil
			}
			var s string
			switch v := args[0].(type) {
			case string:
				s = v
			case []byte:
				s = string(v)
			default:
				return nil, fmt.Errorf("fold: expected text, got %T", args[0])
			}
			flags, ok := args[1].(int64)
			if !ok {
				return nil, fmt.Errorf("fold: expected integer flags, got %T", args[1])
			}
			return engine.Fold(s, engine.MatchFlags(flags)), nil
		})
}
