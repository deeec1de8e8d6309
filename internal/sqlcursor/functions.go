package sqlcursor

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"github.com/franz/lollydb/internal/localized"
	"modernc.org/sqlite"
)

// Collation and function names available on every connection
const (
	CollationLocalized = "LOCALIZED"
	FuncNoAccents      = "noaccents"
	FuncSQLEscape      = "sql_escape"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions makes the LOCALIZED collation and the noaccents and
// sql_escape scalar functions available to every connection the driver opens
func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = errors.Join(
			sqlite.RegisterCollationUtf8(CollationLocalized, localized.Compare),
			sqlite.RegisterDeterministicScalarFunction(FuncNoAccents, 1, textFunc(localized.NoAccents)),
			sqlite.RegisterDeterministicScalarFunction(FuncSQLEscape, 1, textFunc(localized.SQLEscape)),
		)
	})
	return registerErr
}

func textFunc(fn func(string) string) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case string:
			return fn(v), nil
		case []byte:
			return fn(string(v)), nil
		default:
			return fn(fmt.Sprint(v)), nil
		}
	}
}
