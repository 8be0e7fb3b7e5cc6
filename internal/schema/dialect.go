package schema

import (
	"context"
	"database/sql"
	"fmt"

	"codeberg.org/mentalblood/cnvyr/internal/item"
)

// EnumCatalog is the name of the shared enumeration holding every symbolic
// name: type names, field names, enum members, operations, error kinds.
const EnumCatalog = "cnvyr_enum"

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect captures everything that differs between supported databases.
// Queries are written with ? placeholders and passed through Rebind.
type Dialect interface {
	// Name is the configuration name of the dialect.
	Name() string
	// DriverName is the database/sql driver to open.
	DriverName() string
	// Init lists statements run on every new connection.
	Init() []string

	Rebind(query string) string
	Quote(ident string) string

	// KeyColumn is the full definition of the surrogate key column.
	KeyColumn() string
	// ColumnType maps a field kind to its column type, constraints excluded.
	ColumnType(kind item.Kind) (string, error)
	// NullSafeEqual renders a comparison of column with one placeholder
	// that is true when both sides are NULL.
	NullSafeEqual(column string) string

	// EnumCatalogDDL creates the catalog. May fail with a duplicate object
	// error when the catalog already exists, see IsDuplicateObject.
	EnumCatalogDDL() string
	EnumMembersQuery() string
	AddEnumMember(name string) (string, []any)
	IsDuplicateObject(err error) bool

	// ColumnsQuery lists the column names of an existing table.
	ColumnsQuery(table string) (string, []any)

	// Wipe drops every table and the catalog.
	Wipe(ctx context.Context, q Querier) error
}

// ByName returns the dialect registered under name.
func ByName(name string) (Dialect, error) {
	switch name {
	case "", "sqlite", "sqlite3":
		return SQLite{}, nil
	case "postgres", "postgresql":
		return Postgres{}, nil
	default:
		return nil, fmt.Errorf("unknown database dialect %q", name)
	}
}

var columnTypes = map[item.Kind]string{
	item.Bool:  "BOOLEAN",
	item.Text:  "TEXT",
	item.Int:   "BIGINT",
	item.Float: "DOUBLE PRECISION",
	item.Time:  "TIMESTAMP",
}

func quoteIdent(ident string) string {
	return `"` + ident + `"`
}
