package schema

import (
	"context"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"codeberg.org/mentalblood/cnvyr/internal/item"
)

// SQLite is the default dialect, backed by github.com/mattn/go-sqlite3.
//
// The enum catalog is a lookup table; enum columns are TEXT with a foreign
// key into it, so the foreign_keys pragma must be on for the catalog to be
// enforced.
type SQLite struct{}

func (SQLite) Name() string       { return "sqlite" }
func (SQLite) DriverName() string { return "sqlite3" }

// Init configures each connection: WAL for concurrent readers, a busy
// timeout for lock contention, and foreign keys for the enum catalog.
func (SQLite) Init() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
}

func (SQLite) Rebind(query string) string { return query }

func (SQLite) Quote(ident string) string { return quoteIdent(ident) }

func (SQLite) KeyColumn() string {
	return `"id" INTEGER PRIMARY KEY AUTOINCREMENT`
}

func (SQLite) ColumnType(kind item.Kind) (string, error) {
	switch kind {
	case item.Bytes:
		return "BLOB", nil
	case item.Enum:
		return "TEXT REFERENCES " + EnumCatalog + "(name)", nil
	}
	if t, ok := columnTypes[kind]; ok {
		return t, nil
	}
	return "", &SchemaError{FieldKind: kind}
}

func (SQLite) NullSafeEqual(column string) string {
	return column + " IS ?"
}

func (SQLite) EnumCatalogDDL() string {
	return "CREATE TABLE IF NOT EXISTS " + EnumCatalog + " (name TEXT PRIMARY KEY NOT NULL)"
}

func (SQLite) EnumMembersQuery() string {
	return "SELECT name FROM " + EnumCatalog
}

func (SQLite) AddEnumMember(name string) (string, []any) {
	return "INSERT INTO " + EnumCatalog + " (name) VALUES (?) ON CONFLICT (name) DO NOTHING", []any{name}
}

func (SQLite) IsDuplicateObject(error) bool { return false }

func (SQLite) ColumnsQuery(table string) (string, []any) {
	return "SELECT name FROM pragma_table_info(?)", []any{table}
}

// Wipe drops item and log tables first, the catalog last, so no foreign key
// is left dangling while dropping.
func (SQLite) Wipe(ctx context.Context, q Querier) error {
	rows, err := q.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
	`)
	if err != nil {
		return fmt.Errorf("wipe: list tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("wipe: scan table: %w", err)
		}
		if name != EnumCatalog {
			tables = append(tables, name)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("wipe: iterate tables: %w", err)
	}
	rows.Close()

	tables = append(tables, EnumCatalog)
	for _, t := range tables {
		if _, err := q.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(t)); err != nil {
			return fmt.Errorf("wipe: drop %s: %w", t, err)
		}
	}
	return nil
}
