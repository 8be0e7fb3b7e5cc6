package schema

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"codeberg.org/mentalblood/cnvyr/internal/item"
)

// pgDuplicateObject is SQLSTATE duplicate_object.
const pgDuplicateObject = "42710"

// Postgres uses a native enum type as the catalog, backed by github.com/lib/pq.
type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "postgres" }

func (Postgres) Init() []string { return nil }

// Rebind turns ? placeholders into $1, $2, ... A ? inside a string literal
// or a quoted identifier is left alone; doubled quotes stay inside the
// quoted region. Backslash escapes of E'' strings are not recognised.
func (Postgres) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?':
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (Postgres) Quote(ident string) string { return pq.QuoteIdentifier(ident) }

func (Postgres) KeyColumn() string {
	return `"id" BIGSERIAL PRIMARY KEY`
}

func (Postgres) ColumnType(kind item.Kind) (string, error) {
	switch kind {
	case item.Bytes:
		return "BYTEA", nil
	case item.Enum:
		return EnumCatalog, nil
	}
	if t, ok := columnTypes[kind]; ok {
		return t, nil
	}
	return "", &SchemaError{FieldKind: kind}
}

func (Postgres) NullSafeEqual(column string) string {
	return column + " IS NOT DISTINCT FROM ?"
}

func (Postgres) EnumCatalogDDL() string {
	return "CREATE TYPE " + EnumCatalog + " AS ENUM ()"
}

func (Postgres) EnumMembersQuery() string {
	return `SELECT e.enumlabel FROM pg_enum AS e JOIN pg_type AS t ON e.enumtypid = t.oid WHERE t.typname = '` + EnumCatalog + `'`
}

// AddEnumMember cannot use a bind parameter: ALTER TYPE takes a literal.
func (Postgres) AddEnumMember(name string) (string, []any) {
	return "ALTER TYPE " + EnumCatalog + " ADD VALUE IF NOT EXISTS " + pq.QuoteLiteral(name), nil
}

func (Postgres) IsDuplicateObject(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgDuplicateObject
}

func (Postgres) ColumnsQuery(table string) (string, []any) {
	return `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?`, []any{table}
}

func (Postgres) Wipe(ctx context.Context, q Querier) error {
	for _, stmt := range []string{
		"DROP SCHEMA public CASCADE",
		"CREATE SCHEMA public",
		"GRANT ALL ON SCHEMA public TO public",
	} {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("wipe: %s: %w", stmt, err)
		}
	}
	return nil
}
