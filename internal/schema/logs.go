package schema

import (
	"fmt"

	"codeberg.org/mentalblood/cnvyr/internal/item"
)

// Fixed table names.
const (
	AuditLogTable = "audit_log"
	ErrorLogTable = "error_log"
)

// AuditLogDDL creates the append-only audit trail: one row per changed field.
// value is NULL when a field was changed to null.
func AuditLogDDL(d Dialect) []string {
	symbol := symbolType(d)
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, "+
		"%s TIMESTAMP NOT NULL, "+
		"%s %s NOT NULL, "+
		"%s BIGINT NOT NULL, "+
		"%s %s NOT NULL, "+
		"%s %s NOT NULL, "+
		"%s TEXT)",
		d.Quote(AuditLogTable), d.KeyColumn(),
		d.Quote("datetime"),
		d.Quote("item_type"), symbol,
		d.Quote("item_id"),
		d.Quote("operation"), symbol,
		d.Quote("key"), symbol,
		d.Quote("value"))
	return withIndexes(d, AuditLogTable, create,
		"datetime", "item_type", "item_id", "operation", "key", "value")
}

// ErrorLogDDL creates the aggregated error log, one row per
// (operation, kind, message).
func ErrorLogDDL(d Dialect) []string {
	symbol := symbolType(d)
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, "+
		"%s TIMESTAMP NOT NULL, "+
		"%s TIMESTAMP NOT NULL, "+
		"%s BIGINT NOT NULL DEFAULT 1, "+
		"%s %s NOT NULL, "+
		"%s %s NOT NULL, "+
		"%s TEXT NOT NULL, "+
		"UNIQUE (%s, %s, %s))",
		d.Quote(ErrorLogTable), d.KeyColumn(),
		d.Quote("first_seen"),
		d.Quote("last_seen"),
		d.Quote("count"),
		d.Quote("operation"), symbol,
		d.Quote("kind"), symbol,
		d.Quote("message"),
		d.Quote("operation"), d.Quote("kind"), d.Quote("message"))
	return withIndexes(d, ErrorLogTable, create,
		"first_seen", "last_seen", "count", "operation", "kind", "message")
}

func withIndexes(d Dialect, table, create string, columns ...string) []string {
	stmts := []string{create}
	for _, c := range columns {
		stmts = append(stmts, indexDef(d, table, c))
	}
	return stmts
}

// symbolType is the column type of catalog-backed columns. Every dialect
// maps item.Enum, so the error is unreachable.
func symbolType(d Dialect) string {
	t, err := d.ColumnType(item.Enum)
	if err != nil {
		panic(err)
	}
	return t
}
