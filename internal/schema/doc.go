// Package schema derives relational DDL from item descriptors.
//
// A Dialect hides the differences between SQLite and PostgreSQL: column
// types, the surrogate key, placeholders, null-safe comparison and where the
// shared enum catalog lives. Every statement emitted here is idempotent, so
// tables are created lazily on first write and re-running is a no-op.
package schema
