// Package store persists items and keeps their audit and error logs.
//
// # Tables
//
// Every item type gets its own table, created on first use from its
// descriptor (see package schema). Two fixed tables sit beside them:
//   - audit_log: one row per changed field, written in the same transaction
//     as the change it documents
//   - error_log: failures of logged operations, aggregated by
//     (operation, kind, message)
//
// # Writes
//
// Transaction runs a batch of Create and Update actions atomically. Update
// issues only the changed columns and guards the row with the values the
// caller last saw:
//
//	UPDATE t SET f = new WHERE id = ? AND f IS old
//
// A row changed concurrently no longer matches; zero affected rows fail the
// batch with a PersistenceError instead of passing silently.
//
// # Connections
//
// The store owns a conn.Supervisor. A batch that fails because the connection
// broke is retried on a fresh connection. Writes to the error log are retried
// until they succeed or the context ends.
package store
