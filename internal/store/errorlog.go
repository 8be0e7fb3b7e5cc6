package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"codeberg.org/mentalblood/cnvyr/internal/schema"
)

// ErrorRecord aggregates the failures of one operation that share a kind
// and message.
type ErrorRecord struct {
	ID        int64     `json:"id"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Count     int64     `json:"count"`
	Operation string    `json:"operation"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// WithErrorLogging runs body as the logged operation.
//
// On success every ErrorRecord of the operation is deleted. On failure the
// error is recorded, its count incremented if it was seen before, and then
// returned unchanged. Writing the record is retried on a fresh connection
// until it succeeds or ctx ends; a record that could not be written is
// logged and does not replace the body's error.
//
// The error log table exists before body runs, even after Wipe. If it
// cannot be created body is not run.
func (s *Store) WithErrorLogging(ctx context.Context, operation string, body func(ctx context.Context) error) error {
	if err := s.sup.Do(ctx, func(db *sql.DB) error {
		return s.ensureLogs(ctx, db)
	}); err != nil {
		return fmt.Errorf("prepare error log: %w", err)
	}

	err := body(ctx)
	if err == nil {
		if cerr := s.sup.Do(ctx, func(db *sql.DB) error {
			return s.clearErrors(ctx, db, operation)
		}); cerr != nil {
			s.logger.Error("failed to clear error log",
				"operation", operation,
				"error", cerr)
		}
		return nil
	}

	kind := ErrorKind(err)
	s.logger.Warn("operation failed",
		"operation", operation,
		"kind", kind,
		"error", err)

	if rerr := s.sup.Do(ctx, func(db *sql.DB) error {
		return s.recordError(ctx, db, operation, kind, err.Error())
	}); rerr != nil {
		s.logger.Error("failed to record error",
			"operation", operation,
			"kind", kind,
			"error", rerr)
	}
	return err
}

func (s *Store) recordError(ctx context.Context, db *sql.DB, operation, kind, message string) error {
	if err := s.ensureLogs(ctx, db); err != nil {
		return err
	}
	if err := s.register(ctx, db, operation, kind); err != nil {
		return err
	}

	q := s.dialect.Quote
	at := s.timestamp()
	_, err := db.ExecContext(ctx, s.dialect.Rebind(fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s, %[4]s, %[5]s, %[6]s, %[7]s)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT (%[5]s, %[6]s, %[7]s)
		DO UPDATE SET %[4]s = %[1]s.%[4]s + 1, %[3]s = excluded.%[3]s`,
		q(schema.ErrorLogTable),
		q("first_seen"), q("last_seen"), q("count"),
		q("operation"), q("kind"), q("message"))),
		at, at, operation, kind, message)
	if err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	return nil
}

func (s *Store) clearErrors(ctx context.Context, db *sql.DB, operation string) error {
	if err := s.ensureLogs(ctx, db); err != nil {
		return err
	}
	q := s.dialect.Quote
	_, err := db.ExecContext(ctx, s.dialect.Rebind(fmt.Sprintf(
		"DELETE FROM %s WHERE %s = ?", q(schema.ErrorLogTable), q("operation"))),
		operation)
	if err != nil {
		return fmt.Errorf("clear errors: %w", err)
	}
	return nil
}

// Errors returns every ErrorRecord, oldest first.
func (s *Store) Errors(ctx context.Context) ([]ErrorRecord, error) {
	db, err := s.sup.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ensureLogs(ctx, db); err != nil {
		return nil, err
	}

	q := s.dialect.Quote
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s FROM %s ORDER BY %s ASC`,
		q("id"), q("first_seen"), q("last_seen"), q("count"), q("operation"), q("kind"), q("message"),
		q(schema.ErrorLogTable), q("id")))
	if err != nil {
		return nil, fmt.Errorf("query error log: %w", err)
	}
	defer rows.Close()

	records := []ErrorRecord{}
	for rows.Next() {
		var r ErrorRecord
		if err := rows.Scan(&r.ID, &r.FirstSeen, &r.LastSeen, &r.Count, &r.Operation, &r.Kind, &r.Message); err != nil {
			return nil, fmt.Errorf("scan error log: %w", err)
		}
		r.FirstSeen, r.LastSeen = r.FirstSeen.UTC(), r.LastSeen.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate error log: %w", err)
	}
	return records, nil
}
