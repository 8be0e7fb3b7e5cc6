package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"
	"time"

	"codeberg.org/mentalblood/cnvyr/internal/item"
	"codeberg.org/mentalblood/cnvyr/internal/schema"
)

// Load returns the items of type desc matching where, ordered by id.
//
// where is a SQL boolean expression over the table's columns with ?
// placeholders bound to args; empty matches every row. The sequence is lazy
// and restartable: rows are fetched a page at a time, and the connection is
// free between pages, so the caller may write while iterating.
// Placeholders are rebound for the dialect; a ? inside a quoted literal or
// identifier is not a placeholder.
func (s *Store) Load(ctx context.Context, desc *item.Descriptor, where string, args ...any) iter.Seq2[item.Item, error] {
	return func(yield func(item.Item, error) bool) {
		db, err := s.sup.Acquire(ctx)
		if err != nil {
			yield(item.Item{}, err)
			return
		}
		if err := s.ensureLogs(ctx, db); err != nil {
			yield(item.Item{}, err)
			return
		}
		if err := s.ensureTable(ctx, db, desc); err != nil {
			yield(item.Item{}, err)
			return
		}

		stmt := s.dialect.Rebind(selectStatement(s.dialect, desc, where))
		var after int64
		for {
			page, err := s.loadPage(ctx, desc, stmt, after, args)
			if err != nil {
				yield(item.Item{}, err)
				return
			}
			for _, it := range page {
				if !yield(it, nil) {
					return
				}
				after, _ = it.ID()
			}
			if len(page) < s.pageSize {
				return
			}
		}
	}
}

// LoadAll collects Load into a slice.
func (s *Store) LoadAll(ctx context.Context, desc *item.Descriptor, where string, args ...any) ([]item.Item, error) {
	var out []item.Item
	for it, err := range s.Load(ctx, desc, where, args...) {
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

func selectStatement(d schema.Dialect, desc *item.Descriptor, where string) string {
	fields := desc.Fields()
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, d.Quote(item.FieldID))
	for _, f := range fields {
		cols = append(cols, d.Quote(f.Name))
	}

	cond := d.Quote(item.FieldID) + " > ?"
	if strings.TrimSpace(where) != "" {
		cond += " AND (" + where + ")"
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT ?",
		strings.Join(cols, ", "), d.Quote(desc.Table()), cond, d.Quote(item.FieldID))
}

func (s *Store) loadPage(ctx context.Context, desc *item.Descriptor, stmt string, after int64, args []any) ([]item.Item, error) {
	db, err := s.sup.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	bound := make([]any, 0, len(args)+2)
	bound = append(bound, after)
	for _, a := range args {
		bound = append(bound, toDriver(a))
	}
	bound = append(bound, s.pageSize)

	rows, err := db.QueryContext(ctx, stmt, bound...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", desc.Table(), err)
	}
	defer rows.Close()

	fields := desc.Fields()
	var page []item.Item
	for rows.Next() {
		var id int64
		raw := make([]any, len(fields))
		dest := make([]any, 0, len(fields)+1)
		dest = append(dest, &id)
		for i := range raw {
			dest = append(dest, &raw[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", desc.Table(), err)
		}

		values := make(map[string]any, len(fields))
		for i, f := range fields {
			v, err := fromDriver(f, raw[i])
			if err != nil {
				return nil, fmt.Errorf("load %s %d: %w", desc.Table(), id, err)
			}
			values[f.Name] = v
		}
		it, err := item.Restore(desc, id, values)
		if err != nil {
			return nil, fmt.Errorf("load %s %d: %w", desc.Table(), id, err)
		}
		page = append(page, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", desc.Table(), err)
	}
	return page, nil
}

// LogEntry is one audit log row. Value is nil when the field became null.
type LogEntry struct {
	ID        int64     `json:"id"`
	Datetime  time.Time `json:"datetime"`
	ItemType  string    `json:"item_type"`
	ItemID    int64     `json:"item_id"`
	Operation string    `json:"operation"`
	Key       string    `json:"key"`
	Value     *string   `json:"value"`
}

// AuditLog returns the audit trail of one item, oldest first.
func (s *Store) AuditLog(ctx context.Context, itemType string, id int64) ([]LogEntry, error) {
	db, err := s.sup.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ensureLogs(ctx, db); err != nil {
		return nil, err
	}

	q := s.dialect.Quote
	rows, err := db.QueryContext(ctx, s.dialect.Rebind(fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s FROM %s
		WHERE %s = ? AND %s = ?
		ORDER BY %s ASC`,
		q("id"), q("datetime"), q("item_type"), q("item_id"), q("operation"), q("key"), q("value"),
		q(schema.AuditLogTable),
		q("item_type"), q("item_id"),
		q("id"))), itemType, id)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	entries := []LogEntry{}
	for rows.Next() {
		var (
			e     LogEntry
			value sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Datetime, &e.ItemType, &e.ItemID, &e.Operation, &e.Key, &value); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e.Datetime = e.Datetime.UTC()
		if value.Valid {
			e.Value = &value.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return entries, nil
}
