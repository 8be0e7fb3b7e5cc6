package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"codeberg.org/mentalblood/cnvyr/internal/catalog"
	"codeberg.org/mentalblood/cnvyr/internal/conn"
	"codeberg.org/mentalblood/cnvyr/internal/item"
	"codeberg.org/mentalblood/cnvyr/internal/schema"
)

// Action is one step of a Transaction: a Create or an Update.
type Action struct {
	prev item.Item
	next item.Item
}

// Create inserts it. Any id it carries is ignored.
func Create(it item.Item) Action { return Action{next: it} }

// Update changes the row of prev so it holds next. prev is the state the
// caller last saw and guards the write.
func Update(prev, next item.Item) Action { return Action{prev: prev, next: next} }

// IsUpdate reports whether a is an Update.
func (a Action) IsUpdate() bool { return !a.prev.IsZero() }

func (a Action) descriptor() *item.Descriptor { return a.next.Descriptor() }

func (a Action) check() error {
	if a.next.IsZero() {
		return &InvariantViolation{Message: "action without an item"}
	}
	if !a.IsUpdate() {
		return nil
	}
	if a.prev.Descriptor().Table() != a.next.Descriptor().Table() {
		return &InvariantViolation{Message: fmt.Sprintf("update of %s into %s",
			a.prev.Descriptor().Name(), a.next.Descriptor().Name())}
	}
	oldID, err := a.prev.ID()
	if err != nil {
		return &InvariantViolation{Message: "update of an item that was never persisted"}
	}
	newID, err := a.next.ID()
	if err != nil || newID != oldID {
		return &InvariantViolation{Message: fmt.Sprintf("update of %s %d into a different row", a.prev.Descriptor().Name(), oldID)}
	}
	return nil
}

// Transaction executes actions atomically under the operation tag: either all
// of them take effect or none does. It returns the resulting items in action
// order; created items carry their new id.
//
// A batch that fails on a broken connection is retried on a new one.
func (s *Store) Transaction(ctx context.Context, operation string, actions ...Action) ([]item.Item, error) {
	for _, a := range actions {
		if err := a.check(); err != nil {
			return nil, err
		}
	}

	for {
		db, err := s.sup.Acquire(ctx)
		if err != nil {
			return nil, err
		}

		out, err := s.transaction(ctx, db, operation, actions)
		if err == nil || !conn.IsConnectionError(err) || ctx.Err() != nil {
			return out, err
		}

		s.logger.Warn("transaction lost its connection, retrying",
			"operation", operation,
			"error", err)
		if _, err := s.sup.Replace(ctx); err != nil {
			return nil, err
		}
	}
}

func (s *Store) transaction(ctx context.Context, db *sql.DB, operation string, actions []Action) ([]item.Item, error) {
	if err := s.ensureLogs(ctx, db); err != nil {
		return nil, err
	}

	names := []string{operation}
	for _, a := range actions {
		names = append(names, catalog.Names(a.descriptor())...)
	}
	if err := s.register(ctx, db, names...); err != nil {
		return nil, err
	}
	for _, a := range actions {
		if err := s.ensureTable(ctx, db, a.descriptor()); err != nil {
			return nil, err
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	out := make([]item.Item, 0, len(actions))
	for _, a := range actions {
		var (
			it  item.Item
			err error
		)
		if a.IsUpdate() {
			it, err = s.update(ctx, tx, operation, a.prev, a.next)
		} else {
			it, err = s.create(ctx, tx, operation, a.next)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	s.logger.Debug("transaction committed",
		"operation", operation,
		"actions", len(actions))
	return out, nil
}

func (s *Store) create(ctx context.Context, tx *sql.Tx, operation string, it item.Item) (item.Item, error) {
	query, args := insertStatement(s.dialect, it)
	var id int64
	err := tx.QueryRowContext(ctx, s.dialect.Rebind(query), args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return item.Item{}, &PersistenceError{Op: "insert", Table: it.Descriptor().Table(), Message: "no id returned"}
	}
	if err != nil {
		return item.Item{}, fmt.Errorf("insert %s: %w", it.Descriptor().Table(), err)
	}
	it = it.WithID(id)

	changes, err := item.Diff(item.Item{}, it)
	if err != nil {
		return item.Item{}, err
	}
	// Nothing changes from nothing to null.
	kept := changes[:0]
	for _, c := range changes {
		if c.Value != nil {
			kept = append(kept, c)
		}
	}
	if err := s.audit(ctx, tx, operation, it.Descriptor().Name(), id, kept); err != nil {
		return item.Item{}, err
	}
	return it, nil
}

func (s *Store) update(ctx context.Context, tx *sql.Tx, operation string, prev, next item.Item) (item.Item, error) {
	changes, err := item.Diff(prev, next)
	if err != nil {
		return item.Item{}, err
	}
	if len(changes) == 0 {
		return next, nil
	}
	for _, c := range changes {
		if item.IsIdentity(c.Field) {
			return item.Item{}, &ImmutableFieldError{Type: next.Descriptor().Name(), Field: c.Field}
		}
	}

	id, _ := prev.ID()
	query, args := updateStatement(s.dialect, prev, changes)
	res, err := tx.ExecContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return item.Item{}, fmt.Errorf("update %s: %w", next.Descriptor().Table(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return item.Item{}, fmt.Errorf("update %s: %w", next.Descriptor().Table(), err)
	}
	if n != 1 {
		return item.Item{}, &PersistenceError{
			Op:      "update",
			Table:   next.Descriptor().Table(),
			Message: fmt.Sprintf("row %d changed concurrently or missing: %d rows affected", id, n),
		}
	}

	if err := s.audit(ctx, tx, operation, next.Descriptor().Name(), id, changes); err != nil {
		return item.Item{}, err
	}
	return next, nil
}

func (s *Store) audit(ctx context.Context, tx *sql.Tx, operation, itemType string, id int64, changes []item.Change) error {
	if len(changes) == 0 {
		return nil
	}
	query := s.dialect.Rebind(fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s, %s, %s) VALUES (?, ?, ?, ?, ?, ?)",
		s.dialect.Quote(schema.AuditLogTable),
		s.dialect.Quote("datetime"), s.dialect.Quote("item_type"), s.dialect.Quote("item_id"),
		s.dialect.Quote("operation"), s.dialect.Quote("key"), s.dialect.Quote("value")))

	at := s.timestamp()
	for _, c := range changes {
		var value any
		if str, ok := item.Format(c.Value); ok {
			value = str
		}
		if _, err := tx.ExecContext(ctx, query, at, itemType, id, operation, c.Field, value); err != nil {
			return fmt.Errorf("audit %s.%s: %w", itemType, c.Field, err)
		}
	}
	return nil
}

// insertStatement inserts every field of it and returns the new id.
func insertStatement(d schema.Dialect, it item.Item) (string, []any) {
	desc := it.Descriptor()
	fields := desc.Fields()
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	args := make([]any, len(fields))
	for i, f := range fields {
		cols[i] = d.Quote(f.Name)
		marks[i] = "?"
		args[i] = toDriver(it.Get(f.Name))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		d.Quote(desc.Table()),
		strings.Join(cols, ", "),
		strings.Join(marks, ", "),
		d.Quote(item.FieldID)), args
}

// updateStatement sets the changed fields only. The WHERE clause repeats
// them with their previous values so a concurrent change makes it match nothing.
func updateStatement(d schema.Dialect, prev item.Item, changes []item.Change) (string, []any) {
	id, _ := prev.ID()
	set := make([]string, len(changes))
	guard := make([]string, 0, len(changes)+1)
	args := make([]any, 0, 2*len(changes)+1)

	for i, c := range changes {
		set[i] = d.Quote(c.Field) + " = ?"
		args = append(args, toDriver(c.Value))
	}
	guard = append(guard, d.Quote(item.FieldID)+" = ?")
	args = append(args, id)
	for _, c := range changes {
		guard = append(guard, d.NullSafeEqual(d.Quote(c.Field)))
		args = append(args, toDriver(prev.Get(c.Field)))
	}

	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		d.Quote(prev.Descriptor().Table()),
		strings.Join(set, ", "),
		strings.Join(guard, " AND ")), args
}
