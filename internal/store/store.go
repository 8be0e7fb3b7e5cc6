package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"codeberg.org/mentalblood/cnvyr/internal/catalog"
	"codeberg.org/mentalblood/cnvyr/internal/conn"
	"codeberg.org/mentalblood/cnvyr/internal/item"
	"codeberg.org/mentalblood/cnvyr/internal/schema"
)

const defaultPageSize = 256

// Config selects the database.
type Config struct {
	// Dialect defaults to SQLite.
	Dialect schema.Dialect
	DSN     string
	Retry   conn.Policy
}

// Store persists items through one supervised connection.
type Store struct {
	dialect  schema.Dialect
	sup      *conn.Supervisor
	catalog  *catalog.Catalog
	logger   *slog.Logger
	now      func() time.Time
	pageSize int

	mu     sync.Mutex
	tables map[string]bool
	logs   bool
}

// Option configures a Store.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	now       func() time.Time
	connector conn.Connector
	pageSize  int
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithClock sets the source of audit and error log timestamps.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithConnector replaces the connector built from Config.
func WithConnector(c conn.Connector) Option { return func(o *options) { o.connector = c } }

// WithPageSize sets how many rows Load fetches per query.
func WithPageSize(n int) Option { return func(o *options) { o.pageSize = n } }

// Open connects to the database and prepares the audit log and catalog.
// Connecting is retried according to cfg.Retry.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	o := options{
		logger:   slog.Default(),
		now:      time.Now,
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := cfg.Dialect
	if d == nil {
		d = schema.SQLite{}
	}
	if o.connector == nil {
		o.connector = conn.Open(d.DriverName(), cfg.DSN, d.Init()...)
	}
	if o.pageSize <= 0 {
		o.pageSize = defaultPageSize
	}

	s := &Store{
		dialect:  d,
		sup:      conn.NewSupervisor(o.connector, cfg.Retry, o.logger),
		catalog:  catalog.New(d),
		logger:   o.logger,
		now:      o.now,
		pageSize: o.pageSize,
		tables:   make(map[string]bool),
	}

	db, err := s.sup.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ensureLogs(ctx, db); err != nil {
		s.sup.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.sup.Close()
}

// Dialect returns the database dialect.
func (s *Store) Dialect() schema.Dialect { return s.dialect }

// DB returns the live handle, reconnecting if needed.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB(ctx context.Context) (*sql.DB, error) {
	return s.sup.Acquire(ctx)
}

// Wipe drops every table and the catalog. Intended for tests.
func (s *Store) Wipe(ctx context.Context) error {
	db, err := s.sup.Acquire(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dialect.Wipe(ctx, db); err != nil {
		return err
	}
	s.tables = make(map[string]bool)
	s.logs = false
	s.catalog.Reset()
	s.logger.Info("store wiped")
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// register adds names to the catalog on the autocommit handle: they must be
// committed before a transaction can write them.
func (s *Store) register(ctx context.Context, db *sql.DB, names ...string) error {
	if err := s.catalog.Register(ctx, db, names...); err != nil {
		return fmt.Errorf("register names: %w", err)
	}
	return nil
}

// ensureLogs creates the catalog and both log tables once.
func (s *Store) ensureLogs(ctx context.Context, db *sql.DB) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logs {
		return nil
	}
	if err := s.register(ctx, db); err != nil {
		return err
	}
	stmts := append(schema.AuditLogDDL(s.dialect), schema.ErrorLogDDL(s.dialect)...)
	if err := s.execAll(ctx, db, stmts); err != nil {
		return fmt.Errorf("create log tables: %w", err)
	}
	s.logs = true
	return nil
}

// ensureTable creates the table of desc, or adds its missing nullable
// columns, once per process.
func (s *Store) ensureTable(ctx context.Context, db *sql.DB, desc *item.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[desc.Table()] {
		return nil
	}

	existing, err := s.columns(ctx, db, desc.Table())
	if err != nil {
		return err
	}

	var stmts []string
	if len(existing) == 0 {
		ddl, err := schema.Synthesize(s.dialect, desc)
		if err != nil {
			return err
		}
		stmts = ddl.Statements()
	} else {
		stmts, err = schema.MissingColumns(s.dialect, desc, existing)
		if err != nil {
			return err
		}
	}

	if err := s.execAll(ctx, db, stmts); err != nil {
		return fmt.Errorf("create table %s: %w", desc.Table(), err)
	}
	s.tables[desc.Table()] = true
	if len(existing) > 0 && len(stmts) > 0 {
		s.logger.Info("table grown", "table", desc.Table(), "statements", len(stmts))
	}
	return nil
}

func (s *Store) columns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	query, args := s.dialect.ColumnsQuery(table)
	rows, err := db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns of %s: %w", table, err)
	}
	return cols, nil
}

// execAll runs DDL statements in one transaction.
func (s *Store) execAll(ctx context.Context, db *sql.DB, stmts []string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return tx.Commit()
}
