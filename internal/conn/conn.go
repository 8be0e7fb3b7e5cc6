// Package conn supervises the single live database connection.
//
// A Supervisor owns one *sql.DB limited to one open connection. When an
// operation observes a broken connection the handle is replaced wholesale.
// Connecting is retried with exponential backoff until it succeeds, the
// context is cancelled, or the policy's MaxElapsed runs out.
package conn

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Connector establishes a new database handle.
type Connector func(ctx context.Context) (*sql.DB, error)

// Open returns a Connector for a database/sql driver. Each handle is limited
// to a single connection, pinged, then initialized with the given statements.
func Open(driverName, dsn string, init ...string) Connector {
	return func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open(driverName, dsn)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to open database: %w", err))
		}

		// One connection: operations never interleave on the handle.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		for _, stmt := range init {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to execute %q: %w", stmt, err)
			}
		}
		return db, nil
	}
}

// Policy bounds the reconnect backoff. MaxElapsed 0 retries forever.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultPolicy retries forever, backing off from 100ms up to 10s.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = p.MaxElapsed
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// Supervisor is safe for concurrent use, but the handle it returns carries a
// single connection: concurrent callers queue on it.
type Supervisor struct {
	connect Connector
	policy  Policy
	logger  *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// NewSupervisor creates a supervisor. No connection is made until Acquire.
func NewSupervisor(connect Connector, policy Policy, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{connect: connect, policy: policy, logger: logger}
}

// Acquire returns the live handle, connecting first if there is none.
func (s *Supervisor) Acquire(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db, nil
	}
	return s.connectLocked(ctx)
}

// Replace discards the current handle and connects again.
func (s *Supervisor) Replace(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discardLocked()
	return s.connectLocked(ctx)
}

// Do runs op against the live handle until it succeeds. After every failure
// the handle is discarded and the next attempt reconnects.
func (s *Supervisor) Do(ctx context.Context, op func(*sql.DB) error) error {
	attempt := func() error {
		db, err := s.Acquire(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := op(db); err != nil {
			s.mu.Lock()
			if s.db == db {
				s.discardLocked()
			}
			s.mu.Unlock()
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("operation failed, replacing connection",
			"error", err,
			"retry_in", wait)
	}
	if err := backoff.RetryNotify(attempt, s.policy.backOff(ctx), notify); err != nil {
		if IsConnectionError(err) {
			return err
		}
		return &ConnectionError{Err: err}
	}
	return nil
}

// Close closes the live handle, if any.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Supervisor) connectLocked(ctx context.Context) (*sql.DB, error) {
	var db *sql.DB
	attempt := func() error {
		d, err := s.connect(ctx)
		if err != nil {
			return err
		}
		db = d
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("connect failed",
			"error", err,
			"retry_in", wait)
	}
	if err := backoff.RetryNotify(attempt, s.policy.backOff(ctx), notify); err != nil {
		return nil, &ConnectionError{Err: err}
	}
	s.db = db
	s.logger.Debug("connected")
	return db, nil
}

func (s *Supervisor) discardLocked() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Debug("close stale connection", "error", err)
	}
	s.db = nil
}

// ConnectionError reports that no connection could be established.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Kind names the error class for the error log.
func (e *ConnectionError) Kind() string { return "ConnectionError" }

// IsConnectionError reports whether err means the connection is unusable.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
