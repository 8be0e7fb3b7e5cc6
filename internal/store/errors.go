package store

import (
	"errors"
	"fmt"
	"strings"
)

// InvariantViolation reports an Update whose old and new items do not name
// the same row.
type InvariantViolation struct {
	Message string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Message
}

func (e *InvariantViolation) Kind() string { return "InvariantViolation" }

// ImmutableFieldError reports an Update changing an identity field.
type ImmutableFieldError struct {
	Type  string
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("%s.%s is immutable", e.Type, e.Field)
}

func (e *ImmutableFieldError) Kind() string { return "ImmutableFieldError" }

// PersistenceError reports a write the database did not apply: an insert
// that returned no id, or an update that matched no row.
type PersistenceError struct {
	Op      string
	Table   string
	Message string
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Table, e.Message)
}

func (e *PersistenceError) Kind() string { return "PersistenceError" }

// IsInvariantViolation returns true if err is an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// IsImmutableField returns true if err is an ImmutableFieldError.
func IsImmutableField(err error) bool {
	var ie *ImmutableFieldError
	return errors.As(err, &ie)
}

// IsPersistence returns true if err is a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

type kinded interface {
	Kind() string
}

// ErrorKind names the class of err for the error log: the Kind of the first
// error in its chain that has one, else its dynamic type.
func ErrorKind(err error) string {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
