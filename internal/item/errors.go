package item

import (
	"errors"
	"fmt"
)

// TypeMismatchError reports a field value whose runtime type does not match
// the declared type, a missing required field, or an unknown field name.
type TypeMismatchError struct {
	Type  string
	Field string
	Want  *Field // nil when the field is not declared at all
	Value any
}

func (e *TypeMismatchError) Error() string {
	if e.Want == nil {
		return fmt.Sprintf("%s has no field %q", e.Type, e.Field)
	}
	want := e.Want.Kind.String()
	if e.Want.Kind == Enum && e.Want.Enum != nil {
		want = fmt.Sprintf("member of %s %v", e.Want.Enum.Name, e.Want.Enum.Members)
	}
	if e.Want.Nullable {
		want += " or nil"
	}
	return fmt.Sprintf("%s.%s expects value of type %s, got %v of type %T", e.Type, e.Field, want, e.Value, e.Value)
}

// Kind names the error class for the error log.
func (e *TypeMismatchError) Kind() string { return "TypeMismatchError" }

// IdentityNotAssignedError is returned when reading the id of an item that
// has not been persisted yet.
type IdentityNotAssignedError struct {
	Type string
}

func (e *IdentityNotAssignedError) Error() string {
	return fmt.Sprintf("%s: id is not assigned before persistence", e.Type)
}

// Kind names the error class for the error log.
func (e *IdentityNotAssignedError) Kind() string { return "IdentityNotAssignedError" }

// DefinitionError reports an invalid item type declaration.
type DefinitionError struct {
	Type    string
	Message string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("define %s: %s", e.Type, e.Message)
}

// Kind names the error class for the error log.
func (e *DefinitionError) Kind() string { return "DefinitionError" }

// IsTypeMismatch returns true if err is a TypeMismatchError.
func IsTypeMismatch(err error) bool {
	var te *TypeMismatchError
	return errors.As(err, &te)
}

// IsIdentityNotAssigned returns true if err is an IdentityNotAssignedError.
func IsIdentityNotAssigned(err error) bool {
	var ie *IdentityNotAssignedError
	return errors.As(err, &ie)
}
