package schema

import (
	"errors"
	"fmt"

	"codeberg.org/mentalblood/cnvyr/internal/item"
)

// SchemaError reports a field that has no database mapping, or a schema
// change that cannot be applied additively.
type SchemaError struct {
	Table     string
	Field     string
	FieldKind item.Kind
	Reason    string
}

func (e *SchemaError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = fmt.Sprintf("can not convert type %s to database type", e.FieldKind)
	}
	switch {
	case e.Table != "" && e.Field != "":
		return fmt.Sprintf("schema %s.%s: %s", e.Table, e.Field, reason)
	case e.Field != "":
		return fmt.Sprintf("schema field %s: %s", e.Field, reason)
	default:
		return "schema: " + reason
	}
}

// Kind names the error class for the error log.
func (e *SchemaError) Kind() string { return "SchemaError" }

// IsSchemaError returns true if err is a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
