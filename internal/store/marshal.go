package store

import (
	"bytes"
	"fmt"
	"time"

	"codeberg.org/mentalblood/cnvyr/internal/item"
)

// toDriver converts a field value into a database/sql argument.
func toDriver(v any) any {
	switch val := v.(type) {
	case item.Symbol:
		return string(val)
	case time.Time:
		return val.UTC()
	default:
		return v
	}
}

// fromDriver converts a scanned column back into the runtime type of f.
// Drivers differ: SQLite may hand back integers for booleans, lib/pq hands
// back enum labels as bytes.
func fromDriver(f item.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case item.Bool:
		switch val := v.(type) {
		case bool:
			return val, nil
		case int64:
			return val != 0, nil
		}
	case item.Text:
		switch val := v.(type) {
		case string:
			return val, nil
		case []byte:
			return string(val), nil
		}
	case item.Int:
		if val, ok := v.(int64); ok {
			return val, nil
		}
	case item.Float:
		switch val := v.(type) {
		case float64:
			return val, nil
		case int64:
			return float64(val), nil
		}
	case item.Bytes:
		switch val := v.(type) {
		case []byte:
			return bytes.Clone(val), nil
		case string:
			return []byte(val), nil
		}
	case item.Time:
		if val, ok := v.(time.Time); ok {
			return val.UTC(), nil
		}
	case item.Enum:
		switch val := v.(type) {
		case string:
			return item.Symbol(val), nil
		case []byte:
			return item.Symbol(val), nil
		}
	}
	return nil, fmt.Errorf("column %s: cannot convert %T to %s", f.Name, v, f.Kind)
}
