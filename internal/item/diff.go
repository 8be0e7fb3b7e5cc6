package item

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// Change is one field-value pair of a diff.
type Change struct {
	Field string
	Value any
}

// Diff returns the fields whose value in next differs from prev, with next's
// values, in declaration order. A zero prev yields every field of next.
// prev and next must share a descriptor unless prev is zero.
func Diff(prev, next Item) ([]Change, error) {
	if next.desc == nil {
		return nil, fmt.Errorf("diff: zero next item")
	}
	if prev.desc != nil && prev.desc != next.desc {
		return nil, fmt.Errorf("diff: %s against %s", prev.desc.name, next.desc.name)
	}

	var changes []Change
	for i, f := range next.desc.fields {
		if prev.desc != nil && valueEqual(prev.values[i], next.values[i]) {
			continue
		}
		changes = append(changes, Change{Field: f.Name, Value: normalize(next.values[i])})
	}
	return changes, nil
}

// Format stringifies a field value for the audit log.
// Returns false for nil.
func Format(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case bool:
		return strconv.FormatBool(val), true
	case string:
		return val, true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), true
	case []byte:
		return base64.RawURLEncoding.EncodeToString(val), true
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), true
	case Symbol:
		return string(val), true
	default:
		return fmt.Sprint(val), true
	}
}
