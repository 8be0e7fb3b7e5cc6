package item

import (
	"bytes"
	"fmt"
	"slices"
	"time"
)

// Item is an immutable, validated record of one item type.
// The zero Item has no type and is used as "nothing" by Diff.
type Item struct {
	desc   *Descriptor
	id     int64
	hasID  bool
	values []any
}

// New constructs an item of type desc. Fields missing from values are nil.
// Fails with TypeMismatchError on unknown fields, nil required fields, and
// values whose runtime type is not exactly the declared one.
func New(desc *Descriptor, created time.Time, digest []byte, values map[string]any) (Item, error) {
	all := make(map[string]any, len(values)+2)
	for k, v := range values {
		all[k] = v
	}
	for _, k := range []string{FieldCreated, FieldDigest} {
		if _, dup := values[k]; dup {
			return Item{}, &TypeMismatchError{Type: desc.name, Field: k, Value: values[k]}
		}
	}
	all[FieldCreated] = created
	all[FieldDigest] = digest
	return build(desc, all)
}

// MustNew is like New but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustNew(desc *Descriptor, created time.Time, digest []byte, values map[string]any) Item {
	it, err := New(desc, created, digest, values)
	if err != nil {
		panic(err)
	}
	return it
}

// Restore rebuilds a persisted item from its column values, id included.
func Restore(desc *Descriptor, id int64, values map[string]any) (Item, error) {
	it, err := build(desc, values)
	if err != nil {
		return Item{}, err
	}
	it.id, it.hasID = id, true
	return it, nil
}

func build(desc *Descriptor, values map[string]any) (Item, error) {
	for k, v := range values {
		if _, ok := desc.index[k]; !ok {
			return Item{}, &TypeMismatchError{Type: desc.name, Field: k, Value: v}
		}
	}

	it := Item{desc: desc, values: make([]any, len(desc.fields))}
	for i, f := range desc.fields {
		v := values[f.Name]
		if !f.accepts(v) {
			want := f
			return Item{}, &TypeMismatchError{Type: desc.name, Field: f.Name, Want: &want, Value: v}
		}
		it.values[i] = normalize(v)
	}
	return it, nil
}

// normalize detaches mutable values, turns a nil []byte into null, and
// fixes times to UTC at microsecond precision, the finest both dialects
// store, so equal instants compare and store identically.
func normalize(v any) any {
	switch val := v.(type) {
	case []byte:
		if val == nil {
			return nil
		}
		return bytes.Clone(val)
	case time.Time:
		return val.UTC().Truncate(time.Microsecond)
	default:
		return v
	}
}

// Descriptor returns the item's type, nil for the zero Item.
func (it Item) Descriptor() *Descriptor { return it.desc }

// IsZero reports whether it is the zero Item.
func (it Item) IsZero() bool { return it.desc == nil }

// ID returns the surrogate key assigned by the store.
func (it Item) ID() (int64, error) {
	if !it.hasID {
		name := ""
		if it.desc != nil {
			name = it.desc.name
		}
		return 0, &IdentityNotAssignedError{Type: name}
	}
	return it.id, nil
}

// HasID reports whether the item was persisted.
func (it Item) HasID() bool { return it.hasID }

// WithID returns a copy of it carrying id.
func (it Item) WithID(id int64) Item {
	it.values = slices.Clone(it.values)
	it.id, it.hasID = id, true
	return it
}

// Created returns the identity creation time.
func (it Item) Created() time.Time {
	t, _ := it.Get(FieldCreated).(time.Time)
	return t
}

// Digest returns the identity payload digest.
func (it Item) Digest() []byte {
	b, _ := it.Get(FieldDigest).([]byte)
	return b
}

// Get returns the value of field name, nil when null or not declared.
func (it Item) Get(name string) any {
	if it.desc == nil {
		return nil
	}
	i, ok := it.desc.index[name]
	if !ok {
		return nil
	}
	return normalize(it.values[i])
}

// Values returns all field values keyed by field name, id excluded.
func (it Item) Values() map[string]any {
	out := make(map[string]any, len(it.values))
	if it.desc == nil {
		return out
	}
	for i, f := range it.desc.fields {
		out[f.Name] = normalize(it.values[i])
	}
	return out
}

// With returns a validated copy of it with field name set to value.
// The id is kept, so the copy describes a new state of the same row.
func (it Item) With(name string, value any) (Item, error) {
	if it.desc == nil {
		return Item{}, fmt.Errorf("with %s: zero item", name)
	}
	values := it.Values()
	if _, ok := it.desc.index[name]; !ok {
		return Item{}, &TypeMismatchError{Type: it.desc.name, Field: name, Value: value}
	}
	values[name] = value
	out, err := build(it.desc, values)
	if err != nil {
		return Item{}, err
	}
	out.id, out.hasID = it.id, it.hasID
	return out, nil
}

// Equal compares type and all field values. The id is ignored.
func (it Item) Equal(other Item) bool {
	if it.desc != other.desc {
		return false
	}
	for i := range it.values {
		if !valueEqual(it.values[i], other.values[i]) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}

// String renders the item for logs.
func (it Item) String() string {
	if it.desc == nil {
		return "Item{}"
	}
	var buf bytes.Buffer
	buf.WriteString(it.desc.name)
	buf.WriteByte('{')
	if it.hasID {
		fmt.Fprintf(&buf, "id=%d", it.id)
	}
	for i, f := range it.desc.fields {
		if i > 0 || it.hasID {
			buf.WriteString(", ")
		}
		s, ok := Format(it.values[i])
		if !ok {
			s = "<nil>"
		}
		fmt.Fprintf(&buf, "%s=%s", f.Name, s)
	}
	buf.WriteByte('}')
	return buf.String()
}
