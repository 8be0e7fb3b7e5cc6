package item

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// Names of the fields every item type carries.
const (
	FieldID      = "id"
	FieldCreated = "created"
	FieldDigest  = "digest"
)

var identityFields = []Field{
	Required(FieldCreated, Time),
	Required(FieldDigest, Bytes),
}

// identifiers end up unquoted in log rows and as SQL column names, keep them plain.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Descriptor is the field schema of one item type.
// Fields are ordered: identity fields first, then declared fields.
type Descriptor struct {
	name   string
	fields []Field
	index  map[string]int
}

var (
	registryMu sync.RWMutex
	registry   = map[string]*Descriptor{}
)

// Define declares an item type and registers it under name.
// Field names are lowercased. The identity fields are prepended implicitly.
// Type names are unique, and so are the tables they map to: "Widget" and
// "widget" cannot both be defined.
func Define(name string, fields ...Field) (*Descriptor, error) {
	d, err := newDescriptor(name, fields)
	if err != nil {
		return nil, err
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		return nil, &DefinitionError{Type: name, Message: "type already defined"}
	}
	if err := checkTable(d); err != nil {
		return nil, err
	}
	registry[name] = d
	return d, nil
}

// Redefine replaces the registered declaration of name, as a process
// restarted with a grown schema would declare it. Existing descriptors stay
// valid. The new fields reach the table only as far as additive growth
// allows.
func Redefine(name string, fields ...Field) (*Descriptor, error) {
	d, err := newDescriptor(name, fields)
	if err != nil {
		return nil, err
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if err := checkTable(d); err != nil {
		return nil, err
	}
	registry[name] = d
	return d, nil
}

// checkTable rejects d when another registered type maps to its table.
// Callers hold registryMu.
func checkTable(d *Descriptor) error {
	for other, od := range registry {
		if other != d.name && od.Table() == d.Table() {
			return &DefinitionError{Type: d.name, Message: fmt.Sprintf("table %q already used by type %s", d.Table(), other)}
		}
	}
	return nil
}

func newDescriptor(name string, fields []Field) (*Descriptor, error) {
	if !identifier.MatchString(name) {
		return nil, &DefinitionError{Type: name, Message: "type name must be an identifier"}
	}

	d := &Descriptor{
		name:   name,
		fields: make([]Field, 0, len(identityFields)+len(fields)),
		index:  make(map[string]int, len(identityFields)+len(fields)),
	}
	for _, f := range identityFields {
		d.index[f.Name] = len(d.fields)
		d.fields = append(d.fields, f)
	}

	for _, f := range fields {
		f.Name = strings.ToLower(f.Name)
		if err := checkField(name, f); err != nil {
			return nil, err
		}
		if _, dup := d.index[f.Name]; dup {
			return nil, &DefinitionError{Type: name, Message: fmt.Sprintf("duplicate field %q", f.Name)}
		}
		if f.Enum != nil {
			f.Enum = NewEnumType(f.Enum.Name, f.Enum.Members...)
		}
		d.index[f.Name] = len(d.fields)
		d.fields = append(d.fields, f)
	}
	return d, nil
}

// MustDefine is like Define but panics on error.
// Use for package-level declarations.
func MustDefine(name string, fields ...Field) *Descriptor {
	d, err := Define(name, fields...)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (*Descriptor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[name]
	return d, ok
}

func checkField(typeName string, f Field) error {
	switch {
	case !identifier.MatchString(f.Name):
		return &DefinitionError{Type: typeName, Message: fmt.Sprintf("field name %q must be an identifier", f.Name)}
	case f.Name == FieldID || IsIdentity(f.Name):
		return &DefinitionError{Type: typeName, Message: fmt.Sprintf("field name %q is reserved", f.Name)}
	case !f.Kind.Valid():
		return &DefinitionError{Type: typeName, Message: fmt.Sprintf("field %q has invalid kind %d", f.Name, int(f.Kind))}
	case f.Kind == Enum && (f.Enum == nil || len(f.Enum.Members) == 0):
		return &DefinitionError{Type: typeName, Message: fmt.Sprintf("enum field %q needs an enum type with members", f.Name)}
	case f.Kind != Enum && f.Enum != nil:
		return &DefinitionError{Type: typeName, Message: fmt.Sprintf("field %q of kind %s cannot carry an enum type", f.Name, f.Kind)}
	}
	if f.Enum != nil {
		for _, m := range f.Enum.Members {
			if !identifier.MatchString(m) {
				return &DefinitionError{Type: typeName, Message: fmt.Sprintf("enum member %q must be an identifier", m)}
			}
		}
	}
	return nil
}

// IsIdentity reports whether name is one of the immutable identity fields.
func IsIdentity(name string) bool {
	return name == FieldCreated || name == FieldDigest
}

// Name returns the declared type name.
func (d *Descriptor) Name() string { return d.name }

// Table returns the table name derived from the type name.
func (d *Descriptor) Table() string { return strings.ToLower(d.name) }

// Fields returns the ordered fields, identity fields included.
func (d *Descriptor) Fields() []Field { return slices.Clone(d.fields) }

// Field returns the field declared under name.
func (d *Descriptor) Field(name string) (Field, bool) {
	i, ok := d.index[name]
	if !ok {
		return Field{}, false
	}
	return d.fields[i], true
}

// EnumTypes returns the distinct enum types referenced by fields.
func (d *Descriptor) EnumTypes() []*EnumType {
	var out []*EnumType
	seen := map[string]bool{}
	for _, f := range d.fields {
		if f.Enum != nil && !seen[f.Enum.Name] {
			seen[f.Enum.Name] = true
			out = append(out, f.Enum)
		}
	}
	return out
}
