package item

import (
	"math"
	"slices"
	"time"
)

// Kind is the declared type of a field.
type Kind int

const (
	KindInvalid Kind = iota
	Bool
	Text
	Int
	Float
	Bytes
	Time
	Enum
)

var kindNames = [...]string{
	KindInvalid: "invalid",
	Bool:        "bool",
	Text:        "string",
	Int:         "int64",
	Float:       "float64",
	Bytes:       "[]byte",
	Time:        "time.Time",
	Enum:        "item.Symbol",
}

// String returns the Go type a value of this kind must have.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "invalid"
	}
	return kindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k > KindInvalid && k <= Enum
}

// Symbol is the value of an Enum field: the name of one member of its EnumType.
type Symbol string

// EnumType is a closed set of symbolic names.
type EnumType struct {
	Name    string
	Members []string
}

// NewEnumType creates an EnumType with the given members.
func NewEnumType(name string, members ...string) *EnumType {
	return &EnumType{Name: name, Members: slices.Clone(members)}
}

// Has reports whether s names a member of e.
func (e *EnumType) Has(s Symbol) bool {
	return e != nil && slices.Contains(e.Members, string(s))
}

// Field declares one column of an item type.
type Field struct {
	Name     string
	Kind     Kind
	Nullable bool
	Enum     *EnumType // only for Kind == Enum
}

// Required declares a NOT NULL field.
func Required(name string, kind Kind) Field {
	return Field{Name: name, Kind: kind}
}

// Optional declares a nullable field.
func Optional(name string, kind Kind) Field {
	return Field{Name: name, Kind: kind, Nullable: true}
}

// RequiredEnum declares a NOT NULL field holding a member of e.
func RequiredEnum(name string, e *EnumType) Field {
	return Field{Name: name, Kind: Enum, Enum: e}
}

// OptionalEnum declares a nullable field holding a member of e.
func OptionalEnum(name string, e *EnumType) Field {
	return Field{Name: name, Kind: Enum, Enum: e, Nullable: true}
}

// accepts reports whether v has exactly the runtime type f declares.
// A nil []byte is null. NaN is rejected: it is not equal to itself and
// SQLite stores it as NULL.
func (f Field) accepts(v any) bool {
	if v == nil {
		return f.Nullable
	}
	switch f.Kind {
	case Bool:
		_, ok := v.(bool)
		return ok
	case Text:
		_, ok := v.(string)
		return ok
	case Int:
		_, ok := v.(int64)
		return ok
	case Float:
		x, ok := v.(float64)
		return ok && !math.IsNaN(x)
	case Bytes:
		b, ok := v.([]byte)
		return ok && (b != nil || f.Nullable)
	case Time:
		_, ok := v.(time.Time)
		return ok
	case Enum:
		s, ok := v.(Symbol)
		return ok && f.Enum.Has(s)
	default:
		return false
	}
}
