package item

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testEnum = NewEnumType("E", "A", "B")

	testType = MustDefine("C",
		Required("test_bool", Bool),
		Required("test_string", Text),
		Required("test_int", Int),
		Required("test_float", Float),
		Required("test_bytes", Bytes),
		Required("test_datetime", Time),
		RequiredEnum("test_enum", testEnum),
		Optional("test_note", Text),
	)

	optionalBytesType = MustDefine("OptionalBytes", Optional("blob", Bytes))
)

var testCreated = time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

func validValues() map[string]any {
	return map[string]any{
		"test_bool":     true,
		"test_string":   "lalala",
		"test_int":      int64(123),
		"test_float":    123.123,
		"test_bytes":    []byte("lalala"),
		"test_datetime": testCreated,
		"test_enum":     Symbol("A"),
	}
}

func TestNew_Valid(t *testing.T) {
	it, err := New(testType, testCreated, []byte("digest"), validValues())
	require.NoError(t, err)

	assert.Equal(t, true, it.Get("test_bool"))
	assert.Equal(t, "lalala", it.Get("test_string"))
	assert.Nil(t, it.Get("test_note"))
	assert.Equal(t, []byte("digest"), it.Digest())
	assert.True(t, it.Created().Equal(testCreated))
}

func TestNew_RuntimeTypeChecking(t *testing.T) {
	for _, f := range testType.Fields() {
		if IsIdentity(f.Name) {
			continue
		}
		t.Run(f.Name, func(t *testing.T) {
			var invalid any = false
			if f.Kind == Bool {
				invalid = int64(0)
			}
			values := validValues()
			values[f.Name] = invalid

			_, err := New(testType, testCreated, []byte("digest"), values)
			require.Error(t, err)
			assert.True(t, IsTypeMismatch(err), "got %v", err)
		})
	}
}

func TestNew_IntIsNotInt64(t *testing.T) {
	values := validValues()
	values["test_int"] = 123

	_, err := New(testType, testCreated, []byte("digest"), values)
	assert.True(t, IsTypeMismatch(err))
}

func TestNew_MissingRequiredField(t *testing.T) {
	values := validValues()
	delete(values, "test_string")

	_, err := New(testType, testCreated, []byte("digest"), values)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "C.test_string expects value of type string")
}

func TestNew_UnknownField(t *testing.T) {
	values := validValues()
	values["nope"] = "x"

	_, err := New(testType, testCreated, []byte("digest"), values)
	require.Error(t, err)
	assert.True(t, IsTypeMismatch(err))
	assert.Contains(t, err.Error(), `has no field "nope"`)
}

func TestNew_EnumMembership(t *testing.T) {
	values := validValues()
	values["test_enum"] = Symbol("Z")
	_, err := New(testType, testCreated, []byte("digest"), values)
	assert.True(t, IsTypeMismatch(err))

	values["test_enum"] = "A" // plain string is not a Symbol
	_, err = New(testType, testCreated, []byte("digest"), values)
	assert.True(t, IsTypeMismatch(err))
}

func TestNew_IdentityFieldsInValuesRejected(t *testing.T) {
	values := validValues()
	values[FieldDigest] = []byte("other")

	_, err := New(testType, testCreated, []byte("digest"), values)
	assert.True(t, IsTypeMismatch(err))
}

func TestNew_NilDigestIsRequired(t *testing.T) {
	var digest []byte
	_, err := New(testType, testCreated, digest, validValues())
	assert.True(t, IsTypeMismatch(err))

	values := validValues()
	_, err = build(testType, map[string]any{
		FieldCreated:    testCreated,
		"test_bool":     values["test_bool"],
		"test_string":   values["test_string"],
		"test_int":      values["test_int"],
		"test_float":    values["test_float"],
		"test_bytes":    values["test_bytes"],
		"test_datetime": values["test_datetime"],
		"test_enum":     values["test_enum"],
	})
	assert.True(t, IsTypeMismatch(err))
}

func TestNew_NilBytes(t *testing.T) {
	values := validValues()
	values["test_bytes"] = []byte(nil)
	_, err := New(testType, testCreated, []byte("digest"), values)
	assert.True(t, IsTypeMismatch(err))

	values["test_bytes"] = []byte{}
	it, err := New(testType, testCreated, []byte("digest"), values)
	require.NoError(t, err)
	assert.NotNil(t, it.Get("test_bytes"))

	opt := MustNew(optionalBytesType, testCreated, []byte("digest"), map[string]any{"blob": []byte(nil)})
	assert.Nil(t, opt.Get("blob"))
	assert.True(t, opt.Equal(MustNew(optionalBytesType, testCreated, []byte("digest"), nil)))
	_, isSet := Format(opt.Get("blob"))
	assert.False(t, isSet)
}

func TestNew_RejectsNaN(t *testing.T) {
	values := validValues()
	values["test_float"] = math.NaN()
	_, err := New(testType, testCreated, []byte("digest"), values)
	assert.True(t, IsTypeMismatch(err))

	values["test_float"] = math.Inf(1)
	_, err = New(testType, testCreated, []byte("digest"), values)
	assert.NoError(t, err)
}

func TestNew_TruncatesTimeToMicroseconds(t *testing.T) {
	precise := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)
	values := validValues()
	values["test_datetime"] = precise

	it := MustNew(testType, precise, []byte("digest"), values)
	assert.Equal(t, 123456000, it.Created().Nanosecond())
	assert.Equal(t, 123456000, it.Get("test_datetime").(time.Time).Nanosecond())

	later := MustNew(testType, precise.Add(200*time.Nanosecond), []byte("digest"), values)
	assert.True(t, it.Equal(later))
}

func TestNew_CopiesBytes(t *testing.T) {
	values := validValues()
	raw := values["test_bytes"].([]byte)

	it := MustNew(testType, testCreated, []byte("digest"), values)
	raw[0] = 'X'

	assert.Equal(t, []byte("lalala"), it.Get("test_bytes"))
}

func TestNew_NormalizesTimeToUTC(t *testing.T) {
	zone := time.FixedZone("plus2", 2*60*60)
	local := testCreated.In(zone)

	it := MustNew(testType, local, []byte("digest"), validValues())

	assert.Equal(t, time.UTC, it.Created().Location())
	assert.True(t, it.Created().Equal(testCreated))
}

func TestID_NotAssigned(t *testing.T) {
	it := MustNew(testType, testCreated, []byte("digest"), validValues())

	_, err := it.ID()
	require.Error(t, err)
	assert.True(t, IsIdentityNotAssigned(err))
	assert.False(t, it.HasID())

	withID := it.WithID(42)
	id, err := withID.ID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestEqual_IgnoresID(t *testing.T) {
	a := MustNew(testType, testCreated, []byte("digest"), validValues()).WithID(1)
	b := MustNew(testType, testCreated, []byte("digest"), validValues()).WithID(2)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestEqual_DetectsContentChange(t *testing.T) {
	a := MustNew(testType, testCreated, []byte("digest"), validValues())
	b, err := a.With("test_int", int64(321))
	require.NoError(t, err)

	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestEqual_TimeInstantsAcrossZones(t *testing.T) {
	values := validValues()
	a := MustNew(testType, testCreated, []byte("digest"), values)

	values["test_datetime"] = testCreated.In(time.FixedZone("minus5", -5*60*60))
	b := MustNew(testType, testCreated, []byte("digest"), values)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestWith_ValidatesAndKeepsID(t *testing.T) {
	a := MustNew(testType, testCreated, []byte("digest"), validValues()).WithID(7)

	b, err := a.With("test_note", "hello")
	require.NoError(t, err)
	id, err := b.ID()
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, "hello", b.Get("test_note"))

	_, err = a.With("test_bool", "yes")
	assert.True(t, IsTypeMismatch(err))

	_, err = a.With("missing", "x")
	assert.True(t, IsTypeMismatch(err))
}

func TestRestore_SetsID(t *testing.T) {
	values := validValues()
	values[FieldCreated] = testCreated
	values[FieldDigest] = []byte("digest")

	it, err := Restore(testType, 9, values)
	require.NoError(t, err)

	id, err := it.ID()
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.True(t, it.Equal(MustNew(testType, testCreated, []byte("digest"), validValues())))
}

func TestString(t *testing.T) {
	it := MustNew(testType, testCreated, []byte("digest"), validValues()).WithID(3)

	s := it.String()
	assert.Contains(t, s, "C{id=3")
	assert.Contains(t, s, "test_note=<nil>")
	assert.Contains(t, s, "test_enum=A")
}
