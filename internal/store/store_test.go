package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mentalblood/cnvyr/internal/conn"
	"codeberg.org/mentalblood/cnvyr/internal/item"
	"codeberg.org/mentalblood/cnvyr/internal/schema"
)

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)
	db, err := s.DB(context.Background())
	require.NoError(t, err)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var timeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestOpen_CreatesLogTables(t *testing.T) {
	s := createTestStore(t)
	db, err := s.DB(context.Background())
	require.NoError(t, err)

	for _, table := range []string{schema.AuditLogTable, schema.ErrorLogTable, schema.EnumCatalog} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	first := openTestStore(t, path)
	create(t, first, newDocument(t, "kept", nil))
	require.NoError(t, first.Close())

	second := openTestStore(t, path)
	docs := loadAll(t, second, documentType, "")
	require.Len(t, docs, 1)
	assert.Equal(t, "kept", docs[0].Get("title"))
}

func TestCreate_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	doc := newDocument(t, "full", map[string]any{
		"pages":   int64(-42),
		"urgent":  true,
		"score":   0.25,
		"payload": []byte{0, 1, 2, 255},
		"due":     epoch.AddDate(0, 1, 0),
		"phase":   item.Symbol("done"),
	})

	saved := create(t, s, doc)
	id, err := saved.ID()
	require.NoError(t, err)
	assert.Positive(t, id)

	loaded := loadAll(t, s, documentType, "")
	require.Len(t, loaded, 1)
	assert.True(t, doc.Equal(loaded[0]), "loaded %s, want %s", loaded[0], doc)
	loadedID, err := loaded[0].ID()
	require.NoError(t, err)
	assert.Equal(t, id, loadedID)
}

func TestCreate_RoundTripNulls(t *testing.T) {
	s := createTestStore(t)
	doc := newDocument(t, "sparse", nil)

	create(t, s, doc)

	loaded := loadAll(t, s, documentType, "")
	require.Len(t, loaded, 1)
	assert.True(t, doc.Equal(loaded[0]))
	assert.Nil(t, loaded[0].Get("score"))
	assert.Nil(t, loaded[0].Get("payload"))
	assert.Nil(t, loaded[0].Get("due"))
}

func TestCreate_IDsIncrease(t *testing.T) {
	s := createTestStore(t)
	out, err := s.Transaction(context.Background(), "batch",
		Create(newDocument(t, "a", nil)),
		Create(newDocument(t, "b", nil)),
	)
	require.NoError(t, err)
	require.Len(t, out, 2)

	a, _ := out[0].ID()
	b, _ := out[1].ID()
	assert.Greater(t, b, a)
}

func TestCreate_RegistersNames(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Transaction(context.Background(), "ingest", Create(newDocument(t, "x", nil)))
	require.NoError(t, err)

	members := catalogMembers(t, s)
	for _, name := range []string{"ingest", "Document", "created", "digest", "title", "phase", "queued", "done"} {
		assert.True(t, members[name], name)
	}
}

func TestTransaction_RetriesOnBrokenConnection(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	calls := 0
	connector := func(ctx context.Context) (*sql.DB, error) {
		calls++
		return conn.Open("sqlite3", path, schema.SQLite{}.Init()...)(ctx)
	}
	s := openTestStore(t, path, WithConnector(connector))

	db, err := s.DB(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := s.Transaction(ctx, "create", Create(newDocument(t, "after-drop", nil)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, calls)
	assert.Len(t, loadAll(t, s, documentType, ""), 1)
}

func TestWipe(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	create(t, s, newDocument(t, "gone", nil))
	require.Error(t, s.WithErrorLogging(ctx, "op", func(context.Context) error {
		return &PersistenceError{Op: "x", Table: "y", Message: "z"}
	}))

	require.NoError(t, s.Wipe(ctx))

	records, err := s.Errors(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, loadAll(t, s, documentType, ""))

	create(t, s, newDocument(t, "again", nil))
	assert.Len(t, loadAll(t, s, documentType, ""), 1)
	assert.True(t, catalogMembers(t, s)["Document"])
}

var grownV1 = item.MustDefine("Grown",
	item.Required("title", item.Text),
)

// redefineGrown declares the next version of Grown, as a restarted process would.
func redefineGrown(t *testing.T, fields ...item.Field) *item.Descriptor {
	t.Helper()
	d, err := item.Redefine("Grown", fields...)
	require.NoError(t, err)
	return d
}

func TestEnsureTable_AddsNullableColumns(t *testing.T) {
	grownV2 := redefineGrown(t,
		item.Required("title", item.Text),
		item.Optional("note", item.Text),
	)
	path := filepath.Join(t.TempDir(), "test.db")
	v1 := openTestStore(t, path)
	old := item.MustNew(grownV1, epoch, []byte("d"), map[string]any{"title": "first"})
	create(t, v1, old)
	require.NoError(t, v1.Close())

	v2 := openTestStore(t, path)
	loaded := loadAll(t, v2, grownV2, "")
	require.Len(t, loaded, 1)
	assert.Equal(t, "first", loaded[0].Get("title"))
	assert.Nil(t, loaded[0].Get("note"))

	updated := with(t, loaded[0], "note", "added later")
	_, err := v2.Transaction(context.Background(), "annotate", Update(loaded[0], updated))
	require.NoError(t, err)

	loaded = loadAll(t, v2, grownV2, "")
	assert.Equal(t, "added later", loaded[0].Get("note"))
}

func TestEnsureTable_RequiredColumnIsSchemaError(t *testing.T) {
	grownRequired := redefineGrown(t,
		item.Required("title", item.Text),
		item.Required("rank", item.Int),
	)
	path := filepath.Join(t.TempDir(), "test.db")
	v1 := openTestStore(t, path)
	create(t, v1, item.MustNew(grownV1, epoch, []byte("d"), map[string]any{"title": "first"}))
	require.NoError(t, v1.Close())

	v3 := openTestStore(t, path)
	_, err := v3.LoadAll(context.Background(), grownRequired, "")
	require.Error(t, err)
	assert.True(t, schema.IsSchemaError(err))
}
