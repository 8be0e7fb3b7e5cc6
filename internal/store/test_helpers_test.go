package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"codeberg.org/mentalblood/cnvyr/internal/item"
)

var (
	quiet = slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	epoch = time.Date(2024, 5, 17, 12, 30, 45, 123456789, time.UTC)

	phaseEnum = item.NewEnumType("Phase", "queued", "done")

	documentType = item.MustDefine("Document",
		item.Required("title", item.Text),
		item.Required("pages", item.Int),
		item.Required("urgent", item.Bool),
		item.Optional("score", item.Float),
		item.Optional("payload", item.Bytes),
		item.Optional("due", item.Time),
		item.RequiredEnum("phase", phaseEnum),
	)

	noteType = item.MustDefine("Note",
		item.Required("text", item.Text),
	)
)

// createTestStore creates a new store backed by a temporary SQLite file.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return openTestStore(t, filepath.Join(t.TempDir(), "test.db"), opts...)
}

func openTestStore(t *testing.T, path string, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithLogger(quiet)}, opts...)
	s, err := Open(context.Background(), Config{DSN: path}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newDocument creates an unsaved document; extra overrides default values.
func newDocument(t *testing.T, title string, extra map[string]any) item.Item {
	t.Helper()
	values := map[string]any{
		"title":  title,
		"pages":  int64(3),
		"urgent": false,
		"phase":  item.Symbol("queued"),
	}
	for k, v := range extra {
		values[k] = v
	}
	it, err := item.New(documentType, epoch, []byte("digest-of-"+title), values)
	require.NoError(t, err)
	return it
}

func with(t *testing.T, it item.Item, name string, value any) item.Item {
	t.Helper()
	out, err := it.With(name, value)
	require.NoError(t, err)
	return out
}

func create(t *testing.T, s *Store, it item.Item) item.Item {
	t.Helper()
	out, err := s.Transaction(context.Background(), "create", Create(it))
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0]
}

func loadAll(t *testing.T, s *Store, desc *item.Descriptor, where string, args ...any) []item.Item {
	t.Helper()
	out, err := s.LoadAll(context.Background(), desc, where, args...)
	require.NoError(t, err)
	return out
}

func catalogMembers(t *testing.T, s *Store) map[string]bool {
	t.Helper()
	db, err := s.DB(context.Background())
	require.NoError(t, err)
	rows, err := db.Query(s.Dialect().EnumMembersQuery())
	require.NoError(t, err)
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		out[n] = true
	}
	require.NoError(t, rows.Err())
	return out
}
