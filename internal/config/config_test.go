package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, DefaultPath, c.Database.Path)
	assert.Equal(t, ".bin", c.Blobs.Extension)
	assert.Equal(t, "gzip", c.Blobs.Codec)
	assert.Equal(t, "sha512", c.Blobs.Hash)
	assert.Equal(t, 100*time.Millisecond, c.Retry.InitialInterval)
	assert.Zero(t, c.Retry.MaxElapsed)

	dsn, err := c.DSN()
	require.NoError(t, err)
	assert.Equal(t, DefaultPath, dsn)
}

func TestParse_Empty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestParse_Full(t *testing.T) {
	c, err := Parse([]byte(`
database:
  driver: postgres
  host: db.internal
  port: 6432
  name: cnvyr
  user: pipeline
  password: "it's secret"
blobs:
  root: /var/lib/cnvyr
  extension: .xml
  codec: zstd
  hash: blake3
retry:
  initial_interval: 250ms
  max_interval: 30s
  max_elapsed: 5m
`))
	require.NoError(t, err)

	assert.Equal(t, "zstd", c.Blobs.Codec)
	assert.Equal(t, 250*time.Millisecond, c.Retry.InitialInterval)
	assert.Equal(t, 5*time.Minute, c.Policy().MaxElapsed)

	dsn, err := c.DSN()
	require.NoError(t, err)
	assert.Equal(t, `host=db.internal port=6432 dbname=cnvyr user=pipeline password='it\'s secret'`, dsn)
	assert.NotContains(t, c.Redacted(), "secret")

	d, err := c.Dialect()
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	sc, err := c.Store()
	require.NoError(t, err)
	assert.Equal(t, dsn, sc.DSN)
	assert.Equal(t, 30*time.Second, sc.Retry.MaxInterval)
}

func TestParse_ExplicitDSNWins(t *testing.T) {
	c, err := Parse([]byte("database:\n  driver: postgres\n  dsn: postgres://u:p@h/db\n  host: ignored\n"))
	require.NoError(t, err)
	dsn, err := c.DSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@h/db", dsn)
	assert.Equal(t, "postgres://u:xxxxx@h/db", c.Redacted())
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte("blobs:\n  rooot: /tmp\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rooot")
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"codec", "blobs:\n  codec: lz4\n"},
		{"hash", "blobs:\n  hash: md5\n"},
		{"extension", "blobs:\n  extension: xml\n"},
		{"driver", "database:\n  driver: mysql\n"},
		{"port", "database:\n  port: 70000\n"},
		{"duration", "retry:\n  max_interval: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestParse_CUEReportsPath(t *testing.T) {
	_, err := Parse([]byte("blobs:\n  codec: lz4\n"))
	require.Error(t, err)
	require.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "blobs.codec")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cnvyr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blobs:\n  codec: snappy\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	f, err := c.Files()
	require.NoError(t, err)
	assert.Equal(t, "snappy", f.Codec().Name())
	assert.Equal(t, "sha512", f.Hasher().Name)
	assert.Equal(t, DefaultBlobRoot, f.Root())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
