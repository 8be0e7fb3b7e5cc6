// Package blob stores payloads out of band, content addressed and compressed.
//
// A blob is keyed by (created, digest). Its path is a pure function of the key:
//
//	root/YYYY/MM/DD/HH/MM_SS_<base64url(digest)><extension><codec suffix>
//
// so no index is kept. Load re-verifies the digest of every blob it returns.
package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Files is a blob store rooted at a directory.
type Files struct {
	root      string
	extension string
	codec     Codec
	hasher    Hasher
	now       func() time.Time
}

// Option configures Files.
type Option func(*Files)

// WithCodec sets the compression codec. The default is Gzip.
func WithCodec(c Codec) Option { return func(f *Files) { f.codec = c } }

// WithHasher sets the digest function. The default is SHA512.
func WithHasher(h Hasher) Option { return func(f *Files) { f.hasher = h } }

// WithClock sets the source of creation times.
func WithClock(now func() time.Time) Option { return func(f *Files) { f.now = now } }

// New creates a blob store. extension must start with a dot.
func New(root, extension string, opts ...Option) (*Files, error) {
	if !strings.HasPrefix(extension, ".") {
		return nil, fmt.Errorf("expect extension starting with '.', got %q", extension)
	}
	f := &Files{
		root:      root,
		extension: extension,
		codec:     Gzip{},
		hasher:    SHA512,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the root directory.
func (f *Files) Root() string { return f.root }

// Codec returns the configured codec.
func (f *Files) Codec() Codec { return f.codec }

// Hasher returns the configured digest function.
func (f *Files) Hasher() Hasher { return f.hasher }

// Path returns where the blob keyed by (created, digest) lives.
func (f *Files) Path(created time.Time, digest []byte) string {
	c := created.UTC()
	name := fmt.Sprintf("%02d_%02d_%s%s%s",
		c.Minute(), c.Second(),
		base64.RawURLEncoding.EncodeToString(digest),
		f.extension, f.codec.Suffix())
	return filepath.Join(f.root,
		fmt.Sprintf("%04d", c.Year()),
		fmt.Sprintf("%02d", int(c.Month())),
		fmt.Sprintf("%02d", c.Day()),
		fmt.Sprintf("%02d", c.Hour()),
		name)
}

// Save compresses and stores data, returning its key. The file appears
// atomically: readers never observe a partial blob.
func (f *Files) Save(ctx context.Context, data []byte) (time.Time, []byte, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, nil, err
	}

	created := f.now().UTC().Truncate(time.Second)
	digest := f.hasher.Digest(data)
	path := f.Path(created, digest)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return time.Time{}, nil, fmt.Errorf("save blob: %w", err)
	}
	if err := f.writeAtomic(path, data); err != nil {
		return time.Time{}, nil, fmt.Errorf("save blob: %w", err)
	}
	return created, digest, nil
}

func (f *Files) writeAtomic(path string, data []byte) (err error) {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	w, err := f.codec.Encode(out)
	if err != nil {
		return fmt.Errorf("%s encoder: %w", f.codec.Name(), err)
	}
	if _, err = w.Write(data); err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads the blob keyed by (created, digest) and verifies its digest.
func (f *Files) Load(ctx context.Context, created time.Time, digest []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := f.Path(created, digest)
	stored, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load blob: %w", err)
	}

	data, err := f.decode(stored)
	if err != nil {
		return nil, &DigestMismatchError{Path: path, Want: digest, Err: err}
	}

	if have := f.hasher.Digest(data); !bytes.Equal(have, digest) {
		return nil, &DigestMismatchError{Path: path, Want: digest, Have: have}
	}
	return data, nil
}

func (f *Files) decode(stored []byte) ([]byte, error) {
	r, err := f.codec.Decode(bytes.NewReader(stored))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Exists reports whether a blob is stored under the key. It does not verify it.
func (f *Files) Exists(created time.Time, digest []byte) (bool, error) {
	_, err := os.Stat(f.Path(created, digest))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Size returns the stored, compressed size of a blob.
func (f *Files) Size(created time.Time, digest []byte) (int64, error) {
	info, err := os.Stat(f.Path(created, digest))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
