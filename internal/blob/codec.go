package blob

import (
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses stored blobs. Its suffix is appended to every path.
type Codec interface {
	Name() string
	Suffix() string
	Encode(dst io.Writer) (io.WriteCloser, error)
	Decode(src io.Reader) (io.ReadCloser, error)
}

// CodecByName returns a codec by configuration name. The empty name is gzip.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "gzip":
		return Gzip{}, nil
	case "zlib":
		return Zlib{}, nil
	case "zstd":
		return Zstd{}, nil
	case "snappy":
		return Snappy{}, nil
	case "identity", "none":
		return Identity{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Gzip is the default codec.
type Gzip struct{}

func (Gzip) Name() string   { return "gzip" }
func (Gzip) Suffix() string { return ".gz" }

func (Gzip) Encode(dst io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(dst, gzip.BestCompression)
}

func (Gzip) Decode(src io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(src)
}

type Zlib struct{}

func (Zlib) Name() string   { return "zlib" }
func (Zlib) Suffix() string { return ".zz" }

func (Zlib) Encode(dst io.Writer) (io.WriteCloser, error) {
	return zlib.NewWriterLevel(dst, zlib.BestCompression)
}

func (Zlib) Decode(src io.Reader) (io.ReadCloser, error) {
	return zlib.NewReader(src)
}

type Zstd struct{}

func (Zstd) Name() string   { return "zstd" }
func (Zstd) Suffix() string { return ".zst" }

func (Zstd) Encode(dst io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
}

func (Zstd) Decode(src io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return d.IOReadCloser(), nil
}

// Snappy uses the framed stream format.
type Snappy struct{}

func (Snappy) Name() string   { return "snappy" }
func (Snappy) Suffix() string { return ".sz" }

func (Snappy) Encode(dst io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(dst), nil
}

func (Snappy) Decode(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(src)), nil
}

// Identity stores blobs uncompressed, without a suffix.
type Identity struct{}

func (Identity) Name() string   { return "identity" }
func (Identity) Suffix() string { return "" }

func (Identity) Encode(dst io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{dst}, nil
}

func (Identity) Decode(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(src), nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
