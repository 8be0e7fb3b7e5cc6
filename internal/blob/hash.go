package blob

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
)

// Hasher computes blob digests.
type Hasher struct {
	Name string
	New  func() hash.Hash
}

// Digest returns the digest of data.
func (h Hasher) Digest(data []byte) []byte {
	w := h.New()
	w.Write(data)
	return w.Sum(nil)
}

var (
	SHA512 = Hasher{Name: "sha512", New: sha512.New}
	SHA256 = Hasher{Name: "sha256", New: sha256.New}
	BLAKE3 = Hasher{Name: "blake3", New: func() hash.Hash { return blake3.New() }}
	// XXH3 is a fast non-cryptographic 64-bit hash. It detects corruption,
	// not tampering.
	XXH3 = Hasher{Name: "xxh3", New: func() hash.Hash { return xxh3.New() }}
)

// HasherByName returns a hasher by configuration name. The empty name is sha512.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", "sha512":
		return SHA512, nil
	case "sha256":
		return SHA256, nil
	case "blake3":
		return BLAKE3, nil
	case "xxh3":
		return XXH3, nil
	default:
		return Hasher{}, fmt.Errorf("unknown hash %q", name)
	}
}
