package blob

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// DigestMismatchError reports stored bytes that do not hash to the requested
// digest. Err is set when the stored bytes could not even be decoded.
type DigestMismatchError struct {
	Path string
	Want []byte
	Have []byte
	Err  error
}

func (e *DigestMismatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: cannot decode stored blob: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s digest: have %s, want %s", e.Path,
		base64.RawURLEncoding.EncodeToString(e.Have),
		base64.RawURLEncoding.EncodeToString(e.Want))
}

func (e *DigestMismatchError) Unwrap() error { return e.Err }

// Kind names the error class for the error log.
func (e *DigestMismatchError) Kind() string { return "DigestMismatchError" }

// IsDigestMismatch returns true if err is a DigestMismatchError.
func IsDigestMismatch(err error) bool {
	var dm *DigestMismatchError
	return errors.As(err, &dm)
}
