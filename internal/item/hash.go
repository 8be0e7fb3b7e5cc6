package item

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DomainItem separates item hashes from any other sha256 use.
// Version suffix enables future encoding changes.
const DomainItem = "cnvyr/item/v1"

// Hash returns a content hash consistent with Equal: equal items hash equal.
// Format: SHA256(domain + 0x00 + canonical(item)), hex encoded.
func (it Item) Hash() string {
	h := sha256.New()
	h.Write([]byte(DomainItem))
	h.Write([]byte{0x00})
	h.Write(it.canonical())
	return hex.EncodeToString(h.Sum(nil))
}

// canonical encodes the type name and every field as
// name 0x00 tag value, with length prefixes on variable-size parts.
// Strings are NFC normalized at this boundary only.
func (it Item) canonical() []byte {
	var buf []byte
	if it.desc == nil {
		return buf
	}
	buf = appendString(buf, it.desc.name)
	for i, f := range it.desc.fields {
		buf = appendString(buf, f.Name)
		buf = appendValue(buf, it.values[i])
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	s = norm.NFC.String(s)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendValue(buf []byte, v any) []byte {
	switch val := v.(type) {
	case nil:
		return append(buf, 'n')
	case bool:
		if val {
			return append(buf, 'b', 1)
		}
		return append(buf, 'b', 0)
	case string:
		return appendString(append(buf, 's'), val)
	case int64:
		return binary.BigEndian.AppendUint64(append(buf, 'i'), uint64(val))
	case float64:
		if val == 0 {
			val = 0 // -0 == 0
		}
		return binary.BigEndian.AppendUint64(append(buf, 'f'), math.Float64bits(val))
	case []byte:
		buf = binary.BigEndian.AppendUint32(append(buf, 'x'), uint32(len(val)))
		return append(buf, val...)
	case time.Time:
		buf = binary.BigEndian.AppendUint64(append(buf, 't'), uint64(val.Unix()))
		return binary.BigEndian.AppendUint32(buf, uint32(val.Nanosecond()))
	case Symbol:
		return appendString(append(buf, 'e'), string(val))
	default:
		return buf
	}
}
