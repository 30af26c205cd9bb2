// Package sortkey implements the order-preserving binary encoding used for
// primary-table paths and property-index values. For any two values of the
// same kind, a < b under the value's natural ordering iff Encode(a) sorts
// before Encode(b) under byte-lexicographic comparison, which lets the
// relational backend reproduce native value ordering with plain BLOB
// comparisons.
package sortkey

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/stratum/internal/entity"
)

// Kind tags. Tag order fixes the cross-kind sort order; within a kind the
// payload encoding is monotonic.
const (
	tagInt64    byte = 0x10
	tagTime     byte = 0x18
	tagBool     byte = 0x20
	tagString   byte = 0x28
	tagBytes    byte = 0x30
	tagFloat64  byte = 0x38
	tagGeoPoint byte = 0x40
	tagKeyRef   byte = 0x48
	tagUser     byte = 0x50
)

// Path elements are joined by pathSep; id and name values follow the kind
// after elemSep. Both characters are rejected by key validation, so the
// encoding is collision-free.
const (
	pathSep = '!'
	elemSep = ':'
)

// pathRangeTerminator sorts after every byte that can appear in an encoded
// path, so appending it to an ancestor's encoding yields an exclusive upper
// bound covering all descendants.
const pathRangeTerminator byte = 0xff

// zero-padded width for numeric ids, so that numeric order matches string
// order within the supported id range.
const idDigits = 10

// EncodeValue encodes a property value into its sortable byte form.
func EncodeValue(v entity.Value) ([]byte, error) {
	switch val := v.(type) {
	case entity.Int64:
		return appendOrderedInt64(
			[]byte{tagInt64}, int64(val)), nil
	case entity.Time:
		return appendOrderedInt64(
			[]byte{tagTime}, time.Time(val).UnixMicro()), nil
	case entity.Bool:
		if val {
			return []byte{tagBool, 1}, nil
		}
		return []byte{tagBool, 0}, nil
	case entity.String:
		return append([]byte{tagString}, val...), nil
	case entity.Bytes:
		return append([]byte{tagBytes}, val...), nil
	case entity.Float64:
		return appendOrderedFloat64([]byte{tagFloat64}, float64(val)), nil
	case entity.GeoPoint:
		buf := appendOrderedFloat64([]byte{tagGeoPoint}, val.Lat)
		return appendOrderedFloat64(buf, val.Lng), nil
	case entity.KeyRef:
		buf := []byte{tagKeyRef}
		buf = append(buf, val.App...)
		buf = append(buf, 0)
		buf = append(buf, val.Namespace...)
		buf = append(buf, 0)
		return append(buf, EncodePath(val.Path)...), nil
	case entity.User:
		// Logically equal identities must encode identically: the nickname
		// and obfuscated id are stripped and the email NFC-normalized.
		buf := []byte{tagUser}
		buf = append(buf, norm.NFC.String(val.Email)...)
		buf = append(buf, 0)
		return append(buf, norm.NFC.String(val.AuthDomain)...), nil
	case nil:
		return nil, fmt.Errorf("cannot encode nil value")
	default:
		return nil, fmt.Errorf("cannot encode value of type %T", v)
	}
}

// EncodePath encodes a key path so that byte order equals
// ancestor-prefix-then-sibling order: each element renders as
// "<kind>:<zero-padded id or name>", elements joined by '!'.
func EncodePath(path []entity.PathElement) []byte {
	var b strings.Builder
	for i, el := range path {
		if i > 0 {
			b.WriteByte(pathSep)
		}
		b.WriteString(el.Kind)
		b.WriteByte(elemSep)
		if el.Name != "" {
			b.WriteString(el.Name)
		} else {
			fmt.Fprintf(&b, "%0*d", idDigits, el.ID)
		}
	}
	return []byte(b.String())
}

// PrefixRange returns [min, max) bounds covering an ancestor path and every
// path beneath it.
func PrefixRange(path []entity.PathElement) (min, max []byte) {
	min = EncodePath(path)
	max = make([]byte, len(min), len(min)+1)
	copy(max, min)
	max = append(max, pathRangeTerminator)
	return min, max
}

// appendOrderedInt64 appends a big-endian encoding with the sign bit
// flipped, mapping int64 order onto unsigned byte order.
func appendOrderedInt64(buf []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(buf, uint64(v)^(1<<63))
}

// appendOrderedFloat64 appends the IEEE-754 bits transformed so that
// numeric order matches unsigned byte order: negative values have all bits
// flipped, non-negative values have the sign bit set.
func appendOrderedFloat64(buf []byte, f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return binary.BigEndian.AppendUint64(buf, bits)
}
