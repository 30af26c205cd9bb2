package sortkey

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/stratum/internal/entity"
)

// DecodeValue reverses EncodeValue. User values decode to their normalized
// form (no nickname, no obfuscated id); everything else round-trips exactly,
// with timestamps restored at microsecond precision in UTC.
func DecodeValue(b []byte) (entity.Value, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty encoded value")
	}
	tag, payload := b[0], b[1:]
	switch tag {
	case tagInt64:
		v, err := decodeOrderedInt64(payload)
		if err != nil {
			return nil, err
		}
		return entity.Int64(v), nil
	case tagTime:
		v, err := decodeOrderedInt64(payload)
		if err != nil {
			return nil, err
		}
		return entity.Time(time.UnixMicro(v).UTC()), nil
	case tagBool:
		if len(payload) != 1 {
			return nil, fmt.Errorf("malformed bool encoding")
		}
		return entity.Bool(payload[0] != 0), nil
	case tagString:
		return entity.String(payload), nil
	case tagBytes:
		return entity.Bytes(append([]byte(nil), payload...)), nil
	case tagFloat64:
		f, err := decodeOrderedFloat64(payload)
		if err != nil {
			return nil, err
		}
		return entity.Float64(f), nil
	case tagGeoPoint:
		if len(payload) != 16 {
			return nil, fmt.Errorf("malformed geo-point encoding")
		}
		lat, err := decodeOrderedFloat64(payload[:8])
		if err != nil {
			return nil, err
		}
		lng, err := decodeOrderedFloat64(payload[8:])
		if err != nil {
			return nil, err
		}
		return entity.GeoPoint{Lat: lat, Lng: lng}, nil
	case tagKeyRef:
		parts := bytes.SplitN(payload, []byte{0}, 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed key reference encoding")
		}
		path, err := DecodePath(parts[2])
		if err != nil {
			return nil, err
		}
		return entity.KeyRef(entity.Key{
			App:       string(parts[0]),
			Namespace: string(parts[1]),
			Path:      path,
		}), nil
	case tagUser:
		parts := bytes.SplitN(payload, []byte{0}, 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed user encoding")
		}
		return entity.User{Email: string(parts[0]), AuthDomain: string(parts[1])}, nil
	default:
		return nil, fmt.Errorf("unknown value tag 0x%02x", tag)
	}
}

// DecodePath reverses EncodePath. Element values that are exactly ten
// decimal digits parse as numeric ids, everything else as names.
func DecodePath(b []byte) ([]entity.PathElement, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty encoded path")
	}
	raw := strings.Split(string(b), string(pathSep))
	path := make([]entity.PathElement, 0, len(raw))
	for _, part := range raw {
		kind, val, ok := strings.Cut(part, string(elemSep))
		if !ok || kind == "" {
			return nil, fmt.Errorf("malformed path element %q", part)
		}
		el := entity.PathElement{Kind: kind}
		if id, numeric := parsePaddedID(val); numeric {
			el.ID = id
		} else {
			el.Name = val
		}
		path = append(path, el)
	}
	return path, nil
}

func parsePaddedID(s string) (int64, bool) {
	if len(s) != idDigits {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func decodeOrderedInt64(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("malformed int64 encoding")
	}
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63)), nil
}

func decodeOrderedFloat64(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("malformed float64 encoding")
	}
	bits := binary.BigEndian.Uint64(b)
	if bits&(1<<63) != 0 {
		bits &^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}
