package cursor

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/stratum/internal/dserr"
)

// markerVersion prefixes every compiled cursor so stale formats are
// rejected instead of misparsed.
const markerVersion = "c1"

const offsetDigits = 10

// Marker is a portable cursor position: the order key of the last
// delivered row plus the number of results delivered so far.
type Marker struct {
	OrderKey []byte
	Offset   int
}

// Encode renders the marker as an opaque string handed to clients.
func (m Marker) Encode() string {
	return fmt.Sprintf("%s:%s!%0*d",
		markerVersion, hex.EncodeToString(m.OrderKey), offsetDigits, m.Offset)
}

// ParseMarker decodes a client-provided marker string.
func ParseMarker(s string) (Marker, error) {
	version, rest, ok := strings.Cut(s, ":")
	if !ok || version != markerVersion {
		return Marker{}, dserr.New(dserr.CodeBadRequest, "malformed cursor")
	}
	keyHex, offsetStr, ok := strings.Cut(rest, "!")
	if !ok || len(offsetStr) != offsetDigits {
		return Marker{}, dserr.New(dserr.CodeBadRequest, "malformed cursor")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return Marker{}, dserr.New(dserr.CodeBadRequest, "malformed cursor")
	}
	offset, err := strconv.Atoi(offsetStr)
	if err != nil || offset < 0 {
		return Marker{}, dserr.New(dserr.CodeBadRequest, "malformed cursor")
	}
	return Marker{OrderKey: key, Offset: offset}, nil
}
