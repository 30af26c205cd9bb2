package sortkey

import (
	"time"

	"github.com/roach88/stratum/internal/entity"
)

// RepresentativeValue maps a stored value's leading tag byte to a zero
// exemplar of that kind. Schema discovery reads only the tag byte of each
// stored value and reports these exemplars instead of real data.
func RepresentativeValue(tag byte) (entity.Value, bool) {
	switch tag {
	case tagInt64:
		return entity.Int64(0), true
	case tagTime:
		return entity.Time(time.Unix(0, 0).UTC()), true
	case tagBool:
		return entity.Bool(false), true
	case tagString:
		return entity.String("none"), true
	case tagBytes:
		return entity.Bytes(nil), true
	case tagFloat64:
		return entity.Float64(0), true
	case tagGeoPoint:
		return entity.GeoPoint{}, true
	case tagKeyRef:
		ref := entity.KeyRef(entity.Key{
			App:  "none",
			Path: []entity.PathElement{{Kind: "none", Name: "none"}},
		})
		return ref, true
	case tagUser:
		return entity.User{Email: "none", AuthDomain: "none"}, true
	}
	return nil, false
}
