package entity

import "time"

// Value is a sealed interface over the closed set of property value kinds.
// Only Int64, Float64, Bool, String, Bytes, Time, GeoPoint, KeyRef and User
// implement it.
type Value interface {
	propertyValue() // sealed
}

// Int64 is a 64-bit integer property value.
type Int64 int64

func (Int64) propertyValue() {}

// Float64 is a double-precision float property value.
type Float64 float64

func (Float64) propertyValue() {}

// Bool is a boolean property value.
type Bool bool

func (Bool) propertyValue() {}

// String is a text property value.
type String string

func (String) propertyValue() {}

// Bytes is an opaque blob property value.
type Bytes []byte

func (Bytes) propertyValue() {}

// Time is a timestamp property value. Stored with microsecond precision
// in UTC; sub-microsecond detail is dropped on round trip.
type Time time.Time

func (Time) propertyValue() {}

// GeoPoint is a latitude/longitude property value.
type GeoPoint struct {
	Lat float64
	Lng float64
}

func (GeoPoint) propertyValue() {}

// KeyRef is a reference-to-key property value.
type KeyRef Key

func (KeyRef) propertyValue() {}

// User is a user-identity property value.
//
// Nickname and ObfuscatedID are presentation-only: two User values with the
// same Email and AuthDomain are logically equal and must encode identically
// (the sortable encoder normalizes them away).
type User struct {
	Email        string
	AuthDomain   string
	Nickname     string
	ObfuscatedID string
}

func (User) propertyValue() {}

// Property is a single named, optionally indexed value on an entity.
// Multi-valued properties appear as repeated Property entries with the
// same name.
type Property struct {
	Name    string
	Value   Value
	Indexed bool
}
