package entity

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Wire kind tags for serialized property values. The serialized form is not
// order-sensitive (the sortable encoder handles ordering); msgpack is used
// purely for the durable entity blob in the primary table.
const (
	wireInt64 uint8 = iota + 1
	wireFloat64
	wireBool
	wireString
	wireBytes
	wireTime
	wireGeoPoint
	wireKeyRef
	wireUserTag
)

type wireElem struct {
	Kind string `msgpack:"k"`
	ID   int64  `msgpack:"i,omitempty"`
	Name string `msgpack:"n,omitempty"`
}

type wireUser struct {
	Email        string `msgpack:"e"`
	AuthDomain   string `msgpack:"a,omitempty"`
	Nickname     string `msgpack:"n,omitempty"`
	ObfuscatedID string `msgpack:"o,omitempty"`
}

type wireValue struct {
	Kind       uint8      `msgpack:"t"`
	Int        int64      `msgpack:"i,omitempty"`
	Float      float64    `msgpack:"f,omitempty"`
	Bool       bool       `msgpack:"b,omitempty"`
	Str        string     `msgpack:"s,omitempty"`
	Bytes      []byte     `msgpack:"y,omitempty"`
	TimeMicros int64      `msgpack:"m,omitempty"`
	Lat        float64    `msgpack:"la,omitempty"`
	Lng        float64    `msgpack:"lo,omitempty"`
	RefApp     string     `msgpack:"ra,omitempty"`
	RefNS      string     `msgpack:"rn,omitempty"`
	RefPath    []wireElem `msgpack:"rp,omitempty"`
	User       *wireUser  `msgpack:"u,omitempty"`
}

type wireProp struct {
	Name    string    `msgpack:"n"`
	Indexed bool      `msgpack:"x"`
	Value   wireValue `msgpack:"v"`
}

type wireEntity struct {
	App       string     `msgpack:"a"`
	Namespace string     `msgpack:"ns,omitempty"`
	Path      []wireElem `msgpack:"p"`
	Group     []wireElem `msgpack:"g,omitempty"`
	Props     []wireProp `msgpack:"pr,omitempty"`
}

// Marshal serializes an entity to its durable blob form.
func Marshal(e Entity) ([]byte, error) {
	we := wireEntity{
		App:       e.Key.App,
		Namespace: e.Key.Namespace,
		Path:      toWireElems(e.Key.Path),
		Group:     toWireElems(e.Group),
		Props:     make([]wireProp, 0, len(e.Properties)),
	}
	for _, p := range e.Properties {
		wv, err := toWireValue(p.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal property %q: %w", p.Name, err)
		}
		we.Props = append(we.Props, wireProp{Name: p.Name, Indexed: p.Indexed, Value: wv})
	}
	return msgpack.Marshal(&we)
}

// Unmarshal restores an entity from its durable blob form.
func Unmarshal(data []byte) (Entity, error) {
	var we wireEntity
	if err := msgpack.Unmarshal(data, &we); err != nil {
		return Entity{}, fmt.Errorf("unmarshal entity: %w", err)
	}
	e := Entity{
		Key: Key{
			App:       we.App,
			Namespace: we.Namespace,
			Path:      fromWireElems(we.Path),
		},
		Group: fromWireElems(we.Group),
	}
	if len(we.Props) > 0 {
		e.Properties = make([]Property, 0, len(we.Props))
	}
	for _, p := range we.Props {
		v, err := fromWireValue(p.Value)
		if err != nil {
			return Entity{}, fmt.Errorf("unmarshal property %q: %w", p.Name, err)
		}
		e.Properties = append(e.Properties, Property{Name: p.Name, Indexed: p.Indexed, Value: v})
	}
	return e, nil
}

func toWireElems(path []PathElement) []wireElem {
	if path == nil {
		return nil
	}
	out := make([]wireElem, len(path))
	for i, el := range path {
		out[i] = wireElem{Kind: el.Kind, ID: el.ID, Name: el.Name}
	}
	return out
}

func fromWireElems(elems []wireElem) []PathElement {
	if elems == nil {
		return nil
	}
	out := make([]PathElement, len(elems))
	for i, el := range elems {
		out[i] = PathElement{Kind: el.Kind, ID: el.ID, Name: el.Name}
	}
	return out
}

func toWireValue(v Value) (wireValue, error) {
	switch val := v.(type) {
	case Int64:
		return wireValue{Kind: wireInt64, Int: int64(val)}, nil
	case Float64:
		return wireValue{Kind: wireFloat64, Float: float64(val)}, nil
	case Bool:
		return wireValue{Kind: wireBool, Bool: bool(val)}, nil
	case String:
		return wireValue{Kind: wireString, Str: string(val)}, nil
	case Bytes:
		return wireValue{Kind: wireBytes, Bytes: []byte(val)}, nil
	case Time:
		return wireValue{Kind: wireTime, TimeMicros: time.Time(val).UnixMicro()}, nil
	case GeoPoint:
		return wireValue{Kind: wireGeoPoint, Lat: val.Lat, Lng: val.Lng}, nil
	case KeyRef:
		return wireValue{
			Kind:    wireKeyRef,
			RefApp:  val.App,
			RefNS:   val.Namespace,
			RefPath: toWireElems(val.Path),
		}, nil
	case User:
		return wireValue{Kind: wireUserTag, User: &wireUser{
			Email:        val.Email,
			AuthDomain:   val.AuthDomain,
			Nickname:     val.Nickname,
			ObfuscatedID: val.ObfuscatedID,
		}}, nil
	case nil:
		return wireValue{}, fmt.Errorf("nil property value")
	default:
		return wireValue{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromWireValue(wv wireValue) (Value, error) {
	switch wv.Kind {
	case wireInt64:
		return Int64(wv.Int), nil
	case wireFloat64:
		return Float64(wv.Float), nil
	case wireBool:
		return Bool(wv.Bool), nil
	case wireString:
		return String(wv.Str), nil
	case wireBytes:
		return Bytes(wv.Bytes), nil
	case wireTime:
		return Time(time.UnixMicro(wv.TimeMicros).UTC()), nil
	case wireGeoPoint:
		return GeoPoint{Lat: wv.Lat, Lng: wv.Lng}, nil
	case wireKeyRef:
		return KeyRef(Key{App: wv.RefApp, Namespace: wv.RefNS, Path: fromWireElems(wv.RefPath)}), nil
	case wireUserTag:
		if wv.User == nil {
			return nil, fmt.Errorf("user value missing payload")
		}
		return User{
			Email:        wv.User.Email,
			AuthDomain:   wv.User.AuthDomain,
			Nickname:     wv.User.Nickname,
			ObfuscatedID: wv.User.ObfuscatedID,
		}, nil
	default:
		return nil, fmt.Errorf("unknown wire value kind %d", wv.Kind)
	}
}
