// Package index manages composite index definitions: their lifecycle state
// machine, the per-app registry, and definition files.
package index

import (
	"fmt"
	"strings"
)

// State is a composite index lifecycle state.
type State string

const (
	StateWriteOnly State = "WRITE_ONLY"
	StateReadWrite State = "READ_WRITE"
	StateError     State = "ERROR"
	StateDeleted   State = "DELETED"
)

// stateTransitions enumerates the legal lifecycle transitions. Anything
// absent here is rejected.
var stateTransitions = map[State][]State{
	StateWriteOnly: {StateReadWrite, StateDeleted, StateError},
	StateReadWrite: {StateDeleted},
	StateError:     {StateDeleted},
	StateDeleted:   {StateError},
}

// CanTransition reports whether moving from one state to another is legal.
// A no-op transition (same state) is always allowed.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, next := range stateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SortProperty is one component of a composite index's sort order.
type SortProperty struct {
	Name       string `msgpack:"n"`
	Descending bool   `msgpack:"d,omitempty"`
}

// Definition describes a composite index over one kind. ID 0 marks a
// definition not yet registered; the registry assigns the next unused id
// per app on creation.
type Definition struct {
	ID         int64          `msgpack:"id"`
	App        string         `msgpack:"a"`
	Kind       string         `msgpack:"k"`
	Ancestor   bool           `msgpack:"anc,omitempty"`
	Properties []SortProperty `msgpack:"p"`
	State      State          `msgpack:"s"`
}

// SameDefinition reports whether two definitions index the same thing,
// ignoring id and state. Used for duplicate rejection and lookup.
func (d Definition) SameDefinition(other Definition) bool {
	if d.App != other.App || d.Kind != other.Kind || d.Ancestor != other.Ancestor ||
		len(d.Properties) != len(other.Properties) {
		return false
	}
	for i, p := range d.Properties {
		if p != other.Properties[i] {
			return false
		}
	}
	return true
}

// String renders the definition for diagnostics and NeedsIndex errors.
func (d Definition) String() string {
	var props []string
	for _, p := range d.Properties {
		dir := "ASC"
		if p.Descending {
			dir = "DESC"
		}
		props = append(props, p.Name+" "+dir)
	}
	ancestor := ""
	if d.Ancestor {
		ancestor = " ancestor:yes"
	}
	return fmt.Sprintf("kind:%s%s (%s)", d.Kind, ancestor, strings.Join(props, ", "))
}
