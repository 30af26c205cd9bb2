package entity

import (
	"fmt"
	"strings"

	"github.com/roach88/stratum/internal/dserr"
)

// PathElement is one level of a hierarchical key path. Exactly one of ID or
// Name is set on a complete element; a final element with neither is an
// incomplete key awaiting ID allocation.
type PathElement struct {
	Kind string
	ID   int64
	Name string
}

// Key identifies an entity by an ordered path of elements within an
// app/namespace pair.
type Key struct {
	App       string
	Namespace string
	Path      []PathElement
}

// Kind returns the entity's kind: the kind of the final path element.
func (k Key) Kind() string {
	if len(k.Path) == 0 {
		return ""
	}
	return k.Path[len(k.Path)-1].Kind
}

// Root returns the first path element, which identifies the entity group.
func (k Key) Root() PathElement {
	return k.Path[0]
}

// Incomplete reports whether the final element has neither an id nor a name.
func (k Key) Incomplete() bool {
	if len(k.Path) == 0 {
		return true
	}
	last := k.Path[len(k.Path)-1]
	return last.ID == 0 && last.Name == ""
}

// GroupString returns a stable string naming the key's entity group,
// used for lock naming.
func (k Key) GroupString() string {
	root := k.Root()
	if root.Name != "" {
		return fmt.Sprintf("%s:%s", root.Kind, root.Name)
	}
	return fmt.Sprintf("%s:%d", root.Kind, root.ID)
}

// String renders the key path for diagnostics, e.g. "Author:marktwain/Book:7".
func (k Key) String() string {
	var b strings.Builder
	for i, el := range k.Path {
		if i > 0 {
			b.WriteByte('/')
		}
		if el.Name != "" {
			fmt.Fprintf(&b, "%s:%s", el.Kind, el.Name)
		} else {
			fmt.Fprintf(&b, "%s:%d", el.Kind, el.ID)
		}
	}
	return b.String()
}

// Equal reports whether two keys identify the same entity.
func (k Key) Equal(other Key) bool {
	if k.App != other.App || k.Namespace != other.Namespace || len(k.Path) != len(other.Path) {
		return false
	}
	for i, el := range k.Path {
		if el != other.Path[i] {
			return false
		}
	}
	return true
}

// Validate checks structural key invariants. A key may be incomplete only in
// its final element (callers that require a complete key check Incomplete
// separately). Kinds and names must not contain the path separator
// characters ':' and '!', which would break the order-preserving encoding.
func (k Key) Validate() error {
	if k.App == "" {
		return dserr.New(dserr.CodeBadRequest, "key has no app id")
	}
	if len(k.Path) == 0 {
		return dserr.New(dserr.CodeBadRequest, "key has an empty path")
	}
	for i, el := range k.Path {
		if el.Kind == "" {
			return dserr.Newf(dserr.CodeBadRequest, "key path element %d has no kind: %s", i, k)
		}
		if el.ID != 0 && el.Name != "" {
			return dserr.Newf(dserr.CodeBadRequest,
				"each key path element should have id or name but not both: %s", k)
		}
		if el.ID == 0 && el.Name == "" && i != len(k.Path)-1 {
			return dserr.Newf(dserr.CodeBadRequest,
				"only the final key path element may be incomplete: %s", k)
		}
		if el.ID < 0 {
			return dserr.Newf(dserr.CodeBadRequest, "key path element %d has a negative id: %s", i, k)
		}
		if strings.ContainsAny(el.Kind, ":!") || strings.ContainsAny(el.Name, ":!") {
			return dserr.Newf(dserr.CodeBadRequest,
				"key path element %d contains a reserved separator character: %s", i, k)
		}
	}
	return nil
}

// Entity is an immutable value object: a key plus an ordered property list.
// Group holds the entity-group root path, established when the entity is
// first created.
type Entity struct {
	Key        Key
	Group      []PathElement
	Properties []Property
}
