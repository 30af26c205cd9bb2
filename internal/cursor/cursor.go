// Package cursor drains planned query rows into entities: deduplicating
// multi-valued index rows, tracking a resumable position, and honoring
// offsets and end cursors.
package cursor

import (
	"bytes"
	"database/sql"

	"github.com/roach88/stratum/internal/entity"
)

// Result is one query result: the decoded entity and its stored path.
type Result struct {
	Entity entity.Entity
	Path   []byte
}

// Cursor walks the rows of one executed plan. Each row carries the
// entity path, the serialized entity, and the plan's order-key columns;
// the concatenated order keys form the cursor position.
//
// A multi-valued property produces one index row per value, so the same
// entity can appear under several positions. The cursor remembers every
// path it has delivered and skips repeats.
type Cursor struct {
	rows       *sql.Rows
	orderCols  int
	descending bool

	seen      map[string]struct{}
	pending   *Result
	position  []byte
	returned  int
	endKey    []byte
	hasEnd    bool
	exhausted bool
}

// New wraps executed plan rows. orderCols is the number of trailing
// order-key columns in each row; descending mirrors the plan direction.
func New(rows *sql.Rows, orderCols int, descending bool) *Cursor {
	return &Cursor{
		rows:       rows,
		orderCols:  orderCols,
		descending: descending,
		seen:       make(map[string]struct{}),
	}
}

// ResumeFrom skips rows up to and including the marker position, so the
// next result is the first row strictly beyond it. The marker's offset
// restores the delivered-result count for later markers.
func (c *Cursor) ResumeFrom(m Marker) error {
	c.returned = m.Offset
	for {
		res, pos, ok, err := c.scanRow()
		if err != nil || !ok {
			return err
		}
		if c.beyond(pos, m.OrderKey) {
			if res != nil {
				c.pending = res
			}
			return nil
		}
		// Rows at or before the marker are covered by m.Offset already.
	}
}

// EndAt stops iteration once the position passes the marker.
func (c *Cursor) EndAt(m Marker) {
	c.endKey = m.OrderKey
	c.hasEnd = true
}

// Skip discards up to n results and reports how many were discarded.
func (c *Cursor) Skip(n int) (int, error) {
	skipped := 0
	for skipped < n {
		res, ok, err := c.Next()
		if err != nil {
			return skipped, err
		}
		if !ok {
			break
		}
		_ = res
		skipped++
	}
	return skipped, nil
}

// Next returns the next distinct entity, or ok=false when the rows are
// drained or the end cursor is reached.
func (c *Cursor) Next() (*Result, bool, error) {
	if c.pending != nil {
		res := c.pending
		c.pending = nil
		// A start marker can land beyond the end marker; the pending row
		// still has to honor the end bound.
		if c.hasEnd && c.beyond(c.position, c.endKey) {
			c.exhausted = true
			c.rows.Close()
			return nil, false, nil
		}
		c.returned++
		return res, true, nil
	}
	for {
		res, pos, ok, err := c.scanRow()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		if c.hasEnd && c.beyond(pos, c.endKey) {
			c.exhausted = true
			c.rows.Close()
			return nil, false, nil
		}
		if res == nil {
			continue
		}
		c.returned++
		return res, true, nil
	}
}

// NextRow advances one raw index row with no deduplication, honoring
// the end cursor. Count queries drain rows this way, so a multi-valued
// property contributes once per matching value.
func (c *Cursor) NextRow() (bool, error) {
	if c.pending != nil {
		c.pending = nil
		if c.hasEnd && c.beyond(c.position, c.endKey) {
			c.exhausted = true
			c.rows.Close()
			return false, nil
		}
		return true, nil
	}
	_, pos, ok, err := c.scanRow()
	if err != nil || !ok {
		return false, err
	}
	if c.hasEnd && c.beyond(pos, c.endKey) {
		c.exhausted = true
		c.rows.Close()
		return false, nil
	}
	return true, nil
}

// Marker captures the current position for a later ResumeFrom.
func (c *Cursor) Marker() Marker {
	key := make([]byte, len(c.position))
	copy(key, c.position)
	return Marker{OrderKey: key, Offset: c.returned}
}

// Close releases the underlying rows.
func (c *Cursor) Close() error {
	return c.rows.Close()
}

// scanRow advances one raw row. It returns a nil Result for rows whose
// entity was already delivered, and ok=false when the rows are drained.
func (c *Cursor) scanRow() (*Result, []byte, bool, error) {
	if c.exhausted {
		return nil, nil, false, nil
	}
	if !c.rows.Next() {
		c.exhausted = true
		if err := c.rows.Err(); err != nil {
			return nil, nil, false, err
		}
		c.rows.Close()
		return nil, nil, false, nil
	}

	var path, blob []byte
	dest := make([]any, 2+c.orderCols)
	dest[0] = &path
	dest[1] = &blob
	orderKeys := make([][]byte, c.orderCols)
	for i := range orderKeys {
		dest[2+i] = &orderKeys[i]
	}
	if err := c.rows.Scan(dest...); err != nil {
		return nil, nil, false, err
	}

	c.position = c.position[:0]
	for _, k := range orderKeys {
		c.position = append(c.position, k...)
	}

	if _, dup := c.seen[string(path)]; dup {
		return nil, c.position, true, nil
	}
	c.seen[string(path)] = struct{}{}

	ent, err := entity.Unmarshal(blob)
	if err != nil {
		return nil, nil, false, err
	}
	return &Result{Entity: ent, Path: path}, c.position, true, nil
}

// beyond reports whether pos is strictly past ref in scan direction.
func (c *Cursor) beyond(pos, ref []byte) bool {
	if c.descending {
		return bytes.Compare(pos, ref) < 0
	}
	return bytes.Compare(pos, ref) > 0
}
