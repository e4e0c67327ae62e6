package agent

import "iter"

// Cursor is a single-pass, lazy sequence of query results.
//
// Iterate with Next/Object and check Err afterwards, like database/sql.Rows.
// A Cursor cannot be rewound; run the query again for a fresh one. It closes
// itself when exhausted or on error; call Close when stopping early.
type Cursor struct {
	next   func() (any, bool, error)
	close  func() error
	cur    any
	err    error
	closed bool
}

// NewCursor creates a Cursor from a pull function and an optional close
// function. next returns (object, true, nil) per element and (nil, false, nil)
// at the end.
func NewCursor(next func() (any, bool, error), close func() error) *Cursor {
	return &Cursor{next: next, close: close}
}

// SliceCursor creates a Cursor over materialized results.
func SliceCursor(objects []any) *Cursor {
	i := 0
	return NewCursor(func() (any, bool, error) {
		if i >= len(objects) {
			return nil, false, nil
		}
		obj := objects[i]
		i++
		return obj, true, nil
	}, nil)
}

// Next advances to the next object.
func (c *Cursor) Next() bool {
	if c.closed {
		return false
	}
	obj, ok, err := c.next()
	if err != nil {
		c.err = err
		c.Close()
		return false
	}
	if !ok {
		c.Close()
		return false
	}
	c.cur = obj
	return true
}

// Object returns the current object.
func (c *Cursor) Object() any { return c.cur }

// Err returns the error that stopped iteration, if any.
func (c *Cursor) Err() error { return c.err }

// Close releases backend resources. Safe to call more than once.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.cur = nil
	if c.close == nil {
		return nil
	}
	if err := c.close(); err != nil && c.err == nil {
		c.err = err
		return err
	}
	return nil
}

// All drains the cursor.
func (c *Cursor) All() ([]any, error) {
	var out []any
	for c.Next() {
		out = append(out, c.Object())
	}
	return out, c.Err()
}

// Seq adapts the cursor to a range-over-func iterator. Breaking out of the
// loop closes the cursor. Check Err after the loop.
func (c *Cursor) Seq() iter.Seq[any] {
	return func(yield func(any) bool) {
		defer c.Close()
		for c.Next() {
			if !yield(c.Object()) {
				return
			}
		}
	}
}
