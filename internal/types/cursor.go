// internal/types/cursor.go
package types

// NoPromptsSeen is the cursor value at session start, below any valid id.
const NoPromptsSeen = -1

// Cursor is the highest prompt id rendered so far. It never decreases.
type Cursor struct {
	last int
}

func NewCursor() Cursor {
	return Cursor{last: NoPromptsSeen}
}

func (c Cursor) Last() int {
	return c.last
}

// Seen reports whether id is at or below the cursor.
func (c Cursor) Seen(id int) bool {
	return id <= c.last
}

// Advance moves the cursor to id if id is higher and reports whether it moved.
func (c *Cursor) Advance(id int) bool {
	if id <= c.last {
		return false
	}
	c.last = id
	return true
}

func (c *Cursor) Reset() {
	c.last = NoPromptsSeen
}
