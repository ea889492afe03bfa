package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is a single child of an ordered collection.
// Records are ordered by (Priority, Key) and are immutable once read.
type Record struct {
	Key      string          `json:"key"`
	Priority float64         `json:"priority"`
	Value    json.RawMessage `json:"value,omitempty"`
}

// Decode unmarshals the record value into v.
func (r Record) Decode(v any) error {
	if len(r.Value) == 0 {
		return fmt.Errorf("record %q has no value", r.Key)
	}
	return json.Unmarshal(r.Value, v)
}

// Less reports whether r sorts before other in (priority, key) order.
func (r Record) Less(other Record) bool {
	return Compare(r.Priority, r.Key, other.Priority, other.Key) < 0
}

// Cursor marks the last record consumed by a cursor reader.
type Cursor struct {
	Key      string  `json:"key"`
	Priority float64 `json:"priority"`
}

// CursorOf returns the cursor positioned at r.
func CursorOf(r Record) *Cursor {
	return &Cursor{Key: r.Key, Priority: r.Priority}
}

// Compare orders two (priority, key) positions.
func Compare(p1 float64, k1 string, p2 float64, k2 string) int {
	switch {
	case p1 < p2:
		return -1
	case p1 > p2:
		return 1
	default:
		return strings.Compare(k1, k2)
	}
}
