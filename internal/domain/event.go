package domain

import (
	"fmt"
	"strings"
)

type ChangeKind string

const (
	Added   ChangeKind = "added"
	Changed ChangeKind = "changed"
	Removed ChangeKind = "removed"
)

// AllChangeKinds is the default subscription set.
var AllChangeKinds = []ChangeKind{Added, Changed, Removed}

func (k ChangeKind) Valid() bool {
	switch k {
	case Added, Changed, Removed:
		return true
	}
	return false
}

// ParseChangeKinds parses a comma separated list such as "added,removed".
// An empty string yields AllChangeKinds.
func ParseChangeKinds(s string) ([]ChangeKind, error) {
	if strings.TrimSpace(s) == "" {
		return AllChangeKinds, nil
	}

	var kinds []ChangeKind
	seen := make(map[ChangeKind]bool)
	for _, part := range strings.Split(s, ",") {
		k := ChangeKind(strings.ToLower(strings.TrimSpace(part)))
		if k == "" {
			continue
		}
		if !k.Valid() {
			return nil, fmt.Errorf("unknown change kind %q, expected one of %v", k, AllChangeKinds)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		kinds = append(kinds, k)
	}
	if len(kinds) == 0 {
		return AllChangeKinds, nil
	}
	return kinds, nil
}

// ContainsKind reports whether kinds includes k.
func ContainsKind(kinds []ChangeKind, k ChangeKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

// ChangeEvent is a single notification from a change subscription.
type ChangeEvent struct {
	Kind   ChangeKind `json:"kind"`
	Record Record     `json:"record"`
}

// SnapshotEvent presents a record read by a cursor reader as an added event,
// so snapshots and live changes flow through the same mapper.
func SnapshotEvent(r Record) ChangeEvent {
	return ChangeEvent{Kind: Added, Record: r}
}

func (e ChangeEvent) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Record.Key)
}
