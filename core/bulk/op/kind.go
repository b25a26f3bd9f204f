package op

import (
	"fmt"
	"strings"
)

// Kind is the bulk operation requested by a caller.
type Kind int

const (
	// Insert adds every object as a new row.
	Insert Kind = iota
	// Update overwrites matched rows and ignores objects with no match.
	Update
	// InsertOrUpdate inserts unmatched objects and updates matched ones.
	InsertOrUpdate
	// InsertOrUpdateOrDelete behaves like InsertOrUpdate and also deletes target rows
	// absent from the input, subject to the synchronize filter.
	InsertOrUpdateOrDelete
	// Delete removes matched rows.
	Delete
	// Read loads matched rows back onto the input objects.
	Read
	// Truncate empties the target table.
	Truncate
)

var kindNames = map[Kind]string{
	Insert:                 "insert",
	Update:                 "update",
	InsertOrUpdate:         "insert_or_update",
	InsertOrUpdateOrDelete: "insert_or_update_or_delete",
	Delete:                 "delete",
	Read:                   "read",
	Truncate:               "truncate",
}

// String returns the snake_case name used in logs and metric labels.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MatchesRows reports whether the operation pairs input objects with existing rows,
// which requires a non-empty match key.
func (k Kind) MatchesRows() bool {
	return k != Insert && k != Truncate
}

// Writes reports whether the operation changes target rows through a merge statement.
func (k Kind) Writes() bool {
	return k != Read && k != Truncate
}

// ParseKind resolves a kind from its snake_case or CamelCase name.
func ParseKind(s string) (Kind, error) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for k, name := range kindNames {
		if name == normalized || strings.ReplaceAll(name, "_", "") == normalized {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}
