package output

import (
	"database/sql"
	"fmt"

	"bulksync/core/utils"
)

// Row is one output row: the output column values followed by the ordinal of the
// input object it came from and the action letter.
type Row struct {
	Values []any
	// Ordinal is the input position, -1 when the engine could not report it.
	Ordinal int
	// Action is 'I', 'U', 'D' or 'R'.
	Action byte
}

// Actions.
const (
	Inserted byte = 'I'
	Updated  byte = 'U'
	Deleted  byte = 'D'
	Read     byte = 'R'
)

// Scan reads output rows of width output columns plus the ordinal and action columns.
func Scan(rows *sql.Rows, width int) ([]Row, error) {
	var out []Row
	for rows.Next() {
		raw := make([]any, width+2)
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan output row: %w", err)
		}
		out = append(out, NewRow(raw[:width], raw[width], raw[width+1]))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read output rows: %w", err)
	}
	return out, nil
}

// ScanValues reads rows holding only the output columns, as returned per object.
func ScanValues(rows *sql.Rows, width int) ([][]any, error) {
	var out [][]any
	for rows.Next() {
		raw := make([]any, width)
		ptrs := make([]any, width)
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan output row: %w", err)
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read output rows: %w", err)
	}
	return out, nil
}

// NewRow builds a row from raw driver values of the ordinal and action columns.
func NewRow(values []any, ordinal, action any) Row {
	r := Row{Values: values, Ordinal: -1, Action: Updated}
	if ordinal != nil {
		r.Ordinal = int(utils.ToInt64(ordinal))
	}
	if s := utils.ToString(action); s != "" {
		r.Action = s[0]
	}
	return r
}
