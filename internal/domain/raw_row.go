package domain

import "strings"

// RawRow is one parsed data row keyed by header. Cell values are nil, string, float64 or bool.
// It only lives while a single file is being processed.
type RawRow struct {
	// Number is the 1-indexed sheet row; the header occupies row 1.
	Number  int
	columns []string
	values  map[string]any
	texts   map[string]string
}

// NewRawRow pairs header columns with cells. Missing trailing cells read as nil.
func NewRawRow(number int, columns []string, cells []any) RawRow {
	values := make(map[string]any, len(columns))
	for i, col := range columns {
		if i < len(cells) {
			values[col] = cells[i]
		} else {
			values[col] = nil
		}
	}
	return RawRow{Number: number, columns: columns, values: values}
}

// NewRawRowWithText is NewRawRow that also keeps each cell's source text, so readers that
// care about the exact spelling (dates such as "2024.10") are not handed a number.
func NewRawRowWithText(number int, columns []string, cells []any, texts []string) RawRow {
	row := NewRawRow(number, columns, cells)
	row.texts = make(map[string]string, len(columns))
	for i, col := range columns {
		if i < len(texts) {
			if text := strings.TrimSpace(texts[i]); text != "" {
				row.texts[col] = text
			}
		}
	}
	return row
}

// RawRowFromMap builds a row from a column mapping, keeping the given column order.
func RawRowFromMap(number int, columns []string, values map[string]any) RawRow {
	cells := make([]any, len(columns))
	for i, col := range columns {
		cells[i] = values[col]
	}
	return NewRawRow(number, columns, cells)
}

// Columns returns the header order shared by every row of the file.
func (r RawRow) Columns() []string { return r.columns }

// Has reports whether the file carries the column at all.
func (r RawRow) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Value returns the cell, or nil when the column is absent.
func (r RawRow) Value(column string) any { return r.values[column] }

// Text returns the cell as it was written in the file, when the reader recorded it.
func (r RawRow) Text(column string) (string, bool) {
	text, ok := r.texts[column]
	return text, ok
}

// Field returns the cell and whether it holds a non-blank value.
func (r RawRow) Field(column string) (any, bool) {
	v := r.values[column]
	if IsBlank(v) {
		return nil, false
	}
	return v, true
}

// IsBlank reports whether a cell value counts as empty.
func IsBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == "" || IsMissingMarker(val)
	case Value:
		return val.IsNull() || IsBlank(val.Interface())
	default:
		return Sanitize(v).IsNull()
	}
}
