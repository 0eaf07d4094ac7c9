package csvapi

import (
	"fmt"
	"strings"
)

// header is the ordered list of column names.
type header []string

// record represents one source row as a slice of string fields.
type record []string

// ColumnInfo pairs a column name with its inferred type.
type ColumnInfo struct {
	Name string
	Type TypeTag
}

// Table is the in-memory result of parsing one source. Every record has
// exactly len(header) fields after normalization; row i across all columns
// forms one logical record.
type Table struct {
	header     header
	records    []record
	columnInfo []ColumnInfo
}

// NewTable builds a Table from a header and raw records. Records are
// normalized to the header width first (short rows padded with empty
// fields, excess trailing fields dropped), then every column is passed
// through type inference as a whole.
func NewTable(h []string, records [][]string) (*Table, error) {
	if err := validateColumnNames(h); err != nil {
		return nil, err
	}

	normalized := make([]record, 0, len(records))
	for _, r := range records {
		normalized = append(normalized, normalizeRecord(r, len(h)))
	}

	t := &Table{
		header:  header(h),
		records: normalized,
	}
	t.columnInfo = t.inferColumns()
	return t, nil
}

// normalizeRecord forces a row to the header width. A row with fewer fields
// than the header is padded with empty fields (null after conversion); a row
// with more fields keeps only the first width fields.
func normalizeRecord(r []string, width int) record {
	if len(r) == width {
		return record(r)
	}
	out := make(record, width)
	copy(out, r)
	return out
}

// Header returns the ordered column names.
func (t *Table) Header() []string {
	return t.header
}

// RowCount returns the number of records.
func (t *Table) RowCount() int {
	return len(t.records)
}

// ColumnInfo returns the per-column inferred types in column order.
func (t *Table) ColumnInfo() []ColumnInfo {
	return t.columnInfo
}

// Records returns the normalized records.
func (t *Table) Records() [][]string {
	out := make([][]string, len(t.records))
	for i, r := range t.records {
		out[i] = r
	}
	return out
}

// inferColumns runs type inference over each fully assembled column.
func (t *Table) inferColumns() []ColumnInfo {
	columns := make([]ColumnInfo, len(t.header))
	for i, name := range t.header {
		values := make([]string, 0, len(t.records))
		for _, r := range t.records {
			values = append(values, r[i])
		}
		columns[i] = ColumnInfo{Name: name, Type: InferColumnType(values)}
	}
	return columns
}

// validateColumnNames rejects an empty header and duplicate column names.
// Both are malformed input, so the server classifies them as client errors.
// Comparison is case-sensitive after trimming.
func validateColumnNames(columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("%w: empty header", ErrMalformedInput)
	}
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		trimmed := strings.TrimSpace(col)
		if seen[trimmed] {
			return fmt.Errorf("%w: %w: %s", ErrMalformedInput, errDuplicateColumnName, col)
		}
		seen[trimmed] = true
	}
	return nil
}
