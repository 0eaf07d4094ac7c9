package csvapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// DefaultPageSize is the row limit applied when a request does not ask for
// a specific page size.
const DefaultPageSize = 100

// FilterOp is a filter operator from the query DSL.
type FilterOp int

const (
	// OpExact matches on equality after operand coercion
	OpExact FilterOp = iota
	// OpContains matches on case-sensitive substring for text columns and
	// falls back to equality for numeric columns
	OpContains
)

// FilterClause is one column filter. Operand stays a string until the
// engine coerces it against the column's stored type.
type FilterClause struct {
	Column  string
	Op      FilterOp
	Operand string
}

// SortSpec is the single optional sort key.
type SortSpec struct {
	Column     string
	Descending bool
}

// Shape selects the output row representation.
type Shape int

const (
	// ShapeArrays renders each row as a positional array
	ShapeArrays Shape = iota
	// ShapeObjects renders each row as a field-named object
	ShapeObjects
)

// QuerySpec is a validated filter/sort/pagination/shape request. Built once
// per request and rejected as a whole if any clause is invalid.
type QuerySpec struct {
	Filters   []FilterClause
	Sort      *SortSpec
	Limit     int // -1 means not requested
	Offset    int
	Shape     Shape
	ShowRowID bool
	ShowTotal bool
}

// Reserved query parameters; everything else with a __ suffix is a filter.
const (
	paramSize     = "_size"
	paramOffset   = "_offset"
	paramShape    = "_shape"
	paramSort     = "_sort"
	paramSortDesc = "_sort_desc"
	paramRowID    = "_rowid"
	paramTotal    = "_total"
	paramHide     = "hide"

	suffixExact    = "__exact"
	suffixContains = "__contains"
)

// ParseQuerySpec maps request parameters to a QuerySpec. Column existence
// is checked later by the engine against the stored schema; this stage
// rejects structurally invalid parameters with ErrInvalidQuery.
func ParseQuerySpec(params url.Values) (*QuerySpec, error) {
	spec := &QuerySpec{
		Limit:     -1,
		ShowRowID: true,
		ShowTotal: true,
	}

	if v := params.Get(paramSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: _size must be a non-negative integer", ErrInvalidQuery)
		}
		spec.Limit = n
	}
	if v := params.Get(paramOffset); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: _offset must be a non-negative integer", ErrInvalidQuery)
		}
		spec.Offset = n
	}

	switch params.Get(paramShape) {
	case "", "arrays":
		spec.Shape = ShapeArrays
	case "objects":
		spec.Shape = ShapeObjects
	default:
		return nil, fmt.Errorf("%w: unknown _shape %q", ErrInvalidQuery, params.Get(paramShape))
	}

	if params.Get(paramRowID) == paramHide {
		spec.ShowRowID = false
	}
	if params.Get(paramTotal) == paramHide {
		spec.ShowTotal = false
	}

	if col := params.Get(paramSort); col != "" {
		spec.Sort = &SortSpec{Column: col}
	}
	if col := params.Get(paramSortDesc); col != "" {
		spec.Sort = &SortSpec{Column: col, Descending: true}
	}

	// Clauses are ANDed, so their relative order never changes the result;
	// keys are still sorted to keep the built SQL deterministic.
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		values := params[key]
		var op FilterOp
		var column string
		switch {
		case strings.HasSuffix(key, suffixExact):
			op, column = OpExact, strings.TrimSuffix(key, suffixExact)
		case strings.HasSuffix(key, suffixContains):
			op, column = OpContains, strings.TrimSuffix(key, suffixContains)
		default:
			continue
		}
		if column == "" {
			return nil, fmt.Errorf("%w: filter %q names no column", ErrInvalidQuery, key)
		}
		for _, operand := range values {
			spec.Filters = append(spec.Filters, FilterClause{Column: column, Op: op, Operand: operand})
		}
	}

	return spec, nil
}

// QueryResult is the rendered output of one query.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    []any    `json:"rows"`
	Total   *int64   `json:"total,omitempty"`
}

// Engine translates QuerySpecs into parameterized SQL against materialized
// tables and renders typed results.
type Engine struct {
	store       *Store
	maxPageSize int
}

// NewEngine returns an Engine bound to a store. maxPageSize caps both
// _size and _offset; non-positive means DefaultPageSize.
func NewEngine(store *Store, maxPageSize int) *Engine {
	if maxPageSize <= 0 {
		maxPageSize = DefaultPageSize
	}
	return &Engine{store: store, maxPageSize: maxPageSize}
}

// Execute runs the spec against the identity's table. Returns ErrNotFound
// for unknown identities and ErrInvalidQuery when the spec does not fit
// the stored schema.
func (e *Engine) Execute(ctx context.Context, identity string, spec *QuerySpec) (*QueryResult, error) {
	columns, err := e.store.Columns(ctx, identity)
	if err != nil {
		return nil, err
	}

	if err := e.validate(spec, columns); err != nil {
		return nil, err
	}

	where, args, err := buildWhere(spec.Filters, columns)
	if err != nil {
		return nil, err
	}

	db, err := e.store.OpenRead(identity)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	result := &QueryResult{Rows: []any{}}
	if spec.ShowRowID {
		result.Columns = append(result.Columns, "rowid")
	}
	for _, col := range columns {
		result.Columns = append(result.Columns, col.Name)
	}

	if spec.ShowTotal {
		total, err := e.countTotal(ctx, db, where, args)
		if err != nil {
			return nil, err
		}
		result.Total = &total
	}

	limit := spec.Limit
	if limit < 0 {
		limit = DefaultPageSize
		if limit > e.maxPageSize {
			limit = e.maxPageSize
		}
	}

	query := e.buildSelect(columns, where, spec.Sort)
	rows, err := db.QueryContext(ctx, query, append(args, limit, spec.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", identity, err)
	}
	defer rows.Close()

	for rows.Next() {
		scanned := make([]any, len(columns)+1)
		targets := make([]any, len(scanned))
		for i := range scanned {
			targets[i] = &scanned[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rowID, _ := scanned[0].(int64)
		values := make([]any, len(columns))
		for i, col := range columns {
			values[i] = renderValue(col.Type, scanned[i+1])
		}
		result.Rows = append(result.Rows, shapeRow(spec, columns, rowID, values))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}

// validate checks the spec against the stored schema and pagination bounds.
func (e *Engine) validate(spec *QuerySpec, columns []ColumnInfo) error {
	known := make(map[string]bool, len(columns)+1)
	known["rowid"] = true
	for _, col := range columns {
		known[col.Name] = true
	}

	if spec.Sort != nil && !known[spec.Sort.Column] {
		return fmt.Errorf("%w: unknown sort column %q", ErrInvalidQuery, spec.Sort.Column)
	}
	for _, clause := range spec.Filters {
		if !known[clause.Column] {
			return fmt.Errorf("%w: unknown filter column %q", ErrInvalidQuery, clause.Column)
		}
	}

	if spec.Limit > e.maxPageSize {
		return fmt.Errorf("%w: _size exceeds maximum %d", ErrInvalidQuery, e.maxPageSize)
	}
	if spec.Offset > e.maxPageSize {
		return fmt.Errorf("%w: _offset exceeds maximum %d", ErrInvalidQuery, e.maxPageSize)
	}
	return nil
}

// buildWhere translates the filter IR into a parameterized WHERE fragment.
// Operands never reach the SQL text; a clause whose operand fails numeric
// coercion matches nothing instead of erroring.
func buildWhere(filters []FilterClause, columns []ColumnInfo) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	types := make(map[string]TypeTag, len(columns)+1)
	types["rowid"] = TypeInteger
	for _, col := range columns {
		types[col.Name] = col.Type
	}

	conditions := make([]string, 0, len(filters))
	var args []any
	for _, clause := range filters {
		tag := types[clause.Column]
		quoted := quoteIdentifier(clause.Column)

		switch {
		case tag.IsNumeric() || tag == TypeBoolean:
			// contains has no substring semantics on numbers; both
			// operators compare on equality after coercion.
			operand, ok := coerceOperand(tag, clause.Operand)
			if !ok {
				conditions = append(conditions, "1 = 0")
				continue
			}
			conditions = append(conditions, quoted+" = ?")
			args = append(args, operand)
		case clause.Op == OpContains:
			// instr keeps the match case-sensitive; LIKE folds ASCII case.
			conditions = append(conditions, "instr("+quoted+", ?) > 0")
			args = append(args, clause.Operand)
		default:
			conditions = append(conditions, quoted+" = ?")
			args = append(args, clause.Operand)
		}
	}

	return " WHERE " + strings.Join(conditions, " AND "), args, nil
}

// coerceOperand converts a filter operand to the column's stored type.
func coerceOperand(tag TypeTag, operand string) (any, bool) {
	switch tag {
	case TypeBoolean:
		switch strings.ToLower(strings.TrimSpace(operand)) {
		case "true", "t", "yes", "1":
			return int64(1), true
		case "false", "f", "no", "0":
			return int64(0), true
		}
		return nil, false
	case TypeInteger, TypeDecimal:
		trimmed := strings.TrimSpace(operand)
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f, true
		}
		return nil, false
	default:
		return operand, true
	}
}

// countTotal counts rows matching the filters, ignoring pagination.
func (e *Engine) countTotal(ctx context.Context, db *sql.DB, where string, args []any) (int64, error) {
	query := "SELECT COUNT(*) FROM " + quoteIdentifier(dataTableName) + where
	var total int64
	if err := db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return total, nil
}

// buildSelect assembles the row query. Ties on the sort key are always
// broken by ascending rowid so pagination stays stable.
func (e *Engine) buildSelect(columns []ColumnInfo, where string, sort *SortSpec) string {
	selected := make([]string, 0, len(columns)+1)
	selected = append(selected, "rowid")
	for _, col := range columns {
		selected = append(selected, quoteIdentifier(col.Name))
	}

	order := " ORDER BY rowid ASC"
	if sort != nil {
		direction := "ASC"
		if sort.Descending {
			direction = "DESC"
		}
		order = fmt.Sprintf(" ORDER BY %s %s, rowid ASC", quoteIdentifier(sort.Column), direction)
	}

	return "SELECT " + strings.Join(selected, ", ") +
		" FROM " + quoteIdentifier(dataTableName) +
		where + order + " LIMIT ? OFFSET ?"
}

// renderValue converts a scanned SQL value to its output form using the
// stored semantic type. Temporal columns keep their original string form.
func renderValue(tag TypeTag, v any) any {
	if v == nil {
		return nil
	}
	switch tag {
	case TypeBoolean:
		if n, ok := v.(int64); ok {
			return n != 0
		}
	case TypeDecimal:
		if n, ok := v.(int64); ok {
			return float64(n)
		}
	case TypeText, TypeDate, TypeTime, TypeDateTime:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// shapeRow renders one row in the requested shape.
func shapeRow(spec *QuerySpec, columns []ColumnInfo, rowID int64, values []any) any {
	if spec.Shape == ShapeArrays {
		if spec.ShowRowID {
			return append([]any{rowID}, values...)
		}
		return values
	}

	row := objectRow{}
	if spec.ShowRowID {
		row.keys = append(row.keys, "rowid")
		row.values = append(row.values, rowID)
	}
	for i, col := range columns {
		row.keys = append(row.keys, col.Name)
		row.values = append(row.values, values[i])
	}
	return row
}

// objectRow marshals as a JSON object whose keys keep the table's column
// order; a plain map would sort them.
type objectRow struct {
	keys   []string
	values []any
}

// MarshalJSON implements json.Marshaler.
func (r objectRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
