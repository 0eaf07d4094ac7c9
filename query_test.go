package csvapi

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuerySpec(t *testing.T) {
	t.Parallel()

	parse := func(t *testing.T, rawQuery string) (*QuerySpec, error) {
		t.Helper()
		params, err := url.ParseQuery(rawQuery)
		require.NoError(t, err)
		return ParseQuerySpec(params)
	}

	t.Run("Defaults", func(t *testing.T) {
		t.Parallel()

		spec, err := parse(t, "")
		require.NoError(t, err)
		assert.Equal(t, -1, spec.Limit)
		assert.Equal(t, 0, spec.Offset)
		assert.Equal(t, ShapeArrays, spec.Shape)
		assert.True(t, spec.ShowRowID)
		assert.True(t, spec.ShowTotal)
		assert.Empty(t, spec.Filters)
		assert.Nil(t, spec.Sort)
	})

	t.Run("Pagination and shape", func(t *testing.T) {
		t.Parallel()

		spec, err := parse(t, "_size=10&_offset=20&_shape=objects")
		require.NoError(t, err)
		assert.Equal(t, 10, spec.Limit)
		assert.Equal(t, 20, spec.Offset)
		assert.Equal(t, ShapeObjects, spec.Shape)
	})

	t.Run("Hide flags", func(t *testing.T) {
		t.Parallel()

		spec, err := parse(t, "_rowid=hide&_total=hide")
		require.NoError(t, err)
		assert.False(t, spec.ShowRowID)
		assert.False(t, spec.ShowTotal)
	})

	t.Run("Sort ascending and descending", func(t *testing.T) {
		t.Parallel()

		spec, err := parse(t, "_sort=age")
		require.NoError(t, err)
		require.NotNil(t, spec.Sort)
		assert.Equal(t, "age", spec.Sort.Column)
		assert.False(t, spec.Sort.Descending)

		spec, err = parse(t, "_sort_desc=age")
		require.NoError(t, err)
		require.NotNil(t, spec.Sort)
		assert.True(t, spec.Sort.Descending)
	})

	t.Run("Filter clauses", func(t *testing.T) {
		t.Parallel()

		spec, err := parse(t, "age__exact=30&name__contains=ali")
		require.NoError(t, err)
		require.Len(t, spec.Filters, 2)
		assert.Contains(t, spec.Filters, FilterClause{Column: "age", Op: OpExact, Operand: "30"})
		assert.Contains(t, spec.Filters, FilterClause{Column: "name", Op: OpContains, Operand: "ali"})
	})

	t.Run("Invalid parameters", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name     string
			rawQuery string
		}{
			{"Non-numeric size", "_size=wrong"},
			{"Negative size", "_size=-1"},
			{"Non-numeric offset", "_offset=abc"},
			{"Unknown shape", "_shape=pirouette"},
			{"Filter without column", "__exact=1"},
		}

		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				_, err := parse(t, tt.rawQuery)
				assert.ErrorIs(t, err, ErrInvalidQuery)
			})
		}
	})
}

// newTestEngine materializes a reference table and returns an engine over it.
func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()

	store := newTestStore(t)
	table := mustTable(t,
		[]string{"name", "age", "score", "member", "since"},
		[][]string{
			{"alice", "30", "1.5", "true", "9:15"},
			{"bob", "25", "2", "false", "09:45"},
			{"carol", "30", "", "yes", "12:30"},
			{"dave", "", "3.25", "no", "18:00"},
		},
	)
	identity := Identity("http://example.com/people.csv")
	require.NoError(t, store.Materialize(context.Background(), table, identity))
	return NewEngine(store, 100), identity
}

func execute(t *testing.T, engine *Engine, identity, rawQuery string) *QueryResult {
	t.Helper()

	params, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	spec, err := ParseQuerySpec(params)
	require.NoError(t, err)
	result, err := engine.Execute(context.Background(), identity, spec)
	require.NoError(t, err)
	return result
}

func rowIDs(t *testing.T, result *QueryResult) []int64 {
	t.Helper()

	ids := make([]int64, 0, len(result.Rows))
	for _, row := range result.Rows {
		fields, ok := row.([]any)
		require.True(t, ok, "expected array-shaped row")
		id, ok := fields[0].(int64)
		require.True(t, ok, "expected int64 rowid")
		ids = append(ids, id)
	}
	return ids
}

func TestEngine_Execute(t *testing.T) {
	t.Parallel()

	engine, identity := newTestEngine(t)

	t.Run("Default query returns all rows with rowid and total", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "")
		assert.Equal(t, []string{"rowid", "name", "age", "score", "member", "since"}, result.Columns)
		require.NotNil(t, result.Total)
		assert.Equal(t, int64(4), *result.Total)
		assert.Equal(t, []int64{1, 2, 3, 4}, rowIDs(t, result))
	})

	t.Run("Typed values in array rows", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "_size=1")
		require.Len(t, result.Rows, 1)
		row, ok := result.Rows[0].([]any)
		require.True(t, ok)
		assert.Equal(t, []any{int64(1), "alice", int64(30), 1.5, true, "9:15"}, row)
	})

	t.Run("Pagination selects the second row and keeps the full total", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "_size=1&_offset=1")
		require.NotNil(t, result.Total)
		assert.Equal(t, int64(4), *result.Total)
		assert.Equal(t, []int64{2}, rowIDs(t, result))
	})

	t.Run("Size zero returns no rows but counts everything", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "_size=0")
		assert.Empty(t, result.Rows)
		require.NotNil(t, result.Total)
		assert.Equal(t, int64(4), *result.Total)
	})

	t.Run("Exact filter on an integer column", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "age__exact=30")
		assert.Equal(t, []int64{1, 3}, rowIDs(t, result))
		require.NotNil(t, result.Total)
		assert.Equal(t, int64(2), *result.Total)
	})

	t.Run("Contains filter on text is a case-sensitive substring", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "name__contains=ar")
		assert.Equal(t, []int64{3}, rowIDs(t, result))

		result = execute(t, engine, identity, "name__contains=AR")
		assert.Empty(t, result.Rows)
	})

	t.Run("Contains on a numeric column means equality", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "age__contains=30")
		assert.Equal(t, []int64{1, 3}, rowIDs(t, result))

		// "3" is a substring of "30" but not an equal number.
		result = execute(t, engine, identity, "age__contains=3")
		assert.Empty(t, result.Rows)
	})

	t.Run("Boolean filter accepts textual operands", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "member__exact=true")
		assert.Equal(t, []int64{1, 3}, rowIDs(t, result))
	})

	t.Run("Numeric coercion failure matches nothing", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "age__exact=abc")
		assert.Empty(t, result.Rows)
		require.NotNil(t, result.Total)
		assert.Equal(t, int64(0), *result.Total)
	})

	t.Run("Multiple filters are ANDed", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "age__exact=30&name__contains=al")
		assert.Equal(t, []int64{1}, rowIDs(t, result))
	})

	t.Run("Descending sort breaks ties by ascending rowid", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "_sort_desc=age")
		assert.Equal(t, []int64{1, 3, 2, 4}, rowIDs(t, result))
	})

	t.Run("Ascending sort on text", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "_sort=name")
		assert.Equal(t, []int64{1, 2, 3, 4}, rowIDs(t, result))
	})

	t.Run("Descending sort on text reverses insertion order", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "_sort_desc=name")
		assert.Equal(t, []int64{4, 3, 2, 1}, rowIDs(t, result))
	})

	t.Run("Sort by rowid descending", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "_sort_desc=rowid")
		assert.Equal(t, []int64{4, 3, 2, 1}, rowIDs(t, result))
	})

	t.Run("Hidden rowid drops the column and the leading field", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "_rowid=hide&_size=1")
		assert.Equal(t, []string{"name", "age", "score", "member", "since"}, result.Columns)
		row, ok := result.Rows[0].([]any)
		require.True(t, ok)
		assert.Equal(t, "alice", row[0])
	})

	t.Run("Hidden total leaves Total unset", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "_total=hide")
		assert.Nil(t, result.Total)

		encoded, err := json.Marshal(result)
		require.NoError(t, err)
		assert.NotContains(t, string(encoded), `"total"`)
	})

	t.Run("Object shape keeps column order", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "_shape=objects&_size=1")
		require.Len(t, result.Rows, 1)

		encoded, err := json.Marshal(result.Rows[0])
		require.NoError(t, err)
		assert.Equal(t,
			`{"rowid":1,"name":"alice","age":30,"score":1.5,"member":true,"since":"9:15"}`,
			string(encoded),
		)
	})

	t.Run("Time values round-trip verbatim", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "")
		times := make([]any, 0, len(result.Rows))
		for _, row := range result.Rows {
			fields := row.([]any)
			times = append(times, fields[5])
		}
		assert.Equal(t, []any{"9:15", "09:45", "12:30", "18:00"}, times)
	})

	t.Run("Null fields render as JSON null", func(t *testing.T) {
		t.Parallel()

		result := execute(t, engine, identity, "name__exact=carol")
		require.Len(t, result.Rows, 1)
		fields := result.Rows[0].([]any)
		assert.Nil(t, fields[3], "empty score must be null")
	})
}

func TestEngine_Execute_Errors(t *testing.T) {
	t.Parallel()

	engine, identity := newTestEngine(t)

	t.Run("Unknown identity", func(t *testing.T) {
		t.Parallel()

		_, err := engine.Execute(context.Background(), "deadbeef", &QuerySpec{Limit: -1})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Unknown filter column", func(t *testing.T) {
		t.Parallel()

		spec := &QuerySpec{
			Limit:   -1,
			Filters: []FilterClause{{Column: "missing", Op: OpExact, Operand: "1"}},
		}
		_, err := engine.Execute(context.Background(), identity, spec)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("Unknown sort column", func(t *testing.T) {
		t.Parallel()

		spec := &QuerySpec{Limit: -1, Sort: &SortSpec{Column: "missing"}}
		_, err := engine.Execute(context.Background(), identity, spec)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("Size over the page cap", func(t *testing.T) {
		t.Parallel()

		_, err := engine.Execute(context.Background(), identity, &QuerySpec{Limit: 101})
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("Offset over the page cap", func(t *testing.T) {
		t.Parallel()

		_, err := engine.Execute(context.Background(), identity, &QuerySpec{Limit: -1, Offset: 101})
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}
