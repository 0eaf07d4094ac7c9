package csvapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Parse_DelimitedText(t *testing.T) {
	t.Parallel()

	parser := NewParser()
	delimited := DetectedFormat{Class: MimeDelimitedText}

	t.Run("Comma separated", func(t *testing.T) {
		t.Parallel()

		table, err := parser.Parse([]byte("name,age\nalice,30\nbob,25\n"), delimited, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "age"}, table.Header())
		assert.Equal(t, 2, table.RowCount())
		assert.Equal(t, TypeInteger, table.ColumnInfo()[1].Type)
	})

	t.Run("Semicolon separated via sniffing", func(t *testing.T) {
		t.Parallel()

		table, err := parser.Parse([]byte("name;age\nalice;30\nbob;25\n"), delimited, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "age"}, table.Header())
		assert.Equal(t, 2, table.RowCount())
	})

	t.Run("Tab separated via sniffing", func(t *testing.T) {
		t.Parallel()

		table, err := parser.Parse([]byte("name\tage\nalice\t30\n"), delimited, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "age"}, table.Header())
	})

	t.Run("Second row with an extra field still materializes", func(t *testing.T) {
		t.Parallel()

		table, err := parser.Parse([]byte("a,b\n1,2\n3,4,5\n"), delimited, "")
		require.NoError(t, err)
		assert.Equal(t, 2, table.RowCount())
		assert.Equal(t, []string{"3", "4"}, table.Records()[1])
	})

	t.Run("Single column falls back to the comma stage", func(t *testing.T) {
		t.Parallel()

		// Nothing to sniff here; the file is still a valid one-column table.
		table, err := parser.Parse([]byte("name\nalice\nbob\n"), delimited, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"name"}, table.Header())
		assert.Equal(t, 2, table.RowCount())
	})

	t.Run("Declared encoding overrides detection", func(t *testing.T) {
		t.Parallel()

		content := []byte("name\nandr\xe9\n")
		table, err := parser.Parse(content, delimited, "iso-8859-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"andré"}, table.Records()[0])
	})

	t.Run("Detected encoding decodes the content", func(t *testing.T) {
		t.Parallel()

		content := []byte("name\nandr\xe9\n")
		detected := DetectedFormat{Class: MimeDelimitedText, Encoding: "ISO-8859-1"}
		table, err := parser.Parse(content, detected, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"andré"}, table.Records()[0])
	})

	t.Run("Empty content is malformed", func(t *testing.T) {
		t.Parallel()

		_, err := parser.Parse(nil, delimited, "")
		assert.ErrorIs(t, err, ErrMalformedInput)
	})
}

func TestParser_Parse_Spreadsheet(t *testing.T) {
	t.Parallel()

	parser := NewParser()

	t.Run("OOXML grid becomes a table", func(t *testing.T) {
		t.Parallel()

		data := buildXLSX(t)
		table, err := parser.Parse(data, DetectedFormat{Class: MimeModernSpreadsheet}, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"name", "age"}, table.Header())
		assert.Equal(t, 2, table.RowCount())
		assert.Equal(t, TypeInteger, table.ColumnInfo()[1].Type)
	})

	t.Run("Garbage as OOXML is malformed", func(t *testing.T) {
		t.Parallel()

		_, err := parser.Parse([]byte("not a zip"), DetectedFormat{Class: MimeModernSpreadsheet}, "")
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("Garbage as legacy spreadsheet is malformed", func(t *testing.T) {
		t.Parallel()

		_, err := parser.Parse([]byte("not ole"), DetectedFormat{Class: MimeLegacySpreadsheet}, "")
		assert.ErrorIs(t, err, ErrMalformedInput)
	})

	t.Run("Duplicate header names in a grid are malformed input", func(t *testing.T) {
		t.Parallel()

		// Spreadsheets have no fallback chain, so the table-level
		// validation error must already carry the client-error sentinel.
		_, err := tableFromGrid([][]string{{"a", "a"}, {"1", "2"}})
		assert.ErrorIs(t, err, ErrMalformedInput)
		assert.ErrorIs(t, err, errDuplicateColumnName)
	})
}

func TestParser_Parse_Unsupported(t *testing.T) {
	t.Parallel()

	parser := NewParser()
	_, err := parser.Parse([]byte{0x00, 0x01}, DetectedFormat{Class: MimeUnsupported}, "")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
