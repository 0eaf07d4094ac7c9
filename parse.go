package csvapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/ianaindex"
)

// Parser converts raw source bytes into an in-memory Table using the
// detected format class. Delimited text goes through a bounded fallback
// chain; spreadsheets use the grid reader matching their container.
type Parser struct {
	// SniffWindow is how many bytes the delimiter sniffer may inspect.
	SniffWindow int
}

// NewParser returns a Parser with the default sniff window.
func NewParser() *Parser {
	return &Parser{SniffWindow: DefaultSniffWindow}
}

// Parse builds a Table from raw bytes. declaredEncoding, when non-empty,
// overrides the statistically detected encoding for delimited text.
// Returns ErrUnsupportedFormat for the unsupported class and
// ErrMalformedInput when every parse strategy fails.
func (p *Parser) Parse(data []byte, detected DetectedFormat, declaredEncoding string) (*Table, error) {
	switch detected.Class {
	case MimeDelimitedText:
		encoding := declaredEncoding
		if encoding == "" {
			encoding = detected.Encoding
		}
		return p.parseDelimitedText(data, encoding)
	case MimeLegacySpreadsheet:
		return parseXLS(data)
	case MimeModernSpreadsheet:
		return parseXLSX(data)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// parseDelimitedText decodes the content to UTF-8 and runs the fallback
// chain: sniffed delimiter, then default comma, then forced semicolon.
// The first strategy that yields a table wins; only the final exhaustion
// surfaces to the caller.
func (p *Parser) parseDelimitedText(data []byte, encoding string) (*Table, error) {
	decoded, err := decodeToUTF8(data, encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformedInput, encoding, err)
	}

	var lastErr error
	if delimiter, sniffErr := sniffDelimiter(decoded, p.SniffWindow); sniffErr == nil {
		table, parseErr := parseDelimited(decoded, delimiter, false)
		if parseErr == nil {
			return table, nil
		}
		lastErr = parseErr
	} else {
		lastErr = sniffErr
	}

	table, err := parseDelimited(decoded, ',', true)
	if err == nil {
		return table, nil
	}
	lastErr = err

	table, err = parseDelimited(decoded, ';', true)
	if err == nil {
		return table, nil
	}
	lastErr = err

	return nil, fmt.Errorf("%w: %v", ErrMalformedInput, lastErr)
}

// parseDelimited reads the whole content with one delimiter. Rows are not
// required to match the header width here; NewTable pads and truncates them.
func parseDelimited(data []byte, delimiter rune, lazy bool) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = lazy

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty content")
	}

	return NewTable(records[0], records[1:])
}

// decodeToUTF8 converts content from the named IANA charset to UTF-8.
// Unknown or missing charsets pass the bytes through unchanged.
func decodeToUTF8(data []byte, charset string) ([]byte, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return data, nil
	}

	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return data, nil
	}
	return enc.NewDecoder().Bytes(data)
}

// parseXLSX reads the first sheet of an OOXML spreadsheet as a row/column
// grid. No delimiter or encoding fallback applies to spreadsheets.
func parseXLSX(data []byte) (*Table, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: %v", ErrMalformedInput, err)
	}
	defer func() {
		_ = book.Close() // Ignore close error
	}()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: xlsx: no sheets", ErrMalformedInput)
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: xlsx: read sheet %s: %v", ErrMalformedInput, sheets[0], err)
	}
	return tableFromGrid(rows)
}

// parseXLS reads the first sheet of a legacy OLE compound spreadsheet.
func parseXLS(data []byte) (*Table, error) {
	book, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: xls: %v", ErrMalformedInput, err)
	}

	sheet, err := book.GetSheet(0)
	if err != nil {
		return nil, fmt.Errorf("%w: xls: no sheets", ErrMalformedInput)
	}

	rows := make([][]string, 0, sheet.GetNumberRows())
	for i := 0; i < sheet.GetNumberRows(); i++ {
		row, err := sheet.GetRow(i)
		if err != nil {
			continue
		}
		fields := make([]string, 0, len(row.GetCols()))
		for _, cell := range row.GetCols() {
			fields = append(fields, cell.GetString())
		}
		rows = append(rows, fields)
	}
	return tableFromGrid(rows)
}

// tableFromGrid converts spreadsheet grid rows to a Table. The first row
// becomes the header, the rest become records.
func tableFromGrid(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty sheet", ErrMalformedInput)
	}
	return NewTable(rows[0], rows[1:])
}
