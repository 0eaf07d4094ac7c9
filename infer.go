package csvapi

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TypeTag is the inferred semantic type of a column. It drives both operand
// coercion in the query engine and output serialization.
type TypeTag int

const (
	// TypeText is the fallback type; every value matches it
	TypeText TypeTag = iota
	// TypeBoolean represents true/false columns
	TypeBoolean
	// TypeInteger represents whole-number columns
	TypeInteger
	// TypeDecimal represents floating-point columns
	TypeDecimal
	// TypeDate represents date-only columns, stored verbatim
	TypeDate
	// TypeTime represents time-only columns, stored verbatim
	TypeTime
	// TypeDateTime represents combined date and time columns, stored verbatim
	TypeDateTime
)

// String returns the tag name as persisted in column metadata.
func (t TypeTag) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeDateTime:
		return "datetime"
	default:
		return "text"
	}
}

// typeTagFromString restores a TypeTag from its metadata name.
// Unknown names fall back to text.
func typeTagFromString(s string) TypeTag {
	switch s {
	case "boolean":
		return TypeBoolean
	case "integer":
		return TypeInteger
	case "decimal":
		return TypeDecimal
	case "date":
		return TypeDate
	case "time":
		return TypeTime
	case "datetime":
		return TypeDateTime
	default:
		return TypeText
	}
}

// sqlType returns the SQLite storage class for the tag. Temporal tags are
// stored as TEXT so the original string form round-trips unchanged.
func (t TypeTag) sqlType() string {
	switch t {
	case TypeBoolean, TypeInteger:
		return "INTEGER"
	case TypeDecimal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// IsNumeric reports whether operands are coerced to numbers before filtering.
func (t TypeTag) IsNumeric() bool {
	return t == TypeInteger || t == TypeDecimal
}

// isVerbatim reports whether values keep their original string form on output.
func (t TypeTag) isVerbatim() bool {
	return t == TypeDate || t == TypeTime || t == TypeDateTime
}

// temporalPattern pairs a structural regexp with the time layouts that can
// validate a matching value.
type temporalPattern struct {
	pattern *regexp.Regexp
	formats []string
}

var datePatterns = []temporalPattern{
	// ISO8601 date
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		[]string{"2006-01-02"},
	},
	// US format
	{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`),
		[]string{"1/2/2006", "01/02/2006"},
	},
	// European format
	{
		regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}$`),
		[]string{"2.1.2006", "02.01.2006"},
	},
}

var timePatterns = []temporalPattern{
	// Colon-delimited time with seconds
	{
		regexp.MustCompile(`^\d{1,2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"15:04:05", "15:04:05.000", "3:04:05"},
	},
	// Colon-delimited time without seconds; accepts both "9:15" and "09:15"
	{
		regexp.MustCompile(`^\d{1,2}:\d{2}$`),
		[]string{"15:04", "3:04"},
	},
}

var datetimePatterns = []temporalPattern{
	// ISO8601 with timezone
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`),
		[]string{time.RFC3339, time.RFC3339Nano},
	},
	// ISO8601 without timezone
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"2006-01-02T15:04:05", "2006-01-02T15:04:05.000"},
	},
	// ISO8601 date and time with space
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{1,2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"2006-01-02 15:04:05", "2006-01-02 15:04:05.000"},
	},
	// US formats
	{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4} \d{1,2}:\d{2}:\d{2}( (AM|PM))?$`),
		[]string{"1/2/2006 15:04:05", "1/2/2006 3:04:05 PM", "01/02/2006 15:04:05"},
	},
	// European formats
	{
		regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4} \d{1,2}:\d{2}:\d{2}$`),
		[]string{"2.1.2006 15:04:05", "02.01.2006 15:04:05"},
	},
}

// matchesTemporal checks a value against a pattern table.
func matchesTemporal(value string, patterns []temporalPattern) bool {
	for _, tp := range patterns {
		if tp.pattern.MatchString(value) {
			for _, format := range tp.formats {
				if _, err := time.Parse(format, value); err == nil {
					return true
				}
			}
		}
	}
	return false
}

// isBoolean accepts textual booleans only. Bare 0/1 stay numeric so that
// integer columns are never reclassified as boolean.
func isBoolean(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false", "t", "f", "yes", "no":
		return true
	default:
		return false
	}
}

func isInteger(value string) bool {
	if len(value) == 0 {
		return false
	}
	first := value[0]
	if first != '+' && first != '-' && (first < '0' || first > '9') {
		return false
	}
	_, err := strconv.ParseInt(value, 10, 64)
	return err == nil
}

func isDecimal(value string) bool {
	hasDigit := false
	for _, r := range value {
		if r >= '0' && r <= '9' {
			hasDigit = true
			break
		}
	}
	if !hasDigit {
		return false
	}
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

// typeMatcher is one candidate type in the specificity order.
type typeMatcher struct {
	tag   TypeTag
	match func(string) bool
}

// typeMatchers is the fixed specificity order for column inference.
// The list is immutable shared state; matchers are pure functions, so
// inference is safe under concurrent ingestions.
var typeMatchers = []typeMatcher{
	{TypeBoolean, isBoolean},
	{TypeInteger, isInteger},
	{TypeDecimal, isDecimal},
	{TypeDate, func(v string) bool { return matchesTemporal(v, datePatterns) }},
	{TypeTime, func(v string) bool { return matchesTemporal(v, timePatterns) }},
	{TypeDateTime, func(v string) bool { return matchesTemporal(v, datetimePatterns) }},
}

// InferColumnType returns the most specific TypeTag for which every
// non-empty value in the column matches. Empty and whitespace-only values
// are treated as null under any tag. The result is deterministic: the whole
// column is evaluated against a fixed matcher order, no sampling.
func InferColumnType(values []string) TypeTag {
	nonEmpty := 0
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return TypeText
	}

	for _, m := range typeMatchers {
		all := true
		for _, value := range values {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			if !m.match(value) {
				all = false
				break
			}
		}
		if all {
			return m.tag
		}
	}
	return TypeText
}

// convertValue turns a raw field into the typed value stored for a column.
// Empty input becomes nil (SQL NULL). A non-empty value that no longer
// parses under the column's tag also becomes nil rather than failing the
// whole ingestion.
func convertValue(tag TypeTag, raw string) any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	switch tag {
	case TypeBoolean:
		switch strings.ToLower(trimmed) {
		case "true", "t", "yes":
			return int64(1)
		case "false", "f", "no":
			return int64(0)
		}
		return nil
	case TypeInteger:
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case TypeDecimal:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil
		}
		return f
	case TypeDate, TypeTime, TypeDateTime:
		// Stored verbatim so "9:15" never becomes "09:15" on output.
		return trimmed
	default:
		return raw
	}
}
