package csvapi

import (
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
)

// MimeClass is the container format class determined by content sniffing.
type MimeClass int

const (
	// MimeUnsupported means no usable parser exists for the content
	MimeUnsupported MimeClass = iota
	// MimeDelimitedText means delimiter-separated text (CSV and friends)
	MimeDelimitedText
	// MimeLegacySpreadsheet means an OLE compound spreadsheet (.xls)
	MimeLegacySpreadsheet
	// MimeModernSpreadsheet means an OOXML spreadsheet (.xlsx)
	MimeModernSpreadsheet
)

// String returns a short class name for logs and error messages.
func (c MimeClass) String() string {
	switch c {
	case MimeDelimitedText:
		return "delimited_text"
	case MimeLegacySpreadsheet:
		return "legacy_spreadsheet"
	case MimeModernSpreadsheet:
		return "modern_spreadsheet"
	default:
		return "unsupported"
	}
}

// DetectedFormat is the result of content detection for one source.
// Encoding is empty for spreadsheet classes, which carry their own
// internal encoding, and when detection was inconclusive.
type DetectedFormat struct {
	Class    MimeClass
	Encoding string
}

// detectSampleSize bounds how many bytes the charset detector looks at.
const detectSampleSize = 64 * 1024

// DetectFormat classifies content by magic bytes and structural probes,
// never by filename. It is a pure function of the content: unsupported
// input yields MimeUnsupported rather than an error, leaving the caller
// to decide whether that is fatal.
func DetectFormat(data []byte) DetectedFormat {
	if len(data) == 0 {
		return DetectedFormat{Class: MimeUnsupported}
	}

	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"):
		return DetectedFormat{Class: MimeModernSpreadsheet}
	case mtype.Is("application/vnd.ms-excel"), mtype.Is("application/x-ole-storage"):
		return DetectedFormat{Class: MimeLegacySpreadsheet}
	}

	// mimetype only recognizes valid UTF-8 as text, so fall back to a
	// structural probe for single-byte encodings such as ISO-8859-1.
	if !isTextClass(mtype) && !looksTextual(data) {
		return DetectedFormat{Class: MimeUnsupported}
	}

	return DetectedFormat{
		Class:    MimeDelimitedText,
		Encoding: detectEncoding(data),
	}
}

// isTextClass walks the detected MIME hierarchy looking for a text/* class.
func isTextClass(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") || m.Is("text/csv") || m.Is("text/tab-separated-values") {
			return true
		}
	}
	return false
}

// looksTextual probes a bounded prefix for bytes that never appear in
// delimiter-separated text. NUL or a high share of control characters
// disqualifies the content.
func looksTextual(data []byte) bool {
	sample := data
	if len(sample) > detectSampleSize {
		sample = sample[:detectSampleSize]
	}

	control := 0
	for _, b := range sample {
		if b == 0 {
			return false
		}
		if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
	}
	return control*10 < len(sample)
}

// detectEncoding runs statistical charset detection over a bounded prefix.
// Returns the IANA charset name, or empty when detection fails.
func detectEncoding(data []byte) string {
	sample := data
	if len(sample) > detectSampleSize {
		sample = sample[:detectSampleSize]
	}

	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || result == nil {
		return ""
	}
	return result.Charset
}
