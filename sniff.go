package csvapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

// Candidate delimiters for structural sniffing, most common first.
var sniffCandidates = []rune{',', ';', '\t', '|'}

// DefaultSniffWindow bounds how much content the sniffer inspects.
// Matches the sniff limit the service has always used.
const DefaultSniffWindow = 4096

// sniffDelimiter guesses the field delimiter from a bounded prefix of the
// content. For each candidate it parses the prefix as CSV and scores the
// candidate by field-count consistency across rows; a candidate only
// qualifies when it yields more than one field. Returns an error when no
// candidate qualifies, which sends the parser to its fallback strategies.
func sniffDelimiter(data []byte, window int) (rune, error) {
	if window <= 0 {
		window = DefaultSniffWindow
	}
	prefix := data
	if len(prefix) > window {
		prefix = prefix[:window]
		// Drop the trailing partial line so it cannot skew field counts.
		if i := bytes.LastIndexByte(prefix, '\n'); i > 0 {
			prefix = prefix[:i]
		}
	}

	best := rune(0)
	bestScore := -1
	for _, cand := range sniffCandidates {
		score := scoreDelimiter(prefix, cand)
		if score > bestScore {
			best = cand
			bestScore = score
		}
	}

	if bestScore <= 0 {
		return 0, fmt.Errorf("%w: no delimiter detected", ErrMalformedInput)
	}
	return best, nil
}

// consistencyBonus ranks any candidate with uniform field counts above
// every candidate whose rows disagree.
const consistencyBonus = 1000

// scoreDelimiter parses the prefix with the candidate delimiter. A candidate
// scores zero unless it yields more than one field somewhere; uniform field
// counts across rows outrank any inconsistent candidate, and wider rows
// outrank narrower ones within each group.
func scoreDelimiter(prefix []byte, delimiter rune) int {
	r := csv.NewReader(bytes.NewReader(prefix))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	minFields, maxFields, rows := 0, 0, 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0
		}
		rows++
		if rows == 1 || len(rec) < minFields {
			minFields = len(rec)
		}
		if len(rec) > maxFields {
			maxFields = len(rec)
		}
	}

	if rows == 0 || maxFields < 2 {
		return 0
	}
	if minFields == maxFields {
		return consistencyBonus + maxFields
	}
	return maxFields
}
