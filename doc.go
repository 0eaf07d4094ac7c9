// Package csvapi turns tabular files of unknown encoding and structure
// into queryable SQLite tables and answers filtered, sorted, paginated
// read queries against them.
//
// The pipeline has four stages:
//
//   - DetectFormat classifies raw content by magic bytes and structural
//     probes (delimited text, legacy or modern spreadsheet) and guesses the
//     character encoding of delimited text statistically.
//   - Parser turns the bytes into an in-memory Table, trying a sniffed
//     delimiter first and falling back to a default comma and then a forced
//     semicolon before giving up.
//   - InferColumnType assigns each column the most specific type every one
//     of its values fits (boolean, integer, decimal, date, time, datetime,
//     text). Time-like values round-trip verbatim: "9:15" stays "9:15".
//   - Store.Materialize persists the Table into a per-identity SQLite
//     database file, atomically replacing any previous version.
//
// Engine then translates a small query DSL (filters, one sort key,
// limit/offset, array or object row shapes) into parameterized SQL against
// the materialized table.
//
// Tables are immutable once ingested; re-ingesting the same source address
// replaces the whole table atomically from a reader's perspective.
package csvapi
