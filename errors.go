package csvapi

import "errors"

// Sentinel errors shared by the ingestion pipeline and the query engine.
// The server layer maps these to HTTP status codes; intermediate layers wrap
// them with fmt.Errorf("...: %w", err) so errors.Is keeps working.
var (
	// ErrUnsupportedFormat indicates detection found no usable parser for the content
	ErrUnsupportedFormat = errors.New("csvapi: unsupported file format")

	// ErrMalformedInput indicates all parse fallback strategies were exhausted
	ErrMalformedInput = errors.New("csvapi: malformed input")

	// ErrSizeExceeded indicates the source exceeded the configured size ceiling
	ErrSizeExceeded = errors.New("csvapi: file too big")

	// ErrMaterialization indicates the store failed to persist a table
	ErrMaterialization = errors.New("csvapi: materialization failed")

	// ErrNotFound indicates no materialized table exists for the identity
	ErrNotFound = errors.New("csvapi: table not found")

	// ErrInvalidQuery indicates malformed query parameters
	ErrInvalidQuery = errors.New("csvapi: invalid query")

	// errDuplicateColumnName is returned when a source contains duplicate column names
	errDuplicateColumnName = errors.New("csvapi: duplicate column name")
)
