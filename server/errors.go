package server

// errors.go maps pipeline and query errors to HTTP responses. Client
// errors carry their message through; server errors get a generic body
// with details only in the log.

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/opendatateam/csvapi"
	"github.com/opendatateam/csvapi/fetch"
	"github.com/opendatateam/csvapi/logging"
)

// errorResponse is the JSON error body, matching the service's historical
// shape: a message plus ok=false.
type errorResponse struct {
	Error string `json:"error"`
	OK    bool   `json:"ok"`
}

// statusFor classifies an error as a client or server failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, csvapi.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, csvapi.ErrInvalidQuery),
		errors.Is(err, csvapi.ErrUnsupportedFormat),
		errors.Is(err, csvapi.ErrMalformedInput),
		errors.Is(err, fetch.ErrInvalidURL):
		return http.StatusBadRequest
	default:
		// ErrSizeExceeded included: the download failed server-side, the
		// client request itself was well-formed.
		return http.StatusInternalServerError
	}
}

// messageFor picks the user-facing message. Client errors are safe to
// echo; server errors are reduced to a stable short message.
func messageFor(err error, status int) string {
	if errors.Is(err, csvapi.ErrSizeExceeded) {
		return "File too big"
	}
	if status < http.StatusInternalServerError {
		return strings.TrimPrefix(err.Error(), "csvapi: ")
	}
	return "internal error"
}

// respondError logs the technical error and writes the mapped JSON body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		log.Info("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: messageFor(err, status)})
}
