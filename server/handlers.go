package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opendatateam/csvapi"
	"github.com/opendatateam/csvapi/fetch"
	"github.com/opendatateam/csvapi/logging"
)

// apifyResponse is the body returned after a successful ingestion.
type apifyResponse struct {
	OK       bool   `json:"ok"`
	Endpoint string `json:"endpoint"`
}

// handleApify fetches a remote tabular source, runs the full pipeline, and
// answers with the query endpoint for its identity. Concurrent requests
// for the same address share one ingestion.
func (s *Server) handleApify(w http.ResponseWriter, r *http.Request) {
	address := r.FormValue("url")
	if address == "" {
		s.respondError(w, r, fetch.ErrInvalidURL)
		return
	}
	if err := fetch.ValidateURL(address); err != nil {
		s.respondError(w, r, err)
		return
	}

	identity := csvapi.Identity(address)

	if s.cfg.CacheEnabled && s.store.Exists(identity) {
		s.respondJSON(w, http.StatusOK, apifyResponse{OK: true, Endpoint: s.endpointFor(r, identity)})
		return
	}

	// The declared encoding is part of the coalescing key: two callers
	// naming different encodings must each get their own ingestion.
	encoding := r.FormValue("encoding")
	_, err, _ := s.inflight.Do(identity+"\x00"+encoding, func() (any, error) {
		return nil, s.ingest(r, address, identity, encoding)
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, apifyResponse{OK: true, Endpoint: s.endpointFor(r, identity)})
}

// ingest runs fetch, decompress, detect, parse, materialize for one source.
func (s *Server) ingest(r *http.Request, address, identity, encoding string) error {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	data, err := s.fetcher.Fetch(ctx, address)
	if err != nil {
		return err
	}

	data, err = csvapi.Decompress(data, s.cfg.MaxFileSize)
	if err != nil {
		return err
	}

	detected := csvapi.DetectFormat(data)
	log.Debug("detected format",
		"identity", identity,
		"class", detected.Class.String(),
		"encoding", detected.Encoding,
	)

	table, err := s.parser.Parse(data, detected, encoding)
	if err != nil {
		return err
	}

	if err := s.store.Materialize(ctx, table, identity); err != nil {
		return err
	}

	log.Info("materialized table",
		"identity", identity,
		"columns", len(table.Header()),
		"rows", table.RowCount(),
	)
	return nil
}

// endpointFor builds the absolute query endpoint for an identity.
func (s *Server) endpointFor(r *http.Request, identity string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: "/api/" + identity}
	return u.String()
}

// handleQuery answers a read query against a materialized table.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	spec, err := csvapi.ParseQuerySpec(r.URL.Query())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.engine.Execute(r.Context(), identity, spec)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, result)
}

// handleProfile serves the cached profiling report, generating it on first
// request.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	path, err := s.profiles.Generate(r.Context(), identity)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	http.ServeFile(w, r, path)
}

// respondJSON writes a JSON body with the given status.
func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// referrerFilter rejects requests whose Referer is not in the allowed
// domain list. An empty Referer is rejected too: the filter is meant for
// embedding the API behind known portals only.
func referrerFilter(domains []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			referer := r.Header.Get("Referer")
			if refererAllowed(referer, domains) {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, `{"error": "forbidden", "ok": false}`, http.StatusForbidden)
		})
	}
}

// refererAllowed matches the referrer host against the allowed domains,
// including their subdomains.
func refererAllowed(referer string, domains []string) bool {
	if referer == "" {
		return false
	}
	u, err := url.Parse(referer)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for _, domain := range domains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
