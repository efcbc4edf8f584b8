package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/duckstack/duckstack/pkg/catalog"
	"github.com/duckstack/duckstack/pkg/fetch"
	"github.com/duckstack/duckstack/pkg/models"
	"github.com/duckstack/duckstack/pkg/query"
)

const cacheHeader = "X-Duckstack-Cache"

func (s *Server) handleSourceQuery(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "source catalog unavailable")
		return
	}

	var req models.SourceQueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" {
		writeJSONError(w, http.StatusBadRequest, "source is required")
		return
	}

	reqID := requestID(r)
	w.Header().Set("X-Request-ID", reqID)

	start := time.Now()
	entry := models.FetchLogEntry{
		RequestID: reqID,
		Source:    req.Source,
		Filtered:  strings.TrimSpace(req.SQL) != "",
	}
	fail := func(code int, err error) {
		entry.StatusCode = code
		entry.Error = err.Error()
		entry.LatencyMs = time.Since(start).Milliseconds()
		s.logFetch(entry)
		writeJSONError(w, code, err.Error())
	}

	src, err := s.catalog.Get(r.Context(), req.Source)
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown source %q", req.Source))
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("source", req.Source).Msg("catalog lookup failed")
		writeJSONError(w, http.StatusInternalServerError, "catalog lookup failed")
		return
	}

	res, err := s.fetcher.Fetch(r.Context(), src, req.Params)
	if err != nil {
		fail(statusFor(err), err)
		return
	}
	entry.Fingerprint = res.Fingerprint
	entry.Cached = res.Cached

	table := res.Table
	if entry.Filtered {
		table, err = s.engine.Filter(r.Context(), src.Name, res.Table, req.SQL)
		if err != nil {
			fail(statusFor(err), err)
			return
		}
	}

	entry.StatusCode = http.StatusOK
	entry.RowCount = table.RowCount()
	entry.LatencyMs = time.Since(start).Milliseconds()
	s.logFetch(entry)

	if res.Cached {
		w.Header().Set(cacheHeader, "hit")
	} else {
		w.Header().Set(cacheHeader, "miss")
	}
	writeJSON(w, http.StatusOK, models.NewSourceQueryResponse(src.Name, table, res.Cached))
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		cfgErr   *models.ConfigError
		fetchErr *fetch.FetchError
		pathErr  *fetch.PathError
		queryErr *query.QueryError
	)
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &queryErr):
		return http.StatusBadRequest
	case errors.As(err, &fetchErr), errors.As(err, &pathErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return ulid.Make().String()
}

// logFetch writes entry to the fetch log without blocking the response.
func (s *Server) logFetch(entry models.FetchLogEntry) {
	if s.auditor == nil {
		return
	}
	entry.CreatedAt = time.Now().UTC()
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.auditor.Log(context.Background(), entry); err != nil {
			s.log.Warn().Err(err).Str("request_id", entry.RequestID).Msg("fetch log write failed")
		}
	}()
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "source catalog unavailable")
		return
	}
	srcs, err := s.catalog.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list sources failed")
		writeJSONError(w, http.StatusInternalServerError, "list sources failed")
		return
	}
	out := make([]models.SourceDefinition, 0, len(srcs))
	for _, src := range srcs {
		out = append(out, src.Redacted())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "source catalog unavailable")
		return
	}
	name := r.PathValue("name")
	src, err := s.catalog.Get(r.Context(), name)
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown source %q", name))
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("source", name).Msg("catalog lookup failed")
		writeJSONError(w, http.StatusInternalServerError, "catalog lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, src.Redacted())
}

func (s *Server) handlePutSource(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "source catalog unavailable")
		return
	}
	name := r.PathValue("name")

	var src models.SourceDefinition
	if err := decodeBody(w, r, &src); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if src.Name == "" {
		src.Name = name
	}
	if src.Name != name {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("body name %q does not match path %q", src.Name, name))
		return
	}

	if err := s.catalog.Upsert(r.Context(), src); err != nil {
		var cfgErr *models.ConfigError
		if errors.As(err, &cfgErr) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error().Err(err).Str("source", name).Msg("upsert source failed")
		writeJSONError(w, http.StatusInternalServerError, "upsert source failed")
		return
	}
	s.log.Info().Str("source", name).Msg("source registered")
	writeJSON(w, http.StatusOK, src.Redacted())
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "source catalog unavailable")
		return
	}
	name := r.PathValue("name")
	ok, err := s.catalog.Delete(r.Context(), name)
	if err != nil {
		s.log.Error().Err(err).Str("source", name).Msg("delete source failed")
		writeJSONError(w, http.StatusInternalServerError, "delete source failed")
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown source %q", name))
		return
	}
	s.log.Info().Str("source", name).Msg("source removed")
	w.WriteHeader(http.StatusNoContent)
}
