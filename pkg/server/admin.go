package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/duckstack/duckstack/pkg/catalog"
	"github.com/duckstack/duckstack/pkg/models"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.engine.Query(r.Context(), req.SQL)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		return
	}

	rows := res.Rows
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, models.QueryResponse{
		Columns:  res.ColumnNames(),
		Rows:     rows,
		RowCount: res.RowCount(),
	})
}

type cacheStatsResponse struct {
	Enabled bool `json:"enabled"`
	models.CacheStats
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	resp := cacheStatsResponse{Enabled: s.cache != nil}
	if s.cache != nil {
		resp.CacheStats = s.cache.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, _ *http.Request) {
	if s.cache == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}
	s.cache.Clear()
	s.log.Info().Msg("cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCachePurge(w http.ResponseWriter, _ *http.Request) {
	if s.cache == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}
	n := s.cache.Purge()
	s.log.Info().Int("purged", n).Msg("expired cache entries purged")
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "cache disabled")
		return
	}
	if s.catalog == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "source catalog unavailable")
		return
	}

	var req models.InvalidateRequest
	if err := decodeBody(w, r, &req); err != nil || req.Source == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
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

	s.cache.Invalidate(s.fetcher.Fingerprint(src, req.Params))
	w.WriteHeader(http.StatusNoContent)
}
