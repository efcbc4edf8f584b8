package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duckstack/duckstack/pkg/audit"
	"github.com/duckstack/duckstack/pkg/cache"
	"github.com/duckstack/duckstack/pkg/fetch"
	"github.com/duckstack/duckstack/pkg/models"
	"github.com/duckstack/duckstack/pkg/query"
)

const maxRequestBody = 1 << 20

// SourceStore is the catalog of source definitions the server resolves
// names against.
type SourceStore interface {
	Get(ctx context.Context, name string) (*models.SourceDefinition, error)
	List(ctx context.Context) ([]models.SourceDefinition, error)
	Upsert(ctx context.Context, src models.SourceDefinition) error
	Delete(ctx context.Context, name string) (bool, error)
}

// Deps are the collaborators a Server is wired with. Catalog, Cache and
// Audit may be nil.
type Deps struct {
	Catalog SourceStore
	Fetcher *fetch.Fetcher
	Cache   *cache.Cache
	Engine  *query.Engine
	Audit   *audit.Logger
	Logger  zerolog.Logger
}

// Server is the duckstack HTTP API.
type Server struct {
	listen  string
	catalog SourceStore
	fetcher *fetch.Fetcher
	cache   *cache.Cache
	engine  *query.Engine
	auditor *audit.Logger
	log     zerolog.Logger
	mux     *http.ServeMux
	pending sync.WaitGroup
}

// New creates a Server listening on listen.
func New(listen string, d Deps) *Server {
	s := &Server{
		listen:  listen,
		catalog: d.Catalog,
		fetcher: d.Fetcher,
		cache:   d.Cache,
		engine:  d.Engine,
		auditor: d.Audit,
		log:     d.Logger,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("POST /query", s.handleQuery)

	s.mux.HandleFunc("POST /sources/query", s.handleSourceQuery)
	s.mux.HandleFunc("GET /sources", s.handleListSources)
	s.mux.HandleFunc("GET /sources/{name}", s.handleGetSource)
	s.mux.HandleFunc("PUT /sources/{name}", s.handlePutSource)
	s.mux.HandleFunc("DELETE /sources/{name}", s.handleDeleteSource)

	s.mux.HandleFunc("GET /cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("DELETE /cache", s.handleCacheClear)
	s.mux.HandleFunc("POST /cache/purge", s.handleCachePurge)
	s.mux.HandleFunc("POST /cache/invalidate", s.handleCacheInvalidate)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the server with graceful shutdown support. Pending
// fetch log writes are flushed before it returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.listen).Msg("duckstack listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutCtx)
		s.pending.Wait()
		return err
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]errorBody{
		"error": {Message: message, Type: "duckstack_error", Code: code},
	})
}
