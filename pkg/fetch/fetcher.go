package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/duckstack/duckstack/pkg/cache"
	"github.com/duckstack/duckstack/pkg/credentials"
	"github.com/duckstack/duckstack/pkg/models"
	"github.com/duckstack/duckstack/pkg/tabular"
)

// Default limits for upstream requests.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 64 << 20
	errorBodyLimit      = 512
)

// Fetcher turns source definitions into tabular results. It is safe for
// concurrent use. Concurrent misses for the same fingerprint each go
// upstream; the last one to finish owns the cache entry.
type Fetcher struct {
	client    *http.Client
	cache     *cache.Cache
	creds     *credentials.Resolver
	timeout   time.Duration
	maxBody   int64
	userAgent string
	logger    zerolog.Logger

	upstream       atomic.Int64
	upstreamErrors atomic.Int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for upstream requests.
func WithHTTPClient(c *http.Client) Option { return func(f *Fetcher) { f.client = c } }

// WithCredentials sets the credential resolver.
func WithCredentials(r *credentials.Resolver) Option { return func(f *Fetcher) { f.creds = r } }

// WithTimeout bounds each upstream request.
func WithTimeout(d time.Duration) Option { return func(f *Fetcher) { f.timeout = d } }

// WithMaxBodyBytes caps the size of an upstream response body.
func WithMaxBodyBytes(n int64) Option { return func(f *Fetcher) { f.maxBody = n } }

// WithUserAgent sets the User-Agent header sent upstream.
func WithUserAgent(ua string) Option { return func(f *Fetcher) { f.userAgent = ua } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(f *Fetcher) { f.logger = l } }

// New creates a Fetcher. A nil cache disables caching.
func New(c *cache.Cache, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  http.DefaultClient,
		cache:   c,
		creds:   credentials.New(),
		timeout: DefaultTimeout,
		maxBody: DefaultMaxBodyBytes,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Result is the outcome of a successful Fetch.
type Result struct {
	Table       *models.TabularResult
	Cached      bool
	Fingerprint string
	// StatusCode is the upstream status, or 0 when served from cache.
	StatusCode int
}

// upstreamRequest is a fully resolved request for one source.
type upstreamRequest struct {
	params map[string]string
	header http.Header
	key    string
}

// prepare merges parameters, injects the credential and derives the cache key.
func (f *Fetcher) prepare(src *models.SourceDefinition, runtime map[string]string) upstreamRequest {
	params := make(map[string]string, len(src.QueryParams)+len(runtime)+1)
	for k, v := range src.QueryParams {
		params[k] = v
	}
	for k, v := range runtime {
		params[k] = v
	}

	header := make(http.Header)
	if token := f.creds.Resolve(src); token != "" {
		switch {
		case src.APIKeyParam != "":
			params[src.APIKeyParam] = token
		case src.AuthHeader != "":
			header.Set(src.AuthHeader, "Bearer "+token)
		}
	}

	return upstreamRequest{
		params: params,
		header: header,
		key:    cache.Fingerprint(src.Name, params),
	}
}

// Fingerprint returns the cache key a Fetch of src with runtime params uses.
func (f *Fetcher) Fingerprint(src *models.SourceDefinition, runtime map[string]string) string {
	return f.prepare(src, runtime).key
}

// Fetch returns the table for src and runtime params, from cache when a
// live entry exists. Errors are *models.ConfigError, *FetchError or
// *PathError; none of them leave a cache entry behind.
func (f *Fetcher) Fetch(ctx context.Context, src *models.SourceDefinition, runtime map[string]string) (*Result, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	req := f.prepare(src, runtime)
	log := f.logger.With().Str("source", src.Name).Logger()

	if f.cache != nil {
		if tbl, ok := f.cache.Get(req.key); ok {
			log.Debug().Int("rows", tbl.RowCount()).Msg("cache hit")
			return &Result{Table: tbl, Cached: true, Fingerprint: req.key}, nil
		}
	}

	start := time.Now()
	doc, status, err := f.get(ctx, src, req)
	if err != nil {
		f.upstreamErrors.Add(1)
		log.Warn().Err(err).Dur("latency", time.Since(start)).Msg("upstream fetch failed")
		return nil, err
	}

	records, err := doc.Records(src.ResponsePath)
	if err != nil {
		return nil, err
	}
	tbl, err := tabular.Normalize(records)
	if err != nil {
		return nil, fmt.Errorf("normalize source %q: %w", src.Name, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Source: src.Name, Err: err}
	}
	if f.cache != nil {
		f.cache.Put(req.key, tbl, time.Duration(src.TTLSeconds)*time.Second)
	}

	log.Info().
		Int("status", status).
		Int("rows", tbl.RowCount()).
		Int("columns", len(tbl.Columns)).
		Dur("latency", time.Since(start)).
		Msg("fetched upstream")

	return &Result{Table: tbl, Fingerprint: req.key, StatusCode: status}, nil
}

// get performs the single upstream GET and parses the body.
func (f *Fetcher) get(ctx context.Context, src *models.SourceDefinition, req upstreamRequest) (tabular.Value, int, error) {
	f.upstream.Add(1)

	target, err := url.Parse(src.EndpointURL)
	if err != nil {
		return tabular.Value{}, 0, &models.ConfigError{Source: src.Name, Reason: fmt.Sprintf("endpoint_url: %v", err)}
	}
	q := target.Query()
	for k, v := range req.params {
		q.Set(k, v)
	}
	target.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return tabular.Value{}, 0, &FetchError{Source: src.Name, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}
	for k, vals := range req.header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		// url.Error embeds the full URL, which may carry the API key.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return tabular.Value{}, 0, &FetchError{
			Source:  src.Name,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return tabular.Value{}, resp.StatusCode, &FetchError{
			Source:     src.Name,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return tabular.Value{}, resp.StatusCode, &FetchError{
			Source:  src.Name,
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     fmt.Errorf("read response: %w", err),
		}
	}
	if int64(len(body)) > f.maxBody {
		return tabular.Value{}, resp.StatusCode, &FetchError{Source: src.Name, Err: fmt.Errorf("response exceeds %d bytes", f.maxBody)}
	}

	doc, err := tabular.Parse(body)
	if err != nil {
		return tabular.Value{}, resp.StatusCode, &FetchError{Source: src.Name, Err: fmt.Errorf("invalid JSON body: %w", err)}
	}
	return doc, resp.StatusCode, nil
}

// UpstreamRequests returns how many upstream GETs were attempted.
func (f *Fetcher) UpstreamRequests() int64 { return f.upstream.Load() }

// UpstreamErrors returns how many upstream GETs failed.
func (f *Fetcher) UpstreamErrors() int64 { return f.upstreamErrors.Load() }
