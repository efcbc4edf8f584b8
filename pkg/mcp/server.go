package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/duckstack/duckstack/pkg/audit"
	"github.com/duckstack/duckstack/pkg/cache"
	"github.com/duckstack/duckstack/pkg/fetch"
	"github.com/duckstack/duckstack/pkg/models"
	"github.com/duckstack/duckstack/pkg/query"
)

const maxLine = 1 << 20

// Catalog resolves source definitions by name.
type Catalog interface {
	Get(ctx context.Context, name string) (*models.SourceDefinition, error)
	List(ctx context.Context) ([]models.SourceDefinition, error)
}

// Deps wire a Server. Cache and Audit may be nil.
type Deps struct {
	Catalog Catalog
	Fetcher *fetch.Fetcher
	Engine  *query.Engine
	Cache   *cache.Cache
	Audit   *audit.Logger
	Logger  zerolog.Logger
	Version string
}

// Server is an MCP server over stdio.
type Server struct {
	catalog Catalog
	fetcher *fetch.Fetcher
	engine  *query.Engine
	cache   *cache.Cache
	auditor *audit.Logger
	log     zerolog.Logger
	version string
}

// New creates a Server.
func New(d Deps) *Server {
	return &Server{
		catalog: d.Catalog,
		fetcher: d.Fetcher,
		engine:  d.Engine,
		cache:   d.Cache,
		auditor: d.Audit,
		log:     d.Logger,
		version: d.Version,
	}
}

// Run reads JSON-RPC requests from r line by line and writes responses to w.
// It blocks until r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}
		if req.JSONRPC != jsonrpcVersion {
			s.writeResponse(w, errorResponse(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\""))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.writeResponse(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "duckstack", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.log.Debug().Str("tool", params.Name).Msg("tool call")
	return resultResponse(req.ID, handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("mcp: marshal response")
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("mcp: write response")
	}
}
