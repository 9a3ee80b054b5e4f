package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dravya-labs/dravya/pkg/models"
	"go.uber.org/zap"
)

// Identifier classifies sensor input and enriches the result.
type Identifier interface {
	Identify(ctx context.Context, in models.SensorInput) (models.IdentifyResponse, error)
	Search(ctx context.Context, name string) (models.IdentifyResponse, error)
	Research(ctx context.Context, q models.ResearchQuery) (models.ResearchResponse, error)
	Labels() []string
}

// Enricher produces content for a single label.
type Enricher interface {
	Describe(ctx context.Context, label string) (string, error)
	Illustrate(ctx context.Context, label string) ([]byte, error)
}

// CacheStatter reports content cache metrics.
type CacheStatter interface {
	Stats() models.CacheStats
}

// LedgerStatter aggregates generation attempts.
type LedgerStatter interface {
	Stats(ctx context.Context) ([]models.LedgerStat, error)
}

// Server exposes dravya over MCP on a line-delimited JSON-RPC stream.
// cache and ledger may be nil.
type Server struct {
	svc     Identifier
	enrich  Enricher
	cache   CacheStatter
	ledger  LedgerStatter
	version string
	log     *zap.Logger
}

// New creates a Server.
func New(svc Identifier, enrich Enricher, cache CacheStatter, ledger LedgerStatter, version string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		svc:     svc,
		enrich:  enrich,
		cache:   cache,
		ledger:  ledger,
		version: version,
		log:     log,
	}
}

// Run serves requests read from r until r is exhausted or ctx is done.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

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
			s.writeResponse(w, *errorFor(&Request{}, CodeParseError, "parse error"))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.writeResponse(w, *resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultFor(req, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "dravya", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return resultFor(req, map[string]any{})
	case "tools/list":
		return resultFor(req, ToolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return errorFor(req, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorFor(req, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return resultFor(req, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	res := handler(ctx, s, params.Arguments)
	s.log.Debug("mcp tool call", zap.String("tool", params.Name), zap.Bool("is_error", res.IsError))
	return resultFor(req, res)
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("mcp marshal", zap.Error(err))
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error("mcp write", zap.Error(err))
	}
}
