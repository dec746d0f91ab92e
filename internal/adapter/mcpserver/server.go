// Package mcpserver binds the tool registry to the Model Context Protocol
// using mark3labs/mcp-go.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"paybot-mcp/internal/adapter/tool"
	"paybot-mcp/internal/domain"
	"paybot-mcp/internal/infra/tracer"
)

// Options configures the MCP server identity.
type Options struct {
	Name    string
	Version string
}

// Server exposes every registry tool over MCP. A handler failure is always
// reported as an isError tool result; it never becomes a JSON-RPC error and
// never closes the channel.
type Server struct {
	mcp       *server.MCPServer
	registry  *tool.Registry
	logger    *slog.Logger
	metrics   *Metrics
	opts      Options
	startTime time.Time
}

// New builds the MCP server and registers all tools in reg.
func New(reg *tool.Registry, logger *slog.Logger, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "paybot"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		mcp: server.NewMCPServer(opts.Name, opts.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		registry:  reg,
		logger:    logger,
		metrics:   &Metrics{},
		opts:      opts,
		startTime: time.Now(),
	}

	for _, t := range reg.List() {
		schema := t.Schema()
		s.mcp.AddTool(mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.Parameters), s.handler(t))
	}
	logger.Debug("mcp tools registered", "count", len(reg.List()))
	return s
}

// MCP returns the underlying mcp-go server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Metrics returns the call counters.
func (s *Server) Metrics() *Metrics { return s.metrics }

// handler adapts a domain.Tool to an mcp-go tool handler.
func (s *Server) handler(t domain.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		start := time.Now()
		callID := ulid.Make().String()
		ctx = domain.ContextWithCallID(ctx, callID)

		ctx, span := tracer.StartSpan(ctx, "mcp.tools/call",
			trace.WithAttributes(
				tracer.StringAttr("tool.name", t.Name()),
				tracer.StringAttr("call.id", callID),
			),
		)
		defer span.End()

		s.metrics.ToolCallsTotal.Add(1)

		var out *domain.ToolResult
		defer func() {
			if r := recover(); r != nil {
				panicErr := fmt.Errorf("panic: %v", r)
				tracer.RecordError(span, panicErr)
				s.logger.Error("tool panicked",
					"call_id", callID,
					"tool", t.Name(),
					"panic", fmt.Sprint(r),
				)
				out = tool.ErrResult("internal error: %v", r)
			}
			if out.IsError {
				s.metrics.ToolErrorsTotal.Add(1)
			}
			s.logger.Info("tool call",
				"call_id", callID,
				"tool", t.Name(),
				"status", status(out),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			result, err = toCallResult(out), nil
		}()

		args, argErr := rawArguments(req)
		if argErr != nil {
			out = tool.ErrResult("invalid arguments: %v", argErr)
			return
		}

		res, execErr := t.Execute(ctx, args)
		switch {
		case execErr != nil:
			tracer.RecordError(span, execErr)
			out = tool.ResultFromError(execErr)
		case res == nil:
			out = tool.ErrResult("internal error: tool %s returned no result", t.Name())
		default:
			if !res.IsError {
				tracer.SetOK(span)
			}
			out = res
		}
		return
	}
}

// rawArguments re-encodes the decoded tool arguments so handlers can parse
// them into their own parameter types.
func rawArguments(req mcp.CallToolRequest) (json.RawMessage, error) {
	switch v := req.Params.Arguments.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}

// toCallResult renders a ToolResult as a single text block.
func toCallResult(r *domain.ToolResult) *mcp.CallToolResult {
	if r.IsError {
		return mcp.NewToolResultError(r.Content)
	}
	return mcp.NewToolResultText(r.Content)
}

func status(r *domain.ToolResult) string {
	switch {
	case r.IsError && r.IsRetryable:
		return "retryable_error"
	case r.IsError:
		return "error"
	default:
		return "ok"
	}
}
