package mcpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

// ServeStdio serves newline-delimited JSON-RPC on in/out until the peer
// closes the channel or ctx is cancelled. out carries protocol traffic
// only; diagnostics go to the logger.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("mcp server listening", "transport", "stdio", "name", s.opts.Name, "version", s.opts.Version)

	err := stdio.Listen(ctx, in, out)
	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		s.logger.Info("mcp channel closed", "transport", "stdio")
		return nil
	default:
		return err
	}
}
