// Package server exposes symbol queries and analyzer sessions as MCP tools.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"symscope/internal/apperr"
	"symscope/internal/lsp"
	"symscope/internal/query"
)

// closeTimeout bounds analyzer shutdown when the server stops.
const closeTimeout = 5 * time.Second

type Server struct {
	mcpServer    *mcp.Server
	queries      *query.Dispatcher
	sessions     *lsp.Pool
	systemPrompt string
}

// New builds the MCP server and registers every tool and resource.
func New(queries *query.Dispatcher, sessions *lsp.Pool, version string) *Server {
	s := &Server{
		queries:      queries,
		sessions:     sessions,
		systemPrompt: usageGuidelines,
	}
	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "symscope",
		Version: version,
	}, &mcp.ServerOptions{
		Instructions: usageGuidelines,
	})
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server for custom transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Run serves MCP over stdio until ctx is done or the client disconnects,
// then closes every analyzer session.
func (s *Server) Run(ctx context.Context) error {
	log.Info().Msg("serving MCP on stdio")
	err := s.mcpServer.Run(ctx, &mcp.StdioTransport{})
	s.Close()
	return err
}

// Close stops every analyzer session.
func (s *Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.sessions.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to close analyzer sessions")
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// failure labels err with its taxonomy kind, e.g. "InvalidQuery: empty search term".
func failure(tool string, err error) *mcp.CallToolResult {
	kind := apperr.KindOf(err)
	log.Debug().Str("tool", tool).Str("kind", string(kind)).Err(err).Msg("tool failed")
	return errorResult(fmt.Sprintf("%s: %v", kind, err))
}
