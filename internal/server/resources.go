package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

const (
	guidelinesURI = "symscope://usage-guidelines"
	schemaPrefix  = "symscope://schemas/"
)

const usageGuidelines = `# symscope

symscope answers questions about code symbols without compiling anything.

## Static queries

Each query reads the sources it needs on every call, so results always match the files on disk.

- list_types: the types declared in a file or project. Start here when exploring.
- get_type_info: bases and public members of one type. Accepts simple or qualified names.
- find_symbol: substring search over types and members. A matching type brings its members.
- get_method_signature: every overload of a method. "Type.Method" narrows to one type.
- find_external_symbol: searches the libraries a project references (project references,
  NuGet packages in the local cache, Go modules in the module cache).
- analyze_project: sources, references, diagnostics and an optional search.

## Analyzer sessions

The lsp_* tools drive a language analyzer chosen by file extension. The first call starts it;
later calls reuse it. Lines and characters are zero-based.

- A SessionTerminated error means the analyzer went away. Retrying restarts it. After two
  failures in a row without a successful request, the next call reports SessionTerminated
  without restarting; the call after that starts a fresh analyzer.
- BackendNotFound and BinaryMissing mean the analyzer is not installed.

## Errors

Tool errors start with their kind: ParseError, InvalidQuery, BackendNotFound, BinaryMissing,
ProcessLaunchFailed, SessionTerminated or InternalError.
`

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         guidelinesURI,
		Name:        "Usage Guidelines",
		Description: "Usage guidelines for the symscope MCP server",
		MIMEType:    "text/markdown",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      guidelinesURI,
					MIMEType: "text/markdown",
					Text:     s.systemPrompt,
				},
			},
		}, nil
	})

	schemaMap := buildSchemaMap()

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: schemaPrefix + "{tool_name}",
		Name:        "Tool Schema",
		Description: "JSON schema for the named tool's arguments",
		MIMEType:    "application/schema+json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		toolName := strings.TrimPrefix(uri, schemaPrefix)
		schemaJSON, ok := schemaMap[toolName]
		if !ok {
			return nil, fmt.Errorf("unknown tool schema: %q", toolName)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/schema+json",
					Text:     schemaJSON,
				},
			},
		}, nil
	})
}

// buildSchemaMap maps tool names to the JSON schema of their arguments.
func buildSchemaMap() map[string]string {
	m := make(map[string]string)
	addSchema[ListTypesArgs](m, "list_types")
	addSchema[GetTypeInfoArgs](m, "get_type_info")
	addSchema[FindSymbolArgs](m, "find_symbol")
	addSchema[GetMethodSignatureArgs](m, "get_method_signature")
	addSchema[FindExternalSymbolArgs](m, "find_external_symbol")
	addSchema[AnalyzeProjectArgs](m, "analyze_project")
	addSchema[SessionArgs](m, "lsp_open_session")
	addSchema[CloseSessionArgs](m, "lsp_close_session")
	addSchema[DocumentArgs](m, "lsp_document_symbols")
	addSchema[PositionArgs](m, "lsp_hover")
	addSchema[ReferencesArgs](m, "lsp_references")
	addSchema[PositionArgs](m, "lsp_definition")
	addSchema[WorkspaceSymbolArgs](m, "lsp_workspace_symbols")
	addSchema[SessionsArgs](m, "lsp_sessions")
	return m
}

func addSchema[T any](m map[string]string, name string) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("failed to infer schema")
		return
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("failed to marshal schema")
		return
	}
	m[name] = string(schemaJSON)
}
