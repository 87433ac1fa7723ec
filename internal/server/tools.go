package server

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"symscope/internal/lsp"
	"symscope/internal/report"
)

// Arguments structs

type ListTypesArgs struct {
	Path   string `json:"path" jsonschema:"source file, project file or project directory to list"`
	Filter string `json:"filter,omitempty" jsonschema:"case-insensitive substring the type name must contain"`
}

type GetTypeInfoArgs struct {
	Path     string `json:"path" jsonschema:"source file, project file or project directory declaring the type"`
	TypeName string `json:"type_name" jsonschema:"simple or fully qualified type name"`
}

type FindSymbolArgs struct {
	Path  string `json:"path" jsonschema:"source file, project file or project directory to search"`
	Name  string `json:"name" jsonschema:"case-insensitive substring of the symbol name; a matching type brings all its members"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of symbols to return"`
}

type GetMethodSignatureArgs struct {
	Path       string `json:"path" jsonschema:"source file, project file or project directory declaring the method"`
	MethodName string `json:"method_name" jsonschema:"exact method name, or Type.Method"`
	TypeName   string `json:"type_name,omitempty" jsonschema:"restrict to methods declared by this type"`
}

type FindExternalSymbolArgs struct {
	ProjectPath string `json:"project_path" jsonschema:"project file (.csproj or go.mod) or its directory"`
	Name        string `json:"name" jsonschema:"case-insensitive substring to search for in every referenced library"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of symbols per library"`
}

type AnalyzeProjectArgs struct {
	ProjectPath string `json:"project_path" jsonschema:"project file (.csproj or go.mod) or its directory"`
	Name        string `json:"name,omitempty" jsonschema:"optional term to search for in the project's own sources"`
}

type SessionArgs struct {
	FilePath string `json:"file_path" jsonschema:"source file whose language and workspace select the analyzer"`
}

type CloseSessionArgs struct {
	FilePath string `json:"file_path,omitempty" jsonschema:"close only the analyzer serving this file; empty closes every session"`
}

type DocumentArgs struct {
	FilePath string `json:"file_path" jsonschema:"absolute path of the source file"`
}

type PositionArgs struct {
	FilePath  string `json:"file_path" jsonschema:"absolute path of the source file"`
	Line      int    `json:"line" jsonschema:"zero-based line"`
	Character int    `json:"character" jsonschema:"zero-based character offset in the line"`
}

type ReferencesArgs struct {
	FilePath           string `json:"file_path" jsonschema:"absolute path of the source file"`
	Line               int    `json:"line" jsonschema:"zero-based line"`
	Character          int    `json:"character" jsonschema:"zero-based character offset in the line"`
	IncludeDeclaration bool   `json:"include_declaration,omitempty" jsonschema:"also report the declaration itself"`
}

type WorkspaceSymbolArgs struct {
	FilePath string `json:"file_path" jsonschema:"any source file of the workspace; selects the analyzer"`
	Query    string `json:"query" jsonschema:"analyzer-defined symbol query, usually a name fragment"`
}

type SessionsArgs struct{}

func (s *Server) registerTools() {
	s.registerQueryTools()
	s.registerSessionTools()
}

func (s *Server) registerQueryTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_types",
		Description: "Lists the types declared in a source file or project",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ListTypesArgs) (*mcp.CallToolResult, any, error) {
		l, err := s.queries.ListSymbols(ctx, args.Path, args.Filter)
		if err != nil {
			return failure("list_types", err), nil, nil
		}
		return textResult(report.Types(l)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_type_info",
		Description: "Describes a type: its bases and public methods, properties, fields and nested types",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetTypeInfoArgs) (*mcp.CallToolResult, any, error) {
		info, err := s.queries.DescribeType(ctx, args.Path, args.TypeName)
		if err != nil {
			return failure("get_type_info", err), nil, nil
		}
		return textResult(report.TypeInfo(info)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_symbol",
		Description: "Finds types and members by name in a source file or project",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args FindSymbolArgs) (*mcp.CallToolResult, any, error) {
		r, err := s.queries.FindSymbol(ctx, args.Path, args.Name, args.Limit)
		if err != nil {
			return failure("find_symbol", err), nil, nil
		}
		return textResult(report.Symbols(r)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_method_signature",
		Description: "Returns every overload of a method with its parameters and return type",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetMethodSignatureArgs) (*mcp.CallToolResult, any, error) {
		r, err := s.queries.FindMethod(ctx, args.Path, args.MethodName, args.TypeName)
		if err != nil {
			return failure("get_method_signature", err), nil, nil
		}
		return textResult(report.Methods(r)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_external_symbol",
		Description: "Searches every library a project references and groups the matches by library",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args FindExternalSymbolArgs) (*mcp.CallToolResult, any, error) {
		r, err := s.queries.FindExternal(ctx, args.ProjectPath, args.Name, args.Limit)
		if err != nil {
			return failure("find_external_symbol", err), nil, nil
		}
		return textResult(report.External(r)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analyze_project",
		Description: "Summarizes a project: sources, references and diagnostics, with an optional symbol search",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args AnalyzeProjectArgs) (*mcp.CallToolResult, any, error) {
		a, err := s.queries.AnalyzeProject(ctx, args.ProjectPath, args.Name)
		if err != nil {
			return failure("analyze_project", err), nil, nil
		}
		return textResult(report.Analysis(a)), nil, nil
	})
}

func (s *Server) registerSessionTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "lsp_open_session",
		Description: "Starts the language analyzer for a file's language and workspace",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SessionArgs) (*mcp.CallToolResult, any, error) {
		sess, err := s.sessions.ForFile(args.FilePath)
		if err == nil {
			err = sess.EnsureReady(ctx)
		}
		if err != nil {
			return failure("lsp_open_session", err), nil, nil
		}
		return textResult(report.Sessions([]lsp.Info{sess.Info()})), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "lsp_close_session",
		Description: "Stops language analyzers",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args CloseSessionArgs) (*mcp.CallToolResult, any, error) {
		if args.FilePath == "" {
			n := len(s.sessions.Sessions())
			if err := s.sessions.Close(ctx); err != nil {
				return failure("lsp_close_session", err), nil, nil
			}
			return textResult(fmt.Sprintf("Closed %d analyzer sessions.", n)), nil, nil
		}
		sess, err := s.sessions.ForFile(args.FilePath)
		if err == nil {
			err = sess.Close(ctx)
		}
		if err != nil {
			return failure("lsp_close_session", err), nil, nil
		}
		return textResult(report.Sessions([]lsp.Info{sess.Info()})), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "lsp_document_symbols",
		Description: "Returns the analyzer's symbol outline of a file",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args DocumentArgs) (*mcp.CallToolResult, any, error) {
		sess, err := s.sessions.ForFile(args.FilePath)
		if err != nil {
			return failure("lsp_document_symbols", err), nil, nil
		}
		symbols, err := sess.DocumentSymbols(ctx, args.FilePath)
		if err != nil {
			return failure("lsp_document_symbols", err), nil, nil
		}
		return textResult(report.DocumentSymbols(args.FilePath, symbols)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "lsp_hover",
		Description: "Returns the analyzer's hover text at a zero-based position",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args PositionArgs) (*mcp.CallToolResult, any, error) {
		sess, err := s.sessions.ForFile(args.FilePath)
		if err != nil {
			return failure("lsp_hover", err), nil, nil
		}
		h, err := sess.Hover(ctx, args.FilePath, args.position())
		if err != nil {
			return failure("lsp_hover", err), nil, nil
		}
		return textResult(report.Hover(h)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "lsp_references",
		Description: "Finds references to the symbol at a zero-based position",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ReferencesArgs) (*mcp.CallToolResult, any, error) {
		sess, err := s.sessions.ForFile(args.FilePath)
		if err != nil {
			return failure("lsp_references", err), nil, nil
		}
		locs, err := sess.References(ctx, args.FilePath, lsp.Position{Line: args.Line, Character: args.Character}, args.IncludeDeclaration)
		if err != nil {
			return failure("lsp_references", err), nil, nil
		}
		return textResult(report.Locations("References", locs)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "lsp_definition",
		Description: "Finds the definition of the symbol at a zero-based position",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args PositionArgs) (*mcp.CallToolResult, any, error) {
		sess, err := s.sessions.ForFile(args.FilePath)
		if err != nil {
			return failure("lsp_definition", err), nil, nil
		}
		locs, err := sess.Definition(ctx, args.FilePath, args.position())
		if err != nil {
			return failure("lsp_definition", err), nil, nil
		}
		return textResult(report.Locations("Definitions", locs)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "lsp_workspace_symbols",
		Description: "Searches the analyzer's whole workspace for symbols",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args WorkspaceSymbolArgs) (*mcp.CallToolResult, any, error) {
		sess, err := s.sessions.ForFile(args.FilePath)
		if err != nil {
			return failure("lsp_workspace_symbols", err), nil, nil
		}
		symbols, err := sess.WorkspaceSymbols(ctx, args.Query)
		if err != nil {
			return failure("lsp_workspace_symbols", err), nil, nil
		}
		return textResult(report.WorkspaceSymbols(args.Query, symbols)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "lsp_sessions",
		Description: "Reports the state of every analyzer session",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args SessionsArgs) (*mcp.CallToolResult, any, error) {
		var infos []lsp.Info
		for _, sess := range s.sessions.Sessions() {
			infos = append(infos, sess.Info())
		}
		return textResult(report.Sessions(infos)), nil, nil
	})
}

func (a PositionArgs) position() lsp.Position {
	return lsp.Position{Line: a.Line, Character: a.Character}
}
