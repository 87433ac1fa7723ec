package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symscope/internal/lsp"
	"symscope/internal/lsp/lsptest"
	"symscope/internal/project"
	"symscope/internal/query"
)

const calculatorSource = `namespace TestApp
{
    public class Calculator
    {
        public int Add(int a, int b) => a + b;

        public double Add(double a, double b) => a + b;

        private string _name = "Calculator";
    }
}
`

const outlineSource = "class Calculator\n    void Add()\n    void Multiply()\n"

type harness struct {
	client *mcp.ClientSession
	fake   *lsptest.Analyzer
	dir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	fake := lsptest.New()
	pool := lsp.NewPool(func(path string) (lsp.Launcher, string, error) {
		return fake, filepath.Dir(path), nil
	}, lsp.Options{})

	opts := query.DefaultOptions()
	opts.Project = project.Options{NuGetPackages: t.TempDir(), ModCache: t.TempDir()}
	srv := New(query.New(opts), pool, "test")

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	cs, err := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil).Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
		srv.Close()
		fake.Close()
	})
	return &harness{client: cs, fake: fake, dir: t.TempDir()}
}

func (h *harness) write(t *testing.T, name, text string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

// call invokes a tool and returns its text and error flag.
func (h *harness) call(t *testing.T, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := h.client.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text, res.IsError
}

func TestListTools(t *testing.T) {
	h := newHarness(t)
	res, err := h.client.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"list_types", "get_type_info", "find_symbol", "get_method_signature",
		"find_external_symbol", "analyze_project",
		"lsp_open_session", "lsp_close_session", "lsp_document_symbols",
		"lsp_hover", "lsp_references", "lsp_definition",
		"lsp_workspace_symbols", "lsp_sessions",
	}, names)
}

func TestQueryTools(t *testing.T) {
	h := newHarness(t)
	cs := h.write(t, "Calculator.cs", calculatorSource)

	out, isErr := h.call(t, "list_types", map[string]any{"path": cs})
	assert.False(t, isErr)
	assert.Contains(t, out, "TestApp.Calculator")

	out, isErr = h.call(t, "find_symbol", map[string]any{"path": cs, "name": "add"})
	assert.False(t, isErr)
	assert.Contains(t, out, `2 symbols matching "add"`)

	out, isErr = h.call(t, "get_method_signature", map[string]any{"path": cs, "method_name": "Calculator.Add"})
	assert.False(t, isErr)
	assert.Contains(t, out, "2 overloads for Calculator.Add:")
	assert.Contains(t, out, "double Add(double a, double b)")

	out, isErr = h.call(t, "get_type_info", map[string]any{"path": cs, "type_name": "TestApp.Calculator"})
	assert.False(t, isErr)
	assert.Contains(t, out, "Methods (2):")
	assert.NotContains(t, out, "_name")
}

func TestQueryToolErrors(t *testing.T) {
	h := newHarness(t)
	cs := h.write(t, "Calculator.cs", calculatorSource)

	out, isErr := h.call(t, "find_symbol", map[string]any{"path": cs, "name": "  "})
	assert.True(t, isErr)
	assert.Contains(t, out, "InvalidQuery: ")

	out, isErr = h.call(t, "get_type_info", map[string]any{"path": cs, "type_name": "Calculater"})
	assert.True(t, isErr)
	assert.Contains(t, out, "InvalidQuery: ")
	assert.Contains(t, out, "Calculator")

	out, isErr = h.call(t, "list_types", map[string]any{"path": filepath.Join(h.dir, "Missing.cs")})
	assert.True(t, isErr)
	assert.Contains(t, out, "InvalidQuery: ")
}

func TestProjectTools(t *testing.T) {
	h := newHarness(t)
	h.write(t, "app/go.mod", "module example.com/app\n\nrequire example.com/hosting v0.1.0\n\nreplace example.com/hosting => ../hosting\n")
	h.write(t, "app/main.go", "package main\n\nfunc main() {}\n")
	h.write(t, "hosting/go.mod", "module example.com/hosting\n")
	h.write(t, "hosting/host.go", "package hosting\n\ntype Host interface {\n\tStart() error\n}\n")
	app := filepath.Join(h.dir, "app")

	out, isErr := h.call(t, "find_external_symbol", map[string]any{"project_path": app, "name": "Host"})
	assert.False(t, isErr, out)
	assert.Contains(t, out, "example.com/hosting v0.1.0 (module, ")

	out, isErr = h.call(t, "analyze_project", map[string]any{"project_path": app})
	assert.False(t, isErr, out)
	assert.Contains(t, out, "1 source file")
	assert.Contains(t, out, "example.com/hosting")
}

func TestSessionTools(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "Outline.cs", outlineSource)

	out, isErr := h.call(t, "lsp_open_session", map[string]any{"file_path": path})
	assert.False(t, isErr, out)
	assert.Equal(t, "fake-analyzer: ready (fake-analyzer 0.1.0), 1 spawn, 0 documents open\n", out)

	out, isErr = h.call(t, "lsp_document_symbols", map[string]any{"file_path": path})
	assert.False(t, isErr, out)
	assert.Contains(t, out, "  class Calculator  line 1\n")
	assert.Contains(t, out, "    method Multiply  line 3\n")

	out, isErr = h.call(t, "lsp_hover", map[string]any{"file_path": path, "line": 1, "character": 9})
	assert.False(t, isErr, out)
	assert.Equal(t, "`void Add()`\n", out)

	out, _ = h.call(t, "lsp_references", map[string]any{"file_path": path, "line": 2, "character": 9, "include_declaration": true})
	assert.Contains(t, out, "References (2):\n")
	assert.Contains(t, out, "Outline.cs:3:1\n")

	out, _ = h.call(t, "lsp_definition", map[string]any{"file_path": path, "line": 2, "character": 9})
	assert.Contains(t, out, "Definitions (1):\n")
	assert.Contains(t, out, "Outline.cs:1:1\n")

	out, _ = h.call(t, "lsp_workspace_symbols", map[string]any{"file_path": path, "query": "Parser"})
	assert.Contains(t, out, "class Workspace.Parser")

	out, _ = h.call(t, "lsp_sessions", map[string]any{})
	assert.Contains(t, out, "fake-analyzer: ready")
	assert.Contains(t, out, "1 document open")

	// The document is synchronized once and reused.
	assert.Equal(t, 1, h.fake.Launches())
	var opens int
	for _, e := range h.fake.Events() {
		if e.Method == "textDocument/didOpen" {
			opens++
		}
	}
	assert.Equal(t, 1, opens)

	out, isErr = h.call(t, "lsp_close_session", map[string]any{})
	assert.False(t, isErr, out)
	assert.Equal(t, "Closed 1 analyzer sessions.", out)
}

func TestSessionToolErrors(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "Outline.cs", outlineSource)

	out, isErr := h.call(t, "lsp_hover", map[string]any{"file_path": filepath.Join(h.dir, "Gone.cs"), "line": 0, "character": 0})
	assert.True(t, isErr)
	assert.Contains(t, out, "InvalidQuery: ")

	h.fake.FailNext("textDocument/hover", lsptest.Crash)
	out, isErr = h.call(t, "lsp_hover", map[string]any{"file_path": path, "line": 0, "character": 0})
	assert.True(t, isErr)
	assert.Contains(t, out, "SessionTerminated: ")

	// A retry restarts the analyzer.
	out, isErr = h.call(t, "lsp_hover", map[string]any{"file_path": path, "line": 0, "character": 0})
	assert.False(t, isErr, out)
	assert.Equal(t, "`class Calculator`\n", out)
	assert.Equal(t, 2, h.fake.Launches())
}

func TestResources(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.client.ReadResource(ctx, &mcp.ReadResourceParams{URI: guidelinesURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, "SessionTerminated")

	res, err = h.client.ReadResource(ctx, &mcp.ReadResourceParams{URI: schemaPrefix + "lsp_references"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)

	var schema struct {
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &schema))
	assert.Contains(t, schema.Properties, "include_declaration")
	assert.ElementsMatch(t, []string{"file_path", "line", "character"}, schema.Required)

	_, err = h.client.ReadResource(ctx, &mcp.ReadResourceParams{URI: schemaPrefix + "no_such_tool"})
	assert.Error(t, err)
}

func TestBuildSchemaMap(t *testing.T) {
	m := buildSchemaMap()
	assert.Len(t, m, 14)
	assert.Contains(t, m["find_symbol"], `"limit"`)
}
