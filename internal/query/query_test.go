package query

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symscope/internal/apperr"
	"symscope/internal/graph"
	"symscope/internal/project"
	"symscope/internal/search"
)

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	opts := DefaultOptions()
	opts.Project = project.Options{NuGetPackages: t.TempDir(), ModCache: t.TempDir()}
	return New(opts)
}

func names(syms []*graph.Symbol) []string {
	out := []string{}
	for _, s := range syms {
		out = append(out, s.Name)
	}
	return out
}

func TestListSymbols(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	l, err := d.ListSymbols(ctx, "testdata/Calculator.cs", "")
	require.NoError(t, err)
	var qualified []string
	for _, s := range l.Types {
		qualified = append(qualified, s.QualifiedName)
	}
	assert.Equal(t, []string{"TestApp.Calculator", "TestApp.IOperation"}, qualified)

	l, err = d.ListSymbols(ctx, "testdata/Calculator.cs", "OPER")
	require.NoError(t, err)
	assert.Equal(t, []string{"IOperation"}, names(l.Types))

	l, err = d.ListSymbols(ctx, "testdata/hosting", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Host", "IHost", "IHostBuilder"}, names(l.Types))
}

func TestFindSymbol(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	res, err := d.FindSymbol(ctx, "testdata/Calculator.cs", "Calculator", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Calculator", "Add", "Add", "Multiply", "LastResult", "_name"}, names(res.Symbols))
	assert.Equal(t, 6, res.Total)

	res, err = d.FindSymbol(ctx, "testdata/Calculator.cs", "add", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Add", "Add"}, names(res.Symbols))

	res, err = d.FindSymbol(ctx, "testdata/Calculator.cs", "Calculator", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Calculator", "Add"}, names(res.Symbols))
	assert.Equal(t, 6, res.Total)

	res, err = d.FindSymbol(ctx, "testdata/Calculator.cs", "Nothing", 0)
	require.NoError(t, err)
	assert.Empty(t, res.Symbols)
}

func TestFindSymbolErrors(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	tests := []struct {
		name string
		path string
		term string
		want error
	}{
		{"empty term", "testdata/Calculator.cs", " ", apperr.ErrInvalidQuery},
		{"missing file", "testdata/Nope.cs", "Add", apperr.ErrInvalidQuery},
		{"empty path", "", "Add", apperr.ErrInvalidQuery},
		{"unsupported file", "testdata/notes.txt", "Add", apperr.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.FindSymbol(ctx, tt.path, tt.term, 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDescribeType(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	for _, name := range []string{"TestApp.Calculator", "Calculator", "testapp.calculator", "calculator"} {
		info, err := d.DescribeType(ctx, "testdata/Calculator.cs", name)
		require.NoError(t, err, name)
		assert.Equal(t, "TestApp.Calculator", info.Type.QualifiedName)
		assert.Equal(t, []string{"Add", "Add", "Multiply"}, names(info.Methods))
		assert.Equal(t, []string{"LastResult"}, names(info.Properties))
		assert.Empty(t, info.Fields)
	}

	info, err := d.DescribeType(ctx, "testdata/hosting/Hosting.csproj", "IHostBuilder")
	require.NoError(t, err)
	assert.Equal(t, []string{"Build"}, names(info.Methods))
}

func TestDescribeTypeSuggestions(t *testing.T) {
	d := newDispatcher(t)

	_, err := d.DescribeType(context.Background(), "testdata/Calculator.cs", "Calculater")
	require.ErrorIs(t, err, apperr.ErrInvalidQuery)
	assert.Contains(t, err.Error(), "did you mean TestApp.Calculator")

	_, err = d.DescribeType(context.Background(), "testdata/Calculator.cs", "Zzzzz")
	require.ErrorIs(t, err, apperr.ErrInvalidQuery)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestFindMethod(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	res, err := d.FindMethod(ctx, "testdata/Calculator.cs", "Add", "")
	require.NoError(t, err)
	require.Len(t, res.Methods, 2)
	assert.Equal(t, "int Add(int a, int b)", res.Methods[0].Signature())
	assert.Equal(t, "double Add(double a, double b)", res.Methods[1].Signature())

	res, err = d.FindMethod(ctx, "testdata/Calculator.cs", "Calculator.Add", "")
	require.NoError(t, err)
	assert.Equal(t, "Calculator", res.TypeName)
	assert.Len(t, res.Methods, 2)

	res, err = d.FindMethod(ctx, "testdata/Calculator.cs", "Add", "IOperation")
	require.NoError(t, err)
	assert.Empty(t, res.Methods)

	res, err = d.FindMethod(ctx, "testdata/Calculator.cs", "get_LastResult", "")
	require.NoError(t, err)
	require.Len(t, res.Methods, 1)
	assert.True(t, res.Methods[0].IsSynthetic())

	_, err = d.FindMethod(ctx, "testdata/Calculator.cs", "Add", "Missing")
	assert.ErrorIs(t, err, apperr.ErrInvalidQuery)

	_, err = d.FindMethod(ctx, "testdata/Calculator.cs", "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidQuery)
}

func TestFindMethodTypeNameCollision(t *testing.T) {
	d := newDispatcher(t)
	path := filepath.Join(t.TempDir(), "Jobs.cs")
	require.NoError(t, os.WriteFile(path, []byte(`namespace App
{
    class Run
    {
        void Start() {}
        void Stop() {}
    }

    class Job
    {
        void Run() {}
    }
}
`), 0o644))

	res, err := d.FindMethod(context.Background(), path, "Run", "")
	require.NoError(t, err)
	require.Len(t, res.Methods, 1)
	assert.Equal(t, "App.Job.Run", res.Methods[0].QualifiedName)

	res, err = d.FindMethod(context.Background(), path, "Start", "Run")
	require.NoError(t, err)
	assert.Equal(t, []string{"Start"}, names(res.Methods))
}

func TestFindExternal(t *testing.T) {
	d := newDispatcher(t)

	res, err := d.FindExternal(context.Background(), "testdata/app", "IHost", 0)
	require.NoError(t, err)
	assert.Equal(t, "App", res.Project)
	assert.Equal(t, 2, res.Searched)

	require.Len(t, res.Groups, 2)
	assert.Equal(t, "Acme.Contrib", res.Groups[0].Library)
	assert.Equal(t, []string{"IHostLifetime", "WaitForStart"}, names(res.Groups[0].Symbols))

	hosting := res.Groups[1]
	assert.Equal(t, "Acme.Hosting", hosting.Library)
	assert.Equal(t, project.RefProject, hosting.Kind)
	assert.Equal(t, []string{"IHost", "Name", "Start", "Stop", "IHostBuilder", "Build", "Configure"}, names(hosting.Symbols))
	for _, s := range hosting.Symbols {
		assert.False(t, s.IsSynthetic(), s.QualifiedName)
		assert.Equal(t, "Acme.Hosting", s.Assembly)
	}

	require.Len(t, res.Unresolved, 1)
	assert.Equal(t, "Missing.Package", res.Unresolved[0].Name)
	assert.NotEmpty(t, res.Diagnostics)
}

func TestFindExternalLimitAndMiss(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	res, err := d.FindExternal(ctx, "testdata/app/App.csproj", "IHost", 2)
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)
	assert.Len(t, res.Groups[1].Symbols, 2)
	assert.Equal(t, 7, res.Groups[1].Total)

	res, err = d.FindExternal(ctx, "testdata/app", "NoSuchThing", 0)
	require.NoError(t, err)
	assert.Empty(t, res.Groups)

	_, err = d.FindExternal(ctx, "testdata/app", "", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidQuery)

	_, err = d.FindExternal(ctx, "testdata/none", "IHost", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidQuery)
}

func TestFindExternalGoModule(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"app/go.mod":     "module example.com/app\n\nrequire example.com/hosting v0.1.0\n\nreplace example.com/hosting => ../hosting\n",
		"app/main.go":    "package main\n\nfunc main() {}\n",
		"hosting/go.mod": "module example.com/hosting\n",
		"hosting/host.go": `package hosting

type Host interface {
	Start() error
	Stop() error
}

type Server struct {
	Addr string
	host Host
}

func (s *Server) Host() Host { return s.host }
`,
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	d := newDispatcher(t)
	res, err := d.FindExternal(context.Background(), filepath.Join(root, "app"), "Host", 0)
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, "example.com/hosting", res.Groups[0].Library)
	assert.Equal(t, project.RefModule, res.Groups[0].Kind)
	assert.Equal(t, []string{"Host", "Start", "Stop", "Host"}, names(res.Groups[0].Symbols))
}

func TestAnalyzeProject(t *testing.T) {
	d := newDispatcher(t)

	a, err := d.AnalyzeProject(context.Background(), "testdata/app", "Program")
	require.NoError(t, err)
	assert.Equal(t, "App", a.Project.Name)
	assert.Len(t, a.Project.Files, 2)
	assert.GreaterOrEqual(t, a.Types, 1)
	assert.Positive(t, a.Errors)
	assert.Positive(t, a.Warnings)
	assert.Equal(t, []string{"Program", "_host", "Main"}, names(a.Matches))

	a, err = d.AnalyzeProject(context.Background(), "testdata/app", "")
	require.NoError(t, err)
	assert.Nil(t, a.Matches)
	assert.NotEmpty(t, a.Diagnostics)
}

func TestCancelled(t *testing.T) {
	d := newDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.FindSymbol(ctx, "testdata/Calculator.cs", "Add", 0)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = d.FindExternal(ctx, "testdata/app", "IHost", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExternalFloor(t *testing.T) {
	opts := DefaultOptions()
	opts.Project.NuGetPackages = t.TempDir()
	opts.External = search.Options{MinAccess: graph.AccessPublic}
	d := New(opts)

	res, err := d.FindExternal(context.Background(), "testdata/app", "IHostBuilder", 0)
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, []string{"IHostBuilder", "Build"}, names(res.Groups[0].Symbols))
}
