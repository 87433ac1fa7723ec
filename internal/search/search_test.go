package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symscope/internal/apperr"
	"symscope/internal/graph"
)

func newType(name, qualified string, kind graph.TypeKind) *graph.Symbol {
	return &graph.Symbol{
		Name:          name,
		QualifiedName: qualified,
		Access:        graph.AccessPublic,
		Detail:        graph.TypeDetail{Kind: kind},
	}
}

func newMethod(parent *graph.Symbol, name string, access graph.Accessibility, kind graph.MethodKind, params ...graph.Param) *graph.Symbol {
	m := &graph.Symbol{
		Name:          name,
		QualifiedName: parent.QualifiedName + "." + name + graph.ParamTypes(params),
		Access:        access,
		Detail:        graph.MethodDetail{Kind: kind, Params: params, Returns: "int"},
	}
	_ = parent.AddChild(m)
	return m
}

func newProperty(parent *graph.Symbol, name string) *graph.Symbol {
	p := &graph.Symbol{
		Name:          name,
		QualifiedName: parent.QualifiedName + "." + name,
		Access:        graph.AccessPublic,
		Detail:        graph.PropertyDetail{Type: "double", HasGetter: true, HasSetter: true},
	}
	_ = parent.AddChild(p)
	return p
}

func newField(parent *graph.Symbol, name string, access graph.Accessibility) *graph.Symbol {
	f := &graph.Symbol{
		Name:          name,
		QualifiedName: parent.QualifiedName + "." + name,
		Access:        access,
		Detail:        graph.FieldDetail{Type: "string"},
	}
	_ = parent.AddChild(f)
	return f
}

func ints(a, b string) []graph.Param {
	return []graph.Param{{Type: "int", Name: a}, {Type: "int", Name: b}}
}

// calculatorGraph mirrors a file declaring Calculator and IOperation in TestApp.
func calculatorGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("")
	ns := g.EnsureNamespace("TestApp")

	calc := newType("Calculator", "TestApp.Calculator", graph.TypeClass)
	require.NoError(t, ns.AddChild(calc))
	newMethod(calc, ".ctor", graph.AccessPublic, graph.MethodConstructor)
	newMethod(calc, "Add", graph.AccessPublic, graph.MethodOrdinary, ints("a", "b")...)
	newMethod(calc, "Multiply", graph.AccessPublic, graph.MethodOrdinary, ints("x", "y")...)
	newProperty(calc, "LastResult")
	newMethod(calc, "get_LastResult", graph.AccessPublic, graph.MethodPropertyGet)
	newMethod(calc, "set_LastResult", graph.AccessPublic, graph.MethodPropertySet)
	newField(calc, "_name", graph.AccessPrivate)

	op := newType("IOperation", "TestApp.IOperation", graph.TypeInterface)
	require.NoError(t, ns.AddChild(op))
	newMethod(op, "Execute", graph.AccessPublic, graph.MethodOrdinary, graph.Param{Type: "double", Name: "value"})
	return g
}

func names(syms []*graph.Symbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.Name
	}
	return out
}

func TestSearchTypeMatchCascadesToMembers(t *testing.T) {
	g := calculatorGraph(t)

	got, err := Search(context.Background(), g.Root, "Calculator", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Calculator", "Add", "Multiply", "LastResult"}, names(got))
}

func TestSearchMemberMatchOnly(t *testing.T) {
	g := calculatorGraph(t)

	got, err := Search(context.Background(), g.Root, "Add", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Add"}, names(got))
}

func TestSearchIsCaseInsensitiveSubstring(t *testing.T) {
	g := calculatorGraph(t)

	got, err := Search(context.Background(), g.Root, "mult", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Multiply"}, names(got))
}

func TestSearchEmptyTerm(t *testing.T) {
	g := calculatorGraph(t)

	for _, term := range []string{"", "   "} {
		_, err := Search(context.Background(), g.Root, term, DefaultOptions())
		require.ErrorIs(t, err, apperr.ErrInvalidQuery)
	}
}

func TestSearchNoMatches(t *testing.T) {
	g := calculatorGraph(t)

	got, err := Search(context.Background(), g.Root, "Nonexistent", DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchAccessibilityFloor(t *testing.T) {
	g := calculatorGraph(t)

	opts := DefaultOptions()
	opts.MinAccess = graph.AccessPrivate
	got, err := Search(context.Background(), g.Root, "Calculator", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Calculator", "Add", "Multiply", "LastResult", "_name"}, names(got))
}

func TestSearchIncludeSynthetic(t *testing.T) {
	g := calculatorGraph(t)

	opts := DefaultOptions()
	opts.IncludeSynthetic = true
	got, err := Search(context.Background(), g.Root, "Calculator", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Calculator", ".ctor", "Add", "Multiply", "LastResult", "get_LastResult", "set_LastResult"}, names(got))
}

func TestSearchSyntheticMembersNeverMatchByName(t *testing.T) {
	g := calculatorGraph(t)

	got, err := Search(context.Background(), g.Root, "LastResult", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"LastResult"}, names(got))
}

func TestSearchNestedTypesVisited(t *testing.T) {
	g := graph.New("")
	ns := g.EnsureNamespace("App")
	outer := newType("Outer", "App.Outer", graph.TypeClass)
	require.NoError(t, ns.AddChild(outer))
	newMethod(outer, "Run", graph.AccessPublic, graph.MethodOrdinary)
	inner := newType("Inner", "App.Outer.Inner", graph.TypeStruct)
	require.NoError(t, outer.AddChild(inner))
	newMethod(inner, "RunInner", graph.AccessPublic, graph.MethodOrdinary)
	newMethod(outer, "Stop", graph.AccessPublic, graph.MethodOrdinary)

	got, err := Search(context.Background(), g.Root, "Outer", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Outer", "Run", "Stop"}, names(got))

	got, err = Search(context.Background(), g.Root, "Run", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Run", "RunInner"}, names(got))

	got, err = Search(context.Background(), g.Root, "Inner", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Inner", "RunInner"}, names(got))
}

func TestSearchDeduplicatesByIdentity(t *testing.T) {
	g := calculatorGraph(t)
	calc := g.Root.Children[0].Children[0]

	// A second namespace re-exporting the same declaration.
	alias := graph.NewNamespace("Reexport", "Reexport", "")
	require.NoError(t, g.Root.AddChild(alias))
	alias.Children = append(alias.Children, calc)

	got, err := Search(context.Background(), g.Root, "Calculator", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Calculator", "Add", "Multiply", "LastResult"}, names(got))

	seen := map[graph.Key]bool{}
	for _, s := range got {
		assert.False(t, seen[s.Key()], "duplicate %s", s.QualifiedName)
		seen[s.Key()] = true
	}
}

func TestSearchKeepsOverloads(t *testing.T) {
	g := graph.New("")
	ns := g.EnsureNamespace("App")
	calc := newType("Calc", "App.Calc", graph.TypeClass)
	require.NoError(t, ns.AddChild(calc))
	newMethod(calc, "Add", graph.AccessPublic, graph.MethodOrdinary, ints("a", "b")...)
	newMethod(calc, "Add", graph.AccessPublic, graph.MethodOrdinary, graph.Param{Type: "double", Name: "a"})

	got, err := Search(context.Background(), g.Root, "Add", DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSearchIsIdempotent(t *testing.T) {
	g := calculatorGraph(t)

	first, err := Search(context.Background(), g.Root, "a", DefaultOptions())
	require.NoError(t, err)
	second, err := Search(context.Background(), g.Root, "a", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearchCancelled(t *testing.T) {
	g := calculatorGraph(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := Search(ctx, g.Root, "Calculator", DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, got)
}

func TestSearchFromTypeRoot(t *testing.T) {
	g := calculatorGraph(t)
	calc := g.Root.Children[0].Children[0]

	got, err := Search(context.Background(), calc, "Multiply", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Multiply"}, names(got))
}

func TestLimitIsStableAcrossCaps(t *testing.T) {
	g := calculatorGraph(t)
	all, err := Search(context.Background(), g.Root, "Calculator", DefaultOptions())
	require.NoError(t, err)

	for n := 1; n <= len(all); n++ {
		assert.Equal(t, all[:n], Limit(all, n))
	}
	assert.Equal(t, all, Limit(all, 0))
	assert.Equal(t, all, Limit(all, 100))
}

func TestTypes(t *testing.T) {
	g := calculatorGraph(t)

	all, err := Types(context.Background(), g.Root, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Calculator", "IOperation"}, names(all))

	filtered, err := Types(context.Background(), g.Root, "testapp.iop")
	require.NoError(t, err)
	assert.Equal(t, []string{"IOperation"}, names(filtered))
}

func TestSearchKindsAndExactName(t *testing.T) {
	g := calculatorGraph(t)

	opts := DefaultOptions()
	opts.Kinds = []graph.Kind{graph.KindMethod}
	got, err := Search(context.Background(), g.Root, "Calculator", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Calculator", "Add", "Multiply"}, names(got))

	opts = DefaultOptions()
	opts.ExactName = true
	got, err = Search(context.Background(), g.Root, "add", opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"Add"}, names(got))

	got, err = Search(context.Background(), g.Root, "Ad", opts)
	require.NoError(t, err)
	assert.Empty(t, got)
}
