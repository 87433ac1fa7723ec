package scanner

import (
	"fmt"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"symscope/internal/graph"
)

type extractFunc func(b *builder, root *sitter.Node)

// builder accumulates the symbols of one file under a detached root.
type builder struct {
	file  string
	src   []byte
	root  *graph.Symbol
	diags []graph.Diagnostic
}

func newBuilder(file string, src []byte) *builder {
	return &builder{file: file, src: src, root: graph.NewNamespace("", "", "")}
}

func (b *builder) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(b.src)
}

// squash collapses runs of whitespace so multi-line type expressions render on one line.
func (b *builder) squash(n *sitter.Node) string {
	return strings.Join(strings.Fields(b.text(n)), " ")
}

func (b *builder) loc(n *sitter.Node) graph.Location {
	if n == nil {
		return graph.Location{File: b.file}
	}
	p := n.StartPosition()
	return graph.Location{File: b.file, Line: int(p.Row), Column: int(p.Column)}
}

func (b *builder) attach(parent, child *graph.Symbol) *graph.Symbol {
	if err := parent.AddChild(child); err != nil {
		b.diags = append(b.diags, graph.Diagnostic{
			Severity: graph.SeverityWarning,
			Location: child.Location,
			Message:  err.Error(),
		})
		return nil
	}
	return child
}

func (b *builder) addType(parent *graph.Symbol, name string, access graph.Accessibility, d graph.TypeDetail, at *sitter.Node) *graph.Symbol {
	return b.attach(parent, &graph.Symbol{
		Name:          name,
		QualifiedName: graph.JoinName(parent.QualifiedName, name),
		Access:        access,
		Detail:        d,
		Location:      b.loc(at),
	})
}

type memberOpts struct {
	access   graph.Accessibility
	static   bool
	abstract bool
}

func (b *builder) addMethod(parent *graph.Symbol, name string, o memberOpts, d graph.MethodDetail, at *sitter.Node) *graph.Symbol {
	return b.attach(parent, &graph.Symbol{
		Name:          name,
		QualifiedName: graph.JoinName(parent.QualifiedName, name) + graph.ParamTypes(d.Params),
		Access:        o.access,
		IsStatic:      o.static,
		IsAbstract:    o.abstract,
		Detail:        d,
		Location:      b.loc(at),
	})
}

func (b *builder) addProperty(parent *graph.Symbol, name string, o memberOpts, d graph.PropertyDetail, at *sitter.Node) *graph.Symbol {
	return b.attach(parent, &graph.Symbol{
		Name:          name,
		QualifiedName: graph.JoinName(parent.QualifiedName, name),
		Access:        o.access,
		IsStatic:      o.static,
		IsAbstract:    o.abstract,
		Detail:        d,
		Location:      b.loc(at),
	})
}

func (b *builder) addField(parent *graph.Symbol, name string, o memberOpts, d graph.FieldDetail, at *sitter.Node) *graph.Symbol {
	return b.attach(parent, &graph.Symbol{
		Name:          name,
		QualifiedName: graph.JoinName(parent.QualifiedName, name),
		Access:        o.access,
		IsStatic:      o.static || d.IsConst,
		Detail:        d,
		Location:      b.loc(at),
	})
}

// collectSyntaxErrors records ERROR and MISSING nodes. Subtrees without
// errors are skipped.
func (b *builder) collectSyntaxErrors(n *sitter.Node) {
	if n == nil || !n.HasError() {
		return
	}
	switch {
	case n.IsMissing():
		b.diags = append(b.diags, graph.Diagnostic{
			Severity: graph.SeverityError,
			Location: b.loc(n),
			Message:  fmt.Sprintf("missing %s", n.Kind()),
		})
		return
	case n.IsError():
		msg := "syntax error"
		if snippet := b.squash(n); snippet != "" {
			if len(snippet) > 40 {
				snippet = snippet[:40] + "..."
			}
			msg = fmt.Sprintf("syntax error near %q", snippet)
		}
		b.diags = append(b.diags, graph.Diagnostic{Severity: graph.SeverityError, Location: b.loc(n), Message: msg})
		return
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		b.collectSyntaxErrors(n.Child(i))
	}
}

func children(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.ChildCount())
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func childOfKind(n *sitter.Node, kinds ...string) *sitter.Node {
	for _, c := range children(n) {
		for _, k := range kinds {
			if c.Kind() == k {
				return c
			}
		}
	}
	return nil
}

// field returns the first child found under any of the given field names.
// Grammar versions disagree on some field names, e.g. "returns" and "type".
func field(n *sitter.Node, names ...string) *sitter.Node {
	if n == nil {
		return nil
	}
	for _, name := range names {
		if c := n.ChildByFieldName(name); c != nil {
			return c
		}
	}
	return nil
}
