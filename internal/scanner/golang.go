package scanner

import (
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"symscope/internal/graph"
)

type goWalker struct {
	b     *builder
	ns    *graph.Symbol
	types map[string]*graph.Symbol
}

// extractGo maps a Go file onto the graph model: the package is the
// namespace, named types are types, methods attach to their receiver type and
// functions returning T or *T are listed under T as static methods. Other
// top-level functions have no containing type and are left out.
func extractGo(b *builder, root *sitter.Node) {
	w := &goWalker{b: b, types: make(map[string]*graph.Symbol)}

	pkg := "main"
	if clause := childOfKind(root, "package_clause"); clause != nil {
		if id := childOfKind(clause, "package_identifier"); id != nil {
			pkg = b.text(id)
		}
	}
	w.ns = graph.EnsureNamespace(b.root, pkg)

	for _, c := range namedChildren(root) {
		if c.Kind() == "type_declaration" {
			for _, spec := range namedChildren(c) {
				if spec.Kind() == "type_spec" || spec.Kind() == "type_alias" {
					w.typeSpec(spec)
				}
			}
		}
	}
	for _, c := range namedChildren(root) {
		switch c.Kind() {
		case "method_declaration":
			w.method(c)
		case "function_declaration":
			w.function(c)
		}
	}
}

func goAccess(name string) graph.Accessibility {
	r, _ := utf8.DecodeRuneInString(name)
	if unicode.IsUpper(r) {
		return graph.AccessPublic
	}
	return graph.AccessInternal
}

func (w *goWalker) typeSpec(spec *sitter.Node) {
	nameNode := field(spec, "name")
	if nameNode == nil {
		return
	}
	name := w.b.text(nameNode)
	underlying := field(spec, "type")
	if underlying == nil {
		return
	}

	d := graph.TypeDetail{Kind: graph.TypeClass}
	switch underlying.Kind() {
	case "struct_type":
		d.Kind = graph.TypeStruct
	case "interface_type":
		d.Kind = graph.TypeInterface
	default:
		d.Base = w.b.squash(underlying)
	}

	typ := w.b.addType(w.ns, name, goAccess(name), d, nameNode)
	if typ == nil {
		return
	}
	w.types[name] = typ

	switch d.Kind {
	case graph.TypeStruct:
		w.structFields(typ, underlying)
	case graph.TypeInterface:
		typ.IsAbstract = true
		w.interfaceMethods(typ, underlying)
	}
}

func (w *goWalker) structFields(typ *graph.Symbol, st *sitter.Node) {
	list := childOfKind(st, "field_declaration_list")
	var embedded []string
	for _, f := range namedChildren(list) {
		if f.Kind() != "field_declaration" {
			continue
		}
		typeNode := field(f, "type")
		typeName := w.b.squash(typeNode)
		var names []*sitter.Node
		for _, c := range children(f) {
			if c.Kind() == "field_identifier" {
				names = append(names, c)
			}
		}
		if len(names) == 0 {
			embedded = append(embedded, strings.TrimPrefix(typeName, "*"))
			continue
		}
		for _, n := range names {
			name := w.b.text(n)
			w.b.addField(typ, name, memberOpts{access: goAccess(name)}, graph.FieldDetail{Type: typeName}, n)
		}
	}
	w.embed(typ, embedded)
}

func (w *goWalker) interfaceMethods(typ *graph.Symbol, it *sitter.Node) {
	var embedded []string
	for _, c := range namedChildren(it) {
		switch c.Kind() {
		case "method_elem", "method_spec":
			nameNode := field(c, "name")
			if nameNode == nil {
				continue
			}
			name := w.b.text(nameNode)
			w.b.addMethod(typ, name, memberOpts{access: goAccess(name), abstract: true}, graph.MethodDetail{
				Params:  w.params(field(c, "parameters")),
				Returns: w.b.squash(field(c, "result")),
			}, nameNode)
		case "type_elem", "constraint_elem", "interface_type_name", "qualified_type", "type_identifier":
			embedded = append(embedded, w.b.squash(c))
		}
	}
	w.embed(typ, embedded)
}

func (w *goWalker) embed(typ *graph.Symbol, names []string) {
	if len(names) == 0 {
		return
	}
	d := typ.Detail.(graph.TypeDetail)
	d.Interfaces = append(d.Interfaces, names...)
	typ.Detail = d
}

func (w *goWalker) method(n *sitter.Node) {
	nameNode := field(n, "name")
	recv := field(n, "receiver")
	if nameNode == nil || recv == nil {
		return
	}
	var recvType string
	for _, p := range namedChildren(recv) {
		if p.Kind() == "parameter_declaration" {
			recvType = baseTypeName(w.b.text(field(p, "type")))
			break
		}
	}
	if recvType == "" {
		return
	}
	typ := w.typeFor(recvType)
	name := w.b.text(nameNode)
	w.b.addMethod(typ, name, memberOpts{access: goAccess(name)}, graph.MethodDetail{
		Params:  w.params(field(n, "parameters")),
		Returns: w.b.squash(field(n, "result")),
	}, nameNode)
}

// typeFor returns the type declared in this file or a partial placeholder
// that merges with the declaration from a sibling file.
func (w *goWalker) typeFor(name string) *graph.Symbol {
	if t, ok := w.types[name]; ok {
		return t
	}
	t := &graph.Symbol{
		Name:          name,
		QualifiedName: graph.JoinName(w.ns.QualifiedName, name),
		Access:        goAccess(name),
		Detail:        graph.TypeDetail{Kind: graph.TypeStruct, Partial: true},
	}
	w.b.attach(w.ns, t)
	w.types[name] = t
	return t
}

func (w *goWalker) function(n *sitter.Node) {
	nameNode := field(n, "name")
	result := field(n, "result")
	if nameNode == nil || result == nil {
		return
	}
	first := result
	if result.Kind() == "parameter_list" {
		first = nil
		for _, p := range namedChildren(result) {
			if p.Kind() == "parameter_declaration" {
				first = field(p, "type")
				break
			}
		}
	}
	if first == nil {
		return
	}
	typ, ok := w.types[baseTypeName(w.b.text(first))]
	if !ok {
		return
	}
	name := w.b.text(nameNode)
	w.b.addMethod(typ, name, memberOpts{access: goAccess(name), static: true}, graph.MethodDetail{
		Params:  w.params(field(n, "parameters")),
		Returns: w.b.squash(result),
	}, nameNode)
}

func (w *goWalker) params(list *sitter.Node) []graph.Param {
	var out []graph.Param
	for _, p := range namedChildren(list) {
		typeName := w.b.squash(field(p, "type"))
		switch p.Kind() {
		case "variadic_parameter_declaration":
			typeName = "..." + typeName
		case "parameter_declaration":
		default:
			continue
		}
		var names []string
		for _, c := range children(p) {
			if c.Kind() == "identifier" {
				names = append(names, w.b.text(c))
			}
		}
		if len(names) == 0 {
			names = []string{""}
		}
		for _, name := range names {
			out = append(out, graph.Param{Type: typeName, Name: name})
		}
	}
	return out
}

// baseTypeName reduces "*Cache[K, V]" to "Cache".
func baseTypeName(s string) string {
	s = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "*"))
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
