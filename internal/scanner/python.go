package scanner

import (
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"symscope/internal/graph"
)

type pythonWalker struct {
	b *builder
}

// extractPython puts the classes of a module under a namespace named after
// the module file. Module-level functions have no containing type and are
// left out.
func extractPython(b *builder, root *sitter.Node) {
	w := &pythonWalker{b: b}
	ns := graph.EnsureNamespace(b.root, pythonModuleName(b.file))
	for _, c := range namedChildren(root) {
		if def := w.unwrap(c); def != nil && def.Kind() == "class_definition" {
			w.class(ns, def)
		}
	}
}

func pythonModuleName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if stem == "__init__" {
		stem = filepath.Base(filepath.Dir(path))
	}
	return stem
}

// pythonAccess follows the underscore conventions: "__x" is private, "_x"
// is internal and dunder names are public.
func pythonAccess(name string) graph.Accessibility {
	switch {
	case strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__"):
		return graph.AccessPublic
	case strings.HasPrefix(name, "__"):
		return graph.AccessPrivate
	case strings.HasPrefix(name, "_"):
		return graph.AccessInternal
	}
	return graph.AccessPublic
}

// unwrap returns the definition inside a decorated_definition.
func (w *pythonWalker) unwrap(n *sitter.Node) *sitter.Node {
	if n.Kind() == "decorated_definition" {
		return field(n, "definition")
	}
	return n
}

func (w *pythonWalker) decorators(n *sitter.Node) []string {
	if n.Kind() != "decorated_definition" {
		return nil
	}
	var out []string
	for _, c := range namedChildren(n) {
		if c.Kind() == "decorator" {
			out = append(out, strings.TrimPrefix(w.b.squash(c), "@"))
		}
	}
	return out
}

func (w *pythonWalker) class(parent *graph.Symbol, n *sitter.Node) {
	nameNode := field(n, "name")
	if nameNode == nil {
		return
	}
	d := graph.TypeDetail{Kind: graph.TypeClass}
	var bases []string
	for _, arg := range namedChildren(field(n, "superclasses")) {
		if arg.Kind() == "keyword_argument" {
			continue
		}
		base := w.b.squash(arg)
		short := base
		if i := strings.LastIndexByte(short, '.'); i >= 0 {
			short = short[i+1:]
		}
		switch short {
		case "Protocol", "ABC":
			d.Kind = graph.TypeInterface
		case "Enum", "IntEnum", "StrEnum", "Flag", "IntFlag":
			d.Kind = graph.TypeEnum
			d.Base = base
		default:
			bases = append(bases, base)
		}
	}
	if d.Kind == graph.TypeClass && len(bases) > 0 {
		d.Base, bases = bases[0], bases[1:]
	}
	d.Interfaces = bases

	name := w.b.text(nameNode)
	typ := w.b.addType(parent, name, pythonAccess(name), d, nameNode)
	if typ == nil {
		return
	}
	typ.IsAbstract = d.Kind == graph.TypeInterface

	props := make(map[string]*graph.Symbol)
	for _, c := range namedChildren(field(n, "body")) {
		def := w.unwrap(c)
		if def == nil {
			continue
		}
		switch def.Kind() {
		case "class_definition":
			w.class(typ, def)
		case "function_definition":
			w.function(typ, def, w.decorators(c), props)
		case "expression_statement":
			for _, a := range namedChildren(def) {
				if a.Kind() == "assignment" {
					w.attribute(typ, a, d.Kind == graph.TypeEnum)
				}
			}
		}
	}
}

func (w *pythonWalker) attribute(typ *graph.Symbol, a *sitter.Node, enum bool) {
	left := field(a, "left")
	if left == nil || left.Kind() != "identifier" {
		return
	}
	name := w.b.text(left)
	d := graph.FieldDetail{Type: w.b.squash(field(a, "type"))}
	if enum {
		d.Type, d.IsConst = typ.Name, true
	}
	w.b.addField(typ, name, memberOpts{access: pythonAccess(name), static: true}, d, left)
}

func (w *pythonWalker) function(typ *graph.Symbol, n *sitter.Node, decorators []string, props map[string]*graph.Symbol) {
	nameNode := field(n, "name")
	if nameNode == nil {
		return
	}
	name := w.b.text(nameNode)
	opts := memberOpts{access: pythonAccess(name)}
	isProperty, setterOf := false, ""
	for _, dec := range decorators {
		switch {
		case dec == "staticmethod", dec == "classmethod":
			opts.static = true
		case dec == "property", dec == "functools.cached_property", dec == "cached_property":
			isProperty = true
		case strings.HasSuffix(dec, "abstractmethod"):
			opts.abstract = true
		case strings.HasSuffix(dec, ".setter"):
			setterOf = strings.TrimSuffix(dec, ".setter")
		}
	}

	params := w.params(field(n, "parameters"), decorators)
	returns := w.b.squash(field(n, "return_type"))

	switch {
	case isProperty:
		p := w.b.addProperty(typ, name, opts, graph.PropertyDetail{Type: returns, HasGetter: true}, nameNode)
		if p != nil {
			props[name] = p
			w.b.addMethod(typ, "get_"+name, opts, graph.MethodDetail{Kind: graph.MethodPropertyGet, Returns: returns}, nameNode)
		}
	case setterOf != "":
		p, ok := props[setterOf]
		if !ok {
			return
		}
		pd := p.Detail.(graph.PropertyDetail)
		pd.HasSetter = true
		p.Detail = pd
		w.b.addMethod(typ, "set_"+setterOf, opts, graph.MethodDetail{Kind: graph.MethodPropertySet, Params: params}, nameNode)
	case name == "__init__":
		w.b.addMethod(typ, name, opts, graph.MethodDetail{Kind: graph.MethodConstructor, Params: params}, nameNode)
		w.instanceAttributes(typ, field(n, "body"))
	default:
		w.b.addMethod(typ, name, opts, graph.MethodDetail{Params: params, Returns: returns}, nameNode)
	}
}

// instanceAttributes records "self.x = ..." assignments in __init__ as fields.
func (w *pythonWalker) instanceAttributes(typ *graph.Symbol, body *sitter.Node) {
	seen := make(map[string]bool)
	for _, m := range typ.Members() {
		seen[m.Name] = true
	}
	for _, stmt := range namedChildren(body) {
		if stmt.Kind() != "expression_statement" {
			continue
		}
		for _, a := range namedChildren(stmt) {
			if a.Kind() != "assignment" {
				continue
			}
			left := field(a, "left")
			if left == nil || left.Kind() != "attribute" || w.b.text(field(left, "object")) != "self" {
				continue
			}
			attr := field(left, "attribute")
			name := w.b.text(attr)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			w.b.addField(typ, name, memberOpts{access: pythonAccess(name)}, graph.FieldDetail{Type: w.b.squash(field(a, "type"))}, attr)
		}
	}
}

func (w *pythonWalker) params(list *sitter.Node, decorators []string) []graph.Param {
	var out []graph.Param
	for _, p := range namedChildren(list) {
		var param graph.Param
		switch p.Kind() {
		case "identifier":
			param.Name = w.b.text(p)
		case "typed_parameter":
			if id := childOfKind(p, "identifier", "list_splat_pattern", "dictionary_splat_pattern"); id != nil {
				param.Name = w.b.text(id)
			}
			param.Type = w.b.squash(field(p, "type"))
		case "default_parameter", "typed_default_parameter":
			param.Name = w.b.text(field(p, "name"))
			param.Type = w.b.squash(field(p, "type"))
			param.Default = w.b.squash(field(p, "value"))
		case "list_splat_pattern", "dictionary_splat_pattern":
			param.Name = w.b.text(p)
		default:
			continue
		}
		out = append(out, param)
	}
	if len(out) > 0 && !hasWord(decorators, "staticmethod") && (out[0].Name == "self" || out[0].Name == "cls") {
		out = out[1:]
	}
	return out
}
