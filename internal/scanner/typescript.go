package scanner

import (
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"symscope/internal/graph"
)

type tsWalker struct {
	b *builder
}

// extractTypeScript handles TypeScript and JavaScript. Top-level declarations
// live in a namespace named after the module file; TypeScript namespaces
// nest below it.
func extractTypeScript(b *builder, root *sitter.Node) {
	w := &tsWalker{b: b}
	stem := strings.TrimSuffix(filepath.Base(b.file), filepath.Ext(b.file))
	if stem == "index" {
		stem = filepath.Base(filepath.Dir(b.file))
	}
	w.statements(graph.EnsureNamespace(b.root, stem), root)
}

func (w *tsWalker) statements(ns *graph.Symbol, list *sitter.Node) {
	for _, c := range namedChildren(list) {
		w.statement(ns, c)
	}
}

func (w *tsWalker) statement(ns *graph.Symbol, n *sitter.Node) {
	switch n.Kind() {
	case "export_statement":
		if decl := field(n, "declaration"); decl != nil {
			w.statement(ns, decl)
			return
		}
		for _, c := range namedChildren(n) {
			w.statement(ns, c)
		}
	case "ambient_declaration", "expression_statement":
		for _, c := range namedChildren(n) {
			w.statement(ns, c)
		}
	case "internal_module", "module":
		name := strings.Trim(w.b.text(field(n, "name")), `"'`)
		if name == "" {
			return
		}
		w.statements(graph.EnsureNamespace(ns, name), field(n, "body"))
	case "class_declaration", "abstract_class_declaration", "class":
		w.class(ns, n)
	case "interface_declaration":
		w.iface(ns, n)
	case "enum_declaration":
		w.enum(ns, n)
	}
}

func typeAnnotation(b *builder, n *sitter.Node) string {
	return strings.TrimSpace(strings.TrimPrefix(b.squash(n), ":"))
}

func (w *tsWalker) class(ns *graph.Symbol, n *sitter.Node) {
	nameNode := field(n, "name")
	if nameNode == nil {
		return
	}
	d := graph.TypeDetail{Kind: graph.TypeClass}
	if heritage := childOfKind(n, "class_heritage"); heritage != nil {
		for _, clause := range namedChildren(heritage) {
			switch clause.Kind() {
			case "extends_clause":
				if v := field(clause, "value"); v != nil {
					d.Base = w.b.squash(v)
				} else if vs := namedChildren(clause); len(vs) > 0 {
					d.Base = w.b.squash(vs[0])
				}
			case "implements_clause":
				for _, t := range namedChildren(clause) {
					d.Interfaces = append(d.Interfaces, w.b.squash(t))
				}
			default:
				// JavaScript: class A extends B
				d.Base = w.b.squash(clause)
			}
		}
	}

	typ := w.b.addType(ns, w.b.text(nameNode), graph.AccessPublic, d, nameNode)
	if typ == nil {
		return
	}
	typ.IsAbstract = n.Kind() == "abstract_class_declaration"

	props := make(map[string]*graph.Symbol)
	for _, m := range namedChildren(field(n, "body")) {
		switch m.Kind() {
		case "method_definition", "abstract_method_signature":
			w.method(typ, m, props)
		case "public_field_definition", "field_definition":
			nameNode := field(m, "name", "property")
			if nameNode == nil {
				continue
			}
			opts := w.modifiers(m, nameNode)
			w.b.addField(typ, w.b.text(nameNode), opts, graph.FieldDetail{
				Type:    typeAnnotation(w.b, field(m, "type")),
				IsConst: childOfKind(m, "readonly") != nil && opts.static,
			}, nameNode)
		}
	}
}

// modifiers reads accessibility, static and abstract from a class member.
// ECMAScript #names are private.
func (w *tsWalker) modifiers(m, nameNode *sitter.Node) memberOpts {
	opts := memberOpts{access: graph.AccessPublic}
	for _, c := range children(m) {
		switch c.Kind() {
		case "accessibility_modifier":
			switch w.b.text(c) {
			case "private":
				opts.access = graph.AccessPrivate
			case "protected":
				opts.access = graph.AccessProtected
			}
		case "static":
			opts.static = true
		case "abstract":
			opts.abstract = true
		}
	}
	if nameNode != nil && nameNode.Kind() == "private_property_identifier" {
		opts.access = graph.AccessPrivate
	}
	return opts
}

func (w *tsWalker) method(typ *graph.Symbol, m *sitter.Node, props map[string]*graph.Symbol) {
	nameNode := field(m, "name")
	if nameNode == nil {
		return
	}
	name := w.b.text(nameNode)
	opts := w.modifiers(m, nameNode)
	if m.Kind() == "abstract_method_signature" {
		opts.abstract = true
	}
	params := w.params(field(m, "parameters"))
	returns := typeAnnotation(w.b, field(m, "return_type"))

	accessor := ""
	for _, c := range children(m) {
		if c.Kind() == "get" || c.Kind() == "set" {
			accessor = c.Kind()
		}
	}

	switch {
	case name == "constructor":
		w.b.addMethod(typ, name, opts, graph.MethodDetail{Kind: graph.MethodConstructor, Params: params}, nameNode)
		w.parameterProperties(typ, field(m, "parameters"))
	case accessor != "":
		p, ok := props[name]
		if !ok {
			p = w.b.addProperty(typ, name, opts, graph.PropertyDetail{Type: returns}, nameNode)
			if p == nil {
				return
			}
			props[name] = p
		}
		pd := p.Detail.(graph.PropertyDetail)
		md := graph.MethodDetail{Params: params}
		if accessor == "get" {
			pd.HasGetter = true
			if pd.Type == "" {
				pd.Type = returns
			}
			md.Kind, md.Returns = graph.MethodPropertyGet, returns
		} else {
			pd.HasSetter = true
			if pd.Type == "" && len(params) > 0 {
				pd.Type = params[0].Type
			}
			md.Kind = graph.MethodPropertySet
		}
		p.Detail = pd
		w.b.addMethod(typ, accessor+"_"+name, opts, md, nameNode)
	default:
		w.b.addMethod(typ, name, opts, graph.MethodDetail{Params: params, Returns: returns}, nameNode)
	}
}

// parameterProperties records constructor(private x: T) parameters as fields.
func (w *tsWalker) parameterProperties(typ *graph.Symbol, list *sitter.Node) {
	for _, p := range namedChildren(list) {
		if p.Kind() != "required_parameter" && p.Kind() != "optional_parameter" {
			continue
		}
		if childOfKind(p, "accessibility_modifier") == nil && childOfKind(p, "readonly") == nil {
			continue
		}
		pattern := field(p, "pattern")
		if pattern == nil || pattern.Kind() != "identifier" {
			continue
		}
		opts := w.modifiers(p, nil)
		w.b.addField(typ, w.b.text(pattern), opts, graph.FieldDetail{Type: typeAnnotation(w.b, field(p, "type"))}, pattern)
	}
}

func (w *tsWalker) iface(ns *graph.Symbol, n *sitter.Node) {
	nameNode := field(n, "name")
	if nameNode == nil {
		return
	}
	d := graph.TypeDetail{Kind: graph.TypeInterface}
	if ext := childOfKind(n, "extends_type_clause"); ext != nil {
		for _, t := range namedChildren(ext) {
			d.Interfaces = append(d.Interfaces, w.b.squash(t))
		}
	}
	typ := w.b.addType(ns, w.b.text(nameNode), graph.AccessPublic, d, nameNode)
	if typ == nil {
		return
	}
	typ.IsAbstract = true

	opts := memberOpts{access: graph.AccessPublic, abstract: true}
	for _, m := range namedChildren(field(n, "body")) {
		mn := field(m, "name")
		if mn == nil {
			continue
		}
		switch m.Kind() {
		case "property_signature":
			w.b.addProperty(typ, w.b.text(mn), opts, graph.PropertyDetail{
				Type:      typeAnnotation(w.b, field(m, "type")),
				HasGetter: true,
				HasSetter: childOfKind(m, "readonly") == nil,
			}, mn)
		case "method_signature":
			w.b.addMethod(typ, w.b.text(mn), opts, graph.MethodDetail{
				Params:  w.params(field(m, "parameters")),
				Returns: typeAnnotation(w.b, field(m, "return_type")),
			}, mn)
		}
	}
}

func (w *tsWalker) enum(ns *graph.Symbol, n *sitter.Node) {
	nameNode := field(n, "name")
	if nameNode == nil {
		return
	}
	typ := w.b.addType(ns, w.b.text(nameNode), graph.AccessPublic, graph.TypeDetail{Kind: graph.TypeEnum}, nameNode)
	if typ == nil {
		return
	}
	for _, m := range namedChildren(field(n, "body")) {
		mn := m
		if m.Kind() == "enum_assignment" {
			mn = field(m, "name")
		}
		if mn == nil {
			continue
		}
		w.b.addField(typ, strings.Trim(w.b.text(mn), `"'`), memberOpts{access: graph.AccessPublic},
			graph.FieldDetail{Type: typ.Name, IsConst: true}, mn)
	}
}

func (w *tsWalker) params(list *sitter.Node) []graph.Param {
	var out []graph.Param
	for _, p := range namedChildren(list) {
		var param graph.Param
		switch p.Kind() {
		case "required_parameter", "optional_parameter":
			param.Name = w.b.squash(field(p, "pattern"))
			if p.Kind() == "optional_parameter" {
				param.Name += "?"
			}
			param.Type = typeAnnotation(w.b, field(p, "type"))
			param.Default = w.b.squash(field(p, "value"))
		case "assignment_pattern":
			param.Name = w.b.squash(field(p, "left"))
			param.Default = w.b.squash(field(p, "right"))
		case "identifier", "rest_pattern", "object_pattern", "array_pattern":
			param.Name = w.b.squash(p)
		default:
			continue
		}
		out = append(out, param)
	}
	return out
}
